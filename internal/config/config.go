package config

import (
	"fmt"
	"os"
	"time"

	"zenstyle/pkg/domain"

	"gopkg.in/yaml.v3"
)

// DefaultRepositoryURL 默认样式仓库地址
const DefaultRepositoryURL = "https://sameerasw.github.io/my-internet/styles.json"

// Config 配置文件结构体
type Config struct {
	Version  string         `yaml:"version"`
	Storage  StorageConfig  `yaml:"storage"`
	Log      LogConfig      `yaml:"log"`
	Cache    CacheConfig    `yaml:"cache"`
	Updater  UpdaterConfig  `yaml:"updater"`
	HTTP     HTTPConfig     `yaml:"http"`
	DevTools DevToolsConfig `yaml:"devtools"`
}

// StorageConfig 持久化存储配置
type StorageConfig struct {
	Driver string `yaml:"driver"` // sqlite / redis
	Sqlite struct {
		Db     string `yaml:"db"`
		Prefix string `yaml:"prefix"`
	} `yaml:"sqlite"`
	Redis struct {
		Addr   string `yaml:"addr"`
		DB     int    `yaml:"db"`
		Prefix string `yaml:"prefix"`
	} `yaml:"redis"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string   `yaml:"level"`
	Writer []string `yaml:"writer"`
}

// CacheConfig 决策与样式缓存配置
type CacheConfig struct {
	TTL      time.Duration `yaml:"ttl"`
	Capacity int           `yaml:"capacity"`
}

// UpdaterConfig 样式仓库自动更新配置
type UpdaterConfig struct {
	Interval      time.Duration `yaml:"interval"`
	Timeout       time.Duration `yaml:"timeout"`
	RepositoryURL string        `yaml:"repositoryURL"`
}

// HTTPConfig 本地 HTTP 接口配置
type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

// DevToolsConfig 浏览器 DevTools 注入配置
type DevToolsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	Concurrency int    `yaml:"concurrency"`
	// Launch 为 true 时自行启动浏览器，URL 被忽略
	Launch      bool   `yaml:"launch"`
	ExecPath    string `yaml:"execPath"`
	UserDataDir string `yaml:"userDataDir"`
	Headless    bool   `yaml:"headless"`
	Port        int    `yaml:"port"` // 首选调试端口，0 表示随机
}

// NewConfig 创建默认配置
func NewConfig() *Config {
	cfg := &Config{
		Version: "1.0.0",
		Log: LogConfig{
			Level: "info",
			// file 在 console 之前，保证控制台不可写时文件日志不受影响
			Writer: []string{"file", "console"},
		},
		Cache: CacheConfig{
			TTL:      5 * time.Minute,
			Capacity: 1000,
		},
		Updater: UpdaterConfig{
			Interval:      2 * time.Hour,
			Timeout:       30 * time.Second,
			RepositoryURL: DefaultRepositoryURL,
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:9320",
		},
		DevTools: DevToolsConfig{
			Enabled:     false,
			URL:         "http://localhost:9222",
			Concurrency: 4,
			Port:        9222,
		},
	}
	cfg.Storage.Driver = "sqlite"
	cfg.Storage.Sqlite.Db = "zenstyle.db"
	cfg.Storage.Sqlite.Prefix = "zen_"
	cfg.Storage.Redis.Addr = "127.0.0.1:6379"
	cfg.Storage.Redis.Prefix = "zenstyle:"
	return cfg
}

// Load 读取 YAML 配置文件并覆盖默认值，path 为空时直接返回默认配置
func Load(path string) (*Config, error) {
	cfg := NewConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 校验配置取值
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "redis":
	default:
		return fmt.Errorf("不支持的存储驱动: %q", c.Storage.Driver)
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl 必须大于 0")
	}
	if c.Cache.Capacity <= 0 {
		return fmt.Errorf("cache.capacity 必须大于 0")
	}
	if c.Updater.Interval <= 0 {
		return fmt.Errorf("updater.interval 必须大于 0")
	}
	if c.DevTools.Port < 0 || c.DevTools.Port > 65535 {
		return fmt.Errorf("devtools.port 超出范围: %d", c.DevTools.Port)
	}
	return nil
}

// DefaultGlobalSettings 返回首次运行时写入的全局设置
func DefaultGlobalSettings() domain.GlobalSettings {
	return domain.GlobalSettings{
		EnableStyling:       true,
		AutoUpdate:          false,
		ForceStyling:        false,
		WhitelistMode:       false,
		WhitelistStyleMode:  false,
		DisableTransparency: false,
		DisableHover:        false,
		DisableFooter:       false,
		LastFetchedTime:     nil,
	}
}
