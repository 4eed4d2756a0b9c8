package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"zenstyle/internal/config"
)

func TestNewConfig_Defaults(t *testing.T) {
	cfg := config.NewConfig()

	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("默认缓存 TTL 预期 5m，实际 %s", cfg.Cache.TTL)
	}
	if cfg.Cache.Capacity != 1000 {
		t.Errorf("默认缓存容量预期 1000，实际 %d", cfg.Cache.Capacity)
	}
	if cfg.Updater.Interval != 2*time.Hour {
		t.Errorf("默认更新间隔预期 2h，实际 %s", cfg.Updater.Interval)
	}
	if cfg.Updater.RepositoryURL != config.DefaultRepositoryURL {
		t.Errorf("默认仓库地址不符合预期: %s", cfg.Updater.RepositoryURL)
	}
	if cfg.DevTools.Port != 9222 {
		t.Errorf("默认调试端口预期 9222，实际 %d", cfg.DevTools.Port)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("默认配置应通过校验: %v", err)
	}
}

func TestLoad_OverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "zenstyle.yaml")
	content := `
storage:
  driver: redis
  redis:
    addr: 10.0.0.1:6379
cache:
  ttl: 30s
log:
  level: warn
  writer: [console]
devtools:
  launch: true
  port: 9333
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("加载配置失败: %v", err)
	}

	if cfg.Storage.Driver != "redis" || cfg.Storage.Redis.Addr != "10.0.0.1:6379" {
		t.Errorf("存储配置未被覆盖: %+v", cfg.Storage)
	}
	if cfg.Cache.TTL != 30*time.Second {
		t.Errorf("缓存 TTL 预期 30s，实际 %s", cfg.Cache.TTL)
	}
	// 未出现在文件中的字段保持默认值
	if cfg.Cache.Capacity != 1000 {
		t.Errorf("缓存容量应保持默认值，实际 %d", cfg.Cache.Capacity)
	}
	if cfg.Storage.Redis.Prefix != "zenstyle:" {
		t.Errorf("Redis 前缀应保持默认值，实际 %s", cfg.Storage.Redis.Prefix)
	}
	if !cfg.DevTools.Launch || cfg.DevTools.Port != 9333 {
		t.Errorf("DevTools 配置未被覆盖: %+v", cfg.DevTools)
	}
}

func TestLoad_InvalidDevToolsPort(t *testing.T) {
	path := filepath.Join(t.TempDir(), "port.yaml")
	if err := os.WriteFile(path, []byte("devtools:\n  port: 70000\n"), 0o644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	if _, err := config.Load(path); err == nil {
		t.Error("超出范围的调试端口应返回错误")
	}
}

func TestLoad_InvalidDriver(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("storage:\n  driver: mongo\n"), 0o644); err != nil {
		t.Fatalf("写入配置文件失败: %v", err)
	}
	if _, err := config.Load(path); err == nil {
		t.Error("不支持的存储驱动应返回错误")
	}
}

func TestDefaultGlobalSettings(t *testing.T) {
	s := config.DefaultGlobalSettings()
	if !s.EnableStyling {
		t.Error("enableStyling 默认应为 true")
	}
	if s.AutoUpdate || s.ForceStyling || s.WhitelistMode || s.WhitelistStyleMode {
		t.Error("其余开关默认应为 false")
	}
	if s.LastFetchedTime != nil {
		t.Error("lastFetchedTime 默认应为 nil")
	}
}
