// Package settings 读写全局设置、站点设置、成员名单与样式目录
package settings

import (
	"context"
	"encoding/json"
	"net/url"
	"time"

	"zenstyle/internal/config"
	"zenstyle/internal/hostname"
	"zenstyle/internal/logger"
	"zenstyle/internal/store"
	"zenstyle/pkg/domain"
	"zenstyle/pkg/errx"

	"github.com/samber/lo"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// settingKeys 可由 SetSetting 修改的布尔设置
var settingKeys = []string{
	"enableStyling",
	"autoUpdate",
	"forceStyling",
	"whitelistMode",
	"whitelistStyleMode",
	"disableTransparency",
	"disableHover",
	"disableFooter",
}

// SettingKeys 返回可修改的布尔设置键
func SettingKeys() []string {
	return append([]string(nil), settingKeys...)
}

// Manager 设置管理器，所有状态都在存储中，自身不缓存
type Manager struct {
	st         store.Store
	defaultURL string
	log        logger.Logger
}

// Option 管理器选项
type Option func(*Manager)

// WithDefaultRepositoryURL 未配置仓库地址时使用的默认值
func WithDefaultRepositoryURL(u string) Option {
	return func(m *Manager) { m.defaultURL = u }
}

// New 创建设置管理器
func New(st store.Store, l logger.Logger, opts ...Option) *Manager {
	if l == nil {
		l = logger.NewNop()
	}
	m := &Manager{
		st:         st,
		defaultURL: config.DefaultRepositoryURL,
		log:        l.With("component", "settings"),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Store 返回底层存储
func (m *Manager) Store() store.Store { return m.st }

// Init 首次运行时写入默认设置与空名单，返回是否写入了内容
func (m *Manager) Init(ctx context.Context) (bool, error) {
	keys := []string{store.KeySettings}
	for _, k := range domain.ListKeys() {
		keys = append(keys, string(k))
	}
	cur, err := m.st.Get(ctx, keys...)
	if err != nil {
		return false, err
	}

	missing := make(map[string]string)
	if _, ok := cur[store.KeySettings]; !ok {
		raw, _ := json.Marshal(config.DefaultGlobalSettings())
		missing[store.KeySettings] = string(raw)
	}
	for _, k := range domain.ListKeys() {
		if _, ok := cur[string(k)]; !ok {
			missing[string(k)] = "[]"
		}
	}
	if len(missing) == 0 {
		return false, nil
	}
	if err := m.st.Set(ctx, missing); err != nil {
		return false, err
	}
	m.log.Info("已写入默认设置", "keys", lo.Keys(missing))
	return true, nil
}

// Global 读取全局设置，缺失字段取默认值
func (m *Manager) Global(ctx context.Context) (domain.GlobalSettings, error) {
	cur, err := m.st.Get(ctx, store.KeySettings)
	if err != nil {
		return domain.GlobalSettings{}, err
	}
	return m.decodeGlobal(cur[store.KeySettings]), nil
}

// SetSetting 修改单个布尔设置，保留 blob 中其余字段
func (m *Manager) SetSetting(ctx context.Context, key string, value bool) error {
	if !lo.Contains(settingKeys, key) {
		return errx.Wrap(errx.CodeUnknownSetting, domain.ErrUnknownSetting, "未知设置: "+key)
	}
	return m.patchGlobal(ctx, key, value)
}

// TouchLastFetched 记录目录拉取时间
func (m *Manager) TouchLastFetched(ctx context.Context, t time.Time) error {
	return m.patchGlobal(ctx, "lastFetchedTime", t.UnixMilli())
}

func (m *Manager) patchGlobal(ctx context.Context, path string, value any) error {
	cur, err := m.st.Get(ctx, store.KeySettings)
	if err != nil {
		return err
	}
	raw, ok := cur[store.KeySettings]
	if !ok || !gjson.Valid(raw) || !gjson.Parse(raw).IsObject() {
		b, _ := json.Marshal(config.DefaultGlobalSettings())
		raw = string(b)
	}
	patched, err := sjson.Set(raw, path, value)
	if err != nil {
		return err
	}
	return m.st.Set(ctx, map[string]string{store.KeySettings: patched})
}

func (m *Manager) decodeGlobal(raw string) domain.GlobalSettings {
	gs := config.DefaultGlobalSettings()
	if raw == "" {
		return gs
	}
	if err := json.Unmarshal([]byte(raw), &gs); err != nil {
		m.log.Warn("全局设置格式错误，使用默认值", "error", err.Error())
		return config.DefaultGlobalSettings()
	}
	return gs
}

// List 读取成员名单
func (m *Manager) List(ctx context.Context, key domain.ListKey) ([]string, error) {
	if !key.Valid() {
		return nil, errx.Wrap(errx.CodeUnknownList, domain.ErrUnknownList, "未知名单: "+string(key))
	}
	cur, err := m.st.Get(ctx, string(key))
	if err != nil {
		return nil, err
	}
	return decodeList(cur[string(key)]), nil
}

// SetMembership 加入或移出名单，主机名规范化后去重，保持原有顺序
func (m *Manager) SetMembership(ctx context.Context, key domain.ListKey, host string, member bool) error {
	h := hostname.Normalize(host)
	if !hostname.IsValid(h) {
		return errx.Wrap(errx.CodeInvalidHostname, domain.ErrInvalidHostname, "非法主机名: "+host)
	}
	list, err := m.List(ctx, key)
	if err != nil {
		return err
	}

	if lo.Contains(list, h) == member {
		return nil
	}

	var next []string
	if member {
		next = lo.Uniq(append(list, h))
	} else {
		next = lo.Without(list, h)
	}

	raw, _ := json.Marshal(next)
	return m.st.Set(ctx, map[string]string{string(key): string(raw)})
}

func decodeList(raw string) []string {
	out := make([]string, 0)
	if raw == "" {
		return out
	}
	for _, v := range gjson.Parse(raw).Array() {
		if v.Type == gjson.String {
			out = append(out, v.String())
		}
	}
	return out
}

// Site 读取站点特性开关
func (m *Manager) Site(ctx context.Context, host string) (domain.SiteSettings, error) {
	key := store.SiteKey(hostname.Normalize(host))
	cur, err := m.st.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	site := make(domain.SiteSettings)
	raw, ok := cur[key]
	if !ok {
		return site, nil
	}
	gjson.Parse(raw).ForEach(func(k, v gjson.Result) bool {
		if v.IsBool() {
			site[k.String()] = v.Bool()
		}
		return true
	})
	return site, nil
}

// SetSiteFeature 设置站点单个特性开关
func (m *Manager) SetSiteFeature(ctx context.Context, host, feature string, enabled bool) error {
	h := hostname.Normalize(host)
	if !hostname.IsValid(h) {
		return errx.Wrap(errx.CodeInvalidHostname, domain.ErrInvalidHostname, "非法主机名: "+host)
	}
	site, err := m.Site(ctx, h)
	if err != nil {
		return err
	}
	site[feature] = enabled
	raw, err := json.Marshal(site)
	if err != nil {
		return err
	}
	return m.st.Set(ctx, map[string]string{store.SiteKey(h): string(raw)})
}

// ResetSite 清除站点设置，所有特性恢复默认启用
func (m *Manager) ResetSite(ctx context.Context, host string) error {
	return m.st.Remove(ctx, store.SiteKey(hostname.Normalize(host)))
}

// RepositoryURL 读取样式仓库地址
func (m *Manager) RepositoryURL(ctx context.Context) (string, error) {
	cur, err := m.st.Get(ctx, store.KeyRepositoryURL)
	if err != nil {
		return "", err
	}
	if raw, ok := cur[store.KeyRepositoryURL]; ok {
		if u := gjson.Parse(raw).String(); u != "" {
			return u, nil
		}
	}
	return m.defaultURL, nil
}

// SetRepositoryURL 保存样式仓库地址，仅接受 http/https
func (m *Manager) SetRepositoryURL(ctx context.Context, raw string) error {
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errx.Wrap(errx.CodeInvalidURL, domain.ErrInvalidURL, "仓库地址必须是 http/https URL")
	}
	b, _ := json.Marshal(raw)
	return m.st.Set(ctx, map[string]string{store.KeyRepositoryURL: string(b)})
}

// Catalog 读取原始样式目录，不存在时返回空串
func (m *Manager) Catalog(ctx context.Context) (string, error) {
	cur, err := m.st.Get(ctx, store.KeyStyles)
	if err != nil {
		return "", err
	}
	return cur[store.KeyStyles], nil
}

// SaveCatalog 保存原始样式目录
func (m *Manager) SaveCatalog(ctx context.Context, raw string) error {
	return m.st.Set(ctx, map[string]string{store.KeyStyles: raw})
}

// Snapshot 一次读取全局设置与三个名单
func (m *Manager) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	cur, err := m.st.Get(ctx,
		store.KeySettings,
		string(domain.ListSkipTheming),
		string(domain.ListSkipForceTheming),
		string(domain.ListFallbackBackground),
	)
	if err != nil {
		return domain.Snapshot{}, err
	}
	return domain.Snapshot{
		Settings:           m.decodeGlobal(cur[store.KeySettings]),
		SkipTheming:        decodeList(cur[string(domain.ListSkipTheming)]),
		SkipForceTheming:   decodeList(cur[string(domain.ListSkipForceTheming)]),
		FallbackBackground: decodeList(cur[string(domain.ListFallbackBackground)]),
	}, nil
}
