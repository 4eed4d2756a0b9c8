// Package engine 组装样式目录缓存、决策器与 CSS 缓存，并按存储变更失效
package engine

import (
	"context"
	"strings"
	"sync"
	"time"

	"zenstyle/internal/cache"
	"zenstyle/internal/catalog"
	"zenstyle/internal/feature"
	"zenstyle/internal/forcestyle"
	"zenstyle/internal/hostname"
	"zenstyle/internal/logger"
	"zenstyle/internal/resolver"
	"zenstyle/internal/settings"
	"zenstyle/internal/store"
	"zenstyle/pkg/domain"
)

// Options 缓存参数
type Options struct {
	TTL      time.Duration
	Capacity int
}

// Engine 样式引擎，每个进程构造一次
type Engine struct {
	settings  *settings.Manager
	catalog   *catalog.Cache
	resolver  *resolver.Resolver
	decisions *cache.Cache[domain.Decision]
	css       *cache.Cache[string]
	filter    *feature.Filter
	ttl       time.Duration
	log       logger.Logger

	startOnce sync.Once
}

// New 创建样式引擎
func New(m *settings.Manager, opts Options, l logger.Logger) *Engine {
	if l == nil {
		l = logger.NewNop()
	}
	cat := catalog.NewCache(l)
	decisions := cache.New[domain.Decision](opts.TTL, opts.Capacity, cache.WithLogger(l))
	css := cache.New[string](opts.TTL, opts.Capacity, cache.WithLogger(l))

	return &Engine{
		settings:  m,
		catalog:   cat,
		resolver:  resolver.New(m, cat, decisions, l),
		decisions: decisions,
		css:       css,
		filter:    feature.NewFilter(l),
		ttl:       css.TTL(),
		log:       l.With("component", "engine"),
	}
}

// Settings 返回设置管理器
func (e *Engine) Settings() *settings.Manager { return e.settings }

// Catalog 返回样式目录缓存
func (e *Engine) Catalog() *catalog.Cache { return e.catalog }

// Start 写入默认设置、加载目录并订阅存储变更，重复调用只生效一次
func (e *Engine) Start(ctx context.Context) error {
	var err error
	e.startOnce.Do(func() {
		if _, err = e.settings.Init(ctx); err != nil {
			return
		}
		if rerr := e.Reload(ctx); rerr != nil {
			// 目录损坏不阻止启动，之后的拉取会覆盖
			e.log.Warn("启动时加载样式目录失败", "error", rerr.Error())
		}
		e.settings.Store().OnChange(e.handleChange)
		e.decisions.StartCleanup(0)
		e.css.StartCleanup(0)
		e.log.Info("样式引擎已启动", "sites", e.catalog.Len())
	})
	return err
}

// Close 停止后台清理
func (e *Engine) Close() {
	e.decisions.Stop()
	e.css.Stop()
}

// handleChange 变更路由：设置与名单失效全部，站点设置只失效该站点 CSS，目录变更先重建再失效
func (e *Engine) handleChange(changes map[string]store.Change, area string) {
	if area != store.AreaLocal {
		return
	}

	all := false
	for key, c := range changes {
		switch {
		case key == store.KeySettings, store.IsListKey(key):
			all = true
		case key == store.KeyStyles:
			if err := e.catalog.Preload(c.NewValue); err != nil {
				e.log.Warn("样式目录变更无法解析", "error", err.Error())
			}
			all = true
		default:
			if host, ok := store.SiteFromKey(key); ok {
				e.css.Invalidate(cssKey(host))
			}
		}
	}
	if all {
		e.ClearCache()
	}
}

// Reload 从存储重新加载样式目录并清空缓存
func (e *Engine) Reload(ctx context.Context) error {
	raw, err := e.settings.Catalog(ctx)
	if err != nil {
		return err
	}
	err = e.catalog.Preload(raw)
	e.ClearCache()
	return err
}

// ClearCache 清空决策与 CSS 缓存
func (e *Engine) ClearCache() {
	e.resolver.Invalidate()
	e.css.InvalidateAll()
}

// Decide 返回主机名的样式决策
func (e *Engine) Decide(ctx context.Context, host string) domain.Decision {
	return e.resolver.Decide(ctx, host)
}

// Explain 返回带模式描述的决策
func (e *Engine) Explain(ctx context.Context, host string) domain.Explanation {
	return e.resolver.Explain(ctx, host)
}

// IsActive 主机名是否正在应用样式，供图标显示
func (e *Engine) IsActive(ctx context.Context, host string) bool {
	return e.Decide(ctx, host).ShouldApply
}

// Styles 返回决策及最终注入的 CSS，任何失败都退化为空 CSS
func (e *Engine) Styles(ctx context.Context, host string) domain.StyleResult {
	nh := hostname.Normalize(host)
	// 先取代数再读决策与设置，期间的失效会让本次结果不入缓存
	gen := e.css.Generation()
	d := e.Decide(ctx, nh)
	res := domain.StyleResult{Hostname: nh, Decision: d}

	if d.Reason == domain.ReasonGloballyDisabled || d.Reason == domain.ReasonError {
		return res
	}
	if css, ok := e.css.Get(cssKey(nh)); ok {
		res.CSS = css
		return res
	}

	css, err := e.render(ctx, nh, d)
	if err != nil {
		e.log.Err(err, "生成样式失败", "host", nh)
		return res
	}
	e.css.SetIf(gen, cssKey(nh), css)
	res.CSS = css
	return res
}

func (e *Engine) render(ctx context.Context, host string, d domain.Decision) (string, error) {
	switch {
	case d.ShouldApply && d.HasSpecificStyle:
		fs, ok := e.catalog.Get(host)
		if !ok {
			return "", nil
		}
		gs, err := e.settings.Global(ctx)
		if err != nil {
			return "", err
		}
		site, err := e.settings.Site(ctx, host)
		if err != nil {
			return "", err
		}
		return e.filter.Render(fs, host, gs, site, d.FallbackBackground), nil

	case d.ShouldApply:
		gs, err := e.settings.Global(ctx)
		if err != nil {
			return "", err
		}
		css := forcestyle.Generate(host, gs)
		if d.FallbackBackground {
			css += feature.FallbackCSS
		}
		return strings.TrimSpace(css), nil

	case d.FallbackBackground:
		return strings.TrimSpace(feature.FallbackCSS), nil
	}
	return "", nil
}

// Stats 返回引擎统计
func (e *Engine) Stats() domain.EngineStats {
	return domain.EngineStats{
		Sites:     e.catalog.Len(),
		Decisions: e.resolver.Stats(),
		Styles:    e.css.Stats(),
		TTLMillis: e.ttl.Milliseconds(),
	}
}

// cssKey 以分隔符结尾，避免前缀失效误伤更长的主机名
func cssKey(host string) string {
	return host + "|"
}
