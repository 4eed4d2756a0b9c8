package service

import (
	"context"
	"strings"

	"zenstyle/internal/engine"
	"zenstyle/internal/hostname"
	"zenstyle/internal/logger"
	"zenstyle/internal/updater"
	"zenstyle/pkg/domain"
	"zenstyle/pkg/errx"
)

type svc struct {
	engine  *engine.Engine
	updater *updater.Updater
	log     logger.Logger
}

// New 创建并返回服务层实例，updater 为空时目录刷新不可用
func New(e *engine.Engine, u *updater.Updater, l logger.Logger) *svc {
	if l == nil {
		l = logger.NewNop()
	}
	return &svc{engine: e, updater: u, log: l}
}

// host 统一小写并去掉 www. 前缀，非法主机名直接报错
func host(raw string) (string, error) {
	h := hostname.Normalize(strings.ToLower(strings.TrimSpace(raw)))
	if !hostname.IsValid(h) {
		return "", errx.Wrap(errx.CodeInvalidHostname, domain.ErrInvalidHostname, "非法主机名: "+raw)
	}
	return h, nil
}

// Decide 计算主机名的样式决策
func (s *svc) Decide(ctx context.Context, raw string) (domain.Decision, error) {
	h, err := host(raw)
	if err != nil {
		return domain.Decision{}, err
	}
	return s.engine.Decide(ctx, h), nil
}

// Explain 返回带模式描述的决策
func (s *svc) Explain(ctx context.Context, raw string) (domain.Explanation, error) {
	h, err := host(raw)
	if err != nil {
		return domain.Explanation{}, err
	}
	return s.engine.Explain(ctx, h), nil
}

// Styles 返回决策及注入 CSS
func (s *svc) Styles(ctx context.Context, raw string) (domain.StyleResult, error) {
	h, err := host(raw)
	if err != nil {
		return domain.StyleResult{}, err
	}
	return s.engine.Styles(ctx, h), nil
}

func (s *svc) GlobalSettings(ctx context.Context) (domain.GlobalSettings, error) {
	return s.engine.Settings().Global(ctx)
}

func (s *svc) SetSetting(ctx context.Context, key string, value bool) error {
	if err := s.engine.Settings().SetSetting(ctx, key, value); err != nil {
		return err
	}
	s.log.Info("设置已更新", "key", key, "value", value)
	return nil
}

func (s *svc) List(ctx context.Context, key domain.ListKey) ([]string, error) {
	return s.engine.Settings().List(ctx, key)
}

// SetMembership 修改名单成员，主机名在 settings 层规范化
func (s *svc) SetMembership(ctx context.Context, key domain.ListKey, raw string, member bool) error {
	h, err := host(raw)
	if err != nil {
		return err
	}
	return s.engine.Settings().SetMembership(ctx, key, h, member)
}

func (s *svc) Site(ctx context.Context, raw string) (domain.SiteSettings, error) {
	h, err := host(raw)
	if err != nil {
		return nil, err
	}
	return s.engine.Settings().Site(ctx, h)
}

func (s *svc) SetSiteFeature(ctx context.Context, raw, feature string, enabled bool) error {
	h, err := host(raw)
	if err != nil {
		return err
	}
	return s.engine.Settings().SetSiteFeature(ctx, h, feature, enabled)
}

func (s *svc) ResetSite(ctx context.Context, raw string) error {
	h, err := host(raw)
	if err != nil {
		return err
	}
	return s.engine.Settings().ResetSite(ctx, h)
}

// RefreshCatalog 立即从仓库拉取样式目录
func (s *svc) RefreshCatalog(ctx context.Context) (*updater.Result, error) {
	if s.updater == nil {
		return nil, errx.Wrap(errx.CodeFetchFailed, domain.ErrFetchFailed, "未配置样式仓库拉取器")
	}
	return s.updater.Update(ctx)
}

// ReloadCatalog 从存储重新加载样式目录
func (s *svc) ReloadCatalog(ctx context.Context) error {
	return s.engine.Reload(ctx)
}

func (s *svc) Stats() domain.EngineStats {
	return s.engine.Stats()
}

func (s *svc) ClearCache() {
	s.engine.ClearCache()
	s.log.Debug("缓存已清空")
}
