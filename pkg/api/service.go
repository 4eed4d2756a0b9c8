package api

import (
	"context"

	"zenstyle/internal/engine"
	"zenstyle/internal/logger"
	"zenstyle/internal/service"
	"zenstyle/internal/updater"
	"zenstyle/pkg/domain"
)

// Service 服务接口
type Service interface {
	// Decide 计算主机名的样式决策
	Decide(ctx context.Context, host string) (domain.Decision, error)

	// Explain 返回带模式描述的决策
	Explain(ctx context.Context, host string) (domain.Explanation, error)

	// Styles 返回决策及最终注入的 CSS
	Styles(ctx context.Context, host string) (domain.StyleResult, error)

	// GlobalSettings 读取全局设置
	GlobalSettings(ctx context.Context) (domain.GlobalSettings, error)

	// SetSetting 修改单个布尔设置
	SetSetting(ctx context.Context, key string, value bool) error

	// List 读取名单
	List(ctx context.Context, key domain.ListKey) ([]string, error)

	// SetMembership 加入或移出名单
	SetMembership(ctx context.Context, key domain.ListKey, host string, member bool) error

	// Site 读取站点特性开关
	Site(ctx context.Context, host string) (domain.SiteSettings, error)

	// SetSiteFeature 修改站点特性开关
	SetSiteFeature(ctx context.Context, host, feature string, enabled bool) error

	// ResetSite 清除站点特性开关，全部恢复启用
	ResetSite(ctx context.Context, host string) error

	// RefreshCatalog 立即拉取样式仓库
	RefreshCatalog(ctx context.Context) (*updater.Result, error)

	// ReloadCatalog 从存储重新加载样式目录
	ReloadCatalog(ctx context.Context) error

	// Stats 引擎统计信息
	Stats() domain.EngineStats

	// ClearCache 清空决策与样式缓存
	ClearCache()
}

// NewService 创建并返回服务接口实现
func NewService(e *engine.Engine, u *updater.Updater, l logger.Logger) Service {
	return service.New(e, u, l)
}
