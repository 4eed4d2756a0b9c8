// Package resolver 根据设置、名单与样式目录决定主机名是否应用样式
package resolver

import (
	"context"

	"zenstyle/internal/cache"
	"zenstyle/internal/hostname"
	"zenstyle/internal/logger"
	"zenstyle/pkg/domain"

	"github.com/samber/lo"
)

// SnapshotSource 提供决策所需的设置与名单
type SnapshotSource interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

// StyleIndex 判断主机名是否有专属样式
type StyleIndex interface {
	Has(host string) bool
}

// Evaluate 对给定快照计算决策，host 需已规范化。
// 有专属样式时只看常规名单，不回落到强制样式。
func Evaluate(snap domain.Snapshot, host string, hasSpecific bool) domain.Decision {
	gs := snap.Settings
	if !gs.EnableStyling {
		return domain.Decision{ShouldApply: false, Reason: domain.ReasonGloballyDisabled}
	}

	d := domain.Decision{
		HasSpecificStyle:   hasSpecific,
		FallbackBackground: lo.Contains(snap.FallbackBackground, host),
	}

	switch {
	case hasSpecific:
		listed := lo.Contains(snap.SkipTheming, host)
		if gs.WhitelistStyleMode {
			d.ShouldApply = listed
			d.Reason = pick(listed, domain.ReasonWhitelistedSpecific, domain.ReasonWhitelistNotIncluded)
		} else {
			d.ShouldApply = !listed
			d.Reason = pick(!listed, domain.ReasonSpecificThemeAvailable, domain.ReasonBlacklistSkipped)
		}
	case gs.ForceStyling:
		listed := lo.Contains(snap.SkipForceTheming, host)
		if gs.WhitelistMode {
			d.ShouldApply = listed
			d.Reason = pick(listed, domain.ReasonForcedWhitelistEnabled, domain.ReasonForcedWhitelistNotIncluded)
		} else {
			d.ShouldApply = !listed
			d.Reason = pick(!listed, domain.ReasonForcedStylingEnabled, domain.ReasonForcedBlacklistSkipped)
		}
	default:
		d.Reason = domain.ReasonNoStylingRules
	}
	return d
}

func pick(ok bool, yes, no domain.Reason) domain.Reason {
	if ok {
		return yes
	}
	return no
}

// Describe 描述两条名单轴当前的模式
func Describe(gs domain.GlobalSettings) domain.ModeDescription {
	return domain.ModeDescription{
		ForceMode:      polarity(gs.WhitelistMode),
		StyleMode:      polarity(gs.WhitelistStyleMode),
		ForcingEnabled: gs.ForceStyling,
		StylingEnabled: gs.EnableStyling,
	}
}

func polarity(whitelist bool) string {
	if whitelist {
		return "whitelist"
	}
	return "blacklist"
}

// Resolver 带缓存的决策器
type Resolver struct {
	src    SnapshotSource
	styles StyleIndex
	cache  *cache.Cache[domain.Decision]
	log    logger.Logger
}

// New 创建决策器，c 为空时使用默认参数的缓存
func New(src SnapshotSource, styles StyleIndex, c *cache.Cache[domain.Decision], l logger.Logger) *Resolver {
	if l == nil {
		l = logger.NewNop()
	}
	if c == nil {
		c = cache.New[domain.Decision](0, 0)
	}
	return &Resolver{
		src:    src,
		styles: styles,
		cache:  c,
		log:    l.With("component", "resolver"),
	}
}

// Decide 返回主机名的决策。读取失败时返回 reason=error 且不缓存。
func (r *Resolver) Decide(ctx context.Context, host string) domain.Decision {
	nh := hostname.Normalize(host)
	if d, ok := r.cache.Get(nh); ok {
		return d
	}

	gen := r.cache.Generation()
	snap, err := r.src.Snapshot(ctx)
	if err != nil {
		r.log.Err(err, "读取设置失败", "host", nh)
		return domain.Decision{ShouldApply: false, Reason: domain.ReasonError}
	}

	d := Evaluate(snap, nh, r.styles.Has(nh))
	if !r.cache.SetIf(gen, nh, d) {
		r.log.Debug("决策计算期间缓存已失效，结果不缓存", "host", nh)
	}
	r.log.Debug("样式决策", "host", nh, "apply", d.ShouldApply, "reason", string(d.Reason))
	return d
}

// Explain 返回决策及模式描述，设置读取失败时模式描述为空
func (r *Resolver) Explain(ctx context.Context, host string) domain.Explanation {
	nh := hostname.Normalize(host)
	exp := domain.Explanation{
		Decision: r.Decide(ctx, nh),
		Hostname: nh,
	}
	if snap, err := r.src.Snapshot(ctx); err == nil {
		exp.Settings = Describe(snap.Settings)
	}
	return exp
}

// Invalidate 清空全部决策缓存
func (r *Resolver) Invalidate() {
	r.cache.InvalidateAll()
}

// Stats 决策缓存统计
func (r *Resolver) Stats() domain.CacheStats {
	return r.cache.Stats()
}
