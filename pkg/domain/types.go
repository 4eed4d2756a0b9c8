package domain

// GlobalSettings 全局设置（持久化为单个 JSON 对象）
type GlobalSettings struct {
	EnableStyling       bool   `json:"enableStyling"`       // 总开关
	AutoUpdate          bool   `json:"autoUpdate"`          // 自动拉取样式仓库
	ForceStyling        bool   `json:"forceStyling"`        // 对无专属样式的站点应用通用样式
	WhitelistMode       bool   `json:"whitelistMode"`       // 强制样式名单的极性（true 为白名单）
	WhitelistStyleMode  bool   `json:"whitelistStyleMode"`  // 常规样式名单的极性（true 为白名单）
	DisableTransparency bool   `json:"disableTransparency"` // 全局禁用透明类特性
	DisableHover        bool   `json:"disableHover"`        // 全局禁用悬停类特性
	DisableFooter       bool   `json:"disableFooter"`       // 全局禁用页脚类特性
	LastFetchedTime     *int64 `json:"lastFetchedTime"`     // 上次拉取时间（毫秒时间戳）
}

// SiteSettings 站点级特性开关，缺失的键视为启用
type SiteSettings map[string]bool

// Enabled 判断特性是否启用，仅显式 false 表示禁用
func (s SiteSettings) Enabled(feature string) bool {
	v, ok := s[feature]
	return !ok || v
}

// ListKey 成员名单的存储键
type ListKey string

const (
	ListSkipTheming        ListKey = "skipThemingList"
	ListSkipForceTheming   ListKey = "skipForceThemingList"
	ListFallbackBackground ListKey = "fallbackBackgroundList"
)

// ListKeys 返回全部名单键
func ListKeys() []ListKey {
	return []ListKey{ListSkipTheming, ListSkipForceTheming, ListFallbackBackground}
}

// Valid 判断是否为已知名单
func (k ListKey) Valid() bool {
	switch k {
	case ListSkipTheming, ListSkipForceTheming, ListFallbackBackground:
		return true
	}
	return false
}

// Snapshot 一次决策所需的设置与名单快照
type Snapshot struct {
	Settings           GlobalSettings
	SkipTheming        []string
	SkipForceTheming   []string
	FallbackBackground []string
}

// Reason 决策原因
type Reason string

const (
	ReasonGloballyDisabled           Reason = "globally_disabled"
	ReasonWhitelistedSpecific        Reason = "whitelisted_specific"
	ReasonWhitelistNotIncluded       Reason = "whitelist_not_included"
	ReasonSpecificThemeAvailable     Reason = "specific_theme_available"
	ReasonBlacklistSkipped           Reason = "blacklist_skipped"
	ReasonForcedWhitelistEnabled     Reason = "forced_whitelist_enabled"
	ReasonForcedWhitelistNotIncluded Reason = "forced_whitelist_not_included"
	ReasonForcedStylingEnabled       Reason = "forced_styling_enabled"
	ReasonForcedBlacklistSkipped     Reason = "forced_blacklist_skipped"
	ReasonNoStylingRules             Reason = "no_styling_rules"
	ReasonError                      Reason = "error"
)

// Decision 样式决策结果，由设置、名单和样式目录推导，不持久化
type Decision struct {
	ShouldApply        bool   `json:"shouldApply"`
	Reason             Reason `json:"reason"`
	HasSpecificStyle   bool   `json:"hasSpecificStyle"`
	FallbackBackground bool   `json:"fallbackBackground"`
}

// ModeDescription 两条名单轴的模式描述
type ModeDescription struct {
	ForceMode      string `json:"forceMode"` // whitelist / blacklist
	StyleMode      string `json:"styleMode"` // whitelist / blacklist
	ForcingEnabled bool   `json:"forcingEnabled"`
	StylingEnabled bool   `json:"stylingEnabled"`
}

// Explanation 带模式描述的完整决策
type Explanation struct {
	Decision
	Settings ModeDescription `json:"settings"`
	Hostname string          `json:"hostname"`
}

// StyleResult 决策及最终注入的 CSS
type StyleResult struct {
	Hostname string   `json:"hostname"`
	Decision Decision `json:"decision"`
	CSS      string   `json:"css"`
}

// MatchType 站点模式匹配类型
type MatchType string

const (
	MatchExact    MatchType = "exact"
	MatchWildcard MatchType = "wildcard"
	MatchTLD      MatchType = "tld"
	MatchPartial  MatchType = "partial"
)

// CacheStats 缓存统计信息
type CacheStats struct {
	Size     int   `json:"size"`
	Capacity int   `json:"capacity"`
	Hits     int64 `json:"hits"`
	Misses   int64 `json:"misses"`
}

// EngineStats 引擎统计信息
type EngineStats struct {
	Sites     int        `json:"sites"`
	Decisions CacheStats `json:"decisions"`
	Styles    CacheStats `json:"styles"`
	TTLMillis int64      `json:"ttlMillis"`
}
