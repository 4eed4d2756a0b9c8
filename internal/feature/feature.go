// Package feature 按全局开关与站点覆盖筛选站点特性并拼接最终 CSS
package feature

import (
	"strings"

	"zenstyle/internal/catalog"
	"zenstyle/internal/logger"
	"zenstyle/pkg/domain"
)

// Category 特性类别，由特性名的子串推断
type Category string

const (
	CategoryTransparency Category = "transparency"
	CategoryHover        Category = "hover"
	CategoryFooter       Category = "footer"
	CategoryGeneral      Category = "general"
)

// FallbackCSS 回退背景样式块，用于替代透明效果
const FallbackCSS = "\n/* ZenInternet: Fallback background for this site */\nhtml{\n    background-color: light-dark(#fff, #111);\n}\n"

// Classify 按 transparency、hover、footer 的顺序做大小写无关的子串匹配，首个命中即为类别
func Classify(name string) Category {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "transparency"):
		return CategoryTransparency
	case strings.Contains(n, "hover"):
		return CategoryHover
	case strings.Contains(n, "footer"):
		return CategoryFooter
	}
	return CategoryGeneral
}

// Skipped 判断特性是否应被跳过。
// 三类检查彼此独立，名称同时含多个类别子串时任一命中即跳过。
func Skipped(name string, gs domain.GlobalSettings, site domain.SiteSettings, fallback bool) bool {
	n := strings.ToLower(name)
	if strings.Contains(n, "transparency") && (gs.DisableTransparency || fallback) {
		return true
	}
	if strings.Contains(n, "hover") && gs.DisableHover {
		return true
	}
	if strings.Contains(n, "footer") && gs.DisableFooter {
		return true
	}
	return !site.Enabled(name)
}

// Filter 特性筛选器
type Filter struct {
	log logger.Logger
}

// NewFilter 创建特性筛选器
func NewFilter(l logger.Logger) *Filter {
	if l == nil {
		l = logger.NewNop()
	}
	return &Filter{log: l}
}

// Render 依目录顺序拼接未被跳过的特性 CSS，回退背景成员追加一次回退样式，结果去除首尾空白
func (f *Filter) Render(fs catalog.FeatureSet, host string, gs domain.GlobalSettings, site domain.SiteSettings, fallback bool) string {
	var b strings.Builder
	var skipped []string
	for _, ft := range fs {
		if Skipped(ft.Name, gs, site, fallback) {
			skipped = append(skipped, ft.Name)
			continue
		}
		b.WriteString(ft.CSS)
		b.WriteString("\n")
	}
	if fallback {
		b.WriteString(FallbackCSS)
	}
	if len(skipped) > 0 {
		f.log.Debug("跳过特性", "host", host, "features", skipped)
	}
	return strings.TrimSpace(b.String())
}

// Render 使用不记录日志的筛选器渲染
func Render(fs catalog.FeatureSet, host string, gs domain.GlobalSettings, site domain.SiteSettings, fallback bool) string {
	return defaultFilter.Render(fs, host, gs, site, fallback)
}

var defaultFilter = &Filter{log: logger.NewNop()}
