// Package hostname 实现主机名规范化以及样式目录站点模式的匹配
package hostname

import (
	"net/url"
	"regexp"
	"strings"

	"zenstyle/pkg/domain"
)

const (
	wwwPrefix      = "www."
	wildcardPrefix = "+" // 匹配域名本身及其全部子域名
	tldPrefix      = "-" // 忽略主机名自身的顶级域后缀
)

var validHostname = regexp.MustCompile(`^[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9-]{0,61}[a-zA-Z0-9])?)*$`)

// Normalize 去掉一个前导 "www."
func Normalize(h string) string {
	return strings.TrimPrefix(h, wwwPrefix)
}

// Matches 判断主机名是否命中站点模式
func Matches(host, pattern string) bool {
	nh := Normalize(host)
	if nh == Normalize(pattern) {
		return true
	}

	switch {
	case strings.HasPrefix(pattern, wildcardPrefix):
		d := Normalize(pattern[len(wildcardPrefix):])
		return nh == d || strings.HasSuffix(nh, "."+d)

	case strings.HasPrefix(pattern, tldPrefix):
		d := Normalize(pattern[len(tldPrefix):])
		labels := strings.Split(nh, ".")
		if len(labels) < 2 {
			return false
		}
		withoutTLD := strings.Join(labels[:len(labels)-1], ".")
		// 模式本身可写成 "-example" 或 "-example.com"，两种写法都只比较去掉最后一段后的部分
		return withoutTLD == d || withoutTLD == stripLastLabel(d)
	}

	return false
}

// Match 最佳匹配结果
type Match struct {
	Pattern string           `json:"pattern"`
	Type    domain.MatchType `json:"matchType"`
}

// FindBestMatch 在模式列表中寻找最佳匹配。
// 精确命中立即返回；否则取去前缀后最长的模式，长度相同时保留先出现者。
func FindBestMatch(host string, patterns []string) *Match {
	nh := Normalize(host)

	var best *Match
	bestLen := 0
	for _, p := range patterns {
		if !Matches(host, p) {
			continue
		}

		np := Normalize(stripPatternPrefix(p))
		if np == nh {
			return &Match{Pattern: p, Type: domain.MatchExact}
		}

		if len(np) > bestLen {
			bestLen = len(np)
			best = &Match{Pattern: p, Type: patternType(p)}
		}
	}
	return best
}

// IsValid 基础主机名合法性校验
func IsValid(h string) bool {
	return h != "" && validHostname.MatchString(h)
}

// FromURL 从页面 URL 提取规范化主机名，仅接受 http/https
func FromURL(raw string) (string, bool) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	h := strings.ToLower(u.Hostname())
	if h == "" {
		return "", false
	}
	return Normalize(h), true
}

func stripPatternPrefix(p string) string {
	if strings.HasPrefix(p, wildcardPrefix) || strings.HasPrefix(p, tldPrefix) {
		return p[1:]
	}
	return p
}

func stripLastLabel(d string) string {
	i := strings.LastIndex(d, ".")
	if i <= 0 {
		return d
	}
	return d[:i]
}

func patternType(p string) domain.MatchType {
	switch {
	case strings.HasPrefix(p, wildcardPrefix):
		return domain.MatchWildcard
	case strings.HasPrefix(p, tldPrefix):
		return domain.MatchTLD
	default:
		return domain.MatchPartial
	}
}
