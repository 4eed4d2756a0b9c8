// Package catalog 解析远端样式目录并维护站点模式到特性集的内存投影
package catalog

import (
	"zenstyle/pkg/domain"
	"zenstyle/pkg/errx"

	"github.com/tidwall/gjson"
)

// Feature 一个可独立开关的 CSS 片段
type Feature struct {
	Name string `json:"name"`
	CSS  string `json:"css"`
}

// FeatureSet 站点的特性集合，保持目录中的原始顺序
type FeatureSet []Feature

// Names 返回全部特性名
func (fs FeatureSet) Names() []string {
	names := make([]string, len(fs))
	for i, f := range fs {
		names[i] = f.Name
	}
	return names
}

// Site 目录中的一个站点条目
type Site struct {
	Pattern  string     `json:"pattern"`
	Features FeatureSet `json:"features"`
}

// Catalog 解析后的样式目录，Sites 保持 JSON 中的键顺序
type Catalog struct {
	Sites []Site
}

// Parse 解析目录 JSON，要求顶层为对象且 website 字段为对象。
// 值不是对象的站点条目会被跳过，值不是字符串的特性同样跳过。
func Parse(raw string) (*Catalog, error) {
	if !gjson.Valid(raw) {
		return nil, errx.Wrap(errx.CodeInvalidCatalog, domain.ErrInvalidCatalog, "目录不是合法 JSON")
	}
	root := gjson.Parse(raw)
	if !root.IsObject() {
		return nil, errx.Wrap(errx.CodeInvalidCatalog, domain.ErrInvalidCatalog, "目录顶层不是对象")
	}
	website := root.Get("website")
	if !website.IsObject() {
		return nil, errx.Wrap(errx.CodeInvalidCatalog, domain.ErrInvalidCatalog, "缺少 website 对象")
	}

	c := &Catalog{}
	index := make(map[string]int)
	website.ForEach(func(key, value gjson.Result) bool {
		if !value.IsObject() {
			return true
		}
		site := Site{Pattern: key.String(), Features: parseFeatures(value)}
		// 重复键以后者为准，位置保持首次出现处
		if i, ok := index[site.Pattern]; ok {
			c.Sites[i] = site
			return true
		}
		index[site.Pattern] = len(c.Sites)
		c.Sites = append(c.Sites, site)
		return true
	})
	return c, nil
}

func parseFeatures(obj gjson.Result) FeatureSet {
	fs := make(FeatureSet, 0)
	index := make(map[string]int)
	obj.ForEach(func(key, value gjson.Result) bool {
		if value.Type != gjson.String {
			return true
		}
		f := Feature{Name: key.String(), CSS: value.String()}
		if i, ok := index[f.Name]; ok {
			fs[i] = f
			return true
		}
		index[f.Name] = len(fs)
		fs = append(fs, f)
		return true
	})
	return fs
}

// Validate 拉取后入库前的最小结构校验：
// 顶层为对象，website 为非空对象，且其第一个条目的值也是对象
func Validate(raw string) error {
	if !gjson.Valid(raw) {
		return errx.Wrap(errx.CodeInvalidCatalog, domain.ErrInvalidCatalog, "目录不是合法 JSON")
	}
	website := gjson.Get(raw, "website")
	if !website.IsObject() {
		return errx.Wrap(errx.CodeInvalidCatalog, domain.ErrInvalidCatalog, "缺少 website 对象")
	}

	var first gjson.Result
	found := false
	website.ForEach(func(_, value gjson.Result) bool {
		first = value
		found = true
		return false
	})
	if !found {
		return errx.Wrap(errx.CodeInvalidCatalog, domain.ErrInvalidCatalog, "website 为空")
	}
	if !first.IsObject() {
		return errx.Wrap(errx.CodeInvalidCatalog, domain.ErrInvalidCatalog, "website 条目不是对象")
	}
	return nil
}
