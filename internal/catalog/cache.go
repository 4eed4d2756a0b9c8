package catalog

import (
	"sync"

	"zenstyle/internal/hostname"
	"zenstyle/internal/logger"
)

// Cache 样式目录的内存投影，启动时及目录变更时通过 Preload 重建
type Cache struct {
	mu       sync.RWMutex
	patterns []string              // 按目录顺序排列，用于最佳匹配的平局裁决
	sites    map[string]FeatureSet // 站点模式 -> 特性集
	log      logger.Logger
}

// NewCache 创建空的目录缓存
func NewCache(l logger.Logger) *Cache {
	if l == nil {
		l = logger.NewNop()
	}
	return &Cache{
		sites: make(map[string]FeatureSet),
		log:   l,
	}
}

// Preload 从持久化的目录 JSON 重建缓存。
// raw 为空表示尚无目录，缓存清空；格式错误时保留上一次有效内容并返回错误。
func (c *Cache) Preload(raw string) error {
	if raw == "" {
		c.Load(&Catalog{})
		c.log.Debug("样式目录为空，缓存已清空")
		return nil
	}

	cat, err := Parse(raw)
	if err != nil {
		c.log.Warn("样式目录格式错误，保留现有缓存", "error", err.Error(), "sites", c.Len())
		return err
	}
	c.Load(cat)
	c.log.Info("样式目录已加载", "sites", len(cat.Sites))
	return nil
}

// Load 使用已解析的目录替换缓存内容
func (c *Cache) Load(cat *Catalog) {
	patterns := make([]string, 0, len(cat.Sites))
	sites := make(map[string]FeatureSet, len(cat.Sites))
	for _, s := range cat.Sites {
		patterns = append(patterns, s.Pattern)
		sites[s.Pattern] = s.Features
	}

	c.mu.Lock()
	c.patterns = patterns
	c.sites = sites
	c.mu.Unlock()
}

// Has 判断主机名是否存在专属样式（精确、www 变体或模式匹配）
func (c *Cache) Has(host string) bool {
	_, _, ok := c.Lookup(host)
	return ok
}

// Get 返回主机名命中的特性集，查找顺序为精确、www 变体、最佳模式匹配
func (c *Cache) Get(host string) (FeatureSet, bool) {
	fs, _, ok := c.Lookup(host)
	return fs, ok
}

// Lookup 同 Get，额外返回命中的站点模式
func (c *Cache) Lookup(host string) (FeatureSet, string, bool) {
	nh := hostname.Normalize(host)

	c.mu.RLock()
	defer c.mu.RUnlock()

	if fs, ok := c.sites[nh]; ok {
		return fs, nh, true
	}
	if fs, ok := c.sites["www."+nh]; ok {
		return fs, "www." + nh, true
	}
	if m := hostname.FindBestMatch(nh, c.patterns); m != nil {
		return c.sites[m.Pattern], m.Pattern, true
	}
	return nil, "", false
}

// Sites 按目录顺序返回全部站点
func (c *Cache) Sites() []Site {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]Site, 0, len(c.patterns))
	for _, p := range c.patterns {
		out = append(out, Site{Pattern: p, Features: c.sites[p]})
	}
	return out
}

// Len 返回站点数量
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.patterns)
}
