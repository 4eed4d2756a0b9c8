// Package cache 带过期时间与容量上限的按主机名缓存
package cache

import (
	"container/list"
	"strings"
	"sync"
	"time"

	"zenstyle/internal/logger"
	"zenstyle/pkg/domain"
)

const (
	DefaultTTL      = 5 * time.Minute
	DefaultCapacity = 1000
)

// entry 缓存条目
type entry[V any] struct {
	key      string
	value    V
	storedAt time.Time
}

// Cache 按插入顺序淘汰的 TTL 缓存。
// 满容量时淘汰最早插入的条目，不按访问顺序调整。
type Cache[V any] struct {
	mu       sync.Mutex
	ttl      time.Duration
	capacity int
	order    *list.List               // 插入顺序，Front 为最早
	items    map[string]*list.Element // key -> order 中的节点
	hits     int64
	misses   int64
	gen      uint64 // 每次失效递增
	now      func() time.Time
	log      logger.Logger
	done     chan struct{}
	stopOnce sync.Once
}

// Option 缓存选项
type Option func(*options)

type options struct {
	now func() time.Time
	log logger.Logger
}

// WithClock 指定时钟，测试使用
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithLogger 指定日志
func WithLogger(l logger.Logger) Option {
	return func(o *options) { o.log = l }
}

// New 创建缓存，非正数的 ttl 与 capacity 使用默认值
func New[V any](ttl time.Duration, capacity int, opts ...Option) *Cache[V] {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.log == nil {
		o.log = logger.NewNop()
	}
	return &Cache[V]{
		ttl:      ttl,
		capacity: capacity,
		order:    list.New(),
		items:    make(map[string]*list.Element),
		now:      o.now,
		log:      o.log,
		done:     make(chan struct{}),
	}
}

// Get 获取未过期的值，过期条目视为未命中并被移除
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		c.misses++
		return zero, false
	}
	e := el.Value.(*entry[V])
	if c.now().Sub(e.storedAt) >= c.ttl {
		c.removeElement(el)
		c.misses++
		return zero, false
	}
	c.hits++
	return e.value, true
}

// Generation 返回当前失效代数，计算值之前读取，配合 SetIf 使用
func (c *Cache[V]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen
}

// SetIf 仅当 gen 之后没有发生失效时写入，返回是否写入。
// 失效前读取的数据算出的值不能在失效后进入缓存。
func (c *Cache[V]) SetIf(gen uint64, key string, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.gen {
		return false
	}
	c.set(key, value)
	return true
}

// Set 写入值并刷新时间戳，达到容量时先淘汰最早插入的条目
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.set(key, value)
}

func (c *Cache[V]) set(key string, value V) {
	if el, ok := c.items[key]; ok {
		c.removeElement(el)
	}
	if c.order.Len() >= c.capacity {
		if oldest := c.order.Front(); oldest != nil {
			c.removeElement(oldest)
		}
	}
	el := c.order.PushBack(&entry[V]{key: key, value: value, storedAt: c.now()})
	c.items[key] = el
}

// Invalidate 移除所有以 prefix 开头的键，返回移除数量。
// 无论是否移除条目都会递增代数，正在计算的同前缀值随之作废。
func (c *Cache[V]) Invalidate(prefix string) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	n := 0
	for key, el := range c.items {
		if strings.HasPrefix(key, prefix) {
			c.removeElement(el)
			n++
		}
	}
	return n
}

// InvalidateAll 清空缓存
func (c *Cache[V]) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	c.order.Init()
	c.items = make(map[string]*list.Element)
}

// CleanExpired 移除全部过期条目，返回移除数量
func (c *Cache[V]) CleanExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for el := c.order.Front(); el != nil; {
		next := el.Next()
		if now.Sub(el.Value.(*entry[V]).storedAt) >= c.ttl {
			c.removeElement(el)
			n++
		}
		el = next
	}
	return n
}

// Len 返回当前条目数（含尚未清理的过期条目）
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// TTL 返回过期时间
func (c *Cache[V]) TTL() time.Duration { return c.ttl }

// Stats 返回缓存统计
func (c *Cache[V]) Stats() domain.CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return domain.CacheStats{
		Size:     c.order.Len(),
		Capacity: c.capacity,
		Hits:     c.hits,
		Misses:   c.misses,
	}
}

// StartCleanup 启动后台定期清理过期条目，调用 Stop 结束
func (c *Cache[V]) StartCleanup(interval time.Duration) {
	if interval <= 0 {
		interval = c.ttl
	}
	go c.cleanupLoop(interval)
}

// Stop 停止后台清理
func (c *Cache[V]) Stop() {
	c.stopOnce.Do(func() { close(c.done) })
}

func (c *Cache[V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			if n := c.CleanExpired(); n > 0 {
				c.log.Debug("清理过期缓存条目", "count", n)
			}
		}
	}
}

func (c *Cache[V]) removeElement(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*entry[V]).key)
}
