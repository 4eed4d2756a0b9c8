// Package store 定义持久化键值存储及其变更通知
package store

import (
	"context"
	"sync"

	"zenstyle/pkg/domain"
)

// AreaLocal 变更所属存储区
const AreaLocal = "local"

// 约定的存储键
const (
	KeySettings       = "transparentZenSettings"
	KeyStyles         = "styles"
	KeyRepositoryURL  = "stylesRepositoryUrl"
	siteSettingsInfix = "."
)

// SiteKey 返回站点设置的存储键
func SiteKey(host string) string {
	return KeySettings + siteSettingsInfix + host
}

// SiteFromKey 从存储键解析站点主机名，不是站点键时返回 false
func SiteFromKey(key string) (string, bool) {
	prefix := KeySettings + siteSettingsInfix
	if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
		return "", false
	}
	return key[len(prefix):], true
}

// IsListKey 判断是否为名单键
func IsListKey(key string) bool {
	return domain.ListKey(key).Valid()
}

// Change 单个键的变更，空字符串表示不存在
type Change struct {
	OldValue string `json:"oldValue,omitempty"`
	NewValue string `json:"newValue,omitempty"`
}

// Listener 变更回调
type Listener func(changes map[string]Change, area string)

// Store 键值存储，值为原始 JSON 文本
type Store interface {
	// Get 读取多个键，不存在的键不出现在结果中
	Get(ctx context.Context, keys ...string) (map[string]string, error)
	// Set 写入多个键，成功后通知变更
	Set(ctx context.Context, kvs map[string]string) error
	// Remove 删除多个键，成功后通知变更
	Remove(ctx context.Context, keys ...string) error
	// OnChange 注册变更回调
	OnChange(fn Listener)
}

// Notifier 变更回调的注册与同步分发
type Notifier struct {
	mu        sync.RWMutex
	listeners []Listener
}

// OnChange 注册回调
func (n *Notifier) OnChange(fn Listener) {
	if fn == nil {
		return
	}
	n.mu.Lock()
	n.listeners = append(n.listeners, fn)
	n.mu.Unlock()
}

// Notify 按注册顺序同步调用回调，changes 为空时不分发
func (n *Notifier) Notify(changes map[string]Change, area string) {
	if len(changes) == 0 {
		return
	}
	n.mu.RLock()
	ls := make([]Listener, len(n.listeners))
	copy(ls, n.listeners)
	n.mu.RUnlock()

	for _, fn := range ls {
		fn(changes, area)
	}
}

// Diff 计算写入前后的实际变更，值未变化的键不计入
func Diff(old, updated map[string]string) map[string]Change {
	changes := make(map[string]Change)
	for k, nv := range updated {
		if ov := old[k]; ov != nv {
			changes[k] = Change{OldValue: ov, NewValue: nv}
		}
	}
	return changes
}

// Removed 计算删除带来的变更
func Removed(old map[string]string) map[string]Change {
	changes := make(map[string]Change, len(old))
	for k, ov := range old {
		changes[k] = Change{OldValue: ov}
	}
	return changes
}
