package store

import (
	"context"
	"sync"
)

// Memory 进程内存储，不持久化
type Memory struct {
	Notifier
	mu   sync.RWMutex
	data map[string]string
}

// NewMemory 创建内存存储
func NewMemory() *Memory {
	return &Memory{data: make(map[string]string)}
}

// Get 实现 Store
func (m *Memory) Get(_ context.Context, keys ...string) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(keys))
	for _, k := range keys {
		if v, ok := m.data[k]; ok {
			out[k] = v
		}
	}
	return out, nil
}

// Set 实现 Store
func (m *Memory) Set(_ context.Context, kvs map[string]string) error {
	m.mu.Lock()
	old := make(map[string]string, len(kvs))
	for k, v := range kvs {
		if ov, ok := m.data[k]; ok {
			old[k] = ov
		}
		m.data[k] = v
	}
	m.mu.Unlock()

	m.Notify(Diff(old, kvs), AreaLocal)
	return nil
}

// Remove 实现 Store
func (m *Memory) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	old := make(map[string]string, len(keys))
	for _, k := range keys {
		if ov, ok := m.data[k]; ok {
			old[k] = ov
			delete(m.data, k)
		}
	}
	m.mu.Unlock()

	m.Notify(Removed(old), AreaLocal)
	return nil
}

var _ Store = (*Memory)(nil)
