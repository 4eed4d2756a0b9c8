package injector

import (
	"context"
	"sync"

	"zenstyle/internal/logger"
)

// IconPainter 根据样式是否生效更新目标的状态指示
type IconPainter interface {
	Paint(ctx context.Context, targetID, host string, active bool)
}

// LogPainter 以日志形式输出状态，仅在状态变化时记录
type LogPainter struct {
	mu    sync.Mutex
	state map[string]bool
	log   logger.Logger
}

// NewLogPainter 创建日志状态指示器
func NewLogPainter(l logger.Logger) *LogPainter {
	if l == nil {
		l = logger.NewNop()
	}
	return &LogPainter{state: make(map[string]bool), log: l}
}

// Paint 实现 IconPainter
func (p *LogPainter) Paint(_ context.Context, targetID, host string, active bool) {
	key := targetID + "|" + host
	p.mu.Lock()
	prev, seen := p.state[key]
	p.state[key] = active
	p.mu.Unlock()

	if seen && prev == active {
		return
	}
	p.log.Info("样式状态", "target", targetID, "host", host, "active", active)
}

// Active 返回最近一次记录的状态
func (p *LogPainter) Active(targetID, host string) (bool, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.state[targetID+"|"+host]
	return v, ok
}

// Forget 清除目标的全部状态
func (p *LogPainter) Forget(targetID string) {
	prefix := targetID + "|"
	p.mu.Lock()
	defer p.mu.Unlock()
	for k := range p.state {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix {
			delete(p.state, k)
		}
	}
}
