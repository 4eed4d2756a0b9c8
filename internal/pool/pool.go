package pool

import (
	"context"
	"fmt"
	"sync"
	"time"

	"zenstyle/internal/logger"
)

// Job 工作池任务
type Job func(ctx context.Context)

// task 队列中的任务，key 非空时只执行同 key 下最新提交的一个
type task struct {
	key string
	gen uint64
	job Job
}

// Stats 工作池统计
type Stats struct {
	QueueLen   int   `json:"queueLen"`
	QueueCap   int   `json:"queueCap"`
	Submitted  int64 `json:"submitted"`
	Dropped    int64 `json:"dropped"`
	Superseded int64 `json:"superseded"`
	Panics     int64 `json:"panics"`
}

// Pool 固定数量 worker 的任务池。
// 同一 key（如同一个标签页）的任务排队时，旧任务在执行前被新任务取代。
type Pool struct {
	size        int
	queue       chan task
	queueCap    int
	log         logger.Logger
	mu          sync.Mutex
	latest      map[string]uint64 // key -> 最新提交的代数
	stats       Stats
	ctx         context.Context
	stopMonitor chan struct{}
	stopOnce    sync.Once
}

// New 创建工作池。size<=0 表示不限并发；queueCap<=0 时默认为 size*8
func New(size, queueCap int, l logger.Logger) *Pool {
	if l == nil {
		l = logger.NewNop()
	}
	p := &Pool{
		size:        size,
		log:         l.With("component", "pool"),
		latest:      make(map[string]uint64),
		ctx:         context.Background(),
		stopMonitor: make(chan struct{}),
	}
	if size <= 0 {
		return p
	}
	if queueCap <= 0 {
		queueCap = size * 8
	}
	p.queue = make(chan task, queueCap)
	p.queueCap = queueCap
	return p
}

// Start 启动 worker 与状态监控，ctx 结束时 worker 退出
func (p *Pool) Start(ctx context.Context) {
	p.mu.Lock()
	p.ctx = ctx
	p.mu.Unlock()

	if p.queue == nil {
		return
	}
	for i := 0; i < p.size; i++ {
		go p.worker(ctx)
	}
	go p.monitor(ctx)
}

// Stop 停止监控协程
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopMonitor) })
}

func (p *Pool) monitor(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopMonitor:
			return
		case <-ticker.C:
			s := p.Stats()
			if s.Submitted > 0 {
				usage := float64(s.QueueLen) / float64(s.QueueCap) * 100
				p.log.Info("工作池状态", "queueLen", s.QueueLen, "queueCap", s.QueueCap,
					"usage", fmt.Sprintf("%.1f%%", usage), "submitted", s.Submitted,
					"dropped", s.Dropped, "superseded", s.Superseded)
			}
		}
	}
}

func (p *Pool) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case t := <-p.queue:
			p.run(ctx, t)
		}
	}
}

// run 执行任务，已被取代的任务跳过，任务 panic 不影响 worker
func (p *Pool) run(ctx context.Context, t task) {
	if t.key != "" {
		p.mu.Lock()
		stale := p.latest[t.key] != t.gen
		if stale {
			p.stats.Superseded++
		} else {
			delete(p.latest, t.key)
		}
		p.mu.Unlock()
		if stale {
			return
		}
	}

	defer func() {
		if r := recover(); r != nil {
			p.mu.Lock()
			p.stats.Panics++
			p.mu.Unlock()
			p.log.Error("任务执行异常", "key", t.key, "panic", fmt.Sprint(r))
		}
	}()
	t.job(ctx)
}

// Submit 提交任务，队列已满时丢弃并返回 false
func (p *Pool) Submit(key string, job Job) bool {
	p.mu.Lock()
	p.stats.Submitted++
	t := task{key: key, job: job}
	if key != "" {
		t.gen = p.latest[key] + 1
		p.latest[key] = t.gen
	}
	ctx := p.ctx
	p.mu.Unlock()

	if p.queue == nil {
		go p.run(ctx, t)
		return true
	}

	select {
	case p.queue <- t:
		return true
	default:
		p.mu.Lock()
		p.stats.Dropped++
		dropped := p.stats.Dropped
		p.mu.Unlock()
		p.log.Warn("工作池队列已满，任务被丢弃", "key", key, "queueCap", p.queueCap, "dropped", dropped)
		return false
	}
}

// Stats 返回统计快照
func (p *Pool) Stats() Stats {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.stats
	s.QueueCap = p.queueCap
	if p.queue != nil {
		s.QueueLen = len(p.queue)
	}
	return s
}

// IsEnabled 是否启用了并发限制
func (p *Pool) IsEnabled() bool {
	return p.queue != nil
}
