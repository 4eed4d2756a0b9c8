package pool_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"zenstyle/internal/pool"
)

func waitQueueEmpty(p *pool.Pool) {
	for i := 0; i < 50; i++ {
		if p.Stats().QueueLen == 0 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
}

// TestPool_Basic 验证任务能正常执行
func TestPool_Basic(t *testing.T) {
	p := pool.New(2, 50, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)
	defer p.Stop()

	var count int32
	wg := sync.WaitGroup{}
	numTasks := 20

	for i := 0; i < numTasks; i++ {
		wg.Add(1)
		ok := p.Submit("", func(context.Context) {
			atomic.AddInt32(&count, 1)
			wg.Done()
		})
		if !ok {
			t.Errorf("任务 %d 提交失败", i)
			wg.Done()
		}
	}

	wg.Wait()
	if atomic.LoadInt32(&count) != int32(numTasks) {
		t.Errorf("期望执行 %d 个任务, 实际执行 %d", numTasks, count)
	}
}

// TestPool_ConcurrencyLimit 验证并发数限制
func TestPool_ConcurrencyLimit(t *testing.T) {
	size := 3
	p := pool.New(size, 20, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	var active, maxActive int32
	wg := sync.WaitGroup{}
	block := make(chan struct{})

	for i := 0; i < 10; i++ {
		wg.Add(1)
		p.Submit("", func(context.Context) {
			defer wg.Done()
			current := atomic.AddInt32(&active, 1)
			for {
				prev := atomic.LoadInt32(&maxActive)
				if current <= prev || atomic.CompareAndSwapInt32(&maxActive, prev, current) {
					break
				}
			}
			<-block
			atomic.AddInt32(&active, -1)
		})
	}

	time.Sleep(100 * time.Millisecond)
	if got := atomic.LoadInt32(&maxActive); got != int32(size) {
		t.Errorf("期望最大并发数为 %d, 实际为 %d", size, got)
	}
	close(block)
	wg.Wait()
}

// TestPool_Drop 验证队列满时的丢弃策略
func TestPool_Drop(t *testing.T) {
	p := pool.New(1, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	block := make(chan struct{})
	defer close(block)
	wait := func(context.Context) { <-block }

	if !p.Submit("", wait) {
		t.Fatal("任务 A 提交失败")
	}
	waitQueueEmpty(p)

	if !p.Submit("", wait) {
		t.Fatal("任务 B 提交失败")
	}
	if p.Submit("", wait) {
		t.Error("任务 C 应该提交失败，但成功了")
	}

	s := p.Stats()
	if s.Submitted != 3 || s.Dropped != 1 {
		t.Errorf("统计不正确: %+v", s)
	}
}

// TestPool_Supersede 同一 key 排队中的旧任务被新任务取代
func TestPool_Supersede(t *testing.T) {
	p := pool.New(1, 8, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	block := make(chan struct{})
	p.Submit("", func(context.Context) { <-block })
	waitQueueEmpty(p)

	var mu sync.Mutex
	var ran []string
	done := make(chan struct{})
	p.Submit("tab-1", func(context.Context) {
		mu.Lock()
		ran = append(ran, "old")
		mu.Unlock()
	})
	p.Submit("tab-1", func(context.Context) {
		mu.Lock()
		ran = append(ran, "new")
		mu.Unlock()
		close(done)
	})
	close(block)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("最新任务未执行")
	}

	mu.Lock()
	defer mu.Unlock()
	if len(ran) != 1 || ran[0] != "new" {
		t.Errorf("执行记录 = %v, 只应执行最新任务", ran)
	}
	if p.Stats().Superseded != 1 {
		t.Errorf("取代计数 = %d", p.Stats().Superseded)
	}
}

// TestPool_PanicRecovered 任务 panic 后 worker 继续工作
func TestPool_PanicRecovered(t *testing.T) {
	p := pool.New(1, 4, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	p.Submit("", func(context.Context) { panic("boom") })
	done := make(chan struct{})
	p.Submit("", func(context.Context) { close(done) })

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("panic 后 worker 应继续处理任务")
	}
	if p.Stats().Panics != 1 {
		t.Errorf("panic 计数 = %d", p.Stats().Panics)
	}
}

// TestPool_Unbounded 验证 size=0 情况下的无限制模式
func TestPool_Unbounded(t *testing.T) {
	p := pool.New(0, 0, nil)
	if p.IsEnabled() {
		t.Error("size=0 时 IsEnabled 应该返回 false")
	}

	var count int32
	wg := sync.WaitGroup{}
	for i := 0; i < 50; i++ {
		wg.Add(1)
		p.Submit("", func(context.Context) {
			atomic.AddInt32(&count, 1)
			wg.Done()
		})
	}

	wg.Wait()
	if atomic.LoadInt32(&count) != 50 {
		t.Errorf("期望执行 50 个任务, 实际执行 %d", count)
	}
}

// TestPool_ContextCancel 验证 worker 随 context 取消而退出
func TestPool_ContextCancel(t *testing.T) {
	p := pool.New(2, 10, nil)
	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()
	time.Sleep(50 * time.Millisecond)

	taskRan := make(chan struct{})
	p.Submit("", func(context.Context) { close(taskRan) })

	select {
	case <-taskRan:
		t.Error("Worker 应该在 context 取消后停止处理任务")
	case <-time.After(100 * time.Millisecond):
	}
}
