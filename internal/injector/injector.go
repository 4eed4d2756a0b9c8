// Package injector 通过 DevTools 协议把样式注入浏览器页面
package injector

import (
	"context"
	"time"

	"zenstyle/internal/hostname"
	"zenstyle/internal/logger"
	"zenstyle/internal/pool"
	"zenstyle/pkg/domain"

	"github.com/google/uuid"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/protocol/runtime"
)

// Styler 为主机名计算样式
type Styler interface {
	Styles(ctx context.Context, host string) domain.StyleResult
}

// Options 注入器参数
type Options struct {
	DevToolsURL  string
	Concurrency  int
	PollInterval time.Duration
}

// Injector 监听页面导航并注入样式
type Injector struct {
	opts     Options
	styler   Styler
	painter  IconPainter
	pool     *pool.Pool
	sessions *sessions
	log      logger.Logger
}

// New 创建注入器，painter 为空时使用日志指示器
func New(opts Options, styler Styler, painter IconPainter, l logger.Logger) *Injector {
	if l == nil {
		l = logger.NewNop()
	}
	l = l.With("component", "injector")
	if painter == nil {
		painter = NewLogPainter(l)
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Injector{
		opts:     opts,
		styler:   styler,
		painter:  painter,
		pool:     pool.New(opts.Concurrency, 0, l),
		sessions: newSessions(l),
		log:      l,
	}
}

// Run 连接 DevTools 并持续同步页面目标，直到 ctx 结束。首次无法连接时返回错误。
func (in *Injector) Run(ctx context.Context) error {
	in.pool.Start(ctx)
	defer in.pool.Stop()
	defer in.sessions.detachAll()

	if err := in.sync(ctx); err != nil {
		return err
	}

	ticker := time.NewTicker(in.opts.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := in.sync(ctx); err != nil {
				in.log.Warn("同步页面目标失败", "error", err.Error())
			}
		}
	}
}

// Refresh 对全部已附加页面重新计算并注入样式
func (in *Injector) Refresh() {
	for _, s := range in.sessions.list() {
		in.schedule(s)
	}
}

// Stats 返回工作池统计
func (in *Injector) Stats() pool.Stats {
	return in.pool.Stats()
}

// sync 附加新出现的页面，断开已关闭的页面
func (in *Injector) sync(ctx context.Context) error {
	targets, err := devtool.New(in.opts.DevToolsURL).List(ctx)
	if err != nil {
		return err
	}

	seen := make(map[string]bool, len(targets))
	for _, t := range targets {
		if t == nil || t.Type != devtool.Page {
			continue
		}
		seen[t.ID] = true
		s, fresh, err := in.sessions.attach(ctx, t)
		if err != nil {
			in.log.Err(err, "附加页面失败", "target", t.ID)
			continue
		}
		if fresh {
			go in.watch(s)
		}
	}

	for _, s := range in.sessions.list() {
		if !seen[s.ID] {
			in.forget(s.ID)
		}
	}
	return nil
}

// watch 订阅顶层框架导航与 DOMContentLoaded，会话结束时退出
func (in *Injector) watch(s *Session) {
	defer in.forget(s.ID)
	ctx := s.Ctx

	if err := s.Client.Page.Enable(ctx); err != nil {
		in.log.Err(err, "启用 Page 域失败", "target", s.ID)
		return
	}
	nav, err := s.Client.Page.FrameNavigated(ctx)
	if err != nil {
		in.log.Err(err, "订阅导航事件失败", "target", s.ID)
		return
	}
	defer nav.Close()
	loaded, err := s.Client.Page.DOMContentEventFired(ctx)
	if err != nil {
		in.log.Err(err, "订阅 DOMContentLoaded 失败", "target", s.ID)
		return
	}
	defer loaded.Close()

	in.schedule(s)

	go func() {
		for {
			if _, err := loaded.Recv(); err != nil {
				return
			}
			in.schedule(s)
		}
	}()

	for {
		ev, err := nav.Recv()
		if err != nil {
			return
		}
		if ev.Frame.ParentID != nil {
			continue
		}
		s.SetURL(ev.Frame.URL)
		in.schedule(s)
	}
}

func (in *Injector) forget(id string) {
	if in.sessions.detach(id) {
		if f, ok := in.painter.(interface{ Forget(string) }); ok {
			f.Forget(id)
		}
	}
}

// schedule 为会话提交注入任务，非 http/https 页面忽略
func (in *Injector) schedule(s *Session) {
	host, ok := hostname.FromURL(s.URL())
	if !ok {
		return
	}
	in.pool.Submit(s.ID, func(ctx context.Context) {
		in.apply(ctx, s, host)
	})
}

func (in *Injector) apply(ctx context.Context, s *Session, host string) {
	if _, ok := in.sessions.get(s.ID); !ok {
		return
	}
	trace := uuid.NewString()
	start := time.Now()

	res := in.styler.Styles(ctx, host)
	reply, err := s.Client.Runtime.Evaluate(s.Ctx, runtime.NewEvaluateArgs(ApplyScript(res.CSS)))
	if err != nil {
		in.log.Err(err, "注入样式失败", "trace", trace, "target", s.ID, "host", host)
		return
	}
	if reply.ExceptionDetails != nil {
		in.log.Warn("注入脚本异常", "trace", trace, "target", s.ID, "host", host,
			"exception", reply.ExceptionDetails.Text)
	}

	in.painter.Paint(ctx, s.ID, host, res.Decision.ShouldApply)
	in.log.Debug("样式已同步", "trace", trace, "target", s.ID, "host", host,
		"reason", string(res.Decision.Reason), "bytes", len(res.CSS), "elapsed", time.Since(start))
}
