// Package updater 定期从远端仓库拉取样式目录
package updater

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"zenstyle/internal/catalog"
	"zenstyle/internal/logger"
	"zenstyle/internal/settings"
	"zenstyle/pkg/domain"
	"zenstyle/pkg/errx"

	"github.com/tidwall/gjson"
)

const (
	DefaultInterval = 2 * time.Hour
	DefaultTimeout  = 30 * time.Second
	maxCatalogBytes = 32 << 20
)

// Result 一次成功拉取的结果
type Result struct {
	URL       string    `json:"url"`
	Sites     int       `json:"sites"`
	Bytes     int       `json:"bytes"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Updater 样式目录拉取器，同一时刻最多一个拉取在进行
type Updater struct {
	m        *settings.Manager
	client   *http.Client
	interval time.Duration
	now      func() time.Time
	log      logger.Logger
	updating atomic.Bool
}

// Option 拉取器选项
type Option func(*Updater)

// WithHTTPClient 指定 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(u *Updater) { u.client = c }
}

// WithInterval 指定拉取间隔
func WithInterval(d time.Duration) Option {
	return func(u *Updater) {
		if d > 0 {
			u.interval = d
		}
	}
}

// WithClock 指定时钟
func WithClock(now func() time.Time) Option {
	return func(u *Updater) { u.now = now }
}

// New 创建拉取器
func New(m *settings.Manager, l logger.Logger, opts ...Option) *Updater {
	if l == nil {
		l = logger.NewNop()
	}
	u := &Updater{
		m:        m,
		client:   &http.Client{Timeout: DefaultTimeout},
		interval: DefaultInterval,
		now:      time.Now,
		log:      l.With("component", "updater"),
	}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// Update 拉取、校验并保存目录。已有拉取在进行时返回 ErrUpdateInProgress。
// 目录保存后由存储变更通知触发缓存重建。
func (u *Updater) Update(ctx context.Context) (*Result, error) {
	if !u.updating.CompareAndSwap(false, true) {
		return nil, errx.Wrap(errx.CodeUpdateInProgress, domain.ErrUpdateInProgress, "已有拉取在进行")
	}
	defer u.updating.Store(false)

	repoURL, err := u.m.RepositoryURL(ctx)
	if err != nil {
		return nil, err
	}
	u.log.Info("开始拉取样式目录", "url", repoURL)

	raw, err := u.fetch(ctx, repoURL)
	if err != nil {
		u.log.Err(err, "拉取样式目录失败", "url", repoURL)
		return nil, err
	}
	if err := catalog.Validate(raw); err != nil {
		u.log.Warn("样式目录校验失败，保留现有目录", "url", repoURL, "error", err.Error())
		return nil, err
	}

	if err := u.m.SaveCatalog(ctx, raw); err != nil {
		return nil, err
	}
	now := u.now()
	if err := u.m.TouchLastFetched(ctx, now); err != nil {
		u.log.Warn("记录拉取时间失败", "error", err.Error())
	}

	res := &Result{
		URL:       repoURL,
		Sites:     countKeys(gjson.Get(raw, "website")),
		Bytes:     len(raw),
		FetchedAt: now,
	}
	u.log.Info("样式目录已更新", "sites", res.Sites, "bytes", res.Bytes)
	return res, nil
}

func (u *Updater) fetch(ctx context.Context, repoURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, repoURL, nil)
	if err != nil {
		return "", errx.Wrap(errx.CodeFetchFailed, err, "构造请求失败")
	}
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Accept", "application/json")

	resp, err := u.client.Do(req)
	if err != nil {
		return "", errx.Wrap(errx.CodeFetchFailed, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err), "请求失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errx.Wrap(errx.CodeFetchFailed, domain.ErrFetchFailed, fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes))
	if err != nil {
		return "", errx.Wrap(errx.CodeFetchFailed, fmt.Errorf("%w: %v", domain.ErrFetchFailed, err), "读取响应失败")
	}
	return string(body), nil
}

// Run 启动时立即尝试一次，之后按固定间隔拉取，直到 ctx 结束。
// 每次尝试前检查 autoUpdate，失败不重试，等待下一个周期。
func (u *Updater) Run(ctx context.Context) {
	u.tick(ctx)

	ticker := time.NewTicker(u.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			u.tick(ctx)
		}
	}
}

func (u *Updater) tick(ctx context.Context) {
	gs, err := u.m.Global(ctx)
	if err != nil {
		u.log.Err(err, "读取设置失败，跳过本次拉取")
		return
	}
	if !gs.AutoUpdate {
		return
	}
	if _, err := u.Update(ctx); err != nil && !errx.Is(err, errx.CodeUpdateInProgress) {
		u.log.Warn("自动拉取失败，等待下个周期", "error", err.Error())
	}
}

// LastUpdate 返回上次拉取时间，从未拉取时为 nil
func (u *Updater) LastUpdate(ctx context.Context) (*time.Time, error) {
	gs, err := u.m.Global(ctx)
	if err != nil {
		return nil, err
	}
	if gs.LastFetchedTime == nil || *gs.LastFetchedTime <= 0 {
		return nil, nil
	}
	t := time.UnixMilli(*gs.LastFetchedTime)
	return &t, nil
}

// FormatSince 将上次拉取时间格式化为相对描述
func FormatSince(t *time.Time, now time.Time) string {
	if t == nil {
		return "Never"
	}
	d := now.Sub(*t)
	minutes := int(d / time.Minute)
	hours := minutes / 60
	days := hours / 24

	switch {
	case minutes < 1:
		return "Just now"
	case minutes < 60:
		return plural(minutes, "minute")
	case hours < 24:
		return plural(hours, "hour")
	case days < 7:
		return plural(days, "day")
	}
	return t.Format("2006-01-02")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("1 %s ago", unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}

func countKeys(obj gjson.Result) int {
	n := 0
	obj.ForEach(func(_, _ gjson.Result) bool {
		n++
		return true
	})
	return n
}
