package engine_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"zenstyle/internal/engine"
	"zenstyle/internal/feature"
	"zenstyle/internal/settings"
	"zenstyle/internal/store"
	"zenstyle/pkg/domain"
)

const exampleCatalog = `{"website":{"+example.com":{"transparency-bg":"body{background:transparent}","hover-nav":"nav:hover{}"}}}`

func setup(t *testing.T, catalogRaw string) (*engine.Engine, *settings.Manager) {
	t.Helper()
	st := store.NewMemory()
	m := settings.New(st, nil)
	ctx := context.Background()
	if catalogRaw != "" {
		if err := m.SaveCatalog(ctx, catalogRaw); err != nil {
			t.Fatalf("保存目录失败: %v", err)
		}
	}
	e := engine.New(m, engine.Options{}, nil)
	if err := e.Start(ctx); err != nil {
		t.Fatalf("启动引擎失败: %v", err)
	}
	t.Cleanup(e.Close)
	return e, m
}

func TestStyles_Specific(t *testing.T) {
	e, _ := setup(t, `{"website":{"+example.com":{"transparency-bg":"body{background:transparent}"}}}`)
	ctx := context.Background()

	res := e.Styles(ctx, "sub.example.com")
	if !res.Decision.ShouldApply || !res.Decision.HasSpecificStyle {
		t.Fatalf("决策 = %+v", res.Decision)
	}
	if res.CSS != "body{background:transparent}" {
		t.Errorf("CSS = %q", res.CSS)
	}
}

func TestStyles_BlacklistSkipped(t *testing.T) {
	e, m := setup(t, exampleCatalog)
	ctx := context.Background()

	_ = e.Styles(ctx, "example.com")
	if err := m.SetMembership(ctx, domain.ListSkipTheming, "example.com", true); err != nil {
		t.Fatalf("修改名单失败: %v", err)
	}

	res := e.Styles(ctx, "example.com")
	if res.Decision.ShouldApply || res.Decision.Reason != domain.ReasonBlacklistSkipped {
		t.Errorf("名单变更后决策应立即生效: %+v", res.Decision)
	}
	if res.CSS != "" {
		t.Errorf("跳过时不应有 CSS: %q", res.CSS)
	}
}

func TestStyles_PolarityFlipInvalidates(t *testing.T) {
	e, m := setup(t, exampleCatalog)
	ctx := context.Background()

	if !e.IsActive(ctx, "example.com") {
		t.Fatal("黑名单模式下未列入应启用")
	}
	if err := m.SetSetting(ctx, "whitelistStyleMode", true); err != nil {
		t.Fatalf("修改设置失败: %v", err)
	}
	if e.IsActive(ctx, "example.com") {
		t.Error("切换为白名单后应立即停用")
	}
}

func TestStyles_SiteFeatureInvalidatesCSS(t *testing.T) {
	e, m := setup(t, exampleCatalog)
	ctx := context.Background()

	before := e.Styles(ctx, "example.com").CSS
	if !strings.Contains(before, "nav:hover{}") {
		t.Fatalf("CSS 应包含悬停特性: %q", before)
	}
	if err := m.SetSiteFeature(ctx, "example.com", "hover-nav", false); err != nil {
		t.Fatalf("修改站点设置失败: %v", err)
	}
	after := e.Styles(ctx, "example.com").CSS
	if after != "body{background:transparent}" {
		t.Errorf("站点设置变更后 CSS = %q", after)
	}
}

func TestStyles_GlobalFeatureDisable(t *testing.T) {
	e, m := setup(t, exampleCatalog)
	ctx := context.Background()

	_ = e.Styles(ctx, "example.com")
	_ = m.SetSetting(ctx, "disableTransparency", true)
	if css := e.Styles(ctx, "example.com").CSS; css != "nav:hover{}" {
		t.Errorf("禁用透明后 CSS = %q", css)
	}
}

func TestStyles_Forced(t *testing.T) {
	e, m := setup(t, exampleCatalog)
	ctx := context.Background()

	res := e.Styles(ctx, "other.org")
	if res.Decision.Reason != domain.ReasonNoStylingRules || res.CSS != "" {
		t.Fatalf("无规则时 = %+v", res)
	}

	_ = m.SetSetting(ctx, "forceStyling", true)
	_ = m.SetMembership(ctx, domain.ListFallbackBackground, "other.org", true)

	res = e.Styles(ctx, "other.org")
	if res.Decision.Reason != domain.ReasonForcedStylingEnabled {
		t.Fatalf("决策 = %+v", res.Decision)
	}
	if !strings.Contains(res.CSS, "Force styling for other.org") {
		t.Error("应包含强制样式")
	}
	if strings.Count(res.CSS, "Fallback background") != 1 {
		t.Error("回退背景成员应追加一次回退样式")
	}
}

func TestStyles_FallbackOnly(t *testing.T) {
	e, m := setup(t, exampleCatalog)
	ctx := context.Background()
	_ = m.SetMembership(ctx, domain.ListFallbackBackground, "other.org", true)

	res := e.Styles(ctx, "other.org")
	if res.Decision.ShouldApply {
		t.Fatal("无规则时不应应用样式")
	}
	if res.CSS != strings.TrimSpace(feature.FallbackCSS) {
		t.Errorf("CSS = %q", res.CSS)
	}
}

func TestStyles_GloballyDisabled(t *testing.T) {
	e, m := setup(t, exampleCatalog)
	ctx := context.Background()
	_ = m.SetMembership(ctx, domain.ListFallbackBackground, "example.com", true)
	_ = m.SetSetting(ctx, "enableStyling", false)

	res := e.Styles(ctx, "example.com")
	if res.Decision.Reason != domain.ReasonGloballyDisabled || res.CSS != "" {
		t.Errorf("总开关关闭时 = %+v", res)
	}
}

func TestCatalogChangeReloads(t *testing.T) {
	e, m := setup(t, "")
	ctx := context.Background()

	if e.Decide(ctx, "example.com").HasSpecificStyle {
		t.Fatal("空目录不应有专属样式")
	}
	if err := m.SaveCatalog(ctx, exampleCatalog); err != nil {
		t.Fatalf("保存目录失败: %v", err)
	}
	if !e.Decide(ctx, "example.com").HasSpecificStyle {
		t.Error("目录变更后应立即重建缓存")
	}
	if e.Stats().Sites != 1 {
		t.Errorf("站点数 = %d", e.Stats().Sites)
	}

	// 损坏的目录保留上一次有效内容
	_ = m.SaveCatalog(ctx, `{"nope":1}`)
	if !e.Decide(ctx, "example.com").HasSpecificStyle {
		t.Error("损坏的目录不应清空缓存")
	}
}

func TestStatsAndClearCache(t *testing.T) {
	e, _ := setup(t, exampleCatalog)
	ctx := context.Background()

	e.Styles(ctx, "example.com")
	e.Styles(ctx, "example.com")

	st := e.Stats()
	if st.Decisions.Size != 1 || st.Styles.Size != 1 {
		t.Errorf("缓存大小 = %+v", st)
	}
	if st.Styles.Hits != 1 {
		t.Errorf("CSS 缓存命中 = %d", st.Styles.Hits)
	}
	if st.TTLMillis != 300000 {
		t.Errorf("TTL = %d", st.TTLMillis)
	}

	e.ClearCache()
	st = e.Stats()
	if st.Decisions.Size != 0 || st.Styles.Size != 0 {
		t.Errorf("清空后缓存大小 = %+v", st)
	}
}

func TestExplain(t *testing.T) {
	e, _ := setup(t, exampleCatalog)
	exp := e.Explain(context.Background(), "www.example.com")
	if exp.Hostname != "example.com" || exp.Settings.StyleMode != "blacklist" || !exp.Settings.StylingEnabled {
		t.Errorf("Explain = %+v", exp)
	}
}

// gatedStore 让下一次 Get 停在读取之前，直到 release 关闭
type gatedStore struct {
	*store.Memory
	mu      sync.Mutex
	armed   bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedStore) arm() {
	g.mu.Lock()
	g.armed = true
	g.entered = make(chan struct{})
	g.release = make(chan struct{})
	g.mu.Unlock()
}

func (g *gatedStore) Get(ctx context.Context, keys ...string) (map[string]string, error) {
	g.mu.Lock()
	armed := g.armed
	g.armed = false
	entered, release := g.entered, g.release
	g.mu.Unlock()

	if armed {
		close(entered)
		<-release
	}
	return g.Memory.Get(ctx, keys...)
}

func setupGated(t *testing.T) (*engine.Engine, *settings.Manager, *gatedStore) {
	t.Helper()
	gs := &gatedStore{Memory: store.NewMemory()}
	m := settings.New(gs, nil)
	ctx := context.Background()
	if err := m.SaveCatalog(ctx, exampleCatalog); err != nil {
		t.Fatalf("保存目录失败: %v", err)
	}
	e := engine.New(m, engine.Options{}, nil)
	if err := e.Start(ctx); err != nil {
		t.Fatalf("启动引擎失败: %v", err)
	}
	t.Cleanup(e.Close)
	return e, m, gs
}

func TestDecide_WriteDuringComputeNotCached(t *testing.T) {
	e, m, gs := setupGated(t)
	ctx := context.Background()

	gs.arm()
	done := make(chan domain.Decision, 1)
	go func() { done <- e.Decide(ctx, "example.com") }()
	<-gs.entered

	// 决策停在读取设置之前，此时关闭总开关
	if err := m.SetSetting(ctx, "enableStyling", false); err != nil {
		t.Fatalf("修改设置失败: %v", err)
	}
	close(gs.release)
	<-done

	d := e.Decide(ctx, "example.com")
	if d.ShouldApply || d.Reason != domain.ReasonGloballyDisabled {
		t.Errorf("失效后的下一次决策应使用新设置: %+v", d)
	}
}

func TestStyles_WriteDuringRenderNotCached(t *testing.T) {
	e, m, gs := setupGated(t)
	ctx := context.Background()

	// 先缓存决策，使 Styles 停在渲染读取设置处
	if !e.IsActive(ctx, "example.com") {
		t.Fatal("应启用样式")
	}

	gs.arm()
	done := make(chan domain.StyleResult, 1)
	go func() { done <- e.Styles(ctx, "example.com") }()
	<-gs.entered

	for _, f := range []string{"transparency-bg", "hover-nav"} {
		if err := m.SetSiteFeature(ctx, "example.com", f, false); err != nil {
			t.Fatalf("修改站点特性失败: %v", err)
		}
	}
	close(gs.release)
	<-done

	if res := e.Styles(ctx, "example.com"); res.CSS != "" {
		t.Errorf("站点特性全部禁用后 CSS 应为空: %q", res.CSS)
	}
}
