package httpapi_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"zenstyle/internal/engine"
	"zenstyle/internal/httpapi"
	"zenstyle/internal/settings"
	"zenstyle/internal/store"
	"zenstyle/internal/updater"
	api "zenstyle/pkg/api"
	"zenstyle/pkg/domain"
)

const testCatalog = `{"website":{"example.com":{"transparency-bg":"body{background:transparent}"}}}`

type rawResponse struct {
	ID     string               `json:"id"`
	Result json.RawMessage      `json:"result"`
	Error  *httpapi.ErrorObject `json:"error"`
}

func newServer(t *testing.T, repo http.HandlerFunc) *httptest.Server {
	t.Helper()
	ctx := context.Background()

	opts := []settings.Option{}
	var client *http.Client
	if repo != nil {
		upstream := httptest.NewServer(repo)
		t.Cleanup(upstream.Close)
		opts = append(opts, settings.WithDefaultRepositoryURL(upstream.URL+"/styles.json"))
		client = upstream.Client()
	}
	m := settings.New(store.NewMemory(), nil, opts...)
	if err := m.SaveCatalog(ctx, testCatalog); err != nil {
		t.Fatalf("保存目录失败: %v", err)
	}
	e := engine.New(m, engine.Options{}, nil)
	if err := e.Start(ctx); err != nil {
		t.Fatalf("启动引擎失败: %v", err)
	}
	t.Cleanup(e.Close)

	var u *updater.Updater
	if client != nil {
		u = updater.New(m, nil, updater.WithHTTPClient(client))
	}
	srv := httptest.NewServer(httpapi.NewServer(api.NewService(e, u, nil), nil))
	t.Cleanup(srv.Close)
	return srv
}

func call(t *testing.T, srv *httptest.Server, method string, params interface{}) rawResponse {
	t.Helper()
	body := map[string]interface{}{"method": method, "id": "1"}
	if params != nil {
		body["params"] = params
	}
	data, _ := json.Marshal(body)
	resp, err := http.Post(srv.URL, "application/json", bytes.NewReader(data))
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	defer resp.Body.Close()

	var out rawResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("解析响应失败: %v", err)
	}
	if out.ID != "1" && out.Error == nil {
		t.Errorf("响应 id = %q", out.ID)
	}
	return out
}

func TestServer_MethodNotAllowed(t *testing.T) {
	srv := newServer(t, nil)
	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusMethodNotAllowed {
		t.Errorf("状态码 = %d", resp.StatusCode)
	}
}

func TestServer_InvalidRequest(t *testing.T) {
	srv := newServer(t, nil)
	resp, err := http.Post(srv.URL, "application/json", bytes.NewReader([]byte("{")))
	if err != nil {
		t.Fatalf("请求失败: %v", err)
	}
	defer resp.Body.Close()
	var out rawResponse
	_ = json.NewDecoder(resp.Body).Decode(&out)
	if out.Error == nil || out.Error.Code != "invalid_request" {
		t.Errorf("错误 = %+v", out.Error)
	}
}

func TestServer_MethodNotFound(t *testing.T) {
	srv := newServer(t, nil)
	out := call(t, srv, "nope", nil)
	if out.Error == nil || out.Error.Code != "method_not_found" {
		t.Errorf("错误 = %+v", out.Error)
	}
}

func TestServer_Decide(t *testing.T) {
	srv := newServer(t, nil)

	out := call(t, srv, "styling.decide", map[string]string{"host": "www.example.com"})
	if out.Error != nil {
		t.Fatalf("决策失败: %+v", out.Error)
	}
	var d domain.Decision
	if err := json.Unmarshal(out.Result, &d); err != nil {
		t.Fatalf("解析结果失败: %v", err)
	}
	if !d.ShouldApply || d.Reason != domain.ReasonSpecificThemeAvailable {
		t.Errorf("决策 = %+v", d)
	}
}

func TestServer_HostValidation(t *testing.T) {
	srv := newServer(t, nil)
	tests := []struct {
		name   string
		params interface{}
	}{
		{"缺少参数", nil},
		{"空主机名", map[string]string{"host": ""}},
		{"非法主机名", map[string]string{"host": "bad host!"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := call(t, srv, "styling.decide", tt.params)
			if out.Error == nil || out.Error.Code != "invalid_params" {
				t.Errorf("错误 = %+v", out.Error)
			}
		})
	}
}

func TestServer_ExplainAndCSS(t *testing.T) {
	srv := newServer(t, nil)

	out := call(t, srv, "styling.explain", map[string]string{"host": "example.com"})
	var x domain.Explanation
	if err := json.Unmarshal(out.Result, &x); err != nil {
		t.Fatalf("解析结果失败: %v", err)
	}
	if x.Hostname != "example.com" || x.Settings.StyleMode != "blacklist" {
		t.Errorf("说明 = %+v", x)
	}

	out = call(t, srv, "styling.css", map[string]string{"host": "example.com"})
	var res domain.StyleResult
	if err := json.Unmarshal(out.Result, &res); err != nil {
		t.Fatalf("解析结果失败: %v", err)
	}
	if res.CSS != "body{background:transparent}" {
		t.Errorf("CSS = %q", res.CSS)
	}
}

func TestServer_SettingsSet(t *testing.T) {
	srv := newServer(t, nil)

	out := call(t, srv, "settings.set", map[string]interface{}{"key": "enableStyling", "value": false})
	if out.Error != nil {
		t.Fatalf("修改设置失败: %+v", out.Error)
	}
	out = call(t, srv, "settings.get", nil)
	var gs domain.GlobalSettings
	_ = json.Unmarshal(out.Result, &gs)
	if gs.EnableStyling {
		t.Error("enableStyling 应为 false")
	}

	out = call(t, srv, "styling.decide", map[string]string{"host": "example.com"})
	var d domain.Decision
	_ = json.Unmarshal(out.Result, &d)
	if d.Reason != domain.ReasonGloballyDisabled {
		t.Errorf("关闭总开关后原因 = %s", d.Reason)
	}

	out = call(t, srv, "settings.set", map[string]interface{}{"key": "bogus", "value": true})
	if out.Error == nil || out.Error.Code != "invalid_params" {
		t.Errorf("未知设置错误 = %+v", out.Error)
	}
	out = call(t, srv, "settings.set", map[string]interface{}{"key": "autoUpdate"})
	if out.Error == nil || out.Error.Code != "invalid_params" {
		t.Errorf("缺少 value 错误 = %+v", out.Error)
	}
}

func TestServer_Lists(t *testing.T) {
	srv := newServer(t, nil)

	out := call(t, srv, "list.set", map[string]interface{}{"list": "skipThemingList", "host": "www.example.com", "member": true})
	if out.Error != nil {
		t.Fatalf("修改名单失败: %+v", out.Error)
	}
	out = call(t, srv, "list.get", map[string]string{"list": "skipThemingList"})
	var lr struct {
		Hosts []string `json:"hosts"`
	}
	_ = json.Unmarshal(out.Result, &lr)
	if len(lr.Hosts) != 1 || lr.Hosts[0] != "example.com" {
		t.Errorf("名单 = %v", lr.Hosts)
	}

	out = call(t, srv, "styling.decide", map[string]string{"host": "example.com"})
	var d domain.Decision
	_ = json.Unmarshal(out.Result, &d)
	if d.Reason != domain.ReasonBlacklistSkipped {
		t.Errorf("原因 = %s", d.Reason)
	}

	out = call(t, srv, "list.get", map[string]string{"list": "otherList"})
	if out.Error == nil || out.Error.Code != "invalid_params" {
		t.Errorf("未知名单错误 = %+v", out.Error)
	}
}

func TestServer_Site(t *testing.T) {
	srv := newServer(t, nil)

	out := call(t, srv, "site.setFeature", map[string]interface{}{"host": "example.com", "feature": "transparency-bg", "enabled": false})
	if out.Error != nil {
		t.Fatalf("修改站点特性失败: %+v", out.Error)
	}
	out = call(t, srv, "site.get", map[string]string{"host": "example.com"})
	var sr struct {
		Features map[string]bool `json:"features"`
	}
	_ = json.Unmarshal(out.Result, &sr)
	if v, ok := sr.Features["transparency-bg"]; !ok || v {
		t.Errorf("站点特性 = %v", sr.Features)
	}

	out = call(t, srv, "styling.css", map[string]string{"host": "example.com"})
	var res domain.StyleResult
	_ = json.Unmarshal(out.Result, &res)
	if res.CSS != "" {
		t.Errorf("禁用唯一特性后 CSS 应为空: %q", res.CSS)
	}

	out = call(t, srv, "site.reset", map[string]string{"host": "www.example.com"})
	if out.Error != nil {
		t.Fatalf("重置站点失败: %+v", out.Error)
	}
	out = call(t, srv, "styling.css", map[string]string{"host": "example.com"})
	res = domain.StyleResult{}
	_ = json.Unmarshal(out.Result, &res)
	if res.CSS == "" {
		t.Error("重置后特性应恢复启用")
	}

	out = call(t, srv, "site.reset", map[string]string{"host": ""})
	if out.Error == nil || out.Error.Code != "invalid_params" {
		t.Errorf("空主机名错误 = %+v", out.Error)
	}
}

func TestServer_CatalogRefresh(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"website":{"foo.org":{"a":"b{}"}}}`))
	})

	out := call(t, srv, "catalog.refresh", nil)
	if out.Error != nil {
		t.Fatalf("拉取失败: %+v", out.Error)
	}
	var r updater.Result
	_ = json.Unmarshal(out.Result, &r)
	if r.Sites != 1 {
		t.Errorf("站点数 = %d", r.Sites)
	}

	out = call(t, srv, "styling.decide", map[string]string{"host": "foo.org"})
	var d domain.Decision
	_ = json.Unmarshal(out.Result, &d)
	if !d.HasSpecificStyle {
		t.Errorf("拉取后应命中新目录: %+v", d)
	}
}

func TestServer_CatalogRefreshUpstreamError(t *testing.T) {
	srv := newServer(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusBadGateway)
	})
	out := call(t, srv, "catalog.refresh", nil)
	if out.Error == nil || out.Error.Code != "upstream" {
		t.Errorf("错误 = %+v", out.Error)
	}
}

func TestServer_CatalogRefreshWithoutUpdater(t *testing.T) {
	srv := newServer(t, nil)
	out := call(t, srv, "catalog.refresh", nil)
	if out.Error == nil || out.Error.Code != "upstream" {
		t.Errorf("错误 = %+v", out.Error)
	}
}

func TestServer_Cache(t *testing.T) {
	srv := newServer(t, nil)

	call(t, srv, "styling.decide", map[string]string{"host": "example.com"})
	call(t, srv, "styling.decide", map[string]string{"host": "example.com"})

	out := call(t, srv, "cache.stats", nil)
	var st domain.EngineStats
	_ = json.Unmarshal(out.Result, &st)
	if st.Sites != 1 || st.Decisions.Size != 1 || st.Decisions.Hits < 1 {
		t.Errorf("统计 = %+v", st)
	}

	out = call(t, srv, "cache.clear", nil)
	if out.Error != nil {
		t.Fatalf("清空缓存失败: %+v", out.Error)
	}
	out = call(t, srv, "cache.stats", nil)
	_ = json.Unmarshal(out.Result, &st)
	if st.Decisions.Size != 0 {
		t.Errorf("清空后大小 = %d", st.Decisions.Size)
	}

	out = call(t, srv, "catalog.reload", nil)
	if out.Error != nil {
		t.Errorf("重载失败: %+v", out.Error)
	}
}
