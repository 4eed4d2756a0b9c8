package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"zenstyle/internal/logger"
	api "zenstyle/pkg/api"
	"zenstyle/pkg/domain"
	"zenstyle/pkg/errx"
)

// Server 本地 HTTP 接口入口，供弹窗或脚本调用
type Server struct {
	svc api.Service
	log logger.Logger
}

// NewServer 创建 HTTP 接口服务
func NewServer(svc api.Service, l logger.Logger) *Server {
	if l == nil {
		l = logger.NewNop()
	}
	return &Server{svc: svc, log: l}
}

// ServeHTTP 处理所有 HTTP 请求
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, ErrInvalidRequest.withError(err))
		return
	}
	res := s.dispatch(r.Context(), &req)
	if res.Error != nil {
		s.log.Debug("请求失败", "method", req.Method, "code", res.Error.Code, "message", res.Error.Message)
	}
	writeResponse(w, res)
}

// Request 表示通用请求结构
type Request struct {
	Method string          `json:"method"`
	ID     string          `json:"id,omitempty"`
	Params json.RawMessage `json:"params"`
}

// Response 表示通用响应结构
type Response struct {
	ID     string       `json:"id,omitempty"`
	Result interface{}  `json:"result,omitempty"`
	Error  *ErrorObject `json:"error,omitempty"`
}

// ErrorObject 表示错误信息
type ErrorObject struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ApiError 表示内部错误类型
type ApiError struct {
	Code string
	Err  error
}

func (e ApiError) withError(err error) ApiError {
	return ApiError{Code: e.Code, Err: err}
}

var (
	// ErrInvalidRequest 无效请求
	ErrInvalidRequest = ApiError{Code: "invalid_request"}
	// ErrMethodNotFound 方法不存在
	ErrMethodNotFound = ApiError{Code: "method_not_found"}
	// ErrInvalidParams 参数错误
	ErrInvalidParams = ApiError{Code: "invalid_params"}
	// ErrBusy 已有拉取在进行
	ErrBusy = ApiError{Code: "busy"}
	// ErrUpstream 样式仓库不可用或内容非法
	ErrUpstream = ApiError{Code: "upstream"}
	// ErrInternal 内部错误
	ErrInternal = ApiError{Code: "internal"}
)

// hostParams 仅包含主机名的参数
type hostParams struct {
	Host string `json:"host"`
}

// settingSetParams 设置修改参数
type settingSetParams struct {
	Key   string `json:"key"`
	Value *bool  `json:"value"`
}

// listParams 名单查询参数
type listParams struct {
	List string `json:"list"`
}

// listSetParams 名单成员修改参数
type listSetParams struct {
	List   string `json:"list"`
	Host   string `json:"host"`
	Member *bool  `json:"member"`
}

// siteFeatureParams 站点特性修改参数
type siteFeatureParams struct {
	Host    string `json:"host"`
	Feature string `json:"feature"`
	Enabled *bool  `json:"enabled"`
}

// listResult 名单查询结果
type listResult struct {
	List  string   `json:"list"`
	Hosts []string `json:"hosts"`
}

// siteResult 站点设置结果
type siteResult struct {
	Host     string              `json:"host"`
	Features domain.SiteSettings `json:"features"`
}

// okResult 无业务数据的成功结果
type okResult struct {
	OK bool `json:"ok"`
}

// dispatch 根据 method 分发请求
func (s *Server) dispatch(ctx context.Context, req *Request) *Response {
	var (
		result interface{}
		err    *ErrorObject
	)
	switch req.Method {
	case "styling.decide":
		result, err = s.handleDecide(ctx, req.Params)
	case "styling.explain":
		result, err = s.handleExplain(ctx, req.Params)
	case "styling.css":
		result, err = s.handleCSS(ctx, req.Params)
	case "settings.get":
		result, err = s.handleSettingsGet(ctx, req.Params)
	case "settings.set":
		result, err = s.handleSettingsSet(ctx, req.Params)
	case "list.get":
		result, err = s.handleListGet(ctx, req.Params)
	case "list.set":
		result, err = s.handleListSet(ctx, req.Params)
	case "site.get":
		result, err = s.handleSiteGet(ctx, req.Params)
	case "site.setFeature":
		result, err = s.handleSiteSetFeature(ctx, req.Params)
	case "site.reset":
		result, err = s.handleSiteReset(ctx, req.Params)
	case "catalog.refresh":
		result, err = s.handleCatalogRefresh(ctx, req.Params)
	case "catalog.reload":
		result, err = s.handleCatalogReload(ctx, req.Params)
	case "cache.stats":
		result = s.svc.Stats()
	case "cache.clear":
		s.svc.ClearCache()
		result = okResult{OK: true}
	default:
		err = toErrorObject(ErrMethodNotFound)
	}
	return &Response{ID: req.ID, Result: result, Error: err}
}

// writeResponse 写出统一响应
func writeResponse(w http.ResponseWriter, res *Response) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	_ = enc.Encode(res)
}

// writeError 写出错误响应
func writeError(w http.ResponseWriter, apiErr ApiError) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	enc := json.NewEncoder(w)
	_ = enc.Encode(&Response{Error: toErrorObject(apiErr)})
}

// toErrorObject 转换错误为响应错误对象
func toErrorObject(e ApiError) *ErrorObject {
	msg := e.Code
	if e.Err != nil {
		msg = e.Err.Error()
	}
	return &ErrorObject{Code: e.Code, Message: msg}
}

// fromError 按错误码映射为接口错误
func fromError(err error) *ErrorObject {
	switch errx.CodeOf(err) {
	case errx.CodeInvalidHostname, errx.CodeUnknownSetting, errx.CodeUnknownList, errx.CodeInvalidURL:
		return toErrorObject(ErrInvalidParams.withError(err))
	case errx.CodeUpdateInProgress:
		return toErrorObject(ErrBusy.withError(err))
	case errx.CodeFetchFailed, errx.CodeInvalidCatalog:
		return toErrorObject(ErrUpstream.withError(err))
	}
	return toErrorObject(ErrInternal.withError(err))
}

// decode 解析参数，params 缺省时保持零值
func decode(params json.RawMessage, v interface{}) *ErrorObject {
	if len(params) == 0 || string(params) == "null" {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return toErrorObject(ErrInvalidParams.withError(err))
	}
	return nil
}

func requireHost(params json.RawMessage) (string, *ErrorObject) {
	var p hostParams
	if e := decode(params, &p); e != nil {
		return "", e
	}
	if p.Host == "" {
		return "", toErrorObject(ErrInvalidParams.withError(errors.New("host is required")))
	}
	return p.Host, nil
}

// handleDecide 处理样式决策查询
func (s *Server) handleDecide(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	h, e := requireHost(params)
	if e != nil {
		return nil, e
	}
	d, err := s.svc.Decide(ctx, h)
	if err != nil {
		return nil, fromError(err)
	}
	return d, nil
}

// handleExplain 处理决策说明查询
func (s *Server) handleExplain(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	h, e := requireHost(params)
	if e != nil {
		return nil, e
	}
	x, err := s.svc.Explain(ctx, h)
	if err != nil {
		return nil, fromError(err)
	}
	return x, nil
}

// handleCSS 处理注入样式查询
func (s *Server) handleCSS(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	h, e := requireHost(params)
	if e != nil {
		return nil, e
	}
	res, err := s.svc.Styles(ctx, h)
	if err != nil {
		return nil, fromError(err)
	}
	return res, nil
}

func (s *Server) handleSettingsGet(ctx context.Context, _ json.RawMessage) (interface{}, *ErrorObject) {
	gs, err := s.svc.GlobalSettings(ctx)
	if err != nil {
		return nil, fromError(err)
	}
	return gs, nil
}

func (s *Server) handleSettingsSet(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p settingSetParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	if p.Key == "" || p.Value == nil {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("key and value are required")))
	}
	if err := s.svc.SetSetting(ctx, p.Key, *p.Value); err != nil {
		return nil, fromError(err)
	}
	return okResult{OK: true}, nil
}

func (s *Server) handleListGet(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p listParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	hosts, err := s.svc.List(ctx, domain.ListKey(p.List))
	if err != nil {
		return nil, fromError(err)
	}
	return listResult{List: p.List, Hosts: hosts}, nil
}

func (s *Server) handleListSet(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p listSetParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	if p.Host == "" || p.Member == nil {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("host and member are required")))
	}
	if err := s.svc.SetMembership(ctx, domain.ListKey(p.List), p.Host, *p.Member); err != nil {
		return nil, fromError(err)
	}
	return okResult{OK: true}, nil
}

func (s *Server) handleSiteGet(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	h, e := requireHost(params)
	if e != nil {
		return nil, e
	}
	site, err := s.svc.Site(ctx, h)
	if err != nil {
		return nil, fromError(err)
	}
	if site == nil {
		site = domain.SiteSettings{}
	}
	return siteResult{Host: h, Features: site}, nil
}

func (s *Server) handleSiteSetFeature(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	var p siteFeatureParams
	if e := decode(params, &p); e != nil {
		return nil, e
	}
	if p.Host == "" || p.Feature == "" || p.Enabled == nil {
		return nil, toErrorObject(ErrInvalidParams.withError(errors.New("host, feature and enabled are required")))
	}
	if err := s.svc.SetSiteFeature(ctx, p.Host, p.Feature, *p.Enabled); err != nil {
		return nil, fromError(err)
	}
	return okResult{OK: true}, nil
}

func (s *Server) handleSiteReset(ctx context.Context, params json.RawMessage) (interface{}, *ErrorObject) {
	h, e := requireHost(params)
	if e != nil {
		return nil, e
	}
	if err := s.svc.ResetSite(ctx, h); err != nil {
		return nil, fromError(err)
	}
	return okResult{OK: true}, nil
}

// handleCatalogRefresh 处理立即拉取样式仓库
func (s *Server) handleCatalogRefresh(ctx context.Context, _ json.RawMessage) (interface{}, *ErrorObject) {
	res, err := s.svc.RefreshCatalog(ctx)
	if err != nil {
		return nil, fromError(err)
	}
	return res, nil
}

// handleCatalogReload 处理从存储重载样式目录
func (s *Server) handleCatalogReload(ctx context.Context, _ json.RawMessage) (interface{}, *ErrorObject) {
	if err := s.svc.ReloadCatalog(ctx); err != nil {
		return nil, fromError(err)
	}
	return okResult{OK: true}, nil
}
