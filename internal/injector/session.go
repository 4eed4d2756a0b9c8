package injector

import (
	"context"
	"sync"

	"zenstyle/internal/logger"

	"github.com/mafredri/cdp"
	"github.com/mafredri/cdp/devtool"
	"github.com/mafredri/cdp/rpcc"
)

// Session 一个已附加的页面目标
type Session struct {
	ID     string
	Conn   *rpcc.Conn
	Client *cdp.Client
	Ctx    context.Context
	Cancel context.CancelFunc

	mu  sync.Mutex
	url string
}

// URL 返回顶层框架当前地址
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// SetURL 记录顶层框架地址
func (s *Session) SetURL(u string) {
	s.mu.Lock()
	s.url = u
	s.mu.Unlock()
}

// sessions 页面目标会话表
type sessions struct {
	writeBufferSize int
	log             logger.Logger
	mu              sync.RWMutex
	targets         map[string]*Session
}

func newSessions(l logger.Logger) *sessions {
	return &sessions{
		writeBufferSize: 1 << 20,
		log:             l,
		targets:         make(map[string]*Session),
	}
}

// attach 附加到目标，已附加时返回 false
func (m *sessions) attach(ctx context.Context, t *devtool.Target) (*Session, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.targets[t.ID]; ok {
		return s, false, nil
	}

	sessionCtx, cancel := context.WithCancel(ctx)
	conn, err := rpcc.DialContext(sessionCtx, t.WebSocketDebuggerURL,
		rpcc.WithWriteBufferSize(m.writeBufferSize),
		rpcc.WithCompression())
	if err != nil {
		cancel()
		return nil, false, err
	}

	s := &Session{
		ID:     t.ID,
		Conn:   conn,
		Client: cdp.NewClient(conn),
		Ctx:    sessionCtx,
		Cancel: cancel,
		url:    t.URL,
	}
	m.targets[s.ID] = s
	m.log.Info("已附加页面", "target", s.ID, "url", t.URL)
	return s, true, nil
}

// detach 断开单个目标
func (m *sessions) detach(id string) bool {
	m.mu.Lock()
	s, ok := m.targets[id]
	delete(m.targets, id)
	m.mu.Unlock()

	if ok {
		closeSession(s)
		m.log.Debug("已断开页面", "target", id)
	}
	return ok
}

// detachAll 断开全部目标
func (m *sessions) detachAll() {
	m.mu.Lock()
	all := m.targets
	m.targets = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		closeSession(s)
	}
}

// list 返回全部会话的副本
func (m *sessions) list() []*Session {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Session, 0, len(m.targets))
	for _, s := range m.targets {
		out = append(out, s)
	}
	return out
}

func (m *sessions) get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.targets[id]
	return s, ok
}

func closeSession(s *Session) {
	if s.Cancel != nil {
		s.Cancel()
	}
	if s.Conn != nil {
		_ = s.Conn.Close()
	}
}
