package engine

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SessionCookie is the name of the cookie carrying the session id
const SessionCookie = "HTTPSESSIONID"

// Session is a server-side attribute bag shared by requests carrying the same
// session cookie
type Session struct {
	id      string
	created time.Time

	mu         sync.Mutex
	lastAccess time.Time
	attrs      map[string]any
}

// ID returns the session id
func (s *Session) ID() string { return s.id }

// Created returns the creation time
func (s *Session) Created() time.Time { return s.created }

// Get returns a session attribute
func (s *Session) Get(key string) (any, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.attrs[key]
	return v, ok
}

// Set stores a session attribute
func (s *Session) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attrs[key] = value
}

// Delete removes a session attribute
func (s *Session) Delete(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.attrs, key)
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastAccess = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastAccess)
}

// SessionManager tracks sessions and expires them after an idle timeout.
// A zero timeout disables expiry.
type SessionManager struct {
	timeout  time.Duration
	onCreate func(*Session)
	onExpire func(*Session)
	now      func() time.Time

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates a session manager. The callbacks may be nil.
func NewSessionManager(timeout time.Duration, onCreate, onDestroy func(*Session)) *SessionManager {
	return &SessionManager{
		timeout:  timeout,
		onCreate: onCreate,
		onExpire: onDestroy,
		now:      time.Now,
		sessions: make(map[string]*Session),
	}
}

// Timeout returns the idle timeout
func (m *SessionManager) Timeout() time.Duration {
	return m.timeout
}

// Create starts a new session
func (m *SessionManager) Create() *Session {
	now := m.now()
	s := &Session{
		id:         uuid.NewString(),
		created:    now,
		lastAccess: now,
		attrs:      make(map[string]any),
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	if m.onCreate != nil {
		m.onCreate(s)
	}
	return s
}

// Lookup returns a live session and refreshes its access time. An expired
// session is destroyed and reported as missing.
func (m *SessionManager) Lookup(id string) (*Session, bool) {
	now := m.now()

	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok && m.expired(s, now) {
		delete(m.sessions, id)
		m.mu.Unlock()
		m.destroyed(s)
		return nil, false
	}
	m.mu.Unlock()

	if !ok {
		return nil, false
	}
	s.touch(now)
	return s, true
}

// Invalidate destroys a session
func (m *SessionManager) Invalidate(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()

	if ok {
		m.destroyed(s)
	}
}

// Sweep destroys every expired session and returns how many were removed
func (m *SessionManager) Sweep() int {
	now := m.now()

	var expired []*Session
	m.mu.Lock()
	for id, s := range m.sessions {
		if m.expired(s, now) {
			delete(m.sessions, id)
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		m.destroyed(s)
	}
	return len(expired)
}

// InvalidateAll destroys every session
func (m *SessionManager) InvalidateAll() {
	m.mu.Lock()
	all := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range all {
		m.destroyed(s)
	}
}

// Len returns the number of tracked sessions
func (m *SessionManager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// run sweeps until ctx is done
func (m *SessionManager) run(ctx context.Context) {
	if m.timeout <= 0 {
		return
	}
	interval := m.timeout / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.Sweep()
		}
	}
}

func (m *SessionManager) expired(s *Session, now time.Time) bool {
	return m.timeout > 0 && s.idleSince(now) > m.timeout
}

func (m *SessionManager) destroyed(s *Session) {
	if m.onExpire != nil {
		m.onExpire(s)
	}
}

// sessionScope lets handlers create a session lazily for the current request
type sessionScope struct {
	manager *SessionManager
	w       http.ResponseWriter
	session *Session
}

func withSessionScope(ctx context.Context, scope *sessionScope) context.Context {
	return context.WithValue(ctx, sessionScopeKey, scope)
}

// GetSession returns the session of a request served by the engine. When
// the request has no live session and create is true a new one is started
// and its cookie is set on the response; this must happen before the
// response header is written.
func GetSession(r *http.Request, create bool) *Session {
	scope, ok := r.Context().Value(sessionScopeKey).(*sessionScope)
	if !ok {
		return nil
	}
	if scope.session != nil || !create {
		return scope.session
	}

	scope.session = scope.manager.Create()
	cookie := &http.Cookie{
		Name:     SessionCookie,
		Value:    scope.session.ID(),
		Path:     "/",
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	}
	http.SetCookie(scope.w, cookie)
	return scope.session
}
