package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestSessionManager(timeout time.Duration) (*SessionManager, *fakeClock, *[]string) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
	destroyed := &[]string{}
	m := NewSessionManager(timeout, nil, func(s *Session) {
		*destroyed = append(*destroyed, s.ID())
	})
	m.now = clock.Now
	return m, clock, destroyed
}

func TestSessionManager_CreateLookup(t *testing.T) {
	m, _, _ := newTestSessionManager(time.Minute)

	s := m.Create()
	require.NotEmpty(t, s.ID())

	got, ok := m.Lookup(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)

	_, ok = m.Lookup("unknown")
	assert.False(t, ok)
}

func TestSessionManager_Attributes(t *testing.T) {
	m, _, _ := newTestSessionManager(time.Minute)
	s := m.Create()

	s.Set("user", "alice")
	v, ok := s.Get("user")
	require.True(t, ok)
	assert.Equal(t, "alice", v)

	s.Delete("user")
	_, ok = s.Get("user")
	assert.False(t, ok)
}

func TestSessionManager_IdleExpiry(t *testing.T) {
	m, clock, destroyed := newTestSessionManager(time.Minute)
	s := m.Create()

	clock.Advance(50 * time.Second)
	_, ok := m.Lookup(s.ID())
	require.True(t, ok, "access refreshes the idle timer")

	clock.Advance(50 * time.Second)
	_, ok = m.Lookup(s.ID())
	require.True(t, ok)

	clock.Advance(61 * time.Second)
	_, ok = m.Lookup(s.ID())
	assert.False(t, ok)
	assert.Equal(t, []string{s.ID()}, *destroyed)
	assert.Equal(t, 0, m.Len())
}

func TestSessionManager_Sweep(t *testing.T) {
	m, clock, destroyed := newTestSessionManager(time.Minute)
	old := m.Create()
	clock.Advance(45 * time.Second)
	fresh := m.Create()

	clock.Advance(30 * time.Second)
	assert.Equal(t, 1, m.Sweep())
	assert.Equal(t, []string{old.ID()}, *destroyed)

	_, ok := m.Lookup(fresh.ID())
	assert.True(t, ok)
}

func TestSessionManager_NoTimeout(t *testing.T) {
	m, clock, _ := newTestSessionManager(0)
	s := m.Create()

	clock.Advance(24 * time.Hour)
	assert.Equal(t, 0, m.Sweep())
	_, ok := m.Lookup(s.ID())
	assert.True(t, ok)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.run(ctx) // returns immediately without a timeout
}

func TestSessionManager_InvalidateAll(t *testing.T) {
	m, _, destroyed := newTestSessionManager(time.Minute)
	m.Create()
	m.Create()
	s := m.Create()

	m.Invalidate(s.ID())
	assert.Len(t, *destroyed, 1)

	m.InvalidateAll()
	assert.Len(t, *destroyed, 3)
	assert.Equal(t, 0, m.Len())
}

func TestGetSession_OutsideEngine(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	assert.Nil(t, GetSession(r, true))
}

func TestGetSession_SetsCookie(t *testing.T) {
	m, _, _ := newTestSessionManager(time.Minute)
	w := httptest.NewRecorder()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r = r.WithContext(withSessionScope(r.Context(), &sessionScope{manager: m, w: w}))

	assert.Nil(t, GetSession(r, false))

	s := GetSession(r, true)
	require.NotNil(t, s)
	assert.Same(t, s, GetSession(r, false))

	cookies := w.Result().Cookies()
	require.Len(t, cookies, 1)
	assert.Equal(t, SessionCookie, cookies[0].Name)
	assert.Equal(t, s.ID(), cookies[0].Value)
	assert.True(t, cookies[0].HttpOnly)
}
