package engine

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

type recordingListener struct {
	mu     sync.Mutex
	events []Event
}

func (l *recordingListener) EngineEvent(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *recordingListener) kinds() []EventKind {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventKind, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Kind)
	}
	return out
}

type textHandler string

func (h textHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	_, _ = io.WriteString(w, string(h))
}

type lifecycleHandler struct {
	initErr   error
	params    map[string]string
	destroyed int
}

func (h *lifecycleHandler) Init(params map[string]string) error {
	h.params = params
	return h.initErr
}

func (h *lifecycleHandler) Destroy() {
	h.destroyed++
}

func (h *lifecycleHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	_, _ = io.WriteString(w, "lifecycle")
}

func startEngine(t *testing.T, root http.Handler, attrs map[string]any) (*GinEngine, string) {
	t.Helper()

	eng := NewGinEngine(testLogger(), DefaultOptions())
	eng.AddConnector(&Connector{Host: "127.0.0.1", Port: 0})
	eng.AddContext(root, attrs, time.Minute)
	require.NoError(t, eng.Start())
	t.Cleanup(func() {
		_ = eng.Stop(context.Background())
	})

	addrs := eng.Addrs()
	require.Len(t, addrs, 1)
	return eng, "http://" + addrs[0].String()
}

func get(t *testing.T, client *http.Client, url string) (int, string) {
	t.Helper()
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func freePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())
	return port
}

func TestGinEngine_StartWithoutConnectors(t *testing.T) {
	eng := NewGinEngine(testLogger(), DefaultOptions())
	assert.ErrorIs(t, eng.Start(), ErrNoConnectors)
}

func TestGinEngine_RootContext(t *testing.T) {
	_, base := startEngine(t, textHandler("root"), nil)

	status, body := get(t, nil, base+"/anything/at/all")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "root", body)
}

func TestGinEngine_NoRootContext(t *testing.T) {
	_, base := startEngine(t, nil, nil)

	status, _ := get(t, nil, base+"/missing")
	assert.Equal(t, http.StatusNotFound, status)
}

func TestGinEngine_AddHandlerNotStarted(t *testing.T) {
	eng := NewGinEngine(testLogger(), DefaultOptions())

	_, err := eng.AddHandler("/svc", textHandler("svc"), nil)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestGinEngine_AliasDispatch(t *testing.T) {
	eng, base := startEngine(t, textHandler("root"), nil)

	_, err := eng.AddHandler("/api", textHandler("api"), nil)
	require.NoError(t, err)
	_, err = eng.AddHandler("/api/v2", textHandler("v2"), nil)
	require.NoError(t, err)

	tests := []struct {
		path string
		want string
	}{
		{"/api", "api"},
		{"/api/users", "api"},
		{"/api/v2", "v2"},
		{"/api/v2/users", "v2"},
		{"/api/v20", "api"},
		{"/apix", "root"},
		{"/", "root"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			status, body := get(t, nil, base+tt.path)
			assert.Equal(t, http.StatusOK, status)
			assert.Equal(t, tt.want, body)
		})
	}

	assert.Len(t, eng.Handlers(), 2)
}

func TestGinEngine_InvalidAlias(t *testing.T) {
	eng, _ := startEngine(t, nil, nil)

	for _, alias := range []string{"", "svc", "/svc/"} {
		_, err := eng.AddHandler(alias, textHandler("x"), nil)
		assert.ErrorIs(t, err, ErrInvalidAlias, "alias %q", alias)
	}

	_, err := eng.AddHandler("/svc", nil, nil)
	assert.ErrorIs(t, err, ErrInvalidAlias)
}

func TestGinEngine_AliasInUse(t *testing.T) {
	eng, _ := startEngine(t, nil, nil)

	_, err := eng.AddHandler("/svc", textHandler("a"), nil)
	require.NoError(t, err)

	h := &lifecycleHandler{}
	_, err = eng.AddHandler("/svc", h, nil)
	assert.ErrorIs(t, err, ErrAliasInUse)
	assert.Nil(t, h.params, "Init must not run for a taken alias")
}

func TestGinEngine_RequestContext(t *testing.T) {
	tmp := filepath.Join(t.TempDir(), "work")

	type seen struct {
		name   string
		params map[string]string
		tmp    string
		custom any
	}
	seenCh := make(chan seen, 1)
	probe := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		custom, _ := Attribute(r.Context(), "custom")
		seenCh <- seen{
			name:   HandlerName(r.Context()),
			params: InitParams(r.Context()),
			tmp:    TempDir(r.Context()),
			custom: custom,
		}
		w.WriteHeader(http.StatusNoContent)
	})

	eng, base := startEngine(t, nil, map[string]any{TempDirAttribute: tmp, "custom": 42})

	info, err := os.Stat(tmp)
	require.NoError(t, err, "temporary directory is created on start")
	assert.True(t, info.IsDir())

	name, err := eng.AddHandler("/probe", probe, map[string]string{"greeting": "hello"})
	require.NoError(t, err)

	status, _ := get(t, nil, base+"/probe")
	assert.Equal(t, http.StatusNoContent, status)
	got := <-seenCh
	assert.Equal(t, name, got.name)
	assert.Equal(t, map[string]string{"greeting": "hello"}, got.params)
	assert.Equal(t, tmp, got.tmp)
	assert.Equal(t, 42, got.custom)
}

func TestGinEngine_HandlerLifecycle(t *testing.T) {
	eng, base := startEngine(t, textHandler("root"), nil)
	events := &recordingListener{}
	eng.AddEventListener(events)

	h := &lifecycleHandler{}
	name, err := eng.AddHandler("/life", h, map[string]string{"k": "v"})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k": "v"}, h.params)

	_, body := get(t, nil, base+"/life")
	assert.Equal(t, "lifecycle", body)

	require.NoError(t, eng.RemoveHandler(name))
	assert.Equal(t, 1, h.destroyed)

	_, body = get(t, nil, base+"/life")
	assert.Equal(t, "root", body)

	assert.ErrorIs(t, eng.RemoveHandler(name), ErrHandlerNotFound)
	assert.Equal(t, []EventKind{EventHandlerAdded, EventHandlerRemoved}, events.kinds())
}

// kindsListener is a value type backed by a slice and cannot be compared
type kindsListener struct {
	kinds []EventKind
}

func (kindsListener) EngineEvent(Event) {}

func TestGinEngine_UncomparableEventListener(t *testing.T) {
	eng, _ := startEngine(t, textHandler("root"), nil)
	events := &recordingListener{}
	eng.AddEventListener(events)

	assert.NotPanics(t, func() {
		eng.AddEventListener(kindsListener{})
		eng.AddEventListener(kindsListener{kinds: []EventKind{EventHandlerAdded}})
		eng.AddEventListener(nil)
		eng.RemoveEventListener(kindsListener{})
	})

	_, err := eng.AddHandler("/life", &lifecycleHandler{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []EventKind{EventHandlerAdded}, events.kinds())
}

func TestGinEngine_InitFailure(t *testing.T) {
	eng, base := startEngine(t, textHandler("root"), nil)

	h := &lifecycleHandler{initErr: errors.New("boom")}
	_, err := eng.AddHandler("/broken", h, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")

	_, body := get(t, nil, base+"/broken")
	assert.Equal(t, "root", body)
	assert.Empty(t, eng.Handlers())
}

func TestGinEngine_StopDestroysHandlers(t *testing.T) {
	eng := NewGinEngine(testLogger(), DefaultOptions())
	eng.AddConnector(&Connector{Host: "127.0.0.1", Port: 0})
	eng.AddContext(nil, nil, 0)
	require.NoError(t, eng.Start())

	events := &recordingListener{}
	eng.AddEventListener(events)

	h := &lifecycleHandler{}
	_, err := eng.AddHandler("/life", h, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, eng.Stop(ctx))

	assert.Equal(t, 1, h.destroyed)
	assert.Empty(t, eng.Addrs())
	assert.Empty(t, eng.Handlers())
	assert.Equal(t, []EventKind{EventHandlerAdded, EventHandlerRemoved}, events.kinds())

	require.NoError(t, eng.Stop(ctx), "second stop is a no-op")
	assert.ErrorIs(t, eng.Start(), ErrAlreadyStarted, "engines are single use")
}

func TestGinEngine_BindFailureReleasesListeners(t *testing.T) {
	occupied, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer occupied.Close()

	port := freePort(t)

	eng := NewGinEngine(testLogger(), DefaultOptions())
	eng.AddConnector(&Connector{Host: "127.0.0.1", Port: port})
	eng.AddConnector(&Connector{Host: "127.0.0.1", Port: occupied.Addr().(*net.TCPAddr).Port})
	eng.AddContext(nil, nil, 0)

	err = eng.Start()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to bind")
	assert.Empty(t, eng.Addrs())

	ln, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
	require.NoError(t, err, "first connector must have been released")
	require.NoError(t, ln.Close())

	_, err = eng.AddHandler("/svc", textHandler("svc"), nil)
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestGinEngine_Sessions(t *testing.T) {
	counter := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s := GetSession(r, true)
		n, _ := s.Get("count")
		count, _ := n.(int)
		count++
		s.Set("count", count)
		_, _ = fmt.Fprintf(w, "%d", count)
	})

	eng, base := startEngine(t, counter, nil)
	events := &recordingListener{}
	eng.AddEventListener(events)

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &http.Client{Jar: jar}

	_, body := get(t, client, base+"/")
	assert.Equal(t, "1", body)
	_, body = get(t, client, base+"/")
	assert.Equal(t, "2", body)

	_, body = get(t, nil, base+"/")
	assert.Equal(t, "1", body, "requests without the cookie get a new session")

	assert.Equal(t, 2, eng.Sessions().Len())
	assert.Equal(t, []EventKind{EventSessionCreated, EventSessionCreated}, events.kinds())
}

func TestGinEngine_TLS(t *testing.T) {
	f := NewGinFactory(testLogger(), DefaultOptions())
	c, err := f.CreateSecureConnector("127.0.0.1", 0, writePEMKeystore(t), "", "")
	require.NoError(t, err)

	eng := f.CreateServer()
	eng.AddConnector(c)
	eng.AddContext(textHandler("secure"), nil, 0)
	require.NoError(t, eng.Start())
	defer func() { _ = eng.Stop(context.Background()) }()

	addrs := eng.(Addresser).Addrs()
	require.Len(t, addrs, 1)

	client := &http.Client{Transport: &http.Transport{
		TLSClientConfig: &tls.Config{InsecureSkipVerify: true}, //nolint:gosec // self-signed test certificate
	}}
	status, body := get(t, client, "https://"+addrs[0].String()+"/")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "secure", body)
}
