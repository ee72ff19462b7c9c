package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-httpservice/internal/server"
)

type fakeSource struct {
	state atomic.Int32
}

func (s *fakeSource) State() server.State {
	return server.State(s.state.Load())
}

func newTestHub(t *testing.T, origins []string) (*Hub, *fakeSource, string) {
	t.Helper()
	source := &fakeSource{}
	source.state.Store(int32(server.StateStopped))

	hub := NewHub(source, origins, zap.NewNop())
	srv := httptest.NewServer(http.HandlerFunc(hub.HandleConnection))
	t.Cleanup(func() {
		hub.Close()
		srv.Close()
	})
	return hub, source, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()
	ws, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { ws.Close() })
	return ws
}

func readMessage(t *testing.T, ws *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	var msg Message
	require.NoError(t, ws.ReadJSON(&msg))
	return msg
}

func waitForClients(t *testing.T, hub *Hub, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.ClientCount() == n }, 5*time.Second, 10*time.Millisecond)
}

func TestHub_Hello(t *testing.T) {
	_, _, url := newTestHub(t, nil)
	ws := dial(t, url, nil)

	msg := readMessage(t, ws)
	assert.Equal(t, TypeHello, msg.Type)
	assert.Equal(t, "STOPPED", msg.State)
	assert.Empty(t, msg.Event)
}

func TestHub_BroadcastsEvents(t *testing.T) {
	hub, source, url := newTestHub(t, nil)
	first := dial(t, url, nil)
	second := dial(t, url, nil)
	readMessage(t, first)
	readMessage(t, second)
	waitForClients(t, hub, 2)

	source.state.Store(int32(server.StateStarted))
	hub.StateChanged(server.EventStarted)

	for _, ws := range []*websocket.Conn{first, second} {
		msg := readMessage(t, ws)
		assert.Equal(t, TypeEvent, msg.Type)
		assert.Equal(t, "started", msg.Event)
		assert.Equal(t, "STARTED", msg.State)
	}
}

func TestHub_ClientDisconnect(t *testing.T) {
	hub, _, url := newTestHub(t, nil)
	ws := dial(t, url, nil)
	readMessage(t, ws)
	waitForClients(t, hub, 1)

	require.NoError(t, ws.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")))
	waitForClients(t, hub, 0)

	// broadcasting without clients is a no-op
	hub.StateChanged(server.EventStopped)
}

func TestHub_Close(t *testing.T) {
	hub, _, url := newTestHub(t, nil)
	ws := dial(t, url, nil)
	readMessage(t, ws)
	waitForClients(t, hub, 1)

	hub.Close()
	assert.Equal(t, 0, hub.ClientCount())

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, _, err := ws.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "got %v", err)
}

func TestHub_CheckOrigin(t *testing.T) {
	_, _, url := newTestHub(t, []string{"https://ops.example.com"})

	ws := dial(t, url, http.Header{"Origin": []string{"https://ops.example.com"}})
	assert.Equal(t, TypeHello, readMessage(t, ws).Type)

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://evil.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHub_DefaultOriginPolicy(t *testing.T) {
	_, _, url := newTestHub(t, nil)

	_, resp, err := websocket.DefaultDialer.Dial(url, http.Header{"Origin": []string{"https://elsewhere.example.com"}})
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}
