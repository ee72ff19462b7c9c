package websocket

import (
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-httpservice/internal/server"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	sendBuffer = 16
)

// Message types
const (
	TypeHello = "hello"
	TypeEvent = "event"
)

// Message is pushed to event stream clients
type Message struct {
	Type      string    `json:"type"`
	Event     string    `json:"event,omitempty"`
	State     string    `json:"state"`
	Timestamp time.Time `json:"timestamp"`
}

// StateSource reports the controller state sent along with each message
type StateSource interface {
	State() server.State
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan Message
}

// Hub streams lifecycle events to connected WebSocket clients. It is a
// server.Listener; a client that cannot keep up loses events rather than
// blocking the controller.
type Hub struct {
	source   StateSource
	logger   *zap.Logger
	upgrader websocket.Upgrader

	clientsMu sync.RWMutex
	clients   map[string]*client
}

// NewHub creates a hub. With no allowed origins the upgrader only accepts
// same-origin requests or requests without an Origin header; "*" allows any.
func NewHub(source StateSource, allowedOrigins []string, logger *zap.Logger) *Hub {
	h := &Hub{
		source: source,
		logger: logger.Named("websocket-hub"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[string]*client),
	}
	if len(allowedOrigins) > 0 {
		h.upgrader.CheckOrigin = func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		}
	}
	return h
}

// HandleConnection upgrades the request and streams events until the client
// goes away
func (h *Hub) HandleConnection(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("Failed to upgrade connection", zap.Error(err))
		return
	}

	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan Message, sendBuffer),
	}
	c.send <- h.message(TypeHello, "")

	h.clientsMu.Lock()
	h.clients[c.id] = c
	h.clientsMu.Unlock()

	h.logger.Info("Event stream client connected", zap.String("client_id", c.id))

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) message(typ, event string) Message {
	return Message{
		Type:      typ,
		Event:     event,
		State:     h.source.State().String(),
		Timestamp: time.Now().UTC(),
	}
}

// readPump discards client messages and unregisters the client on close
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)

	c.conn.SetReadLimit(512)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("WebSocket read error", zap.Error(err))
			}
			return
		}
	}
}

func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := c.conn.WriteJSON(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (h *Hub) unregister(c *client) {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()
	if existing, ok := h.clients[c.id]; ok && existing == c {
		delete(h.clients, c.id)
		close(c.send)
		h.logger.Info("Event stream client disconnected", zap.String("client_id", c.id))
	}
}

// StateChanged implements server.Listener
func (h *Hub) StateChanged(e server.Event) {
	msg := h.message(TypeEvent, string(e))

	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	for _, c := range h.clients {
		select {
		case c.send <- msg:
		default:
			h.logger.Warn("Event stream client too slow, dropping event",
				zap.String("client_id", c.id), zap.String("event", msg.Event))
		}
	}
}

// ClientCount returns the number of connected clients
func (h *Hub) ClientCount() int {
	h.clientsMu.RLock()
	defer h.clientsMu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients
func (h *Hub) Close() {
	h.clientsMu.Lock()
	defer h.clientsMu.Unlock()

	for id, c := range h.clients {
		close(c.send)
		delete(h.clients, id)
	}
}
