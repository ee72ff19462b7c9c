package api

import (
	"net/http"
	"sync/atomic"

	"github.com/gin-gonic/gin"

	"github.com/sirosfoundation/go-httpservice/internal/engine"
)

// RootHandler is the root context of the managed server. It answers
// /health and /status and 404 for everything else, and keeps handler and
// session counts from the engine events it is registered for.
type RootHandler struct {
	router   *gin.Engine
	handlers atomic.Int64
	sessions atomic.Int64
}

// NewRootHandler creates the root context handler
func NewRootHandler() *RootHandler {
	h := &RootHandler{router: gin.New()}
	h.router.GET("/health", h.health)
	h.router.GET("/status", h.status)
	h.router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Not found"})
	})
	return h
}

// ServeHTTP implements http.Handler
func (h *RootHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// EngineEvent implements engine.EventListener
func (h *RootHandler) EngineEvent(e engine.Event) {
	switch e.Kind {
	case engine.EventHandlerAdded:
		h.handlers.Add(1)
	case engine.EventHandlerRemoved:
		h.handlers.Add(-1)
	case engine.EventSessionCreated:
		h.sessions.Add(1)
	case engine.EventSessionDestroyed:
		h.sessions.Add(-1)
	}
}

func (h *RootHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *RootHandler) status(c *gin.Context) {
	c.JSON(http.StatusOK, StatusResponse{
		Status:     "ok",
		Service:    ServiceName,
		Version:    Version,
		APIVersion: APIVersion,
		Handlers:   h.handlers.Load(),
		Sessions:   h.sessions.Load(),
	})
}
