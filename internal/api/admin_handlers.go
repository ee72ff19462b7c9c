package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-httpservice/internal/server"
	"github.com/sirosfoundation/go-httpservice/internal/storage"
	"github.com/sirosfoundation/go-httpservice/internal/websocket"
	"github.com/sirosfoundation/go-httpservice/pkg/config"
)

// Lifecycle is the part of server.Controller the admin API drives
type Lifecycle interface {
	Start() error
	Stop()
	Configure(cfg *config.ServerConfiguration) error
	State() server.State
	Configuration() *config.ServerConfiguration
}

// DefaultEventLimit is the number of journal records returned when the
// request does not set a limit
const DefaultEventLimit = 100

// AdminHandlers contains handlers for the admin API endpoints
type AdminHandlers struct {
	ctrl    Lifecycle
	journal storage.EventStore
	hub     *websocket.Hub
	logger  *zap.Logger
}

// NewAdminHandlers creates a new AdminHandlers instance
func NewAdminHandlers(ctrl Lifecycle, journal storage.EventStore, hub *websocket.Hub, logger *zap.Logger) *AdminHandlers {
	return &AdminHandlers{
		ctrl:    ctrl,
		journal: journal,
		hub:     hub,
		logger:  logger,
	}
}

// ConfigurationResponse is a server configuration without secrets
type ConfigurationResponse struct {
	Host              string `json:"host"`
	HTTPEnabled       bool   `json:"http_enabled"`
	HTTPPort          int    `json:"http_port"`
	HTTPSecureEnabled bool   `json:"https_enabled"`
	HTTPSecurePort    int    `json:"https_port"`
	SSLKeystore       string `json:"ssl_keystore,omitempty"`
	TempDir           string `json:"temp_dir"`
	SessionTimeout    int    `json:"session_timeout"`
	ShutdownTimeout   int    `json:"shutdown_timeout"`
}

// ConfigurationRequest updates the server configuration. Omitted fields keep
// their current value.
type ConfigurationRequest struct {
	Host              *string `json:"host,omitempty"`
	HTTPEnabled       *bool   `json:"http_enabled,omitempty"`
	HTTPPort          *int    `json:"http_port,omitempty"`
	HTTPSecureEnabled *bool   `json:"https_enabled,omitempty"`
	HTTPSecurePort    *int    `json:"https_port,omitempty"`
	SSLKeystore       *string `json:"ssl_keystore,omitempty"`
	SSLPassword       *string `json:"ssl_password,omitempty"`
	SSLKeyPassword    *string `json:"ssl_key_password,omitempty"`
	TempDir           *string `json:"temp_dir,omitempty"`
	SessionTimeout    *int    `json:"session_timeout,omitempty"`
	ShutdownTimeout   *int    `json:"shutdown_timeout,omitempty"`
}

// AdminStatusResponse is the response of the admin status endpoint
type AdminStatusResponse struct {
	Status        string                 `json:"status"`
	Service       string                 `json:"service"`
	Version       string                 `json:"version"`
	APIVersion    int                    `json:"api_version"`
	State         server.State           `json:"state"`
	Started       bool                   `json:"started"`
	Configuration *ConfigurationResponse `json:"configuration,omitempty"`
	StreamClients int                    `json:"stream_clients"`
}

func configurationToResponse(cfg *config.ServerConfiguration) *ConfigurationResponse {
	if cfg == nil {
		return nil
	}
	return &ConfigurationResponse{
		Host:              cfg.Host,
		HTTPEnabled:       cfg.HTTPEnabled,
		HTTPPort:          cfg.HTTPPort,
		HTTPSecureEnabled: cfg.HTTPSecureEnabled,
		HTTPSecurePort:    cfg.HTTPSecurePort,
		SSLKeystore:       cfg.SSLKeystore,
		TempDir:           cfg.TemporaryDirectory,
		SessionTimeout:    cfg.SessionTimeout,
		ShutdownTimeout:   cfg.ShutdownTimeout,
	}
}

// apply overlays the request on base
func (r *ConfigurationRequest) apply(base *config.ServerConfiguration) *config.ServerConfiguration {
	cfg := base.Clone()
	if r.Host != nil {
		cfg.Host = *r.Host
	}
	if r.HTTPEnabled != nil {
		cfg.HTTPEnabled = *r.HTTPEnabled
	}
	if r.HTTPPort != nil {
		cfg.HTTPPort = *r.HTTPPort
	}
	if r.HTTPSecureEnabled != nil {
		cfg.HTTPSecureEnabled = *r.HTTPSecureEnabled
	}
	if r.HTTPSecurePort != nil {
		cfg.HTTPSecurePort = *r.HTTPSecurePort
	}
	if r.SSLKeystore != nil {
		cfg.SSLKeystore = *r.SSLKeystore
	}
	if r.SSLPassword != nil {
		cfg.SSLPassword = *r.SSLPassword
	}
	if r.SSLKeyPassword != nil {
		cfg.SSLKeyPassword = *r.SSLKeyPassword
	}
	if r.TempDir != nil {
		cfg.TemporaryDirectory = *r.TempDir
	}
	if r.SessionTimeout != nil {
		cfg.SessionTimeout = *r.SessionTimeout
	}
	if r.ShutdownTimeout != nil {
		cfg.ShutdownTimeout = *r.ShutdownTimeout
	}
	return cfg
}

func (h *AdminHandlers) statusResponse() AdminStatusResponse {
	state := h.ctrl.State()
	resp := AdminStatusResponse{
		Status:        "ok",
		Service:       ServiceName + "-admin",
		Version:       Version,
		APIVersion:    APIVersion,
		State:         state,
		Started:       state == server.StateStarted,
		Configuration: configurationToResponse(h.ctrl.Configuration()),
	}
	if h.hub != nil {
		resp.StreamClients = h.hub.ClientCount()
	}
	return resp
}

// AdminStatus returns the controller state
// GET /admin/status
func (h *AdminHandlers) AdminStatus(c *gin.Context) {
	c.JSON(http.StatusOK, h.statusResponse())
}

// Start starts the managed server
// POST /admin/start
func (h *AdminHandlers) Start(c *gin.Context) {
	if err := h.ctrl.Start(); err != nil {
		h.lifecycleError(c, "start", err)
		return
	}

	h.logger.Info("Server started via admin API", zap.String("subject", c.GetString("admin_subject")))
	c.JSON(http.StatusOK, h.statusResponse())
}

// Stop stops the managed server
// POST /admin/stop
func (h *AdminHandlers) Stop(c *gin.Context) {
	h.ctrl.Stop()

	h.logger.Info("Server stopped via admin API", zap.String("subject", c.GetString("admin_subject")))
	c.JSON(http.StatusOK, h.statusResponse())
}

// Configure replaces the server configuration; a running server is restarted
// PUT /admin/config
func (h *AdminHandlers) Configure(c *gin.Context) {
	var req ConfigurationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	base := h.ctrl.Configuration()
	if base == nil {
		defaults := config.DefaultServerConfiguration()
		base = &defaults
	}
	cfg := req.apply(base)
	if err := cfg.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.ctrl.Configure(cfg); err != nil {
		h.lifecycleError(c, "configure", err)
		return
	}
	h.logger.Info("Server configured via admin API",
		zap.String("subject", c.GetString("admin_subject")),
		zap.Stringer("configuration", cfg))
	c.JSON(http.StatusOK, h.statusResponse())
}

// ListEvents returns the most recent lifecycle events
// GET /admin/events?limit=N
func (h *AdminHandlers) ListEvents(c *gin.Context) {
	limit := DefaultEventLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit"})
			return
		}
		limit = n
	}

	records, err := h.journal.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("Failed to list events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list events"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"events": records})
}

// EventStream upgrades to a WebSocket streaming lifecycle events
// GET /admin/events/ws
func (h *AdminHandlers) EventStream(c *gin.Context) {
	if h.hub == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Event stream not available"})
		return
	}
	h.hub.HandleConnection(c.Writer, c.Request)
}

func (h *AdminHandlers) lifecycleError(c *gin.Context, op string, err error) {
	switch {
	case errors.Is(err, server.ErrIllegalLifecycle):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error(), "state": h.ctrl.State()})
	case errors.Is(err, server.ErrInvalidArgument):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Lifecycle operation failed", zap.String("operation", op), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error(), "state": h.ctrl.State()})
	}
}
