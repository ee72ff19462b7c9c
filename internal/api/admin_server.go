package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-httpservice/pkg/config"
	"github.com/sirosfoundation/go-httpservice/pkg/middleware"
)

// AdminServer serves the control API on its own port
type AdminServer struct {
	srv    *http.Server
	ln     net.Listener
	router *gin.Engine
	token  string
	logger *zap.Logger
}

// NewAdminServer builds the admin router. When cfg.Token is empty a random
// token is generated and logged.
func NewAdminServer(cfg config.AdminConfig, cors config.CORSConfig, handlers *AdminHandlers, logger *zap.Logger) (*AdminServer, error) {
	logger = logger.Named("admin")

	token := cfg.Token
	if token == "" && cfg.JWTSecret == "" {
		var err error
		token, err = middleware.GenerateAdminToken()
		if err != nil {
			return nil, fmt.Errorf("failed to generate admin token: %w", err)
		}
		logger.Info("Generated admin API token (set HTTPSERVICE_ADMIN_TOKEN to use a fixed token)",
			zap.String("token", token))
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(logger))
	if cors.Enabled() {
		router.Use(middleware.CORS(cors))
	}
	if cfg.RateLimit > 0 {
		rl := middleware.NewRateLimiter(middleware.RateLimitConfig{
			Enabled:           true,
			RequestsPerMinute: cfg.RateLimit,
		}, logger)
		router.Use(middleware.RateLimitMiddleware(rl))
	}

	// Status is public
	router.GET("/admin/status", handlers.AdminStatus)

	admin := router.Group("/admin")
	admin.Use(middleware.AdminAuthMiddleware(middleware.AdminAuthConfig{
		Token:     token,
		JWTSecret: cfg.JWTSecret,
		JWTIssuer: cfg.JWTIssuer,
	}, logger))
	{
		admin.POST("/start", handlers.Start)
		admin.POST("/stop", handlers.Stop)
		admin.PUT("/config", handlers.Configure)
		admin.GET("/events", handlers.ListEvents)
		admin.GET("/events/ws", handlers.EventStream)
	}

	return &AdminServer{
		srv: &http.Server{
			Addr:         cfg.Address(),
			Handler:      router,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			ErrorLog:     zap.NewStdLog(logger),
		},
		router: router,
		token:  token,
		logger: logger,
	}, nil
}

// Router returns the admin gin router
func (s *AdminServer) Router() *gin.Engine {
	return s.router
}

// Token returns the static bearer token, which may be empty when only JWT
// authentication is configured
func (s *AdminServer) Token() string {
	return s.token
}

// Start binds the admin address and serves in the background
func (s *AdminServer) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.ln = ln

	go func() {
		s.logger.Info("Admin server listening", zap.String("address", ln.Addr().String()))
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Admin server error", zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the bound address, or nil before Start
func (s *AdminServer) Addr() net.Addr {
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Shutdown gracefully stops the admin server
func (s *AdminServer) Shutdown(ctx context.Context) error {
	if s.ln == nil {
		return nil
	}
	if err := s.srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("admin server forced to shutdown: %w", err)
	}
	return nil
}
