package engine

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-httpservice/pkg/config"
	"github.com/sirosfoundation/go-httpservice/pkg/middleware"
)

// Options holds settings shared by every engine a GinFactory creates
type Options struct {
	CORS         config.CORSConfig
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DefaultOptions returns the default engine options
func DefaultOptions() Options {
	return Options{
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

// GinFactory creates gin based engines
type GinFactory struct {
	logger *zap.Logger
	opts   Options
}

// NewGinFactory creates a factory
func NewGinFactory(logger *zap.Logger, opts Options) *GinFactory {
	return &GinFactory{
		logger: logger.Named("engine"),
		opts:   opts,
	}
}

// CreateServer returns a new, unstarted engine
func (f *GinFactory) CreateServer() Engine {
	return NewGinEngine(f.logger, f.opts)
}

// CreateConnector returns a plain HTTP connector
func (f *GinFactory) CreateConnector(host string, port int) *Connector {
	return &Connector{Host: host, Port: port}
}

// CreateSecureConnector loads the keystore and returns a TLS connector
func (f *GinFactory) CreateSecureConnector(host string, port int, keystore, password, keyPassword string) (*Connector, error) {
	cert, err := LoadKeystore(keystore, password, keyPassword)
	if err != nil {
		return nil, err
	}
	return &Connector{Host: host, Port: port, TLS: NewTLSConfig(cert)}, nil
}

type registration struct {
	name       string
	alias      string
	handler    http.Handler
	initParams map[string]string
}

// GinEngine serves a root context and alias mounted handlers on one or more
// connectors. Requests are routed through a single gin catch-all route so
// handlers can be mounted and unmounted while the engine runs.
type GinEngine struct {
	logger *zap.Logger
	opts   Options
	events dispatcher

	mu         sync.RWMutex
	connectors []*Connector
	root       http.Handler
	attributes map[string]any
	sessions   *SessionManager
	handlers   map[string]*registration
	aliases    map[string]*registration
	servers    []*http.Server
	addrs      []net.Addr
	started    bool
	stopped    bool
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewGinEngine creates an engine
func NewGinEngine(logger *zap.Logger, opts Options) *GinEngine {
	e := &GinEngine{
		logger:     logger,
		opts:       opts,
		attributes: map[string]any{},
		handlers:   make(map[string]*registration),
		aliases:    make(map[string]*registration),
	}
	e.sessions = e.newSessionManager(0)
	return e
}

func (e *GinEngine) newSessionManager(timeout time.Duration) *SessionManager {
	return NewSessionManager(timeout,
		func(s *Session) {
			e.events.fire(Event{Kind: EventSessionCreated, Name: s.ID()})
		},
		func(s *Session) {
			e.events.fire(Event{Kind: EventSessionDestroyed, Name: s.ID()})
		},
	)
}

// AddConnector implements Engine
func (e *GinEngine) AddConnector(c *Connector) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.connectors = append(e.connectors, c)
}

// Connectors returns the configured connectors
func (e *GinEngine) Connectors() []*Connector {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.connectors)
}

// AddContext implements Engine
func (e *GinEngine) AddContext(root http.Handler, attributes map[string]any, sessionTimeout time.Duration) {
	attrs := make(map[string]any, len(attributes))
	for k, v := range attributes {
		attrs[k] = v
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.root = root
	e.attributes = attrs
	e.sessions = e.newSessionManager(sessionTimeout)
}

// Start implements Engine
func (e *GinEngine) Start() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.started || e.stopped {
		return ErrAlreadyStarted
	}
	if len(e.connectors) == 0 {
		return ErrNoConnectors
	}

	if dir, ok := e.attributes[TempDirAttribute].(string); ok && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("failed to create temporary directory: %w", err)
		}
	}

	listeners := make([]net.Listener, 0, len(e.connectors))
	for _, c := range e.connectors {
		ln, err := c.listen()
		if err != nil {
			for _, bound := range listeners {
				_ = bound.Close()
			}
			return err
		}
		listeners = append(listeners, ln)
	}

	router := e.buildRouter()

	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.sessions.run(ctx)
	}()

	for i, ln := range listeners {
		srv := &http.Server{
			Handler:      router,
			ReadTimeout:  e.opts.ReadTimeout,
			WriteTimeout: e.opts.WriteTimeout,
			IdleTimeout:  e.opts.IdleTimeout,
			ErrorLog:     zap.NewStdLog(e.logger),
		}
		e.servers = append(e.servers, srv)
		e.addrs = append(e.addrs, ln.Addr())

		connector := e.connectors[i]
		e.logger.Info("Server listening",
			zap.String("scheme", connector.Scheme()),
			zap.String("address", ln.Addr().String()))

		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				e.logger.Error("Server error", zap.Stringer("connector", connector), zap.Error(err))
			}
		}()
	}

	e.started = true
	return nil
}

// Stop implements Engine. Handlers are destroyed and sessions invalidated
// even when draining connections fails.
func (e *GinEngine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		return nil
	}
	e.started = false
	e.stopped = true
	servers := e.servers
	e.servers = nil
	e.addrs = nil
	regs := make([]*registration, 0, len(e.handlers))
	for _, reg := range e.handlers {
		regs = append(regs, reg)
	}
	e.handlers = make(map[string]*registration)
	e.aliases = make(map[string]*registration)
	cancel := e.cancel
	e.mu.Unlock()

	var errs []error
	for _, srv := range servers {
		if err := srv.Shutdown(ctx); err != nil {
			e.logger.Warn("Graceful shutdown incomplete, closing connections", zap.Error(err))
			if cerr := srv.Close(); cerr != nil {
				errs = append(errs, cerr)
			}
		}
	}

	cancel()
	e.wg.Wait()

	for _, reg := range regs {
		e.destroy(reg)
	}
	e.sessions.InvalidateAll()

	return errors.Join(errs...)
}

// Addrs returns the bound listener addresses while the engine runs
func (e *GinEngine) Addrs() []net.Addr {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return slices.Clone(e.addrs)
}

// Sessions returns the session manager of the root context
func (e *GinEngine) Sessions() *SessionManager {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sessions
}

// Handlers returns the mounted aliases and their registration names
func (e *GinEngine) Handlers() map[string]string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]string, len(e.aliases))
	for alias, reg := range e.aliases {
		out[alias] = reg.name
	}
	return out
}

// AddHandler implements Engine. Init runs before the handler becomes
// reachable; if it fails the handler is not mounted.
func (e *GinEngine) AddHandler(alias string, h http.Handler, initParams map[string]string) (string, error) {
	if err := validateAlias(alias); err != nil {
		return "", err
	}
	if h == nil {
		return "", fmt.Errorf("%w: nil handler", ErrInvalidAlias)
	}

	e.mu.RLock()
	started := e.started
	_, taken := e.aliases[alias]
	e.mu.RUnlock()
	if !started {
		return "", ErrNotStarted
	}
	if taken {
		return "", fmt.Errorf("%w: %s", ErrAliasInUse, alias)
	}

	params := make(map[string]string, len(initParams))
	for k, v := range initParams {
		params[k] = v
	}
	if init, ok := h.(Initializer); ok {
		if err := init.Init(params); err != nil {
			return "", fmt.Errorf("failed to initialize handler for %s: %w", alias, err)
		}
	}

	reg := &registration{
		name:       uuid.NewString(),
		alias:      alias,
		handler:    h,
		initParams: params,
	}

	e.mu.Lock()
	if !e.started {
		e.mu.Unlock()
		e.destroy(reg)
		return "", ErrNotStarted
	}
	if _, taken := e.aliases[alias]; taken {
		e.mu.Unlock()
		e.destroy(reg)
		return "", fmt.Errorf("%w: %s", ErrAliasInUse, alias)
	}
	e.handlers[reg.name] = reg
	e.aliases[alias] = reg
	e.mu.Unlock()

	e.logger.Info("Handler registered", zap.String("alias", alias), zap.String("name", reg.name))
	e.events.fire(Event{Kind: EventHandlerAdded, Name: reg.name, Alias: alias})
	return reg.name, nil
}

// RemoveHandler implements Engine
func (e *GinEngine) RemoveHandler(name string) error {
	e.mu.Lock()
	reg, ok := e.handlers[name]
	if !ok {
		e.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrHandlerNotFound, name)
	}
	delete(e.handlers, name)
	delete(e.aliases, reg.alias)
	e.mu.Unlock()

	e.logger.Info("Handler removed", zap.String("alias", reg.alias), zap.String("name", name))
	e.destroy(reg)
	return nil
}

func (e *GinEngine) destroy(reg *registration) {
	if d, ok := reg.handler.(Destroyer); ok {
		d.Destroy()
	}
	e.events.fire(Event{Kind: EventHandlerRemoved, Name: reg.name, Alias: reg.alias})
}

// AddEventListener implements Engine
func (e *GinEngine) AddEventListener(l EventListener) {
	if !e.events.add(l) {
		e.logger.Warn("Ignoring event listener that is nil or not comparable", zap.String("type", fmt.Sprintf("%T", l)))
	}
}

// RemoveEventListener implements Engine
func (e *GinEngine) RemoveEventListener(l EventListener) {
	e.events.remove(l)
}

// buildRouter creates the router with common middleware. Any("/*path")
// is used instead of NoRoute so the handler chooses the response status.
func (e *GinEngine) buildRouter() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.Logger(e.logger))
	if e.opts.CORS.Enabled() {
		router.Use(middleware.CORS(e.opts.CORS))
	}
	router.Any("/*path", e.dispatch)
	return router
}

func (e *GinEngine) dispatch(c *gin.Context) {
	r := c.Request

	e.mu.RLock()
	reg := e.match(r.URL.Path)
	root := e.root
	attrs := e.attributes
	sessions := e.sessions
	e.mu.RUnlock()

	scope := &sessionScope{manager: sessions, w: c.Writer}
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		if s, ok := sessions.Lookup(cookie.Value); ok {
			scope.session = s
		}
	}

	ctx := withSessionScope(withAttributes(r.Context(), attrs), scope)

	var h http.Handler
	switch {
	case reg != nil:
		ctx = withRegistration(ctx, reg)
		h = reg.handler
	case root != nil:
		h = root
	default:
		h = http.NotFoundHandler()
	}
	h.ServeHTTP(c.Writer, r.WithContext(ctx))
}

// match returns the registration with the longest alias covering path;
// e.mu must be held
func (e *GinEngine) match(path string) *registration {
	var best *registration
	for alias, reg := range e.aliases {
		if !aliasCovers(alias, path) {
			continue
		}
		if best == nil || len(alias) > len(best.alias) {
			best = reg
		}
	}
	return best
}

func aliasCovers(alias, path string) bool {
	if alias == "/" {
		return true
	}
	if !strings.HasPrefix(path, alias) {
		return false
	}
	return len(path) == len(alias) || path[len(alias)] == '/'
}

func validateAlias(alias string) error {
	if alias == "" || !strings.HasPrefix(alias, "/") {
		return fmt.Errorf("%w: %q must start with /", ErrInvalidAlias, alias)
	}
	if alias != "/" && strings.HasSuffix(alias, "/") {
		return fmt.Errorf("%w: %q must not end with /", ErrInvalidAlias, alias)
	}
	return nil
}
