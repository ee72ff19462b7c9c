package server

import (
	"context"
	"fmt"
	"net/http"
	"reflect"
	"slices"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/sirosfoundation/go-httpservice/internal/engine"
	"github.com/sirosfoundation/go-httpservice/pkg/config"
)

// Controller sequences the lifecycle of one embedded HTTP server.
// All mutating operations are serialized by a single mutex.
type Controller struct {
	factory engine.Factory
	root    http.Handler
	logger  *zap.Logger

	mu              sync.Mutex
	engine          engine.Engine
	listeners       []Listener
	engineListeners []engine.EventListener

	// written under mu, read without it
	state     atomic.Int32
	config    atomic.Pointer[config.ServerConfiguration]
	notifying atomic.Bool
}

// NewController creates an unconfigured controller. root serves every
// request not matched by a registered handler.
func NewController(factory engine.Factory, root http.Handler, logger *zap.Logger) *Controller {
	c := &Controller{
		factory: factory,
		root:    root,
		logger:  logger.Named("controller"),
	}
	c.state.Store(int32(StateUnconfigured))
	return c
}

// State returns the current lifecycle state
func (c *Controller) State() State {
	return State(c.state.Load())
}

// IsStarted reports whether the server is running
func (c *Controller) IsStarted() bool {
	return c.State() == StateStarted
}

// Configuration returns a copy of the current configuration, or nil before
// the first Configure
func (c *Controller) Configuration() *config.ServerConfiguration {
	return c.config.Load().Clone()
}

func (c *Controller) String() string {
	return fmt.Sprintf("Controller{state=%s}", c.State())
}

// Start builds and starts a new engine from the current configuration.
// On failure the controller stays STOPPED and holds no engine.
func (c *Controller) Start() error {
	if err := c.lock("Start"); err != nil {
		return err
	}
	defer c.mu.Unlock()

	c.logger.Info("Starting server", zap.Stringer("controller", c))
	return c.apply(opStart)
}

// Stop stops the running engine. It is a no-op unless the server is started
// and never fails; engine errors are logged.
func (c *Controller) Stop() {
	if err := c.lock("Stop"); err != nil {
		c.logger.Warn("Stop rejected", zap.Error(err))
		return
	}
	defer c.mu.Unlock()

	c.logger.Info("Stopping server", zap.Stringer("controller", c))
	if err := c.apply(opStop); err != nil {
		c.logger.Error("Stop failed", zap.Error(err))
	}
}

// Configure replaces the configuration. A running server is restarted with
// it; if that restart fails the controller ends up STOPPED and the error is
// returned.
func (c *Controller) Configure(cfg *config.ServerConfiguration) error {
	if cfg == nil {
		return fmt.Errorf("%w: configuration is nil", ErrInvalidArgument)
	}

	if err := c.lock("Configure"); err != nil {
		return err
	}
	defer c.mu.Unlock()

	c.config.Store(cfg.Clone())
	c.logger.Info("Configuring server",
		zap.Stringer("controller", c),
		zap.Stringer("configuration", cfg))
	return c.apply(opConfigure)
}

// lock acquires c.mu for a mutating operation. Listeners run with c.mu
// held, so a call made while they are notified would never get the lock.
func (c *Controller) lock(op string) error {
	if c.notifying.Load() {
		return fmt.Errorf("%w: %s called while listeners are notified", ErrIllegalLifecycle, op)
	}
	c.mu.Lock()
	return nil
}

// apply plans op against the current state and executes the effects;
// c.mu must be held
func (c *Controller) apply(op operation) error {
	t, err := plan(c.State(), op)
	if err != nil {
		return err
	}

	for _, e := range t.effects {
		switch e {
		case effectStopEngine:
			c.stopEngine()
			c.setState(StateStopped)
			c.fire(EventStopped)
		case effectStartEngine:
			eng, err := c.startEngine(c.config.Load())
			if err != nil {
				return err
			}
			c.engine = eng
			c.setState(StateStarted)
			c.fire(EventStarted)
		case effectNotifyConfigured:
			c.setState(StateStopped)
			c.fire(EventConfigured)
		}
	}

	c.setState(t.to)
	return nil
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
}

func (c *Controller) startEngine(cfg *config.ServerConfiguration) (_ engine.Engine, err error) {
	eng := c.factory.CreateServer()
	defer func() {
		if err != nil {
			c.releaseEngine(eng, cfg)
		}
	}()

	for _, l := range c.engineListeners {
		eng.AddEventListener(l)
	}
	if cfg.HTTPEnabled {
		eng.AddConnector(c.factory.CreateConnector(cfg.Host, cfg.HTTPPort))
	}
	if cfg.HTTPSecureEnabled {
		conn, err := c.factory.CreateSecureConnector(cfg.Host, cfg.HTTPSecurePort,
			cfg.SSLKeystore, cfg.SSLPassword, cfg.SSLKeyPassword)
		if err != nil {
			return nil, fmt.Errorf("failed to create secure connector: %w", err)
		}
		eng.AddConnector(conn)
	}

	attrs := map[string]any{engine.TempDirAttribute: cfg.TemporaryDirectory}
	eng.AddContext(c.root, attrs, cfg.SessionTimeoutDuration())

	if err := eng.Start(); err != nil {
		return nil, fmt.Errorf("failed to start server: %w", err)
	}

	c.logger.Info("Server started", zap.Stringer("configuration", cfg))
	return eng, nil
}

func (c *Controller) stopEngine() {
	if c.engine == nil {
		return
	}
	c.releaseEngine(c.engine, c.config.Load())
	c.engine = nil
	c.logger.Info("Server stopped")
}

func (c *Controller) releaseEngine(eng engine.Engine, cfg *config.ServerConfiguration) {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeoutDuration())
	defer cancel()
	if err := eng.Stop(ctx); err != nil {
		c.logger.Warn("Engine stop reported an error", zap.Error(err))
	}
}

// fire notifies listeners in registration order; c.mu must be held
func (c *Controller) fire(e Event) {
	c.logger.Debug("Lifecycle event", zap.String("event", string(e)))
	c.notifying.Store(true)
	defer c.notifying.Store(false)
	for _, l := range c.listeners {
		l.StateChanged(e)
	}
}

// isComparable reports whether l can be found again with ==. Listener sets
// compare by identity; a slice-backed value type would panic.
func isComparable(l any) bool {
	return reflect.ValueOf(l).Comparable()
}

// AddListener registers l for lifecycle events. Adding a listener twice has
// no effect. l must be comparable, typically a pointer.
func (c *Controller) AddListener(l Listener) error {
	if l == nil {
		return fmt.Errorf("%w: listener is nil", ErrInvalidArgument)
	}
	if !isComparable(l) {
		return fmt.Errorf("%w: listener of type %T is not comparable", ErrInvalidArgument, l)
	}

	if err := c.lock("AddListener"); err != nil {
		return err
	}
	defer c.mu.Unlock()
	if !slices.Contains(c.listeners, l) {
		c.listeners = append(c.listeners, l)
	}
	return nil
}

// RemoveListener unregisters l
func (c *Controller) RemoveListener(l Listener) {
	if l == nil || !isComparable(l) {
		return
	}
	if err := c.lock("RemoveListener"); err != nil {
		c.logger.Warn("RemoveListener rejected", zap.Error(err))
		return
	}
	defer c.mu.Unlock()
	c.listeners = slices.DeleteFunc(c.listeners, func(x Listener) bool { return x == l })
}

// AddHandler mounts h under alias on the running engine and returns the
// registration name. When the server is not started the registration is
// dropped and the name is empty.
func (c *Controller) AddHandler(alias string, h http.Handler, initParams map[string]string) (string, error) {
	if alias == "" {
		return "", fmt.Errorf("%w: alias is empty", ErrInvalidArgument)
	}
	if h == nil {
		return "", fmt.Errorf("%w: handler is nil", ErrInvalidArgument)
	}

	if err := c.lock("AddHandler"); err != nil {
		return "", err
	}
	defer c.mu.Unlock()

	if c.State() != StateStarted {
		c.logger.Debug("Dropping handler registration, server not started", zap.String("alias", alias))
		return "", nil
	}
	return c.engine.AddHandler(alias, h, initParams)
}

// RemoveHandler unmounts a registration made with AddHandler. It is a no-op
// when the server is not started.
func (c *Controller) RemoveHandler(name string) error {
	if name == "" {
		return fmt.Errorf("%w: name is empty", ErrInvalidArgument)
	}

	if err := c.lock("RemoveHandler"); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if c.State() != StateStarted {
		return nil
	}
	return c.engine.RemoveHandler(name)
}

// AddEventListener registers an engine event listener on the running
// engine. It is a no-op when the server is not started.
func (c *Controller) AddEventListener(l engine.EventListener) error {
	if err := checkEventListener(l); err != nil {
		return err
	}

	if err := c.lock("AddEventListener"); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if c.State() == StateStarted {
		c.engine.AddEventListener(l)
	}
	return nil
}

// RemoveEventListener unregisters an engine event listener from the running
// engine. It is a no-op when the server is not started.
func (c *Controller) RemoveEventListener(l engine.EventListener) error {
	if err := checkEventListener(l); err != nil {
		return err
	}

	if err := c.lock("RemoveEventListener"); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if c.State() == StateStarted {
		c.engine.RemoveEventListener(l)
	}
	return nil
}

// AddEngineListener registers l on the running engine and on every engine
// started afterwards. It is attached before the engine starts, so it sees
// every event of the engine. Adding a listener twice has no effect.
func (c *Controller) AddEngineListener(l engine.EventListener) error {
	if err := checkEventListener(l); err != nil {
		return err
	}

	if err := c.lock("AddEngineListener"); err != nil {
		return err
	}
	defer c.mu.Unlock()

	if slices.Contains(c.engineListeners, l) {
		return nil
	}
	c.engineListeners = append(c.engineListeners, l)
	if c.State() == StateStarted {
		c.engine.AddEventListener(l)
	}
	return nil
}

// RemoveEngineListener undoes AddEngineListener
func (c *Controller) RemoveEngineListener(l engine.EventListener) error {
	if err := checkEventListener(l); err != nil {
		return err
	}

	if err := c.lock("RemoveEngineListener"); err != nil {
		return err
	}
	defer c.mu.Unlock()

	c.engineListeners = slices.DeleteFunc(c.engineListeners, func(x engine.EventListener) bool { return x == l })
	if c.State() == StateStarted {
		c.engine.RemoveEventListener(l)
	}
	return nil
}

func checkEventListener(l engine.EventListener) error {
	if l == nil {
		return fmt.Errorf("%w: event listener is nil", ErrInvalidArgument)
	}
	if !isComparable(l) {
		return fmt.Errorf("%w: event listener of type %T is not comparable", ErrInvalidArgument, l)
	}
	return nil
}
