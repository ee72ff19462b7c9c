// Package engine provides the embeddable HTTP server driven by the lifecycle
// controller.
//
// An Engine is assembled in three steps before it is started: connectors
// describe where it listens (plain or TLS), a root context supplies the
// fallback handler together with context attributes and the session timeout,
// and named handlers are mounted under aliases while it runs.
//
//	eng := factory.CreateServer()
//	eng.AddConnector(factory.CreateConnector("0.0.0.0", 8080))
//	eng.AddContext(root, map[string]any{engine.TempDirAttribute: "/tmp/svc"}, 30*time.Minute)
//	if err := eng.Start(); err != nil { ... }
//	name, err := eng.AddHandler("/hello", hello, nil)
//
// An Engine is used for a single start/stop cycle; a new one is created for
// every start.
package engine

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"
)

var (
	ErrAlreadyStarted  = errors.New("engine already started")
	ErrNoConnectors    = errors.New("no connectors configured")
	ErrNotStarted      = errors.New("engine not started")
	ErrInvalidAlias    = errors.New("invalid alias")
	ErrAliasInUse      = errors.New("alias already in use")
	ErrHandlerNotFound = errors.New("handler not found")
	ErrKeystore        = errors.New("keystore error")
)

// Engine is an embeddable HTTP server
type Engine interface {
	// AddConnector adds a listening endpoint. Connectors are bound by Start.
	AddConnector(c *Connector)

	// AddContext installs the root handler, which serves every request not
	// matched by a registered alias, with its attributes and session timeout.
	AddContext(root http.Handler, attributes map[string]any, sessionTimeout time.Duration)

	// Start binds all connectors and begins serving. If any connector fails to
	// bind, listeners already bound are closed before the error is returned.
	Start() error

	// Stop drains in-flight requests until ctx is done, then closes the
	// remaining connections.
	Stop(ctx context.Context) error

	// AddHandler mounts h under alias and returns the registration name.
	AddHandler(alias string, h http.Handler, initParams map[string]string) (string, error)

	// RemoveHandler unmounts the registration returned by AddHandler.
	RemoveHandler(name string) error

	AddEventListener(l EventListener)
	RemoveEventListener(l EventListener)
}

// Factory creates engines and their connectors
type Factory interface {
	CreateServer() Engine
	CreateConnector(host string, port int) *Connector
	CreateSecureConnector(host string, port int, keystore, password, keyPassword string) (*Connector, error)
}

// Initializer is implemented by handlers that need their init parameters
// before serving. A failing Init aborts the registration.
type Initializer interface {
	Init(params map[string]string) error
}

// Destroyer is implemented by handlers that release resources when they are
// unmounted or the engine stops.
type Destroyer interface {
	Destroy()
}

// Addresser is implemented by engines that can report their bound addresses
type Addresser interface {
	Addrs() []net.Addr
}
