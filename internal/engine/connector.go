package engine

import (
	"crypto/tls"
	"fmt"
	"net"
	"strconv"
)

// Connector describes a listening endpoint
type Connector struct {
	Host string
	Port int
	// TLS is nil for plain connectors
	TLS *tls.Config
}

// Secure reports whether the connector terminates TLS
func (c *Connector) Secure() bool {
	return c.TLS != nil
}

// Scheme returns http or https
func (c *Connector) Scheme() string {
	if c.Secure() {
		return "https"
	}
	return "http"
}

// Address returns host:port
func (c *Connector) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

func (c *Connector) String() string {
	return c.Scheme() + "://" + c.Address()
}

func (c *Connector) listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", c.Address())
	if err != nil {
		return nil, fmt.Errorf("failed to bind %s: %w", c, err)
	}
	if c.TLS != nil {
		return tls.NewListener(ln, c.TLS), nil
	}
	return ln, nil
}
