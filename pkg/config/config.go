package config

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/sirosfoundation/go-httpservice/pkg/logging"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfiguration `yaml:"server" envconfig:"SERVER"`
	CORS    CORSConfig          `yaml:"cors" envconfig:"CORS"`
	Admin   AdminConfig         `yaml:"admin" envconfig:"ADMIN"`
	Journal JournalConfig       `yaml:"journal" envconfig:"JOURNAL"`
	Logging logging.Config      `yaml:"logging" envconfig:"LOGGING"`
}

// ServerConfiguration describes how the managed HTTP server listens.
// A value is treated as immutable once handed to the controller; use Clone
// to derive a modified copy.
type ServerConfiguration struct {
	Host string `yaml:"host" envconfig:"HOST"`

	HTTPEnabled bool `yaml:"http_enabled" envconfig:"HTTP_ENABLED"`
	HTTPPort    int  `yaml:"http_port" envconfig:"HTTP_PORT"`

	HTTPSecureEnabled bool   `yaml:"https_enabled" envconfig:"HTTPS_ENABLED"`
	HTTPSecurePort    int    `yaml:"https_port" envconfig:"HTTPS_PORT"`
	SSLKeystore       string `yaml:"ssl_keystore" envconfig:"SSL_KEYSTORE"`         // PKCS#12 or PEM file
	SSLPassword       string `yaml:"ssl_password" envconfig:"SSL_PASSWORD"`         // keystore password
	SSLKeyPassword    string `yaml:"ssl_key_password" envconfig:"SSL_KEY_PASSWORD"` // private key password

	TemporaryDirectory string `yaml:"temp_dir" envconfig:"TEMP_DIR"`
	SessionTimeout     int    `yaml:"session_timeout" envconfig:"SESSION_TIMEOUT"`   // seconds, 0 disables expiry
	ShutdownTimeout    int    `yaml:"shutdown_timeout" envconfig:"SHUTDOWN_TIMEOUT"` // seconds
}

// CORSConfig contains CORS settings applied to the managed server and the admin API.
// It is fixed for the life of the process.
type CORSConfig struct {
	AllowedOrigins   []string `yaml:"allowed_origins" envconfig:"ALLOWED_ORIGINS"`
	AllowedMethods   []string `yaml:"allowed_methods" envconfig:"ALLOWED_METHODS"`
	AllowedHeaders   []string `yaml:"allowed_headers" envconfig:"ALLOWED_HEADERS"`
	ExposedHeaders   []string `yaml:"exposed_headers" envconfig:"EXPOSED_HEADERS"`
	AllowCredentials bool     `yaml:"allow_credentials" envconfig:"ALLOW_CREDENTIALS"`
	MaxAge           int      `yaml:"max_age" envconfig:"MAX_AGE"` // seconds
}

// Enabled reports whether any origin is configured
func (c CORSConfig) Enabled() bool {
	return len(c.AllowedOrigins) > 0
}

// AdminConfig contains the control API configuration
type AdminConfig struct {
	Enabled   bool   `yaml:"enabled" envconfig:"ENABLED"`
	Host      string `yaml:"host" envconfig:"HOST"`
	Port      int    `yaml:"port" envconfig:"PORT"`
	Token     string `yaml:"token" envconfig:"TOKEN"`           // Bearer token (auto-generated if empty)
	JWTSecret string `yaml:"jwt_secret" envconfig:"JWT_SECRET"` // optional HS256 secret for JWT bearer tokens
	JWTIssuer string `yaml:"jwt_issuer" envconfig:"JWT_ISSUER"`
	RateLimit int    `yaml:"rate_limit" envconfig:"RATE_LIMIT"` // requests per minute per client, 0 disables
}

// Address returns the admin server address
func (c AdminConfig) Address() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// JournalConfig selects where lifecycle events are recorded
type JournalConfig struct {
	Type     string        `yaml:"type" envconfig:"TYPE"` // memory, mongodb
	Capacity int           `yaml:"capacity" envconfig:"CAPACITY"`
	MongoDB  MongoDBConfig `yaml:"mongodb" envconfig:"MONGODB"`
}

// MongoDBConfig contains MongoDB-specific configuration
type MongoDBConfig struct {
	URI        string `yaml:"uri" envconfig:"URI"`
	Database   string `yaml:"database" envconfig:"DATABASE"`
	Collection string `yaml:"collection" envconfig:"COLLECTION"`
	Timeout    int    `yaml:"timeout" envconfig:"TIMEOUT"` // seconds
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	cfg := defaultConfig()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// missing file: defaults and env vars only
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Environment variables have the highest priority
	if err := envconfig.Process("HTTPSERVICE", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible default values
func defaultConfig() *Config {
	return &Config{
		Server: DefaultServerConfiguration(),
		Admin: AdminConfig{
			Enabled:   true,
			Host:      "127.0.0.1",
			Port:      8181,
			RateLimit: 120,
		},
		Journal: JournalConfig{
			Type:     "memory",
			Capacity: 1000,
			MongoDB: MongoDBConfig{
				URI:        "mongodb://localhost:27017",
				Database:   "httpservice",
				Collection: "lifecycle_events",
				Timeout:    10,
			},
		},
		Logging: logging.DefaultConfig(),
	}
}

// DefaultServerConfiguration returns a plain HTTP configuration on port 8080
func DefaultServerConfiguration() ServerConfiguration {
	return ServerConfiguration{
		Host:               "0.0.0.0",
		HTTPEnabled:        true,
		HTTPPort:           8080,
		HTTPSecurePort:     8443,
		TemporaryDirectory: filepath.Join(os.TempDir(), "httpservice"),
		SessionTimeout:     1800,
		ShutdownTimeout:    30,
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return err
	}

	if c.Admin.Enabled && (c.Admin.Port < 0 || c.Admin.Port > 65535) {
		return fmt.Errorf("invalid admin port: %d", c.Admin.Port)
	}
	if c.Admin.RateLimit < 0 {
		return fmt.Errorf("admin rate_limit must not be negative")
	}

	switch c.Journal.Type {
	case "memory":
	case "mongodb":
		if c.Journal.MongoDB.URI == "" {
			return fmt.Errorf("mongodb uri is required when using mongodb journal")
		}
	default:
		return fmt.Errorf("invalid journal type: %s (must be memory or mongodb)", c.Journal.Type)
	}

	return nil
}

// Validate checks that the server configuration can be used to start a server
func (c *ServerConfiguration) Validate() error {
	if !c.HTTPEnabled && !c.HTTPSecureEnabled {
		return fmt.Errorf("at least one of http_enabled or https_enabled is required")
	}

	if c.HTTPEnabled && !validPort(c.HTTPPort) {
		return fmt.Errorf("invalid http port: %d", c.HTTPPort)
	}

	if c.HTTPSecureEnabled {
		if !validPort(c.HTTPSecurePort) {
			return fmt.Errorf("invalid https port: %d", c.HTTPSecurePort)
		}
		if c.SSLKeystore == "" {
			return fmt.Errorf("ssl_keystore is required when https is enabled")
		}
	}

	if c.HTTPEnabled && c.HTTPSecureEnabled && c.HTTPPort != 0 && c.HTTPPort == c.HTTPSecurePort {
		return fmt.Errorf("http and https ports must differ: %d", c.HTTPPort)
	}

	if c.SessionTimeout < 0 {
		return fmt.Errorf("invalid session timeout: %d", c.SessionTimeout)
	}

	if c.ShutdownTimeout < 0 {
		return fmt.Errorf("invalid shutdown timeout: %d", c.ShutdownTimeout)
	}

	return nil
}

// port 0 asks the kernel for an ephemeral port
func validPort(port int) bool {
	return port >= 0 && port <= 65535
}

// Clone returns a copy
func (c *ServerConfiguration) Clone() *ServerConfiguration {
	if c == nil {
		return nil
	}
	out := *c
	return &out
}

// HTTPAddress returns the plain listener address
func (c *ServerConfiguration) HTTPAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.HTTPPort))
}

// HTTPSecureAddress returns the TLS listener address
func (c *ServerConfiguration) HTTPSecureAddress() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.HTTPSecurePort))
}

// SessionTimeoutDuration returns the session idle timeout
func (c *ServerConfiguration) SessionTimeoutDuration() time.Duration {
	return time.Duration(c.SessionTimeout) * time.Second
}

// DefaultShutdownTimeout is used when shutdown_timeout is not set
const DefaultShutdownTimeout = 30 * time.Second

// ShutdownTimeoutDuration returns the graceful shutdown budget. Zero means
// DefaultShutdownTimeout.
func (c *ServerConfiguration) ShutdownTimeoutDuration() time.Duration {
	if c.ShutdownTimeout <= 0 {
		return DefaultShutdownTimeout
	}
	return time.Duration(c.ShutdownTimeout) * time.Second
}

// String describes the configuration without secrets
func (c *ServerConfiguration) String() string {
	if c == nil {
		return "<nil>"
	}
	var parts []string
	if c.HTTPEnabled {
		parts = append(parts, "http="+c.HTTPAddress())
	}
	if c.HTTPSecureEnabled {
		parts = append(parts, "https="+c.HTTPSecureAddress(), "keystore="+c.SSLKeystore)
	}
	parts = append(parts,
		"tempdir="+c.TemporaryDirectory,
		fmt.Sprintf("session_timeout=%ds", c.SessionTimeout),
	)
	return "ServerConfiguration{" + strings.Join(parts, ", ") + "}"
}
