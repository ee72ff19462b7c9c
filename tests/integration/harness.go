// Package integration runs the controller, the gin engine and the admin API
// together against real listeners.
package integration

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/sirosfoundation/go-httpservice/internal/api"
	"github.com/sirosfoundation/go-httpservice/internal/engine"
	"github.com/sirosfoundation/go-httpservice/internal/journal"
	"github.com/sirosfoundation/go-httpservice/internal/server"
	"github.com/sirosfoundation/go-httpservice/internal/storage/memory"
	"github.com/sirosfoundation/go-httpservice/internal/websocket"
	"github.com/sirosfoundation/go-httpservice/pkg/config"
)

// TestHarness wires a controller and its admin API the way serve does
type TestHarness struct {
	T          *testing.T
	Controller *server.Controller
	Root       *api.RootHandler
	Journal    *memory.Store
	Hub        *websocket.Hub
	Logger     *zap.Logger

	// Admin is the admin API test server
	Admin *httptest.Server

	// Client is a pre-configured HTTP client for making requests
	Client *http.Client

	// AdminToken is the bearer token for admin API authentication
	AdminToken string
}

// NewTestHarness creates an unconfigured controller behind a running admin API
func NewTestHarness(t *testing.T) *TestHarness {
	t.Helper()

	gin.SetMode(gin.TestMode)
	logger, _ := zap.NewDevelopment()

	h := &TestHarness{
		T:          t,
		Root:       api.NewRootHandler(),
		Journal:    memory.NewStore(100),
		Logger:     logger,
		Client:     &http.Client{},
		AdminToken: "test-admin-token-for-integration-tests",
	}

	h.Controller = server.NewController(engine.NewGinFactory(logger, engine.DefaultOptions()), h.Root, logger)
	recorder := journal.NewRecorder(h.Journal, h.Controller, logger, journal.DefaultBufferSize)
	h.Hub = websocket.NewHub(h.Controller, nil, logger)
	if err := h.Controller.AddListener(recorder); err != nil {
		t.Fatalf("Failed to add recorder: %v", err)
	}
	if err := h.Controller.AddListener(h.Hub); err != nil {
		t.Fatalf("Failed to add hub: %v", err)
	}
	if err := h.Controller.AddEngineListener(h.Root); err != nil {
		t.Fatalf("Failed to add root handler: %v", err)
	}

	handlers := api.NewAdminHandlers(h.Controller, h.Journal, h.Hub, logger)
	adminSrv, err := api.NewAdminServer(config.AdminConfig{Token: h.AdminToken}, config.CORSConfig{}, handlers, logger)
	if err != nil {
		t.Fatalf("Failed to create admin server: %v", err)
	}
	h.Admin = httptest.NewServer(adminSrv.Router())

	t.Cleanup(func() {
		h.Admin.Close()
		h.Controller.Stop()
		h.Hub.Close()
		recorder.Close()
	})

	return h
}

// ServerConfig returns a plain HTTP configuration on a free loopback port
func (h *TestHarness) ServerConfig() map[string]any {
	h.T.Helper()
	return map[string]any{
		"host":         "127.0.0.1",
		"http_enabled": true,
		"http_port":    FreePort(h.T),
		"temp_dir":     h.T.TempDir(),
	}
}

// ManagedURL returns the base URL of the managed server
func (h *TestHarness) ManagedURL() string {
	cfg := h.Controller.Configuration()
	return fmt.Sprintf("http://%s", cfg.HTTPAddress())
}

// FreePort returns a loopback port that was free a moment ago
func FreePort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to find a free port: %v", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port
}

// Request makes an authenticated request to the admin API
func (h *TestHarness) Request(method, path string, body interface{}) *Response {
	h.T.Helper()

	var bodyReader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			h.T.Fatalf("Failed to marshal request body: %v", err)
		}
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequest(method, h.Admin.URL+path, bodyReader)
	if err != nil {
		h.T.Fatalf("Failed to create request: %v", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if h.AdminToken != "" {
		req.Header.Set("Authorization", "Bearer "+h.AdminToken)
	}

	return h.Do(req)
}

// Do executes an HTTP request and returns a Response wrapper
func (h *TestHarness) Do(req *http.Request) *Response {
	h.T.Helper()

	resp, err := h.Client.Do(req)
	if err != nil {
		h.T.Fatalf("Request failed: %v", err)
	}

	return &Response{
		T:        h.T,
		Response: resp,
	}
}

// GET makes a GET request to the admin API
func (h *TestHarness) GET(path string) *Response {
	return h.Request(http.MethodGet, path, nil)
}

// POST makes a POST request to the admin API
func (h *TestHarness) POST(path string, body interface{}) *Response {
	return h.Request(http.MethodPost, path, body)
}

// PUT makes a PUT request to the admin API
func (h *TestHarness) PUT(path string, body interface{}) *Response {
	return h.Request(http.MethodPut, path, body)
}

// Managed makes a GET request to the managed server
func (h *TestHarness) Managed(path string) (*Response, error) {
	resp, err := h.Client.Get(h.ManagedURL() + path)
	if err != nil {
		return nil, err
	}
	return &Response{T: h.T, Response: resp}, nil
}

// Response wraps http.Response with assertion helpers
type Response struct {
	T        *testing.T
	Response *http.Response
	body     []byte
	bodyRead bool
}

// Body returns the response body as bytes
func (r *Response) Body() []byte {
	r.T.Helper()
	if !r.bodyRead {
		var err error
		r.body, err = io.ReadAll(r.Response.Body)
		if err != nil {
			r.T.Fatalf("Failed to read response body: %v", err)
		}
		r.Response.Body.Close()
		r.bodyRead = true
	}
	return r.body
}

// JSON unmarshals the response body into the given target
func (r *Response) JSON(target interface{}) *Response {
	r.T.Helper()
	if err := json.Unmarshal(r.Body(), target); err != nil {
		r.T.Fatalf("Failed to unmarshal response: %v\nBody: %s", err, string(r.Body()))
	}
	return r
}

// Status asserts the response status code
func (r *Response) Status(expected int) *Response {
	r.T.Helper()
	if r.Response.StatusCode != expected {
		r.T.Errorf("Expected status %d, got %d\nBody: %s", expected, r.Response.StatusCode, string(r.Body()))
	}
	return r
}

// BodyContains asserts the response body contains a substring
func (r *Response) BodyContains(substr string) *Response {
	r.T.Helper()
	if !bytes.Contains(r.Body(), []byte(substr)) {
		r.T.Errorf("Expected body to contain %q\nBody: %s", substr, string(r.Body()))
	}
	return r
}
