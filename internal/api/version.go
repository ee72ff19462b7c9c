// Package api provides the HTTP handlers of the service: the root context
// served by the managed server and the admin API controlling it.
package api

// Version is the build version, set with -ldflags "-X .../internal/api.Version=..."
var Version = "dev"

// APIVersion is the admin API revision reported by the status endpoints.
// Clients use it to detect capabilities.
const APIVersion = 1

// ServiceName is reported by the status endpoints
const ServiceName = "httpservice"

// StatusResponse is the response from the /status endpoint of the managed
// server
type StatusResponse struct {
	Status     string `json:"status"`
	Service    string `json:"service"`
	Version    string `json:"version"`
	APIVersion int    `json:"api_version"`
	Handlers   int64  `json:"handlers"`
	Sessions   int64  `json:"sessions"`
}
