package api

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ssargent/pinkv/pkg/logging"
	"github.com/ssargent/pinkv/pkg/metrics"
)

const (
	// APIKeyHeader carries the client API key.
	APIKeyHeader = "X-API-Key"
	// RequestIDHeader carries the request id, generated when absent.
	RequestIDHeader = "X-Request-ID"

	defaultMaxValueSize    = 64 << 20
	defaultShutdownTimeout = 10 * time.Second
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// ServerConfig holds configuration for the API server
type ServerConfig struct {
	Bind            string
	Port            int
	APIKey          string
	MaxValueSize    int64         // Largest accepted PUT body
	ShutdownTimeout time.Duration // Grace period for in-flight requests
}

// Deps are the collaborators shared with the rest of the process.
type Deps struct {
	Logger   *logging.Logger
	Metrics  *metrics.Metrics
	Gatherer prometheus.Gatherer // Served on /metrics
}

// HealthResponse is the payload of GET /health.
type HealthResponse struct {
	Status      string `json:"status"`
	Backend     string `json:"backend"`
	EngineID    string `json:"engine_id"`
	Outstanding int    `json:"outstanding_pins,omitempty"`
}

// WriteResponse is the payload of successful PUT and DELETE requests.
type WriteResponse struct {
	Key          string `json:"key"`
	ColumnFamily string `json:"column_family"`
	Bytes        int    `json:"bytes,omitempty"`
}
