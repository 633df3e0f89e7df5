package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"time"
)

// HealthCheck probes one dependency.
type HealthCheck func(ctx context.Context) error

// HealthCheckConfig holds configuration for health checks
type HealthCheckConfig struct {
	Timeout time.Duration // per check
}

// DefaultHealthCheckConfig returns default health check configuration
func DefaultHealthCheckConfig() HealthCheckConfig {
	return HealthCheckConfig{
		Timeout: 3 * time.Second,
	}
}

type HealthHandler struct {
	config   HealthCheckConfig
	version  string
	checks   map[string]HealthCheck
	critical map[string]bool
}

func NewHealthHandler(version string) *HealthHandler {
	return &HealthHandler{
		config:   DefaultHealthCheckConfig(),
		version:  version,
		checks:   make(map[string]HealthCheck),
		critical: make(map[string]bool),
	}
}

// WithCheck registers a dependency probe. A failing critical probe makes the
// service unhealthy; any other failure only degrades it.
func (h *HealthHandler) WithCheck(name string, critical bool, check HealthCheck) *HealthHandler {
	h.checks[name] = check
	h.critical[name] = critical
	return h
}

type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

type DetailedHealthResponse struct {
	Status   string                   `json:"status"`
	Version  string                   `json:"version"`
	Services map[string]ServiceHealth `json:"services"`
}

type ServiceHealth struct {
	Status    string  `json:"status"`
	LatencyMs *int64  `json:"latency_ms,omitempty"`
	Error     *string `json:"error,omitempty"`
}

// Handle answers liveness probes
func (h *HealthHandler) Handle(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, HealthResponse{Status: "ok", Version: h.version}, http.StatusOK)
}

// HandleDetailed probes every registered dependency
func (h *HealthHandler) HandleDetailed(w http.ResponseWriter, r *http.Request) {
	response := DetailedHealthResponse{
		Version:  h.version,
		Services: make(map[string]ServiceHealth, len(h.checks)),
	}

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		response.Services[name] = h.probe(r.Context(), h.checks[name])
	}

	response.Status = h.overallStatus(response.Services)

	status := http.StatusOK
	if response.Status == "unhealthy" {
		status = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(response)
}

func (h *HealthHandler) probe(ctx context.Context, check HealthCheck) ServiceHealth {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, h.config.Timeout)
	defer cancel()

	err := check(checkCtx)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		msg := err.Error()
		return ServiceHealth{Status: "unhealthy", LatencyMs: &latency, Error: &msg}
	}
	return ServiceHealth{Status: "healthy", LatencyMs: &latency}
}

func (h *HealthHandler) overallStatus(services map[string]ServiceHealth) string {
	degraded := false
	for name, service := range services {
		if service.Status != "unhealthy" {
			continue
		}
		if h.critical[name] {
			return "unhealthy"
		}
		degraded = true
	}
	if degraded {
		return "degraded"
	}
	return "healthy"
}
