package server

import (
	"encoding/json"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/teemow/agenda/internal/scheduler"
)

// Health status constants for health check responses.
const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusPending      = "pending"
	healthStatusFailed       = "failed"
)

// RunReporter reports the most recent background refresh.
type RunReporter interface {
	LastRun() *scheduler.Run
}

// HealthChecker provides health check endpoints.
type HealthChecker struct {
	// ready indicates whether the server is ready to receive traffic
	ready atomic.Bool
	// shuttingDown is set once graceful shutdown begins
	shuttingDown atomic.Bool
	// runs reports the last refresh, nil when no scheduler runs
	runs RunReporter
	// startTime tracks when the server started
	startTime time.Time
}

// NewHealthChecker creates a new HealthChecker. runs may be nil.
func NewHealthChecker(runs RunReporter) *HealthChecker {
	h := &HealthChecker{
		runs:      runs,
		startTime: time.Now(),
	}
	// Server starts as ready by default
	h.ready.Store(true)
	return h
}

// SetReady sets the readiness state of the server.
func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

// IsReady returns whether the server is ready to receive traffic.
func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// SetShuttingDown marks the server as shutting down.
func (h *HealthChecker) SetShuttingDown() {
	h.shuttingDown.Store(true)
}

// HealthResponse represents the JSON response for health endpoints.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// DetailedHealthResponse provides comprehensive health information.
type DetailedHealthResponse struct {
	Status      string      `json:"status"`
	Uptime      string      `json:"uptime"`
	LastRefresh *RunSummary `json:"last_refresh,omitempty"`
}

// RunSummary is the JSON view of a scheduler run.
type RunSummary struct {
	Time     time.Time `json:"time"`
	Duration string    `json:"duration"`
	Events   int       `json:"events"`
	Badge    string    `json:"badge,omitempty"`
	Error    string    `json:"error,omitempty"`
}

func summarize(run *scheduler.Run) *RunSummary {
	if run == nil {
		return nil
	}
	s := &RunSummary{
		Time:     run.Time,
		Duration: run.Duration.String(),
		Events:   run.Events,
		Badge:    run.Badge.Text,
	}
	if run.Err != nil {
		s.Error = run.Err.Error()
	}
	return s
}

// LivenessHandler returns an HTTP handler for the /healthz endpoint.
// Liveness only indicates that the process is running.
func (h *HealthChecker) LivenessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, HealthResponse{Status: healthStatusOK})
	})
}

// ReadinessHandler returns an HTTP handler for the /readyz endpoint.
// The server is ready once a refresh completed successfully.
func (h *HealthChecker) ReadinessHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		checks := make(map[string]string)
		allOk := true

		if !h.ready.Load() {
			checks["ready"] = healthStatusNotReady
			allOk = false
		} else {
			checks["ready"] = healthStatusOK
		}

		if h.shuttingDown.Load() {
			checks["shutdown"] = healthStatusShuttingDown
			allOk = false
		} else {
			checks["shutdown"] = healthStatusOK
		}

		if h.runs != nil {
			switch run := h.runs.LastRun(); {
			case run == nil:
				checks["refresh"] = healthStatusPending
				allOk = false
			case run.Err != nil:
				checks["refresh"] = healthStatusFailed + ": " + run.Err.Error()
				allOk = false
			default:
				checks["refresh"] = healthStatusOK
			}
		}

		response := HealthResponse{Checks: checks}
		status := http.StatusOK
		if allOk {
			response.Status = healthStatusOK
		} else {
			response.Status = healthStatusNotReady
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	})
}

// DetailedHealthHandler returns an HTTP handler for the /healthz/detailed endpoint.
func (h *HealthChecker) DetailedHealthHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		response := DetailedHealthResponse{
			Status: healthStatusOK,
			Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		}
		if h.runs != nil {
			response.LastRefresh = summarize(h.runs.LastRun())
		}

		status := http.StatusOK
		if !h.ready.Load() {
			response.Status = healthStatusNotReady
			status = http.StatusServiceUnavailable
		} else if h.shuttingDown.Load() {
			response.Status = healthStatusShuttingDown
			status = http.StatusServiceUnavailable
		}
		writeJSON(w, status, response)
	})
}

// RegisterHealthEndpoints registers health check endpoints on the given mux.
func (h *HealthChecker) RegisterHealthEndpoints(mux *http.ServeMux) {
	mux.Handle("/healthz", h.LivenessHandler())
	mux.Handle("/readyz", h.ReadinessHandler())
	mux.Handle("/healthz/detailed", h.DetailedHealthHandler())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
