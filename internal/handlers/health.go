package handlers

import (
	"net/http"
	"runtime"
	"time"

	"media-share/internal/logging"
	"media-share/internal/startup"
)

const (
	statusHealthy  = "healthy"
	statusDegraded = "degraded"
)

var processStart = time.Now()

// HealthResponse contains the health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`

	// Derive queue state
	PendingJobs int64 `json:"pendingJobs"`

	// System info
	GoVersion    string `json:"goVersion"`
	NumCPU       int    `json:"numCpu"`
	NumGoroutine int    `json:"numGoroutine"`
}

// HealthCheck returns the health status of the service
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	response := HealthResponse{
		Status:       statusHealthy,
		Version:      startup.Version,
		Uptime:       time.Since(processStart).Round(time.Second).String(),
		GoVersion:    runtime.Version(),
		NumCPU:       runtime.NumCPU(),
		NumGoroutine: runtime.NumGoroutine(),
	}

	pending, err := h.db.CountPendingJobs(r.Context())
	if err != nil {
		logging.Warn("Health check could not read job queue: %v", err)
		response.Status = statusDegraded
	} else {
		response.PendingJobs = pending
	}

	status := http.StatusOK
	if response.Status != statusHealthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, response)
}

// LivenessCheck is a simple liveness probe (always returns 200 if server is running)
func (h *Handlers) LivenessCheck(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// ReadinessCheck reports whether the service can serve traffic, which
// hinges on the database answering.
func (h *Handlers) ReadinessCheck(w http.ResponseWriter, r *http.Request) {
	if _, err := h.db.CountPendingJobs(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

// VersionInfo returns build information.
func (h *Handlers) VersionInfo(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, startup.GetBuildInfo())
}
