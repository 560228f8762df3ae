package rest

import (
	"context"
	"net/http"
	"time"
)

// Pinger is anything whose connectivity gates readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker aggregates the dependencies probed by /readyz.
type HealthChecker struct {
	checks  map[string]Pinger
	timeout time.Duration
}

// NewHealthChecker creates a checker over named dependencies. Nil
// entries are skipped so optional dependencies need no special casing.
func NewHealthChecker(checks map[string]Pinger) *HealthChecker {
	filtered := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			filtered[name] = p
		}
	}
	return &HealthChecker{checks: filtered, timeout: 2 * time.Second}
}

// Check probes every dependency, returning per-dependency results.
func (hc *HealthChecker) Check(ctx context.Context) (bool, map[string]string) {
	results := make(map[string]string, len(hc.checks))
	healthy := true
	for name, p := range hc.checks {
		probeCtx, cancel := context.WithTimeout(ctx, hc.timeout)
		if err := p.Ping(probeCtx); err != nil {
			results[name] = err.Error()
			healthy = false
		} else {
			results[name] = "ok"
		}
		cancel()
	}
	return healthy, results
}

// handleHealthz is the liveness probe: the process is up.
func (h *Handler) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReadyz is the readiness probe: dependencies answer.
func (h *Handler) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if h.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
		return
	}
	healthy, results := h.health.Check(r.Context())
	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"status": map[bool]string{true: "ready", false: "degraded"}[healthy],
		"checks": results,
	})
}
