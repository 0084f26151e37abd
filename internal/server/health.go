package server

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// Mode indicates high-level health mode.
type Mode string

const (
	// ModeHealthy indicates the last report succeeded or none has run yet.
	ModeHealthy Mode = "healthy"
	// ModeDegraded indicates the server is up but the last report failed.
	ModeDegraded Mode = "degraded"
)

// Status represents evaluated application health.
type Status struct {
	Mode         Mode            `json:"mode"`
	Ready        bool            `json:"ready"`
	Components   map[string]bool `json:"components"`
	LastReportAt *time.Time      `json:"last_report_at,omitempty"`
	LastError    string          `json:"last_error,omitempty"`
}

// HealthTracker derives health from the outcome of recent report generations.
type HealthTracker struct {
	mu              sync.RWMutex
	calendarEnabled bool
	lastAt          time.Time
	lastErr         error
}

// NewHealthTracker creates a tracker that starts healthy.
func NewHealthTracker(calendarEnabled bool) *HealthTracker {
	return &HealthTracker{calendarEnabled: calendarEnabled}
}

// Record stores the outcome of a report generation.
func (h *HealthTracker) Record(at time.Time, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastAt = at
	h.lastErr = err
}

// CurrentStatus evaluates health from the last recorded outcome.
func (h *HealthTracker) CurrentStatus() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()

	reportsHealthy := h.lastErr == nil
	status := Status{
		Mode:  ModeHealthy,
		Ready: true,
		Components: map[string]bool{
			"github":   reportsHealthy,
			"calendar": h.calendarEnabled,
		},
	}
	if !reportsHealthy {
		status.Mode = ModeDegraded
		status.LastError = h.lastErr.Error()
	}
	if !h.lastAt.IsZero() {
		lastAt := h.lastAt
		status.LastReportAt = &lastAt
	}
	return status
}

func livezHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte("ok")); err != nil {
		return
	}
}

func healthzHandler(tracker *HealthTracker) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		payload, err := json.Marshal(tracker.CurrentStatus())
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			if _, writeErr := w.Write([]byte(`{"mode":"degraded","error":"marshal health status"}`)); writeErr != nil {
				return
			}
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		//nolint:gosec // Health payload is server-generated JSON status.
		if _, err := w.Write(payload); err != nil {
			return
		}
	}
}
