package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestHealthTrackerCurrentStatus(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC)

	testCases := []struct {
		name            string
		calendarEnabled bool
		record          func(h *HealthTracker)
		wantMode        Mode
		wantGitHub      bool
		wantLastError   string
		wantLastAt      bool
	}{
		{
			name:       "fresh_tracker_is_healthy",
			wantMode:   ModeHealthy,
			wantGitHub: true,
		},
		{
			name:            "failed_report_degrades",
			calendarEnabled: true,
			record: func(h *HealthTracker) {
				h.Record(at, errors.New("list user events: incorrect response status: 502 Bad Gateway"))
			},
			wantMode:      ModeDegraded,
			wantGitHub:    false,
			wantLastError: "list user events: incorrect response status: 502 Bad Gateway",
			wantLastAt:    true,
		},
		{
			name: "success_after_failure_recovers",
			record: func(h *HealthTracker) {
				h.Record(at, errors.New("boom"))
				h.Record(at.Add(time.Minute), nil)
			},
			wantMode:   ModeHealthy,
			wantGitHub: true,
			wantLastAt: true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			tracker := NewHealthTracker(tc.calendarEnabled)
			if tc.record != nil {
				tc.record(tracker)
			}
			status := tracker.CurrentStatus()
			if status.Mode != tc.wantMode || !status.Ready {
				t.Fatalf("status = %+v, want mode %q and ready", status, tc.wantMode)
			}
			if status.Components["github"] != tc.wantGitHub || status.Components["calendar"] != tc.calendarEnabled {
				t.Fatalf("components = %v", status.Components)
			}
			if status.LastError != tc.wantLastError {
				t.Fatalf("LastError = %q, want %q", status.LastError, tc.wantLastError)
			}
			if (status.LastReportAt != nil) != tc.wantLastAt {
				t.Fatalf("LastReportAt = %v, want set=%t", status.LastReportAt, tc.wantLastAt)
			}
		})
	}
}

func TestHealthzHandlerReportsDegradedMode(t *testing.T) {
	t.Parallel()

	tracker := NewHealthTracker(false)
	tracker.Record(time.Date(2026, 10, 17, 9, 0, 0, 0, time.UTC), errors.New("boom"))

	rec := httptest.NewRecorder()
	healthzHandler(tracker).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d, want 200", rec.Code)
	}

	var status Status
	if err := json.Unmarshal(rec.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if status.Mode != ModeDegraded || status.LastError != "boom" || status.LastReportAt == nil {
		t.Fatalf("status = %+v", status)
	}
}
