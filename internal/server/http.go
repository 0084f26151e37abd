package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cam3ron2/github-standup/internal/activity"
	"github.com/cam3ron2/github-standup/internal/config"
	"github.com/cam3ron2/github-standup/internal/githubapi"
	"github.com/cam3ron2/github-standup/internal/report"
	"github.com/cam3ron2/github-standup/internal/telemetry"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// ReportCollector produces reports.
type ReportCollector interface {
	Collect(ctx context.Context, req activity.Request) (activity.Result, error)
}

// ReportObserver receives every successfully generated report.
type ReportObserver interface {
	SetLastReport(r report.Report)
}

// Defaults fill query parameters the caller omits.
type Defaults struct {
	User                 string
	Since                string
	Until                string
	IncludeIssueComments bool
}

// HandlerConfig wires the serve-mode endpoints.
type HandlerConfig struct {
	Collector      ReportCollector
	Defaults       Defaults
	Health         *HealthTracker
	MetricsHandler http.Handler
	ReportObserver ReportObserver
	Logger         *zap.Logger
	Now            func() time.Time
}

// NewHandler wires report, metrics and health endpoints on a single router.
func NewHandler(cfg HandlerConfig) http.Handler {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Health == nil {
		cfg.Health = NewHealthTracker(false)
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	traceMode := telemetry.TraceMode()
	reports := &reportHandler{cfg: cfg}
	router.Method(http.MethodGet, "/report", wrapHTTPHandler(traceMode, "report", reports))
	router.Handle("/metrics", wrapHTTPHandler(traceMode, "metrics", cfg.MetricsHandler))
	router.Handle("/livez", wrapHTTPHandler(traceMode, "livez", http.HandlerFunc(livezHandler)))
	router.Handle("/healthz", wrapHTTPHandler(traceMode, "healthz", healthzHandler(cfg.Health)))
	return router
}

type reportHandler struct {
	cfg HandlerConfig
}

func (h *reportHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	req, format, err := h.parseRequest(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	result, err := h.cfg.Collector.Collect(r.Context(), req)
	if err != nil {
		status := statusForError(err)
		if upstreamFailure(err, status) {
			h.cfg.Health.Record(h.cfg.Now(), err)
		}
		h.cfg.Logger.Warn("report generation failed", zap.String("user", req.User), zap.Int("status", status), zap.Error(err))
		writeError(w, status, err)
		return
	}
	h.cfg.Health.Record(h.cfg.Now(), nil)
	if h.cfg.ReportObserver != nil {
		h.cfg.ReportObserver.SetLastReport(result.Report)
	}

	var writeErr error
	switch format {
	case "text":
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		writeErr = result.Report.WriteText(w)
	case "xlsx":
		w.Header().Set("Content-Type", xlsxContentType)
		w.Header().Set("Content-Disposition", `attachment; filename="standup.xlsx"`)
		w.WriteHeader(http.StatusOK)
		writeErr = result.Report.WriteXLSX(w)
	default:
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		writeErr = result.Report.WriteJSON(w)
	}
	if writeErr != nil {
		h.cfg.Logger.Debug("write report response", zap.Error(writeErr))
	}
}

func (h *reportHandler) parseRequest(r *http.Request) (activity.Request, string, error) {
	query := r.URL.Query()
	now := h.cfg.Now()

	user := firstNonEmpty(query.Get("user"), h.cfg.Defaults.User)
	if user == "" {
		return activity.Request{}, "", errors.New("user is required")
	}
	since, err := config.ParseTime(firstNonEmpty(query.Get("since"), h.cfg.Defaults.Since, "yesterday"), now)
	if err != nil {
		return activity.Request{}, "", err
	}
	until, err := config.ParseTime(firstNonEmpty(query.Get("until"), h.cfg.Defaults.Until), now)
	if err != nil {
		return activity.Request{}, "", err
	}
	if !until.IsZero() && !until.After(since) {
		return activity.Request{}, "", fmt.Errorf("until %s must be after since %s", until.Format(time.RFC3339), since.Format(time.RFC3339))
	}

	includeComments := h.cfg.Defaults.IncludeIssueComments
	if raw := query.Get("include_issue_comments"); raw != "" {
		parsed, parseErr := strconv.ParseBool(raw)
		if parseErr != nil {
			return activity.Request{}, "", errors.New("include_issue_comments must be a boolean")
		}
		includeComments = parsed
	}

	format := strings.ToLower(firstNonEmpty(query.Get("format"), "json"))
	if format != "json" && format != "text" && format != "xlsx" {
		return activity.Request{}, "", errors.New("format must be json, text or xlsx")
	}

	return activity.Request{
		User:                 user,
		Since:                since,
		Until:                until,
		IncludeIssueComments: includeComments,
	}, format, nil
}

func statusForError(err error) int {
	var cfgErr *githubapi.ConfigurationError
	var httpErr *githubapi.HTTPStatusError
	var transportErr *githubapi.TransportError
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case githubapi.IsRateLimited(err):
		return http.StatusTooManyRequests
	case errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound:
		return http.StatusNotFound
	case errors.As(err, &httpErr), errors.As(err, &transportErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// upstreamFailure reports whether a failed generation reflects GitHub or
// network trouble rather than a bad request or a client that went away.
func upstreamFailure(err error, status int) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return status == http.StatusTooManyRequests || status >= http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			return trimmed
		}
	}
	return ""
}

func wrapHTTPHandler(traceMode, route string, handler http.Handler) http.Handler {
	if handler == nil {
		handler = http.NotFoundHandler()
	}
	if strings.EqualFold(strings.TrimSpace(traceMode), "off") {
		return handler
	}

	operation := strings.TrimSpace(route)
	if operation == "" {
		operation = "handler"
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, span := otel.Tracer("github-standup/internal/server").Start(
			r.Context(),
			"http.server."+operation,
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.target", r.URL.Path),
			),
		)
		defer span.End()

		recorder := &statusCapturingResponseWriter{
			ResponseWriter: w,
			status:         http.StatusOK,
		}
		handler.ServeHTTP(recorder, r.WithContext(ctx))
		span.SetAttributes(attribute.Int("http.status_code", recorder.status))
		if recorder.status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(recorder.status))
			return
		}
		span.SetStatus(codes.Ok, "request completed")
	})
}

type statusCapturingResponseWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusCapturingResponseWriter) WriteHeader(statusCode int) {
	w.status = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}
