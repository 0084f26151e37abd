package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/github-standup/internal/report"
	"github.com/cam3ron2/github-standup/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// MeetingSource lists calendar meetings in a window.
type MeetingSource interface {
	Events(ctx context.Context, since, until time.Time) ([]report.Entry, error)
}

// Recorder observes finished collections.
type Recorder interface {
	ObserveFetchedEvents(count int)
	ObserveReport(duration time.Duration, err error)
}

// Request describes one standup report.
type Request struct {
	User                 string
	Since                time.Time
	Until                time.Time
	IncludeIssueComments bool
}

// Result is a generated report plus retrieval statistics.
type Result struct {
	Report report.Report
	Events int
	Pages  int
}

// Collector runs fetch, enrichment and classification for one user.
type Collector struct {
	fetcher  *Fetcher
	enricher *Enricher
	meetings MeetingSource
	recorder Recorder
	logger   *zap.Logger
	now      func() time.Time
}

// CollectorOption customizes a Collector.
type CollectorOption func(*Collector)

// WithMeetings adds calendar meetings to generated reports.
func WithMeetings(source MeetingSource) CollectorOption {
	return func(c *Collector) {
		c.meetings = source
	}
}

// WithRecorder reports collection metrics to recorder.
func WithRecorder(recorder Recorder) CollectorOption {
	return func(c *Collector) {
		c.recorder = recorder
	}
}

// NewCollector wires a report pipeline. A nil enricher leaves pushes unresolved.
func NewCollector(fetcher *Fetcher, enricher *Enricher, logger *zap.Logger, opts ...CollectorOption) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Collector{
		fetcher:  fetcher,
		enricher: enricher,
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Collect builds the report for req.
func (c *Collector) Collect(ctx context.Context, req Request) (result Result, err error) {
	if c == nil || c.fetcher == nil {
		return Result{}, fmt.Errorf("collector is not initialized")
	}
	started := c.now()
	user := strings.TrimSpace(req.User)

	ctx, end := telemetry.StartSpan(ctx, "activity.collect",
		attribute.String("github.user", user),
		attribute.String("since", req.Since.UTC().Format(time.RFC3339)),
	)
	defer func() {
		end(err)
		if c.recorder != nil {
			c.recorder.ObserveReport(c.now().Sub(started), err)
		}
	}()

	fetched, err := c.fetcher.Fetch(ctx, FetchRequest{User: user, Since: req.Since, Until: req.Until})
	if err != nil {
		return Result{}, err
	}
	if c.recorder != nil {
		c.recorder.ObserveFetchedEvents(len(fetched.Events))
	}

	events := fetched.Events
	SortOldestFirst(events)

	if c.enricher != nil {
		if err = c.enricher.Enrich(ctx, events); err != nil {
			return Result{}, err
		}
	}

	out := report.Report{
		User:         user,
		Since:        req.Since,
		Repositories: make(map[string][]report.Entry),
		Incomplete:   fetched.Incomplete,
		OldestEvent:  fetched.OldestEvent,
	}
	if !req.Until.IsZero() {
		until := req.Until
		out.Until = &until
	}

	for repo, payloads := range GroupByRepo(events) {
		entries := Classify(user, req.IncludeIssueComments, payloads)
		if len(entries) == 0 {
			continue
		}
		out.Repositories[repo] = entries
	}

	if c.meetings != nil {
		until := req.Until
		if until.IsZero() {
			until = c.now()
		}
		meetings, meetingsErr := c.meetings.Events(ctx, req.Since, until)
		if meetingsErr != nil {
			err = fmt.Errorf("list meetings: %w", meetingsErr)
			return Result{}, err
		}
		out.Meetings = meetings
	}

	c.logger.Info("generated standup report",
		zap.String("user", user),
		zap.Int("events", len(events)),
		zap.Int("pages", fetched.Pages),
		zap.Int("repositories", len(out.Repositories)),
		zap.Int("entries", out.EntryCount()),
		zap.Int("meetings", len(out.Meetings)),
		zap.Bool("incomplete", out.Incomplete),
	)

	return Result{Report: out, Events: len(events), Pages: fetched.Pages}, nil
}
