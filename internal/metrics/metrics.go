package metrics

import (
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/cam3ron2/github-standup/internal/report"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "standup"

// Outcome label values for GitHub requests.
const (
	OutcomeSuccess        = "success"
	OutcomeClientError    = "client_error"
	OutcomeServerError    = "server_error"
	OutcomeTransportError = "transport_error"
)

// Metrics owns a private registry with the standup collectors.
type Metrics struct {
	registry *prometheus.Registry

	githubRequests *prometheus.CounterVec
	fetchedEvents  prometheus.Counter
	reports        *prometheus.CounterVec
	reportDuration prometheus.Histogram

	lastReport *lastReportCollector
}

// New registers every collector on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		githubRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "github_requests_total",
			Help:      "GitHub API requests by route and outcome.",
		}, []string{"route", "outcome"}),
		fetchedEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fetched_events_total",
			Help:      "Recognized activity events retrieved within report windows.",
		}),
		reports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "report_generations_total",
			Help:      "Report generations by outcome.",
		}, []string{"outcome"}),
		reportDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "report_duration_seconds",
			Help:      "Wall time spent generating a report.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
		lastReport: &lastReportCollector{},
	}
	m.registry.MustRegister(
		m.githubRequests,
		m.fetchedEvents,
		m.reports,
		m.reportDuration,
		m.lastReport,
	)
	return m
}

// Handler renders the registry with OpenMetrics negotiation enabled.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveGitHubRequest counts one completed GitHub request.
func (m *Metrics) ObserveGitHubRequest(route string, statusCode int, err error) {
	m.githubRequests.WithLabelValues(route, requestOutcome(statusCode, err)).Inc()
}

// ObserveFetchedEvents adds count to the fetched events counter.
func (m *Metrics) ObserveFetchedEvents(count int) {
	if count <= 0 {
		return
	}
	m.fetchedEvents.Add(float64(count))
}

// ObserveReport records one report generation.
func (m *Metrics) ObserveReport(duration time.Duration, err error) {
	outcome := OutcomeSuccess
	if err != nil {
		outcome = "error"
	}
	m.reports.WithLabelValues(outcome).Inc()
	m.reportDuration.Observe(duration.Seconds())
}

// SetLastReport replaces the snapshot behind the last-report gauges.
func (m *Metrics) SetLastReport(r report.Report) {
	m.lastReport.set(r)
}

func requestOutcome(statusCode int, err error) string {
	switch {
	case err != nil || statusCode == 0:
		return OutcomeTransportError
	case statusCode >= 500:
		return OutcomeServerError
	case statusCode >= 400:
		return OutcomeClientError
	default:
		return OutcomeSuccess
	}
}

var (
	lastReportEntriesDesc = prometheus.NewDesc(
		namespace+"_last_report_entries",
		"Entries per repository in the most recent report.",
		[]string{"repository"}, nil,
	)
	lastReportMeetingsDesc = prometheus.NewDesc(
		namespace+"_last_report_meetings",
		"Meetings in the most recent report.",
		nil, nil,
	)
	lastReportIncompleteDesc = prometheus.NewDesc(
		namespace+"_last_report_incomplete",
		"1 when the most recent report could not reach back to its start time.",
		nil, nil,
	)
)

// lastReportCollector renders gauges from the latest report snapshot.
type lastReportCollector struct {
	mu         sync.RWMutex
	entries    map[string]int
	meetings   int
	incomplete bool
	seen       bool
}

func (c *lastReportCollector) set(r report.Report) {
	entries := make(map[string]int, len(r.Repositories))
	for name, items := range r.Repositories {
		entries[name] = len(items)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
	c.meetings = len(r.Meetings)
	c.incomplete = r.Incomplete
	c.seen = true
}

func (c *lastReportCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- lastReportEntriesDesc
	ch <- lastReportMeetingsDesc
	ch <- lastReportIncompleteDesc
}

func (c *lastReportCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.seen {
		return
	}

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		ch <- prometheus.MustNewConstMetric(lastReportEntriesDesc, prometheus.GaugeValue, float64(c.entries[name]), name)
	}
	ch <- prometheus.MustNewConstMetric(lastReportMeetingsDesc, prometheus.GaugeValue, float64(c.meetings))

	incomplete := 0.0
	if c.incomplete {
		incomplete = 1
	}
	ch <- prometheus.MustNewConstMetric(lastReportIncompleteDesc, prometheus.GaugeValue, incomplete)
}
