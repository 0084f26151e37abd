package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/cam3ron2/github-standup/internal/githubapi"
	"github.com/cam3ron2/github-standup/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// EventLister reads pages of a user's activity feed, newest first.
type EventLister interface {
	ListUserEvents(ctx context.Context, user string, page int) (githubapi.EventsPage, error)
}

// FetchRequest bounds one feed retrieval. A zero Until leaves the window open.
type FetchRequest struct {
	User  string
	Since time.Time
	Until time.Time
}

// FetchResult is the filtered feed for one window.
type FetchResult struct {
	// Events keeps feed order (newest first) and only holds recognized payloads.
	Events []githubapi.Event
	Pages  int
	// Incomplete is set when the feed ran out before reaching Since.
	Incomplete bool
	// OldestEvent is the creation time of the oldest event retrieved, recognized or not.
	OldestEvent time.Time
}

// Fetcher pages through the activity feed until the window start is reached.
type Fetcher struct {
	lister EventLister
	logger *zap.Logger
}

// NewFetcher creates a feed fetcher.
func NewFetcher(lister EventLister, logger *zap.Logger) *Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fetcher{lister: lister, logger: logger}
}

// Fetch retrieves every recognized event in [Since, Until). Any page failure
// aborts the fetch and no events are returned.
func (f *Fetcher) Fetch(ctx context.Context, req FetchRequest) (result FetchResult, err error) {
	if f == nil || f.lister == nil {
		return FetchResult{}, fmt.Errorf("event fetcher is not initialized")
	}
	user := strings.TrimSpace(req.User)
	if user == "" {
		return FetchResult{}, &githubapi.ConfigurationError{Field: "github.user", Reason: "is required"}
	}
	if !req.Until.IsZero() && !req.Until.After(req.Since) {
		return FetchResult{}, &githubapi.ConfigurationError{
			Field:  "until",
			Reason: fmt.Sprintf("%s must be after since %s", req.Until.Format(time.RFC3339), req.Since.Format(time.RFC3339)),
		}
	}

	ctx, end := telemetry.StartSpan(ctx, "activity.fetch", attribute.String("github.user", user))
	defer func() { end(err) }()

	for page := 1; ; page++ {
		current, listErr := f.lister.ListUserEvents(ctx, user, page)
		if listErr != nil {
			return FetchResult{}, fmt.Errorf("fetch events page %d: %w", page, listErr)
		}
		result.Pages = page
		f.logger.Debug("fetched events page",
			zap.Int("page", page),
			zap.Int("events", len(current.Events)),
			zap.Bool("has_next", current.HasNext),
		)

		if len(current.Events) == 0 {
			break
		}
		last := current.Events[len(current.Events)-1]
		result.OldestEvent = last.CreatedAt

		if !current.HasNext && last.CreatedAt.After(req.Since) {
			result.Incomplete = true
			f.logger.Warn("events since requested date are unavailable",
				zap.Time("since", req.Since),
				zap.Time("oldest_event", last.CreatedAt),
			)
		}

		result.Events = append(result.Events, filterPage(current.Events, req.Since, req.Until)...)

		if last.CreatedAt.Before(req.Since) || !current.HasNext {
			break
		}
	}

	return result, nil
}

// filterPage keeps events with Since <= CreatedAt < Until and a recognized payload.
func filterPage(events []githubapi.Event, since, until time.Time) []githubapi.Event {
	kept := make([]githubapi.Event, 0, len(events))
	for _, event := range events {
		if event.CreatedAt.Before(since) {
			continue
		}
		if !until.IsZero() && !event.CreatedAt.Before(until) {
			continue
		}
		if event.Payload == nil {
			continue
		}
		kept = append(kept, event)
	}
	return kept
}
