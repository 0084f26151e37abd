package calendar

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cam3ron2/github-standup/internal/report"
	"golang.org/x/oauth2"
	calendarapi "google.golang.org/api/calendar/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
)

const statusConfirmed = "confirmed"

// Source lists meetings in a time window.
type Source interface {
	Events(ctx context.Context, since, until time.Time) ([]report.Entry, error)
}

// StatusError is a non-2xx response from the calendar API.
type StatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Op, e.StatusCode, e.Message)
}

// GoogleConfig configures the Google Calendar client. An empty BaseURL uses
// the public API endpoint.
type GoogleConfig struct {
	BaseURL     string
	CalendarID  string
	AccessToken string
}

// CalendarInfo is one entry of the user's calendar list.
type CalendarInfo struct {
	ID      string
	Summary string
}

// GoogleClient reads events from one Google calendar with a pre-issued access token.
type GoogleClient struct {
	service    *calendarapi.Service
	calendarID string
	now        func() time.Time
}

// NewGoogleClient validates cfg and returns a client. The transport and timeout
// of base are kept; the access token is attached as a static bearer token.
func NewGoogleClient(ctx context.Context, base *http.Client, cfg GoogleConfig) (*GoogleClient, error) {
	token := strings.TrimSpace(cfg.AccessToken)
	if token == "" {
		return nil, fmt.Errorf("calendar access token is required")
	}
	calendarID := strings.TrimSpace(cfg.CalendarID)
	if calendarID == "" {
		calendarID = "primary"
	}
	if base == nil {
		base = http.DefaultClient
	}

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   base.Transport,
		},
		Timeout: base.Timeout,
	}
	opts := []option.ClientOption{option.WithHTTPClient(httpClient)}
	if baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); baseURL != "" {
		if _, err := url.Parse(baseURL); err != nil {
			return nil, fmt.Errorf("parse calendar base url: %w", err)
		}
		opts = append(opts, option.WithEndpoint(baseURL+"/"))
	}

	service, err := calendarapi.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create calendar service: %w", err)
	}
	return &GoogleClient{
		service:    service,
		calendarID: calendarID,
		now:        time.Now,
	}, nil
}

// Events returns confirmed events in [since, until) as meeting entries. A zero
// until means now.
func (c *GoogleClient) Events(ctx context.Context, since, until time.Time) ([]report.Entry, error) {
	if until.IsZero() {
		until = c.now()
	}
	call := c.service.Events.List(c.calendarID).
		SingleEvents(true).
		TimeMin(since.UTC().Format(time.RFC3339)).
		TimeMax(until.UTC().Format(time.RFC3339))

	entries := make([]report.Entry, 0)
	err := call.Pages(ctx, func(page *calendarapi.Events) error {
		for _, item := range page.Items {
			if item == nil || item.Status != statusConfirmed {
				continue
			}
			entries = append(entries, report.Entry{Kind: report.KindMeeting, Title: item.Summary})
		}
		return nil
	})
	if err != nil {
		return nil, wrapError("list calendar events", err)
	}
	return entries, nil
}

// Calendars lists the calendars visible to the token, for picking a calendar id.
func (c *GoogleClient) Calendars(ctx context.Context) ([]CalendarInfo, error) {
	var calendars []CalendarInfo
	err := c.service.CalendarList.List().Pages(ctx, func(page *calendarapi.CalendarList) error {
		for _, item := range page.Items {
			if item == nil {
				continue
			}
			calendars = append(calendars, CalendarInfo{ID: item.Id, Summary: item.Summary})
		}
		return nil
	})
	if err != nil {
		return nil, wrapError("list calendars", err)
	}
	return calendars, nil
}

func wrapError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &StatusError{Op: op, StatusCode: apiErr.Code, Message: strings.TrimSpace(apiErr.Message)}
	}
	return fmt.Errorf("%s: %w", op, err)
}
