package githubapi

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/github-standup/internal/telemetry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

// RetryConfig configures GitHub client retry behavior.
// MaxAttempts of 1 disables retries.
type RetryConfig struct {
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// HTTPDoer is implemented by http.Client.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// RequestObserver receives one notification per completed request attempt sequence.
type RequestObserver interface {
	ObserveGitHubRequest(route string, statusCode int, err error)
}

// CallMetadata reports execution metadata for a client call.
type CallMetadata struct {
	Attempts        int
	LastRateHeaders RateLimitHeaders
	LastDecision    Decision
}

// Client wraps GitHub HTTP requests with pacing, retry and rate-limit controls.
type Client struct {
	doer       HTTPDoer
	retry      RetryConfig
	ratePolicy RateLimitPolicy
	limiter    *rate.Limiter
	observer   RequestObserver
	// Sleep is injected for testability.
	Sleep func(duration time.Duration)
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithRequestsPerSecond paces outgoing requests. Zero or negative leaves requests unpaced.
func WithRequestsPerSecond(rps float64) ClientOption {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), 1)
	}
}

// WithObserver registers a request observer.
func WithObserver(observer RequestObserver) ClientOption {
	return func(c *Client) {
		c.observer = observer
	}
}

// NewClient creates a GitHub API client wrapper.
func NewClient(doer HTTPDoer, retry RetryConfig, ratePolicy RateLimitPolicy, opts ...ClientOption) *Client {
	if doer == nil {
		doer = http.DefaultClient
	}
	if retry.MaxAttempts <= 0 {
		retry.MaxAttempts = 1
	}
	client := &Client{
		doer:       doer,
		retry:      retry,
		ratePolicy: ratePolicy,
		Sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(client)
	}
	return client
}

// Do executes a request with pacing, retry and rate-limit awareness.
// Transport failures are returned as *TransportError. Non-2xx responses are
// returned to the caller untouched.
func (c *Client) Do(req *http.Request) (*http.Response, CallMetadata, error) {
	if req == nil {
		return nil, CallMetadata{}, fmt.Errorf("request is nil")
	}

	route := routeLabel(req.URL.Path)
	ctx := req.Context()
	var span trace.Span
	if telemetry.ShouldTraceDependencies() {
		ctx, span = otel.Tracer("github-standup/internal/githubapi").Start(
			ctx,
			"githubapi.client.do",
			trace.WithAttributes(
				attribute.String("http.method", req.Method),
				attribute.String("github.route", route),
				attribute.Int("github.max_attempts", c.retry.MaxAttempts),
			),
		)
		defer span.End()
	}

	metadata := CallMetadata{}
	for attempt := 1; attempt <= c.retry.MaxAttempts; attempt++ {
		metadata.Attempts = attempt

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				transportErr := &TransportError{Op: route, Err: err}
				c.observe(route, 0, transportErr)
				return nil, metadata, transportErr
			}
		}

		resp, err := c.doer.Do(req.Clone(ctx))
		if err != nil {
			if span != nil {
				span.RecordError(err)
				span.AddEvent("attempt_failed", trace.WithAttributes(
					attribute.Int("github.attempt", attempt),
				))
			}
			if attempt == c.retry.MaxAttempts {
				if span != nil {
					span.SetStatus(codes.Error, err.Error())
				}
				transportErr := &TransportError{Op: route, Err: err}
				c.observe(route, 0, transportErr)
				return nil, metadata, transportErr
			}
			c.Sleep(backoffForAttempt(c.retry, attempt))
			continue
		}

		headers := ParseRateLimitHeaders(resp.Header, resp.StatusCode)
		metadata.LastRateHeaders = headers
		decision := c.ratePolicy.Evaluate(headers)
		metadata.LastDecision = decision

		if span != nil {
			span.AddEvent("attempt_completed", trace.WithAttributes(
				attribute.Int("github.attempt", attempt),
				attribute.Int("http.status_code", resp.StatusCode),
				attribute.Int("github.rate_limit_remaining", headers.Remaining),
				attribute.Bool("github.rate_limit_allow", decision.Allow),
				attribute.String("github.rate_limit_reason", decision.Reason),
			))
		}

		last := attempt == c.retry.MaxAttempts
		// A successful response is never discarded, even when the budget is low.
		retryable := !isSuccessStatus(resp.StatusCode) && (!decision.Allow || isTransientStatus(resp.StatusCode))
		if retryable && !last {
			closeBody(resp)
			waitFor := decision.WaitFor
			if decision.Allow {
				waitFor = backoffForAttempt(c.retry, attempt)
			}
			c.Sleep(waitFor)
			continue
		}

		if span != nil {
			if resp.StatusCode >= 400 {
				span.SetStatus(codes.Error, fmt.Sprintf("status %d", resp.StatusCode))
			} else {
				span.SetStatus(codes.Ok, "request completed")
			}
		}
		c.observe(route, resp.StatusCode, nil)
		return resp, metadata, nil
	}

	if span != nil {
		span.SetStatus(codes.Error, "request attempts exhausted")
	}
	return nil, metadata, fmt.Errorf("request attempts exhausted")
}

// RoundTrip lets the Client back an http.Client, so go-github calls share
// the same pacing, rate-limit policy and observation.
func (c *Client) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, _, err := c.Do(req)
	return resp, err
}

// HTTPClient returns an http.Client whose transport is c.
func (c *Client) HTTPClient() *http.Client {
	return &http.Client{Transport: c}
}

func (c *Client) observe(route string, statusCode int, err error) {
	if c.observer == nil {
		return
	}
	c.observer.ObserveGitHubRequest(route, statusCode, err)
}

// routeLabel maps a request path to a bounded label for spans and metrics.
func routeLabel(path string) string {
	segments := strings.Split(strings.Trim(path, "/"), "/")
	// Enterprise hosts serve the API under /api/v3.
	if len(segments) >= 2 && segments[0] == "api" && segments[1] == "v3" {
		segments = segments[2:]
	}
	switch {
	case len(segments) == 3 && segments[0] == "users" && segments[2] == "events":
		return "user_events"
	case len(segments) == 3 && segments[0] == "repos":
		return "repository"
	case len(segments) == 4 && segments[0] == "repos" && segments[3] == "pulls":
		return "pulls"
	default:
		return "other"
	}
}

func closeBody(resp *http.Response) {
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
}

func isSuccessStatus(statusCode int) bool {
	return statusCode >= 200 && statusCode <= 299
}

func isTransientStatus(statusCode int) bool {
	if statusCode == http.StatusTooManyRequests {
		return true
	}
	return statusCode >= 500 && statusCode <= 599
}

func backoffForAttempt(retry RetryConfig, attempt int) time.Duration {
	backoff := retry.InitialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
		if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
			return retry.MaxBackoff
		}
	}
	if retry.MaxBackoff > 0 && backoff > retry.MaxBackoff {
		return retry.MaxBackoff
	}
	return backoff
}
