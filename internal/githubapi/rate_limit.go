package githubapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"
)

// RateLimitHeaders contains parsed GitHub rate-limit response headers.
type RateLimitHeaders struct {
	// Present is false when the response carried no X-RateLimit-Remaining header.
	Present          bool
	Remaining        int
	ResetUnix        int64
	Used             int
	RetryAfter       time.Duration
	SecondaryLimited bool
}

// Exhausted reports whether the primary budget is spent.
func (h RateLimitHeaders) Exhausted() bool {
	return h.Present && h.Remaining == 0
}

// Decision represents a rate-limit action decision.
type Decision struct {
	Allow   bool
	WaitFor time.Duration
	Reason  string
}

// RateLimitPolicy evaluates rate-limit actions from parsed headers.
type RateLimitPolicy struct {
	MinRemainingThreshold int
	MinResetBuffer        time.Duration
	SecondaryLimitBackoff time.Duration
	Now                   func() time.Time
}

// ParseRateLimitHeaders parses rate-limit and retry headers.
func ParseRateLimitHeaders(header http.Header, statusCode int) RateLimitHeaders {
	remaining := strings.TrimSpace(header.Get("X-RateLimit-Remaining"))
	parsed := RateLimitHeaders{
		Present:   remaining != "",
		Remaining: parseInt(remaining),
		Used:      parseInt(header.Get("X-RateLimit-Used")),
		ResetUnix: parseInt64(header.Get("X-RateLimit-Reset")),
	}

	if seconds := parseInt(header.Get("Retry-After")); seconds > 0 {
		parsed.RetryAfter = time.Duration(seconds) * time.Second
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		parsed.SecondaryLimited = true
	case statusCode == http.StatusForbidden && parsed.RetryAfter > 0:
		parsed.SecondaryLimited = true
	}
	return parsed
}

// Evaluate decides whether calls may continue or should pause.
func (p RateLimitPolicy) Evaluate(headers RateLimitHeaders) Decision {
	now := time.Now()
	if p.Now != nil {
		now = p.Now()
	}

	if headers.SecondaryLimited {
		waitFor := max(p.SecondaryLimitBackoff, headers.RetryAfter)
		return Decision{Allow: false, WaitFor: waitFor, Reason: "secondary_limit"}
	}

	if !headers.Present || headers.Remaining >= p.MinRemainingThreshold && !headers.Exhausted() {
		return Decision{Allow: true, Reason: "within_budget"}
	}

	resetAt := time.Unix(headers.ResetUnix, 0)
	if !resetAt.After(now) {
		return Decision{Allow: true, Reason: "reset_elapsed"}
	}

	return Decision{
		Allow:   false,
		WaitFor: resetAt.Sub(now) + p.MinResetBuffer,
		Reason:  "remaining_below_threshold",
	}
}

func parseInt(raw string) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return parsed
}

func parseInt64(raw string) int64 {
	parsed, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil {
		return 0
	}
	return parsed
}
