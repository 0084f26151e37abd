package githubapi

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// TransportError reports a connection, DNS or TLS failure before any response was received.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: request to github failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// HTTPStatusError reports a non-2xx response.
type HTTPStatusError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *HTTPStatusError) Error() string {
	text := http.StatusText(e.StatusCode)
	if text == "" {
		text = "unknown status"
	}
	if strings.TrimSpace(e.Message) == "" {
		return fmt.Sprintf("%s: incorrect response status: %d %s", e.Op, e.StatusCode, text)
	}
	return fmt.Sprintf("%s: incorrect response status: %d %s: %s", e.Op, e.StatusCode, text, e.Message)
}

// RateLimited reports whether the status denotes a primary or secondary rate limit.
func (e *HTTPStatusError) RateLimited() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	return e.StatusCode == http.StatusForbidden && strings.Contains(strings.ToLower(e.Message), "rate limit")
}

// DecodeError reports a response body that does not match the expected shape.
type DecodeError struct {
	Op  string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: can not parse github response: %v", e.Op, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// ConfigurationError reports missing credentials or state required to make a call.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration: %s %s", e.Field, e.Reason)
}

// IsRateLimited reports whether err carries a rate-limited HTTPStatusError.
func IsRateLimited(err error) bool {
	var statusErr *HTTPStatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	return statusErr.RateLimited()
}
