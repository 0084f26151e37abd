package githubapi

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"
)

func newTestRequestClient(doer HTTPDoer) *Client {
	policy := RateLimitPolicy{
		MinRemainingThreshold: 0,
		Now: func() time.Time {
			return time.Unix(1739836800, 0)
		},
	}
	return NewClient(doer, RetryConfig{MaxAttempts: 1}, policy)
}

func TestNewDataClient(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name        string
		baseURL     string
		client      *Client
		wantErr     bool
		errContains string
	}{
		{
			name:   "uses_default_base_url",
			client: newTestRequestClient(&fakeDoer{}),
		},
		{
			name:    "accepts_custom_base_url",
			baseURL: "https://github.example.com/api/v3",
			client:  newTestRequestClient(&fakeDoer{}),
		},
		{
			name:        "rejects_invalid_base_url",
			baseURL:     "://bad-url",
			client:      newTestRequestClient(&fakeDoer{}),
			wantErr:     true,
			errContains: "parse github api base url",
		},
		{
			name:        "rejects_nil_client",
			baseURL:     "https://api.github.com",
			wantErr:     true,
			errContains: "request client is required",
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client, err := NewDataClient(tc.baseURL, tc.client)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("NewDataClient() expected error, got nil")
				}
				if !strings.Contains(err.Error(), tc.errContains) {
					t.Fatalf("error = %q, missing %q", err.Error(), tc.errContains)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewDataClient() unexpected error: %v", err)
			}
			if client == nil {
				t.Fatalf("NewDataClient() returned nil client")
			}
		})
	}
}

func TestDataClientListUserEvents(t *testing.T) {
	t.Parallel()

	doer := &fakeDoer{
		responses: []*http.Response{
			newResponse(http.StatusOK, map[string]string{
				"Link": `<https://api.github.com/user/1/events?page=3>; rel="next", <https://api.github.com/user/1/events?page=10>; rel="last"`,
			}, `[
				{"type":"IssuesEvent","repo":{"name":"octo/widgets"},"created_at":"2026-10-16T10:00:00Z",
				 "payload":{"action":"opened","issue":{"number":7,"html_url":"https://github.com/octo/widgets/issues/7","title":"Broken","user":{"login":"octo"}}}},
				{"type":"WatchEvent","repo":{"name":"octo/widgets"},"created_at":"2026-10-16T09:00:00Z","payload":{"action":"started"}}
			]`),
		},
	}
	client, err := NewDataClient("https://github.example.com/api/v3", newTestRequestClient(doer))
	if err != nil {
		t.Fatalf("NewDataClient() unexpected error: %v", err)
	}

	page, err := client.ListUserEvents(context.Background(), "octo", 2)
	if err != nil {
		t.Fatalf("ListUserEvents() unexpected error: %v", err)
	}
	if !page.HasNext {
		t.Fatalf("HasNext = false, want true")
	}
	if len(page.Events) != 2 {
		t.Fatalf("len(Events) = %d, want 2", len(page.Events))
	}
	if page.Events[1].Payload != nil {
		t.Fatalf("Events[1].Payload = %#v, want nil for unknown type", page.Events[1].Payload)
	}
	if page.Metadata.Attempts != 1 {
		t.Fatalf("Attempts = %d, want 1", page.Metadata.Attempts)
	}

	req := doer.requests[0]
	if req.URL.Path != "/api/v3/users/octo/events" {
		t.Fatalf("path = %q, want /api/v3/users/octo/events", req.URL.Path)
	}
	if got := req.URL.Query().Get("page"); got != "2" {
		t.Fatalf("page = %q, want 2", got)
	}
	if got := req.URL.Query().Get("per_page"); got != "100" {
		t.Fatalf("per_page = %q, want 100", got)
	}
}

func TestDataClientListUserEventsErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name      string
		user      string
		doer      *fakeDoer
		assertErr func(t *testing.T, err error)
	}{
		{
			name: "missing_user",
			user: " ",
			doer: &fakeDoer{},
			assertErr: func(t *testing.T, err error) {
				t.Helper()
				var target *ConfigurationError
				if !errors.As(err, &target) {
					t.Fatalf("error = %T, want *ConfigurationError", err)
				}
			},
		},
		{
			name: "transport_failure",
			user: "octo",
			doer: &fakeDoer{errors: []error{errors.New("dial tcp: no route to host")}},
			assertErr: func(t *testing.T, err error) {
				t.Helper()
				var target *TransportError
				if !errors.As(err, &target) {
					t.Fatalf("error = %T, want *TransportError", err)
				}
			},
		},
		{
			name: "non_2xx_status",
			user: "octo",
			doer: &fakeDoer{responses: []*http.Response{
				newResponse(http.StatusUnauthorized, map[string]string{}, `{"message":"Bad credentials"}`),
			}},
			assertErr: func(t *testing.T, err error) {
				t.Helper()
				var target *HTTPStatusError
				if !errors.As(err, &target) {
					t.Fatalf("error = %T, want *HTTPStatusError", err)
				}
				if target.StatusCode != http.StatusUnauthorized || target.Message != "Bad credentials" {
					t.Fatalf("status error = %+v, want 401 Bad credentials", target)
				}
			},
		},
		{
			name: "rate_limited",
			user: "octo",
			doer: &fakeDoer{responses: []*http.Response{
				newResponse(http.StatusForbidden, map[string]string{"X-RateLimit-Remaining": "0"}, `{"message":"API rate limit exceeded for user"}`),
			}},
			assertErr: func(t *testing.T, err error) {
				t.Helper()
				if !IsRateLimited(err) {
					t.Fatalf("IsRateLimited(%v) = false, want true", err)
				}
			},
		},
		{
			name: "malformed_body",
			user: "octo",
			doer: &fakeDoer{responses: []*http.Response{
				newResponse(http.StatusOK, map[string]string{}, `{"not":"an array"}`),
			}},
			assertErr: func(t *testing.T, err error) {
				t.Helper()
				var target *DecodeError
				if !errors.As(err, &target) {
					t.Fatalf("error = %T, want *DecodeError", err)
				}
			},
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			client, err := NewDataClient("", newTestRequestClient(tc.doer))
			if err != nil {
				t.Fatalf("NewDataClient() unexpected error: %v", err)
			}
			_, err = client.ListUserEvents(context.Background(), tc.user, 1)
			if err == nil {
				t.Fatalf("ListUserEvents() expected error, got nil")
			}
			tc.assertErr(t, err)
		})
	}
}

func TestHasNextPage(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name   string
		header string
		want   bool
	}{
		{name: "empty", header: "", want: false},
		{name: "next_present", header: `<https://api.github.com/x?page=2>; rel="next", <https://api.github.com/x?page=3>; rel="last"`, want: true},
		{name: "only_prev_and_first", header: `<https://api.github.com/x?page=1>; rel="prev", <https://api.github.com/x?page=1>; rel="first"`, want: false},
		{name: "next_in_url_only", header: `<https://api.github.com/x?rel="next">; rel="last"`, want: false},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := hasNextPage(tc.header); got != tc.want {
				t.Fatalf("hasNextPage(%q) = %t, want %t", tc.header, got, tc.want)
			}
		})
	}
}
