package githubapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

const defaultGitHubAPIBaseURL = "https://api.github.com/"

// EventsPageSize is the page size requested from the events endpoint.
// The documented maximum is lower, but the endpoint honours 100.
const EventsPageSize = 100

// EventsPage is one page of a user's activity feed.
type EventsPage struct {
	Events   []Event
	HasNext  bool
	Metadata CallMetadata
}

// DataClient is a typed GitHub REST client for the activity feed.
type DataClient struct {
	baseURL       *url.URL
	requestClient *Client
}

// NewDataClient creates a typed data client over the generic retry/rate-limit request client.
func NewDataClient(baseURL string, requestClient *Client) (*DataClient, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}

	parsed, err := parseAPIBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &DataClient{
		baseURL:       parsed,
		requestClient: requestClient,
	}, nil
}

// ListUserEvents reads one page of the events performed by user, newest first.
func (c *DataClient) ListUserEvents(ctx context.Context, user string, page int) (EventsPage, error) {
	const op = "list user events"

	trimmedUser := strings.TrimSpace(user)
	if trimmedUser == "" {
		return EventsPage{}, &ConfigurationError{Field: "github.user", Reason: "is required"}
	}
	if page <= 0 {
		page = 1
	}

	reqURL := c.cloneBaseURL()
	reqURL.Path = joinURLPath(reqURL.Path, "users", url.PathEscape(trimmedUser), "events")
	query := reqURL.Query()
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(EventsPageSize))
	reqURL.RawQuery = query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return EventsPage{}, fmt.Errorf("build %s request: %w", op, err)
	}

	resp, metadata, err := c.requestClient.Do(req)
	if err != nil {
		return EventsPage{}, fmt.Errorf("%s page %d: %w", op, page, err)
	}
	if resp == nil {
		return EventsPage{}, &TransportError{Op: op, Err: fmt.Errorf("nil response")}
	}
	defer resp.Body.Close()

	if !isSuccessStatus(resp.StatusCode) {
		return EventsPage{}, &HTTPStatusError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    apiErrorMessage(resp.Body),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return EventsPage{}, &TransportError{Op: op, Err: err}
	}
	events, err := DecodeEvents(body)
	if err != nil {
		return EventsPage{}, &DecodeError{Op: op, Err: err}
	}

	return EventsPage{
		Events:   events,
		HasNext:  hasNextPage(resp.Header.Get("Link")),
		Metadata: metadata,
	}, nil
}

func (c *DataClient) cloneBaseURL() *url.URL {
	cloned := *c.baseURL
	return &cloned
}

func joinURLPath(base string, segments ...string) string {
	trimmedBase := strings.TrimSuffix(base, "/")
	builder := strings.Builder{}
	builder.WriteString(trimmedBase)
	for _, segment := range segments {
		builder.WriteString("/")
		builder.WriteString(strings.TrimPrefix(segment, "/"))
	}
	return builder.String()
}

// apiErrorMessage extracts the "message" field of a GitHub error body.
func apiErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64<<10))
	if err != nil || len(data) == 0 {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return ""
	}
	return payload.Message
}

// hasNextPage reports whether a Link header carries a rel="next" relation.
func hasNextPage(linkHeader string) bool {
	if strings.TrimSpace(linkHeader) == "" {
		return false
	}
	for _, part := range strings.Split(linkHeader, ",") {
		_, params, found := strings.Cut(part, ";")
		if !found {
			continue
		}
		for _, param := range strings.Split(params, ";") {
			if strings.TrimSpace(param) == `rel="next"` {
				return true
			}
		}
	}
	return false
}
