package githubapi

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Event type tags as reported by the GitHub events API.
const (
	EventTypePullRequest              = "PullRequestEvent"
	EventTypePullRequestReview        = "PullRequestReviewEvent"
	EventTypePullRequestReviewComment = "PullRequestReviewCommentEvent"
	EventTypeIssues                   = "IssuesEvent"
	EventTypeIssueComment             = "IssueCommentEvent"
	EventTypePush                     = "PushEvent"
)

// Event is one entry of a user's activity feed.
type Event struct {
	RepoName  string
	CreatedAt time.Time
	Type      string
	// Payload is nil when Type is not one the pipeline understands.
	Payload Payload
}

// Payload is the closed set of event payload variants.
type Payload interface {
	eventType() string
}

// PullRequest is the subset of a pull request used for reporting.
type PullRequest struct {
	Number      int
	URL         string
	Title       string
	Merged      bool
	AuthorLogin string
}

// Issue is the subset of an issue used for reporting.
type Issue struct {
	Number      int
	URL         string
	Title       string
	AuthorLogin string
	// IsPullRequest is set when the API response carries a pull_request back-reference.
	IsPullRequest bool
}

// PullRequestPayload is the payload of a PullRequestEvent.
type PullRequestPayload struct {
	Action      string
	PullRequest PullRequest
}

// ReviewPayload is the payload of a PullRequestReviewEvent.
type ReviewPayload struct {
	Action      string
	PullRequest PullRequest
}

// ReviewCommentPayload is the payload of a PullRequestReviewCommentEvent.
type ReviewCommentPayload struct {
	Action      string
	PullRequest PullRequest
}

// IssuePayload is the payload of an IssuesEvent.
type IssuePayload struct {
	Action string
	Issue  Issue
}

// IssueCommentPayload is the payload of an IssueCommentEvent. The issue may be a pull request.
type IssueCommentPayload struct {
	Action string
	Issue  Issue
}

// PushPayload is the payload of a PushEvent.
type PushPayload struct {
	Ref string
	// ResolvedPullRequests is filled by push enrichment; nil means unresolved.
	ResolvedPullRequests []PullRequest
}

func (*PullRequestPayload) eventType() string   { return EventTypePullRequest }
func (*ReviewPayload) eventType() string        { return EventTypePullRequestReview }
func (*ReviewCommentPayload) eventType() string { return EventTypePullRequestReviewComment }
func (*IssuePayload) eventType() string         { return EventTypeIssues }
func (*IssueCommentPayload) eventType() string  { return EventTypeIssueComment }
func (*PushPayload) eventType() string          { return EventTypePush }

// DecodeEvents decodes one page of the events endpoint.
// Each element is decoded in two stages: the envelope first, then the raw
// payload into the variant selected by the type tag. Unknown tags yield a
// nil payload rather than an error.
func DecodeEvents(data []byte) ([]Event, error) {
	var envelopes []eventEnvelope
	if err := json.Unmarshal(data, &envelopes); err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(envelopes))
	for i, envelope := range envelopes {
		payload, err := decodePayload(envelope.Type, envelope.Payload)
		if err != nil {
			return nil, fmt.Errorf("event %d (%s): %w", i, envelope.Type, err)
		}
		events = append(events, Event{
			RepoName:  envelope.Repo.Name,
			CreatedAt: envelope.CreatedAt.UTC(),
			Type:      envelope.Type,
			Payload:   payload,
		})
	}
	return events, nil
}

func decodePayload(eventType string, raw json.RawMessage) (Payload, error) {
	switch eventType {
	case EventTypePullRequest:
		var dto pullRequestEventDTO
		if err := unmarshalPayload(raw, &dto); err != nil {
			return nil, err
		}
		return &PullRequestPayload{Action: dto.Action, PullRequest: dto.PullRequest.toPullRequest()}, nil
	case EventTypePullRequestReview:
		var dto pullRequestEventDTO
		if err := unmarshalPayload(raw, &dto); err != nil {
			return nil, err
		}
		return &ReviewPayload{Action: dto.Action, PullRequest: dto.PullRequest.toPullRequest()}, nil
	case EventTypePullRequestReviewComment:
		var dto pullRequestEventDTO
		if err := unmarshalPayload(raw, &dto); err != nil {
			return nil, err
		}
		return &ReviewCommentPayload{Action: dto.Action, PullRequest: dto.PullRequest.toPullRequest()}, nil
	case EventTypeIssues:
		var dto issueEventDTO
		if err := unmarshalPayload(raw, &dto); err != nil {
			return nil, err
		}
		return &IssuePayload{Action: dto.Action, Issue: dto.Issue.toIssue()}, nil
	case EventTypeIssueComment:
		var dto issueEventDTO
		if err := unmarshalPayload(raw, &dto); err != nil {
			return nil, err
		}
		return &IssueCommentPayload{Action: dto.Action, Issue: dto.Issue.toIssue()}, nil
	case EventTypePush:
		var dto pushEventDTO
		if err := unmarshalPayload(raw, &dto); err != nil {
			return nil, err
		}
		return &PushPayload{Ref: dto.Ref}, nil
	default:
		return nil, nil
	}
}

func unmarshalPayload(raw json.RawMessage, target any) error {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return fmt.Errorf("payload is missing")
	}
	return json.Unmarshal(raw, target)
}

type eventEnvelope struct {
	Type      string          `json:"type"`
	Repo      repoRefDTO      `json:"repo"`
	CreatedAt time.Time       `json:"created_at"`
	Payload   json.RawMessage `json:"payload"`
}

type repoRefDTO struct {
	Name string `json:"name"`
}

type pullRequestEventDTO struct {
	Action      string         `json:"action"`
	PullRequest pullRequestDTO `json:"pull_request"`
}

type issueEventDTO struct {
	Action string   `json:"action"`
	Issue  issueDTO `json:"issue"`
}

type pushEventDTO struct {
	Ref string `json:"ref"`
}

type pullRequestDTO struct {
	Number   int          `json:"number"`
	HTMLURL  string       `json:"html_url"`
	Title    string       `json:"title"`
	Merged   bool         `json:"merged"`
	MergedAt *string      `json:"merged_at"`
	User     *userPayload `json:"user"`
}

func (p pullRequestDTO) toPullRequest() PullRequest {
	pr := PullRequest{
		Number: p.Number,
		URL:    p.HTMLURL,
		Title:  p.Title,
		Merged: p.Merged || (p.MergedAt != nil && *p.MergedAt != ""),
	}
	if p.User != nil {
		pr.AuthorLogin = p.User.Login
	}
	return pr
}

type issueDTO struct {
	Number      int             `json:"number"`
	HTMLURL     string          `json:"html_url"`
	Title       string          `json:"title"`
	User        *userPayload    `json:"user"`
	PullRequest json.RawMessage `json:"pull_request"`
}

func (i issueDTO) toIssue() Issue {
	issue := Issue{
		Number: i.Number,
		URL:    i.HTMLURL,
		Title:  i.Title,
	}
	if i.User != nil {
		issue.AuthorLogin = i.User.Login
	}
	ref := strings.TrimSpace(string(i.PullRequest))
	issue.IsPullRequest = ref != "" && ref != "null"
	return issue
}

type userPayload struct {
	Login string `json:"login"`
}
