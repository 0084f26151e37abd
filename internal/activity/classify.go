package activity

import (
	"net/url"
	"slices"
	"strings"

	"github.com/cam3ron2/github-standup/internal/githubapi"
	"github.com/cam3ron2/github-standup/internal/report"
)

// Builder folds the payloads of one repository into report entries keyed by
// pull request or issue number. Payloads must be added oldest first.
type Builder struct {
	login                string
	includeIssueComments bool

	entries map[int]*report.Entry
	order   []int
}

// NewBuilder creates an empty builder for the given user.
func NewBuilder(login string, includeIssueComments bool) *Builder {
	return &Builder{
		login:                login,
		includeIssueComments: includeIssueComments,
		entries:              make(map[int]*report.Entry),
	}
}

// Classify runs every payload through a fresh builder and returns its entries.
func Classify(login string, includeIssueComments bool, payloads []githubapi.Payload) []report.Entry {
	builder := NewBuilder(login, includeIssueComments)
	for _, payload := range payloads {
		builder.Add(payload)
	}
	return builder.Entries()
}

// Add applies one payload.
func (b *Builder) Add(payload githubapi.Payload) {
	switch p := payload.(type) {
	case *githubapi.PullRequestPayload:
		b.addPullRequest(p)
	case *githubapi.ReviewPayload:
		if p.Action == "submitted" {
			b.addReview(p.PullRequest)
		}
	case *githubapi.ReviewCommentPayload:
		if p.Action == "created" {
			b.addReview(p.PullRequest)
		}
	case *githubapi.IssuePayload:
		b.addIssue(p)
	case *githubapi.IssueCommentPayload:
		if p.Action == "created" {
			b.addIssueComment(p)
		}
	case *githubapi.PushPayload:
		b.addPush(p)
	}
}

// Entries returns the accumulated entries in first-seen order.
func (b *Builder) Entries() []report.Entry {
	out := make([]report.Entry, 0, len(b.order))
	for _, number := range b.order {
		entry := *b.entries[number]
		entry.Actions = slices.Clone(entry.Actions)
		out = append(out, entry)
	}
	return out
}

// addPullRequest records the event action verbatim, except that closed
// becomes merged and an unmerged close is dropped.
func (b *Builder) addPullRequest(p *githubapi.PullRequestPayload) {
	action := p.Action
	if action == "closed" {
		if !p.PullRequest.Merged {
			return
		}
		action = report.ActionMerged
	}
	if action == "" {
		return
	}
	entry := b.upsert(p.PullRequest.Number, report.KindPR, p.PullRequest.Title, p.PullRequest.URL)
	if action == report.ActionOpened {
		entry.RemoveAction(report.ActionPushed)
	}
	entry.AddAction(action)
}

// addReview records a review of someone else's pull request, once.
func (b *Builder) addReview(pr githubapi.PullRequest) {
	if b.isSelf(pr.AuthorLogin) {
		return
	}
	b.insertIfAbsent(pr.Number, report.KindPR, pr.Title, pr.URL, report.ActionReviewed)
}

func (b *Builder) addIssue(p *githubapi.IssuePayload) {
	if p.Action != "opened" {
		return
	}
	entry := b.upsert(p.Issue.Number, report.KindIssue, p.Issue.Title, p.Issue.URL)
	entry.AddAction(report.ActionOpened)
}

func (b *Builder) addIssueComment(p *githubapi.IssueCommentPayload) {
	if isPullRequestIssue(p.Issue) {
		if b.isSelf(p.Issue.AuthorLogin) {
			return
		}
		b.insertIfAbsent(p.Issue.Number, report.KindPR, p.Issue.Title, p.Issue.URL, report.ActionReviewed)
		return
	}
	if !b.includeIssueComments {
		return
	}
	b.insertIfAbsent(p.Issue.Number, report.KindIssue, p.Issue.Title, p.Issue.URL, report.ActionCommented)
}

func (b *Builder) addPush(p *githubapi.PushPayload) {
	for _, pr := range p.ResolvedPullRequests {
		b.insertIfAbsent(pr.Number, report.KindPR, pr.Title, pr.URL, report.ActionPushed)
	}
}

func (b *Builder) upsert(number int, kind report.Kind, title, link string) *report.Entry {
	if entry, ok := b.entries[number]; ok {
		return entry
	}
	entry := &report.Entry{Kind: kind, Title: title, URL: link}
	b.entries[number] = entry
	b.order = append(b.order, number)
	return entry
}

func (b *Builder) insertIfAbsent(number int, kind report.Kind, title, link, action string) {
	if _, ok := b.entries[number]; ok {
		return
	}
	entry := b.upsert(number, kind, title, link)
	entry.AddAction(action)
}

func (b *Builder) isSelf(login string) bool {
	return login != "" && strings.EqualFold(login, b.login)
}

// isPullRequestIssue prefers the pull_request back-reference and falls back
// to the html URL shape owner/repo/pull/N.
func isPullRequestIssue(issue githubapi.Issue) bool {
	if issue.IsPullRequest {
		return true
	}
	parsed, err := url.Parse(issue.URL)
	if err != nil {
		return false
	}
	segments := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	return len(segments) >= 3 && segments[2] == "pull"
}
