package githubapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/go-github/v75/github"
)

// RepositoryInfo is the repository metadata used to resolve push events.
type RepositoryInfo struct {
	FullName      string
	Owner         string
	DefaultBranch string
	// Source is the upstream repository, set only for forks.
	Source *RepositoryInfo
}

// IsFork reports whether the repository has an upstream source.
func (r RepositoryInfo) IsFork() bool {
	return r.Source != nil
}

// RepoClient resolves repository metadata and pull requests through go-github.
type RepoClient struct {
	gh *github.Client
}

// NewRepoClient wraps a go-github client.
func NewRepoClient(gh *github.Client) (*RepoClient, error) {
	if gh == nil {
		return nil, fmt.Errorf("github client is required")
	}
	return &RepoClient{gh: gh}, nil
}

// GetRepository reads metadata for a repository addressed as "owner/name".
func (c *RepoClient) GetRepository(ctx context.Context, fullName string) (RepositoryInfo, error) {
	const op = "get repository"

	owner, name, err := splitFullName(fullName)
	if err != nil {
		return RepositoryInfo{}, err
	}

	repo, _, err := c.gh.Repositories.Get(ctx, owner, name)
	if err != nil {
		return RepositoryInfo{}, fmt.Errorf("%s %s: %w", op, fullName, mapGitHubError(op, err))
	}
	if repo == nil {
		return RepositoryInfo{}, &DecodeError{Op: op, Err: fmt.Errorf("empty repository body")}
	}

	info := repositoryInfoFrom(repo)
	if repo.GetFork() && repo.Source != nil {
		source := repositoryInfoFrom(repo.Source)
		info.Source = &source
	}
	return info, nil
}

// ListPullRequestsByHead lists pull requests in any state whose head matches "owner:branch".
func (c *RepoClient) ListPullRequestsByHead(ctx context.Context, fullName, head string) ([]PullRequest, error) {
	const op = "list pull requests"

	owner, name, err := splitFullName(fullName)
	if err != nil {
		return nil, err
	}

	opts := &github.PullRequestListOptions{
		State:       "all",
		Head:        head,
		ListOptions: github.ListOptions{PerPage: 100},
	}
	pulls, _, err := c.gh.PullRequests.List(ctx, owner, name, opts)
	if err != nil {
		return nil, fmt.Errorf("%s %s head=%s: %w", op, fullName, head, mapGitHubError(op, err))
	}

	result := make([]PullRequest, 0, len(pulls))
	for _, pr := range pulls {
		if pr == nil {
			continue
		}
		result = append(result, PullRequest{
			Number:      pr.GetNumber(),
			URL:         pr.GetHTMLURL(),
			Title:       pr.GetTitle(),
			Merged:      pr.GetMerged() || pr.MergedAt != nil,
			AuthorLogin: pr.GetUser().GetLogin(),
		})
	}
	return result, nil
}

func repositoryInfoFrom(repo *github.Repository) RepositoryInfo {
	return RepositoryInfo{
		FullName:      repo.GetFullName(),
		Owner:         repo.GetOwner().GetLogin(),
		DefaultBranch: repo.GetDefaultBranch(),
	}
}

func splitFullName(fullName string) (string, string, error) {
	owner, name, found := strings.Cut(strings.TrimSpace(fullName), "/")
	if !found || owner == "" || name == "" || strings.Contains(name, "/") {
		return "", "", fmt.Errorf("repository name %q must be owner/name", fullName)
	}
	return owner, name, nil
}

// mapGitHubError converts go-github failures into this package's error kinds.
func mapGitHubError(op string, err error) error {
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return &TransportError{Op: op, Err: transportErr.Err}
	}

	var rateErr *github.RateLimitError
	if errors.As(err, &rateErr) {
		return &HTTPStatusError{Op: op, StatusCode: statusOf(rateErr.Response, http.StatusForbidden), Message: rateErr.Message}
	}
	var abuseErr *github.AbuseRateLimitError
	if errors.As(err, &abuseErr) {
		return &HTTPStatusError{Op: op, StatusCode: statusOf(abuseErr.Response, http.StatusForbidden), Message: abuseErr.Message}
	}
	var responseErr *github.ErrorResponse
	if errors.As(err, &responseErr) {
		return &HTTPStatusError{Op: op, StatusCode: statusOf(responseErr.Response, 0), Message: responseErr.Message}
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return &DecodeError{Op: op, Err: err}
	}

	return &TransportError{Op: op, Err: err}
}

func statusOf(resp *http.Response, fallback int) int {
	if resp == nil {
		return fallback
	}
	return resp.StatusCode
}
