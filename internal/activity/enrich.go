package activity

import (
	"context"
	"fmt"
	"strings"

	"github.com/cam3ron2/github-standup/internal/githubapi"
	"github.com/cam3ron2/github-standup/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const (
	branchRefPrefix = "refs/heads/"
	// mainBranchRef is skipped without any lookup.
	mainBranchRef = branchRefPrefix + "master"
)

// RepositoryResolver looks up repository metadata and pull requests by head branch.
type RepositoryResolver interface {
	GetRepository(ctx context.Context, fullName string) (githubapi.RepositoryInfo, error)
	ListPullRequestsByHead(ctx context.Context, fullName, head string) ([]githubapi.PullRequest, error)
}

// Enricher attaches the pull requests whose head is a pushed branch to push events.
type Enricher struct {
	resolver RepositoryResolver
	logger   *zap.Logger
}

// NewEnricher creates a push enricher.
func NewEnricher(resolver RepositoryResolver, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{resolver: resolver, logger: logger}
}

type branchKey struct {
	repo string
	ref  string
}

// Enrich mutates push payloads in place. Only the first push of each
// (repository, ref) pair is resolved. Pushes to a repository's own default
// branch are skipped unless the repository is a fork. Every push to a fork is
// attributed to the upstream repository. Any lookup failure aborts enrichment.
func (e *Enricher) Enrich(ctx context.Context, events []githubapi.Event) (err error) {
	if e == nil || e.resolver == nil {
		return fmt.Errorf("push enricher is not initialized")
	}

	ctx, end := telemetry.StartSpan(ctx, "activity.enrich", attribute.Int("events", len(events)))
	defer func() { end(err) }()

	repositories := make(map[string]githubapi.RepositoryInfo)
	seen := make(map[branchKey]struct{})
	resolved := 0

	for i := range events {
		push, ok := events[i].Payload.(*githubapi.PushPayload)
		if !ok || push.Ref == mainBranchRef {
			continue
		}
		branch, isBranch := strings.CutPrefix(push.Ref, branchRefPrefix)
		if !isBranch || branch == "" {
			continue
		}

		key := branchKey{repo: events[i].RepoName, ref: push.Ref}
		if _, done := seen[key]; done {
			if info, cached := repositories[key.repo]; cached && info.IsFork() {
				events[i].RepoName = info.Source.FullName
			}
			continue
		}
		seen[key] = struct{}{}

		info, lookupErr := e.repository(ctx, repositories, events[i].RepoName)
		if lookupErr != nil {
			return fmt.Errorf("enrich push to %s %s: %w", events[i].RepoName, push.Ref, lookupErr)
		}
		// A fork's default branch can head a pull request against upstream.
		if branch == info.DefaultBranch && !info.IsFork() {
			continue
		}

		target := info.FullName
		if info.IsFork() {
			target = info.Source.FullName
		}
		head := ownerOf(info) + ":" + branch

		pulls, listErr := e.resolver.ListPullRequestsByHead(ctx, target, head)
		if listErr != nil {
			return fmt.Errorf("enrich push to %s %s: %w", events[i].RepoName, push.Ref, listErr)
		}
		if len(pulls) > 0 {
			push.ResolvedPullRequests = pulls
			resolved++
		}

		if info.IsFork() {
			e.logger.Debug("attributing fork push to upstream",
				zap.String("fork", events[i].RepoName),
				zap.String("upstream", target),
				zap.String("ref", push.Ref),
			)
			events[i].RepoName = target
		}
	}

	e.logger.Debug("enriched push events",
		zap.Int("resolved", resolved),
		zap.Int("repositories", len(repositories)),
	)
	return nil
}

func (e *Enricher) repository(ctx context.Context, cache map[string]githubapi.RepositoryInfo, fullName string) (githubapi.RepositoryInfo, error) {
	if info, ok := cache[fullName]; ok {
		return info, nil
	}
	info, err := e.resolver.GetRepository(ctx, fullName)
	if err != nil {
		return githubapi.RepositoryInfo{}, err
	}
	if info.FullName == "" {
		info.FullName = fullName
	}
	cache[fullName] = info
	return info, nil
}

func ownerOf(info githubapi.RepositoryInfo) string {
	if info.Owner != "" {
		return info.Owner
	}
	owner, _, _ := strings.Cut(info.FullName, "/")
	return owner
}
