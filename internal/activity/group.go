package activity

import (
	"slices"

	"github.com/cam3ron2/github-standup/internal/githubapi"
)

// SortOldestFirst orders events by creation time, keeping feed order for ties.
func SortOldestFirst(events []githubapi.Event) {
	slices.SortStableFunc(events, func(a, b githubapi.Event) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
}

// GroupByRepo buckets payloads by repository name, preserving input order
// within each bucket. Events without a payload are dropped.
func GroupByRepo(events []githubapi.Event) map[string][]githubapi.Payload {
	grouped := make(map[string][]githubapi.Payload)
	for _, event := range events {
		if event.Payload == nil {
			continue
		}
		grouped[event.RepoName] = append(grouped[event.RepoName], event.Payload)
	}
	return grouped
}
