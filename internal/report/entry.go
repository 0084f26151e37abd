package report

import (
	"slices"
	"strings"
)

// Kind classifies a report entry.
type Kind string

const (
	// KindPR is a pull request entry.
	KindPR Kind = "PR"
	// KindIssue is an issue entry.
	KindIssue Kind = "Issue"
	// KindMeeting is a calendar meeting entry.
	KindMeeting Kind = "Meeting"
)

// Action labels recorded on entries.
const (
	ActionOpened    = "opened"
	ActionMerged    = "merged"
	ActionReviewed  = "reviewed"
	ActionCommented = "commented"
	ActionPushed    = "pushed"
)

// Entry is one aggregated line item of a standup report.
type Entry struct {
	Kind  Kind   `json:"kind"`
	Title string `json:"title"`
	// URL is empty when the entry has no link, as for meetings.
	URL     string   `json:"url,omitempty"`
	Actions []string `json:"actions,omitempty"`
}

// HasAction reports whether action was recorded.
func (e Entry) HasAction(action string) bool {
	return slices.Contains(e.Actions, action)
}

// AddAction appends action unless it is already present.
func (e *Entry) AddAction(action string) {
	if e.HasAction(action) {
		return
	}
	e.Actions = append(e.Actions, action)
}

// RemoveAction drops action, keeping the order of the others.
func (e *Entry) RemoveAction(action string) {
	e.Actions = slices.DeleteFunc(e.Actions, func(existing string) bool {
		return existing == action
	})
}

// String renders "[kind] (a, b) title url"; the action group is omitted when empty.
func (e Entry) String() string {
	var b strings.Builder
	b.WriteString("[")
	b.WriteString(string(e.Kind))
	b.WriteString("] ")
	if len(e.Actions) > 0 {
		b.WriteString("(")
		b.WriteString(strings.Join(e.Actions, ", "))
		b.WriteString(") ")
	}
	b.WriteString(e.Title)
	b.WriteString(" ")
	b.WriteString(e.URL)
	return b.String()
}
