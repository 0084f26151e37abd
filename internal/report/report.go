package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"
)

// MeetingsSection is the heading used for calendar entries in rendered output.
const MeetingsSection = "Meetings"

// Report is the outcome of one standup collection.
type Report struct {
	User  string     `json:"user"`
	Since time.Time  `json:"since"`
	Until *time.Time `json:"until,omitempty"`
	// Repositories maps a repository full name to its entries.
	Repositories map[string][]Entry `json:"repositories"`
	Meetings     []Entry            `json:"meetings,omitempty"`
	// Incomplete is set when the activity feed did not reach back to Since.
	Incomplete  bool      `json:"incomplete"`
	OldestEvent time.Time `json:"oldest_event,omitzero"`
}

// RepositoryNames returns the repository names in lexical order.
func (r Report) RepositoryNames() []string {
	names := make([]string, 0, len(r.Repositories))
	for name := range r.Repositories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// EntryCount counts GitHub entries across repositories.
func (r Report) EntryCount() int {
	total := 0
	for _, entries := range r.Repositories {
		total += len(entries)
	}
	return total
}

// Empty reports whether there is nothing to show.
func (r Report) Empty() bool {
	return r.EntryCount() == 0 && len(r.Meetings) == 0
}

// WriteText renders the report as an indented list, one section per repository.
func (r Report) WriteText(w io.Writer) error {
	for _, name := range r.RepositoryNames() {
		entries := r.Repositories[name]
		if len(entries) == 0 {
			continue
		}
		if err := writeSection(w, name, entries); err != nil {
			return err
		}
	}
	if len(r.Meetings) > 0 {
		if err := writeSection(w, MeetingsSection, r.Meetings); err != nil {
			return err
		}
	}
	return nil
}

func writeSection(w io.Writer, heading string, entries []Entry) error {
	if _, err := fmt.Fprintf(w, "- %s:\n", heading); err != nil {
		return err
	}
	for _, entry := range entries {
		if _, err := fmt.Fprintf(w, "  * %s\n", entry); err != nil {
			return err
		}
	}
	return nil
}

// WriteJSON renders the report as indented JSON.
func (r Report) WriteJSON(w io.Writer) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(r)
}
