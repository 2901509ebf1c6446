package report

import (
	"fmt"

	"github.com/AutonomosCdM/first-court-sub000/internal/core/history"
	"github.com/bmatcuk/doublestar/v4"
)

// Filter narrows a report or a history listing with glob patterns.
// An empty pattern list matches everything.
type Filter struct {
	agents   []string
	subjects []string
}

// NewFilter validates the agent and subject patterns.
func NewFilter(agents, subjects []string) (Filter, error) {
	for _, p := range append(append([]string(nil), agents...), subjects...) {
		if !doublestar.ValidatePattern(p) {
			return Filter{}, fmt.Errorf("invalid pattern %q", p)
		}
	}
	return Filter{agents: agents, subjects: subjects}, nil
}

// MatchAgent reports whether id passes the agent patterns.
func (f Filter) MatchAgent(id string) bool {
	return matchAny(f.agents, id)
}

// MatchEntry reports whether the entry's subject passes the subject
// patterns.
func (f Filter) MatchEntry(e history.Entry) bool {
	return matchAny(f.subjects, e.Message.Subject())
}

// Entries returns the entries of r that pass the subject patterns.
func (f Filter) Entries(r history.Reader) []history.Entry {
	all := r.Entries()
	if len(f.subjects) == 0 {
		return all
	}

	out := all[:0]
	for _, e := range all {
		if f.MatchEntry(e) {
			out = append(out, e)
		}
	}
	return out
}

func matchAny(patterns []string, s string) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		// Patterns were validated in NewFilter.
		if ok, _ := doublestar.Match(p, s); ok {
			return true
		}
	}
	return false
}
