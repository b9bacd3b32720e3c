// Package filter implements the multi-criteria variable filter: search text,
// type and group sets, and four tri-state flag dimensions, combined with
// logical AND. There is deliberately no OR or NOT support.
package filter

import (
	"sort"
	"strings"

	"github.com/medixtract-review/internal/domain"
)

// TriState is one position of a three-way filter dimension.
type TriState string

const (
	// TriAll imposes no constraint.
	TriAll TriState = "all"
	// TriTrue requires the indicator to be exactly true.
	TriTrue TriState = "true"
	// TriFalse matches indicators that are false, absent or null. The
	// asymmetry with TriTrue is intentional: most variables have never been
	// touched and must count as "false" for filtering purposes.
	TriFalse TriState = "false"
)

// IsValid reports whether the value is one of the three positions.
func (t TriState) IsValid() bool {
	switch t {
	case TriAll, TriTrue, TriFalse:
		return true
	default:
		return false
	}
}

// Next returns the following position in the cyclic UI toggle
// all -> true -> false -> all. Unknown values reset to TriAll.
func (t TriState) Next() TriState {
	switch t {
	case TriAll:
		return TriTrue
	case TriTrue:
		return TriFalse
	case TriFalse:
		return TriAll
	default:
		return TriAll
	}
}

// Matches evaluates the position against a derived boolean indicator.
func (t TriState) Matches(indicator bool) bool {
	switch t {
	case TriTrue:
		return indicator
	case TriFalse:
		return !indicator
	default:
		return true
	}
}

// Spec is a filter specification. Zero values impose no constraint: empty
// search matches everything, empty type/group sets are unconstrained, and an
// empty TriState behaves as TriAll.
type Spec struct {
	Search       string   `json:"search"`
	Types        []string `json:"types"`
	Groups       []string `json:"groups"`
	Comments     TriState `json:"comments"`
	Errors       TriState `json:"errors"`
	Changes      TriState `json:"changes"`
	Improvements TriState `json:"improvements"`
}

// Matches reports whether one variable satisfies every active criterion.
func (s Spec) Matches(key string, v *domain.Variable) bool {
	if s.Search != "" {
		needle := strings.ToLower(s.Search)
		if !strings.Contains(strings.ToLower(key), needle) &&
			!strings.Contains(strings.ToLower(v.Description), needle) &&
			!strings.Contains(strings.ToLower(v.Comments), needle) &&
			!strings.Contains(strings.ToLower(v.Group()), needle) {
			return false
		}
	}

	if len(s.Types) > 0 && !containsString(s.Types, v.DerivedType()) {
		return false
	}

	if len(s.Groups) > 0 && !containsString(s.Groups, v.Group()) {
		return false
	}

	return s.Comments.Matches(v.HasComments()) &&
		s.Errors.Matches(v.HasErrors()) &&
		s.Changes.Matches(v.HasChanges()) &&
		s.Improvements.Matches(v.HasImprovements())
}

// Apply evaluates the spec over a document's variables and returns the
// matching keys, sorted lexicographically.
func Apply(doc *domain.Document, spec Spec) []string {
	var out []string
	for key, v := range doc.Properties {
		if spec.Matches(key, v) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out
}

func containsString(set []string, s string) bool {
	for _, member := range set {
		if member == s {
			return true
		}
	}
	return false
}
