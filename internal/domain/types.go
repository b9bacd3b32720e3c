// Package domain contains the core entities for per-patient extraction-quality
// review of a clinical variable schema: the sparse classification flag
// taxonomy, classification records, variables, and versioned documents.
package domain

import (
	"sort"
)

// Flag identifies one boolean classification flag on a (variable, patient)
// record. Only flags that are true are ever stored or serialized.
type Flag string

// Status flags. At most one status flag may be true on a record.
const (
	FlagPending       Flag = "pending"
	FlagMatch         Flag = "match"
	FlagNotApplicable Flag = "not_applicable"
)

// Improvement flags. Any subset may be combined.
const (
	FlagFilledBlank     Flag = "filled_blank"
	FlagCorrection      Flag = "correction"
	FlagStandardized    Flag = "standardized"
	FlagImprovedComment Flag = "improved_comment"
)

// Issue flags. Any subset may be combined.
const (
	FlagMissingDocs          Flag = "missing_docs"
	FlagMissingDocsSuspected Flag = "missing_docs_suspected"
	FlagContradictions       Flag = "contradictions"
	FlagQuestioned           Flag = "questioned"
)

// Resolved flags. Any subset may be combined.
const (
	FlagWasPersonalData Flag = "was_personal_data"
	FlagWasMissingDocs  Flag = "was_missing_docs"
	FlagWasQuestioned   Flag = "was_questioned"
)

// FlagGroup represents one of the four fixed flag groups.
type FlagGroup string

const (
	GroupStatus       FlagGroup = "status"
	GroupImprovements FlagGroup = "improvements"
	GroupIssues       FlagGroup = "issues"
	GroupResolved     FlagGroup = "resolved"
)

// flagGroups is the authoritative group membership table. Adding a flag is a
// data change here, not a code change anywhere else.
var flagGroups = map[FlagGroup][]Flag{
	GroupStatus:       {FlagPending, FlagMatch, FlagNotApplicable},
	GroupImprovements: {FlagFilledBlank, FlagCorrection, FlagStandardized, FlagImprovedComment},
	GroupIssues:       {FlagMissingDocs, FlagMissingDocsSuspected, FlagContradictions, FlagQuestioned},
	GroupResolved:     {FlagWasPersonalData, FlagWasMissingDocs, FlagWasQuestioned},
}

// groupOf is the reverse index, built once at init.
var groupOf = func() map[Flag]FlagGroup {
	m := make(map[Flag]FlagGroup)
	for group, flags := range flagGroups {
		for _, f := range flags {
			m[f] = group
		}
	}
	return m
}()

// IsValid reports whether the flag belongs to the fixed taxonomy.
func (f Flag) IsValid() bool {
	_, ok := groupOf[f]
	return ok
}

// Group returns the flag's group, or "" for unknown flags.
func (f Flag) Group() FlagGroup {
	return groupOf[f]
}

// String returns the string representation of the flag.
func (f Flag) String() string {
	return string(f)
}

// GroupFlags returns the flags belonging to a group, in taxonomy order.
func GroupFlags(g FlagGroup) []Flag {
	flags := flagGroups[g]
	out := make([]Flag, len(flags))
	copy(out, flags)
	return out
}

// AllFlags returns every flag from all four groups, in taxonomy order.
func AllFlags() []Flag {
	out := make([]Flag, 0, len(groupOf))
	for _, g := range []FlagGroup{GroupStatus, GroupImprovements, GroupIssues, GroupResolved} {
		out = append(out, flagGroups[g]...)
	}
	return out
}

// FlagSet is a sparse set of classification flags: membership means true,
// absence means false. False values are never materialized.
type FlagSet map[Flag]bool

// NewFlagSet builds a FlagSet from the given flags.
func NewFlagSet(flags ...Flag) FlagSet {
	s := make(FlagSet, len(flags))
	for _, f := range flags {
		s[f] = true
	}
	return s
}

// Has reports whether the flag is set to true.
func (s FlagSet) Has(f Flag) bool {
	return s[f]
}

// Normalize returns a copy containing only entries that are true. Callers may
// hand in maps with explicit false values; those are dropped here so the
// sparse contract holds everywhere downstream.
func (s FlagSet) Normalize() FlagSet {
	out := make(FlagSet)
	for f, v := range s {
		if v {
			out[f] = true
		}
	}
	return out
}

// IsEmpty reports whether no flag is true.
func (s FlagSet) IsEmpty() bool {
	for _, v := range s {
		if v {
			return false
		}
	}
	return true
}

// TrueFlags returns the set's true flags sorted lexicographically.
func (s FlagSet) TrueFlags() []Flag {
	out := make([]Flag, 0, len(s))
	for f, v := range s {
		if v {
			out = append(out, f)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Clone returns an independent copy of the set.
func (s FlagSet) Clone() FlagSet {
	out := make(FlagSet, len(s))
	for f, v := range s {
		out[f] = v
	}
	return out
}
