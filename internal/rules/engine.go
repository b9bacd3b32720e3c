// Package rules implements the pure classification consistency rules: a
// declarative contradiction table consulted by one generic validator, plus
// advisory suggestion heuristics. The rules judge the internal consistency
// of a candidate flag set; whether a write is meaningful at all (at least
// one flag set) is the store's responsibility.
package rules

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/medixtract-review/internal/domain"
)

// exclusiveGroups lists the flag groups in which at most one flag may be
// true per record.
var exclusiveGroups = []domain.FlagGroup{
	domain.GroupStatus,
}

// forbiddenPairs lists the cross-group contradictions. Adding a new
// contradiction is a data change here, not a code change in the validator.
var forbiddenPairs = [][2]domain.Flag{
	{domain.FlagMatch, domain.FlagCorrection},
	{domain.FlagMatch, domain.FlagFilledBlank},
	{domain.FlagNotApplicable, domain.FlagMatch},
	{domain.FlagNotApplicable, domain.FlagCorrection},
	{domain.FlagNotApplicable, domain.FlagFilledBlank},
}

// resolvedCounterparts maps each resolved flag to the unresolved flag it
// claims to have settled. Used by the suggestion heuristics only.
var resolvedCounterparts = map[domain.Flag]domain.Flag{
	domain.FlagWasMissingDocs: domain.FlagMissingDocs,
	domain.FlagWasQuestioned:  domain.FlagQuestioned,
}

// Result is the outcome of validating a candidate flag set. Errors contains
// every violation found, not just the first.
type Result struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// Suggestion is an advisory nudge about a candidate flag set. Suggestions
// never block a write; callers may ignore them.
type Suggestion struct {
	Category string `json:"category"`
	Message  string `json:"message"`
}

// Engine evaluates classification rules. It is stateless apart from its
// logger; the rule tables above are package data.
type Engine struct {
	log *logrus.Logger
}

// NewEngine creates a new rule engine.
func NewEngine(logger *logrus.Logger) *Engine {
	return &Engine{log: logger}
}

// Validate checks the status-exclusivity invariant and every forbidden pair
// against the candidate set, collecting all violations.
func (e *Engine) Validate(flags domain.FlagSet) Result {
	set := flags.Normalize()

	var errs []string

	for _, group := range exclusiveGroups {
		var active []domain.Flag
		for _, f := range domain.GroupFlags(group) {
			if set.Has(f) {
				active = append(active, f)
			}
		}
		if len(active) > 1 {
			errs = append(errs, fmt.Sprintf("only one %s flag may be set, got %d: %s", group, len(active), joinFlags(active)))
		}
	}

	for _, pair := range forbiddenPairs {
		if set.Has(pair[0]) && set.Has(pair[1]) {
			errs = append(errs, fmt.Sprintf("'%s' cannot be combined with '%s'", pair[0], pair[1]))
		}
	}

	if len(errs) > 0 {
		e.log.WithFields(logrus.Fields{
			"flags":      set.TrueFlags(),
			"violations": len(errs),
		}).Debug("Flag set failed validation")
		return Result{Valid: false, Errors: errs}
	}

	return Result{Valid: true}
}

// Suggest returns advisory findings over the candidate set. It assumes the
// set already passed Validate but does not require it.
func (e *Engine) Suggest(flags domain.FlagSet) []Suggestion {
	set := flags.Normalize()

	var out []Suggestion

	if set.Has(domain.FlagMissingDocs) && !set.Has(domain.FlagMissingDocsSuspected) {
		out = append(out, Suggestion{
			Category: string(domain.GroupIssues),
			Message:  "'missing_docs' is set; consider whether 'missing_docs_suspected' also applies",
		})
	}

	for resolved, unresolved := range resolvedCounterparts {
		if set.Has(resolved) && !set.Has(unresolved) {
			out = append(out, Suggestion{
				Category: string(domain.GroupResolved),
				Message:  fmt.Sprintf("'%s' is set without '%s'; review whether the original issue was recorded", resolved, unresolved),
			})
		}
	}

	return out
}

// SuggestForRecord extends Suggest with record-level findings that need more
// than the flag set, such as a severity with no issue flag to justify it.
func (e *Engine) SuggestForRecord(flags domain.FlagSet, severity int) []Suggestion {
	out := e.Suggest(flags)

	if severity > 0 {
		set := flags.Normalize()
		hasIssue := false
		for _, f := range domain.GroupFlags(domain.GroupIssues) {
			if set.Has(f) {
				hasIssue = true
				break
			}
		}
		if !hasIssue {
			out = append(out, Suggestion{
				Category: string(domain.GroupIssues),
				Message:  fmt.Sprintf("severity %d recorded without any issue flag; consider documenting the issue", severity),
			})
		}
	}

	return out
}

func joinFlags(flags []domain.Flag) string {
	s := ""
	for i, f := range flags {
		if i > 0 {
			s += ", "
		}
		s += "'" + string(f) + "'"
	}
	return s
}
