// Package fuse merges a variable-definition schema with a separately
// collected performance dataset into one reviewable document. It accepts
// both the current sparse flag format and the legacy nested format
// (matched / blank / unmatched) still found in older performance exports.
package fuse

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/medixtract-review/internal/domain"
)

// PerformanceSource is the parsed performance dataset: variable id to its
// per-patient entries. Entries stay raw until conversion so both formats can
// be detected per patient.
type PerformanceSource map[string]struct {
	Performance map[string]json.RawMessage `json:"performance"`
}

// Report summarizes one fusion run.
type Report struct {
	Fused           int      `json:"fused"`
	Created         int      `json:"created"`
	WithPerformance int      `json:"with_performance"`
	Missing         []string `json:"missing,omitempty"`
	Patients        []string `json:"patients,omitempty"`
}

// Fuser merges performance data into a main schema document.
type Fuser struct {
	log *logrus.Logger
	now func() time.Time
}

// New creates a fuser.
func New(logger *logrus.Logger) *Fuser {
	return &Fuser{log: logger, now: time.Now}
}

// Fuse attaches each variable's performance entries to the matching variable
// in main, mutating main in place. Variables present only in the performance
// source get a placeholder definition, unless strict is set, in which case
// the first unknown variable aborts the run with a NotFoundError and main is
// left unchanged.
func (f *Fuser) Fuse(main *domain.Document, perf PerformanceSource, strict bool) (*Report, error) {
	if err := main.ValidateShape("main schema"); err != nil {
		return nil, err
	}

	if strict {
		for name := range perf {
			if _, ok := main.Properties[name]; !ok {
				return nil, domain.NewNotFoundError("variable", name)
			}
		}
	}

	names := make([]string, 0, len(perf))
	for name := range perf {
		names = append(names, name)
	}
	sort.Strings(names)

	// Convert everything before touching main, so a bad entry anywhere in
	// the source leaves the document unchanged.
	converted := make(map[string]map[string]*domain.Record, len(names))
	for _, name := range names {
		records, err := f.convertPerformance(name, perf[name].Performance)
		if err != nil {
			return nil, err
		}
		converted[name] = records
	}

	report := &Report{}
	patients := make(map[string]bool)

	for _, name := range names {
		records := converted[name]

		v, exists := main.Properties[name]
		if !exists {
			v = placeholderVariable(name)
			main.Properties[name] = v
			report.Created++
			report.Missing = append(report.Missing, name)
			f.log.WithField("variable", name).Warn("Created placeholder for unknown variable")
		} else {
			report.Fused++
		}

		if len(records) > 0 {
			v.Performance = records
			report.WithPerformance++
			for pid := range records {
				patients[pid] = true
			}
		}
	}

	for pid := range patients {
		report.Patients = append(report.Patients, pid)
	}
	sort.Strings(report.Patients)

	f.log.WithFields(logrus.Fields{
		"fused":    report.Fused,
		"created":  report.Created,
		"patients": len(report.Patients),
	}).Info("Fused performance data into schema")

	return report, nil
}

// legacyEntry is the nested per-patient shape used by older exports.
type legacyEntry struct {
	Matched   *bool           `json:"matched"`
	Blank     *bool           `json:"blank"`
	Unmatched map[string]bool `json:"unmatched"`
}

// legacyUnmatchedFlags maps legacy unmatched keys to taxonomy flags.
var legacyUnmatchedFlags = map[string]domain.Flag{
	"correction":       domain.FlagCorrection,
	"standardized":     domain.FlagStandardized,
	"filled_blank":     domain.FlagFilledBlank,
	"improved_comment": domain.FlagImprovedComment,
	"missing_docs":     domain.FlagMissingDocs,
	"contradictions":   domain.FlagContradictions,
	"questioned":       domain.FlagQuestioned,
}

// convertPerformance normalizes one variable's raw per-patient entries.
// Legacy entries are converted flag by flag; blank entries, where neither
// the reviewer nor the extraction had data, are dropped. Entries already in
// the sparse format pass through the regular record decoder.
func (f *Fuser) convertPerformance(variable string, raw map[string]json.RawMessage) (map[string]*domain.Record, error) {
	if len(raw) == 0 {
		return nil, nil
	}

	out := make(map[string]*domain.Record)
	stamp := f.now().UTC().Truncate(time.Second)

	for patientID, data := range raw {
		var probe map[string]json.RawMessage
		if err := json.Unmarshal(data, &probe); err != nil {
			return nil, fmt.Errorf("variable '%s' patient '%s': %w", variable, patientID, err)
		}

		if isLegacyEntry(probe) {
			rec, keep, err := convertLegacyEntry(data, stamp)
			if err != nil {
				return nil, fmt.Errorf("variable '%s' patient '%s': %w", variable, patientID, err)
			}
			if keep {
				out[patientID] = rec
			}
			continue
		}

		rec := &domain.Record{}
		if err := json.Unmarshal(data, rec); err != nil {
			return nil, fmt.Errorf("variable '%s' patient '%s': %w", variable, patientID, err)
		}
		if rec.LastUpdated.IsZero() {
			rec.LastUpdated = stamp
		}
		if !rec.Flags.IsEmpty() || rec.Severity != 0 || rec.Comment != "" {
			out[patientID] = rec
		}
	}

	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

func isLegacyEntry(probe map[string]json.RawMessage) bool {
	for _, key := range []string{"matched", "blank", "unmatched"} {
		if _, ok := probe[key]; ok {
			return true
		}
	}
	return false
}

func convertLegacyEntry(data []byte, stamp time.Time) (*domain.Record, bool, error) {
	var legacy legacyEntry
	if err := json.Unmarshal(data, &legacy); err != nil {
		return nil, false, err
	}

	flags := domain.NewFlagSet()
	switch {
	case legacy.Matched != nil && *legacy.Matched:
		flags[domain.FlagMatch] = true
	case legacy.Blank != nil && *legacy.Blank:
		return nil, false, nil
	case legacy.Unmatched != nil:
		for key, set := range legacy.Unmatched {
			if !set {
				continue
			}
			flag, ok := legacyUnmatchedFlags[key]
			if !ok {
				return nil, false, fmt.Errorf("unknown legacy flag '%s'", key)
			}
			flags[flag] = true
		}
	}

	if flags.IsEmpty() {
		return nil, false, nil
	}
	return &domain.Record{Flags: flags, LastUpdated: stamp}, true, nil
}

// placeholderVariable is the minimal definition created for variables found
// in performance data but absent from the main schema.
func placeholderVariable(name string) *domain.Variable {
	return &domain.Variable{
		AnyOf: []domain.TypeAlternative{
			{Type: "string"},
			{Type: "null"},
		},
		Default:     nil,
		Description: fmt.Sprintf("Placeholder for %s - please update with proper definition", name),
		GroupID:     "unknown",
		Notes:       "Automatically created because this variable existed in performance data but not in the main schema.",
	}
}
