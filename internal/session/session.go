// Package session is the application-level facade: one Session owns the
// version set, the classification store and the rule engine, serializes all
// access behind a mutex, and journals accepted edits. Callers hold a Session
// value instead of reaching for shared globals.
package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/medixtract-review/internal/aggregate"
	"github.com/medixtract-review/internal/domain"
	"github.com/medixtract-review/internal/filter"
	"github.com/medixtract-review/internal/fuse"
	"github.com/medixtract-review/internal/journal"
	"github.com/medixtract-review/internal/rules"
	"github.com/medixtract-review/internal/schemaio"
	"github.com/medixtract-review/internal/store"
	"github.com/medixtract-review/internal/version"
)

// Options configures a new session.
type Options struct {
	SchemaDir string
	CacheSize int
	Journal   *journal.Journal // nil disables journaling
	Logger    *logrus.Logger
}

// SetResult is the outcome of an accepted classification write: the stored
// record plus any advisory suggestions about it.
type SetResult struct {
	Record      *domain.Record     `json:"record"`
	Suggestions []rules.Suggestion `json:"suggestions,omitempty"`
}

// Session coordinates the document set, store and rules for one review run.
type Session struct {
	mu sync.Mutex

	schemaDir string
	set       *version.Set
	store     *store.Store
	rules     *rules.Engine
	agg       *aggregate.Aggregator
	journal   *journal.Journal
	log       *logrus.Logger
}

// New creates a session. The document set starts empty; call Load before
// editing.
func New(opts Options) (*Session, error) {
	if opts.Logger == nil {
		return nil, fmt.Errorf("session requires a logger")
	}

	engine := rules.NewEngine(opts.Logger)
	st, err := store.New(domain.NewDocument(), engine, opts.Logger, opts.CacheSize)
	if err != nil {
		return nil, err
	}

	return &Session{
		schemaDir: opts.SchemaDir,
		set:       version.NewSet(opts.Logger),
		store:     st,
		rules:     engine,
		agg:       aggregate.New(st, opts.Logger),
		journal:   opts.Journal,
		log:       opts.Logger,
	}, nil
}

// Load scans the schema directory and loads every valid version. The store
// is pointed at the working copy of the newest one. A failed load keeps the
// previously loaded state.
func (s *Session) Load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidates, err := schemaio.LoadDir(s.schemaDir, s.log)
	if err != nil {
		return err
	}
	if err := s.set.LoadVersions(candidates); err != nil {
		return err
	}
	s.store.SetDocument(s.set.Working())
	return nil
}

// CurrentVersion returns the highest loaded version, 0 before any load.
func (s *Session) CurrentVersion() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.CurrentVersion()
}

// Versions returns the loaded version numbers in ascending order.
func (s *Session) Versions() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.set.Versions()
}

// SetClassification validates and writes one record, journals the accepted
// write, and returns the stored record with advisory suggestions.
func (s *Session) SetClassification(ctx context.Context, variableID, patientID string, flags domain.FlagSet, severity int, comment string) (*SetResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, err := s.store.Set(variableID, patientID, flags, severity, comment)
	if err != nil {
		return nil, err
	}

	if s.journal != nil {
		if _, jerr := s.journal.RecordSet(ctx, variableID, patientID, rec); jerr != nil {
			// The write already succeeded; a journal failure is reported but
			// does not undo it.
			s.log.WithError(jerr).Error("Failed to journal classification write")
		}
	}

	return &SetResult{
		Record:      rec,
		Suggestions: s.rules.SuggestForRecord(rec.Flags, rec.Severity),
	}, nil
}

// DeleteClassification removes one record, journaling the removal when
// anything was actually deleted.
func (s *Session) DeleteClassification(ctx context.Context, variableID, patientID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	deleted := s.store.Delete(variableID, patientID)
	if deleted && s.journal != nil {
		if _, jerr := s.journal.RecordDelete(ctx, variableID, patientID); jerr != nil {
			s.log.WithError(jerr).Error("Failed to journal classification delete")
		}
	}
	return deleted
}

// GetClassification returns a copy of one record.
func (s *Session) GetClassification(variableID, patientID string) (*domain.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Get(variableID, patientID)
}

// Filter evaluates a filter spec over the working document.
func (s *Session) Filter(spec filter.Spec) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return filter.Apply(s.store.Document(), spec)
}

// VariableSummary renders the field-level summary for one variable.
func (s *Session) VariableSummary(variableID string) aggregate.VariableSummary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.VariableSummary(variableID)
}

// PatientOverview renders the patient-level summary for one patient.
func (s *Session) PatientOverview(patientID string) aggregate.PatientOverview {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.PatientOverview(patientID)
}

// Totals computes the document-wide aggregates.
func (s *Session) Totals() aggregate.DocumentTotals {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agg.Totals()
}

// Patients returns every patient ID with at least one record.
func (s *Session) Patients() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.ListAllPatients()
}

// Save snapshots the working document as the next version and writes it to
// the schema directory under the canonical filename.
func (s *Session) Save() (version.SaveReceipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	receipt, err := s.set.Save()
	if err != nil {
		return version.SaveReceipt{}, err
	}

	snapshot, _, ok := s.set.Get(receipt.Version)
	if !ok {
		return version.SaveReceipt{}, fmt.Errorf("saved version %d is missing from the set", receipt.Version)
	}
	if _, err := schemaio.WriteVersion(s.schemaDir, receipt.Version, snapshot); err != nil {
		return version.SaveReceipt{}, err
	}
	return receipt, nil
}

// ExportClean writes a metadata-free copy of the working document to path.
func (s *Session) ExportClean(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return schemaio.WriteClean(path, s.store.Document())
}

// Fuse merges a performance dataset into the working document.
func (s *Session) Fuse(perf fuse.PerformanceSource, strict bool) (*fuse.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	report, err := fuse.New(s.log).Fuse(s.store.Document(), perf, strict)
	if err != nil {
		return nil, err
	}
	// Fusion writes past the store, so its caches must go.
	s.store.SetDocument(s.store.Document())
	return report, nil
}
