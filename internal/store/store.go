// Package store implements the classification store: the single owner of the
// current document's variable→patient→record map. All reads and writes of
// classification data go through it, and every write is validated before the
// document is touched, so a rejected call leaves the document unchanged.
package store

import (
	"fmt"
	"sort"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/sirupsen/logrus"

	"github.com/medixtract-review/internal/domain"
	"github.com/medixtract-review/internal/rules"
)

// DefaultSummaryCacheSize bounds the summary cache when the caller does not
// configure one.
const DefaultSummaryCacheSize = 256

// Summary is the field-level aggregation for one variable. ByCategory always
// contains every flag name from all four groups, zero when never set, so
// downstream rendering and export get a stable shape regardless of sparsity.
type Summary struct {
	TotalPatients int                 `json:"total_patients"`
	ByCategory    map[domain.Flag]int `json:"by_category"`
}

// PatientSummary is the patient-level aggregation across all variables.
type PatientSummary struct {
	TotalFields int                 `json:"total_fields"`
	ByCategory  map[domain.Flag]int `json:"by_category"`
}

// Store owns the current document's properties map. It mutates the document
// in place so the version lifecycle sees a single source of truth.
type Store struct {
	doc   *domain.Document
	rules *rules.Engine
	log   *logrus.Logger

	// Summary results are cached here and invalidated synchronously on every
	// Set/Delete; a full purge is the invalidation, never a stale entry.
	cache *lru.Cache[string, Summary]

	now func() time.Time
}

// New creates a store over the given document. cacheSize <= 0 selects the
// default summary cache size.
func New(doc *domain.Document, ruleEngine *rules.Engine, logger *logrus.Logger, cacheSize int) (*Store, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultSummaryCacheSize
	}
	cache, err := lru.New[string, Summary](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("creating summary cache: %w", err)
	}
	return &Store{
		doc:   doc,
		rules: ruleEngine,
		log:   logger,
		cache: cache,
		now:   time.Now,
	}, nil
}

// Document returns the live document the store operates on.
func (s *Store) Document() *domain.Document {
	return s.doc
}

// SetDocument swaps the working document, e.g. after a reload, and drops all
// cached summaries.
func (s *Store) SetDocument(doc *domain.Document) {
	s.doc = doc
	s.cache.Purge()
}

// Get returns a copy of the record for the pair, or (nil, false) when absent.
// Records are never aliased out of the store.
func (s *Store) Get(variableID, patientID string) (*domain.Record, bool) {
	v, ok := s.doc.Properties[variableID]
	if !ok || v.Performance == nil {
		return nil, false
	}
	rec, ok := v.Performance[patientID]
	if !ok {
		return nil, false
	}
	return rec.Clone(), true
}

// ListPatients returns the patient IDs classified for a variable, sorted
// lexicographically; the fixed-width ID format makes that numeric order.
func (s *Store) ListPatients(variableID string) []string {
	v, ok := s.doc.Properties[variableID]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(v.Performance))
	for id := range v.Performance {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// ListVariables returns the variables for which the patient has a record,
// sorted lexicographically by key.
func (s *Store) ListVariables(patientID string) []string {
	var out []string
	for key, v := range s.doc.Properties {
		if v.Performance != nil {
			if _, ok := v.Performance[patientID]; ok {
				out = append(out, key)
			}
		}
	}
	sort.Strings(out)
	return out
}

// ListAllPatients returns the union of patient IDs across every variable's
// classification map, sorted. It is recomputed on each call; the summary
// cache never holds it.
func (s *Store) ListAllPatients() []string {
	seen := make(map[string]struct{})
	for _, v := range s.doc.Properties {
		for id := range v.Performance {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Set validates and writes a classification record for the pair, replacing
// any prior record wholesale. The variable must exist; the patient ID must
// match the external format; the flag set must be internally consistent and
// non-empty; severity, when given, must be 1-10. On success the record
// carries only the true flags, the trimmed comment if any, and a fresh
// last_updated stamp. The document is untouched on any rejection.
func (s *Store) Set(variableID, patientID string, flags domain.FlagSet, severity int, comment string) (*domain.Record, error) {
	v, ok := s.doc.Properties[variableID]
	if !ok {
		return nil, domain.NewNotFoundError("variable", variableID)
	}

	if !domain.IsValidPatientID(patientID) {
		return nil, domain.NewValidationError("patient_id",
			fmt.Sprintf("'%s' does not match the required format %s", patientID, domain.PatientIDPlaceholder))
	}

	set := flags.Normalize()
	for f := range set {
		if !f.IsValid() {
			return nil, domain.NewValidationError("flags", fmt.Sprintf("unknown classification flag '%s'", f))
		}
	}

	if res := s.rules.Validate(set); !res.Valid {
		return nil, domain.NewValidationError("flags", res.Errors...)
	}

	if set.IsEmpty() {
		return nil, domain.NewValidationError("flags", "no classification selected")
	}

	if severity != 0 && (severity < domain.MinSeverity || severity > domain.MaxSeverity) {
		return nil, domain.NewValidationError("severity",
			fmt.Sprintf("severity must be between %d and %d, got %d", domain.MinSeverity, domain.MaxSeverity, severity))
	}

	rec := &domain.Record{
		Flags:       set,
		Severity:    severity,
		Comment:     strings.TrimSpace(comment),
		LastUpdated: s.now().UTC().Truncate(time.Second),
	}

	if v.Performance == nil {
		v.Performance = make(map[string]*domain.Record)
	}
	v.Performance[patientID] = rec
	s.cache.Purge()

	s.log.WithFields(logrus.Fields{
		"variable_id": variableID,
		"patient_id":  patientID,
		"flags":       set.TrueFlags(),
		"severity":    severity,
	}).Info("Classification record written")

	return rec.Clone(), nil
}

// Delete removes the record for the pair, reporting whether anything was
// removed. Deleting an absent record is a no-op, not an error. Removing a
// variable's last record removes its performance map entirely, so an empty
// map is never left behind.
func (s *Store) Delete(variableID, patientID string) bool {
	v, ok := s.doc.Properties[variableID]
	if !ok || v.Performance == nil {
		return false
	}
	if _, ok := v.Performance[patientID]; !ok {
		return false
	}

	delete(v.Performance, patientID)
	if len(v.Performance) == 0 {
		v.Performance = nil
	}
	s.cache.Purge()

	s.log.WithFields(logrus.Fields{
		"variable_id": variableID,
		"patient_id":  patientID,
	}).Info("Classification record deleted")

	return true
}

// Summarize counts, over all records for the variable, how many carry each
// flag. Unknown variables yield an all-zero summary.
func (s *Store) Summarize(variableID string) Summary {
	key := "variable:" + variableID
	if cached, ok := s.cache.Get(key); ok {
		return cloneSummary(cached)
	}

	summary := Summary{ByCategory: emptyCategories()}
	if v, ok := s.doc.Properties[variableID]; ok {
		summary.TotalPatients = len(v.Performance)
		for _, rec := range v.Performance {
			countFlags(summary.ByCategory, rec)
		}
	}

	s.cache.Add(key, cloneSummary(summary))
	return summary
}

// SummarizeForPatient aggregates across every variable that has a record for
// the patient.
func (s *Store) SummarizeForPatient(patientID string) PatientSummary {
	key := "patient:" + patientID
	if cached, ok := s.cache.Get(key); ok {
		return PatientSummary{TotalFields: cached.TotalPatients, ByCategory: cloneSummary(cached).ByCategory}
	}

	summary := PatientSummary{ByCategory: emptyCategories()}
	for _, v := range s.doc.Properties {
		if v.Performance == nil {
			continue
		}
		if rec, ok := v.Performance[patientID]; ok {
			summary.TotalFields++
			countFlags(summary.ByCategory, rec)
		}
	}

	s.cache.Add(key, Summary{TotalPatients: summary.TotalFields, ByCategory: cloneCategories(summary.ByCategory)})
	return summary
}

// emptyCategories builds a counts map covering the full taxonomy.
func emptyCategories() map[domain.Flag]int {
	out := make(map[domain.Flag]int, len(domain.AllFlags()))
	for _, f := range domain.AllFlags() {
		out[f] = 0
	}
	return out
}

func countFlags(counts map[domain.Flag]int, rec *domain.Record) {
	for f, set := range rec.Flags {
		if set {
			counts[f]++
		}
	}
}

func cloneSummary(s Summary) Summary {
	return Summary{TotalPatients: s.TotalPatients, ByCategory: cloneCategories(s.ByCategory)}
}

func cloneCategories(in map[domain.Flag]int) map[domain.Flag]int {
	out := make(map[domain.Flag]int, len(in))
	for f, n := range in {
		out[f] = n
	}
	return out
}
