// Package aggregate composes store summaries into fixed-schema views and
// document-wide totals, so callers can render tables with one column per
// category without checking key existence.
package aggregate

import (
	"github.com/sirupsen/logrus"

	"github.com/medixtract-review/internal/domain"
	"github.com/medixtract-review/internal/store"
)

// CategoryColumn is one category column of a rendered summary, in stable
// taxonomy order.
type CategoryColumn struct {
	Flag  domain.Flag      `json:"flag"`
	Group domain.FlagGroup `json:"group"`
	Count int              `json:"count"`
}

// VariableSummary is a field-level summary presented against the full
// category schema.
type VariableSummary struct {
	VariableID    string           `json:"variable_id"`
	TotalPatients int              `json:"total_patients"`
	Categories    []CategoryColumn `json:"categories"`
}

// PatientOverview is a patient-level summary presented the same way.
type PatientOverview struct {
	PatientID   string           `json:"patient_id"`
	TotalFields int              `json:"total_fields"`
	Categories  []CategoryColumn `json:"categories"`
}

// DocumentTotals are the document-wide aggregates.
type DocumentTotals struct {
	TotalVariables    int                 `json:"total_variables"`
	ClassifiedFields  int                 `json:"classified_fields"`
	DistinctPatients  int                 `json:"distinct_patients"`
	RecordsByCategory map[domain.Flag]int `json:"records_by_category"`
}

// Aggregator derives summaries from the store. It adds no state of its own;
// every call reflects the store's current document.
type Aggregator struct {
	store *store.Store
	log   *logrus.Logger
}

// New creates an aggregator over the given store.
func New(st *store.Store, logger *logrus.Logger) *Aggregator {
	return &Aggregator{store: st, log: logger}
}

// VariableSummary renders the field-level summary for one variable.
func (a *Aggregator) VariableSummary(variableID string) VariableSummary {
	s := a.store.Summarize(variableID)
	return VariableSummary{
		VariableID:    variableID,
		TotalPatients: s.TotalPatients,
		Categories:    columns(s.ByCategory),
	}
}

// PatientOverview renders the patient-level summary for one patient.
func (a *Aggregator) PatientOverview(patientID string) PatientOverview {
	s := a.store.SummarizeForPatient(patientID)
	return PatientOverview{
		PatientID:   patientID,
		TotalFields: s.TotalFields,
		Categories:  columns(s.ByCategory),
	}
}

// Totals computes the document-wide aggregates by walking every variable's
// summary and the full patient roster.
func (a *Aggregator) Totals() DocumentTotals {
	doc := a.store.Document()

	totals := DocumentTotals{
		TotalVariables:    len(doc.Properties),
		DistinctPatients:  len(a.store.ListAllPatients()),
		RecordsByCategory: make(map[domain.Flag]int, len(domain.AllFlags())),
	}
	for _, f := range domain.AllFlags() {
		totals.RecordsByCategory[f] = 0
	}

	for key, v := range doc.Properties {
		if !v.HasPerformanceData() {
			continue
		}
		totals.ClassifiedFields++
		s := a.store.Summarize(key)
		for f, n := range s.ByCategory {
			totals.RecordsByCategory[f] += n
		}
	}

	a.log.WithFields(logrus.Fields{
		"variables":         totals.TotalVariables,
		"classified_fields": totals.ClassifiedFields,
		"distinct_patients": totals.DistinctPatients,
	}).Debug("Computed document totals")

	return totals
}

// columns materializes a counts map as columns in taxonomy order.
func columns(byCategory map[domain.Flag]int) []CategoryColumn {
	out := make([]CategoryColumn, 0, len(domain.AllFlags()))
	for _, f := range domain.AllFlags() {
		out = append(out, CategoryColumn{Flag: f, Group: f.Group(), Count: byCategory[f]})
	}
	return out
}
