package session

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medixtract-review/internal/domain"
	"github.com/medixtract-review/internal/filter"
	"github.com/medixtract-review/internal/fuse"
	"github.com/medixtract-review/internal/journal"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func writeSchema(t *testing.T, dir, name string, doc *domain.Document) {
	t.Helper()
	data, err := json.Marshal(doc)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o644))
}

func seedSchema(t *testing.T, dir string) {
	t.Helper()
	doc := domain.NewDocument()
	for _, id := range []string{"age", "bmi"} {
		doc.Properties[id] = &domain.Variable{
			AnyOf:   []domain.TypeAlternative{{Type: "string"}, {Type: "null"}},
			GroupID: "demographics",
		}
	}
	writeSchema(t, dir, "schema_v001.json", doc)
}

func newTestSession(t *testing.T, dir string, j *journal.Journal) *Session {
	t.Helper()
	s, err := New(Options{SchemaDir: dir, Journal: j, Logger: testLogger()})
	require.NoError(t, err)
	require.NoError(t, s.Load())
	return s
}

func TestSession_SetAndGet(t *testing.T) {
	dir := t.TempDir()
	seedSchema(t, dir)
	s := newTestSession(t, dir, nil)

	res, err := s.SetClassification(context.Background(), "age", "patient_001",
		domain.NewFlagSet(domain.FlagCorrection), 7, "fixed typo")
	require.NoError(t, err)
	assert.True(t, res.Record.Has(domain.FlagCorrection))
	assert.Equal(t, 7, res.Record.Severity)
	assert.NotEmpty(t, res.Suggestions, "severity without an issue flag yields a nudge")

	rec, ok := s.GetClassification("age", "patient_001")
	require.True(t, ok)
	assert.Equal(t, "fixed typo", rec.Comment)
}

func TestSession_RejectsContradiction(t *testing.T) {
	dir := t.TempDir()
	seedSchema(t, dir)
	s := newTestSession(t, dir, nil)

	_, err := s.SetClassification(context.Background(), "age", "patient_001",
		domain.NewFlagSet(domain.FlagMatch, domain.FlagCorrection), 0, "")
	var vErr *domain.ValidationError
	require.ErrorAs(t, err, &vErr)

	_, ok := s.GetClassification("age", "patient_001")
	assert.False(t, ok)
}

func TestSession_JournalsAcceptedEdits(t *testing.T) {
	dir := t.TempDir()
	seedSchema(t, dir)

	j, err := journal.Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	defer j.Close()

	s := newTestSession(t, dir, j)
	ctx := context.Background()

	_, err = s.SetClassification(ctx, "age", "patient_001", domain.NewFlagSet(domain.FlagMatch), 0, "")
	require.NoError(t, err)

	// Rejected writes and no-op deletes are not journaled.
	_, err = s.SetClassification(ctx, "age", "bad id", domain.NewFlagSet(domain.FlagMatch), 0, "")
	require.Error(t, err)
	assert.False(t, s.DeleteClassification(ctx, "age", "patient_099"))

	assert.True(t, s.DeleteClassification(ctx, "age", "patient_001"))

	count, err := j.Count(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestSession_SaveWritesNextVersion(t *testing.T) {
	dir := t.TempDir()
	seedSchema(t, dir)
	s := newTestSession(t, dir, nil)
	require.Equal(t, 1, s.CurrentVersion())

	_, err := s.SetClassification(context.Background(), "age", "patient_001",
		domain.NewFlagSet(domain.FlagMatch), 0, "")
	require.NoError(t, err)

	receipt, err := s.Save()
	require.NoError(t, err)
	assert.Equal(t, 2, receipt.Version)
	assert.Equal(t, []int{1, 2}, s.Versions())

	data, err := os.ReadFile(filepath.Join(dir, "schema_v002.json"))
	require.NoError(t, err)
	saved := &domain.Document{}
	require.NoError(t, json.Unmarshal(data, saved))
	assert.Contains(t, saved.Properties["age"].Performance, "patient_001")

	// A reload picks the new version up as the working document.
	require.NoError(t, s.Load())
	assert.Equal(t, 2, s.CurrentVersion())
	_, ok := s.GetClassification("age", "patient_001")
	assert.True(t, ok)
}

func TestSession_FilterAndSummaries(t *testing.T) {
	dir := t.TempDir()
	seedSchema(t, dir)
	s := newTestSession(t, dir, nil)
	ctx := context.Background()

	_, err := s.SetClassification(ctx, "age", "patient_001", domain.NewFlagSet(domain.FlagMatch), 0, "")
	require.NoError(t, err)
	_, err = s.SetClassification(ctx, "bmi", "patient_001", domain.NewFlagSet(domain.FlagQuestioned), 3, "")
	require.NoError(t, err)

	assert.Equal(t, []string{"age", "bmi"}, s.Filter(filter.Spec{Groups: []string{"demographics"}}))
	assert.Equal(t, []string{"patient_001"}, s.Patients())

	vs := s.VariableSummary("age")
	assert.Equal(t, 1, vs.TotalPatients)

	po := s.PatientOverview("patient_001")
	assert.Equal(t, 2, po.TotalFields)

	totals := s.Totals()
	assert.Equal(t, 2, totals.ClassifiedFields)
	assert.Equal(t, 1, totals.DistinctPatients)
}

func TestSession_FuseIntoWorkingDocument(t *testing.T) {
	dir := t.TempDir()
	seedSchema(t, dir)
	s := newTestSession(t, dir, nil)

	var src fuse.PerformanceSource
	require.NoError(t, json.Unmarshal([]byte(`{
		"age": {"performance": {"patient_002": {"matched": true}}}
	}`), &src))

	report, err := s.Fuse(src, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Fused)

	rec, ok := s.GetClassification("age", "patient_002")
	require.True(t, ok)
	assert.True(t, rec.Has(domain.FlagMatch))

	// Summaries reflect the fused data immediately.
	assert.Equal(t, 1, s.VariableSummary("age").TotalPatients)
}

func TestSession_ExportClean(t *testing.T) {
	dir := t.TempDir()
	seedSchema(t, dir)
	s := newTestSession(t, dir, nil)

	_, err := s.SetClassification(context.Background(), "age", "patient_001",
		domain.NewFlagSet(domain.FlagMatch), 0, "")
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "clean.json")
	require.NoError(t, s.ExportClean(out))

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	clean := &domain.Document{}
	require.NoError(t, json.Unmarshal(data, clean))
	assert.Nil(t, clean.Properties["age"].Performance)
	assert.Empty(t, clean.Properties["age"].GroupID)

	// The working document keeps its metadata.
	_, ok := s.GetClassification("age", "patient_001")
	assert.True(t, ok)
}

func TestSession_LoadFailureKeepsState(t *testing.T) {
	dir := t.TempDir()
	seedSchema(t, dir)
	s := newTestSession(t, dir, nil)

	// Replace the only schema with garbage; reload must fail and keep v1.
	require.NoError(t, os.Remove(filepath.Join(dir, "schema_v001.json")))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "schema_v001.json"), []byte(`{"type":"array"}`), 0o644))

	err := s.Load()
	require.Error(t, err)
	assert.Equal(t, 1, s.CurrentVersion())
	assert.Contains(t, s.Filter(filter.Spec{}), "age")
}
