package store

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medixtract-review/internal/domain"
	"github.com/medixtract-review/internal/rules"
)

func newTestStore(t *testing.T, doc *domain.Document) *Store {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	s, err := New(doc, rules.NewEngine(logger), logger, 0)
	require.NoError(t, err)
	return s
}

func docWithVariables(ids ...string) *domain.Document {
	doc := domain.NewDocument()
	for _, id := range ids {
		doc.Properties[id] = &domain.Variable{
			AnyOf: []domain.TypeAlternative{{Type: "string"}, {Type: "null"}},
		}
	}
	return doc
}

func TestSet_SparsityRoundTrip(t *testing.T) {
	s := newTestStore(t, docWithVariables("age"))

	flags := domain.FlagSet{
		domain.FlagCorrection:  true,
		domain.FlagFilledBlank: true,
		domain.FlagMatch:       false, // explicit false must not be stored
	}
	_, err := s.Set("age", "patient_002", flags, 7, "fixed typo")
	require.NoError(t, err)

	rec, ok := s.Get("age", "patient_002")
	require.True(t, ok)
	assert.ElementsMatch(t, []domain.Flag{domain.FlagCorrection, domain.FlagFilledBlank}, rec.Flags.TrueFlags())
	assert.Len(t, rec.Flags, 2, "false flags must not be materialized")
	assert.Equal(t, 7, rec.Severity)
	assert.Equal(t, "fixed typo", rec.Comment)
	assert.False(t, rec.LastUpdated.IsZero(), "last_updated must be stamped")
}

func TestSet_RejectsInvalidPatientID(t *testing.T) {
	s := newTestStore(t, docWithVariables("age"))

	for _, id := range []string{"patient_1", "p001", "patient_0001", ""} {
		_, err := s.Set("age", id, domain.NewFlagSet(domain.FlagMatch), 0, "")
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr, "patient id %q", id)
		assert.Equal(t, "patient_id", verr.Field)
	}

	assert.Empty(t, s.ListPatients("age"), "document must be unchanged after rejection")
}

func TestSet_RejectsUnknownVariable(t *testing.T) {
	s := newTestStore(t, docWithVariables("age"))

	_, err := s.Set("height", "patient_001", domain.NewFlagSet(domain.FlagMatch), 0, "")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestSet_EmptySetRejection(t *testing.T) {
	s := newTestStore(t, docWithVariables("age"))

	for _, flags := range []domain.FlagSet{
		{},
		{domain.FlagMatch: false, domain.FlagPending: false},
	} {
		_, err := s.Set("age", "patient_001", flags, 0, "")
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr)
		assert.Contains(t, verr.Violations[0], "no classification selected")
	}

	_, ok := s.Get("age", "patient_001")
	assert.False(t, ok, "document must be unchanged")
}

func TestSet_RejectsContradictions(t *testing.T) {
	s := newTestStore(t, docWithVariables("age"))

	_, err := s.Set("age", "patient_001", domain.NewFlagSet(domain.FlagMatch, domain.FlagCorrection), 0, "")
	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, "flags", verr.Field)

	_, ok := s.Get("age", "patient_001")
	assert.False(t, ok)
}

func TestSet_SeverityBounds(t *testing.T) {
	s := newTestStore(t, docWithVariables("age"))

	for _, sev := range []int{-1, 11, 100} {
		_, err := s.Set("age", "patient_001", domain.NewFlagSet(domain.FlagQuestioned), sev, "")
		var verr *domain.ValidationError
		require.ErrorAs(t, err, &verr, "severity %d", sev)
		assert.Equal(t, "severity", verr.Field)
	}

	rec, err := s.Set("age", "patient_001", domain.NewFlagSet(domain.FlagQuestioned), 10, "")
	require.NoError(t, err)
	assert.Equal(t, 10, rec.Severity)
}

func TestSet_CommentTrimmed(t *testing.T) {
	s := newTestStore(t, docWithVariables("age"))

	rec, err := s.Set("age", "patient_001", domain.NewFlagSet(domain.FlagMatch), 0, "   ")
	require.NoError(t, err)
	assert.Empty(t, rec.Comment, "whitespace-only comment must be omitted")

	rec, err = s.Set("age", "patient_001", domain.NewFlagSet(domain.FlagMatch), 0, "  ok  ")
	require.NoError(t, err)
	assert.Equal(t, "ok", rec.Comment)
}

func TestSet_IdempotentOverwrite(t *testing.T) {
	s := newTestStore(t, docWithVariables("age"))

	_, err := s.Set("age", "patient_001", domain.NewFlagSet(domain.FlagPending), 3, "first pass")
	require.NoError(t, err)
	_, err = s.Set("age", "patient_001", domain.NewFlagSet(domain.FlagMatch), 0, "")
	require.NoError(t, err)

	rec, ok := s.Get("age", "patient_001")
	require.True(t, ok)
	assert.Equal(t, []domain.Flag{domain.FlagMatch}, rec.Flags.TrueFlags(), "no flag merging across calls")
	assert.Zero(t, rec.Severity)
	assert.Empty(t, rec.Comment)
}

func TestDelete_Cleanup(t *testing.T) {
	s := newTestStore(t, docWithVariables("age"))

	_, err := s.Set("age", "patient_001", domain.NewFlagSet(domain.FlagMatch), 0, "")
	require.NoError(t, err)

	assert.True(t, s.Delete("age", "patient_001"))
	assert.False(t, s.Delete("age", "patient_001"), "second delete is a no-op")

	v := s.Document().Properties["age"]
	assert.Nil(t, v.Performance, "empty performance map must be removed entirely")
	assert.False(t, v.HasPerformanceData())
}

func TestDelete_KeepsOtherRecords(t *testing.T) {
	s := newTestStore(t, docWithVariables("age"))

	_, err := s.Set("age", "patient_001", domain.NewFlagSet(domain.FlagMatch), 0, "")
	require.NoError(t, err)
	_, err = s.Set("age", "patient_002", domain.NewFlagSet(domain.FlagPending), 0, "")
	require.NoError(t, err)

	s.Delete("age", "patient_001")
	assert.Equal(t, []string{"patient_002"}, s.ListPatients("age"))
}

func TestListings(t *testing.T) {
	s := newTestStore(t, docWithVariables("age", "bmi", "sex"))

	mustSet := func(varID, patID string) {
		_, err := s.Set(varID, patID, domain.NewFlagSet(domain.FlagMatch), 0, "")
		require.NoError(t, err)
	}
	mustSet("age", "patient_010")
	mustSet("age", "patient_002")
	mustSet("bmi", "patient_002")
	mustSet("sex", "patient_101")

	assert.Equal(t, []string{"patient_002", "patient_010"}, s.ListPatients("age"))
	assert.Equal(t, []string{"age", "bmi"}, s.ListVariables("patient_002"))
	assert.Equal(t, []string{"patient_002", "patient_010", "patient_101"}, s.ListAllPatients())
	assert.Empty(t, s.ListPatients("unknown_variable"))
	assert.Empty(t, s.ListVariables("patient_999"))
}

func TestSummarize_ScenarioA(t *testing.T) {
	doc := docWithVariables("age")
	doc.Properties["age"].Performance = map[string]*domain.Record{
		"patient_001": {
			Flags:       domain.NewFlagSet(domain.FlagMatch),
			LastUpdated: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}
	s := newTestStore(t, doc)

	summary := s.Summarize("age")
	assert.Equal(t, 1, summary.TotalPatients)
	assert.Equal(t, 1, summary.ByCategory[domain.FlagMatch])

	assert.Len(t, summary.ByCategory, len(domain.AllFlags()), "every taxonomy flag must appear")
	for _, f := range domain.AllFlags() {
		if f == domain.FlagMatch {
			continue
		}
		assert.Zero(t, summary.ByCategory[f], "flag %s", f)
	}
}

func TestSummarize_CacheInvalidation(t *testing.T) {
	s := newTestStore(t, docWithVariables("age"))

	_, err := s.Set("age", "patient_001", domain.NewFlagSet(domain.FlagMatch), 0, "")
	require.NoError(t, err)

	first := s.Summarize("age")
	assert.Equal(t, 1, first.TotalPatients)

	// Mutations after a cached read must be visible immediately.
	_, err = s.Set("age", "patient_002", domain.NewFlagSet(domain.FlagPending), 0, "")
	require.NoError(t, err)

	second := s.Summarize("age")
	assert.Equal(t, 2, second.TotalPatients)
	assert.Equal(t, 1, second.ByCategory[domain.FlagPending])

	s.Delete("age", "patient_001")
	third := s.Summarize("age")
	assert.Equal(t, 1, third.TotalPatients)
	assert.Zero(t, third.ByCategory[domain.FlagMatch])
}

func TestSummarize_ResultNotAliased(t *testing.T) {
	s := newTestStore(t, docWithVariables("age"))
	_, err := s.Set("age", "patient_001", domain.NewFlagSet(domain.FlagMatch), 0, "")
	require.NoError(t, err)

	first := s.Summarize("age")
	first.ByCategory[domain.FlagMatch] = 99

	second := s.Summarize("age")
	assert.Equal(t, 1, second.ByCategory[domain.FlagMatch], "caller mutation must not leak into the cache")
}

func TestSummarizeForPatient(t *testing.T) {
	s := newTestStore(t, docWithVariables("age", "bmi"))

	_, err := s.Set("age", "patient_001", domain.NewFlagSet(domain.FlagMatch), 0, "")
	require.NoError(t, err)
	_, err = s.Set("bmi", "patient_001", domain.NewFlagSet(domain.FlagCorrection, domain.FlagStandardized), 0, "")
	require.NoError(t, err)

	summary := s.SummarizeForPatient("patient_001")
	assert.Equal(t, 2, summary.TotalFields)
	assert.Equal(t, 1, summary.ByCategory[domain.FlagMatch])
	assert.Equal(t, 1, summary.ByCategory[domain.FlagCorrection])
	assert.Equal(t, 1, summary.ByCategory[domain.FlagStandardized])

	empty := s.SummarizeForPatient("patient_900")
	assert.Zero(t, empty.TotalFields)
	assert.Len(t, empty.ByCategory, len(domain.AllFlags()))
}

func TestGet_ReturnsCopy(t *testing.T) {
	s := newTestStore(t, docWithVariables("age"))
	_, err := s.Set("age", "patient_001", domain.NewFlagSet(domain.FlagMatch), 0, "")
	require.NoError(t, err)

	rec, ok := s.Get("age", "patient_001")
	require.True(t, ok)
	rec.Flags[domain.FlagPending] = true
	rec.Comment = "mutated"

	again, ok := s.Get("age", "patient_001")
	require.True(t, ok)
	assert.False(t, again.Has(domain.FlagPending), "store records must not be aliased")
	assert.Empty(t, again.Comment)
}
