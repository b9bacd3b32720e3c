package version

import (
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/medixtract-review/internal/domain"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func docWithVariables(keys ...string) *domain.Document {
	doc := domain.NewDocument()
	for _, k := range keys {
		doc.Properties[k] = &domain.Variable{
			AnyOf: []domain.TypeAlternative{{Type: "string"}, {Type: "null"}},
		}
	}
	return doc
}

func TestParseVersionFilename(t *testing.T) {
	tests := []struct {
		name   string
		want   int
		wantOK bool
	}{
		{"schema_v001.json", 1, true},
		{"schema_v042.json", 42, true},
		{"schema_v1234.json", 1234, true}, // more than three digits still parses
		{"schema_v000.json", 0, false},
		{"schema_v001.json.bak", 0, false},
		{"schema_001.json", 0, false},
		{"notes.json", 0, false},
		{"", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ParseVersionFilename(tt.name)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFormatVersionFilename(t *testing.T) {
	assert.Equal(t, "schema_v001.json", FormatVersionFilename(1))
	assert.Equal(t, "schema_v042.json", FormatVersionFilename(42))
	assert.Equal(t, "schema_v1234.json", FormatVersionFilename(1234))
}

func TestLoadVersions_SkipsInvalidCandidates(t *testing.T) {
	set := NewSet(testLogger())

	bad := &domain.Document{Type: "array"}
	err := set.LoadVersions([]Candidate{
		{Version: 1, Label: "schema_v001.json", Doc: docWithVariables("age")},
		{Version: 2, Label: "schema_v002.json", Doc: bad},
	})
	require.NoError(t, err)

	assert.Equal(t, []int{1}, set.Versions())
	assert.Equal(t, 1, set.CurrentVersion())
}

func TestLoadVersions_AllInvalidLeavesStateUnchanged(t *testing.T) {
	set := NewSet(testLogger())
	require.NoError(t, set.LoadVersions([]Candidate{
		{Version: 1, Label: "schema_v001.json", Doc: docWithVariables("age")},
	}))

	err := set.LoadVersions([]Candidate{
		{Version: 2, Label: "schema_v002.json", Doc: &domain.Document{Type: "array"}},
		{Version: 3, Label: "schema_v003.json", Doc: nil},
	})

	var noValid *domain.NoValidSchemaError
	require.ErrorAs(t, err, &noValid)
	assert.Equal(t, 2, noValid.Attempted)
	assert.Len(t, noValid.Reasons, 2)

	// The earlier successful load survives a failed reload.
	assert.Equal(t, []int{1}, set.Versions())
	require.NotNil(t, set.Working())
	assert.Contains(t, set.Working().Properties, "age")
}

func TestWorkingDocumentDoesNotAliasSnapshot(t *testing.T) {
	set := NewSet(testLogger())
	require.NoError(t, set.LoadVersions([]Candidate{
		{Version: 3, Label: "schema_v003.json", Doc: docWithVariables("age", "bmi")},
	}))

	set.Working().Properties["age"].Comments = "edited after load"

	snapshot, _, ok := set.Get(3)
	require.True(t, ok)
	assert.Empty(t, snapshot.Properties["age"].Comments)
}

func TestSave_AppendsNewVersion(t *testing.T) {
	set := NewSet(testLogger())
	require.NoError(t, set.LoadVersions([]Candidate{
		{Version: 3, Label: "schema_v003.json", Doc: docWithVariables("age")},
	}))

	set.Working().Properties["age"].Errors = true

	receipt, err := set.Save()
	require.NoError(t, err)
	assert.Equal(t, 4, receipt.Version)
	assert.NotEmpty(t, receipt.ID)
	assert.False(t, receipt.SavedAt.IsZero())

	// Version 4 holds the edit, version 3 remains as loaded.
	v4, label, ok := set.Get(4)
	require.True(t, ok)
	assert.Equal(t, "schema_v004.json", label)
	assert.True(t, v4.Properties["age"].Errors)

	v3, _, ok := set.Get(3)
	require.True(t, ok)
	assert.False(t, v3.Properties["age"].Errors)

	assert.Equal(t, []int{3, 4}, set.Versions())
	assert.Equal(t, 4, set.CurrentVersion())
}

func TestSave_SnapshotImmutableAfterSave(t *testing.T) {
	set := NewSet(testLogger())
	require.NoError(t, set.LoadVersions([]Candidate{
		{Version: 1, Label: "schema_v001.json", Doc: docWithVariables("age")},
	}))

	_, err := set.Save()
	require.NoError(t, err)

	// Edits after the save must not leak into the stored snapshot.
	set.Working().Properties["age"].Comments = "post-save edit"

	v2, _, ok := set.Get(2)
	require.True(t, ok)
	assert.Empty(t, v2.Properties["age"].Comments)
}

func TestSave_WithoutLoadedDocument(t *testing.T) {
	set := NewSet(testLogger())
	_, err := set.Save()
	require.Error(t, err)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}
