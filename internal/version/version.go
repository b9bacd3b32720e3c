// Package version implements the versioned document lifecycle: a set of
// immutable, numbered schema snapshots plus the working document derived
// from the newest one. The set is append-only; saving never overwrites an
// earlier version, giving an audit trail of every edit pass.
package version

import (
	"fmt"
	"regexp"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/medixtract-review/internal/domain"
)

// filenamePattern extracts the version number from schema filenames. The
// digit class is deliberately open-ended: schema_v001.json and
// schema_v0001.json both parse, even though versions are displayed
// zero-padded to three digits.
var filenamePattern = regexp.MustCompile(`^schema_v(\d+)\.json$`)

// ParseVersionFilename extracts the version number from a schema filename.
func ParseVersionFilename(name string) (int, bool) {
	m := filenamePattern.FindStringSubmatch(name)
	if m == nil {
		return 0, false
	}
	var v int
	if _, err := fmt.Sscanf(m[1], "%d", &v); err != nil {
		return 0, false
	}
	if v <= 0 {
		return 0, false
	}
	return v, true
}

// FormatVersionFilename renders the canonical filename for a version.
func FormatVersionFilename(v int) string {
	return fmt.Sprintf("schema_v%03d.json", v)
}

// Candidate is one already-parsed document offered to LoadVersions. JSON
// parsing happens at the I/O boundary; the lifecycle only sees structures.
type Candidate struct {
	Version int
	Label   string
	Doc     *domain.Document
}

// SaveReceipt identifies one completed save.
type SaveReceipt struct {
	Version int       `json:"version"`
	ID      string    `json:"id"`
	SavedAt time.Time `json:"saved_at"`
}

type entry struct {
	doc   *domain.Document
	label string
}

// Set is the in-memory document set: version -> immutable snapshot. The
// working document is a deep copy of the newest snapshot, taken at load
// time, so edits never reach back into a stored version.
type Set struct {
	versions map[int]entry
	working  *domain.Document
	log      *logrus.Logger
}

// NewSet creates an empty document set.
func NewSet(logger *logrus.Logger) *Set {
	return &Set{
		versions: make(map[int]entry),
		log:      logger,
	}
}

// Loaded reports whether any version has been loaded.
func (s *Set) Loaded() bool {
	return len(s.versions) > 0
}

// Versions returns the loaded version numbers in ascending order.
func (s *Set) Versions() []int {
	out := make([]int, 0, len(s.versions))
	for v := range s.versions {
		out = append(out, v)
	}
	sort.Ints(out)
	return out
}

// CurrentVersion returns the highest loaded version, or 0 when empty.
func (s *Set) CurrentVersion() int {
	max := 0
	for v := range s.versions {
		if v > max {
			max = v
		}
	}
	return max
}

// Working returns the mutable working document, or nil before any load.
func (s *Set) Working() *domain.Document {
	return s.working
}

// Get returns the immutable snapshot for a version.
func (s *Set) Get(v int) (*domain.Document, string, bool) {
	e, ok := s.versions[v]
	if !ok {
		return nil, "", false
	}
	return e.doc, e.label, true
}

// LoadVersions validates each candidate and replaces the set's contents with
// those that pass. Candidates failing the shape check are skipped with a
// warning. If zero candidates validate, the load fails with
// NoValidSchemaError and the previous state is kept untouched, whether that
// was empty or an earlier successful load.
func (s *Set) LoadVersions(candidates []Candidate) error {
	accepted := make(map[int]entry)
	var reasons []string

	for _, c := range candidates {
		if err := c.Doc.ValidateShape(c.Label); err != nil {
			s.log.WithFields(logrus.Fields{
				"label":   c.Label,
				"version": c.Version,
			}).WithError(err).Warn("Skipping invalid schema document")
			reasons = append(reasons, err.Error())
			continue
		}
		if c.Version <= 0 {
			reason := fmt.Sprintf("document '%s' has non-positive version %d", c.Label, c.Version)
			s.log.WithField("label", c.Label).Warn(reason)
			reasons = append(reasons, reason)
			continue
		}
		accepted[c.Version] = entry{doc: c.Doc, label: c.Label}
	}

	if len(accepted) == 0 {
		return &domain.NoValidSchemaError{Attempted: len(candidates), Reasons: reasons}
	}

	working, maxVersion, err := workingCopy(accepted)
	if err != nil {
		return fmt.Errorf("preparing working document: %w", err)
	}

	s.versions = accepted
	s.working = working

	s.log.WithFields(logrus.Fields{
		"versions": len(accepted),
		"current":  maxVersion,
	}).Info("Loaded schema document set")

	return nil
}

// Save snapshots the working document as a new version, current max plus
// one. Earlier versions are retained unchanged; editing continues on the
// same working document afterwards.
func (s *Set) Save() (SaveReceipt, error) {
	if s.working == nil {
		return SaveReceipt{}, domain.NewNotFoundError("document", "working")
	}

	snapshot, err := domain.CloneDocument(s.working)
	if err != nil {
		return SaveReceipt{}, fmt.Errorf("snapshotting working document: %w", err)
	}

	newVersion := s.CurrentVersion() + 1
	receipt := SaveReceipt{
		Version: newVersion,
		ID:      uuid.New().String(),
		SavedAt: time.Now().UTC(),
	}
	s.versions[newVersion] = entry{doc: snapshot, label: FormatVersionFilename(newVersion)}

	s.log.WithFields(logrus.Fields{
		"version": newVersion,
		"save_id": receipt.ID,
	}).Info("Saved new document version")

	return receipt, nil
}

// workingCopy deep-copies the newest accepted snapshot.
func workingCopy(accepted map[int]entry) (*domain.Document, int, error) {
	max := 0
	for v := range accepted {
		if v > max {
			max = v
		}
	}
	clone, err := domain.CloneDocument(accepted[max].doc)
	if err != nil {
		return nil, 0, err
	}
	return clone, max, nil
}
