// Package schemaio is the filesystem boundary for schema documents. It scans
// version directories, parses and writes JSON, and exports a cleaned copy of
// a document with all review metadata stripped. Everything above this
// package works on parsed structures only.
package schemaio

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/medixtract-review/internal/domain"
	"github.com/medixtract-review/internal/version"
)

// LoadDir scans a directory for schema_vNNN.json files and parses each one
// into a load candidate. Files that do not match the naming pattern are
// ignored; files that match but fail to parse are skipped with a warning.
// Shape validation is left to the version set.
func LoadDir(dir string, log *logrus.Logger) ([]version.Candidate, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading schema directory %s: %w", dir, err)
	}

	var candidates []version.Candidate
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		v, ok := version.ParseVersionFilename(e.Name())
		if !ok {
			continue
		}

		path := filepath.Join(dir, e.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			log.WithField("file", path).WithError(err).Warn("Skipping unreadable schema file")
			continue
		}

		doc := &domain.Document{}
		if err := json.Unmarshal(data, doc); err != nil {
			log.WithField("file", path).WithError(err).Warn("Skipping unparseable schema file")
			continue
		}

		candidates = append(candidates, version.Candidate{
			Version: v,
			Label:   e.Name(),
			Doc:     doc,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Version < candidates[j].Version
	})

	log.WithFields(logrus.Fields{
		"dir":        dir,
		"candidates": len(candidates),
	}).Debug("Scanned schema directory")

	return candidates, nil
}

// WriteVersion writes a document to dir under the canonical filename for the
// given version. The write is refused if the file already exists, keeping
// the on-disk set append-only.
func WriteVersion(dir string, v int, doc *domain.Document) (string, error) {
	path := filepath.Join(dir, version.FormatVersionFilename(v))
	if _, err := os.Stat(path); err == nil {
		return "", fmt.Errorf("version file %s already exists", path)
	} else if !os.IsNotExist(err) {
		return "", fmt.Errorf("checking version file %s: %w", path, err)
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("writing version file %s: %w", path, err)
	}
	return path, nil
}

// ExportClean returns a copy of the document with every piece of review
// metadata removed, leaving only the schema fields a downstream extraction
// pipeline expects: type declarations, defaults and descriptions.
func ExportClean(doc *domain.Document) (*domain.Document, error) {
	clone, err := domain.CloneDocument(doc)
	if err != nil {
		return nil, fmt.Errorf("cloning document for export: %w", err)
	}

	for _, v := range clone.Properties {
		v.GroupID = ""
		v.Options = nil
		v.Notes = ""
		v.Comments = ""
		v.Changes = false
		v.Errors = false
		v.Improvements = false
		v.Performance = nil
	}
	return clone, nil
}

// WriteClean exports a cleaned copy of the document to the given path.
func WriteClean(path string, doc *domain.Document) error {
	clean, err := ExportClean(doc)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(clean, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding cleaned document: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("writing cleaned document %s: %w", path, err)
	}
	return nil
}
