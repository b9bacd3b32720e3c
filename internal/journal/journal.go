// Package journal records every accepted classification write and delete in
// a local SQLite database. The journal is an audit trail beside the document
// set: it is never read back to rebuild state, only listed and exported.
package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/medixtract-review/internal/domain"
)

// Operation names for journal entries.
const (
	OpSet    = "set"
	OpDelete = "delete"
)

// Entry is one journaled edit.
type Entry struct {
	ID         string    `json:"id"`
	Op         string    `json:"op"`
	VariableID string    `json:"variable_id"`
	PatientID  string    `json:"patient_id"`
	Flags      []string  `json:"flags,omitempty"`
	Severity   int       `json:"severity,omitempty"`
	Comment    string    `json:"comment,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Export is the wire form of a full journal export.
type Export struct {
	Version    string    `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
	Count      int       `json:"count"`
	Entries    []*Entry  `json:"entries"`
}

// Journal is a SQLite-backed append-only edit log.
type Journal struct {
	db     *sql.DB
	dbPath string
}

// Open opens or creates the journal database at dbPath.
func Open(dbPath string) (*Journal, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &Journal{db: db, dbPath: dbPath}, nil
}

// createSchema creates the journal table and indexes.
func createSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS edits (
		id TEXT PRIMARY KEY,
		op TEXT NOT NULL,
		variable_id TEXT NOT NULL,
		patient_id TEXT NOT NULL,
		flags TEXT DEFAULT '',
		severity INTEGER NOT NULL DEFAULT 0,
		comment TEXT DEFAULT '',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_edits_variable ON edits(variable_id);
	CREATE INDEX IF NOT EXISTS idx_edits_patient ON edits(patient_id);
	CREATE INDEX IF NOT EXISTS idx_edits_created_at ON edits(created_at);
	`

	_, err := db.Exec(schema)
	return err
}

// scanner is an interface for sql.Row and sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanEntry scans a row into an Entry.
func scanEntry(s scanner) (*Entry, error) {
	e := &Entry{}
	var flagsJSON string

	err := s.Scan(&e.ID, &e.Op, &e.VariableID, &e.PatientID, &flagsJSON, &e.Severity, &e.Comment, &e.CreatedAt)
	if err != nil {
		return nil, err
	}

	if flagsJSON != "" {
		if err := json.Unmarshal([]byte(flagsJSON), &e.Flags); err != nil {
			return nil, fmt.Errorf("failed to decode flags: %w", err)
		}
	}
	return e, nil
}

// RecordSet journals an accepted classification write.
func (j *Journal) RecordSet(ctx context.Context, variableID, patientID string, rec *domain.Record) (*Entry, error) {
	flags := make([]string, 0, len(rec.Flags))
	for _, f := range rec.Flags.TrueFlags() {
		flags = append(flags, string(f))
	}
	return j.append(ctx, &Entry{
		Op:         OpSet,
		VariableID: variableID,
		PatientID:  patientID,
		Flags:      flags,
		Severity:   rec.Severity,
		Comment:    rec.Comment,
	})
}

// RecordDelete journals a classification removal.
func (j *Journal) RecordDelete(ctx context.Context, variableID, patientID string) (*Entry, error) {
	return j.append(ctx, &Entry{
		Op:         OpDelete,
		VariableID: variableID,
		PatientID:  patientID,
	})
}

func (j *Journal) append(ctx context.Context, e *Entry) (*Entry, error) {
	e.ID = uuid.New().String()
	e.CreatedAt = time.Now().UTC()

	flagsJSON := ""
	if len(e.Flags) > 0 {
		data, err := json.Marshal(e.Flags)
		if err != nil {
			return nil, fmt.Errorf("failed to encode flags: %w", err)
		}
		flagsJSON = string(data)
	}

	_, err := j.db.ExecContext(ctx, `
		INSERT INTO edits (id, op, variable_id, patient_id, flags, severity, comment, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, e.ID, e.Op, e.VariableID, e.PatientID, flagsJSON, e.Severity, e.Comment, e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert: %w", err)
	}
	return e, nil
}

// List returns journal entries, newest first, with pagination.
func (j *Journal) List(ctx context.Context, limit, offset int) ([]*Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, op, variable_id, patient_id, flags, severity, comment, created_at
		FROM edits
		ORDER BY created_at DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query: %w", err)
	}
	defer rows.Close()

	var result []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		result = append(result, e)
	}
	return result, rows.Err()
}

// Count returns the total number of journal entries.
func (j *Journal) Count(ctx context.Context) (int64, error) {
	var count int64
	err := j.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM edits").Scan(&count)
	return count, err
}

// maxExportLimit is the maximum number of entries to export at once.
const maxExportLimit = 1000000

// ExportJSON writes the full journal to a JSON writer.
func (j *Journal) ExportJSON(ctx context.Context, writer io.Writer) error {
	all, err := j.List(ctx, maxExportLimit, 0)
	if err != nil {
		return fmt.Errorf("failed to list entries: %w", err)
	}

	export := &Export{
		Version:    "1.0",
		ExportedAt: time.Now().UTC(),
		Count:      len(all),
		Entries:    all,
	}

	encoder := json.NewEncoder(writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(export)
}

// Close closes the journal and releases resources.
func (j *Journal) Close() error {
	return j.db.Close()
}
