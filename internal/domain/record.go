package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Severity bounds for classification records.
const (
	MinSeverity = 1
	MaxSeverity = 10
)

// Record is one patient's extraction-quality classification for one variable.
// Flags are stored sparsely: only true flags exist, false and absent are
// equivalent. Records are created and destroyed only through the store, which
// owns them exclusively; a zero Severity means no severity was recorded.
type Record struct {
	Flags       FlagSet
	Severity    int
	Comment     string
	LastUpdated time.Time
}

// Has reports whether the record carries the given flag.
func (r *Record) Has(f Flag) bool {
	return r.Flags.Has(f)
}

// Clone returns an independent copy of the record.
func (r *Record) Clone() *Record {
	return &Record{
		Flags:       r.Flags.Clone(),
		Severity:    r.Severity,
		Comment:     r.Comment,
		LastUpdated: r.LastUpdated,
	}
}

// MarshalJSON writes the sparse wire form: one true entry per set flag plus
// the optional severity, comment and last_updated fields. False flags are
// never emitted.
func (r *Record) MarshalJSON() ([]byte, error) {
	out := make(map[string]interface{}, len(r.Flags)+3)
	for f, v := range r.Flags {
		if v {
			out[string(f)] = true
		}
	}
	if r.Severity != 0 {
		out["severity"] = r.Severity
	}
	if r.Comment != "" {
		out["comment"] = r.Comment
	}
	if !r.LastUpdated.IsZero() {
		out["last_updated"] = r.LastUpdated.UTC().Format(time.RFC3339)
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads the sparse wire form. Keys that are neither known
// fields nor taxonomy flags are ignored so documents written by newer
// editors still load.
func (r *Record) UnmarshalJSON(data []byte) error {
	raw := make(map[string]json.RawMessage)
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	r.Flags = make(FlagSet)
	r.Severity = 0
	r.Comment = ""
	r.LastUpdated = time.Time{}

	for key, val := range raw {
		switch key {
		case "severity":
			if err := json.Unmarshal(val, &r.Severity); err != nil {
				return fmt.Errorf("parsing severity: %w", err)
			}
		case "comment":
			if err := json.Unmarshal(val, &r.Comment); err != nil {
				return fmt.Errorf("parsing comment: %w", err)
			}
		case "last_updated":
			var ts string
			if err := json.Unmarshal(val, &ts); err != nil {
				return fmt.Errorf("parsing last_updated: %w", err)
			}
			parsed, err := time.Parse(time.RFC3339, ts)
			if err != nil {
				return fmt.Errorf("parsing last_updated '%s': %w", ts, err)
			}
			r.LastUpdated = parsed
		default:
			flag := Flag(key)
			if !flag.IsValid() {
				continue
			}
			var set bool
			if err := json.Unmarshal(val, &set); err != nil {
				return fmt.Errorf("parsing flag '%s': %w", key, err)
			}
			if set {
				r.Flags[flag] = true
			}
		}
	}

	return nil
}
