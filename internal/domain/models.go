package domain

import (
	"encoding/json"
)

// DefaultGroup is the group assigned to variables without a group_id.
const DefaultGroup = "ungrouped"

// TypeAlternative is one member of a variable's anyOf type union.
type TypeAlternative struct {
	Type   string        `json:"type,omitempty"`
	Format string        `json:"format,omitempty"`
	Enum   []interface{} `json:"enum,omitempty"`
}

// Variable is one clinical extraction variable from the schema's properties
// map: its type declaration plus the editorial metadata and the per-patient
// classification map attached by the review process.
type Variable struct {
	AnyOf        []TypeAlternative  `json:"anyOf,omitempty"`
	Type         string             `json:"type,omitempty"`
	Default      interface{}        `json:"default,omitempty"`
	Description  string             `json:"description,omitempty"`
	GroupID      string             `json:"group_id,omitempty"`
	Options      map[string]string  `json:"options,omitempty"`
	Notes        string             `json:"notes,omitempty"`
	Comments     string             `json:"comments,omitempty"`
	Changes      bool               `json:"changes,omitempty"`
	Errors       bool               `json:"errors,omitempty"`
	Improvements bool               `json:"improvements,omitempty"`
	Performance  map[string]*Record `json:"performance,omitempty"`
}

// Group returns the variable's group, falling back to DefaultGroup.
func (v *Variable) Group() string {
	if v.GroupID == "" {
		return DefaultGroup
	}
	return v.GroupID
}

// Document is one versioned snapshot of the full schema plus classification
// data: a JSON Schema object whose properties map holds the variables.
type Document struct {
	Type       string               `json:"type"`
	Properties map[string]*Variable `json:"properties"`
}

// NewDocument creates an empty document of the expected shape.
func NewDocument() *Document {
	return &Document{
		Type:       "object",
		Properties: make(map[string]*Variable),
	}
}

// ValidateShape checks the {type: "object", properties: {...}} contract a
// candidate document must meet before it can be loaded.
func (d *Document) ValidateShape(label string) error {
	if d == nil {
		return NewFormatError(label, "document is empty")
	}
	if d.Type != "object" {
		return NewFormatError(label, "top-level type must be 'object'")
	}
	if d.Properties == nil {
		return NewFormatError(label, "missing top-level properties object")
	}
	return nil
}

// CloneDocument returns a deep copy of the document via its wire form, so
// version snapshots can never alias the working document.
func CloneDocument(d *Document) (*Document, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	clone := &Document{}
	if err := json.Unmarshal(data, clone); err != nil {
		return nil, err
	}
	if clone.Properties == nil {
		clone.Properties = make(map[string]*Variable)
	}
	return clone, nil
}
