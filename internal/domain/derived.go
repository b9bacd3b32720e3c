package domain

import (
	"strings"
)

// TypeUnknown is the derived type for variables without any type declaration.
const TypeUnknown = "unknown"

// TypeEnum is the derived type for variables declaring an enumerated value set.
const TypeEnum = "enum"

// DerivedType computes the variable's display type from its declaration.
// Variables with an enumerated value set are "enum"; nullable unions become
// the slash-joined non-null member types (e.g. "string" or "string/number");
// otherwise the direct type name, or "unknown". The result is never cached on
// the variable: type can change as a side effect of structural edits, so it
// is always recomputed on demand.
func (v *Variable) DerivedType() string {
	for _, alt := range v.AnyOf {
		if len(alt.Enum) > 0 {
			return TypeEnum
		}
	}
	if len(v.AnyOf) > 0 {
		var members []string
		for _, alt := range v.AnyOf {
			if alt.Type != "" && alt.Type != "null" {
				members = append(members, alt.Type)
			}
		}
		if len(members) > 0 {
			return strings.Join(members, "/")
		}
		return TypeUnknown
	}
	if v.Type != "" {
		return v.Type
	}
	return TypeUnknown
}

// Derived boolean indicators consumed by the tri-state filters. These are
// pure functions of the variable, never stored redundantly.

// HasComments reports whether the comments field is non-empty after trimming.
func (v *Variable) HasComments() bool {
	return strings.TrimSpace(v.Comments) != ""
}

// HasErrors reports whether the errors flag is set.
func (v *Variable) HasErrors() bool {
	return v.Errors
}

// HasChanges reports whether the changes flag is set.
func (v *Variable) HasChanges() bool {
	return v.Changes
}

// HasImprovements reports whether the improvements flag is set.
func (v *Variable) HasImprovements() bool {
	return v.Improvements
}

// HasPerformanceData reports whether any patient has a classification record
// for this variable. An empty performance map counts as no data; the store
// removes empty maps on delete so the two states stay equivalent.
func (v *Variable) HasPerformanceData() bool {
	return len(v.Performance) > 0
}
