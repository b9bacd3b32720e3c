package domain

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// PatientIDPlaceholder documents the external patient ID format.
const PatientIDPlaceholder = "patient_XXX (e.g., patient_001)"

var (
	patientIDPattern = regexp.MustCompile(`^patient_\d{3}$`)
	digitRuns        = regexp.MustCompile(`\d+`)
)

// IsValidPatientID reports whether the ID matches the fixed-width external
// format patient_XXX. The fixed width makes lexicographic order equal to
// numeric order, which the store's sorted listings rely on.
func IsValidPatientID(id string) bool {
	return patientIDPattern.MatchString(id)
}

// FormatPatientNumber renders a bare patient number in the external format.
func FormatPatientNumber(n int) string {
	return fmt.Sprintf("patient_%03d", n)
}

// FormatPatientID normalizes a partially-formed patient identifier: digits
// found anywhere in the input are zero-padded to three places and prefixed.
// Input containing no digits is returned unchanged; the caller must
// re-validate with IsValidPatientID.
func FormatPatientID(input string) string {
	runs := digitRuns.FindAllString(input, -1)
	if len(runs) == 0 {
		return input
	}
	n, err := strconv.Atoi(strings.Join(runs, ""))
	if err != nil {
		return input
	}
	return FormatPatientNumber(n)
}
