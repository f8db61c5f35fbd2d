package models

import (
	"strings"
	"time"
)

// AllValues is the sidebar sentinel meaning "do not filter on this column".
const AllValues = "All"

// Criteria captures one interaction's sidebar selections.
type Criteria struct {
	Gender    string
	Condition string
	Doctor    string
	Start     time.Time
	End       time.Time
}

// IsAll reports whether value leaves its column unconstrained.
func IsAll(value string) bool {
	value = strings.TrimSpace(value)
	return value == "" || strings.EqualFold(value, AllValues)
}

// DateRange bounds the admission dates of a view, inclusive on both ends.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Options lists the sidebar choices derived from the loaded dataset.
type Options struct {
	Genders    []string
	Conditions []string
	Doctors    []string
	Dates      DateRange
}
