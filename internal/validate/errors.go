package validate

import (
	"sort"
	"strings"
)

// FieldError is a single violation on one input field.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

func (e *FieldError) Error() string { return e.Field + ": " + e.Message }

// Errors collects every violation found, keyed by field name. A non-empty
// Errors is returned as an error so handlers can map it to a 400.
type Errors map[string][]string

// Add records fe. A nil fe is ignored so validator results can be passed
// straight through.
func (e Errors) Add(fe *FieldError) {
	if fe == nil {
		return
	}
	e[fe.Field] = append(e[fe.Field], fe.Message)
}

// Set records a message for field.
func (e Errors) Set(field, message string) {
	e[field] = append(e[field], message)
}

// Merge copies all of other into e.
func (e Errors) Merge(other Errors) {
	for field, msgs := range other {
		e[field] = append(e[field], msgs...)
	}
}

// Err returns e as an error, or nil when there are no violations.
func (e Errors) Err() error {
	if len(e) == 0 {
		return nil
	}
	return e
}

func (e Errors) Error() string {
	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+strings.Join(e[f], "; "))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Single wraps one field violation as an Errors value.
func Single(field, message string) Errors {
	return Errors{field: {message}}
}
