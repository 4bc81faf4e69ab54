// Package validate holds the pure field validators used by the registration
// and customer forms, plus struct validation for request bodies.
package validate

import (
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kiranshivaraju/memberbase/internal/country"
)

// DateLayout is the accepted birth date format.
const DateLayout = "2006-01-02"

const maxAgeYears = 150

var (
	nameRe   = regexp.MustCompile(`^[\p{L}\s'’-]+$`)
	cityRe   = regexp.MustCompile(`^[\p{L}\s'’.-]+$`)
	emailRe  = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s.]+$`)
	fieldRep = strings.NewReplacer("_", " ")
)

func label(field string) string {
	l := fieldRep.Replace(field)
	l = strings.TrimSuffix(strings.TrimSuffix(l, "1"), "2")
	return strings.ToUpper(l[:1]) + l[1:]
}

// Name validates a required first or last name.
func Name(field, value string) *FieldError {
	v := strings.TrimSpace(value)
	n := utf8.RuneCountInString(v)
	switch {
	case n == 0:
		return &FieldError{field, label(field) + " is required"}
	case n < 2:
		return &FieldError{field, label(field) + " must be at least 2 characters"}
	case n > 100:
		return &FieldError{field, label(field) + " must be at most 100 characters"}
	case !nameRe.MatchString(v):
		return &FieldError{field, label(field) + " may only contain letters, spaces, hyphens and apostrophes"}
	}
	return nil
}

// Email validates an optional email address.
func Email(value string) *FieldError {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	if !emailRe.MatchString(v) || structural.Var(v, "email") != nil {
		return &FieldError{"email", "Please enter a valid email address"}
	}
	return nil
}

// ParseDate parses a calendar date in DateLayout.
func ParseDate(value string) (time.Time, bool) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(value))
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// BirthDate validates a required birth date: a real date strictly before
// the day of now and no more than 150 years before it.
func BirthDate(value string, now time.Time) *FieldError {
	if strings.TrimSpace(value) == "" {
		return &FieldError{"birth_date", "Birth date is required"}
	}
	d, ok := ParseDate(value)
	if !ok {
		return &FieldError{"birth_date", "Please enter a valid date (YYYY-MM-DD)"}
	}
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	if !d.Before(today) {
		return &FieldError{"birth_date", "Birth date must be in the past"}
	}
	if d.Before(today.AddDate(-maxAgeYears, 0, 0)) {
		return &FieldError{"birth_date", fmt.Sprintf("Birth date cannot be more than %d years ago", maxAgeYears)}
	}
	return nil
}

// PostalCode validates an optional postal code, applying the country's
// pattern when the registry knows one.
func PostalCode(value, isoCode string) *FieldError {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	if n := utf8.RuneCountInString(v); n < 3 || n > 10 {
		return &FieldError{"postal_code", "Postal code must be between 3 and 10 characters"}
	}
	if c, ok := country.ByISO(isoCode); ok && !c.ValidPostalCode(v) {
		return &FieldError{"postal_code", "Please enter a valid postal code for " + c.Name}
	}
	return nil
}

// AddressLine validates an optional street address line.
func AddressLine(field, value string) *FieldError {
	if utf8.RuneCountInString(strings.TrimSpace(value)) > 200 {
		return &FieldError{field, "Address must be at most 200 characters"}
	}
	return nil
}

// City validates an optional city name.
func City(value string) *FieldError {
	v := strings.TrimSpace(value)
	if v == "" {
		return nil
	}
	if utf8.RuneCountInString(v) > 100 {
		return &FieldError{"city", "City must be at most 100 characters"}
	}
	if !cityRe.MatchString(v) {
		return &FieldError{"city", "City may only contain letters, spaces, hyphens, apostrophes and periods"}
	}
	return nil
}

// State validates an optional state or region.
func State(value string) *FieldError {
	if utf8.RuneCountInString(strings.TrimSpace(value)) > 100 {
		return &FieldError{"state", "State must be at most 100 characters"}
	}
	return nil
}

// Consent requires the marketing consent box to be ticked.
func Consent(given bool) *FieldError {
	if !given {
		return &FieldError{"consent_given", "You must agree to receive communications to register"}
	}
	return nil
}
