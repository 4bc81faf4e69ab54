// Package phone normalizes free-form phone input to canonical E.164 form and
// renders canonical numbers for display.
package phone

import (
	"errors"
	"regexp"
	"strconv"
	"strings"

	"github.com/kiranshivaraju/memberbase/internal/country"
	"github.com/nyaruka/phonenumbers"
)

var (
	ErrEmpty              = errors.New("phone number is required")
	ErrUnsupportedCountry = errors.New("unsupported country")
	ErrInvalidNumber      = errors.New("invalid phone number for the selected country")
)

var (
	canonicalRe = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	dialableRe  = regexp.MustCompile(`^\+?\d+$`)
	separators  = strings.NewReplacer(" ", "", "-", "", "(", "", ")", "", ".", "")
)

// Style selects a display rendering.
type Style int

const (
	National Style = iota
	International
)

// Result is a successfully formatted number.
type Result struct {
	Canonical string `json:"canonical"`
	Country   string `json:"country"`
}

// IsCanonical reports whether s is already in canonical form: a "+", a
// non-zero digit and 1-14 further digits.
func IsCanonical(s string) bool { return canonicalRe.MatchString(s) }

// Format validates input against the numbering plan of isoCode and returns
// its canonical form. Input that already carries a "+" calling code for a
// different registry country resolves to that country.
func Format(input, isoCode string) (Result, error) {
	cleaned := separators.Replace(strings.TrimSpace(input))
	if cleaned == "" {
		return Result{}, ErrEmpty
	}

	c, ok := country.ByISO(isoCode)
	if !ok || phonenumbers.GetCountryCodeForRegion(c.ISOCode) == 0 {
		return Result{}, ErrUnsupportedCountry
	}
	if !dialableRe.MatchString(cleaned) {
		return Result{}, ErrInvalidNumber
	}

	num, err := phonenumbers.Parse(cleaned, c.ISOCode)
	if err != nil {
		return Result{}, ErrInvalidNumber
	}

	nsn := phonenumbers.GetNationalSignificantNumber(num)
	if int(num.GetCountryCode()) != phonenumbers.GetCountryCodeForRegion(c.ISOCode) {
		other, err := resolve(num, nsn)
		if err != nil {
			return Result{}, err
		}
		c = other
	}

	if phonenumbers.IsPossibleNumberWithReason(num) != phonenumbers.IS_POSSIBLE {
		return Result{}, ErrInvalidNumber
	}
	if !c.ValidLeadingDigits(nsn) {
		return Result{}, ErrInvalidNumber
	}

	canonical := phonenumbers.Format(num, phonenumbers.E164)
	if !IsCanonical(canonical) {
		return Result{}, ErrInvalidNumber
	}
	return Result{Canonical: canonical, Country: c.ISOCode}, nil
}

// resolve picks the registry country for a number dialled with a foreign
// calling code. Only the registry's own prefix rules decide: libphonenumber's
// region lookup rejects numbers that are possible but unassigned.
func resolve(num *phonenumbers.PhoneNumber, nsn string) (country.Country, error) {
	cc := int(num.GetCountryCode())
	candidates := country.ByDialCode("+" + strconv.Itoa(cc))
	if len(candidates) == 0 {
		return country.Country{}, ErrUnsupportedCountry
	}

	var matching []country.Country
	for _, c := range candidates {
		if c.ValidLeadingDigits(nsn) {
			matching = append(matching, c)
		}
	}
	if len(matching) == 0 {
		return country.Country{}, ErrInvalidNumber
	}

	for _, prefer := range []string{
		phonenumbers.GetRegionCodeForNumber(num),
		phonenumbers.GetRegionCodeForCountryCode(cc),
	} {
		for _, c := range matching {
			if c.ISOCode == prefer {
				return c, nil
			}
		}
	}
	return matching[0], nil
}

// Display renders a canonical number. Anything that does not parse is
// returned unchanged.
func Display(canonical string, style Style) string {
	if !IsCanonical(canonical) {
		return canonical
	}
	num, err := phonenumbers.Parse(canonical, "ZZ")
	if err != nil {
		return canonical
	}
	switch style {
	case International:
		return phonenumbers.Format(num, phonenumbers.INTERNATIONAL)
	default:
		return phonenumbers.Format(num, phonenumbers.NATIONAL)
	}
}

// Same reports whether a and b denote the same number. Two canonical strings
// are compared byte for byte; otherwise both must format under isoCode to the
// same canonical value.
func Same(a, b, isoCode string) bool {
	if IsCanonical(a) && IsCanonical(b) {
		return a == b
	}
	ra, err := Format(a, isoCode)
	if err != nil {
		return false
	}
	rb, err := Format(b, isoCode)
	if err != nil {
		return false
	}
	return ra.Canonical == rb.Canonical
}

// Message returns the user-facing text for a Format error.
func Message(err error) string {
	switch {
	case errors.Is(err, ErrEmpty):
		return "Phone number is required"
	case errors.Is(err, ErrUnsupportedCountry):
		return "Selected country is not supported"
	default:
		return "Please enter a valid phone number for the selected country"
	}
}
