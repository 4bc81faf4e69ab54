// Package country holds the static table of supported countries: calling
// codes, display formats and the per-country rules the phone formatter and
// form validator consult.
package country

import (
	"regexp"
	"sort"
	"strings"
)

// Country is one registry entry.
type Country struct {
	ISOCode  string `json:"iso_code"`
	Name     string `json:"name"`
	DialCode string `json:"dial_code"`
	Format   string `json:"format"`

	// leading, when set, must match the national significant number.
	leading *regexp.Regexp
	// postal, when set, must match a non-empty postal code.
	postal *regexp.Regexp
}

// ValidLeadingDigits reports whether nsn satisfies the country's national
// prefix rule. Countries without a rule accept any number.
func (c Country) ValidLeadingDigits(nsn string) bool {
	return c.leading == nil || c.leading.MatchString(nsn)
}

// ValidPostalCode reports whether code matches the country's postal pattern.
// Countries without a known pattern accept any value.
func (c Country) ValidPostalCode(code string) bool {
	return c.postal == nil || c.postal.MatchString(strings.ToUpper(code))
}

// HasPostalPattern reports whether the country has a postal code pattern.
func (c Country) HasPostalPattern() bool { return c.postal != nil }

const defaultISO = "US"

var nanp = regexp.MustCompile(`^[2-9]`)

var table = []Country{
	{ISOCode: "AR", Name: "Argentina", DialCode: "+54", Format: "## ####-####", postal: regexp.MustCompile(`^([A-Z]\d{4}[A-Z]{3}|\d{4})$`)},
	{ISOCode: "AU", Name: "Australia", DialCode: "+61", Format: "#### ### ###", postal: regexp.MustCompile(`^\d{4}$`)},
	{ISOCode: "AT", Name: "Austria", DialCode: "+43", Format: "### #######", postal: regexp.MustCompile(`^\d{4}$`)},
	{ISOCode: "BE", Name: "Belgium", DialCode: "+32", Format: "### ## ## ##", postal: regexp.MustCompile(`^\d{4}$`)},
	{ISOCode: "BR", Name: "Brazil", DialCode: "+55", Format: "(##) #####-####", postal: regexp.MustCompile(`^\d{5}-?\d{3}$`)},
	{ISOCode: "CA", Name: "Canada", DialCode: "+1", Format: "(###) ###-####", leading: nanp, postal: regexp.MustCompile(`^[A-Z]\d[A-Z] ?\d[A-Z]\d$`)},
	{ISOCode: "CL", Name: "Chile", DialCode: "+56", Format: "# #### ####"},
	{ISOCode: "CN", Name: "China", DialCode: "+86", Format: "### #### ####", postal: regexp.MustCompile(`^\d{6}$`)},
	{ISOCode: "CO", Name: "Colombia", DialCode: "+57", Format: "### ### ####"},
	{ISOCode: "DK", Name: "Denmark", DialCode: "+45", Format: "## ## ## ##", postal: regexp.MustCompile(`^\d{4}$`)},
	{ISOCode: "FI", Name: "Finland", DialCode: "+358", Format: "## ### ####", postal: regexp.MustCompile(`^\d{5}$`)},
	{ISOCode: "FR", Name: "France", DialCode: "+33", Format: "# ## ## ## ##", postal: regexp.MustCompile(`^\d{5}$`)},
	{ISOCode: "DE", Name: "Germany", DialCode: "+49", Format: "#### #######", postal: regexp.MustCompile(`^\d{5}$`)},
	{ISOCode: "GR", Name: "Greece", DialCode: "+30", Format: "### ### ####", postal: regexp.MustCompile(`^\d{3} ?\d{2}$`)},
	{ISOCode: "IN", Name: "India", DialCode: "+91", Format: "##### #####", postal: regexp.MustCompile(`^\d{6}$`)},
	{ISOCode: "ID", Name: "Indonesia", DialCode: "+62", Format: "###-####-####", postal: regexp.MustCompile(`^\d{5}$`)},
	{ISOCode: "IE", Name: "Ireland", DialCode: "+353", Format: "## ### ####"},
	{ISOCode: "IL", Name: "Israel", DialCode: "+972", Format: "##-###-####", postal: regexp.MustCompile(`^\d{7}$`)},
	{ISOCode: "IT", Name: "Italy", DialCode: "+39", Format: "### ### ####", postal: regexp.MustCompile(`^\d{5}$`)},
	{ISOCode: "JP", Name: "Japan", DialCode: "+81", Format: "##-####-####", postal: regexp.MustCompile(`^\d{3}-?\d{4}$`)},
	{ISOCode: "MY", Name: "Malaysia", DialCode: "+60", Format: "##-### ####", postal: regexp.MustCompile(`^\d{5}$`)},
	{ISOCode: "MX", Name: "Mexico", DialCode: "+52", Format: "### ### ####", postal: regexp.MustCompile(`^\d{5}$`)},
	{ISOCode: "NL", Name: "Netherlands", DialCode: "+31", Format: "## ########", postal: regexp.MustCompile(`^\d{4} ?[A-Z]{2}$`)},
	{ISOCode: "NZ", Name: "New Zealand", DialCode: "+64", Format: "## ### ####", postal: regexp.MustCompile(`^\d{4}$`)},
	{ISOCode: "NG", Name: "Nigeria", DialCode: "+234", Format: "### ### ####"},
	{ISOCode: "NO", Name: "Norway", DialCode: "+47", Format: "### ## ###", postal: regexp.MustCompile(`^\d{4}$`)},
	{ISOCode: "PK", Name: "Pakistan", DialCode: "+92", Format: "### #######", postal: regexp.MustCompile(`^\d{5}$`)},
	{ISOCode: "PH", Name: "Philippines", DialCode: "+63", Format: "### ### ####", postal: regexp.MustCompile(`^\d{4}$`)},
	{ISOCode: "PL", Name: "Poland", DialCode: "+48", Format: "### ### ###", postal: regexp.MustCompile(`^\d{2}-\d{3}$`)},
	{ISOCode: "PT", Name: "Portugal", DialCode: "+351", Format: "### ### ###", postal: regexp.MustCompile(`^\d{4}-\d{3}$`)},
	{ISOCode: "PR", Name: "Puerto Rico", DialCode: "+1", Format: "(###) ###-####", leading: nanp, postal: regexp.MustCompile(`^\d{5}(-\d{4})?$`)},
	{ISOCode: "SA", Name: "Saudi Arabia", DialCode: "+966", Format: "## ### ####"},
	{ISOCode: "SG", Name: "Singapore", DialCode: "+65", Format: "#### ####", postal: regexp.MustCompile(`^\d{6}$`)},
	{ISOCode: "ZA", Name: "South Africa", DialCode: "+27", Format: "## ### ####", postal: regexp.MustCompile(`^\d{4}$`)},
	{ISOCode: "KR", Name: "South Korea", DialCode: "+82", Format: "##-####-####", postal: regexp.MustCompile(`^\d{5}$`)},
	{ISOCode: "ES", Name: "Spain", DialCode: "+34", Format: "### ## ## ##", postal: regexp.MustCompile(`^\d{5}$`)},
	{ISOCode: "SE", Name: "Sweden", DialCode: "+46", Format: "##-### ## ##", postal: regexp.MustCompile(`^\d{3} ?\d{2}$`)},
	{ISOCode: "CH", Name: "Switzerland", DialCode: "+41", Format: "## ### ## ##", postal: regexp.MustCompile(`^\d{4}$`)},
	{ISOCode: "TH", Name: "Thailand", DialCode: "+66", Format: "## ### ####", postal: regexp.MustCompile(`^\d{5}$`)},
	{ISOCode: "TR", Name: "Turkey", DialCode: "+90", Format: "### ### ## ##", postal: regexp.MustCompile(`^\d{5}$`)},
	{ISOCode: "AE", Name: "United Arab Emirates", DialCode: "+971", Format: "## ### ####"},
	{ISOCode: "GB", Name: "United Kingdom", DialCode: "+44", Format: "#### ######", postal: regexp.MustCompile(`^[A-Z]{1,2}\d[A-Z\d]? ?\d[A-Z]{2}$`)},
	{ISOCode: "US", Name: "United States", DialCode: "+1", Format: "(###) ###-####", leading: nanp, postal: regexp.MustCompile(`^\d{5}(-\d{4})?$`)},
	{ISOCode: "VN", Name: "Vietnam", DialCode: "+84", Format: "### ### ####", postal: regexp.MustCompile(`^\d{6}$`)},
}

var (
	byISO  = make(map[string]Country, len(table))
	byName = make(map[string]Country, len(table))
	byDial = make(map[string][]Country)
)

func init() {
	sort.Slice(table, func(i, j int) bool { return table[i].Name < table[j].Name })
	for _, c := range table {
		byISO[c.ISOCode] = c
		byName[strings.ToLower(c.Name)] = c
		byDial[c.DialCode] = append(byDial[c.DialCode], c)
	}
}

// All returns every country sorted by name. The slice is a copy.
func All() []Country {
	out := make([]Country, len(table))
	copy(out, table)
	return out
}

// ByISO looks a country up by its two-letter ISO code (case-insensitive).
func ByISO(code string) (Country, bool) {
	c, ok := byISO[strings.ToUpper(strings.TrimSpace(code))]
	return c, ok
}

// ByName looks a country up by display name, ignoring case.
func ByName(name string) (Country, bool) {
	c, ok := byName[strings.ToLower(strings.TrimSpace(name))]
	return c, ok
}

// ByDialCode returns every country sharing the calling code, sorted by name.
// The leading "+" is optional.
func ByDialCode(code string) []Country {
	code = strings.TrimSpace(code)
	if !strings.HasPrefix(code, "+") {
		code = "+" + code
	}
	found := byDial[code]
	out := make([]Country, len(found))
	copy(out, found)
	return out
}

// Default is the country used when a tenant has not chosen one.
func Default() Country { return byISO[defaultISO] }
