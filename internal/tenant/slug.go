package tenant

import (
	"errors"
	"regexp"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

var ErrInvalidSlug = errors.New("invalid tenant slug")

var slugRe = regexp.MustCompile(`^[a-z0-9](?:[a-z0-9-]{0,61}[a-z0-9])?$`)

// reserved path segments are never tenant slugs.
var reserved = map[string]bool{
	"api":         true,
	"webhooks":    true,
	"health":      true,
	"countries":   true,
	"static":      true,
	"_next":       true,
	"favicon.ico": true,
	"sign-in":     true,
	"sign-up":     true,
}

// IsReserved reports whether segment is claimed by the service itself.
func IsReserved(segment string) bool { return reserved[strings.ToLower(segment)] }

// ValidSlug reports whether s can name a tenant.
func ValidSlug(s string) bool { return slugRe.MatchString(s) && !IsReserved(s) }

// SlugFromPath returns the first non-empty, non-reserved path segment.
func SlugFromPath(path string) (string, error) {
	for _, seg := range strings.Split(path, "/") {
		if seg == "" || IsReserved(seg) {
			continue
		}
		seg = strings.ToLower(seg)
		if !slugRe.MatchString(seg) {
			return "", ErrInvalidSlug
		}
		return seg, nil
	}
	return "", ErrInvalidSlug
}

// DisplayName derives a human name from a slug: "acme-corp" becomes "Acme Corp".
func DisplayName(slug string) string {
	words := strings.Fields(strings.ReplaceAll(slug, "-", " "))
	return cases.Title(language.English).String(strings.Join(words, " "))
}
