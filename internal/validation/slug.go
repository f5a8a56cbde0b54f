package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var slugRegex = regexp.MustCompile(`^[a-z0-9-]{3,64}$`)

var reservedSlugs = map[string]struct{}{
	"admin":      {},
	"api":        {},
	"auth":       {},
	"episodes":   {},
	"characters": {},
	"comments":   {},
	"users":      {},
	"ws":         {},
	"metrics":    {},
	"login":      {},
	"signup":     {},
	"health":     {},
}

// ValidateSlug validates an episode or character slug.
func ValidateSlug(slug string) error {
	if !slugRegex.MatchString(slug) {
		return fmt.Errorf("slug must be 3-64 characters and contain only lowercase letters, numbers, and hyphens")
	}

	if strings.HasPrefix(slug, "-") || strings.HasSuffix(slug, "-") {
		return fmt.Errorf("slug cannot start or end with a hyphen")
	}

	if _, exists := reservedSlugs[slug]; exists {
		return fmt.Errorf("slug is reserved")
	}

	return nil
}
