package core

import "strings"

// OtherCategory is the bucket for transactions without a usable category.
const OtherCategory = "Other"

// NormalizeCategory maps a raw category to its display name. Empty and
// whitespace-only input becomes OtherCategory; anything else is trimmed and
// otherwise kept verbatim, so comparisons stay case-sensitive.
func NormalizeCategory(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return OtherCategory
	}
	return s
}
