package models

import "regexp"

var slugRegex = regexp.MustCompile(`^[a-z0-9][a-z0-9-]{0,63}$`)

// ValidSlug reports whether s is usable as a tenant, entity, or user slug:
// lowercase alphanumerics and hyphens, up to 64 chars, starting with an
// alphanumeric. Slugs feed directly into chat-network aliases and user IDs,
// so the shape is fixed here where every package can reach it.
func ValidSlug(s string) bool {
	return slugRegex.MatchString(s)
}
