package pipeline

import (
	"regexp"
	"strings"
)

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9]+`)
	slugDashes  = regexp.MustCompile(`-{2,}`)
)

// Slugify lowercases, replaces non-alphanumeric runs with a single dash, and
// trims dashes. Idempotent. Returns "" when nothing survives; callers fall
// back to a title-derived slug and finally "untitled".
func Slugify(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = slugInvalid.ReplaceAllString(s, "-")
	s = slugDashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}

// SlugOrFallback resolves the slug for an article: the proposed slug, then a
// slug derived from the title, then "untitled".
func SlugOrFallback(proposed, title string) string {
	if slug := Slugify(proposed); slug != "" {
		return slug
	}
	if slug := Slugify(title); slug != "" {
		return slug
	}
	return "untitled"
}
