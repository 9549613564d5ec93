// Package naming derives safe output filenames.
package naming

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxStemLength bounds a sanitized stem, in characters.
const MaxStemLength = 200

// DefaultStem is used when a title sanitizes to nothing.
const DefaultStem = "audio"

var (
	invalidChars = regexp.MustCompile(`[\\/:*?"<>|]`)
	controlChars = regexp.MustCompile(`[\x00-\x1f\x7f]`)
	separators   = regexp.MustCompile(`[_\s]+`)
)

// Sanitize turns a media title into a filename stem that is valid on
// Windows, macOS and Linux. Empty results fall back to DefaultStem.
func Sanitize(title string) string {
	return SanitizeWithFallback(title, DefaultStem)
}

// SanitizeWithFallback is Sanitize with a caller-supplied fallback.
func SanitizeWithFallback(title, fallback string) string {
	if title == "" {
		return fallback
	}

	s := invalidChars.ReplaceAllString(title, "_")
	s = controlChars.ReplaceAllString(s, "")
	s = separators.ReplaceAllString(s, "_")
	s = strings.Trim(s, " _")

	if utf8.RuneCountInString(s) > MaxStemLength {
		s = string([]rune(s)[:MaxStemLength])
		s = strings.TrimRight(s, " _")
	}

	if s == "" {
		return fallback
	}
	return s
}
