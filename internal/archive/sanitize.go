package archive

import (
	"strings"
	"unicode"
)

const maxFilenameRunes = 80

// SanitizeFilename replaces every character outside the allow-list (letters,
// digits, and a small safe punctuation set) with an underscore and caps the
// result length. Titles on the source site are frequently CJK, so the
// allow-list is unicode-aware rather than ASCII.
func SanitizeFilename(name string) string {
	name = strings.TrimSpace(name)
	var b strings.Builder
	count := 0
	for _, r := range name {
		if count >= maxFilenameRunes {
			break
		}
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == ' ' || r == '.' || r == '-' || r == '_' || r == '(' || r == ')':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
		count++
	}
	out := strings.TrimSpace(b.String())
	if out == "" {
		return "untitled"
	}
	return out
}
