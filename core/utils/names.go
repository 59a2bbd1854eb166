package utils

import (
	"strings"
	"unicode"
)

// SafeName turns a dataset path or URL into a string usable in a file name.
// Path separators become underscores, anything other than letters, digits,
// spaces and underscores is dropped, trailing spaces are trimmed and only the
// last max characters are kept.
func SafeName(s string, max int) string {
	s = strings.NewReplacer("/", "_", "\\", "_").Replace(s)

	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '_' {
			b.WriteRune(r)
		}
	}

	runes := []rune(strings.TrimRight(b.String(), " "))
	if max > 0 && len(runes) > max {
		runes = runes[len(runes)-max:]
	}
	return string(runes)
}
