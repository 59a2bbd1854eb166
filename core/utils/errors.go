package utils

import "strings"

// MaxMessageLength caps flattened error messages.
const MaxMessageLength = 1000

// FlattenError renders err as a single line suitable for structured logs:
// newlines become spaces, carriage returns and single quotes are dropped and the
// result is capped at MaxMessageLength characters.
func FlattenError(err error) string {
	if err == nil {
		return ""
	}
	return FlattenMessage(err.Error())
}

// FlattenMessage applies the FlattenError rules to a plain string.
func FlattenMessage(msg string) string {
	msg = strings.TrimSpace(msg)
	msg = strings.ReplaceAll(msg, "\n", " ")
	msg = strings.ReplaceAll(msg, "\r", "")
	msg = strings.ReplaceAll(msg, "'", "")
	runes := []rune(msg)
	if len(runes) > MaxMessageLength {
		runes = runes[:MaxMessageLength]
	}
	return string(runes)
}
