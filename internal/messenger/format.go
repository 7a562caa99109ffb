package messenger

import (
	"html"
	"strings"
	"unicode/utf8"
)

// Ellipsis marks truncated user content.
const Ellipsis = "…"

// Escape makes user content safe inside an HTML parse-mode message.
func Escape(s string) string {
	return html.EscapeString(s)
}

// Truncate caps s at max runes, ending with Ellipsis when shortened.
func Truncate(s string, max int) string {
	if max <= 0 || utf8.RuneCountInString(s) <= max {
		return s
	}
	if max == 1 {
		return Ellipsis
	}

	var b strings.Builder
	n := 0
	for _, r := range s {
		if n == max-1 {
			break
		}
		b.WriteRune(r)
		n++
	}
	return strings.TrimRightFunc(b.String(), func(r rune) bool { return r == ' ' || r == '\n' }) + Ellipsis
}

// SafeText truncates then escapes, so escaping never gets cut in half.
func SafeText(s string, max int) string {
	return Escape(Truncate(strings.TrimSpace(s), max))
}
