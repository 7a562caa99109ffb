package messenger

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
)

func TestEscape(t *testing.T) {
	assert.Equal(t, "&lt;b&gt;hi&lt;/b&gt; &amp; bye", Escape("<b>hi</b> & bye"))
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name string
		in   string
		max  int
		want string
	}{
		{name: "short", in: "hello", max: 10, want: "hello"},
		{name: "exact", in: "hello", max: 5, want: "hello"},
		{name: "cut", in: "hello world", max: 6, want: "hello…"},
		{name: "multibyte", in: "привет мир", max: 4, want: "при…"},
		{name: "no cap", in: "hello", max: 0, want: "hello"},
		{name: "single", in: "hello", max: 1, want: "…"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := Truncate(tc.in, tc.max)
			assert.Equal(t, tc.want, got)
			if tc.max > 0 {
				assert.LessOrEqual(t, utf8.RuneCountInString(got), tc.max)
			}
		})
	}
}

func TestSafeText_EscapesAfterTruncation(t *testing.T) {
	got := SafeText("  <script>alert(1)</script>  ", 8)
	assert.Equal(t, "&lt;script…", got)
}
