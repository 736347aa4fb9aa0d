package archive

import (
	"strings"
	"testing"
)

func TestSanitizeFilename(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{name: "plain ascii", in: "My Book", want: "My Book"},
		{name: "cjk preserved", in: "海賊王 第1話", want: "海賊王 第1話"},
		{name: "separators replaced", in: "a/b\\c:d*e", want: "a_b_c_d_e"},
		{name: "safe punctuation kept", in: "vol.2 (final)-draft_1", want: "vol.2 (final)-draft_1"},
		{name: "empty falls back", in: "", want: "untitled"},
		{name: "only junk falls back", in: "///", want: "___"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := SanitizeFilename(tt.in); got != tt.want {
				t.Fatalf("expected %q got %q", tt.want, got)
			}
		})
	}
}

func TestSanitizeFilenameCapsLength(t *testing.T) {
	got := SanitizeFilename(strings.Repeat("字", 200))
	if n := len([]rune(got)); n != maxFilenameRunes {
		t.Fatalf("expected %d runes got %d", maxFilenameRunes, n)
	}
}
