package errors

import (
	"strings"
	"testing"
)

func TestParseFailure_RawExcerpt(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		max  int
		want string
	}{
		{"short", `{"ideas":`, 20, `{"ideas":`},
		{"exact", "abcd", 4, "abcd"},
		{"cut", "abcdef", 3, "abc…"},
		{"runes", "ёжик в тумане", 4, "ёжик…"},
		{"no limit", "abcdef", -1, "abcdef"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &ParseFailure{Raw: tt.raw}
			if got := f.RawExcerpt(tt.max); got != tt.want {
				t.Errorf("RawExcerpt(%d) = %q, want %q", tt.max, got, tt.want)
			}
		})
	}
}

func TestParseFailure_Unwrap(t *testing.T) {
	f := &ParseFailure{MessageID: "42", ChunkIndex: 1, Model: "m", Raw: "{", Cause: ErrSchemaValidation}

	if !Is(f, ErrSchemaValidation) {
		t.Fatal("ParseFailure must unwrap to its cause")
	}

	if msg := f.Error(); !strings.Contains(msg, "message 42 chunk 1") || strings.Contains(msg, "{") {
		t.Errorf("unexpected error text %q", msg)
	}
}
