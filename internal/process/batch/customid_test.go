package batch

import (
	"testing"

	"github.com/lueurxax/trade-idea-parser/internal/core/errors"
)

func TestParseCustomID(t *testing.T) {
	tests := []struct {
		name      string
		customID  string
		wantID    string
		wantChunk int
		wantErr   bool
	}{
		{"large numeric id keeps every digit", "msg-1380123456789012345-chunk-2", "1380123456789012345", 2, false},
		{"id above int64", "msg-99999999999999999999-chunk-0", "99999999999999999999", 0, false},
		{"non numeric id", "msg-abc-def-chunk-11", "abc-def", 11, false},
		{"id containing separator", "msg-a-chunk-b-chunk-3", "a-chunk-b", 3, false},
		{"missing prefix", "1380-chunk-2", "", 0, true},
		{"missing chunk", "msg-1380", "", 0, true},
		{"empty id", "msg--chunk-1", "", 0, true},
		{"negative chunk", "msg-1-chunk--1", "", 0, true},
		{"non numeric chunk", "msg-1-chunk-x", "", 0, true},
		{"padded chunk", "msg-1-chunk-01", "", 0, true},
		{"float coerced id is still a string", "msg-1.380123456789012e+18-chunk-0", "1.380123456789012e+18", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, chunk, err := ParseCustomID(tt.customID)
			if tt.wantErr {
				if !errors.Is(err, errors.ErrMalformedCustomID) {
					t.Fatalf("ParseCustomID(%q) error = %v, want ErrMalformedCustomID", tt.customID, err)
				}

				return
			}

			if err != nil {
				t.Fatalf("ParseCustomID(%q) unexpected error: %v", tt.customID, err)
			}

			if id != tt.wantID || chunk != tt.wantChunk {
				t.Errorf("ParseCustomID(%q) = (%q, %d), want (%q, %d)", tt.customID, id, chunk, tt.wantID, tt.wantChunk)
			}
		})
	}
}

func TestFormatCustomID_RoundTrip(t *testing.T) {
	if got := FormatCustomID("1380123456789012345", 2); got != "msg-1380123456789012345-chunk-2" {
		t.Errorf("FormatCustomID = %q", got)
	}

	for _, id := range []string{"1", "1380123456789012345", "abc", "x-chunk-y"} {
		got, chunk, err := ParseCustomID(FormatCustomID(id, 7))
		if err != nil {
			t.Fatalf("round trip %q: %v", id, err)
		}

		if got != id || chunk != 7 {
			t.Errorf("round trip %q = (%q, %d)", id, got, chunk)
		}
	}
}
