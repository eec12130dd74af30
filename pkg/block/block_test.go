package block

import (
	"testing"
	"time"
)

func TestIDString(t *testing.T) {
	ts := time.UnixMilli(1700000000123).UTC()

	tests := []struct {
		name string
		id   ID
		want string
	}{
		{"unsplit", NewID(5, ts), "block-5-1700000000123"},
		{"split slice 0", NewSliceID(5, ts, 0), "block-5-1700000000123-0"},
		{"split slice 2", NewSliceID(5, ts, 2), "block-5-1700000000123-2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.id.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseIDRoundTrip(t *testing.T) {
	ts := time.UnixMilli(1700000000123).UTC()

	for _, id := range []ID{
		NewID(0, ts),
		NewID(42, ts),
		NewSliceID(42, ts, 0),
		NewSliceID(42, ts, 9),
	} {
		parsed, err := ParseID(id.String())
		if err != nil {
			t.Fatalf("ParseID(%q) error = %v", id.String(), err)
		}
		if parsed.Stream != id.Stream {
			t.Errorf("Stream = %d, want %d", parsed.Stream, id.Stream)
		}
		if !parsed.Time.Equal(id.Time) {
			t.Errorf("Time = %v, want %v", parsed.Time, id.Time)
		}
		if parsed.Slice != id.Slice {
			t.Errorf("Slice = %d, want %d", parsed.Slice, id.Slice)
		}
		if parsed.Split != id.Split {
			t.Errorf("Split = %v, want %v", parsed.Split, id.Split)
		}
	}
}

func TestParseIDRejectsMalformed(t *testing.T) {
	for _, s := range []string{
		"",
		"block",
		"block-1",
		"chunk-1-1700000000123",
		"block-x-1700000000123",
		"block-1-notatime",
		"block-1-1700000000123-x",
		"block-1-1700000000123-0-extra",
	} {
		if _, err := ParseID(s); err == nil {
			t.Errorf("ParseID(%q) succeeded, want error", s)
		}
	}
}

func TestRecordSize(t *testing.T) {
	r := Record{Key: []byte("key"), Data: []byte("payload")}
	if got := r.Size(); got != 10 {
		t.Errorf("Size() = %d, want 10", got)
	}

	empty := Record{}
	if got := empty.Size(); got != 0 {
		t.Errorf("empty Size() = %d, want 0", got)
	}
}
