package slots

import (
	"testing"
	"time"
)

func TestFormatSlot(t *testing.T) {
	s := Slot{
		Start: time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		End:   time.Date(2026, 3, 10, 14, 30, 0, 0, time.UTC),
	}

	if got := FormatSlot(s, "UTC", false); got != "14:00 – 14:30" {
		t.Fatalf("unexpected format: %q", got)
	}
	if got := FormatSlot(s, "America/New_York", false); got != "10:00 – 10:30" {
		t.Fatalf("unexpected EDT format: %q", got)
	}
	if got := FormatSlot(s, "Nowhere/Invalid", false); got != "14:00 – 14:30" {
		t.Fatalf("unknown timezone should fall back to UTC, got %q", got)
	}
	if got := FormatSlot(s, "UTC", true); got != "Tue, Mar 10 2026 14:00 – 14:30" {
		t.Fatalf("unexpected dated format: %q", got)
	}
}

func TestNextAvailable(t *testing.T) {
	if _, ok := NextAvailable(nil); ok {
		t.Fatalf("empty map should have no next slot")
	}

	s1 := Slot{Start: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)}
	s2 := Slot{Start: time.Date(2026, 3, 12, 9, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 12, 9, 30, 0, 0, time.UTC)}
	got, ok := NextAvailable(map[string][]Slot{
		"2026-03-12": {s2},
		"2026-03-10": {s1},
	})
	if !ok {
		t.Fatalf("expected a next slot")
	}
	if !got.Start.Equal(s1.Start) {
		t.Fatalf("expected earliest day's first slot, got %s", got.Start)
	}
}
