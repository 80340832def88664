package dateparse

import (
	"testing"
	"time"
)

// Wednesday, 4 March 2026.
var wednesday = time.Date(2026, 3, 4, 9, 30, 0, 0, time.UTC)

func TestResolveOffsets(t *testing.T) {
	tests := []struct {
		text     string
		wantDay  int
		wantHit  string
	}{
		{"please finish this by tomorrow", 5, "tomorrow"},
		{"necesito esto para mañana", 5, "mañana"},
		{"gửi báo cáo ngày mai nhé", 5, "ngày mai"},
		{"need it by eod", 4, "eod"},
		{"wrap this up today", 4, "today"},
		{"let's revisit next week", 11, "next week"},
		{"deliverable in 3 days", 7, "in 3 days"},
	}

	for _, tt := range tests {
		got, hit, ok := Resolve(tt.text, wednesday)
		if !ok {
			t.Errorf("Resolve(%q) no match, want day %d", tt.text, tt.wantDay)
			continue
		}
		if got.Day() != tt.wantDay {
			t.Errorf("Resolve(%q) day = %d, want %d", tt.text, got.Day(), tt.wantDay)
		}
		if hit != tt.wantHit {
			t.Errorf("Resolve(%q) matched %q, want %q", tt.text, hit, tt.wantHit)
		}
	}
}

func TestResolveUpcomingWeekday(t *testing.T) {
	got, _, ok := Resolve("please review by friday", wednesday)
	if !ok {
		t.Fatalf("Resolve no match, want upcoming friday")
	}
	if got.Weekday() != time.Friday {
		t.Fatalf("weekday = %v, want Friday", got.Weekday())
	}
	if !got.After(wednesday) {
		t.Fatalf("resolved date %v not after reference %v", got, wednesday)
	}
	if got.Day() != 6 {
		t.Fatalf("day = %d, want 6 (the upcoming friday)", got.Day())
	}
}

func TestResolveSameWeekdayMeansNextWeek(t *testing.T) {
	got, _, ok := Resolve("by wednesday", wednesday)
	if !ok {
		t.Fatalf("Resolve no match")
	}
	if got.Day() != 11 {
		t.Fatalf("day = %d, want 11 (a full week out)", got.Day())
	}
}

func TestResolveNoMatch(t *testing.T) {
	if _, _, ok := Resolve("no deadline mentioned here", wednesday); ok {
		t.Fatalf("Resolve matched, want no match")
	}
}
