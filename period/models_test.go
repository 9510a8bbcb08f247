package period

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func TestOverlaps(t *testing.T) {
	logged := &LogEntry{Start: day(2026, 3, 9), End: day(2026, 3, 15)}

	tests := []struct {
		name       string
		start, end time.Time
		want       bool
	}{
		{"identical", day(2026, 3, 9), day(2026, 3, 15), true},
		{"contained", day(2026, 3, 10), day(2026, 3, 12), true},
		{"containing", day(2026, 3, 1), day(2026, 3, 31), true},
		{"touching start", day(2026, 3, 1), day(2026, 3, 9), true},
		{"touching end", day(2026, 3, 15), day(2026, 3, 20), true},
		{"entirely before", day(2026, 3, 1), day(2026, 3, 8), false},
		{"entirely after", day(2026, 3, 16), day(2026, 3, 20), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := logged.Overlaps(tt.start, tt.end); got != tt.want {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestCovers(t *testing.T) {
	logged := &LogEntry{Start: day(2026, 3, 9), End: day(2026, 3, 15)}

	if !logged.Covers(day(2026, 3, 9)) || !logged.Covers(day(2026, 3, 15)) {
		t.Error("bounds are inclusive")
	}
	if logged.Covers(day(2026, 3, 8)) || logged.Covers(day(2026, 3, 16)) {
		t.Error("days outside the window should not be covered")
	}
}
