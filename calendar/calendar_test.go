package calendar

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func TestNormalize(t *testing.T) {
	noon := time.Date(2026, 3, 10, 12, 34, 56, 789, time.Local)
	got := Normalize(noon)
	if !got.Equal(day(2026, 3, 10)) {
		t.Errorf("got %v", got)
	}
}

func TestSameDay(t *testing.T) {
	morning := time.Date(2026, 3, 10, 7, 0, 0, 0, time.Local)
	evening := time.Date(2026, 3, 10, 22, 0, 0, 0, time.Local)
	if !SameDay(morning, evening) {
		t.Error("same calendar day should match")
	}
	if SameDay(morning, evening.AddDate(0, 0, 1)) {
		t.Error("different days should not match")
	}
}

func TestDaysInclusive(t *testing.T) {
	tests := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"single day", day(2026, 3, 10), day(2026, 3, 10), 1},
		{"full week", day(2026, 3, 9), day(2026, 3, 15), 7},
		{"end before start", day(2026, 3, 15), day(2026, 3, 9), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DaysInclusive(tt.start, tt.end); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}

func TestSetIsInvalid(t *testing.T) {
	set := NewSet([]*Holiday{
		{Day: day(2026, 3, 11), Reason: "teacher conference"},
	})

	if !set.IsInvalid(day(2026, 3, 11)) {
		t.Error("holiday should be invalid")
	}
	if !set.IsInvalid(time.Date(2026, 3, 11, 12, 0, 0, 0, time.Local)) {
		t.Error("any time on a holiday should be invalid")
	}
	if set.IsInvalid(day(2026, 3, 12)) {
		t.Error("ordinary day should be valid")
	}

	reason, ok := set.Reason(day(2026, 3, 11))
	if !ok || reason != "teacher conference" {
		t.Errorf("got %q, %v", reason, ok)
	}
}

func TestCountValidDays(t *testing.T) {
	set := NewSet([]*Holiday{
		{Day: day(2026, 3, 11), Reason: "holiday"},
		{Day: day(2026, 3, 13), Reason: "holiday"},
	})

	tests := []struct {
		name       string
		start, end time.Time
		want       int
	}{
		{"week with two holidays", day(2026, 3, 9), day(2026, 3, 15), 5},
		{"range outside holidays", day(2026, 3, 16), day(2026, 3, 20), 5},
		{"all holidays", day(2026, 3, 11), day(2026, 3, 11), 0},
		{"inverted range", day(2026, 3, 15), day(2026, 3, 9), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := set.CountValidDays(tt.start, tt.end); got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}
}
