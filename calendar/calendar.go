// Package calendar resolves which days are valid for meal consumption and
// for special-period boundaries. Holidays are owned by the external
// calendar service; the engine only reads them.
package calendar

import (
	"time"

	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/types"
)

// DayFormat is the canonical storage format for calendar days.
const DayFormat = "2006-01-02"

// Holiday marks a single calendar day as invalid for consumption and
// period boundaries.
type Holiday struct {
	types.Entity
	ID        id.HolidayID `json:"id"`
	Day       time.Time    `json:"day"` // normalized to local midnight
	Reason    string       `json:"reason"`
	CreatedBy string       `json:"created_by,omitempty"`
}

// Normalize truncates t to local midnight. All day comparisons in the
// engine go through this.
func Normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return Normalize(a).Equal(Normalize(b))
}

// DayKey renders a normalized day in DayFormat.
func DayKey(t time.Time) string {
	return Normalize(t).Format(DayFormat)
}

// DaysInclusive counts calendar days between start and end, both included.
// Returns 0 when end precedes start.
func DaysInclusive(start, end time.Time) int {
	s, e := Normalize(start), Normalize(end)
	if e.Before(s) {
		return 0
	}
	return int(e.Sub(s).Hours()/24) + 1
}

// Set is an immutable snapshot of holidays used to answer validity queries
// for one engine operation. Build it fresh per operation from the store.
type Set struct {
	days map[string]string // day key -> reason
}

// NewSet builds a Set from holiday records.
func NewSet(holidays []*Holiday) *Set {
	s := &Set{days: make(map[string]string, len(holidays))}
	for _, h := range holidays {
		s.days[DayKey(h.Day)] = h.Reason
	}
	return s
}

// IsInvalid reports whether day is marked as a holiday.
func (s *Set) IsInvalid(day time.Time) bool {
	_, ok := s.days[DayKey(day)]
	return ok
}

// Reason returns the human-readable reason a day is invalid.
func (s *Set) Reason(day time.Time) (string, bool) {
	r, ok := s.days[DayKey(day)]
	return r, ok
}

// CountValidDays returns the inclusive day count between start and end
// minus the invalid days in that range.
func (s *Set) CountValidDays(start, end time.Time) int {
	if DaysInclusive(start, end) == 0 {
		return 0
	}

	valid := 0
	for d := Normalize(start); !d.After(Normalize(end)); d = d.AddDate(0, 0, 1) {
		if !s.IsInvalid(d) {
			valid++
		}
	}

	return valid
}
