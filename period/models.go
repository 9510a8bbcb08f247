// Package period defines the free-meal period history log. The log records
// every assignment and removal so that past coverage remains auditable after
// the window leaves the account record.
package period

import (
	"time"

	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/types"
)

// Outcome records how a logged period ended.
type Outcome string

const (
	// OutcomeActive means the period is still assigned to the account.
	OutcomeActive Outcome = "active"
	// OutcomeExpired means the daily sweep retired the period after its
	// end date passed.
	OutcomeExpired Outcome = "expired"
	// OutcomeRemoved means the period was explicitly removed before its
	// end date. Removed periods leave no coverage history.
	OutcomeRemoved Outcome = "removed"
)

// LogEntry is one free-meal period in an account's history.
type LogEntry struct {
	types.Entity
	ID        id.PeriodLogID `json:"id"`
	AccountID id.AccountID   `json:"account_id"`

	Start time.Time `json:"start"`
	End   time.Time `json:"end"`

	Outcome    Outcome    `json:"outcome"`
	AssignedBy string     `json:"assigned_by"`
	ClosedAt   *time.Time `json:"closed_at,omitempty"`
}

// Covers reports whether the logged window includes day (inclusive bounds).
func (l *LogEntry) Covers(day time.Time) bool {
	d := truncate(day)

	return !d.Before(truncate(l.Start)) && !d.After(truncate(l.End))
}

// Overlaps reports whether the logged window intersects [start, end].
// Boundaries touching counts as overlap.
func (l *LogEntry) Overlaps(start, end time.Time) bool {
	s, e := truncate(start), truncate(end)

	return !truncate(l.End).Before(s) && !truncate(l.Start).After(e)
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
