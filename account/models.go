// Package account defines the meal-credit balance account and its
// derived status model.
package account

import (
	"time"

	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/types"
)

// Status is the derived state of an account. It is always recomputed from
// balance and period data, never set directly, except for Blocked which is
// an administrative override.
type Status string

const (
	// StatusActivePeriod means a free-meal period covers today.
	StatusActivePeriod Status = "active_period"
	// StatusFunded means the account holds a positive token balance.
	StatusFunded Status = "funded"
	// StatusUnfunded means tokens are zero or negative and no period applies.
	StatusUnfunded Status = "unfunded"
	// StatusBlocked is an administrative hold. It is sticky: recomputation
	// never clears it.
	StatusBlocked Status = "blocked"
)

// Valid reports whether s is a known status value.
func (s Status) Valid() bool {
	switch s {
	case StatusActivePeriod, StatusFunded, StatusUnfunded, StatusBlocked:
		return true
	}

	return false
}

// Account is a meal-credit balance for one student.
//
// Tokens is a signed count of meal credits; negative values represent debt
// accrued by consuming without balance. PeriodStart and
// PeriodEnd bound the optional free-meal window (inclusive, local days);
// both are nil when no period is assigned.
type Account struct {
	types.Entity
	ID       id.AccountID `json:"id"`
	OwnerRef string       `json:"owner_ref"` // external student registry key
	Tokens   int64        `json:"tokens"`
	Status   Status       `json:"status"`

	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`

	// Version increments on every mutation and guards concurrent updates.
	Version int64 `json:"version"`

	Metadata map[string]any `json:"metadata,omitempty"`
}

// HasPeriod reports whether a free-meal period is assigned.
func (a *Account) HasPeriod() bool {
	return a.PeriodStart != nil && a.PeriodEnd != nil
}

// PeriodCovers reports whether the assigned period includes day.
func (a *Account) PeriodCovers(day time.Time) bool {
	if !a.HasPeriod() {
		return false
	}

	d := truncate(day)

	return !d.Before(truncate(*a.PeriodStart)) && !d.After(truncate(*a.PeriodEnd))
}

// ClearPeriod removes the assigned period without touching tokens.
func (a *Account) ClearPeriod() {
	a.PeriodStart = nil
	a.PeriodEnd = nil
}

// HasDebt reports whether the token balance is negative.
func (a *Account) HasDebt() bool {
	return a.Tokens < 0
}

// IsBlocked reports whether the account is under administrative hold.
func (a *Account) IsBlocked() bool {
	return a.Status == StatusBlocked
}

// RecomputeStatus derives the status an account should carry given its
// token balance, whether a free period covers the reference day, and its
// current status. Blocked is sticky and always wins.
//
// Precedence below Blocked: active period, then positive balance, then
// unfunded.
func RecomputeStatus(tokens int64, inPeriod bool, current Status) Status {
	if current == StatusBlocked {
		return StatusBlocked
	}

	switch {
	case inPeriod:
		return StatusActivePeriod
	case tokens > 0:
		return StatusFunded
	default:
		return StatusUnfunded
	}
}

// Refresh recomputes and applies the account status as of day.
func (a *Account) Refresh(day time.Time) {
	a.Status = RecomputeStatus(a.Tokens, a.PeriodCovers(day), a.Status)
}

func truncate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// ListOpts filters account listings.
type ListOpts struct {
	Status   Status // empty matches all
	OwnerRef string // empty matches all
	Limit    int
	Offset   int
}
