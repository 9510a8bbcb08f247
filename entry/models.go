// Package entry defines the immutable ledger entry model. Entries are
// append-only: every token movement and period transition is recorded and
// never updated or deleted.
package entry

import (
	"time"

	"github.com/xraph/mensa/actor"
	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/types"
)

// Reason classifies why a ledger entry was written.
type Reason string

const (
	// ReasonUse is a normal consumption debit (-1 token).
	ReasonUse Reason = "use"
	// ReasonUseWithDebt is a consumption that drove the balance below
	// zero. The resulting debt blocks future period assignment until
	// settled.
	ReasonUseWithDebt Reason = "use_with_debt"
	// ReasonUseInPeriod is a consumption during a free-meal period; it
	// carries a zero token change.
	ReasonUseInPeriod Reason = "use_in_period"
	// ReasonPayment credits tokens purchased through a payment.
	ReasonPayment Reason = "payment"
	// ReasonManualAdjust is an admin-issued signed correction.
	ReasonManualAdjust Reason = "manual_adjust"
	// ReasonPeriodAssigned marks a free-meal period being set.
	ReasonPeriodAssigned Reason = "period_assigned"
	// ReasonPeriodRemoved marks a free-meal period being removed early.
	ReasonPeriodRemoved Reason = "period_removed"
	// ReasonPeriodExpired marks the daily sweep retiring a lapsed period.
	ReasonPeriodExpired Reason = "period_expired"
)

// Valid reports whether r is a known reason.
func (r Reason) Valid() bool {
	switch r {
	case ReasonUse, ReasonUseWithDebt, ReasonUseInPeriod, ReasonPayment,
		ReasonManualAdjust, ReasonPeriodAssigned, ReasonPeriodRemoved,
		ReasonPeriodExpired:
		return true
	}

	return false
}

// IsConsumption reports whether r records a meal being taken.
func (r Reason) IsConsumption() bool {
	return r == ReasonUse || r == ReasonUseWithDebt || r == ReasonUseInPeriod
}

// Entry is one immutable ledger record for an account.
//
// Change is the signed token delta (zero for period events and in-period
// consumption). OccurredAt is when the entry was written; UsedOn is the
// normalized day a consumption applies to, which may differ from OccurredAt
// for elevated-role backdated consumption.
type Entry struct {
	types.Entity
	ID        id.EntryID   `json:"id"`
	AccountID id.AccountID `json:"account_id"`

	Change int64  `json:"change"`
	Reason Reason `json:"reason"`
	Note   string `json:"note,omitempty"`

	OccurredAt time.Time  `json:"occurred_at"`
	UsedOn     *time.Time `json:"used_on,omitempty"`

	// Period events snapshot the window they refer to.
	PeriodStart *time.Time `json:"period_start,omitempty"`
	PeriodEnd   *time.Time `json:"period_end,omitempty"`

	// PaymentID links payment-reason entries to their payment record.
	PaymentID id.PaymentID `json:"payment_id,omitempty"`

	PerformedBy     string     `json:"performed_by"`
	PerformedByRole actor.Role `json:"performed_by_role"`
}

// ListOpts filters ledger listings. Zero values match all.
type ListOpts struct {
	AccountID id.AccountID
	Reason    Reason
	From      time.Time
	To        time.Time
	Limit     int
	Offset    int
}
