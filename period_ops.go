package mensa

import (
	"context"
	"time"

	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/actor"
	"github.com/xraph/mensa/calendar"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/payment"
	"github.com/xraph/mensa/period"
	"github.com/xraph/mensa/types"
)

// SetPeriodRequest assigns a free-meal period to an account.
//
// Paid is true when the period was purchased; the price is the number of
// valid days times the owner's per-day tier price, and a ticket, payment
// and receipt are issued exactly as for a token top-up.
type SetPeriodRequest struct {
	Start time.Time   `json:"start"`
	End   time.Time   `json:"end"`
	Paid  bool        `json:"paid"`
	Note  string      `json:"note,omitempty"`
	Actor actor.Actor `json:"actor"`
}

// SetPeriodResult reports the committed assignment.
type SetPeriodResult struct {
	Account *account.Account `json:"account"`
	Log     *period.LogEntry `json:"log"`
	Active  bool             `json:"active"`
	Payment *payment.Payment `json:"payment,omitempty"`
}

// SetPeriod assigns a free-meal period.
//
// The range must span at least the configured minimum of valid
// (non-holiday) days with neither endpoint on a holiday, the account must
// carry no debt, the range must not overlap any previously held period,
// and a backdated start requires an elevated role. A held period that has
// already lapsed is closed out first, exactly as the daily sweep would
// close it, so assignment never has to wait for the next sweep run.
func (e *Engine) SetPeriod(ctx context.Context, accountID id.AccountID, req SetPeriodRequest) (*SetPeriodResult, error) {
	today := e.today()
	start := calendar.Normalize(req.Start)
	end := calendar.Normalize(req.End)

	if end.Before(start) {
		return nil, ErrPeriodInverted
	}
	if start.Before(today) && !req.Actor.Role.Elevated() {
		return nil, ErrPeriodBackdated
	}

	holidays, err := e.holidaySet(ctx, start, end)
	if err != nil {
		return nil, err
	}
	if holidays.IsInvalid(start) {
		return nil, ValidationError{Field: "start", Message: "falls on a holiday"}
	}
	if holidays.IsInvalid(end) {
		return nil, ValidationError{Field: "end", Message: "falls on a holiday"}
	}
	if holidays.CountValidDays(start, end) < e.minPeriodDays {
		return nil, ErrPeriodTooShort
	}

	// A lapsed period the sweep has not cleared yet no longer blocks a
	// new assignment; close it out here the way the sweep would.
	if err := e.expirePeriod(ctx, accountID, today); err != nil {
		return nil, err
	}

	var result *SetPeriodResult
	err = e.withRetry(ctx, func() error {
		a, err := e.store.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		if a.HasDebt() {
			return ErrOutstandingDebt
		}
		if a.HasPeriod() {
			return ErrPeriodAlreadySet
		}

		history, err := e.store.ListPeriodLog(ctx, accountID)
		if err != nil {
			return err
		}
		for _, held := range history {
			// Removed periods never took effect; they do not block reuse
			// of their range.
			if held.Outcome == period.OutcomeRemoved {
				continue
			}
			if held.Overlaps(start, end) {
				return ErrPeriodOverlap
			}
		}

		now := e.now()

		var p *payment.Payment
		if req.Paid {
			price := e.priceFor(ctx, a)
			validDays := int64(holidays.CountValidDays(start, end))
			p = &payment.Payment{
				Entity:     types.NewEntity(),
				ID:         id.NewPaymentID(),
				AccountID:  accountID,
				UnitPrice:  price.PeriodDay,
				Amount:     price.PeriodDay.Multiply(validDays),
				IssuedAt:   now,
				ReceivedBy: req.Actor.ID,
			}
		}

		log := &period.LogEntry{
			Entity:     types.NewEntity(),
			ID:         id.NewPeriodLogID(),
			AccountID:  accountID,
			Start:      start,
			End:        end,
			Outcome:    period.OutcomeActive,
			AssignedBy: req.Actor.ID,
		}

		ent := &entry.Entry{
			Entity:          types.NewEntity(),
			ID:              id.NewEntryID(),
			AccountID:       accountID,
			Reason:          entry.ReasonPeriodAssigned,
			Note:            req.Note,
			OccurredAt:      now,
			PeriodStart:     &start,
			PeriodEnd:       &end,
			PerformedBy:     req.Actor.ID,
			PerformedByRole: req.Actor.Role,
		}

		a.PeriodStart, a.PeriodEnd = &start, &end
		a.Status = account.RecomputeStatus(a.Tokens, a.PeriodCovers(today), a.Status)

		if err := e.store.RecordPeriodAssigned(ctx, a, ent, log, p); err != nil {
			return err
		}

		result = &SetPeriodResult{
			Account: a,
			Log:     log,
			Active:  a.PeriodCovers(today),
			Payment: p,
		}

		e.plugins.EmitPeriodAssigned(ctx, a, log)
		if p != nil {
			e.plugins.EmitPaymentIssued(ctx, p)
			e.deliverPaymentReceipt(ctx, a, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "period assigned",
		"account_id", accountID.String(),
		"start", calendar.DayKey(start),
		"end", calendar.DayKey(end),
		"active", result.Active,
		"paid", req.Paid,
	)

	return result, nil
}

// RemovePeriodRequest removes an account's free-meal period early.
type RemovePeriodRequest struct {
	Note  string      `json:"note,omitempty"`
	Actor actor.Actor `json:"actor"`
}

// RemovePeriodResult reports the committed removal.
type RemovePeriodResult struct {
	Account *account.Account `json:"account"`
	Log     *period.LogEntry `json:"log"`
}

// RemovePeriod removes the assigned period. Only a period that covers
// today can be removed; scheduled or lapsed periods cannot. The history
// log keeps the record with a removed outcome, and removed ranges do not
// block future assignment.
func (e *Engine) RemovePeriod(ctx context.Context, accountID id.AccountID, req RemovePeriodRequest) (*RemovePeriodResult, error) {
	today := e.today()

	var result *RemovePeriodResult
	err := e.withRetry(ctx, func() error {
		a, err := e.store.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		if !a.HasPeriod() {
			return ErrNoPeriod
		}
		if !a.PeriodCovers(today) {
			return ErrPeriodNotActive
		}

		log, err := e.store.GetActivePeriodLog(ctx, accountID)
		if err != nil {
			return err
		}

		start, end := *a.PeriodStart, *a.PeriodEnd
		ent := &entry.Entry{
			Entity:          types.NewEntity(),
			ID:              id.NewEntryID(),
			AccountID:       accountID,
			Reason:          entry.ReasonPeriodRemoved,
			Note:            req.Note,
			OccurredAt:      e.now(),
			PeriodStart:     &start,
			PeriodEnd:       &end,
			PerformedBy:     req.Actor.ID,
			PerformedByRole: req.Actor.Role,
		}

		a.ClearPeriod()
		a.Status = account.RecomputeStatus(a.Tokens, false, a.Status)

		if err := e.store.RecordPeriodClosed(ctx, a, ent, log.ID, period.OutcomeRemoved, e.now()); err != nil {
			return err
		}

		log.Outcome = period.OutcomeRemoved
		result = &RemovePeriodResult{Account: a, Log: log}

		e.plugins.EmitPeriodRemoved(ctx, a, log)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "period removed",
		"account_id", accountID.String(),
		"actor", req.Actor.ID,
	)

	return result, nil
}
