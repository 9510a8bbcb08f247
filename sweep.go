package mensa

import (
	"context"
	"errors"
	"time"

	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/calendar"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/period"
	"github.com/xraph/mensa/types"
)

// SweepResult reports one daily sweep run.
type SweepResult struct {
	Day         time.Time `json:"day"`
	Activated   int       `json:"activated"`
	Deactivated int       `json:"deactivated"`
}

// RunDailySweep reconciles every account's status with the calendar:
// accounts whose period now covers today flip to active, accounts whose
// period ended before today are closed out with a period_expired ledger
// entry and a recomputed funded/unfunded status.
//
// The sweep is idempotent. Re-running it on the same day finds nothing
// left to do; a failure on one account is logged and skipped so the rest
// of the batch still lands.
func (e *Engine) RunDailySweep(ctx context.Context, today time.Time) (*SweepResult, error) {
	started := e.now()
	today = calendar.Normalize(today)
	result := &SweepResult{Day: today}

	expired, err := e.store.ListAccountsToDeactivate(ctx, today)
	if err != nil {
		return nil, err
	}
	for _, stale := range expired {
		if err := e.expirePeriod(ctx, stale.ID, today); err != nil {
			e.logger.ErrorContext(ctx, "sweep: period expiry failed",
				"account_id", stale.ID.String(), "error", err)
			continue
		}
		result.Deactivated++
	}

	pending, err := e.store.ListAccountsToActivate(ctx, today)
	if err != nil {
		return nil, err
	}
	for _, dormant := range pending {
		if err := e.activatePeriod(ctx, dormant.ID, today); err != nil {
			e.logger.ErrorContext(ctx, "sweep: period activation failed",
				"account_id", dormant.ID.String(), "error", err)
			continue
		}
		result.Activated++
	}

	elapsed := e.now().Sub(started)
	e.plugins.EmitSweepCompleted(ctx, result.Activated, result.Deactivated, elapsed)
	e.logger.InfoContext(ctx, "daily sweep completed",
		"day", calendar.DayKey(today),
		"activated", result.Activated,
		"deactivated", result.Deactivated,
		"elapsed", elapsed,
	)

	return result, nil
}

// expirePeriod closes out one lapsed period. Re-read under retry so a
// concurrent removal or sweep run does not double-close it.
func (e *Engine) expirePeriod(ctx context.Context, accountID id.AccountID, today time.Time) error {
	return e.withRetry(ctx, func() error {
		a, err := e.store.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if !a.HasPeriod() || !calendar.Normalize(*a.PeriodEnd).Before(today) {
			return nil
		}

		start, end := *a.PeriodStart, *a.PeriodEnd
		ent := &entry.Entry{
			Entity:      types.NewEntity(),
			ID:          id.NewEntryID(),
			AccountID:   accountID,
			Reason:      entry.ReasonPeriodExpired,
			OccurredAt:  e.now(),
			PeriodStart: &start,
			PeriodEnd:   &end,
		}

		a.ClearPeriod()
		a.Status = account.RecomputeStatus(a.Tokens, false, a.Status)

		log, err := e.store.GetActivePeriodLog(ctx, accountID)
		if err != nil {
			if errors.Is(err, ErrNoPeriod) {
				// Log row already closed; still clear the account.
				return e.store.RecordBalanceChange(ctx, a, ent, nil)
			}
			return err
		}

		if err := e.store.RecordPeriodClosed(ctx, a, ent, log.ID, period.OutcomeExpired, e.now()); err != nil {
			return err
		}

		e.plugins.EmitPeriodExpired(ctx, a)
		return nil
	})
}

// activatePeriod flips one account whose scheduled period now covers
// today. Pure status recompute, no ledger entry.
func (e *Engine) activatePeriod(ctx context.Context, accountID id.AccountID, today time.Time) error {
	return e.withRetry(ctx, func() error {
		a, err := e.store.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}
		if !a.PeriodCovers(today) || a.Status == account.StatusActivePeriod || a.IsBlocked() {
			return nil
		}

		a.Status = account.RecomputeStatus(a.Tokens, true, a.Status)
		if err := e.store.UpdateAccount(ctx, a); err != nil {
			return err
		}

		e.plugins.EmitPeriodActivated(ctx, a)
		return nil
	})
}
