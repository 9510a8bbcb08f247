package mensa

import (
	"context"
	"time"

	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/actor"
	"github.com/xraph/mensa/calendar"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/notify"
	"github.com/xraph/mensa/types"
)

// ConsumeRequest asks to record one meal for an account.
//
// Date selects the consumption day; nil means today. Only elevated roles
// may consume on a day other than today, and never on a future day.
type ConsumeRequest struct {
	Date  *time.Time  `json:"date,omitempty"`
	Note  string      `json:"note,omitempty"`
	Actor actor.Actor `json:"actor"`
}

// ConsumeResult reports the committed consumption.
type ConsumeResult struct {
	Entry           *entry.Entry `json:"entry"`
	RemainingTokens int64        `json:"remaining_tokens"`
	InPeriod        bool         `json:"in_period"`
}

// Consume records one meal consumption, at most once per account per
// calendar day.
//
// During a free-meal period the balance is untouched; otherwise one token
// is debited, going negative (debt) when no balance remains. Blocked
// accounts without period coverage or positive balance are rejected.
func (e *Engine) Consume(ctx context.Context, accountID id.AccountID, req ConsumeRequest) (*ConsumeResult, error) {
	today := e.today()

	day := today
	if req.Date != nil {
		day = calendar.Normalize(*req.Date)
		if !day.Equal(today) {
			if !req.Actor.Role.Elevated() {
				return nil, ErrCustomDateForbidden
			}
			if day.After(today) {
				return nil, ErrFutureDate
			}
		}
	}

	holidays, err := e.holidaySet(ctx, day, day)
	if err != nil {
		return nil, err
	}
	if holidays.IsInvalid(day) {
		return nil, ErrInvalidDay
	}

	var result *ConsumeResult
	err = e.withRetry(ctx, func() error {
		a, err := e.store.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		used, err := e.store.HasConsumptionOn(ctx, accountID, day)
		if err != nil {
			return err
		}
		if used {
			return ErrAlreadyUsedToday
		}

		inPeriod := a.PeriodCovers(day)
		if a.IsBlocked() && !inPeriod && a.Tokens <= 0 {
			return ErrAccountBlocked
		}

		ent := &entry.Entry{
			Entity:          types.NewEntity(),
			ID:              id.NewEntryID(),
			AccountID:       accountID,
			Reason:          entry.ReasonUseInPeriod,
			Note:            req.Note,
			OccurredAt:      e.now(),
			UsedOn:          &day,
			PerformedBy:     req.Actor.ID,
			PerformedByRole: req.Actor.Role,
		}

		if !inPeriod {
			a.Tokens--
			ent.Change = -1
			if a.Tokens < 0 {
				ent.Reason = entry.ReasonUseWithDebt
			} else {
				ent.Reason = entry.ReasonUse
			}
		}

		a.Status = account.RecomputeStatus(a.Tokens, a.PeriodCovers(today), a.Status)

		if err := e.store.RecordConsumption(ctx, a, ent); err != nil {
			return err
		}

		result = &ConsumeResult{Entry: ent, RemainingTokens: a.Tokens, InPeriod: inPeriod}

		e.plugins.EmitConsumptionRecorded(ctx, a, ent)
		e.sendUseReceipt(ctx, a, ent, inPeriod)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "consumption recorded",
		"account_id", accountID.String(),
		"day", calendar.DayKey(day),
		"reason", string(result.Entry.Reason),
		"remaining", result.RemainingTokens,
	)

	return result, nil
}

// sendUseReceipt delivers the consumption confirmation best-effort. The
// ledger write has already committed; failures are logged and swallowed.
func (e *Engine) sendUseReceipt(ctx context.Context, a *account.Account, ent *entry.Entry, inPeriod bool) {
	if e.directory == nil {
		return
	}

	owner, err := e.directory.GetOwner(ctx, a.OwnerRef)
	if err != nil {
		e.logger.WarnContext(ctx, "use receipt skipped: owner lookup failed",
			"account_id", a.ID.String(), "error", err)
		return
	}

	receipt := notify.UseReceipt{
		Email:      owner.Email,
		OwnerName:  owner.Name,
		UsedOn:     *ent.UsedOn,
		TokensLeft: a.Tokens,
		InPeriod:   inPeriod,
	}
	if err := e.notifier.SendUseReceipt(ctx, receipt); err != nil {
		e.logger.WarnContext(ctx, "use receipt delivery failed",
			"account_id", a.ID.String(), "error", err)
	}
}

// holidaySet loads the holiday records covering [from, to] as a Set.
func (e *Engine) holidaySet(ctx context.Context, from, to time.Time) (*calendar.Set, error) {
	holidays, err := e.store.ListHolidays(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return calendar.NewSet(holidays), nil
}
