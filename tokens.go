package mensa

import (
	"context"

	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/actor"
	"github.com/xraph/mensa/directory"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/notify"
	"github.com/xraph/mensa/payment"
	"github.com/xraph/mensa/pricing"
	"github.com/xraph/mensa/types"
)

// AddTokensRequest credits purchased tokens to an account.
type AddTokensRequest struct {
	Delta int64       `json:"delta"`
	Note  string      `json:"note,omitempty"`
	Actor actor.Actor `json:"actor"`
}

// AddTokensResult reports the committed top-up.
type AddTokensResult struct {
	Account *account.Account `json:"account"`
	Entry   *entry.Entry     `json:"entry"`
	Payment *payment.Payment `json:"payment,omitempty"`
}

// AddTokens credits tokens bought through a payment. The price follows
// the owner's level and group; the payment, its sequential ticket, the
// balance change, and the paired ledger entry commit atomically. The
// receipt email is attempted after commit, best-effort.
//
// Top-ups are rejected while a free-meal period covers today; decreases
// must route through Consume or Adjust.
func (e *Engine) AddTokens(ctx context.Context, accountID id.AccountID, req AddTokensRequest) (*AddTokensResult, error) {
	if req.Delta == 0 {
		return nil, ErrZeroDelta
	}
	if req.Delta < 0 {
		return nil, ErrNegativeDelta
	}

	var result *AddTokensResult
	err := e.withRetry(ctx, func() error {
		a, err := e.store.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		if a.PeriodCovers(e.today()) {
			return ErrTokensDuringPeriod
		}

		price := e.priceFor(ctx, a)
		now := e.now()

		p := &payment.Payment{
			Entity:     types.NewEntity(),
			ID:         id.NewPaymentID(),
			AccountID:  accountID,
			Tokens:     req.Delta,
			UnitPrice:  price.Token,
			Amount:     price.Token.Multiply(req.Delta),
			IssuedAt:   now,
			ReceivedBy: req.Actor.ID,
		}

		ent := &entry.Entry{
			Entity:          types.NewEntity(),
			ID:              id.NewEntryID(),
			AccountID:       accountID,
			Change:          req.Delta,
			Reason:          entry.ReasonPayment,
			Note:            req.Note,
			OccurredAt:      now,
			PerformedBy:     req.Actor.ID,
			PerformedByRole: req.Actor.Role,
		}

		a.Tokens += req.Delta
		a.Status = account.RecomputeStatus(a.Tokens, a.PeriodCovers(e.today()), a.Status)

		if err := e.store.RecordBalanceChange(ctx, a, ent, p); err != nil {
			return err
		}

		result = &AddTokensResult{Account: a, Entry: ent, Payment: p}

		e.plugins.EmitTokensChanged(ctx, a, ent)
		e.plugins.EmitPaymentIssued(ctx, p)
		e.deliverPaymentReceipt(ctx, a, p)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "tokens added",
		"account_id", accountID.String(),
		"delta", req.Delta,
		"ticket", result.Payment.TicketNumber,
		"amount", result.Payment.Amount.String(),
	)

	return result, nil
}

// AdjustRequest is an admin-only signed balance correction. It writes an
// audited manual_adjust ledger entry and never issues a payment.
type AdjustRequest struct {
	Delta int64       `json:"delta"`
	Note  string      `json:"note"`
	Actor actor.Actor `json:"actor"`
}

// Adjust applies a signed manual correction to the balance. Admin only;
// the note is required so the audit trail explains the correction.
func (e *Engine) Adjust(ctx context.Context, accountID id.AccountID, req AdjustRequest) (*AddTokensResult, error) {
	if req.Actor.Role != actor.RoleAdmin {
		return nil, ErrAdjustRequiresRole
	}
	if req.Delta == 0 {
		return nil, ErrZeroDelta
	}
	if req.Note == "" {
		return nil, ValidationError{Field: "note", Message: "manual adjustments require a note"}
	}

	var result *AddTokensResult
	err := e.withRetry(ctx, func() error {
		a, err := e.store.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		ent := &entry.Entry{
			Entity:          types.NewEntity(),
			ID:              id.NewEntryID(),
			AccountID:       accountID,
			Change:          req.Delta,
			Reason:          entry.ReasonManualAdjust,
			Note:            req.Note,
			OccurredAt:      e.now(),
			PerformedBy:     req.Actor.ID,
			PerformedByRole: req.Actor.Role,
		}

		a.Tokens += req.Delta
		a.Status = account.RecomputeStatus(a.Tokens, a.PeriodCovers(e.today()), a.Status)

		if err := e.store.RecordBalanceChange(ctx, a, ent, nil); err != nil {
			return err
		}

		result = &AddTokensResult{Account: a, Entry: ent}

		e.plugins.EmitTokensChanged(ctx, a, ent)
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "balance adjusted",
		"account_id", accountID.String(),
		"delta", req.Delta,
		"actor", req.Actor.ID,
	)

	return result, nil
}

// priceFor resolves the owner's price tier. A missing directory or a
// failed lookup falls back to the highest tier rather than undercharging.
func (e *Engine) priceFor(ctx context.Context, a *account.Account) pricing.Price {
	owner := e.ownerOf(ctx, a)
	if owner == nil {
		return e.pricing.Fallback()
	}
	return e.pricing.Resolve(owner.Level, owner.GroupName)
}

// ownerOf looks up the account owner, returning nil when the directory is
// absent or fails.
func (e *Engine) ownerOf(ctx context.Context, a *account.Account) *directory.Owner {
	if e.directory == nil {
		return nil
	}
	owner, err := e.directory.GetOwner(ctx, a.OwnerRef)
	if err != nil {
		e.logger.WarnContext(ctx, "owner lookup failed",
			"account_id", a.ID.String(), "owner_ref", a.OwnerRef, "error", err)
		return nil
	}
	return owner
}

// deliverPaymentReceipt sends the payment receipt best-effort and flips
// the payment's sent flag on success. The ledger write already committed.
func (e *Engine) deliverPaymentReceipt(ctx context.Context, a *account.Account, p *payment.Payment) {
	owner := e.ownerOf(ctx, a)
	if owner == nil || owner.Email == "" {
		e.plugins.EmitReceiptFailed(ctx, p, ErrDirectoryUnavailable)
		return
	}

	receipt := notify.PaymentReceipt{
		Email:        owner.Email,
		OwnerName:    owner.Name,
		TicketNumber: p.TicketNumber,
		Tokens:       p.Tokens,
		Amount:       p.Amount,
		IssuedAt:     p.IssuedAt,
	}
	if err := e.notifier.SendPaymentReceipt(ctx, receipt); err != nil {
		e.logger.WarnContext(ctx, "payment receipt delivery failed",
			"ticket", p.TicketNumber, "error", err)
		e.plugins.EmitReceiptFailed(ctx, p, err)
		return
	}

	sentAt := e.now()
	if err := e.store.MarkReceiptSent(ctx, p.ID, sentAt); err != nil {
		e.logger.WarnContext(ctx, "payment receipt sent but not marked",
			"ticket", p.TicketNumber, "error", err)
		return
	}
	p.EmailSent = true
	p.EmailSentAt = &sentAt

	e.plugins.EmitReceiptSent(ctx, p)
}
