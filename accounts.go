package mensa

import (
	"context"
	"errors"

	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/actor"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/types"
)

// ──────────────────────────────────────────────────
// Account Management
// ──────────────────────────────────────────────────

// CreateAccount opens a balance account for an owner. One account per
// owner reference.
func (e *Engine) CreateAccount(ctx context.Context, ownerRef string, act actor.Actor) (*account.Account, error) {
	if ownerRef == "" {
		return nil, ValidationError{Field: "owner_ref", Message: "must not be empty"}
	}

	a := &account.Account{
		Entity:   types.NewEntity(),
		ID:       id.NewAccountID(),
		OwnerRef: ownerRef,
		Status:   account.StatusUnfunded,
	}

	if err := e.store.CreateAccount(ctx, a); err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "account created",
		"account_id", a.ID.String(),
		"owner_ref", ownerRef,
		"actor", act.ID,
	)

	return a, nil
}

// GetAccount retrieves an account by ID.
func (e *Engine) GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error) {
	return e.store.GetAccount(ctx, accountID)
}

// GetAccountByOwnerRef retrieves an account by its owner reference.
func (e *Engine) GetAccountByOwnerRef(ctx context.Context, ownerRef string) (*account.Account, error) {
	return e.store.GetAccountByOwnerRef(ctx, ownerRef)
}

// ListAccounts lists accounts matching opts.
func (e *Engine) ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error) {
	return e.store.ListAccounts(ctx, opts)
}

// SetBlocked places or lifts an administrative hold. Admin only. Blocking
// does not touch tokens or the assigned period; unblocking recomputes the
// status from them.
func (e *Engine) SetBlocked(ctx context.Context, accountID id.AccountID, blocked bool, act actor.Actor) (*account.Account, error) {
	if act.Role != actor.RoleAdmin {
		return nil, ErrForbidden
	}

	var result *account.Account
	err := e.withRetry(ctx, func() error {
		a, err := e.store.GetAccount(ctx, accountID)
		if err != nil {
			return err
		}

		if blocked {
			a.Status = account.StatusBlocked
		} else {
			a.Status = account.RecomputeStatus(a.Tokens, a.PeriodCovers(e.today()), account.StatusUnfunded)
		}

		if err := e.store.UpdateAccount(ctx, a); err != nil {
			return err
		}
		result = a
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "account hold changed",
		"account_id", accountID.String(),
		"blocked", blocked,
		"actor", act.ID,
	)

	return result, nil
}

// ListEntries lists ledger entries matching opts.
func (e *Engine) ListEntries(ctx context.Context, opts entry.ListOpts) ([]*entry.Entry, error) {
	return e.store.ListEntries(ctx, opts)
}

// ReconcileResult reports an account's stored balance against the sum of
// its ledger entry changes. The two must always agree.
type ReconcileResult struct {
	AccountID id.AccountID `json:"account_id"`
	Tokens    int64        `json:"tokens"`
	LedgerSum int64        `json:"ledger_sum"`
	Balanced  bool         `json:"balanced"`
}

// Reconcile checks the reconciliation invariant for one account.
func (e *Engine) Reconcile(ctx context.Context, accountID id.AccountID) (*ReconcileResult, error) {
	a, err := e.store.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}

	sum, err := e.store.SumChanges(ctx, accountID)
	if err != nil {
		return nil, err
	}

	res := &ReconcileResult{
		AccountID: accountID,
		Tokens:    a.Tokens,
		LedgerSum: sum,
		Balanced:  a.Tokens == sum,
	}
	if !res.Balanced {
		e.logger.ErrorContext(ctx, "ledger out of balance",
			"account_id", accountID.String(),
			"tokens", a.Tokens,
			"ledger_sum", sum,
		)
	}

	return res, nil
}

// withRetry re-runs fn when it loses a concurrent-update race. fn must
// re-read any state it mutates.
func (e *Engine) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt <= e.retries; attempt++ {
		if err = ctx.Err(); err != nil {
			return err
		}
		if err = fn(); !errors.Is(err, ErrVersionConflict) {
			return err
		}
	}
	return err
}
