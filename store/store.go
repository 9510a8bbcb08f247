package store

import (
	"context"
	"time"

	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/calendar"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/id"
	"github.com/xraph/mensa/payment"
	"github.com/xraph/mensa/period"
)

// Store is the unified storage interface for all Mensa entities.
// Instead of embedding sub-interfaces, all methods are declared explicitly
// to avoid naming conflicts.
//
// The RecordXxx methods are the engine's write path: each one commits an
// account mutation together with its ledger entry (and payment, period log)
// in a single storage transaction, guarded by the account version the
// caller read. A stale version fails the whole operation without writes.
type Store interface {
	// Account methods
	CreateAccount(ctx context.Context, a *account.Account) error
	GetAccount(ctx context.Context, accountID id.AccountID) (*account.Account, error)
	GetAccountByOwnerRef(ctx context.Context, ownerRef string) (*account.Account, error)
	ListAccounts(ctx context.Context, opts account.ListOpts) ([]*account.Account, error)
	UpdateAccount(ctx context.Context, a *account.Account) error

	// Atomic operation methods. Each checks a.Version against the stored
	// row, writes all records in one transaction, and bumps the version.
	RecordConsumption(ctx context.Context, a *account.Account, e *entry.Entry) error
	RecordBalanceChange(ctx context.Context, a *account.Account, e *entry.Entry, p *payment.Payment) error
	RecordPeriodAssigned(ctx context.Context, a *account.Account, e *entry.Entry, log *period.LogEntry, p *payment.Payment) error
	RecordPeriodClosed(ctx context.Context, a *account.Account, e *entry.Entry, logID id.PeriodLogID, outcome period.Outcome, closedAt time.Time) error

	// Ledger methods
	GetEntry(ctx context.Context, entryID id.EntryID) (*entry.Entry, error)
	ListEntries(ctx context.Context, opts entry.ListOpts) ([]*entry.Entry, error)
	HasConsumptionOn(ctx context.Context, accountID id.AccountID, day time.Time) (bool, error)
	SumChanges(ctx context.Context, accountID id.AccountID) (int64, error)

	// Payment methods
	GetPayment(ctx context.Context, paymentID id.PaymentID) (*payment.Payment, error)
	GetPaymentByTicket(ctx context.Context, ticketSeq int64) (*payment.Payment, error)
	ListPayments(ctx context.Context, opts payment.ListOpts) ([]*payment.Payment, error)
	ListUnsentPayments(ctx context.Context, limit int) ([]*payment.Payment, error)
	MarkReceiptSent(ctx context.Context, paymentID id.PaymentID, sentAt time.Time) error

	// Period log methods
	ListPeriodLog(ctx context.Context, accountID id.AccountID) ([]*period.LogEntry, error)
	GetActivePeriodLog(ctx context.Context, accountID id.AccountID) (*period.LogEntry, error)

	// Holiday methods
	CreateHoliday(ctx context.Context, h *calendar.Holiday) error
	DeleteHoliday(ctx context.Context, holidayID id.HolidayID) error
	ListHolidays(ctx context.Context, from, to time.Time) ([]*calendar.Holiday, error)

	// Sweep scan methods
	ListAccountsToActivate(ctx context.Context, today time.Time) ([]*account.Account, error)
	ListAccountsToDeactivate(ctx context.Context, today time.Time) ([]*account.Account, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}
