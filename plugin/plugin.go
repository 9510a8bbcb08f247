// Package plugin provides an extensible plugin system for Mensa.
// Plugins can hook into lifecycle events to extend functionality.
package plugin

import (
	"context"
	"time"

	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/payment"
	"github.com/xraph/mensa/period"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the plugin is initialized.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine any) error
}

// OnShutdown is called when the plugin is shutting down.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Consumption hooks
// ──────────────────────────────────────────────────

// OnConsumptionRecorded is called after a meal consumption is committed.
type OnConsumptionRecorded interface {
	Plugin
	OnConsumptionRecorded(ctx context.Context, a *account.Account, e *entry.Entry) error
}

// ──────────────────────────────────────────────────
// Token hooks
// ──────────────────────────────────────────────────

// OnTokensChanged is called after a top-up or manual adjustment commits.
type OnTokensChanged interface {
	Plugin
	OnTokensChanged(ctx context.Context, a *account.Account, e *entry.Entry) error
}

// OnPaymentIssued is called after a payment and its ticket are committed.
type OnPaymentIssued interface {
	Plugin
	OnPaymentIssued(ctx context.Context, p *payment.Payment) error
}

// ──────────────────────────────────────────────────
// Period hooks
// ──────────────────────────────────────────────────

// OnPeriodAssigned is called after a free-meal period is set.
type OnPeriodAssigned interface {
	Plugin
	OnPeriodAssigned(ctx context.Context, a *account.Account, log *period.LogEntry) error
}

// OnPeriodRemoved is called after a period is explicitly removed.
type OnPeriodRemoved interface {
	Plugin
	OnPeriodRemoved(ctx context.Context, a *account.Account, log *period.LogEntry) error
}

// OnPeriodActivated is called when the daily sweep activates a period.
type OnPeriodActivated interface {
	Plugin
	OnPeriodActivated(ctx context.Context, a *account.Account) error
}

// OnPeriodExpired is called when the daily sweep retires a lapsed period.
type OnPeriodExpired interface {
	Plugin
	OnPeriodExpired(ctx context.Context, a *account.Account) error
}

// ──────────────────────────────────────────────────
// Receipt hooks
// ──────────────────────────────────────────────────

// OnReceiptSent is called after a payment receipt is delivered.
type OnReceiptSent interface {
	Plugin
	OnReceiptSent(ctx context.Context, p *payment.Payment) error
}

// OnReceiptFailed is called when receipt delivery fails. Delivery is
// best-effort, so this is informational only.
type OnReceiptFailed interface {
	Plugin
	OnReceiptFailed(ctx context.Context, p *payment.Payment, sendErr error) error
}

// ──────────────────────────────────────────────────
// Sweep hooks
// ──────────────────────────────────────────────────

// OnSweepCompleted is called after a daily sweep run finishes.
type OnSweepCompleted interface {
	Plugin
	OnSweepCompleted(ctx context.Context, activated, deactivated int, elapsed time.Duration) error
}
