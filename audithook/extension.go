// Package audithook bridges Mensa lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not depend on
// any particular audit system. Callers inject a RecorderFunc adapter that
// bridges to their backend at wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/payment"
	"github.com/xraph/mensa/period"
	"github.com/xraph/mensa/plugin"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                = (*Extension)(nil)
	_ plugin.OnConsumptionRecorded = (*Extension)(nil)
	_ plugin.OnTokensChanged       = (*Extension)(nil)
	_ plugin.OnPaymentIssued       = (*Extension)(nil)
	_ plugin.OnPeriodAssigned      = (*Extension)(nil)
	_ plugin.OnPeriodRemoved       = (*Extension)(nil)
	_ plugin.OnPeriodActivated     = (*Extension)(nil)
	_ plugin.OnPeriodExpired       = (*Extension)(nil)
	_ plugin.OnReceiptSent         = (*Extension)(nil)
	_ plugin.OnReceiptFailed       = (*Extension)(nil)
	_ plugin.OnSweepCompleted      = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
// It is defined locally so that the audithook package carries no backend
// dependency — callers inject the concrete recorder at wiring time.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Mensa lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Consumption hooks
// ──────────────────────────────────────────────────

// OnConsumptionRecorded implements plugin.OnConsumptionRecorded.
func (e *Extension) OnConsumptionRecorded(ctx context.Context, a *account.Account, ent *entry.Entry) error {
	action := ActionMealServed
	switch ent.Reason {
	case entry.ReasonUseInPeriod:
		action = ActionMealInPeriod
	case entry.ReasonUseWithDebt:
		action = ActionMealIntoDebt
	}

	return e.record(ctx, action, SeverityInfo, OutcomeSuccess,
		ResourceEntry, ent.ID.String(), CategoryConsumption, nil,
		"account_id", a.ID.String(),
		"performed_by", ent.PerformedBy,
		"tokens_after", a.Tokens,
	)
}

// ──────────────────────────────────────────────────
// Balance hooks
// ──────────────────────────────────────────────────

// OnTokensChanged implements plugin.OnTokensChanged.
func (e *Extension) OnTokensChanged(ctx context.Context, a *account.Account, ent *entry.Entry) error {
	action := ActionTokensAdded
	severity := SeverityInfo
	if ent.Reason == entry.ReasonManualAdjust {
		action = ActionBalanceAdjusted
		severity = SeverityWarning
	}

	return e.record(ctx, action, severity, OutcomeSuccess,
		ResourceEntry, ent.ID.String(), CategoryBalance, nil,
		"account_id", a.ID.String(),
		"change", ent.Change,
		"performed_by", ent.PerformedBy,
		"note", ent.Note,
	)
}

// ──────────────────────────────────────────────────
// Payment hooks
// ──────────────────────────────────────────────────

// OnPaymentIssued implements plugin.OnPaymentIssued.
func (e *Extension) OnPaymentIssued(ctx context.Context, p *payment.Payment) error {
	return e.record(ctx, ActionPaymentIssued, SeverityInfo, OutcomeSuccess,
		ResourcePayment, p.ID.String(), CategoryPayment, nil,
		"ticket", p.TicketNumber,
		"account_id", p.AccountID.String(),
		"tokens", p.Tokens,
		"amount", p.Amount.String(),
		"received_by", p.ReceivedBy,
	)
}

// OnReceiptSent implements plugin.OnReceiptSent.
func (e *Extension) OnReceiptSent(ctx context.Context, p *payment.Payment) error {
	return e.record(ctx, ActionReceiptSent, SeverityInfo, OutcomeSuccess,
		ResourcePayment, p.ID.String(), CategoryPayment, nil,
		"ticket", p.TicketNumber,
	)
}

// OnReceiptFailed implements plugin.OnReceiptFailed.
func (e *Extension) OnReceiptFailed(ctx context.Context, p *payment.Payment, sendErr error) error {
	return e.record(ctx, ActionReceiptFailed, SeverityWarning, OutcomeFailure,
		ResourcePayment, p.ID.String(), CategoryPayment, sendErr,
		"ticket", p.TicketNumber,
	)
}

// ──────────────────────────────────────────────────
// Period hooks
// ──────────────────────────────────────────────────

// OnPeriodAssigned implements plugin.OnPeriodAssigned.
func (e *Extension) OnPeriodAssigned(ctx context.Context, a *account.Account, log *period.LogEntry) error {
	return e.record(ctx, ActionPeriodAssigned, SeverityInfo, OutcomeSuccess,
		ResourcePeriod, log.ID.String(), CategoryPeriod, nil,
		"account_id", a.ID.String(),
		"start", log.Start.Format("2006-01-02"),
		"end", log.End.Format("2006-01-02"),
		"assigned_by", log.AssignedBy,
	)
}

// OnPeriodRemoved implements plugin.OnPeriodRemoved.
func (e *Extension) OnPeriodRemoved(ctx context.Context, a *account.Account, log *period.LogEntry) error {
	return e.record(ctx, ActionPeriodRemoved, SeverityWarning, OutcomeSuccess,
		ResourcePeriod, log.ID.String(), CategoryPeriod, nil,
		"account_id", a.ID.String(),
	)
}

// OnPeriodActivated implements plugin.OnPeriodActivated.
func (e *Extension) OnPeriodActivated(ctx context.Context, a *account.Account) error {
	return e.record(ctx, ActionPeriodActivated, SeverityInfo, OutcomeSuccess,
		ResourceAccount, a.ID.String(), CategoryPeriod, nil,
		"status", string(a.Status),
	)
}

// OnPeriodExpired implements plugin.OnPeriodExpired.
func (e *Extension) OnPeriodExpired(ctx context.Context, a *account.Account) error {
	return e.record(ctx, ActionPeriodExpired, SeverityInfo, OutcomeSuccess,
		ResourceAccount, a.ID.String(), CategoryPeriod, nil,
		"status", string(a.Status),
	)
}

// ──────────────────────────────────────────────────
// Sweep hooks
// ──────────────────────────────────────────────────

// OnSweepCompleted implements plugin.OnSweepCompleted.
func (e *Extension) OnSweepCompleted(ctx context.Context, activated, deactivated int, elapsed time.Duration) error {
	return e.record(ctx, ActionSweepCompleted, SeverityInfo, OutcomeSuccess,
		ResourceSweep, "", CategoryOperations, nil,
		"activated", activated,
		"deactivated", deactivated,
		"elapsed_ms", elapsed.Milliseconds(),
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audithook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
