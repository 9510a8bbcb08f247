// Package observability provides a metrics extension for Mensa that records
// lifecycle event counts through a pluggable MetricFactory, with a
// Prometheus-backed factory included.
package observability

import (
	"context"
	"time"

	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/payment"
	"github.com/xraph/mensa/period"
	"github.com/xraph/mensa/plugin"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnInit                = (*MetricsExtension)(nil)
	_ plugin.OnConsumptionRecorded = (*MetricsExtension)(nil)
	_ plugin.OnTokensChanged       = (*MetricsExtension)(nil)
	_ plugin.OnPaymentIssued       = (*MetricsExtension)(nil)
	_ plugin.OnPeriodAssigned      = (*MetricsExtension)(nil)
	_ plugin.OnPeriodRemoved       = (*MetricsExtension)(nil)
	_ plugin.OnPeriodActivated     = (*MetricsExtension)(nil)
	_ plugin.OnPeriodExpired       = (*MetricsExtension)(nil)
	_ plugin.OnReceiptSent         = (*MetricsExtension)(nil)
	_ plugin.OnReceiptFailed       = (*MetricsExtension)(nil)
	_ plugin.OnSweepCompleted      = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records system-wide lifecycle metrics.
// Register it as a Mensa plugin to automatically track ledger metrics.
type MetricsExtension struct {
	factory MetricFactory

	// Consumption metrics
	MealsServed    Counter
	MealsInPeriod  Counter
	MealsIntoDebt  Counter
	TokensConsumed Counter

	// Payment metrics
	PaymentsIssued Counter
	TokensSold     Counter
	PaymentAmount  Histogram

	// Period metrics
	PeriodsAssigned  Counter
	PeriodsRemoved   Counter
	PeriodsActivated Counter
	PeriodsExpired   Counter

	// Receipt metrics
	ReceiptsSent   Counter
	ReceiptsFailed Counter

	// Sweep metrics
	SweepRuns    Counter
	SweepLatency Histogram
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		// Consumption metrics
		MealsServed:    factory.Counter("mensa_meals_served_total"),
		MealsInPeriod:  factory.Counter("mensa_meals_in_period_total"),
		MealsIntoDebt:  factory.Counter("mensa_meals_into_debt_total"),
		TokensConsumed: factory.Counter("mensa_tokens_consumed_total"),

		// Payment metrics
		PaymentsIssued: factory.Counter("mensa_payments_issued_total"),
		TokensSold:     factory.Counter("mensa_tokens_sold_total"),
		PaymentAmount:  factory.Histogram("mensa_payment_amount_minor_units"),

		// Period metrics
		PeriodsAssigned:  factory.Counter("mensa_periods_assigned_total"),
		PeriodsRemoved:   factory.Counter("mensa_periods_removed_total"),
		PeriodsActivated: factory.Counter("mensa_periods_activated_total"),
		PeriodsExpired:   factory.Counter("mensa_periods_expired_total"),

		// Receipt metrics
		ReceiptsSent:   factory.Counter("mensa_receipts_sent_total"),
		ReceiptsFailed: factory.Counter("mensa_receipts_failed_total"),

		// Sweep metrics
		SweepRuns:    factory.Counter("mensa_sweep_runs_total"),
		SweepLatency: factory.Histogram("mensa_sweep_latency_ms"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnInit implements plugin.OnInit.
func (m *MetricsExtension) OnInit(_ context.Context, _ any) error {
	// No initialization needed
	return nil
}

// ──────────────────────────────────────────────────
// Consumption hooks
// ──────────────────────────────────────────────────

// OnConsumptionRecorded implements plugin.OnConsumptionRecorded.
func (m *MetricsExtension) OnConsumptionRecorded(_ context.Context, _ *account.Account, e *entry.Entry) error {
	m.MealsServed.Inc()
	switch e.Reason {
	case entry.ReasonUseInPeriod:
		m.MealsInPeriod.Inc()
	case entry.ReasonUseWithDebt:
		m.MealsIntoDebt.Inc()
		m.TokensConsumed.Inc()
	default:
		m.TokensConsumed.Inc()
	}
	return nil
}

// ──────────────────────────────────────────────────
// Token and payment hooks
// ──────────────────────────────────────────────────

// OnTokensChanged implements plugin.OnTokensChanged.
func (m *MetricsExtension) OnTokensChanged(_ context.Context, _ *account.Account, e *entry.Entry) error {
	if e.Reason == entry.ReasonPayment && e.Change > 0 {
		m.TokensSold.Add(float64(e.Change))
	}
	return nil
}

// OnPaymentIssued implements plugin.OnPaymentIssued.
func (m *MetricsExtension) OnPaymentIssued(_ context.Context, p *payment.Payment) error {
	m.PaymentsIssued.Inc()
	m.PaymentAmount.Observe(float64(p.Amount.Amount))
	return nil
}

// ──────────────────────────────────────────────────
// Period hooks
// ──────────────────────────────────────────────────

// OnPeriodAssigned implements plugin.OnPeriodAssigned.
func (m *MetricsExtension) OnPeriodAssigned(_ context.Context, _ *account.Account, _ *period.LogEntry) error {
	m.PeriodsAssigned.Inc()
	return nil
}

// OnPeriodRemoved implements plugin.OnPeriodRemoved.
func (m *MetricsExtension) OnPeriodRemoved(_ context.Context, _ *account.Account, _ *period.LogEntry) error {
	m.PeriodsRemoved.Inc()
	return nil
}

// OnPeriodActivated implements plugin.OnPeriodActivated.
func (m *MetricsExtension) OnPeriodActivated(_ context.Context, _ *account.Account) error {
	m.PeriodsActivated.Inc()
	return nil
}

// OnPeriodExpired implements plugin.OnPeriodExpired.
func (m *MetricsExtension) OnPeriodExpired(_ context.Context, _ *account.Account) error {
	m.PeriodsExpired.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Receipt hooks
// ──────────────────────────────────────────────────

// OnReceiptSent implements plugin.OnReceiptSent.
func (m *MetricsExtension) OnReceiptSent(_ context.Context, _ *payment.Payment) error {
	m.ReceiptsSent.Inc()
	return nil
}

// OnReceiptFailed implements plugin.OnReceiptFailed.
func (m *MetricsExtension) OnReceiptFailed(_ context.Context, _ *payment.Payment, _ error) error {
	m.ReceiptsFailed.Inc()
	return nil
}

// ──────────────────────────────────────────────────
// Sweep hooks
// ──────────────────────────────────────────────────

// OnSweepCompleted implements plugin.OnSweepCompleted.
func (m *MetricsExtension) OnSweepCompleted(_ context.Context, _, _ int, elapsed time.Duration) error {
	m.SweepRuns.Inc()
	m.SweepLatency.Observe(float64(elapsed.Milliseconds()))
	return nil
}
