package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/mensa/account"
	"github.com/xraph/mensa/entry"
	"github.com/xraph/mensa/payment"
	"github.com/xraph/mensa/period"
)

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                []OnInit
	onShutdown            []OnShutdown
	onConsumptionRecorded []OnConsumptionRecorded
	onTokensChanged       []OnTokensChanged
	onPaymentIssued       []OnPaymentIssued
	onPeriodAssigned      []OnPeriodAssigned
	onPeriodRemoved       []OnPeriodRemoved
	onPeriodActivated     []OnPeriodActivated
	onPeriodExpired       []OnPeriodExpired
	onReceiptSent         []OnReceiptSent
	onReceiptFailed       []OnReceiptFailed
	onSweepCompleted      []OnSweepCompleted
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{logger: slog.Default()}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnConsumptionRecorded); ok {
		r.onConsumptionRecorded = append(r.onConsumptionRecorded, v)
	}
	if v, ok := p.(OnTokensChanged); ok {
		r.onTokensChanged = append(r.onTokensChanged, v)
	}
	if v, ok := p.(OnPaymentIssued); ok {
		r.onPaymentIssued = append(r.onPaymentIssued, v)
	}
	if v, ok := p.(OnPeriodAssigned); ok {
		r.onPeriodAssigned = append(r.onPeriodAssigned, v)
	}
	if v, ok := p.(OnPeriodRemoved); ok {
		r.onPeriodRemoved = append(r.onPeriodRemoved, v)
	}
	if v, ok := p.(OnPeriodActivated); ok {
		r.onPeriodActivated = append(r.onPeriodActivated, v)
	}
	if v, ok := p.(OnPeriodExpired); ok {
		r.onPeriodExpired = append(r.onPeriodExpired, v)
	}
	if v, ok := p.(OnReceiptSent); ok {
		r.onReceiptSent = append(r.onReceiptSent, v)
	}
	if v, ok := p.(OnReceiptFailed); ok {
		r.onReceiptFailed = append(r.onReceiptFailed, v)
	}
	if v, ok := p.(OnSweepCompleted); ok {
		r.onSweepCompleted = append(r.onSweepCompleted, v)
	}

	r.logger.Info("plugin registered", "name", p.Name())

	return nil
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine any) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnInit(ctx, engine)
		}); err != nil {
			r.logger.Warn("plugin OnInit failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnShutdown(ctx)
		}); err != nil {
			r.logger.Warn("plugin OnShutdown failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitConsumptionRecorded emits a consumption recorded event.
func (r *Registry) EmitConsumptionRecorded(ctx context.Context, a *account.Account, e *entry.Entry) {
	r.mu.RLock()
	plugins := r.onConsumptionRecorded
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnConsumptionRecorded(ctx, a, e)
		}); err != nil {
			r.logger.Warn("plugin OnConsumptionRecorded failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitTokensChanged emits a token balance change event.
func (r *Registry) EmitTokensChanged(ctx context.Context, a *account.Account, e *entry.Entry) {
	r.mu.RLock()
	plugins := r.onTokensChanged
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnTokensChanged(ctx, a, e)
		}); err != nil {
			r.logger.Warn("plugin OnTokensChanged failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitPaymentIssued emits a payment issued event.
func (r *Registry) EmitPaymentIssued(ctx context.Context, p *payment.Payment) {
	r.mu.RLock()
	plugins := r.onPaymentIssued
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnPaymentIssued(ctx, p)
		}); err != nil {
			r.logger.Warn("plugin OnPaymentIssued failed", "plugin", pl.Name(), "error", err)
		}
	}
}

// EmitPeriodAssigned emits a period assigned event.
func (r *Registry) EmitPeriodAssigned(ctx context.Context, a *account.Account, log *period.LogEntry) {
	r.mu.RLock()
	plugins := r.onPeriodAssigned
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPeriodAssigned(ctx, a, log)
		}); err != nil {
			r.logger.Warn("plugin OnPeriodAssigned failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitPeriodRemoved emits a period removed event.
func (r *Registry) EmitPeriodRemoved(ctx context.Context, a *account.Account, log *period.LogEntry) {
	r.mu.RLock()
	plugins := r.onPeriodRemoved
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPeriodRemoved(ctx, a, log)
		}); err != nil {
			r.logger.Warn("plugin OnPeriodRemoved failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitPeriodActivated emits a period activated event.
func (r *Registry) EmitPeriodActivated(ctx context.Context, a *account.Account) {
	r.mu.RLock()
	plugins := r.onPeriodActivated
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPeriodActivated(ctx, a)
		}); err != nil {
			r.logger.Warn("plugin OnPeriodActivated failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitPeriodExpired emits a period expired event.
func (r *Registry) EmitPeriodExpired(ctx context.Context, a *account.Account) {
	r.mu.RLock()
	plugins := r.onPeriodExpired
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnPeriodExpired(ctx, a)
		}); err != nil {
			r.logger.Warn("plugin OnPeriodExpired failed", "plugin", p.Name(), "error", err)
		}
	}
}

// EmitReceiptSent emits a receipt sent event.
func (r *Registry) EmitReceiptSent(ctx context.Context, p *payment.Payment) {
	r.mu.RLock()
	plugins := r.onReceiptSent
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnReceiptSent(ctx, p)
		}); err != nil {
			r.logger.Warn("plugin OnReceiptSent failed", "plugin", pl.Name(), "error", err)
		}
	}
}

// EmitReceiptFailed emits a receipt delivery failure event.
func (r *Registry) EmitReceiptFailed(ctx context.Context, p *payment.Payment, sendErr error) {
	r.mu.RLock()
	plugins := r.onReceiptFailed
	r.mu.RUnlock()

	for _, pl := range plugins {
		if err := r.callWithTimeout(ctx, pl.Name(), func() error {
			return pl.OnReceiptFailed(ctx, p, sendErr)
		}); err != nil {
			r.logger.Warn("plugin OnReceiptFailed failed", "plugin", pl.Name(), "error", err)
		}
	}
}

// EmitSweepCompleted emits a sweep completed event.
func (r *Registry) EmitSweepCompleted(ctx context.Context, activated, deactivated int, elapsed time.Duration) {
	r.mu.RLock()
	plugins := r.onSweepCompleted
	r.mu.RUnlock()

	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return p.OnSweepCompleted(ctx, activated, deactivated, elapsed)
		}); err != nil {
			r.logger.Warn("plugin OnSweepCompleted failed", "plugin", p.Name(), "error", err)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the ledger pipeline.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
