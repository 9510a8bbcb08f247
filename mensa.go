package mensa

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/mensa/directory"
	"github.com/xraph/mensa/notify"
	"github.com/xraph/mensa/plugin"
	"github.com/xraph/mensa/pricing"
	"github.com/xraph/mensa/store"
)

// DefaultMinPeriodDays is the minimum number of valid calendar days a
// free-meal period must span.
const DefaultMinPeriodDays = 5

// Engine is the meal-credit ledger engine.
type Engine struct {
	store     store.Store
	plugins   *plugin.Registry
	logger    *slog.Logger
	directory directory.Service
	notifier  notify.Service
	pricing   *pricing.Resolver

	now           func() time.Time
	minPeriodDays int
	retries       int
}

// New creates a new Engine on the given store.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		plugins:       plugin.NewRegistry(),
		logger:        slog.Default(),
		notifier:      notify.Nop{},
		pricing:       pricing.NewResolver(),
		now:           time.Now,
		minPeriodDays: DefaultMinPeriodDays,
		retries:       3,
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// Option configures an Engine instance.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithDirectory sets the student directory service. Without one, pricing
// falls back to the highest tier and receipts cannot be addressed.
func WithDirectory(d directory.Service) Option {
	return func(e *Engine) { e.directory = d }
}

// WithNotifier sets the receipt notification service.
func WithNotifier(n notify.Service) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithPricing sets the price resolver.
func WithPricing(r *pricing.Resolver) Option {
	return func(e *Engine) { e.pricing = r }
}

// WithClock sets the time source. Used by tests for deterministic days.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithMinPeriodDays sets the minimum valid-day span for periods.
func WithMinPeriodDays(days int) Option {
	return func(e *Engine) { e.minPeriodDays = days }
}

// Plugins returns the plugin registry.
func (e *Engine) Plugins() *plugin.Registry { return e.plugins }

// Store returns the underlying store for direct queries.
func (e *Engine) Store() store.Store { return e.store }

// Start migrates the store and initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("mensa started", "min_period_days", e.minPeriodDays)

	return nil
}

// Stop shuts down the Engine and closes the store.
func (e *Engine) Stop() error {
	e.plugins.EmitShutdown(context.Background())

	return e.store.Close()
}

// today returns the current local day at midnight.
func (e *Engine) today() time.Time {
	t := e.now()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
