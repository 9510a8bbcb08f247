// Package extension provides the Forge extension adapter for Mensa.
//
// It implements the forge.Extension interface to integrate Mensa
// into a Forge application with automatic dependency discovery,
// DI registration, and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.mensa" or "mensa" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/forge"
	"github.com/xraph/vessel"

	"github.com/xraph/mensa"
	"github.com/xraph/mensa/store"
	"github.com/xraph/mensa/store/memory"
	"github.com/xraph/mensa/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "mensa"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "School meal-credit ledger engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Mensa as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *mensa.Engine
	store      store.Store
	engineOpts []mensa.Option
}

// New creates a new Mensa Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Mensa instance.
// This is nil until Register is called.
func (e *Extension) Engine() *mensa.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	// Build a store from config if none was provided programmatically.
	if e.store == nil {
		s, err := e.buildStore()
		if err != nil {
			return err
		}
		e.store = s
	}

	opts := e.buildEngineOpts()

	eng := mensa.New(e.store, opts...)
	e.engine = eng

	return vessel.Provide(fapp.Container(), func() (*mensa.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("mensa: extension not initialized")
	}

	if !e.config.DisableMigrate {
		if err := e.engine.Start(ctx); err != nil {
			return err
		}
	}

	e.MarkStarted()
	return nil
}

// Stop implements [forge.Extension].
func (e *Extension) Stop(_ context.Context) error {
	if e.engine != nil {
		if err := e.engine.Stop(); err != nil {
			e.MarkStopped()
			return err
		}
	}
	e.MarkStopped()
	return nil
}

// Health implements [forge.Extension].
func (e *Extension) Health(ctx context.Context) error {
	if e.store == nil {
		return errors.New("mensa: store not initialized")
	}
	return e.store.Ping(ctx)
}

// buildStore constructs the configured storage backend.
func (e *Extension) buildStore() (store.Store, error) {
	switch e.config.Driver {
	case "", "memory":
		return memory.New(), nil
	case "sqlite":
		if e.config.DSN == "" {
			return nil, errors.New("mensa: sqlite driver requires a dsn")
		}
		return sqlite.Open(e.config.DSN)
	default:
		return nil, fmt.Errorf("mensa: unknown driver %q", e.config.Driver)
	}
}

// buildEngineOpts constructs mensa.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []mensa.Option {
	opts := make([]mensa.Option, 0, len(e.engineOpts)+1)

	if e.config.MinPeriodDays > 0 {
		opts = append(opts, mensa.WithMinPeriodDays(e.config.MinPeriodDays))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	// Try loading from config file.
	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("mensa: configuration is required but not found in config files; " +
				"ensure 'extensions.mensa' or 'mensa' key exists in your config")
		}

		// Use programmatic config merged with defaults.
		e.config = e.mergeWithDefaults(programmaticConfig)
	} else {
		// Config loaded from YAML -- merge with programmatic options.
		e.config = e.mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("mensa: configuration loaded",
		forge.F("disable_routes", e.config.DisableRoutes),
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("base_path", e.config.BasePath),
		forge.F("min_period_days", e.config.MinPeriodDays),
		forge.F("driver", e.config.Driver),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	// Try "extensions.mensa" first (namespaced pattern).
	if cm.IsSet("extensions.mensa") {
		if err := cm.Bind("extensions.mensa", &cfg); err == nil {
			e.Logger().Debug("mensa: loaded config from file",
				forge.F("key", "extensions.mensa"),
			)
			return cfg, true
		}
		e.Logger().Warn("mensa: failed to bind extensions.mensa config",
			forge.F("error", "bind failed"),
		)
	}

	// Try legacy "mensa" key.
	if cm.IsSet("mensa") {
		if err := cm.Bind("mensa", &cfg); err == nil {
			e.Logger().Debug("mensa: loaded config from file",
				forge.F("key", "mensa"),
			)
			return cfg, true
		}
		e.Logger().Warn("mensa: failed to bind mensa config",
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func (e *Extension) mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.BasePath == "" {
		cfg.BasePath = defaults.BasePath
	}
	if cfg.MinPeriodDays == 0 {
		cfg.MinPeriodDays = defaults.MinPeriodDays
	}
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func (e *Extension) mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	// Programmatic bool flags override when true.
	if programmaticConfig.DisableRoutes {
		yamlConfig.DisableRoutes = true
	}
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}

	// String fields: YAML takes precedence.
	if yamlConfig.BasePath == "" && programmaticConfig.BasePath != "" {
		yamlConfig.BasePath = programmaticConfig.BasePath
	}
	if yamlConfig.Driver == "" && programmaticConfig.Driver != "" {
		yamlConfig.Driver = programmaticConfig.Driver
		yamlConfig.DSN = programmaticConfig.DSN
	}

	// Int fields: YAML takes precedence, programmatic fills gaps.
	if yamlConfig.MinPeriodDays == 0 && programmaticConfig.MinPeriodDays != 0 {
		yamlConfig.MinPeriodDays = programmaticConfig.MinPeriodDays
	}

	// Fill remaining zeros with defaults.
	return e.mergeWithDefaults(yamlConfig)
}
