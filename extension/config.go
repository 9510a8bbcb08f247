package extension

// Config holds the Mensa extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.mensa" or "mensa" keys).
type Config struct {
	// DisableRoutes prevents HTTP route registration.
	DisableRoutes bool `json:"disable_routes" mapstructure:"disable_routes" yaml:"disable_routes"`

	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// BasePath is the URL prefix for mensa routes (default: "/mensa").
	BasePath string `json:"base_path" mapstructure:"base_path" yaml:"base_path"`

	// MinPeriodDays is the minimum number of valid (non-holiday) days a
	// free-meal period must span (default: 5).
	MinPeriodDays int `json:"min_period_days" mapstructure:"min_period_days" yaml:"min_period_days"`

	// Driver selects the storage backend: "memory" or "sqlite"
	// (default: "memory"). Ignored when a store is injected programmatically.
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// DSN is the data source for the selected driver, e.g. a file path for
	// sqlite. Ignored for the memory driver.
	DSN string `json:"dsn" mapstructure:"dsn" yaml:"dsn"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		BasePath:      "/mensa",
		MinPeriodDays: 5,
		Driver:        "memory",
	}
}
