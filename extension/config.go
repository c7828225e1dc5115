package extension

import "time"

// Store drivers accepted in Config.Driver.
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMongo    = "mongo"
	DriverRedis    = "redis"
)

// Config holds the Entitle extension configuration.
// Fields can be set programmatically via Option functions or loaded from
// YAML configuration files (under "extensions.entitle" or "entitle" keys).
type Config struct {
	// DisableMigrate prevents auto-migration on start.
	DisableMigrate bool `json:"disable_migrate" mapstructure:"disable_migrate" yaml:"disable_migrate"`

	// Driver selects the store backend: memory, sqlite, postgres, mongo or
	// redis (default: memory). The grove drivers need WithGroveDB.
	Driver string `json:"driver" mapstructure:"driver" yaml:"driver"`

	// WelcomeCredits seeds each product's welcome units when the ledger is
	// first created.
	WelcomeCredits bool `json:"welcome_credits" mapstructure:"welcome_credits" yaml:"welcome_credits"`

	// ExpiryWarning is how long before expiry a subscription is reported as
	// expiring (default: 72h).
	ExpiryWarning time.Duration `json:"expiry_warning" mapstructure:"expiry_warning" yaml:"expiry_warning"`

	// Redis settings, used when Driver is redis.
	Redis RedisConfig `json:"redis" mapstructure:"redis" yaml:"redis"`

	// RequireConfig requires config to be present in YAML files.
	// If true and no config is found, Register returns an error.
	RequireConfig bool `json:"-" yaml:"-"`
}

// RedisConfig configures the redis store.
type RedisConfig struct {
	Addr      string `json:"addr" mapstructure:"addr" yaml:"addr"`
	Password  string `json:"password" mapstructure:"password" yaml:"password"`
	DB        int    `json:"db" mapstructure:"db" yaml:"db"`
	Namespace string `json:"namespace" mapstructure:"namespace" yaml:"namespace"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Driver:        DriverMemory,
		ExpiryWarning: 72 * time.Hour,
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			Namespace: "entitle",
		},
	}
}
