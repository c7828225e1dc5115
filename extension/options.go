package extension

import (
	"time"

	"github.com/xraph/grove"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/plugin"
	"github.com/xraph/entitle/store"
)

// Option configures the Entitle Forge extension.
type Option func(*Extension)

// WithStore sets the store for the engine, overriding Config.Driver.
func WithStore(s store.Store) Option {
	return func(e *Extension) {
		e.store = s
	}
}

// WithGroveDB sets the grove database used by the sqlite, postgres and
// mongo drivers.
func WithGroveDB(db *grove.DB) Option {
	return func(e *Extension) {
		e.groveDB = db
	}
}

// WithEngineOption passes an entitle.Option through to the underlying engine.
func WithEngineOption(opt entitle.Option) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, opt)
	}
}

// WithPlugin registers an entitle plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Extension) {
		e.engineOpts = append(e.engineOpts, entitle.WithPlugin(p))
	}
}

// WithConfig sets the Forge extension configuration.
func WithConfig(cfg Config) Option {
	return func(e *Extension) { e.config = cfg }
}

// WithDisableMigrate prevents auto-migration on start.
func WithDisableMigrate() Option {
	return func(e *Extension) { e.config.DisableMigrate = true }
}

// WithDriver selects the store backend.
func WithDriver(driver string) Option {
	return func(e *Extension) { e.config.Driver = driver }
}

// WithWelcomeCredits seeds welcome credits on first use.
func WithWelcomeCredits() Option {
	return func(e *Extension) { e.config.WelcomeCredits = true }
}

// WithExpiryWarning sets the subscription expiry warning window.
func WithExpiryWarning(d time.Duration) Option {
	return func(e *Extension) { e.config.ExpiryWarning = d }
}

// WithRedis configures the redis store.
func WithRedis(cfg RedisConfig) Option {
	return func(e *Extension) { e.config.Redis = cfg }
}

// WithRequireConfig requires config to be present in YAML files.
// If true and no config is found, Register returns an error.
func WithRequireConfig(require bool) Option {
	return func(e *Extension) { e.config.RequireConfig = require }
}
