// Package extension provides the Forge extension adapter for Entitle.
//
// It implements the forge.Extension interface to integrate Entitle
// into a Forge application with DI registration and lifecycle management.
//
// Configuration can be provided programmatically via Option functions
// or via YAML configuration files under "extensions.entitle" or "entitle" keys.
package extension

import (
	"context"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"
	"github.com/xraph/forge"
	"github.com/xraph/grove"
	"github.com/xraph/vessel"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/store"
	"github.com/xraph/entitle/store/memory"
	"github.com/xraph/entitle/store/mongo"
	"github.com/xraph/entitle/store/postgres"
	redisstore "github.com/xraph/entitle/store/redis"
	"github.com/xraph/entitle/store/sqlite"
)

// ExtensionName is the name registered with Forge.
const ExtensionName = "entitle"

// ExtensionDescription is the human-readable description.
const ExtensionDescription = "Credit and subscription entitlement engine"

// ExtensionVersion is the semantic version.
const ExtensionVersion = "0.1.0"

// ErrGroveDBRequired is returned when a grove driver is configured without
// a database.
var ErrGroveDBRequired = errors.New("entitle: grove driver configured without WithGroveDB")

// Ensure Extension implements forge.Extension at compile time.
var _ forge.Extension = (*Extension)(nil)

// Extension adapts Entitle as a Forge extension.
type Extension struct {
	*forge.BaseExtension

	config     Config
	engine     *entitle.Engine
	store      store.Store
	groveDB    *grove.DB
	engineOpts []entitle.Option
}

// New creates a new Entitle Forge extension with the given options.
func New(opts ...Option) *Extension {
	e := &Extension{
		BaseExtension: forge.NewBaseExtension(ExtensionName, ExtensionVersion, ExtensionDescription),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Engine returns the underlying Entitle engine.
// This is nil until Register is called.
func (e *Extension) Engine() *entitle.Engine { return e.engine }

// Register implements [forge.Extension]. It loads configuration,
// initializes the engine, and registers it in the DI container.
func (e *Extension) Register(fapp forge.App) error {
	if err := e.BaseExtension.Register(fapp); err != nil {
		return err
	}

	if err := e.loadConfiguration(); err != nil {
		return err
	}

	if e.store == nil {
		s, err := newStore(e.config, e.groveDB)
		if err != nil {
			return err
		}
		e.store = s
	}

	e.engine = entitle.New(e.store, e.buildEngineOpts()...)

	return vessel.Provide(fapp.Container(), func() (*entitle.Engine, error) {
		return e.engine, nil
	})
}

// Start implements [forge.Extension].
func (e *Extension) Start(ctx context.Context) error {
	if e.engine == nil {
		return errors.New("entitle: extension not initialized")
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
		return errors.New("entitle: store not initialized")
	}
	return e.store.Ping(ctx)
}

// newStore builds the store selected by cfg.Driver.
func newStore(cfg Config, db *grove.DB) (store.Store, error) {
	switch cfg.Driver {
	case "", DriverMemory:
		return memory.New(), nil
	case DriverSQLite, DriverPostgres, DriverMongo:
		if db == nil {
			return nil, fmt.Errorf("%w: driver %q", ErrGroveDBRequired, cfg.Driver)
		}
		switch cfg.Driver {
		case DriverSQLite:
			return sqlite.New(db), nil
		case DriverPostgres:
			return postgres.New(db), nil
		default:
			return mongo.New(db), nil
		}
	case DriverRedis:
		client := goredis.NewClient(&goredis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		return redisstore.New(client, cfg.Redis.Namespace), nil
	default:
		return nil, fmt.Errorf("entitle: unknown store driver %q", cfg.Driver)
	}
}

// buildEngineOpts constructs entitle.Option values from the resolved config.
func (e *Extension) buildEngineOpts() []entitle.Option {
	opts := make([]entitle.Option, 0, len(e.engineOpts)+2)

	if e.config.WelcomeCredits {
		opts = append(opts, entitle.WithWelcomeCredits())
	}
	if e.config.ExpiryWarning > 0 {
		opts = append(opts, entitle.WithExpiryWarning(e.config.ExpiryWarning))
	}

	// Append any pass-through engine options.
	opts = append(opts, e.engineOpts...)

	return opts
}

// --- Config Loading (mirrors grove/shield extension pattern) ---

// loadConfiguration loads config from YAML files or programmatic sources.
func (e *Extension) loadConfiguration() error {
	programmaticConfig := e.config

	fileConfig, configLoaded := e.tryLoadFromConfigFile()

	if !configLoaded {
		if programmaticConfig.RequireConfig {
			return errors.New("entitle: configuration is required but not found in config files; " +
				"ensure 'extensions.entitle' or 'entitle' key exists in your config")
		}

		e.config = mergeWithDefaults(programmaticConfig)
	} else {
		e.config = mergeConfigurations(fileConfig, programmaticConfig)
	}

	e.Logger().Debug("entitle: configuration loaded",
		forge.F("disable_migrate", e.config.DisableMigrate),
		forge.F("driver", e.config.Driver),
		forge.F("welcome_credits", e.config.WelcomeCredits),
		forge.F("expiry_warning", e.config.ExpiryWarning),
	)

	return nil
}

// tryLoadFromConfigFile attempts to load config from YAML files.
func (e *Extension) tryLoadFromConfigFile() (Config, bool) {
	cm := e.App().Config()
	var cfg Config

	for _, key := range []string{"extensions.entitle", "entitle"} {
		if !cm.IsSet(key) {
			continue
		}
		if err := cm.Bind(key, &cfg); err == nil {
			e.Logger().Debug("entitle: loaded config from file",
				forge.F("key", key),
			)
			return cfg, true
		}
		e.Logger().Warn("entitle: failed to bind config",
			forge.F("key", key),
			forge.F("error", "bind failed"),
		)
	}

	return Config{}, false
}

// mergeWithDefaults fills zero-valued fields with defaults.
func mergeWithDefaults(cfg Config) Config {
	defaults := DefaultConfig()
	if cfg.Driver == "" {
		cfg.Driver = defaults.Driver
	}
	if cfg.ExpiryWarning == 0 {
		cfg.ExpiryWarning = defaults.ExpiryWarning
	}
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = defaults.Redis.Addr
	}
	if cfg.Redis.Namespace == "" {
		cfg.Redis.Namespace = defaults.Redis.Namespace
	}
	return cfg
}

// mergeConfigurations merges YAML config with programmatic options.
// YAML config takes precedence for most fields; programmatic bool flags fill gaps.
func mergeConfigurations(yamlConfig, programmaticConfig Config) Config {
	if programmaticConfig.DisableMigrate {
		yamlConfig.DisableMigrate = true
	}
	if programmaticConfig.WelcomeCredits {
		yamlConfig.WelcomeCredits = true
	}

	if yamlConfig.Driver == "" && programmaticConfig.Driver != "" {
		yamlConfig.Driver = programmaticConfig.Driver
	}
	if yamlConfig.ExpiryWarning == 0 && programmaticConfig.ExpiryWarning != 0 {
		yamlConfig.ExpiryWarning = programmaticConfig.ExpiryWarning
	}
	if yamlConfig.Redis.Addr == "" {
		yamlConfig.Redis.Addr = programmaticConfig.Redis.Addr
	}
	if yamlConfig.Redis.Password == "" {
		yamlConfig.Redis.Password = programmaticConfig.Redis.Password
	}
	if yamlConfig.Redis.DB == 0 {
		yamlConfig.Redis.DB = programmaticConfig.Redis.DB
	}
	if yamlConfig.Redis.Namespace == "" {
		yamlConfig.Redis.Namespace = programmaticConfig.Redis.Namespace
	}

	return mergeWithDefaults(yamlConfig)
}
