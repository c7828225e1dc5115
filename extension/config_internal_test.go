package extension

import (
	"errors"
	"testing"
	"time"

	"github.com/xraph/entitle/store/memory"
	redisstore "github.com/xraph/entitle/store/redis"
)

func TestMergeWithDefaults(t *testing.T) {
	cfg := mergeWithDefaults(Config{WelcomeCredits: true})

	if cfg.Driver != DriverMemory {
		t.Errorf("Driver: got %q", cfg.Driver)
	}
	if cfg.ExpiryWarning != 72*time.Hour {
		t.Errorf("ExpiryWarning: got %v", cfg.ExpiryWarning)
	}
	if cfg.Redis.Addr != "localhost:6379" || cfg.Redis.Namespace != "entitle" {
		t.Errorf("Redis: got %+v", cfg.Redis)
	}
	if !cfg.WelcomeCredits {
		t.Error("WelcomeCredits lost")
	}
}

func TestMergeConfigurations(t *testing.T) {
	tests := []struct {
		name        string
		yaml, prog  Config
		wantDriver  string
		wantWarning time.Duration
		wantMigrate bool
		wantWelcome bool
		wantRedisDB int
	}{
		{
			name:        "yaml wins",
			yaml:        Config{Driver: DriverRedis, ExpiryWarning: time.Hour},
			prog:        Config{Driver: DriverSQLite, ExpiryWarning: 2 * time.Hour},
			wantDriver:  DriverRedis,
			wantWarning: time.Hour,
		},
		{
			name:        "programmatic fills gaps",
			yaml:        Config{},
			prog:        Config{Driver: DriverPostgres, Redis: RedisConfig{DB: 3}},
			wantDriver:  DriverPostgres,
			wantWarning: 72 * time.Hour,
			wantRedisDB: 3,
		},
		{
			name:        "programmatic flags",
			yaml:        Config{Driver: DriverMongo},
			prog:        Config{DisableMigrate: true, WelcomeCredits: true},
			wantDriver:  DriverMongo,
			wantWarning: 72 * time.Hour,
			wantMigrate: true,
			wantWelcome: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mergeConfigurations(tt.yaml, tt.prog)
			if got.Driver != tt.wantDriver {
				t.Errorf("Driver: got %q, want %q", got.Driver, tt.wantDriver)
			}
			if got.ExpiryWarning != tt.wantWarning {
				t.Errorf("ExpiryWarning: got %v, want %v", got.ExpiryWarning, tt.wantWarning)
			}
			if got.DisableMigrate != tt.wantMigrate {
				t.Errorf("DisableMigrate: got %v", got.DisableMigrate)
			}
			if got.WelcomeCredits != tt.wantWelcome {
				t.Errorf("WelcomeCredits: got %v", got.WelcomeCredits)
			}
			if got.Redis.DB != tt.wantRedisDB {
				t.Errorf("Redis.DB: got %d", got.Redis.DB)
			}
		})
	}
}

func TestNewStore(t *testing.T) {
	s, err := newStore(DefaultConfig(), nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := s.(*memory.Store); !ok {
		t.Errorf("memory driver: got %T", s)
	}

	cfg := DefaultConfig()
	cfg.Driver = DriverRedis
	s, err = newStore(cfg, nil)
	if err != nil {
		t.Fatal(err)
	}
	rs, ok := s.(*redisstore.Store)
	if !ok {
		t.Fatalf("redis driver: got %T", s)
	}
	_ = rs.Close()

	for _, driver := range []string{DriverSQLite, DriverPostgres, DriverMongo} {
		cfg.Driver = driver
		if _, err := newStore(cfg, nil); !errors.Is(err, ErrGroveDBRequired) {
			t.Errorf("%s without db: got %v", driver, err)
		}
	}

	cfg.Driver = "etcd"
	if _, err := newStore(cfg, nil); err == nil {
		t.Error("unknown driver: expected error")
	}
}

func TestBuildEngineOpts(t *testing.T) {
	e := New(WithWelcomeCredits(), WithExpiryWarning(time.Hour), WithDriver(DriverMemory))
	if got := len(e.buildEngineOpts()); got != 2 {
		t.Errorf("buildEngineOpts: got %d options, want 2", got)
	}
	if e.Engine() != nil {
		t.Error("Engine before Register: want nil")
	}
}
