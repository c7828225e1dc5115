package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/pgdriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/entitle/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using PostgreSQL via Grove ORM.
type Store struct {
	db *grove.DB
	pg *pgdriver.PgDB
}

// New creates a new PostgreSQL store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db: db,
		pg: pgdriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.pg)
	if err != nil {
		return fmt.Errorf("entitle/postgres: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("entitle/postgres: migration failed: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	m := new(kvModel)
	err := s.pg.NewSelect(m).
		Where("key = $1", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("entitle/postgres: get %q: %w: %w", key, store.ErrStoreUnavailable, err)
	}
	return m.Value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	m := toKVModel(key, value)
	_, err := s.pg.NewInsert(m).
		OnConflict("(key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("entitle/postgres: set %q: %w: %w", key, store.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.pg.NewDelete((*kvModel)(nil)).
		Where("key = $1", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("entitle/postgres: remove %q: %w: %w", key, store.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	var models []kvModel
	if err := s.pg.NewSelect(&models).OrderExpr("key ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("entitle/postgres: list keys: %w: %w", store.ErrStoreUnavailable, err)
	}
	keys := make([]string, len(models))
	for i := range models {
		keys[i] = models[i].Key
	}
	return keys, nil
}

// now returns the current UTC time.
func now() time.Time {
	return time.Now().UTC()
}

// isNoRows checks for the standard sql.ErrNoRows sentinel.
func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
