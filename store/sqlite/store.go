package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/sqlitedriver"
	"github.com/xraph/grove/migrate"

	"github.com/xraph/entitle/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using SQLite via Grove ORM.
type Store struct {
	db  *grove.DB
	sdb *sqlitedriver.SqliteDB
}

// New creates a new SQLite store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		sdb: sqlitedriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates the required tables and indexes using the grove orchestrator.
func (s *Store) Migrate(ctx context.Context) error {
	executor, err := migrate.NewExecutorFor(s.sdb)
	if err != nil {
		return fmt.Errorf("entitle/sqlite: create migration executor: %w", err)
	}
	orch := migrate.NewOrchestrator(executor, Migrations)
	if _, err := orch.Migrate(ctx); err != nil {
		return fmt.Errorf("entitle/sqlite: migration failed: %w", err)
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
	err := s.sdb.NewSelect(m).
		Where("key = ?", key).
		Scan(ctx)
	if err != nil {
		if isNoRows(err) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("entitle/sqlite: get %q: %w: %w", key, store.ErrStoreUnavailable, err)
	}
	return m.Value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	m := &kvModel{Key: key, Value: value, UpdatedAt: now()}
	_, err := s.sdb.NewInsert(m).
		OnConflict("(key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("entitle/sqlite: set %q: %w: %w", key, store.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.sdb.NewDelete((*kvModel)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("entitle/sqlite: remove %q: %w: %w", key, store.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	var models []kvModel
	if err := s.sdb.NewSelect(&models).OrderExpr("key ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("entitle/sqlite: list keys: %w: %w", store.ErrStoreUnavailable, err)
	}
	keys := make([]string, len(models))
	for i := range models {
		keys[i] = models[i].Key
	}
	return keys, nil
}

func now() time.Time {
	return time.Now().UTC()
}

func isNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
