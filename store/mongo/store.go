package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/xraph/grove"
	"github.com/xraph/grove/drivers/mongodriver"

	"github.com/xraph/entitle/store"
)

// colKV is the collection holding every persisted key.
const colKV = "entitle_kv"

// compile-time interface check
var _ store.Store = (*Store)(nil)

// Store implements store.Store using MongoDB via Grove ORM. Each key is a
// document whose _id is the key itself.
type Store struct {
	db  *grove.DB
	mdb *mongodriver.MongoDB
}

// New creates a new MongoDB store backed by Grove ORM.
func New(db *grove.DB) *Store {
	return &Store{
		db:  db,
		mdb: mongodriver.Unwrap(db),
	}
}

// DB returns the underlying grove database for direct access.
func (s *Store) DB() *grove.DB { return s.db }

// Migrate creates indexes for the entitle collection.
func (s *Store) Migrate(ctx context.Context) error {
	for col, models := range migrationIndexes() {
		if len(models) == 0 {
			continue
		}
		if _, err := s.mdb.Collection(col).Indexes().CreateMany(ctx, models); err != nil {
			return fmt.Errorf("entitle/mongo: migrate %s indexes: %w", col, err)
		}
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
	var m kvModel
	err := s.mdb.NewFind(&m).
		Filter(bson.M{"_id": key}).
		Scan(ctx)
	if err != nil {
		if isNoDocuments(err) {
			return "", store.ErrNotFound
		}
		return "", fmt.Errorf("entitle/mongo: get %q: %w: %w", key, store.ErrStoreUnavailable, err)
	}
	return m.Value, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	m := &kvModel{Key: key, Value: value, UpdatedAt: now()}
	_, err := s.mdb.NewUpdate(m).
		Filter(bson.M{"_id": m.Key}).
		SetUpdate(bson.M{"$set": bson.M{
			"_id":        m.Key,
			"value":      m.Value,
			"updated_at": m.UpdatedAt,
		}}).
		Upsert().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("entitle/mongo: set %q: %w: %w", key, store.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	_, err := s.mdb.NewDelete((*kvModel)(nil)).
		Filter(bson.M{"_id": key}).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("entitle/mongo: remove %q: %w: %w", key, store.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	var models []kvModel
	err := s.mdb.NewFind(&models).
		Filter(bson.M{}).
		Sort(bson.D{{Key: "_id", Value: 1}}).
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("entitle/mongo: list keys: %w: %w", store.ErrStoreUnavailable, err)
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

// isNoDocuments checks if an error wraps mongo.ErrNoDocuments.
func isNoDocuments(err error) bool {
	return errors.Is(err, mongo.ErrNoDocuments)
}

// migrationIndexes returns the index definitions for the entitle collection.
func migrationIndexes() map[string][]mongo.IndexModel {
	return map[string][]mongo.IndexModel{
		colKV: {
			{Keys: bson.D{{Key: "updated_at", Value: -1}}},
		},
	}
}
