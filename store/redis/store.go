// Package redis persists entitle keys in Redis under a namespace prefix.
package redis

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/xraph/entitle/store"
)

// compile-time interface check
var _ store.Store = (*Store)(nil)

const defaultNamespace = "entitle"

// Store implements store.Store on a go-redis client.
type Store struct {
	client    *redis.Client
	namespace string
}

// New creates a Redis-backed Store. An empty namespace defaults to "entitle".
func New(client *redis.Client, namespace string) *Store {
	ns := namespace
	if ns == "" {
		ns = defaultNamespace
	}
	return &Store{client: client, namespace: ns}
}

// Client returns the underlying redis client.
func (s *Store) Client() *redis.Client { return s.client }

func (s *Store) key(k string) string {
	return fmt.Sprintf("%s:kv:%s", s.namespace, k)
}

func (s *Store) prefix() string {
	return s.namespace + ":kv:"
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	val, err := s.client.Get(ctx, s.key(key)).Result()
	if err == redis.Nil {
		return "", store.ErrNotFound
	}
	if err != nil {
		return "", wrap("get", key, err)
	}
	return val, nil
}

func (s *Store) Set(ctx context.Context, key, value string) error {
	if err := s.client.Set(ctx, s.key(key), value, 0).Err(); err != nil {
		return wrap("set", key, err)
	}
	return nil
}

func (s *Store) Remove(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.key(key)).Err(); err != nil {
		return wrap("remove", key, err)
	}
	return nil
}

func (s *Store) ListKeys(ctx context.Context) ([]string, error) {
	var keys []string
	iter := s.client.Scan(ctx, 0, s.prefix()+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, strings.TrimPrefix(iter.Val(), s.prefix()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("entitle/redis: list keys: %w: %w", errStore(err), err)
	}
	sort.Strings(keys)
	return keys, nil
}

// Migrate is a no-op; Redis needs no schema.
func (s *Store) Migrate(_ context.Context) error { return nil }

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("entitle/redis: ping: %w: %w", errStore(err), err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.client.Close()
}

func wrap(op, key string, err error) error {
	return fmt.Errorf("entitle/redis: %s %q: %w: %w", op, key, errStore(err), err)
}

// errStore maps client errors onto the store sentinels.
func errStore(err error) error {
	if errors.Is(err, redis.ErrClosed) {
		return store.ErrStoreClosed
	}
	return store.ErrStoreUnavailable
}
