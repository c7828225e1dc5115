// Package store defines the persistent key-value storage used to hold
// entitlement and subscription documents.
//
// The namespace is flat and values are opaque strings (JSON documents in
// practice). Backends live in sub-packages: memory, sqlite, postgres,
// mongo and redis.
package store

import (
	"context"
	"errors"
)

// Sentinel errors returned by backends.
var (
	// ErrNotFound is returned by Get when the key has no value.
	ErrNotFound = errors.New("entitle: key not found")

	// ErrStoreUnavailable wraps backend I/O failures.
	ErrStoreUnavailable = errors.New("entitle: store unavailable")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("entitle: store is closed")
)

// Store is the persistent key-value interface every backend implements.
type Store interface {
	// Get returns the value for key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Set stores value under key, replacing any previous value.
	Set(ctx context.Context, key, value string) error
	// Remove deletes key. Removing a missing key is not an error.
	Remove(ctx context.Context, key string) error
	// ListKeys returns every stored key in ascending order.
	ListKeys(ctx context.Context) ([]string, error)

	// Core methods
	Migrate(ctx context.Context) error
	Ping(ctx context.Context) error
	Close() error
}

// IsNotFound reports whether err means the key has no value.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
