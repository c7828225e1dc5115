// Package id defines TypeID-based identity types for Entitle entities.
//
// IDs are K-sortable (UUIDv7-based), globally unique, and URL-safe in the
// format "prefix_suffix".
package id

import (
	"fmt"

	"go.jetify.com/typeid/v2"
)

// Prefix identifies the entity type encoded in a TypeID.
type Prefix string

// Prefix constants for Entitle entity types.
const (
	PrefixTransaction  Prefix = "ptx" // Purchase transaction
	PrefixSubscription Prefix = "sub" // Subscription record
	PrefixBackup       Prefix = "bkp" // Cloud backup document
)

// ID is the primary identifier type for Entitle entities.
//
//nolint:recvcheck // Value receivers for read-only methods, pointer receiver for UnmarshalText.
type ID struct {
	inner typeid.TypeID
	valid bool
}

// Nil is the zero-value ID.
var Nil ID

// New generates a new globally unique ID with the given prefix.
// It panics if prefix is not a valid TypeID prefix (programming error).
func New(prefix Prefix) ID {
	tid, err := typeid.Generate(string(prefix))
	if err != nil {
		panic(fmt.Sprintf("id: invalid prefix %q: %v", prefix, err))
	}

	return ID{inner: tid, valid: true}
}

// Parse parses a TypeID string (e.g., "ptx_01h2xcejqtf2nbrexx3vqjhp41").
func Parse(s string) (ID, error) {
	if s == "" {
		return Nil, fmt.Errorf("id: parse %q: empty string", s)
	}

	tid, err := typeid.Parse(s)
	if err != nil {
		return Nil, fmt.Errorf("id: parse %q: %w", s, err)
	}

	return ID{inner: tid, valid: true}, nil
}

// ParseWithPrefix parses a TypeID string and validates that its prefix
// matches the expected value.
func ParseWithPrefix(s string, expected Prefix) (ID, error) {
	parsed, err := Parse(s)
	if err != nil {
		return Nil, err
	}

	if parsed.Prefix() != expected {
		return Nil, fmt.Errorf("id: expected prefix %q, got %q", expected, parsed.Prefix())
	}

	return parsed, nil
}

// NewTransactionID generates a new purchase transaction ID.
func NewTransactionID() ID { return New(PrefixTransaction) }

// NewSubscriptionID generates a new subscription record ID.
func NewSubscriptionID() ID { return New(PrefixSubscription) }

// NewBackupID generates a new backup document ID.
func NewBackupID() ID { return New(PrefixBackup) }

// ParseSubscriptionID parses a string and validates the "sub" prefix.
func ParseSubscriptionID(s string) (ID, error) { return ParseWithPrefix(s, PrefixSubscription) }

// ParseBackupID parses a string and validates the "bkp" prefix.
func ParseBackupID(s string) (ID, error) { return ParseWithPrefix(s, PrefixBackup) }

// String returns the full TypeID string representation (prefix_suffix).
// Returns an empty string for the Nil ID.
func (i ID) String() string {
	if !i.valid {
		return ""
	}

	return i.inner.String()
}

// Prefix returns the prefix component of this ID.
func (i ID) Prefix() Prefix {
	if !i.valid {
		return ""
	}

	return Prefix(i.inner.Prefix())
}

// IsNil reports whether this ID is the zero value.
func (i ID) IsNil() bool {
	return !i.valid
}

// MarshalText implements encoding.TextMarshaler.
func (i ID) MarshalText() ([]byte, error) {
	if !i.valid {
		return []byte{}, nil
	}

	return []byte(i.inner.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (i *ID) UnmarshalText(data []byte) error {
	if len(data) == 0 {
		*i = Nil

		return nil
	}

	parsed, err := Parse(string(data))
	if err != nil {
		return err
	}

	*i = parsed

	return nil
}
