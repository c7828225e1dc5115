package subscription

import (
	"errors"
	"fmt"
	"time"

	"github.com/xraph/entitle/id"
	"github.com/xraph/entitle/product"
)

// Key is the store key holding the singleton subscription record.
const Key = "active-subscription"

var (
	ErrNotSubscription = errors.New("entitle: product is not a subscription")
	ErrInvalidRecord   = errors.New("entitle: invalid subscription record")
)

// Type is the billing period of a subscription.
type Type string

const (
	TypeMonthly Type = "monthly"
	TypeYearly  Type = "yearly"
)

// TypeFor maps a product class to its subscription type.
func TypeFor(class product.Class) (Type, bool) {
	switch class {
	case product.ClassSubscriptionMonthly:
		return TypeMonthly, true
	case product.ClassSubscriptionYearly:
		return TypeYearly, true
	default:
		return "", false
	}
}

// Record is the active subscription. At most one exists at a time.
type Record struct {
	ID           id.ID     `json:"id"`
	Type         Type      `json:"type"`
	ProductID    string    `json:"product_id"`
	StartTime    time.Time `json:"start_time"`
	ExpiryTime   time.Time `json:"expiry_time"`
	AutoRenewing bool      `json:"auto_renewing"`
	Active       bool      `json:"active"`
}

// NewRecord builds the record bought by a subscription product at now.
func NewRecord(p product.Product, now time.Time) (*Record, error) {
	typ, ok := TypeFor(p.Class)
	if !ok || !p.IsSubscription() {
		return nil, fmt.Errorf("%w: %s", ErrNotSubscription, p.ID)
	}
	now = now.UTC()
	return &Record{
		ID:           id.NewSubscriptionID(),
		Type:         typ,
		ProductID:    p.ID,
		StartTime:    now,
		ExpiryTime:   now.Add(p.Term()),
		AutoRenewing: true,
		Active:       true,
	}, nil
}

// Expired reports whether the record has lapsed at now.
func (r *Record) Expired(now time.Time) bool {
	return !r.ExpiryTime.After(now)
}

// Remaining returns the time left before expiry, or zero once lapsed.
func (r *Record) Remaining(now time.Time) time.Duration {
	if r.Expired(now) {
		return 0
	}
	return r.ExpiryTime.Sub(now)
}

func (r *Record) validate() error {
	switch {
	case r.Type != TypeMonthly && r.Type != TypeYearly:
		return fmt.Errorf("%w: unknown type %q", ErrInvalidRecord, r.Type)
	case r.ProductID == "":
		return fmt.Errorf("%w: empty product id", ErrInvalidRecord)
	case !r.ExpiryTime.After(r.StartTime):
		return fmt.Errorf("%w: expiry before start", ErrInvalidRecord)
	}
	return nil
}

// recordModel is the persisted shape: millisecond epoch timestamps and
// camelCase keys.
type recordModel struct {
	ID           string `json:"id,omitempty"`
	Type         Type   `json:"type"`
	ProductID    string `json:"productId"`
	StartTime    int64  `json:"startTime"`
	ExpiryTime   int64  `json:"expiryTime"`
	AutoRenewing bool   `json:"autoRenewing"`
	Active       bool   `json:"active"`
}

func toModel(r *Record) *recordModel {
	m := &recordModel{
		Type:         r.Type,
		ProductID:    r.ProductID,
		StartTime:    r.StartTime.UnixMilli(),
		ExpiryTime:   r.ExpiryTime.UnixMilli(),
		AutoRenewing: r.AutoRenewing,
		Active:       r.Active,
	}
	if !r.ID.IsNil() {
		m.ID = r.ID.String()
	}
	return m
}

func fromModel(m *recordModel) (*Record, error) {
	r := &Record{
		Type:         m.Type,
		ProductID:    m.ProductID,
		StartTime:    time.UnixMilli(m.StartTime).UTC(),
		ExpiryTime:   time.UnixMilli(m.ExpiryTime).UTC(),
		AutoRenewing: m.AutoRenewing,
		Active:       m.Active,
	}
	if m.ID != "" {
		subID, err := id.ParseSubscriptionID(m.ID)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidRecord, err)
		}
		r.ID = subID
	}
	return r, nil
}
