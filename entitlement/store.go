// Package entitlement keeps the credit ledger: per-product owned and consumed
// counters persisted as one JSON document.
package entitlement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"

	"github.com/xraph/entitle/plugin"
	"github.com/xraph/entitle/store"
)

var (
	ErrInvalidUnits = errors.New("entitle: invalid grant units")
	ErrCorrupt      = errors.New("entitle: corrupt entitlement document")
)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) { s.logger = l }
}

// WithPlugins sets the registry notified of grants, consumption and pool
// retirement.
func WithPlugins(r *plugin.Registry) Option {
	return func(s *Store) { s.plugins = r }
}

// WithWelcomeRecords seeds the ledger the first time the document is created.
func WithWelcomeRecords(records ...Record) Option {
	return func(s *Store) { s.welcome = append(s.welcome, records...) }
}

// WithFeatureNames maps product ids to the feature names stored alongside
// new records.
func WithFeatureNames(names map[string]string) Option {
	return func(s *Store) { s.features = names }
}

// Store is the entitlement ledger. All operations share one document, so a
// single mutex serializes every read-modify-write and no two Consume calls
// can observe the same balance.
type Store struct {
	mu       sync.Mutex
	kv       store.Store
	welcome  []Record
	features map[string]string
	plugins  *plugin.Registry
	logger   *slog.Logger
}

// NewStore creates a ledger persisted in kv.
func NewStore(kv store.Store, opts ...Option) *Store {
	s := &Store{
		kv:      kv,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns the record for productID, or a zero record when none exists.
// It only fails on storage errors.
func (s *Store) Get(ctx context.Context, productID string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return Record{}, err
	}
	if i := indexOf(records, productID); i >= 0 {
		return records[i], nil
	}
	return s.blank(productID), nil
}

// Grant adds units on top of the remaining balance and starts a fresh pool:
// owned becomes remaining+units and consumed resets to zero.
func (s *Store) Grant(ctx context.Context, productID string, units int) (Record, error) {
	if units <= 0 {
		return Record{}, fmt.Errorf("%w: %d", ErrInvalidUnits, units)
	}

	r, err := s.grant(ctx, productID, units)
	if err != nil {
		return Record{}, err
	}

	s.logger.Info("credits granted",
		"product_id", productID,
		"units", units,
		"remaining", r.Owned,
	)
	s.plugins.EmitCreditsGranted(ctx, r, units)
	return r, nil
}

func (s *Store) grant(ctx context.Context, productID string, units int) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return Record{}, err
	}
	i := indexOf(records, productID)
	if i < 0 {
		records = append(records, s.blank(productID))
		i = len(records) - 1
	}

	r := &records[i]
	held := r.Remaining()
	if units > math.MaxInt-held {
		return Record{}, fmt.Errorf("%w: %d on top of %d overflows", ErrInvalidUnits, units, held)
	}
	r.Owned = held + units
	r.Consumed = 0
	r.Purchased = true

	if err := s.save(ctx, records); err != nil {
		return Record{}, err
	}
	return *r, nil
}

// Consume spends one credit of productID.
func (s *Store) Consume(ctx context.Context, productID string) (ConsumeResult, error) {
	return s.ConsumeFirstAvailable(ctx, []string{productID})
}

// ConsumeFirstAvailable spends one credit from the first product in ids that
// has one. Earlier tiers are drained before later ones.
func (s *Store) ConsumeFirstAvailable(ctx context.Context, ids []string) (ConsumeResult, error) {
	res, err := s.consumeFirst(ctx, ids)
	if err != nil || !res.Granted() {
		return res, err
	}

	s.logger.Debug("credit consumed",
		"product_id", res.ProductID,
		"outcome", res.Outcome.String(),
		"remaining", res.Remaining,
	)
	s.plugins.EmitCreditConsumed(ctx, res)
	if res.Outcome == Exhausted {
		s.logger.Info("credit pool retired", "product_id", res.ProductID)
		s.plugins.EmitPoolRetired(ctx, res.ProductID)
	}
	return res, nil
}

func (s *Store) consumeFirst(ctx context.Context, ids []string) (ConsumeResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return ConsumeResult{Outcome: Unavailable}, err
	}

	for _, productID := range ids {
		i := indexOf(records, productID)
		if i < 0 || !records[i].Live() {
			continue
		}

		res := spend(&records[i])
		if err := s.save(ctx, records); err != nil {
			return ConsumeResult{Outcome: Unavailable}, err
		}
		return res, nil
	}
	return ConsumeResult{Outcome: Unavailable}, nil
}

// spend takes one credit from a live record, retiring the pool when it runs
// dry.
func spend(r *Record) ConsumeResult {
	r.Consumed++
	if r.Consumed >= r.Owned {
		r.Owned = 0
		r.Consumed = 0
		r.Purchased = false
		return ConsumeResult{Outcome: Exhausted, ProductID: r.ProductID}
	}
	return ConsumeResult{Outcome: Ok, ProductID: r.ProductID, Remaining: r.Remaining()}
}

// TotalRemaining sums the unspent credits of ids.
func (s *Store) TotalRemaining(ctx context.Context, ids []string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, productID := range ids {
		if i := indexOf(records, productID); i >= 0 {
			n := records[i].Remaining()
			if n > math.MaxInt-total {
				return math.MaxInt, nil
			}
			total += n
		}
	}
	return total, nil
}

// List returns a copy of every stored record.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Record, len(records))
	copy(out, records)
	return out, nil
}

// Restore merges records from a backup. A record only replaces the local one
// when the local pool is not purchased, so live credits are never lost.
// It returns the number of records applied.
func (s *Store) Restore(ctx context.Context, incoming []Record) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.load(ctx)
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, in := range incoming {
		if in.ProductID == "" || !in.Live() {
			continue
		}
		if in.Consumed < 0 {
			in.Consumed = 0
		}
		i := indexOf(records, in.ProductID)
		switch {
		case i < 0:
			records = append(records, in)
		case records[i].Purchased:
			continue
		default:
			records[i] = in
		}
		applied++
	}

	if applied == 0 {
		return 0, nil
	}
	if err := s.save(ctx, records); err != nil {
		return 0, err
	}
	s.logger.Info("entitlements restored", "records", applied)
	return applied, nil
}

// load reads the document, seeding welcome records when it does not exist.
// Callers hold s.mu.
func (s *Store) load(ctx context.Context) ([]Record, error) {
	raw, err := s.kv.Get(ctx, Key)
	if store.IsNotFound(err) {
		if len(s.welcome) == 0 {
			return nil, nil
		}
		records := make([]Record, len(s.welcome))
		copy(records, s.welcome)
		if err := s.save(ctx, records); err != nil {
			return nil, err
		}
		s.logger.Info("entitlement ledger seeded", "records", len(records))
		return records, nil
	}
	if err != nil {
		return nil, fmt.Errorf("entitle: load entitlements: %w", err)
	}

	var records []Record
	if err := json.Unmarshal([]byte(raw), &records); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCorrupt, err)
	}
	return records, nil
}

// save writes the whole document. Callers hold s.mu.
func (s *Store) save(ctx context.Context, records []Record) error {
	data, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("entitle: encode entitlements: %w", err)
	}
	if err := s.kv.Set(ctx, Key, string(data)); err != nil {
		return fmt.Errorf("entitle: save entitlements: %w", err)
	}
	return nil
}

func (s *Store) blank(productID string) Record {
	return Record{ProductID: productID, Feature: s.features[productID]}
}

func indexOf(records []Record, productID string) int {
	for i := range records {
		if records[i].ProductID == productID {
			return i
		}
	}
	return -1
}
