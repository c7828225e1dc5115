// Package purchase drives purchase attempts through their lifecycle,
// turning platform SDK callbacks into a resolved outcome and applying the
// grant on success.
package purchase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/id"
	"github.com/xraph/entitle/plugin"
	"github.com/xraph/entitle/product"
	"github.com/xraph/entitle/subscription"
	"github.com/xraph/entitle/types"
)

// CreditGranter adds credits to a consumable pool.
type CreditGranter interface {
	Grant(ctx context.Context, productID string, units int) (entitlement.Record, error)
}

// SubscriptionStore saves and cancels the subscription record.
type SubscriptionStore interface {
	Save(ctx context.Context, rec *subscription.Record) error
	Cancel(ctx context.Context) (bool, error)
}

// Option configures a Machine.
type Option func(*Machine)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Machine) { m.logger = l }
}

// WithPlugins sets the registry notified of state changes and failures.
func WithPlugins(r *plugin.Registry) Option {
	return func(m *Machine) { m.plugins = r }
}

// WithValidator sets the receipt validator. The default is AlwaysValid.
func WithValidator(v ReceiptValidator) Option {
	return func(m *Machine) { m.validator = v }
}

// WithClock overrides the time source used for transaction timestamps and
// subscription terms.
func WithClock(now func() time.Time) Option {
	return func(m *Machine) { m.now = now }
}

// flight is the in-flight purchase of one product. Its caller slot is held
// until resolved; the transaction keeps tracking state until terminal.
type flight struct {
	tx       *Transaction
	done     chan struct{}
	err      error
	resolved bool
	granting bool
	granted  bool
	verified bool
}

// Machine runs purchases. At most one unresolved order exists per product.
type Machine struct {
	catalog   *product.Catalog
	sdk       SDK
	credits   CreditGranter
	subs      SubscriptionStore
	validator ReceiptValidator
	now       func() time.Time
	plugins   *plugin.Registry
	logger    *slog.Logger

	mu      sync.Mutex
	ready   bool
	flights map[string]*flight
}

// NewMachine creates a Machine. Start must be called before ordering.
func NewMachine(catalog *product.Catalog, sdk SDK, credits CreditGranter, subs SubscriptionStore, opts ...Option) *Machine {
	m := &Machine{
		catalog:   catalog,
		sdk:       sdk,
		credits:   credits,
		subs:      subs,
		validator: AlwaysValid,
		now:       time.Now,
		plugins:   plugin.NewRegistry(),
		logger:    slog.Default(),
		flights:   make(map[string]*flight),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start registers the catalog with the SDK and subscribes to its events.
// Calling it again is a no-op.
func (m *Machine) Start(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ready {
		return nil
	}
	for _, p := range m.catalog.All() {
		if err := m.sdk.Register(p.ID, p.Kind); err != nil {
			return fmt.Errorf("entitle: register product %s: %w", p.ID, err)
		}
	}
	m.sdk.Subscribe(m)
	m.ready = true

	m.logger.Info("purchase machine started", "products", m.catalog.Len())
	return nil
}

// PurchaseItem orders a product and waits for the outcome or for ctx to end.
func (m *Machine) PurchaseItem(ctx context.Context, productID string) (*Transaction, error) {
	return m.order(ctx, productID)
}

// PurchaseSubscription orders a subscription plan.
func (m *Machine) PurchaseSubscription(ctx context.Context, productID string) (*Transaction, error) {
	p, ok := m.catalog.Lookup(productID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	if !p.IsSubscription() {
		return nil, fmt.Errorf("%w: %s", ErrNotSubscriptionProduct, productID)
	}
	return m.order(ctx, productID)
}

// CancelSubscription removes the active subscription locally.
func (m *Machine) CancelSubscription(ctx context.Context) (bool, error) {
	return m.subs.Cancel(ctx)
}

// Pending reports whether an unresolved order exists for productID.
func (m *Machine) Pending(productID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	f, ok := m.flights[productID]
	return ok && !f.resolved
}

func (m *Machine) order(ctx context.Context, productID string) (*Transaction, error) {
	if _, ok := m.catalog.Lookup(productID); !ok {
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}

	m.mu.Lock()
	if !m.ready {
		m.mu.Unlock()
		return nil, ErrStoreNotReady
	}
	if f, busy := m.flights[productID]; busy && !f.resolved {
		m.mu.Unlock()
		m.logger.Warn("superseding order rejected", "product_id", productID)
		return nil, fmt.Errorf("%w: %s", ErrSuperseded, productID)
	}
	if _, ok := m.sdk.Get(productID); !ok {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: %s", ErrProductNotFound, productID)
	}
	f := m.newFlight(id.NewTransactionID(), productID)
	m.flights[productID] = f
	snapshot := f.tx.clone()
	m.mu.Unlock()

	m.logger.Info("purchase ordered",
		"transaction_id", snapshot.ID.String(),
		"product_id", productID,
	)
	m.plugins.EmitPurchaseStateChanged(ctx, snapshot, "", string(StateOrdered))

	if err := m.sdk.Order(ctx, productID); err != nil {
		m.fail(ctx, productID, f, fmt.Errorf("%w: order: %w", ErrPurchaseFailed, err))
		return m.outcome(f)
	}

	select {
	case <-f.done:
		return m.outcome(f)
	case <-ctx.Done():
		m.abandon(productID, f, ctx.Err())
		return m.outcome(f)
	}
}

func (m *Machine) newFlight(txID id.ID, productID string) *flight {
	now := m.now()
	return &flight{
		tx: &Transaction{
			Entity:    types.NewEntity(now),
			ID:        txID,
			ProductID: productID,
			State:     StateOrdered,
		},
		done: make(chan struct{}),
	}
}

func (m *Machine) outcome(f *flight) (*Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return f.tx.clone(), f.err
}

// abandon releases the caller slot when the caller stops waiting. A later
// approval is still granted.
func (m *Machine) abandon(productID string, f *flight, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if f.resolved {
		return
	}
	m.resolve(f, err)
	if m.flights[productID] == f {
		delete(m.flights, productID)
	}
	m.logger.Info("purchase wait abandoned",
		"product_id", productID,
		"error", err,
	)
}

// resolve unblocks the waiting caller. Callers hold m.mu.
func (m *Machine) resolve(f *flight, err error) {
	if f.resolved {
		return
	}
	f.resolved = true
	f.err = err
	close(f.done)
}

// advance moves f to state to, returning the previous state. Illegal
// transitions are ignored and logged. Callers hold m.mu.
func (m *Machine) advance(productID string, f *flight, to State) (State, bool) {
	from := f.tx.State
	if to == StateCancelled && f.granting {
		m.logger.Warn("cancel after grant ignored",
			"product_id", productID,
			"state", string(from),
		)
		return from, false
	}
	if !canTransition(from, to) {
		m.logger.Warn("illegal purchase transition ignored",
			"product_id", productID,
			"from", string(from),
			"to", string(to),
		)
		return from, false
	}
	f.tx.State = to
	f.tx.Touch(m.now())
	if to.Terminal() && m.flights[productID] == f {
		delete(m.flights, productID)
	}
	return from, true
}

// step applies a transition and notifies plugins. It returns the flight
// and whether the transition was accepted.
func (m *Machine) step(ctx context.Context, productID string, to State) (*flight, bool) {
	m.mu.Lock()
	f, ok := m.flights[productID]
	if !ok {
		m.mu.Unlock()
		m.logger.Debug("purchase event without transaction",
			"product_id", productID,
			"state", string(to),
		)
		return nil, false
	}
	from, accepted := m.advance(productID, f, to)
	snapshot := f.tx.clone()
	m.mu.Unlock()

	if accepted {
		m.plugins.EmitPurchaseStateChanged(ctx, snapshot, string(from), string(to))
	}
	return f, accepted
}

// fail moves f to Error and rejects the caller with err.
func (m *Machine) fail(ctx context.Context, productID string, f *flight, err error) {
	m.mu.Lock()
	from, accepted := m.advance(productID, f, StateError)
	f.tx.Err = err.Error()
	m.resolve(f, err)
	if m.flights[productID] == f {
		delete(m.flights, productID)
	}
	snapshot := f.tx.clone()
	m.mu.Unlock()

	m.logger.Error("purchase failed",
		"transaction_id", snapshot.ID.String(),
		"product_id", productID,
		"error", err,
	)
	if accepted {
		m.plugins.EmitPurchaseStateChanged(ctx, snapshot, string(from), string(StateError))
	}
	m.plugins.EmitPurchaseFailed(ctx, snapshot, err)
}

// OnApproved verifies and validates the receipt, applies the grant and
// finishes the transaction. Approvals without an order, such as platform
// re-delivery, are granted too.
func (m *Machine) OnApproved(ctx context.Context, tx *Transaction) {
	p, ok := m.catalog.Lookup(tx.ProductID)
	if !ok {
		m.logger.Warn("approval for unknown product ignored", "product_id", tx.ProductID)
		return
	}

	m.mu.Lock()
	if _, ok := m.flights[p.ID]; !ok {
		txID := tx.ID
		if txID.IsNil() {
			txID = id.NewTransactionID()
		}
		m.flights[p.ID] = m.newFlight(txID, p.ID)
		m.logger.Info("approval without pending order", "product_id", p.ID)
	}
	m.flights[p.ID].tx.Receipt = tx.Receipt
	m.mu.Unlock()

	f, accepted := m.step(ctx, p.ID, StateApproved)
	if !accepted {
		return
	}

	if err := m.sdk.Verify(ctx, tx); err != nil {
		m.fail(ctx, p.ID, f, fmt.Errorf("%w: verify: %w", ErrPurchaseFailed, err))
		return
	}

	valid, err := m.validator.ValidateReceipt(ctx, tx)
	if err != nil {
		m.fail(ctx, p.ID, f, fmt.Errorf("%w: validate receipt: %w", ErrPurchaseFailed, err))
		return
	}
	if !valid {
		m.fail(ctx, p.ID, f, fmt.Errorf("%w: %s", ErrReceiptInvalid, p.ID))
		return
	}

	m.mu.Lock()
	f.granting = true
	m.mu.Unlock()

	if err := m.grant(ctx, p); err != nil {
		m.fail(ctx, p.ID, f, fmt.Errorf("%w: grant: %w", ErrPurchaseFailed, err))
		return
	}

	m.mu.Lock()
	f.granted = true
	if f.verified {
		m.resolve(f, nil)
	}
	m.mu.Unlock()

	if err := m.sdk.Finish(ctx, tx); err != nil {
		m.logger.Warn("finish transaction failed",
			"product_id", p.ID,
			"error", err,
		)
	}
}

// grant applies the purchase to the ledger or the subscription record.
func (m *Machine) grant(ctx context.Context, p product.Product) error {
	if p.IsSubscription() {
		rec, err := subscription.NewRecord(p, m.now())
		if err != nil {
			return err
		}
		return m.subs.Save(ctx, rec)
	}
	_, err := m.credits.Grant(ctx, p.ID, p.GrantSize)
	return err
}

// OnVerified marks the transaction verified and resolves the caller once
// the grant is applied.
func (m *Machine) OnVerified(ctx context.Context, tx *Transaction) {
	f, accepted := m.step(ctx, tx.ProductID, StateVerified)
	if !accepted {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	f.verified = true
	if f.granted {
		m.resolve(f, nil)
	}
}

// OnFinished records the end of a successful purchase.
func (m *Machine) OnFinished(ctx context.Context, tx *Transaction) {
	f, accepted := m.step(ctx, tx.ProductID, StateFinished)
	if !accepted {
		return
	}

	m.mu.Lock()
	if f.granted {
		m.resolve(f, nil)
	}
	m.mu.Unlock()

	m.logger.Info("purchase finished",
		"transaction_id", f.tx.ID.String(),
		"product_id", tx.ProductID,
	)
}

// OnCancelled rejects the pending order. Once the grant has started the
// purchase can no longer be cancelled and the event is ignored.
func (m *Machine) OnCancelled(ctx context.Context, tx *Transaction) {
	f, accepted := m.step(ctx, tx.ProductID, StateCancelled)
	if !accepted {
		return
	}

	m.mu.Lock()
	m.resolve(f, fmt.Errorf("%w: %s", ErrPurchaseCancelled, tx.ProductID))
	snapshot := f.tx.clone()
	m.mu.Unlock()

	m.logger.Info("purchase cancelled", "product_id", tx.ProductID)
	m.plugins.EmitPurchaseFailed(ctx, snapshot, ErrPurchaseCancelled)
}

// OnError logs an SDK error. It carries no product, so no order is resolved.
func (m *Machine) OnError(ctx context.Context, err error) {
	m.logger.Error("purchase sdk error", "error", err)
	m.plugins.EmitPurchaseFailed(ctx, nil, err)
}
