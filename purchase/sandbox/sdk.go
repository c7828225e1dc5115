// Package sandbox is an in-process purchase SDK. Orders complete without a
// payment processor, which makes it suitable for development builds and
// tests.
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xraph/entitle/id"
	"github.com/xraph/entitle/product"
	"github.com/xraph/entitle/purchase"
)

// compile-time interface check
var _ purchase.SDK = (*SDK)(nil)

var (
	ErrNotRegistered = errors.New("sandbox: product not registered")
	ErrNotHeld       = errors.New("sandbox: no held order for product")
)

// Outcome is how the sandbox answers an order.
type Outcome int

const (
	// Approve approves, verifies and finishes the order.
	Approve Outcome = iota
	// Cancel reports user dismissal.
	Cancel
	// Fail reports an SDK error carrying no transaction.
	Fail
	// Hold parks the order until Release is called.
	Hold
)

// SDK is the sandbox store.
type SDK struct {
	mu         sync.Mutex
	products   map[string]product.Kind
	outcomes   map[string]Outcome
	held       map[string]*purchase.Transaction
	handlers   []purchase.Handler
	finished   []string
	orderErr   error
	verifyErr  error
	skipVerify bool
}

// New creates a sandbox SDK that approves every order.
func New() *SDK {
	return &SDK{
		products: make(map[string]product.Kind),
		outcomes: make(map[string]Outcome),
		held:     make(map[string]*purchase.Transaction),
	}
}

// SetOutcome sets how orders for productID are answered.
func (s *SDK) SetOutcome(productID string, o Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes[productID] = o
}

// FailOrders makes Order return err.
func (s *SDK) FailOrders(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orderErr = err
}

// FailVerify makes Verify return err.
func (s *SDK) FailVerify(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.verifyErr = err
}

// SkipVerifiedEvent suppresses the verified event raised by Verify.
func (s *SDK) SkipVerifiedEvent(skip bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipVerify = skip
}

// Finished returns the product ids of finished transactions in order.
func (s *SDK) Finished() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.finished))
	copy(out, s.finished)
	return out
}

func (s *SDK) Register(productID string, kind product.Kind) error {
	if productID == "" {
		return fmt.Errorf("sandbox: register: empty product id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[productID] = kind
	return nil
}

func (s *SDK) Get(productID string) (*purchase.Listing, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	kind, ok := s.products[productID]
	if !ok {
		return nil, false
	}
	return &purchase.Listing{ID: productID, Kind: kind, Title: productID}, true
}

func (s *SDK) Subscribe(h purchase.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers = append(s.handlers, h)
}

// Order answers according to the configured outcome. Events are delivered
// synchronously on the caller's goroutine.
func (s *SDK) Order(ctx context.Context, productID string) error {
	s.mu.Lock()
	if s.orderErr != nil {
		err := s.orderErr
		s.mu.Unlock()
		return err
	}
	if _, ok := s.products[productID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRegistered, productID)
	}
	outcome := s.outcomes[productID]
	tx := newTransaction(productID)
	if outcome == Hold {
		s.held[productID] = tx
	}
	handlers := s.snapshot()
	s.mu.Unlock()

	switch outcome {
	case Cancel:
		tx.State = purchase.StateCancelled
		for _, h := range handlers {
			h.OnCancelled(ctx, tx)
		}
	case Fail:
		for _, h := range handlers {
			h.OnError(ctx, fmt.Errorf("sandbox: order %s failed", productID))
		}
	case Hold:
	default:
		deliver(ctx, handlers, tx)
	}
	return nil
}

// Release completes a held order with outcome o.
func (s *SDK) Release(ctx context.Context, productID string, o Outcome) error {
	s.mu.Lock()
	tx, ok := s.held[productID]
	delete(s.held, productID)
	handlers := s.snapshot()
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrNotHeld, productID)
	}
	if o == Cancel {
		tx.State = purchase.StateCancelled
		for _, h := range handlers {
			h.OnCancelled(ctx, tx)
		}
		return nil
	}
	deliver(ctx, handlers, tx)
	return nil
}

// Redeliver approves a purchase that was never ordered in this session, as
// platforms do for transactions left unfinished.
func (s *SDK) Redeliver(ctx context.Context, productID string) error {
	s.mu.Lock()
	if _, ok := s.products[productID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotRegistered, productID)
	}
	handlers := s.snapshot()
	s.mu.Unlock()

	deliver(ctx, handlers, newTransaction(productID))
	return nil
}

func (s *SDK) Verify(ctx context.Context, tx *purchase.Transaction) error {
	s.mu.Lock()
	err := s.verifyErr
	skip := s.skipVerify
	handlers := s.snapshot()
	s.mu.Unlock()

	if err != nil {
		return err
	}
	if skip {
		return nil
	}
	verified := *tx
	verified.State = purchase.StateVerified
	for _, h := range handlers {
		h.OnVerified(ctx, &verified)
	}
	return nil
}

func (s *SDK) Finish(ctx context.Context, tx *purchase.Transaction) error {
	s.mu.Lock()
	s.finished = append(s.finished, tx.ProductID)
	handlers := s.snapshot()
	s.mu.Unlock()

	finished := *tx
	finished.State = purchase.StateFinished
	for _, h := range handlers {
		h.OnFinished(ctx, &finished)
	}
	return nil
}

// snapshot copies the handler list. Callers hold s.mu.
func (s *SDK) snapshot() []purchase.Handler {
	out := make([]purchase.Handler, len(s.handlers))
	copy(out, s.handlers)
	return out
}

func newTransaction(productID string) *purchase.Transaction {
	txID := id.NewTransactionID()
	return &purchase.Transaction{
		ID:        txID,
		ProductID: productID,
		State:     purchase.StateApproved,
		Receipt:   "sandbox:" + txID.String(),
	}
}

func deliver(ctx context.Context, handlers []purchase.Handler, tx *purchase.Transaction) {
	for _, h := range handlers {
		h.OnApproved(ctx, tx)
	}
}
