package purchase

import (
	"context"

	"github.com/xraph/entitle/product"
)

// Listing is a product as the platform store reports it.
type Listing struct {
	ID    string       `json:"id"`
	Kind  product.Kind `json:"kind"`
	Title string       `json:"title,omitempty"`
	Price string       `json:"price,omitempty"`
	Owned bool         `json:"owned"`
}

// Handler receives platform lifecycle events.
type Handler interface {
	OnApproved(ctx context.Context, tx *Transaction)
	OnVerified(ctx context.Context, tx *Transaction)
	OnFinished(ctx context.Context, tx *Transaction)
	OnCancelled(ctx context.Context, tx *Transaction)
	OnError(ctx context.Context, err error)
}

// SDK is the platform purchase API. It performs the payment and reports
// progress to subscribed handlers.
type SDK interface {
	Register(productID string, kind product.Kind) error
	Order(ctx context.Context, productID string) error
	Get(productID string) (*Listing, bool)
	Verify(ctx context.Context, tx *Transaction) error
	Finish(ctx context.Context, tx *Transaction) error
	Subscribe(h Handler)
}

// ReceiptValidator checks a transaction receipt with a backend.
type ReceiptValidator interface {
	ValidateReceipt(ctx context.Context, tx *Transaction) (bool, error)
}

// ValidatorFunc adapts a function to ReceiptValidator.
type ValidatorFunc func(ctx context.Context, tx *Transaction) (bool, error)

// ValidateReceipt calls f.
func (f ValidatorFunc) ValidateReceipt(ctx context.Context, tx *Transaction) (bool, error) {
	return f(ctx, tx)
}

// AlwaysValid accepts every receipt. It stands in where no backend exists.
var AlwaysValid ReceiptValidator = ValidatorFunc(func(context.Context, *Transaction) (bool, error) {
	return true, nil
})
