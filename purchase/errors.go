package purchase

import (
	"errors"

	"github.com/xraph/entitle/subscription"
)

var (
	ErrProductNotFound   = errors.New("entitle: product not found")
	ErrReceiptInvalid    = errors.New("entitle: receipt invalid")
	ErrPurchaseCancelled = errors.New("entitle: purchase cancelled")
	ErrPurchaseFailed    = errors.New("entitle: purchase failed")
	ErrSuperseded        = errors.New("entitle: purchase already pending for product")
	ErrStoreNotReady     = errors.New("entitle: purchase store not ready")

	ErrNotSubscriptionProduct = subscription.ErrNotSubscription
)
