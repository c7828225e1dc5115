package entitle

import (
	"errors"
	"fmt"

	"github.com/xraph/entitle/access"
	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/product"
	"github.com/xraph/entitle/purchase"
	"github.com/xraph/entitle/store"
	"github.com/xraph/entitle/subscription"
)

// Sentinel errors for common failure scenarios.
var (
	// General errors
	ErrInvalidInput       = errors.New("entitle: invalid input")
	ErrUnauthenticated    = errors.New("entitle: not authenticated")
	ErrVaultNotConfigured = errors.New("entitle: no backup vault configured")

	// Store errors
	ErrNotFound         = store.ErrNotFound
	ErrStoreUnavailable = store.ErrStoreUnavailable
	ErrStoreClosed      = store.ErrStoreClosed

	// Catalog errors
	ErrInvalidProduct   = product.ErrInvalidProduct
	ErrDuplicateProduct = product.ErrDuplicateProduct

	// Ledger errors
	ErrInvalidUnits = entitlement.ErrInvalidUnits
	ErrCorrupt      = entitlement.ErrCorrupt

	// Subscription errors
	ErrInvalidSubscription = subscription.ErrInvalidRecord

	// Purchase errors
	ErrProductNotFound        = purchase.ErrProductNotFound
	ErrReceiptInvalid         = purchase.ErrReceiptInvalid
	ErrPurchaseCancelled      = purchase.ErrPurchaseCancelled
	ErrPurchaseFailed         = purchase.ErrPurchaseFailed
	ErrSuperseded             = purchase.ErrSuperseded
	ErrStoreNotReady          = purchase.ErrStoreNotReady
	ErrNotSubscriptionProduct = purchase.ErrNotSubscriptionProduct

	// Purchase validation errors
	ErrUnknownProduct            = access.ErrUnknownProduct
	ErrAlreadyActiveSubscription = access.ErrAlreadyActiveSubscription
	ErrCoveredBySubscription     = access.ErrCoveredBySubscription
	ErrPackAlreadyActive         = access.ErrPackAlreadyActive
	ErrPoolCapReached            = access.ErrPoolCapReached
)

// ValidationError represents a validation failure with details.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("entitle: validation failed for %s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is match ErrInvalidInput.
func (e ValidationError) Unwrap() error { return ErrInvalidInput }

// MultiError represents multiple errors that occurred.
type MultiError struct {
	Errors []error
}

func (e MultiError) Error() string {
	if len(e.Errors) == 0 {
		return "entitle: no errors"
	}
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	return fmt.Sprintf("entitle: %d errors occurred", len(e.Errors))
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (e MultiError) Unwrap() []error { return e.Errors }

// Add adds an error to the multi-error.
func (e *MultiError) Add(err error) {
	if err != nil {
		e.Errors = append(e.Errors, err)
	}
}

// HasErrors returns true if there are any errors.
func (e MultiError) HasErrors() bool {
	return len(e.Errors) > 0
}

// IsNotFound returns true if the error is a not found error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrProductNotFound) ||
		errors.Is(err, ErrUnknownProduct)
}

// IsPurchaseFailure returns true if the error ended a purchase without a grant.
func IsPurchaseFailure(err error) bool {
	return errors.Is(err, ErrPurchaseCancelled) ||
		errors.Is(err, ErrPurchaseFailed) ||
		errors.Is(err, ErrReceiptInvalid)
}

// IsPurchaseRejected returns true if a purchase was refused by a business rule.
func IsPurchaseRejected(err error) bool {
	return errors.Is(err, ErrAlreadyActiveSubscription) ||
		errors.Is(err, ErrCoveredBySubscription) ||
		errors.Is(err, ErrPackAlreadyActive) ||
		errors.Is(err, ErrPoolCapReached)
}

// IsRetryable returns true if the error is temporary and the operation can be retried.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable) ||
		errors.Is(err, ErrStoreNotReady) ||
		errors.Is(err, ErrSuperseded) ||
		errors.Is(err, ErrPurchaseFailed)
}
