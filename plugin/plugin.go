// Package plugin provides an extensible plugin system for Entitle.
// Plugins can hook into credit, access, subscription and purchase events.
package plugin

import (
	"context"
	"time"
)

// Plugin is the base interface that all plugins must implement.
type Plugin interface {
	Name() string
}

// ──────────────────────────────────────────────────
// Lifecycle hooks
// ──────────────────────────────────────────────────

// OnInit is called when the engine starts.
type OnInit interface {
	Plugin
	OnInit(ctx context.Context, engine interface{}) error
}

// OnShutdown is called when the engine stops.
type OnShutdown interface {
	Plugin
	OnShutdown(ctx context.Context) error
}

// ──────────────────────────────────────────────────
// Credit ledger hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted is called after a purchase adds credits to a pool.
type OnCreditsGranted interface {
	Plugin
	OnCreditsGranted(ctx context.Context, record interface{}, units int) error
}

// OnCreditConsumed is called after a single credit is spent.
type OnCreditConsumed interface {
	Plugin
	OnCreditConsumed(ctx context.Context, result interface{}) error
}

// OnPoolRetired is called when the last credit of a pool is spent and the
// pool is zeroed.
type OnPoolRetired interface {
	Plugin
	OnPoolRetired(ctx context.Context, productID string) error
}

// ──────────────────────────────────────────────────
// Access hooks
// ──────────────────────────────────────────────────

// OnAccessGranted is called when the gate allows a feature.
type OnAccessGranted interface {
	Plugin
	OnAccessGranted(ctx context.Context, decision interface{}) error
}

// OnAccessDenied is called when the gate refuses a feature, including
// fail-closed denials caused by storage errors.
type OnAccessDenied interface {
	Plugin
	OnAccessDenied(ctx context.Context, decision interface{}) error
}

// ──────────────────────────────────────────────────
// Subscription lifecycle hooks
// ──────────────────────────────────────────────────

// OnSubscriptionActivated is called when a subscription record is saved.
type OnSubscriptionActivated interface {
	Plugin
	OnSubscriptionActivated(ctx context.Context, sub interface{}) error
}

// OnSubscriptionCanceled is called when a subscription is canceled.
type OnSubscriptionCanceled interface {
	Plugin
	OnSubscriptionCanceled(ctx context.Context, sub interface{}) error
}

// OnSubscriptionExpired is called when an expired record is observed and removed.
type OnSubscriptionExpired interface {
	Plugin
	OnSubscriptionExpired(ctx context.Context, sub interface{}) error
}

// OnSubscriptionExpiring is called when a subscription is close to its expiry.
type OnSubscriptionExpiring interface {
	Plugin
	OnSubscriptionExpiring(ctx context.Context, sub interface{}, remaining time.Duration) error
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseStateChanged is called on every accepted purchase state transition.
type OnPurchaseStateChanged interface {
	Plugin
	OnPurchaseStateChanged(ctx context.Context, tx interface{}, from, to string) error
}

// OnPurchaseFailed is called when a purchase is cancelled, rejected or errors.
// tx is nil for SDK errors that carry no transaction.
type OnPurchaseFailed interface {
	Plugin
	OnPurchaseFailed(ctx context.Context, tx interface{}, err error) error
}

// ──────────────────────────────────────────────────
// Cloud backup hooks
// ──────────────────────────────────────────────────

// OnPurchasesRestored is called after a restore merged records.
type OnPurchasesRestored interface {
	Plugin
	OnPurchasesRestored(ctx context.Context, restored int) error
}

// OnPurchasesBackedUp is called after a backup document is written.
type OnPurchasesBackedUp interface {
	Plugin
	OnPurchasesBackedUp(ctx context.Context, backupID string) error
}

// ──────────────────────────────────────────────────
// Receipt validators
// ──────────────────────────────────────────────────

// ReceiptValidator validates platform receipts. The engine uses the first
// registered validator when none is configured explicitly.
type ReceiptValidator interface {
	Plugin
	ValidateReceipt(ctx context.Context, tx interface{}) (bool, error)
}
