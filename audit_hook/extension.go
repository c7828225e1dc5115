// Package audithook bridges Entitle lifecycle events to an audit trail backend.
//
// It defines a local Recorder interface so the package does not import
// any audit backend directly. Callers inject a RecorderFunc adapter at
// wiring time.
package audithook

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xraph/entitle/access"
	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/plugin"
	"github.com/xraph/entitle/purchase"
	"github.com/xraph/entitle/subscription"
)

// Compile-time interface checks.
var (
	_ plugin.Plugin                  = (*Extension)(nil)
	_ plugin.OnCreditsGranted        = (*Extension)(nil)
	_ plugin.OnCreditConsumed        = (*Extension)(nil)
	_ plugin.OnPoolRetired           = (*Extension)(nil)
	_ plugin.OnAccessDenied          = (*Extension)(nil)
	_ plugin.OnSubscriptionActivated = (*Extension)(nil)
	_ plugin.OnSubscriptionCanceled  = (*Extension)(nil)
	_ plugin.OnSubscriptionExpired   = (*Extension)(nil)
	_ plugin.OnSubscriptionExpiring  = (*Extension)(nil)
	_ plugin.OnPurchaseStateChanged  = (*Extension)(nil)
	_ plugin.OnPurchaseFailed        = (*Extension)(nil)
	_ plugin.OnPurchasesRestored     = (*Extension)(nil)
	_ plugin.OnPurchasesBackedUp     = (*Extension)(nil)
)

// Recorder is the interface that audit backends must implement.
type Recorder interface {
	Record(ctx context.Context, event *AuditEvent) error
}

// AuditEvent is a local representation of an audit event.
type AuditEvent struct {
	Action     string         `json:"action"`
	Resource   string         `json:"resource"`
	Category   string         `json:"category"`
	ResourceID string         `json:"resource_id,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	Outcome    string         `json:"outcome"`
	Severity   string         `json:"severity"`
	Reason     string         `json:"reason,omitempty"`
}

// RecorderFunc is an adapter to use a plain function as a Recorder.
type RecorderFunc func(ctx context.Context, event *AuditEvent) error

// Record implements Recorder.
func (f RecorderFunc) Record(ctx context.Context, event *AuditEvent) error {
	return f(ctx, event)
}

// Extension bridges Entitle lifecycle events to an audit trail backend.
type Extension struct {
	recorder Recorder
	enabled  map[string]bool // nil = all enabled
	logger   *slog.Logger
}

// New creates an Extension that emits audit events through the provided Recorder.
func New(r Recorder, opts ...Option) *Extension {
	e := &Extension{
		recorder: r,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Name implements plugin.Plugin.
func (e *Extension) Name() string { return "audit-hook" }

// ──────────────────────────────────────────────────
// Credit hooks
// ──────────────────────────────────────────────────

// OnCreditsGranted implements plugin.OnCreditsGranted.
func (e *Extension) OnCreditsGranted(ctx context.Context, record interface{}, units int) error {
	r, _ := record.(entitlement.Record)
	return e.record(ctx, ActionCreditsGranted, SeverityInfo, OutcomeSuccess,
		ResourceCredit, r.ProductID, CategoryCredits, nil,
		"units", units,
		"owned", r.Owned,
	)
}

// OnCreditConsumed implements plugin.OnCreditConsumed.
func (e *Extension) OnCreditConsumed(ctx context.Context, result interface{}) error {
	res, _ := result.(entitlement.ConsumeResult)
	return e.record(ctx, ActionCreditConsumed, SeverityInfo, OutcomeSuccess,
		ResourceCredit, res.ProductID, CategoryCredits, nil,
		"outcome", res.Outcome.String(),
		"remaining", res.Remaining,
	)
}

// OnPoolRetired implements plugin.OnPoolRetired.
func (e *Extension) OnPoolRetired(ctx context.Context, productID string) error {
	return e.record(ctx, ActionPoolRetired, SeverityInfo, OutcomeSuccess,
		ResourceCredit, productID, CategoryCredits, nil,
		"product_id", productID,
	)
}

// ──────────────────────────────────────────────────
// Access hooks
// ──────────────────────────────────────────────────

// OnAccessDenied implements plugin.OnAccessDenied. Only denials are
// audited; grants are too frequent to be useful.
func (e *Extension) OnAccessDenied(ctx context.Context, decision interface{}) error {
	d, _ := decision.(access.Decision)
	severity := SeverityInfo
	if d.Err != nil {
		severity = SeverityError
	}
	return e.record(ctx, ActionAccessDenied, severity, OutcomeFailure,
		ResourceFeature, string(d.Feature), CategoryAccess, d.Err,
		"platform", string(d.Platform),
		"reason", string(d.Reason),
	)
}

// ──────────────────────────────────────────────────
// Subscription hooks
// ──────────────────────────────────────────────────

// OnSubscriptionActivated implements plugin.OnSubscriptionActivated.
func (e *Extension) OnSubscriptionActivated(ctx context.Context, sub interface{}) error {
	id, kv := subscriptionDetails(sub)
	return e.record(ctx, ActionSubscriptionActivated, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, id, CategorySubscription, nil, kv...)
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (e *Extension) OnSubscriptionCanceled(ctx context.Context, sub interface{}) error {
	id, kv := subscriptionDetails(sub)
	return e.record(ctx, ActionSubscriptionCanceled, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, id, CategorySubscription, nil, kv...)
}

// OnSubscriptionExpired implements plugin.OnSubscriptionExpired.
func (e *Extension) OnSubscriptionExpired(ctx context.Context, sub interface{}) error {
	id, kv := subscriptionDetails(sub)
	return e.record(ctx, ActionSubscriptionExpired, SeverityInfo, OutcomeSuccess,
		ResourceSubscription, id, CategorySubscription, nil, kv...)
}

// OnSubscriptionExpiring implements plugin.OnSubscriptionExpiring.
func (e *Extension) OnSubscriptionExpiring(ctx context.Context, sub interface{}, remaining time.Duration) error {
	id, kv := subscriptionDetails(sub)
	kv = append(kv, "remaining", remaining.String())
	return e.record(ctx, ActionSubscriptionExpiring, SeverityWarning, OutcomeSuccess,
		ResourceSubscription, id, CategorySubscription, nil, kv...)
}

func subscriptionDetails(sub interface{}) (string, []any) {
	rec, ok := sub.(*subscription.Record)
	if !ok || rec == nil {
		return "", nil
	}
	return rec.ID.String(), []any{
		"product_id", rec.ProductID,
		"type", string(rec.Type),
		"expiry", rec.ExpiryTime,
	}
}

// ──────────────────────────────────────────────────
// Purchase hooks
// ──────────────────────────────────────────────────

// OnPurchaseStateChanged implements plugin.OnPurchaseStateChanged. Only
// finished purchases are audited.
func (e *Extension) OnPurchaseStateChanged(ctx context.Context, tx interface{}, from, to string) error {
	if to != string(purchase.StateFinished) {
		return nil
	}
	id, productID := transactionDetails(tx)
	return e.record(ctx, ActionPurchaseFinished, SeverityInfo, OutcomeSuccess,
		ResourcePurchase, id, CategoryPayment, nil,
		"product_id", productID,
		"from", from,
	)
}

// OnPurchaseFailed implements plugin.OnPurchaseFailed.
func (e *Extension) OnPurchaseFailed(ctx context.Context, tx interface{}, err error) error {
	id, productID := transactionDetails(tx)
	return e.record(ctx, ActionPurchaseFailed, SeverityWarning, OutcomeFailure,
		ResourcePurchase, id, CategoryPayment, err,
		"product_id", productID,
	)
}

func transactionDetails(tx interface{}) (id, productID string) {
	t, ok := tx.(*purchase.Transaction)
	if !ok || t == nil {
		return "", ""
	}
	return t.ID.String(), t.ProductID
}

// ──────────────────────────────────────────────────
// Backup hooks
// ──────────────────────────────────────────────────

// OnPurchasesRestored implements plugin.OnPurchasesRestored.
func (e *Extension) OnPurchasesRestored(ctx context.Context, restored int) error {
	return e.record(ctx, ActionPurchasesRestored, SeverityInfo, OutcomeSuccess,
		ResourceBackup, "", CategoryBackup, nil,
		"restored", restored,
	)
}

// OnPurchasesBackedUp implements plugin.OnPurchasesBackedUp.
func (e *Extension) OnPurchasesBackedUp(ctx context.Context, backupID string) error {
	return e.record(ctx, ActionPurchasesBackedUp, SeverityInfo, OutcomeSuccess,
		ResourceBackup, backupID, CategoryBackup, nil,
		"backup_id", backupID,
	)
}

// ──────────────────────────────────────────────────
// Internal helpers
// ──────────────────────────────────────────────────

// record builds and sends an audit event if the action is enabled.
func (e *Extension) record(
	ctx context.Context,
	action, severity, outcome string,
	resource, resourceID, category string,
	err error,
	kvPairs ...any,
) error {
	if e.enabled != nil && !e.enabled[action] {
		return nil
	}

	meta := make(map[string]any, len(kvPairs)/2+1)
	for i := 0; i+1 < len(kvPairs); i += 2 {
		key, ok := kvPairs[i].(string)
		if !ok {
			key = fmt.Sprintf("%v", kvPairs[i])
		}
		meta[key] = kvPairs[i+1]
	}

	var reason string
	if err != nil {
		reason = err.Error()
		meta["error"] = err.Error()
	}

	evt := &AuditEvent{
		Action:     action,
		Resource:   resource,
		Category:   category,
		ResourceID: resourceID,
		Metadata:   meta,
		Outcome:    outcome,
		Severity:   severity,
		Reason:     reason,
	}

	if recErr := e.recorder.Record(ctx, evt); recErr != nil {
		e.logger.Warn("audit_hook: failed to record audit event",
			"action", action,
			"resource_id", resourceID,
			"error", recErr,
		)
	}
	return nil
}
