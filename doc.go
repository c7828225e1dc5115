// Package entitle is an on-device entitlement engine: it decides whether a
// user may use a premium feature and keeps the records that back that
// decision.
//
// Entitle is a library, not a service. It provides:
//
//   - A credit ledger of per-product owned and consumed counters, spent one
//     unit at a time across ordered tiers
//   - A single active subscription that bypasses the ledger until it expires
//   - A purchase state machine driven by platform SDK callbacks
//   - A fail-closed feature access gate composing the above
//   - Authenticated backup and restore of purchases
//   - Pluggable audit and metrics hooks
//
// # Quick Start
//
// Create an engine over any store.Store backend:
//
//	import (
//	    "github.com/xraph/entitle"
//	    "github.com/xraph/entitle/store/sqlite"
//	)
//
//	eng := entitle.New(sqlite.New(db),
//	    entitle.WithLogger(logger),
//	    entitle.WithWelcomeCredits(),
//	)
//	if err := eng.Start(ctx); err != nil {
//	    return err
//	}
//	defer eng.Stop()
//
// Gate a feature:
//
//	if !eng.CanGeneratePDF(ctx) {
//	    if eng.ShowPremiumRequiredDialog(ctx, "PDF export") {
//	        // show offers
//	    }
//	    return
//	}
//
// Buy credits or a plan. The call blocks until the platform resolves the
// purchase or ctx ends:
//
//	if err := eng.ValidatePurchase(ctx, product.IDPdf25); err != nil {
//	    return err
//	}
//	tx, err := eng.PurchaseItem(ctx, product.IDPdf25)
//
// # Stores
//
// Records are kept as whole JSON documents under fixed keys, so any
// key-value backend works: memory, sqlite, postgres and mongo (via grove)
// and redis.
//
// # Plugins
//
// Register plugins with WithPlugin. See the plugin package for the hooks
// and audit_hook and observability for ready-made implementations.
package entitle
