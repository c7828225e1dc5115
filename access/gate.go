// Package access is the feature access gate: it answers whether a feature
// may be used, spending one credit when no subscription covers it.
package access

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/plugin"
	"github.com/xraph/entitle/product"
	"github.com/xraph/entitle/subscription"
)

// Credits is the credit ledger as the gate uses it.
type Credits interface {
	Get(ctx context.Context, productID string) (entitlement.Record, error)
	ConsumeFirstAvailable(ctx context.Context, ids []string) (entitlement.ConsumeResult, error)
	TotalRemaining(ctx context.Context, ids []string) (int, error)
}

// Subscriptions reports the active subscription.
type Subscriptions interface {
	Load(ctx context.Context) (*subscription.Record, error)
}

// Prompter asks the user whether to view purchase options.
type Prompter interface {
	ConfirmPurchase(ctx context.Context, featureName string) (bool, error)
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Gate) { g.logger = l }
}

// WithPlugins sets the registry notified of decisions.
func WithPlugins(r *plugin.Registry) Option {
	return func(g *Gate) { g.plugins = r }
}

// WithPrompter sets the premium dialog prompter.
func WithPrompter(p Prompter) Option {
	return func(g *Gate) { g.prompter = p }
}

// Gate decides feature access. Checks never return errors: any failure
// denies access and is logged.
type Gate struct {
	catalog  *product.Catalog
	credits  Credits
	subs     Subscriptions
	prompter Prompter
	plugins  *plugin.Registry
	logger   *slog.Logger
}

// NewGate creates a Gate.
func NewGate(catalog *product.Catalog, credits Credits, subs Subscriptions, opts ...Option) *Gate {
	g := &Gate{
		catalog: catalog,
		credits: credits,
		subs:    subs,
		plugins: plugin.NewRegistry(),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// CanGeneratePDF spends a PDF credit unless a subscription is active.
func (g *Gate) CanGeneratePDF(ctx context.Context) bool {
	return g.Check(ctx, product.ClassPDF, "").Allowed
}

// CanShareSocial spends a share credit for platform.
func (g *Gate) CanShareSocial(ctx context.Context, platform product.Platform) bool {
	return g.Check(ctx, product.ClassSocialShare, platform).Allowed
}

// CanEmailPrintSave spends a document action credit.
func (g *Gate) CanEmailPrintSave(ctx context.Context) bool {
	return g.Check(ctx, product.ClassDocAction, "").Allowed
}

// CanSaveToDevice spends a save-to-device credit.
func (g *Gate) CanSaveToDevice(ctx context.Context) bool {
	return g.Check(ctx, product.ClassSaveToDevice, "").Allowed
}

// CanSaveToCloud spends a cloud save credit.
func (g *Gate) CanSaveToCloud(ctx context.Context) bool {
	return g.Check(ctx, product.ClassCloudSave, "").Allowed
}

// Check decides access to a feature class. An active subscription allows
// without touching the ledger; otherwise one credit is spent from the first
// tier that has one.
func (g *Gate) Check(ctx context.Context, class product.Class, platform product.Platform) Decision {
	d := Decision{Feature: class, Platform: platform}

	ids := g.poolIDs(class, platform)
	if len(ids) == 0 {
		d.Reason = ReasonUnknown
		return g.deny(ctx, d, fmt.Errorf("entitle: no products back feature %q", class))
	}

	sub, err := g.activeSubscription(ctx)
	if err != nil {
		return g.deny(ctx, d, err)
	}
	if sub != nil {
		d.Allowed = true
		d.Unlimited = true
		d.Reason = ReasonSubscription
		return g.allow(ctx, d)
	}

	res, err := g.credits.ConsumeFirstAvailable(ctx, ids)
	if err != nil {
		return g.deny(ctx, d, err)
	}
	if !res.Granted() {
		d.Reason = ReasonNoCredits
		return g.deny(ctx, d, nil)
	}

	d.Allowed = true
	d.Remaining = res.Remaining
	d.ProductID = res.ProductID
	d.Reason = ReasonCredit
	return g.allow(ctx, d)
}

// activeSubscription returns the subscription that grants unlimited access, or
// nil. A record flagged inactive grants nothing.
func (g *Gate) activeSubscription(ctx context.Context) (*subscription.Record, error) {
	sub, err := g.subs.Load(ctx)
	if err != nil || sub == nil || !sub.Active {
		return nil, err
	}
	return sub, nil
}

// poolIDs returns the products whose credits back a feature.
func (g *Gate) poolIDs(class product.Class, platform product.Platform) []string {
	if class == product.ClassSocialShare {
		return g.catalog.ShareIDs(platform)
	}
	return g.catalog.ClassIDs(class)
}

func (g *Gate) allow(ctx context.Context, d Decision) Decision {
	g.logger.Debug("feature access granted",
		"feature", string(d.Feature),
		"reason", string(d.Reason),
		"remaining", d.Remaining,
	)
	g.plugins.EmitAccessGranted(ctx, d)
	return d
}

func (g *Gate) deny(ctx context.Context, d Decision, err error) Decision {
	d.Allowed = false
	d.Unlimited = false
	if err != nil {
		d.Err = err
		if d.Reason == "" {
			d.Reason = ReasonError
		}
		g.logger.Error("feature access check failed",
			"feature", string(d.Feature),
			"platform", string(d.Platform),
			"error", err,
		)
	} else {
		g.logger.Debug("feature access denied",
			"feature", string(d.Feature),
			"reason", string(d.Reason),
		)
	}
	g.plugins.EmitAccessDenied(ctx, d)
	return d
}

// ShowPremiumRequiredDialog asks the user whether to view purchase options
// for featureName. It returns false without a prompter or on error.
func (g *Gate) ShowPremiumRequiredDialog(ctx context.Context, featureName string) bool {
	if g.prompter == nil {
		return false
	}
	ok, err := g.prompter.ConfirmPurchase(ctx, featureName)
	if err != nil {
		g.logger.Warn("premium dialog failed",
			"feature", featureName,
			"error", err,
		)
		return false
	}
	return ok
}
