package entitle

import (
	"context"
	"log/slog"
	"time"

	"github.com/xraph/entitle/access"
	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/plugin"
	"github.com/xraph/entitle/product"
	"github.com/xraph/entitle/purchase"
	"github.com/xraph/entitle/purchase/sandbox"
	"github.com/xraph/entitle/store"
	"github.com/xraph/entitle/subscription"
)

// Engine composes the credit ledger, the subscription record, the purchase
// machine and the access gate over one store.
type Engine struct {
	store   store.Store
	catalog *product.Catalog
	plugins *plugin.Registry
	logger  *slog.Logger
	now     func() time.Time

	sdk           purchase.SDK
	validator     purchase.ReceiptValidator
	auth          AuthProvider
	vault         Vault
	prompter      access.Prompter
	welcome       bool
	expiryWarning time.Duration

	credits *entitlement.Store
	subs    *subscription.Manager
	machine *purchase.Machine
	gate    *access.Gate
}

// New creates an Engine persisted in s.
func New(s store.Store, opts ...Option) *Engine {
	e := &Engine{
		store:         s,
		catalog:       product.Default(),
		plugins:       plugin.NewRegistry(),
		logger:        slog.Default(),
		now:           time.Now,
		expiryWarning: subscription.DefaultExpiryWarning,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.sdk == nil {
		e.sdk = sandbox.New()
	}
	if e.validator == nil {
		e.validator = e.pluginValidator()
	}

	e.credits = entitlement.NewStore(s, e.entitlementOpts()...)
	e.subs = subscription.NewManager(s,
		subscription.WithLogger(e.logger),
		subscription.WithPlugins(e.plugins),
		subscription.WithClock(e.now),
		subscription.WithExpiryWarning(e.expiryWarning),
	)
	e.machine = purchase.NewMachine(e.catalog, e.sdk, e.credits, e.subs,
		purchase.WithLogger(e.logger),
		purchase.WithPlugins(e.plugins),
		purchase.WithValidator(e.validator),
		purchase.WithClock(e.now),
	)
	gateOpts := []access.Option{
		access.WithLogger(e.logger),
		access.WithPlugins(e.plugins),
	}
	if e.prompter != nil {
		gateOpts = append(gateOpts, access.WithPrompter(e.prompter))
	}
	e.gate = access.NewGate(e.catalog, e.credits, e.subs, gateOpts...)

	return e
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
		e.plugins.WithLogger(logger)
	}
}

// WithPlugin registers a plugin.
func WithPlugin(p plugin.Plugin) Option {
	return func(e *Engine) {
		_ = e.plugins.Register(p) //nolint:errcheck // best-effort plugin registration during init
	}
}

// WithCatalog replaces the shipped product catalog.
func WithCatalog(c *product.Catalog) Option {
	return func(e *Engine) { e.catalog = c }
}

// WithClock overrides the time source for subscription terms and expiry.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// WithSDK sets the platform purchase SDK. The default is the in-process
// sandbox.
func WithSDK(sdk purchase.SDK) Option {
	return func(e *Engine) { e.sdk = sdk }
}

// WithValidator sets the receipt validator. Without one the first
// registered ReceiptValidator plugin is used, then purchase.AlwaysValid.
func WithValidator(v purchase.ReceiptValidator) Option {
	return func(e *Engine) { e.validator = v }
}

// WithAuth sets the provider gating restore and backup.
func WithAuth(a AuthProvider) Option {
	return func(e *Engine) { e.auth = a }
}

// WithVault sets where backups are kept.
func WithVault(v Vault) Option {
	return func(e *Engine) { e.vault = v }
}

// WithPrompter sets the premium dialog prompter.
func WithPrompter(p access.Prompter) Option {
	return func(e *Engine) { e.prompter = p }
}

// WithWelcomeCredits seeds each product's welcome units the first time the
// ledger is created.
func WithWelcomeCredits() Option {
	return func(e *Engine) { e.welcome = true }
}

// WithExpiryWarning sets how long before expiry a subscription is reported
// as expiring.
func WithExpiryWarning(d time.Duration) Option {
	return func(e *Engine) { e.expiryWarning = d }
}

func (e *Engine) entitlementOpts() []entitlement.Option {
	features := make(map[string]string, e.catalog.Len())
	var welcome []entitlement.Record
	for _, p := range e.catalog.Consumables() {
		features[p.ID] = p.Feature
		if e.welcome && p.WelcomeUnits > 0 {
			welcome = append(welcome, entitlement.Record{
				ProductID: p.ID,
				Feature:   p.Feature,
				Owned:     p.WelcomeUnits,
				Purchased: true,
			})
		}
	}
	return []entitlement.Option{
		entitlement.WithLogger(e.logger),
		entitlement.WithPlugins(e.plugins),
		entitlement.WithFeatureNames(features),
		entitlement.WithWelcomeRecords(welcome...),
	}
}

// pluginValidator adapts the first ReceiptValidator plugin, if any.
func (e *Engine) pluginValidator() purchase.ReceiptValidator {
	vs := e.plugins.ReceiptValidators()
	if len(vs) == 0 {
		return purchase.AlwaysValid
	}
	v := vs[0]
	e.logger.Info("using plugin receipt validator", "plugin", v.Name())
	return purchase.ValidatorFunc(func(ctx context.Context, tx *purchase.Transaction) (bool, error) {
		return v.ValidateReceipt(ctx, tx)
	})
}

// Start migrates the store, registers the catalog with the SDK and
// initializes plugins.
func (e *Engine) Start(ctx context.Context) error {
	if err := e.store.Migrate(ctx); err != nil {
		return err
	}
	if err := e.machine.Start(ctx); err != nil {
		return err
	}

	e.plugins.EmitInit(ctx, e)

	e.logger.Info("entitle started",
		"products", e.catalog.Len(),
		"plugins", e.plugins.Count(),
	)
	return nil
}

// Stop shuts down plugins and closes the store.
func (e *Engine) Stop() error {
	ctx := context.Background()
	e.plugins.EmitShutdown(ctx)

	return e.store.Close()
}

// Catalog returns the product catalog.
func (e *Engine) Catalog() *product.Catalog { return e.catalog }

// Credits returns the credit ledger.
func (e *Engine) Credits() *entitlement.Store { return e.credits }

// Subscriptions returns the subscription manager.
func (e *Engine) Subscriptions() *subscription.Manager { return e.subs }

// Purchases returns the purchase machine.
func (e *Engine) Purchases() *purchase.Machine { return e.machine }

// Gate returns the access gate.
func (e *Engine) Gate() *access.Gate { return e.gate }

// ──────────────────────────────────────────────────
// Feature access
// ──────────────────────────────────────────────────

// CanGeneratePDF reports whether a PDF may be generated, spending one credit
// when no subscription is active.
func (e *Engine) CanGeneratePDF(ctx context.Context) bool {
	return e.gate.CanGeneratePDF(ctx)
}

// CanShareSocial reports whether a share to platform may happen.
func (e *Engine) CanShareSocial(ctx context.Context, platform product.Platform) bool {
	return e.gate.CanShareSocial(ctx, platform)
}

// CanEmailPrintSave reports whether a document may be emailed, printed or saved.
func (e *Engine) CanEmailPrintSave(ctx context.Context) bool {
	return e.gate.CanEmailPrintSave(ctx)
}

// CanSaveToDevice reports whether a document may be saved to the device.
func (e *Engine) CanSaveToDevice(ctx context.Context) bool {
	return e.gate.CanSaveToDevice(ctx)
}

// CanSaveToCloud reports whether a document may be saved to the cloud.
func (e *Engine) CanSaveToCloud(ctx context.Context) bool {
	return e.gate.CanSaveToCloud(ctx)
}

// GetUserAccessStatus returns a read-only snapshot of the user's standing.
func (e *Engine) GetUserAccessStatus(ctx context.Context) access.Snapshot {
	return e.gate.UserAccessStatus(ctx)
}

// ShowPremiumRequiredDialog asks the user whether to view purchase options.
func (e *Engine) ShowPremiumRequiredDialog(ctx context.Context, featureName string) bool {
	return e.gate.ShowPremiumRequiredDialog(ctx, featureName)
}

// Offers lists purchasable products with the user's standing.
func (e *Engine) Offers(ctx context.Context) ([]access.Offer, error) {
	return e.gate.Offers(ctx)
}

// PurchaseDocumentation returns the help sections shown with the offers.
func (e *Engine) PurchaseDocumentation() []access.HelpSection {
	return access.PurchaseDocumentation()
}

// ValidatePurchase reports whether productID may be bought right now.
func (e *Engine) ValidatePurchase(ctx context.Context, productID string) error {
	return e.gate.ValidatePurchase(ctx, productID)
}

// ──────────────────────────────────────────────────
// Purchases
// ──────────────────────────────────────────────────

// PurchaseItem buys a credit pack and blocks until the purchase resolves or
// ctx ends.
func (e *Engine) PurchaseItem(ctx context.Context, productID string) (*purchase.Transaction, error) {
	return e.machine.PurchaseItem(ctx, productID)
}

// PurchaseSubscription buys a subscription plan.
func (e *Engine) PurchaseSubscription(ctx context.Context, productID string) (*purchase.Transaction, error) {
	return e.machine.PurchaseSubscription(ctx, productID)
}

// CancelSubscription removes the active subscription.
func (e *Engine) CancelSubscription(ctx context.Context) (bool, error) {
	return e.machine.CancelSubscription(ctx)
}

// ──────────────────────────────────────────────────
// Subscription info
// ──────────────────────────────────────────────────

// GetSubscriptionInfo returns the active subscription, or nil.
func (e *Engine) GetSubscriptionInfo(ctx context.Context) (*subscription.Record, error) {
	return e.subs.Info(ctx)
}

// GetSubscriptionExpiry returns the expiry date as display text.
func (e *Engine) GetSubscriptionExpiry(ctx context.Context) string {
	return e.subs.ExpiryDisplay(ctx)
}
