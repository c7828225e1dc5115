// Package observability provides a metrics extension for Entitle that
// records lifecycle event counts via a MetricFactory.
package observability

import (
	"context"
	"time"

	"github.com/xraph/entitle/access"
	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/plugin"
	"github.com/xraph/entitle/purchase"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                  = (*MetricsExtension)(nil)
	_ plugin.OnCreditsGranted        = (*MetricsExtension)(nil)
	_ plugin.OnCreditConsumed        = (*MetricsExtension)(nil)
	_ plugin.OnPoolRetired           = (*MetricsExtension)(nil)
	_ plugin.OnAccessGranted         = (*MetricsExtension)(nil)
	_ plugin.OnAccessDenied          = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionActivated = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionCanceled  = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionExpired   = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionExpiring  = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseStateChanged  = (*MetricsExtension)(nil)
	_ plugin.OnPurchaseFailed        = (*MetricsExtension)(nil)
	_ plugin.OnPurchasesRestored     = (*MetricsExtension)(nil)
	_ plugin.OnPurchasesBackedUp     = (*MetricsExtension)(nil)
)

// Counter interface for metric counters.
type Counter interface {
	Inc()
	Add(float64)
}

// Histogram interface for metric histograms.
type Histogram interface {
	Observe(float64)
}

// MetricFactory creates metrics.
type MetricFactory interface {
	Counter(name string) Counter
	Histogram(name string) Histogram
}

// MetricsExtension records lifecycle metrics.
// Register it as an Entitle plugin to track credit and purchase activity.
type MetricsExtension struct {
	factory MetricFactory

	// Credit metrics
	CreditsGranted  Counter
	GrantSize       Histogram
	CreditsConsumed Counter
	PoolsRetired    Counter

	// Access metrics
	AccessGranted       Counter
	AccessUnlimited     Counter
	AccessDenied        Counter
	AccessCheckErrors   Counter
	RemainingAfterSpend Histogram

	// Subscription metrics
	SubscriptionActivated Counter
	SubscriptionCanceled  Counter
	SubscriptionExpired   Counter
	SubscriptionExpiring  Counter

	// Purchase metrics
	PurchaseOrdered  Counter
	PurchaseFinished Counter
	PurchaseFailed   Counter

	// Backup metrics
	PurchasesRestored Counter
	BackupsWritten    Counter
}

// NewMetricsExtension creates a MetricsExtension with the provided MetricFactory.
func NewMetricsExtension(factory MetricFactory) *MetricsExtension {
	return &MetricsExtension{
		factory: factory,

		CreditsGranted:  factory.Counter("entitle.credits.granted"),
		GrantSize:       factory.Histogram("entitle.credits.grant_size"),
		CreditsConsumed: factory.Counter("entitle.credits.consumed"),
		PoolsRetired:    factory.Counter("entitle.credits.pools_retired"),

		AccessGranted:       factory.Counter("entitle.access.granted"),
		AccessUnlimited:     factory.Counter("entitle.access.unlimited"),
		AccessDenied:        factory.Counter("entitle.access.denied"),
		AccessCheckErrors:   factory.Counter("entitle.access.errors"),
		RemainingAfterSpend: factory.Histogram("entitle.access.remaining"),

		SubscriptionActivated: factory.Counter("entitle.subscription.activated"),
		SubscriptionCanceled:  factory.Counter("entitle.subscription.canceled"),
		SubscriptionExpired:   factory.Counter("entitle.subscription.expired"),
		SubscriptionExpiring:  factory.Counter("entitle.subscription.expiring"),

		PurchaseOrdered:  factory.Counter("entitle.purchase.ordered"),
		PurchaseFinished: factory.Counter("entitle.purchase.finished"),
		PurchaseFailed:   factory.Counter("entitle.purchase.failed"),

		PurchasesRestored: factory.Counter("entitle.backup.restored"),
		BackupsWritten:    factory.Counter("entitle.backup.written"),
	}
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnCreditsGranted implements plugin.OnCreditsGranted.
func (m *MetricsExtension) OnCreditsGranted(_ context.Context, _ interface{}, units int) error {
	m.CreditsGranted.Add(float64(units))
	m.GrantSize.Observe(float64(units))
	return nil
}

// OnCreditConsumed implements plugin.OnCreditConsumed.
func (m *MetricsExtension) OnCreditConsumed(_ context.Context, result interface{}) error {
	if res, ok := result.(entitlement.ConsumeResult); ok && !res.Granted() {
		return nil
	}
	m.CreditsConsumed.Inc()
	return nil
}

// OnPoolRetired implements plugin.OnPoolRetired.
func (m *MetricsExtension) OnPoolRetired(_ context.Context, _ string) error {
	m.PoolsRetired.Inc()
	return nil
}

// OnAccessGranted implements plugin.OnAccessGranted.
func (m *MetricsExtension) OnAccessGranted(_ context.Context, decision interface{}) error {
	m.AccessGranted.Inc()
	if d, ok := decision.(access.Decision); ok {
		if d.Unlimited {
			m.AccessUnlimited.Inc()
		} else {
			m.RemainingAfterSpend.Observe(float64(d.Remaining))
		}
	}
	return nil
}

// OnAccessDenied implements plugin.OnAccessDenied.
func (m *MetricsExtension) OnAccessDenied(_ context.Context, decision interface{}) error {
	m.AccessDenied.Inc()
	if d, ok := decision.(access.Decision); ok && d.Err != nil {
		m.AccessCheckErrors.Inc()
	}
	return nil
}

// OnSubscriptionActivated implements plugin.OnSubscriptionActivated.
func (m *MetricsExtension) OnSubscriptionActivated(_ context.Context, _ interface{}) error {
	m.SubscriptionActivated.Inc()
	return nil
}

// OnSubscriptionCanceled implements plugin.OnSubscriptionCanceled.
func (m *MetricsExtension) OnSubscriptionCanceled(_ context.Context, _ interface{}) error {
	m.SubscriptionCanceled.Inc()
	return nil
}

// OnSubscriptionExpired implements plugin.OnSubscriptionExpired.
func (m *MetricsExtension) OnSubscriptionExpired(_ context.Context, _ interface{}) error {
	m.SubscriptionExpired.Inc()
	return nil
}

// OnSubscriptionExpiring implements plugin.OnSubscriptionExpiring.
func (m *MetricsExtension) OnSubscriptionExpiring(_ context.Context, _ interface{}, _ time.Duration) error {
	m.SubscriptionExpiring.Inc()
	return nil
}

// OnPurchaseStateChanged implements plugin.OnPurchaseStateChanged.
func (m *MetricsExtension) OnPurchaseStateChanged(_ context.Context, _ interface{}, from, to string) error {
	switch {
	case from == "":
		m.PurchaseOrdered.Inc()
	case to == string(purchase.StateFinished):
		m.PurchaseFinished.Inc()
	}
	return nil
}

// OnPurchaseFailed implements plugin.OnPurchaseFailed.
func (m *MetricsExtension) OnPurchaseFailed(_ context.Context, _ interface{}, _ error) error {
	m.PurchaseFailed.Inc()
	return nil
}

// OnPurchasesRestored implements plugin.OnPurchasesRestored.
func (m *MetricsExtension) OnPurchasesRestored(_ context.Context, restored int) error {
	m.PurchasesRestored.Add(float64(restored))
	return nil
}

// OnPurchasesBackedUp implements plugin.OnPurchasesBackedUp.
func (m *MetricsExtension) OnPurchasesBackedUp(_ context.Context, _ string) error {
	m.BackupsWritten.Inc()
	return nil
}
