package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// callTimeout bounds every plugin call.
const callTimeout = 5 * time.Second

// Registry manages all registered plugins and provides efficient dispatch.
// It uses type-cached discovery for O(1) dispatch performance.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	logger  *slog.Logger

	// Type-cached plugin lists for efficient dispatch
	onInit                  []OnInit
	onShutdown              []OnShutdown
	onCreditsGranted        []OnCreditsGranted
	onCreditConsumed        []OnCreditConsumed
	onPoolRetired           []OnPoolRetired
	onAccessGranted         []OnAccessGranted
	onAccessDenied          []OnAccessDenied
	onSubscriptionActivated []OnSubscriptionActivated
	onSubscriptionCanceled  []OnSubscriptionCanceled
	onSubscriptionExpired   []OnSubscriptionExpired
	onSubscriptionExpiring  []OnSubscriptionExpiring
	onPurchaseStateChanged  []OnPurchaseStateChanged
	onPurchaseFailed        []OnPurchaseFailed
	onPurchasesRestored     []OnPurchasesRestored
	onPurchasesBackedUp     []OnPurchasesBackedUp
	receiptValidators       []ReceiptValidator
}

// NewRegistry creates a new plugin registry.
func NewRegistry() *Registry {
	return &Registry{
		logger: slog.Default(),
	}
}

// WithLogger sets the logger for the registry.
func (r *Registry) WithLogger(logger *slog.Logger) *Registry {
	r.logger = logger
	return r
}

// Register adds a plugin to the registry and caches its interfaces.
func (r *Registry) Register(p Plugin) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.plugins {
		if existing.Name() == p.Name() {
			return fmt.Errorf("plugin: duplicate registration: %s", p.Name())
		}
	}

	r.plugins = append(r.plugins, p)

	// Type-switch to cache interfaces
	if v, ok := p.(OnInit); ok {
		r.onInit = append(r.onInit, v)
	}
	if v, ok := p.(OnShutdown); ok {
		r.onShutdown = append(r.onShutdown, v)
	}
	if v, ok := p.(OnCreditsGranted); ok {
		r.onCreditsGranted = append(r.onCreditsGranted, v)
	}
	if v, ok := p.(OnCreditConsumed); ok {
		r.onCreditConsumed = append(r.onCreditConsumed, v)
	}
	if v, ok := p.(OnPoolRetired); ok {
		r.onPoolRetired = append(r.onPoolRetired, v)
	}
	if v, ok := p.(OnAccessGranted); ok {
		r.onAccessGranted = append(r.onAccessGranted, v)
	}
	if v, ok := p.(OnAccessDenied); ok {
		r.onAccessDenied = append(r.onAccessDenied, v)
	}
	if v, ok := p.(OnSubscriptionActivated); ok {
		r.onSubscriptionActivated = append(r.onSubscriptionActivated, v)
	}
	if v, ok := p.(OnSubscriptionCanceled); ok {
		r.onSubscriptionCanceled = append(r.onSubscriptionCanceled, v)
	}
	if v, ok := p.(OnSubscriptionExpired); ok {
		r.onSubscriptionExpired = append(r.onSubscriptionExpired, v)
	}
	if v, ok := p.(OnSubscriptionExpiring); ok {
		r.onSubscriptionExpiring = append(r.onSubscriptionExpiring, v)
	}
	if v, ok := p.(OnPurchaseStateChanged); ok {
		r.onPurchaseStateChanged = append(r.onPurchaseStateChanged, v)
	}
	if v, ok := p.(OnPurchaseFailed); ok {
		r.onPurchaseFailed = append(r.onPurchaseFailed, v)
	}
	if v, ok := p.(OnPurchasesRestored); ok {
		r.onPurchasesRestored = append(r.onPurchasesRestored, v)
	}
	if v, ok := p.(OnPurchasesBackedUp); ok {
		r.onPurchasesBackedUp = append(r.onPurchasesBackedUp, v)
	}
	if v, ok := p.(ReceiptValidator); ok {
		r.receiptValidators = append(r.receiptValidators, v)
	}

	r.logger.Info("plugin registered",
		"name", p.Name(),
		"interfaces", r.getImplementedInterfaces(p),
	)

	return nil
}

// getImplementedInterfaces returns a list of interfaces implemented by the plugin.
func (r *Registry) getImplementedInterfaces(p Plugin) []string {
	var interfaces []string
	v := reflect.TypeOf(p)

	checkInterface := func(iface reflect.Type, name string) {
		if v.Implements(iface) {
			interfaces = append(interfaces, name)
		}
	}

	checkInterface(reflect.TypeOf((*OnInit)(nil)).Elem(), "OnInit")
	checkInterface(reflect.TypeOf((*OnShutdown)(nil)).Elem(), "OnShutdown")
	checkInterface(reflect.TypeOf((*OnCreditsGranted)(nil)).Elem(), "OnCreditsGranted")
	checkInterface(reflect.TypeOf((*OnCreditConsumed)(nil)).Elem(), "OnCreditConsumed")
	checkInterface(reflect.TypeOf((*OnPoolRetired)(nil)).Elem(), "OnPoolRetired")
	checkInterface(reflect.TypeOf((*OnAccessGranted)(nil)).Elem(), "OnAccessGranted")
	checkInterface(reflect.TypeOf((*OnAccessDenied)(nil)).Elem(), "OnAccessDenied")
	checkInterface(reflect.TypeOf((*OnSubscriptionActivated)(nil)).Elem(), "OnSubscriptionActivated")
	checkInterface(reflect.TypeOf((*OnSubscriptionCanceled)(nil)).Elem(), "OnSubscriptionCanceled")
	checkInterface(reflect.TypeOf((*OnSubscriptionExpired)(nil)).Elem(), "OnSubscriptionExpired")
	checkInterface(reflect.TypeOf((*OnSubscriptionExpiring)(nil)).Elem(), "OnSubscriptionExpiring")
	checkInterface(reflect.TypeOf((*OnPurchaseStateChanged)(nil)).Elem(), "OnPurchaseStateChanged")
	checkInterface(reflect.TypeOf((*OnPurchaseFailed)(nil)).Elem(), "OnPurchaseFailed")
	checkInterface(reflect.TypeOf((*OnPurchasesRestored)(nil)).Elem(), "OnPurchasesRestored")
	checkInterface(reflect.TypeOf((*OnPurchasesBackedUp)(nil)).Elem(), "OnPurchasesBackedUp")
	checkInterface(reflect.TypeOf((*ReceiptValidator)(nil)).Elem(), "ReceiptValidator")

	return interfaces
}

// Get returns a plugin by name.
func (r *Registry) Get(name string) Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if p.Name() == name {
			return p
		}
	}
	return nil
}

// List returns all registered plugins.
func (r *Registry) List() []Plugin {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]Plugin, len(r.plugins))
	copy(result, r.plugins)
	return result
}

// Count returns the number of registered plugins.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.plugins)
}

// ReceiptValidators returns all registered receipt validators.
func (r *Registry) ReceiptValidators() []ReceiptValidator {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]ReceiptValidator, len(r.receiptValidators))
	copy(result, r.receiptValidators)
	return result
}

// ──────────────────────────────────────────────────
// Event emission methods
// ──────────────────────────────────────────────────

// EmitInit calls OnInit for all plugins that implement it.
func (r *Registry) EmitInit(ctx context.Context, engine interface{}) {
	r.mu.RLock()
	plugins := r.onInit
	r.mu.RUnlock()

	emit(ctx, r, "OnInit", plugins, func(p OnInit) error {
		return p.OnInit(ctx, engine)
	})
}

// EmitShutdown calls OnShutdown for all plugins that implement it.
func (r *Registry) EmitShutdown(ctx context.Context) {
	r.mu.RLock()
	plugins := r.onShutdown
	r.mu.RUnlock()

	emit(ctx, r, "OnShutdown", plugins, func(p OnShutdown) error {
		return p.OnShutdown(ctx)
	})
}

// EmitCreditsGranted emits a credits granted event.
func (r *Registry) EmitCreditsGranted(ctx context.Context, record interface{}, units int) {
	r.mu.RLock()
	plugins := r.onCreditsGranted
	r.mu.RUnlock()

	emit(ctx, r, "OnCreditsGranted", plugins, func(p OnCreditsGranted) error {
		return p.OnCreditsGranted(ctx, record, units)
	})
}

// EmitCreditConsumed emits a credit consumed event.
func (r *Registry) EmitCreditConsumed(ctx context.Context, result interface{}) {
	r.mu.RLock()
	plugins := r.onCreditConsumed
	r.mu.RUnlock()

	emit(ctx, r, "OnCreditConsumed", plugins, func(p OnCreditConsumed) error {
		return p.OnCreditConsumed(ctx, result)
	})
}

// EmitPoolRetired emits a pool retired event.
func (r *Registry) EmitPoolRetired(ctx context.Context, productID string) {
	r.mu.RLock()
	plugins := r.onPoolRetired
	r.mu.RUnlock()

	emit(ctx, r, "OnPoolRetired", plugins, func(p OnPoolRetired) error {
		return p.OnPoolRetired(ctx, productID)
	})
}

// EmitAccessGranted emits an access granted event.
func (r *Registry) EmitAccessGranted(ctx context.Context, decision interface{}) {
	r.mu.RLock()
	plugins := r.onAccessGranted
	r.mu.RUnlock()

	emit(ctx, r, "OnAccessGranted", plugins, func(p OnAccessGranted) error {
		return p.OnAccessGranted(ctx, decision)
	})
}

// EmitAccessDenied emits an access denied event.
func (r *Registry) EmitAccessDenied(ctx context.Context, decision interface{}) {
	r.mu.RLock()
	plugins := r.onAccessDenied
	r.mu.RUnlock()

	emit(ctx, r, "OnAccessDenied", plugins, func(p OnAccessDenied) error {
		return p.OnAccessDenied(ctx, decision)
	})
}

// EmitSubscriptionActivated emits a subscription activated event.
func (r *Registry) EmitSubscriptionActivated(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionActivated
	r.mu.RUnlock()

	emit(ctx, r, "OnSubscriptionActivated", plugins, func(p OnSubscriptionActivated) error {
		return p.OnSubscriptionActivated(ctx, sub)
	})
}

// EmitSubscriptionCanceled emits a subscription canceled event.
func (r *Registry) EmitSubscriptionCanceled(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionCanceled
	r.mu.RUnlock()

	emit(ctx, r, "OnSubscriptionCanceled", plugins, func(p OnSubscriptionCanceled) error {
		return p.OnSubscriptionCanceled(ctx, sub)
	})
}

// EmitSubscriptionExpired emits a subscription expired event.
func (r *Registry) EmitSubscriptionExpired(ctx context.Context, sub interface{}) {
	r.mu.RLock()
	plugins := r.onSubscriptionExpired
	r.mu.RUnlock()

	emit(ctx, r, "OnSubscriptionExpired", plugins, func(p OnSubscriptionExpired) error {
		return p.OnSubscriptionExpired(ctx, sub)
	})
}

// EmitSubscriptionExpiring emits a subscription expiring event.
func (r *Registry) EmitSubscriptionExpiring(ctx context.Context, sub interface{}, remaining time.Duration) {
	r.mu.RLock()
	plugins := r.onSubscriptionExpiring
	r.mu.RUnlock()

	emit(ctx, r, "OnSubscriptionExpiring", plugins, func(p OnSubscriptionExpiring) error {
		return p.OnSubscriptionExpiring(ctx, sub, remaining)
	})
}

// EmitPurchaseStateChanged emits a purchase state change event.
func (r *Registry) EmitPurchaseStateChanged(ctx context.Context, tx interface{}, from, to string) {
	r.mu.RLock()
	plugins := r.onPurchaseStateChanged
	r.mu.RUnlock()

	emit(ctx, r, "OnPurchaseStateChanged", plugins, func(p OnPurchaseStateChanged) error {
		return p.OnPurchaseStateChanged(ctx, tx, from, to)
	})
}

// EmitPurchaseFailed emits a purchase failed event.
func (r *Registry) EmitPurchaseFailed(ctx context.Context, tx interface{}, err error) {
	r.mu.RLock()
	plugins := r.onPurchaseFailed
	r.mu.RUnlock()

	emit(ctx, r, "OnPurchaseFailed", plugins, func(p OnPurchaseFailed) error {
		return p.OnPurchaseFailed(ctx, tx, err)
	})
}

// EmitPurchasesRestored emits a purchases restored event.
func (r *Registry) EmitPurchasesRestored(ctx context.Context, restored int) {
	r.mu.RLock()
	plugins := r.onPurchasesRestored
	r.mu.RUnlock()

	emit(ctx, r, "OnPurchasesRestored", plugins, func(p OnPurchasesRestored) error {
		return p.OnPurchasesRestored(ctx, restored)
	})
}

// EmitPurchasesBackedUp emits a purchases backed up event.
func (r *Registry) EmitPurchasesBackedUp(ctx context.Context, backupID string) {
	r.mu.RLock()
	plugins := r.onPurchasesBackedUp
	r.mu.RUnlock()

	emit(ctx, r, "OnPurchasesBackedUp", plugins, func(p OnPurchasesBackedUp) error {
		return p.OnPurchasesBackedUp(ctx, backupID)
	})
}

// emit calls fn for each plugin, logging failures. Hook errors never
// propagate to the caller.
func emit[T Plugin](ctx context.Context, r *Registry, hook string, plugins []T, fn func(T) error) {
	for _, p := range plugins {
		if err := r.callWithTimeout(ctx, p.Name(), func() error {
			return fn(p)
		}); err != nil {
			r.logger.Warn("plugin "+hook+" failed",
				"plugin", p.Name(),
				"error", err,
			)
		}
	}
}

// callWithTimeout calls a plugin function with a timeout.
// Plugins should never block the access decision path.
func (r *Registry) callWithTimeout(ctx context.Context, pluginName string, fn func() error) error {
	done := make(chan error, 1)

	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(callTimeout):
		return fmt.Errorf("plugin timeout: %s", pluginName)
	case <-ctx.Done():
		return ctx.Err()
	}
}
