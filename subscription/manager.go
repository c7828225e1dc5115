// Package subscription manages the singleton subscription record that grants
// unlimited access while it is unexpired.
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/entitle/id"
	"github.com/xraph/entitle/plugin"
	"github.com/xraph/entitle/store"
)

// DefaultExpiryWarning is how close to expiry a subscription is reported as
// expiring.
const DefaultExpiryWarning = 3 * 24 * time.Hour

// NoActiveSubscription is the expiry text shown when nothing is active.
const NoActiveSubscription = "No active subscription"

const expiryLayout = "Jan 2, 2006"

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithPlugins sets the registry notified of subscription events.
func WithPlugins(r *plugin.Registry) Option {
	return func(m *Manager) { m.plugins = r }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// WithExpiryWarning sets the window before expiry in which an expiring
// event is raised. Zero disables it.
func WithExpiryWarning(d time.Duration) Option {
	return func(m *Manager) { m.warnWithin = d }
}

// Manager owns the subscription record. Construct one per process and share
// it; there is no package-level state.
type Manager struct {
	mu         sync.Mutex
	kv         store.Store
	now        func() time.Time
	warnWithin time.Duration
	warned     time.Time
	plugins    *plugin.Registry
	logger     *slog.Logger
}

// NewManager creates a Manager persisting to kv.
func NewManager(kv store.Store, opts ...Option) *Manager {
	m := &Manager{
		kv:         kv,
		now:        time.Now,
		warnWithin: DefaultExpiryWarning,
		plugins:    plugin.NewRegistry(),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Load returns the active subscription or nil. A lapsed, inactive or
// unreadable record is deleted and reported as absent.
func (m *Manager) Load(ctx context.Context) (*Record, error) {
	m.mu.Lock()
	rec, expired, expiring, err := m.load(ctx)
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}

	now := m.now()
	if expired != nil {
		m.logger.Info("subscription expired",
			"product_id", expired.ProductID,
			"expiry", expired.ExpiryTime,
		)
		m.plugins.EmitSubscriptionExpired(ctx, expired)
	}
	if expiring {
		remaining := rec.Remaining(now)
		m.logger.Warn("subscription expiring soon",
			"product_id", rec.ProductID,
			"remaining", remaining.Round(time.Minute).String(),
		)
		m.plugins.EmitSubscriptionExpiring(ctx, rec, remaining)
	}
	return rec, nil
}

// Info is Load under the name used by the public surface.
func (m *Manager) Info(ctx context.Context) (*Record, error) {
	return m.Load(ctx)
}

// IsActive reports whether an unexpired subscription exists.
func (m *Manager) IsActive(ctx context.Context) (bool, error) {
	rec, err := m.Load(ctx)
	if err != nil {
		return false, err
	}
	return rec != nil, nil
}

// Save overwrites the record unconditionally. Callers check for an existing
// subscription beforehand.
func (m *Manager) Save(ctx context.Context, rec *Record) error {
	if rec == nil {
		return fmt.Errorf("%w: nil record", ErrInvalidRecord)
	}
	if err := rec.validate(); err != nil {
		return err
	}
	if rec.ID.IsNil() {
		rec.ID = id.NewSubscriptionID()
	}

	m.mu.Lock()
	err := m.write(ctx, rec)
	m.mu.Unlock()
	if err != nil {
		return err
	}

	m.logger.Info("subscription activated",
		"subscription_id", rec.ID.String(),
		"product_id", rec.ProductID,
		"type", string(rec.Type),
		"expiry", rec.ExpiryTime,
	)
	m.plugins.EmitSubscriptionActivated(ctx, rec)
	return nil
}

// Cancel deletes the active subscription. It returns false when there was
// none.
func (m *Manager) Cancel(ctx context.Context) (bool, error) {
	m.mu.Lock()
	rec, expired, _, err := m.load(ctx)
	if err == nil && rec != nil {
		if rerr := m.kv.Remove(ctx, Key); rerr != nil {
			err = fmt.Errorf("entitle: remove subscription: %w", rerr)
		}
	}
	m.mu.Unlock()

	if expired != nil {
		m.plugins.EmitSubscriptionExpired(ctx, expired)
	}
	if err != nil {
		return false, err
	}
	if rec == nil {
		return false, nil
	}

	m.logger.Info("subscription canceled",
		"subscription_id", rec.ID.String(),
		"product_id", rec.ProductID,
	)
	m.plugins.EmitSubscriptionCanceled(ctx, rec)
	return true, nil
}

// ExpiryDisplay returns the expiry date as text, or NoActiveSubscription.
// Storage errors read as no subscription.
func (m *Manager) ExpiryDisplay(ctx context.Context) string {
	rec, err := m.Load(ctx)
	if err != nil {
		m.logger.Warn("subscription expiry lookup failed", "error", err)
		return NoActiveSubscription
	}
	if rec == nil {
		return NoActiveSubscription
	}
	return rec.ExpiryTime.In(m.now().Location()).Format(expiryLayout)
}

// load reads the record and applies lazy expiry. Callers hold m.mu.
func (m *Manager) load(ctx context.Context) (rec, expired *Record, expiring bool, err error) {
	raw, err := m.kv.Get(ctx, Key)
	if store.IsNotFound(err) {
		return nil, nil, false, nil
	}
	if err != nil {
		return nil, nil, false, fmt.Errorf("entitle: load subscription: %w", err)
	}

	var model recordModel
	if derr := json.Unmarshal([]byte(raw), &model); derr != nil {
		m.discard(ctx, "subscription record unreadable", fmt.Errorf("%w: %w", ErrInvalidRecord, derr))
		return nil, nil, false, nil
	}
	rec, err = fromModel(&model)
	if err != nil {
		m.discard(ctx, "subscription record unreadable", err)
		return nil, nil, false, nil
	}
	if !rec.Active {
		m.discard(ctx, "subscription record inactive", nil)
		return nil, nil, false, nil
	}

	now := m.now()
	if rec.Expired(now) {
		if err := m.kv.Remove(ctx, Key); err != nil {
			return nil, nil, false, fmt.Errorf("entitle: remove expired subscription: %w", err)
		}
		return nil, rec, false, nil
	}

	if m.warnWithin > 0 && rec.Remaining(now) < m.warnWithin && !m.warned.Equal(rec.ExpiryTime) {
		m.warned = rec.ExpiryTime
		expiring = true
	}
	return rec, nil, expiring, nil
}

// discard drops a record that cannot grant access so that credits and new
// purchases keep working. Callers hold m.mu.
func (m *Manager) discard(ctx context.Context, msg string, cause error) {
	if cause != nil {
		m.logger.Warn(msg, "key", Key, "error", cause)
	} else {
		m.logger.Info(msg, "key", Key)
	}
	if err := m.kv.Remove(ctx, Key); err != nil {
		m.logger.Warn("subscription record removal failed", "key", Key, "error", err)
	}
}

// write persists rec. Callers hold m.mu.
func (m *Manager) write(ctx context.Context, rec *Record) error {
	data, err := json.Marshal(toModel(rec))
	if err != nil {
		return fmt.Errorf("entitle: encode subscription: %w", err)
	}
	if err := m.kv.Set(ctx, Key, string(data)); err != nil {
		return fmt.Errorf("entitle: save subscription: %w", err)
	}
	return nil
}
