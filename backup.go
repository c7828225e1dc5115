package entitle

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/id"
	"github.com/xraph/entitle/store"
	"github.com/xraph/entitle/subscription"
)

// AuthProvider reports whether the user is signed in and hands out the
// token that keys their backup.
type AuthProvider interface {
	IsAuthenticated(ctx context.Context) (bool, error)
	GetToken(ctx context.Context) (string, error)
}

// Vault keeps backup documents keyed by auth token. Get returns an error
// matching store.ErrNotFound when no backup exists.
type Vault interface {
	Put(ctx context.Context, token string, data []byte) error
	Get(ctx context.Context, token string) ([]byte, error)
}

// Backup is the document written to the vault.
type Backup struct {
	ID           id.ID                `json:"id"`
	CreatedAt    time.Time            `json:"created_at"`
	Entitlements []entitlement.Record `json:"entitlements"`
	Subscription *subscription.Record `json:"subscription,omitempty"`
}

// StoreVault keeps backups in a store.Store, typically a remote one such as
// the redis or mongo backends. Tokens are hashed before use as keys.
type StoreVault struct {
	kv store.Store
}

// compile-time interface check
var _ Vault = (*StoreVault)(nil)

// NewStoreVault creates a Vault on kv.
func NewStoreVault(kv store.Store) *StoreVault {
	return &StoreVault{kv: kv}
}

// Put implements Vault.
func (v *StoreVault) Put(ctx context.Context, token string, data []byte) error {
	return v.kv.Set(ctx, backupKey(token), string(data))
}

// Get implements Vault.
func (v *StoreVault) Get(ctx context.Context, token string) ([]byte, error) {
	raw, err := v.kv.Get(ctx, backupKey(token))
	if err != nil {
		return nil, err
	}
	return []byte(raw), nil
}

func backupKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return "entitle-backup:" + hex.EncodeToString(sum[:])
}

// BackupPurchases writes live credits and the active subscription to the
// vault. It reports false, after logging, when the user is signed out or
// anything fails; it never returns an error.
func (e *Engine) BackupPurchases(ctx context.Context) bool {
	b, err := e.Backup(ctx)
	if err != nil {
		e.logger.Warn("backup purchases failed", "error", err)
		return false
	}
	if b == nil {
		e.logger.Debug("nothing to back up")
	}
	return true
}

// Backup writes the backup document and returns it. It returns nil without
// error when there is nothing to back up.
func (e *Engine) Backup(ctx context.Context) (*Backup, error) {
	token, err := e.authorize(ctx)
	if err != nil {
		return nil, err
	}

	records, err := e.credits.List(ctx)
	if err != nil {
		return nil, err
	}
	sub, err := e.subs.Load(ctx)
	if err != nil {
		return nil, err
	}

	b := &Backup{
		ID:           id.NewBackupID(),
		CreatedAt:    e.now().UTC(),
		Entitlements: make([]entitlement.Record, 0, len(records)),
		Subscription: sub,
	}
	for _, r := range records {
		if r.Live() {
			b.Entitlements = append(b.Entitlements, r)
		}
	}
	if len(b.Entitlements) == 0 && b.Subscription == nil {
		return nil, nil
	}

	data, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("entitle: encode backup: %w", err)
	}
	if err := e.vault.Put(ctx, token, data); err != nil {
		return nil, fmt.Errorf("entitle: write backup: %w", err)
	}

	e.logger.Info("purchases backed up",
		"backup_id", b.ID.String(),
		"records", len(b.Entitlements),
		"subscription", b.Subscription != nil,
	)
	e.plugins.EmitPurchasesBackedUp(ctx, b.ID.String())
	return b, nil
}

// RestorePurchases merges the vault backup into local state. It reports
// false, after logging, when the user is signed out or anything fails.
func (e *Engine) RestorePurchases(ctx context.Context) bool {
	if _, err := e.Restore(ctx); err != nil {
		e.logger.Warn("restore purchases failed", "error", err)
		return false
	}
	return true
}

// Restore merges the vault backup and returns how many records were
// applied. Credits only replace pools that are not purchased locally; the
// backed-up subscription is saved when it is active, unexpired and none is
// active locally. A malformed backup fails with a ValidationError.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	token, err := e.authorize(ctx)
	if err != nil {
		return 0, err
	}

	data, err := e.vault.Get(ctx, token)
	if store.IsNotFound(err) {
		e.logger.Debug("no backup to restore")
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("entitle: read backup: %w", err)
	}

	b, err := decodeBackup(data)
	if err != nil {
		return 0, err
	}

	var errs MultiError
	restored, err := e.credits.Restore(ctx, b.Entitlements)
	errs.Add(err)

	if b.Subscription != nil && b.Subscription.Active && !b.Subscription.Expired(e.now()) {
		active, err := e.subs.Load(ctx)
		switch {
		case err != nil:
			errs.Add(err)
		case active == nil:
			if err := e.subs.Save(ctx, b.Subscription); err != nil {
				errs.Add(err)
			} else {
				restored++
			}
		}
	}

	if errs.HasErrors() {
		return restored, errs
	}

	e.logger.Info("purchases restored",
		"backup_id", b.ID.String(),
		"restored", restored,
	)
	e.plugins.EmitPurchasesRestored(ctx, restored)
	return restored, nil
}

// decodeBackup parses a vault document and rejects pools that could not have
// been written by Backup.
func decodeBackup(data []byte) (*Backup, error) {
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, ValidationError{Field: "backup", Message: err.Error()}
	}
	for i, r := range b.Entitlements {
		if r.Owned < 0 || r.Consumed < 0 {
			return nil, ValidationError{
				Field:   fmt.Sprintf("entitlements[%d]", i),
				Message: fmt.Sprintf("negative counters for %s", r.ProductID),
			}
		}
	}
	return &b, nil
}

// authorize checks sign-in and returns the backup token.
func (e *Engine) authorize(ctx context.Context) (string, error) {
	if e.vault == nil {
		return "", ErrVaultNotConfigured
	}
	if e.auth == nil {
		return "", ErrUnauthenticated
	}
	ok, err := e.auth.IsAuthenticated(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if !ok {
		return "", ErrUnauthenticated
	}
	token, err := e.auth.GetToken(ctx)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	if token == "" {
		return "", fmt.Errorf("%w: empty token", ErrUnauthenticated)
	}
	return token, nil
}
