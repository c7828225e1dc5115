package entitle_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/entitle"
	"github.com/xraph/entitle/product"
	"github.com/xraph/entitle/store/memory"
)

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type auth struct {
	signedIn bool
	token    string
}

func (a auth) IsAuthenticated(context.Context) (bool, error) { return a.signedIn, nil }
func (a auth) GetToken(context.Context) (string, error)      { return a.token, nil }

func start(t *testing.T, opts ...entitle.Option) *entitle.Engine {
	t.Helper()
	opts = append([]entitle.Option{entitle.WithClock(clock)}, opts...)
	eng := entitle.New(memory.New(), opts...)
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = eng.Stop() })
	return eng
}

func buy(t *testing.T, eng *entitle.Engine, productID string) {
	t.Helper()
	p, ok := eng.Catalog().Lookup(productID)
	if !ok {
		t.Fatalf("unknown product %s", productID)
	}
	var err error
	if p.IsSubscription() {
		_, err = eng.PurchaseSubscription(context.Background(), productID)
	} else {
		_, err = eng.PurchaseItem(context.Background(), productID)
	}
	if err != nil {
		t.Fatalf("buy %s: %v", productID, err)
	}
}

func TestWelcomeCredits(t *testing.T) {
	ctx := context.Background()

	snap := start(t).GetUserAccessStatus(ctx)
	if snap.EmailPrintSaveCredits != 0 || snap.CloudSaveCredits != 0 {
		t.Errorf("without welcome: got %+v", snap)
	}

	eng := start(t, entitle.WithWelcomeCredits())
	snap = eng.GetUserAccessStatus(ctx)
	if snap.EmailPrintSaveCredits != 10 || snap.CloudSaveCredits != 5 {
		t.Errorf("with welcome: got %+v", snap)
	}
	if !eng.CanEmailPrintSave(ctx) || !eng.CanSaveToCloud(ctx) {
		t.Error("welcome credits not spendable")
	}
}

func TestSubscriptionLifecycle(t *testing.T) {
	ctx := context.Background()
	eng := start(t)

	if got := eng.GetSubscriptionExpiry(ctx); got != "No active subscription" {
		t.Errorf("expiry before purchase: got %q", got)
	}

	buy(t, eng, product.IDSubscriptionMonthly)

	info, err := eng.GetSubscriptionInfo(ctx)
	if err != nil || info == nil {
		t.Fatalf("GetSubscriptionInfo: %v, %v", info, err)
	}
	if info.ProductID != product.IDSubscriptionMonthly {
		t.Errorf("ProductID: got %s", info.ProductID)
	}
	if got := eng.GetSubscriptionExpiry(ctx); got != "May 31, 2026" {
		t.Errorf("expiry: got %q", got)
	}

	for range 3 {
		if !eng.CanShareSocial(ctx, entitle.PlatformFacebook) {
			t.Fatal("share denied while subscribed")
		}
	}
	if err := eng.ValidatePurchase(ctx, product.IDPdf10); !entitle.IsPurchaseRejected(err) {
		t.Errorf("ValidatePurchase while subscribed: got %v", err)
	}

	ok, err := eng.CancelSubscription(ctx)
	if err != nil || !ok {
		t.Fatalf("CancelSubscription: %v, %v", ok, err)
	}
	if eng.CanShareSocial(ctx, entitle.PlatformFacebook) {
		t.Error("share allowed after cancel with no credits")
	}
}

type rejecter struct{}

func (rejecter) Name() string { return "rejecter" }

func (rejecter) ValidateReceipt(context.Context, interface{}) (bool, error) { return false, nil }

func TestPluginReceiptValidator(t *testing.T) {
	ctx := context.Background()

	eng := start(t, entitle.WithPlugin(rejecter{}))
	_, err := eng.PurchaseItem(ctx, product.IDPdf10)
	if !errors.Is(err, entitle.ErrReceiptInvalid) || !entitle.IsPurchaseFailure(err) {
		t.Fatalf("got %v, want ErrReceiptInvalid", err)
	}
	if eng.CanGeneratePDF(ctx) {
		t.Error("credits granted for an invalid receipt")
	}

	// An explicit validator wins over plugins.
	eng = start(t,
		entitle.WithPlugin(rejecter{}),
		entitle.WithValidator(accept{}),
	)
	buy(t, eng, product.IDPdf10)
}

type accept struct{}

func (accept) ValidateReceipt(context.Context, *entitle.Transaction) (bool, error) { return true, nil }

type lifecycle struct {
	mu    sync.Mutex
	calls []string
}

func (l *lifecycle) Name() string { return "lifecycle" }

func (l *lifecycle) OnInit(_ context.Context, engine interface{}) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := engine.(*entitle.Engine); ok {
		l.calls = append(l.calls, "init")
	}
	return nil
}

func (l *lifecycle) OnShutdown(context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls = append(l.calls, "shutdown")
	return nil
}

func TestStartStopNotifyPlugins(t *testing.T) {
	l := &lifecycle{}
	eng := entitle.New(memory.New(), entitle.WithPlugin(l))
	if err := eng.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := eng.Stop(); err != nil {
		t.Fatal(err)
	}
	if len(l.calls) != 2 || l.calls[0] != "init" || l.calls[1] != "shutdown" {
		t.Errorf("calls: got %v", l.calls)
	}
}

func TestBackupRestoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	vault := entitle.NewStoreVault(memory.New())
	signedIn := auth{signedIn: true, token: "user-token"}

	src := start(t, entitle.WithAuth(signedIn), entitle.WithVault(vault))
	buy(t, src, product.IDPdf25)
	buy(t, src, product.IDShareSMS)
	buy(t, src, product.IDSubscriptionYearly)
	if !src.BackupPurchases(ctx) {
		t.Fatal("BackupPurchases failed")
	}

	dst := start(t, entitle.WithAuth(signedIn), entitle.WithVault(vault))
	n, err := dst.Restore(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("restored: got %d, want 3", n)
	}

	snap := dst.GetUserAccessStatus(ctx)
	if snap.PDFCredits != 25 || snap.SocialCredits[entitle.PlatformSMS] != 10 {
		t.Errorf("credits: got %+v", snap)
	}
	if !snap.HasActiveSubscription || snap.SubscriptionType != "yearly" {
		t.Errorf("subscription: got %+v", snap)
	}
}

func TestRestoreKeepsLocalPurchases(t *testing.T) {
	ctx := context.Background()
	vault := entitle.NewStoreVault(memory.New())
	signedIn := auth{signedIn: true, token: "user-token"}

	src := start(t, entitle.WithAuth(signedIn), entitle.WithVault(vault))
	buy(t, src, product.IDCloudSave)
	if !src.BackupPurchases(ctx) {
		t.Fatal("BackupPurchases failed")
	}

	dst := start(t, entitle.WithAuth(signedIn), entitle.WithVault(vault))
	buy(t, dst, product.IDCloudSave)
	dst.CanSaveToCloud(ctx)

	if !dst.RestorePurchases(ctx) {
		t.Fatal("RestorePurchases failed")
	}
	if got := dst.GetUserAccessStatus(ctx).CloudSaveCredits; got != 9 {
		t.Errorf("CloudSaveCredits: got %d, want 9", got)
	}
}

func TestBackupRestoreGating(t *testing.T) {
	ctx := context.Background()
	vault := entitle.NewStoreVault(memory.New())

	tests := []struct {
		name string
		opts []entitle.Option
		want error
	}{
		{"no vault", []entitle.Option{entitle.WithAuth(auth{signedIn: true, token: "t"})}, entitle.ErrVaultNotConfigured},
		{"no auth", []entitle.Option{entitle.WithVault(vault)}, entitle.ErrUnauthenticated},
		{"signed out", []entitle.Option{entitle.WithVault(vault), entitle.WithAuth(auth{token: "t"})}, entitle.ErrUnauthenticated},
		{"empty token", []entitle.Option{entitle.WithVault(vault), entitle.WithAuth(auth{signedIn: true})}, entitle.ErrUnauthenticated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			eng := start(t, tt.opts...)
			buy(t, eng, product.IDPdf10)

			if eng.BackupPurchases(ctx) {
				t.Error("BackupPurchases: got true")
			}
			if eng.RestorePurchases(ctx) {
				t.Error("RestorePurchases: got true")
			}
			if _, err := eng.Restore(ctx); !errors.Is(err, tt.want) {
				t.Errorf("Restore: got %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBackupNothingAndRestoreMissing(t *testing.T) {
	ctx := context.Background()
	eng := start(t,
		entitle.WithAuth(auth{signedIn: true, token: "fresh"}),
		entitle.WithVault(entitle.NewStoreVault(memory.New())),
	)

	b, err := eng.Backup(ctx)
	if err != nil || b != nil {
		t.Errorf("Backup of empty state: got %v, %v", b, err)
	}
	if !eng.BackupPurchases(ctx) {
		t.Error("BackupPurchases of empty state: got false")
	}

	n, err := eng.Restore(ctx)
	if err != nil || n != 0 {
		t.Errorf("Restore without backup: got %d, %v", n, err)
	}
}

func TestRestoreRejectsMalformedBackup(t *testing.T) {
	tests := []struct {
		name  string
		data  string
		field string
	}{
		{"not json", `{"entitlements":[`, "backup"},
		{"negative owned", `{"entitlements":[{"productId":"` + product.IDPdf10 + `","owned":-5,"consumed":0,"purchased":true}]}`, "entitlements[0]"},
		{"negative consumed", `{"entitlements":[{"productId":"` + product.IDPdf10 + `","owned":5,"consumed":0,"purchased":true},{"productId":"` + product.IDPdf25 + `","owned":5,"consumed":-1,"purchased":true}]}`, "entitlements[1]"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			vault := entitle.NewStoreVault(memory.New())
			if err := vault.Put(ctx, "user-token", []byte(tt.data)); err != nil {
				t.Fatal(err)
			}
			eng := start(t, entitle.WithAuth(auth{signedIn: true, token: "user-token"}), entitle.WithVault(vault))

			n, err := eng.Restore(ctx)
			if n != 0 || !errors.Is(err, entitle.ErrInvalidInput) {
				t.Fatalf("Restore: got %d, %v; want ErrInvalidInput", n, err)
			}
			var verr entitle.ValidationError
			if !errors.As(err, &verr) || verr.Field != tt.field {
				t.Errorf("ValidationError field: got %+v, want %q", verr, tt.field)
			}
			if eng.RestorePurchases(ctx) {
				t.Error("RestorePurchases: got true for a malformed backup")
			}
		})
	}
}

func TestErrorHelpers(t *testing.T) {
	tests := []struct {
		err       error
		retryable bool
		failure   bool
		notFound  bool
	}{
		{entitle.ErrStoreUnavailable, true, false, false},
		{entitle.ErrSuperseded, true, false, false},
		{entitle.ErrPurchaseCancelled, false, true, false},
		{entitle.ErrReceiptInvalid, false, true, false},
		{entitle.ErrProductNotFound, false, false, true},
		{entitle.ValidationError{Field: "units", Message: "must be positive"}, false, false, false},
	}
	for _, tt := range tests {
		if got := entitle.IsRetryable(tt.err); got != tt.retryable {
			t.Errorf("IsRetryable(%v): got %v", tt.err, got)
		}
		if got := entitle.IsPurchaseFailure(tt.err); got != tt.failure {
			t.Errorf("IsPurchaseFailure(%v): got %v", tt.err, got)
		}
		if got := entitle.IsNotFound(tt.err); got != tt.notFound {
			t.Errorf("IsNotFound(%v): got %v", tt.err, got)
		}
	}

	if !errors.Is(entitle.ValidationError{Field: "x"}, entitle.ErrInvalidInput) {
		t.Error("ValidationError does not match ErrInvalidInput")
	}
	var multi entitle.MultiError
	multi.Add(nil)
	multi.Add(entitle.ErrStoreClosed)
	if !errors.Is(multi, entitle.ErrStoreClosed) {
		t.Error("MultiError does not unwrap")
	}
}
