package purchase_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/plugin"
	"github.com/xraph/entitle/product"
	"github.com/xraph/entitle/purchase"
	"github.com/xraph/entitle/purchase/sandbox"
	"github.com/xraph/entitle/store/memory"
	"github.com/xraph/entitle/subscription"
)

var now = time.Date(2026, 5, 1, 9, 0, 0, 0, time.UTC)

func clock() time.Time { return now }

type fixture struct {
	machine *purchase.Machine
	sdk     *sandbox.SDK
	credits *entitlement.Store
	subs    *subscription.Manager
}

func newFixture(t *testing.T, opts ...purchase.Option) *fixture {
	t.Helper()
	kv := memory.New()
	f := &fixture{
		sdk:     sandbox.New(),
		credits: entitlement.NewStore(kv),
		subs:    subscription.NewManager(kv, subscription.WithClock(clock)),
	}
	opts = append([]purchase.Option{purchase.WithClock(clock)}, opts...)
	f.machine = purchase.NewMachine(product.Default(), f.sdk, f.credits, f.subs, opts...)
	if err := f.machine.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	return f
}

func (f *fixture) owned(t *testing.T, productID string) entitlement.Record {
	t.Helper()
	r, err := f.credits.Get(context.Background(), productID)
	if err != nil {
		t.Fatal(err)
	}
	return r
}

func waitPending(t *testing.T, m *purchase.Machine, productID string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !m.Pending(productID) {
		if time.Now().After(deadline) {
			t.Fatalf("order for %s never became pending", productID)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestOrderBeforeStart(t *testing.T) {
	kv := memory.New()
	m := purchase.NewMachine(product.Default(), sandbox.New(), entitlement.NewStore(kv), subscription.NewManager(kv))

	if _, err := m.PurchaseItem(context.Background(), product.IDPdf10); !errors.Is(err, purchase.ErrStoreNotReady) {
		t.Errorf("got %v, want ErrStoreNotReady", err)
	}
}

func TestPurchaseConsumableGrants(t *testing.T) {
	tests := []struct {
		id    string
		grant int
	}{
		{product.IDPdf10, 10},
		{product.IDPdf25, 25},
		{product.IDPdf50, 50},
		{product.IDPdf100, 100},
		{product.IDShareFacebook, 10},
		{product.IDSaveToDevice, 10},
		{product.IDDocAction10, 10},
		{product.IDDocAction500, 500},
		{product.IDDocAction1000, 1000},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			f := newFixture(t)
			tx, err := f.machine.PurchaseItem(context.Background(), tt.id)
			if err != nil {
				t.Fatal(err)
			}
			if tx.State != purchase.StateFinished {
				t.Errorf("state: got %s, want finished", tx.State)
			}
			if tx.ID.Prefix() != "ptx" {
				t.Errorf("tx id: got %s", tx.ID)
			}
			if r := f.owned(t, tt.id); r.Owned != tt.grant || !r.Purchased {
				t.Errorf("record: got %+v, want owned=%d", r, tt.grant)
			}
			if fin := f.sdk.Finished(); len(fin) != 1 || fin[0] != tt.id {
				t.Errorf("finished: got %v", fin)
			}
		})
	}
}

func TestRepeatPurchaseCarriesForward(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for range 2 {
		if _, err := f.machine.PurchaseItem(ctx, product.IDPdf10); err != nil {
			t.Fatal(err)
		}
	}
	if r := f.owned(t, product.IDPdf10); r.Owned != 20 {
		t.Errorf("owned: got %d, want 20", r.Owned)
	}
}

func TestPurchaseSubscription(t *testing.T) {
	tests := []struct {
		id   string
		term time.Duration
	}{
		{product.IDSubscriptionMonthly, 30 * 24 * time.Hour},
		{product.IDSubscriptionYearly, 365 * 24 * time.Hour},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)

			if _, err := f.machine.PurchaseSubscription(ctx, tt.id); err != nil {
				t.Fatal(err)
			}
			rec, err := f.subs.Load(ctx)
			if err != nil {
				t.Fatal(err)
			}
			if rec == nil {
				t.Fatal("no subscription saved")
			}
			if !rec.ExpiryTime.Equal(now.Add(tt.term)) {
				t.Errorf("expiry: got %v, want %v", rec.ExpiryTime, now.Add(tt.term))
			}
			if !rec.AutoRenewing || !rec.Active {
				t.Errorf("flags: %+v", rec)
			}
		})
	}
}

func TestPurchaseSubscriptionRejectsConsumable(t *testing.T) {
	f := newFixture(t)
	if _, err := f.machine.PurchaseSubscription(context.Background(), product.IDPdf10); !errors.Is(err, purchase.ErrNotSubscriptionProduct) {
		t.Errorf("got %v", err)
	}
}

func TestUnknownProduct(t *testing.T) {
	f := newFixture(t)
	if _, err := f.machine.PurchaseItem(context.Background(), "nope"); !errors.Is(err, purchase.ErrProductNotFound) {
		t.Errorf("got %v", err)
	}
}

func TestReceiptInvalidAppliesNoGrant(t *testing.T) {
	reject := purchase.ValidatorFunc(func(context.Context, *purchase.Transaction) (bool, error) {
		return false, nil
	})
	f := newFixture(t, purchase.WithValidator(reject))

	tx, err := f.machine.PurchaseItem(context.Background(), product.IDPdf10)
	if !errors.Is(err, purchase.ErrReceiptInvalid) {
		t.Fatalf("got %v, want ErrReceiptInvalid", err)
	}
	if tx.State != purchase.StateError {
		t.Errorf("state: got %s, want error", tx.State)
	}
	if r := f.owned(t, product.IDPdf10); r.Purchased || r.Owned != 0 {
		t.Errorf("grant applied: %+v", r)
	}
	if fin := f.sdk.Finished(); len(fin) != 0 {
		t.Errorf("rejected transaction finished: %v", fin)
	}
}

func TestValidatorErrorFailsPurchase(t *testing.T) {
	boom := purchase.ValidatorFunc(func(context.Context, *purchase.Transaction) (bool, error) {
		return false, errors.New("backend down")
	})
	f := newFixture(t, purchase.WithValidator(boom))

	if _, err := f.machine.PurchaseItem(context.Background(), product.IDPdf10); !errors.Is(err, purchase.ErrPurchaseFailed) {
		t.Errorf("got %v, want ErrPurchaseFailed", err)
	}
}

func TestVerifyFailure(t *testing.T) {
	f := newFixture(t)
	f.sdk.FailVerify(errors.New("no network"))

	if _, err := f.machine.PurchaseItem(context.Background(), product.IDPdf10); !errors.Is(err, purchase.ErrPurchaseFailed) {
		t.Errorf("got %v", err)
	}
	if r := f.owned(t, product.IDPdf10); r.Purchased {
		t.Errorf("grant applied: %+v", r)
	}
}

func TestOrderError(t *testing.T) {
	f := newFixture(t)
	f.sdk.FailOrders(errors.New("store offline"))

	_, err := f.machine.PurchaseItem(context.Background(), product.IDPdf10)
	if !errors.Is(err, purchase.ErrPurchaseFailed) {
		t.Errorf("got %v", err)
	}
	if f.machine.Pending(product.IDPdf10) {
		t.Error("slot not released after order error")
	}
}

func TestCancelledPurchaseRejects(t *testing.T) {
	f := newFixture(t)
	f.sdk.SetOutcome(product.IDPdf10, sandbox.Cancel)

	tx, err := f.machine.PurchaseItem(context.Background(), product.IDPdf10)
	if !errors.Is(err, purchase.ErrPurchaseCancelled) {
		t.Fatalf("got %v, want ErrPurchaseCancelled", err)
	}
	if tx.State != purchase.StateCancelled {
		t.Errorf("state: got %s", tx.State)
	}
	if r := f.owned(t, product.IDPdf10); r.Purchased {
		t.Errorf("grant applied: %+v", r)
	}
}

// lateCancelSDK delivers a cancellation for the order right before
// finishing it.
type lateCancelSDK struct {
	*sandbox.SDK
	machine *purchase.Machine
}

func (s *lateCancelSDK) Finish(ctx context.Context, tx *purchase.Transaction) error {
	cancelled := *tx
	cancelled.State = purchase.StateCancelled
	s.machine.OnCancelled(ctx, &cancelled)
	return s.SDK.Finish(ctx, tx)
}

func TestCancelAfterGrantIgnored(t *testing.T) {
	ctx := context.Background()
	kv := memory.New()
	credits := entitlement.NewStore(kv)
	subs := subscription.NewManager(kv, subscription.WithClock(clock))

	inner := sandbox.New()
	inner.SkipVerifiedEvent(true)
	sdk := &lateCancelSDK{SDK: inner}
	sdk.machine = purchase.NewMachine(product.Default(), sdk, credits, subs, purchase.WithClock(clock))
	if err := sdk.machine.Start(ctx); err != nil {
		t.Fatal(err)
	}

	tx, err := sdk.machine.PurchaseItem(ctx, product.IDPdf10)
	if err != nil {
		t.Fatalf("PurchaseItem: %v", err)
	}
	if tx.State != purchase.StateFinished {
		t.Errorf("state: got %s, want finished", tx.State)
	}
	r, err := credits.Get(ctx, product.IDPdf10)
	if err != nil {
		t.Fatal(err)
	}
	if r.Owned != 10 || !r.Purchased {
		t.Errorf("grant: got %+v", r)
	}
}

func TestSupersedingOrderRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.sdk.SetOutcome(product.IDPdf10, sandbox.Hold)

	first := make(chan error, 1)
	go func() {
		_, err := f.machine.PurchaseItem(ctx, product.IDPdf10)
		first <- err
	}()
	waitPending(t, f.machine, product.IDPdf10)

	if _, err := f.machine.PurchaseItem(ctx, product.IDPdf10); !errors.Is(err, purchase.ErrSuperseded) {
		t.Fatalf("second order: got %v, want ErrSuperseded", err)
	}

	if err := f.sdk.Release(ctx, product.IDPdf10, sandbox.Approve); err != nil {
		t.Fatal(err)
	}
	if err := <-first; err != nil {
		t.Fatalf("first order: %v", err)
	}
	if r := f.owned(t, product.IDPdf10); r.Owned != 10 {
		t.Errorf("owned: got %d, want 10", r.Owned)
	}
}

func TestContextCancelReleasesSlot(t *testing.T) {
	f := newFixture(t)
	f.sdk.SetOutcome(product.IDPdf25, sandbox.Hold)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := f.machine.PurchaseItem(ctx, product.IDPdf25)
		done <- err
	}()
	waitPending(t, f.machine, product.IDPdf25)
	cancel()

	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if f.machine.Pending(product.IDPdf25) {
		t.Error("slot still held")
	}

	// The platform still completes the payment later.
	if err := f.sdk.Release(context.Background(), product.IDPdf25, sandbox.Approve); err != nil {
		t.Fatal(err)
	}
	if r := f.owned(t, product.IDPdf25); r.Owned != 25 {
		t.Errorf("late approval not granted: %+v", r)
	}
}

func TestSDKErrorResolvesNothing(t *testing.T) {
	f := newFixture(t)
	f.sdk.SetOutcome(product.IDPdf10, sandbox.Fail)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := f.machine.PurchaseItem(ctx, product.IDPdf10); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("got %v, want DeadlineExceeded", err)
	}
}

func TestRedeliveryGrantsWithoutOrder(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if err := f.sdk.Redeliver(ctx, product.IDCloudSave); err != nil {
		t.Fatal(err)
	}
	if r := f.owned(t, product.IDCloudSave); r.Owned != 10 {
		t.Errorf("owned: got %d, want 10", r.Owned)
	}
	if f.machine.Pending(product.IDCloudSave) {
		t.Error("redelivered transaction left pending")
	}
}

func TestFinishedResolvesWithoutVerifiedEvent(t *testing.T) {
	f := newFixture(t)
	f.sdk.SkipVerifiedEvent(true)

	tx, err := f.machine.PurchaseItem(context.Background(), product.IDPdf10)
	if err != nil {
		t.Fatal(err)
	}
	if tx.State != purchase.StateFinished {
		t.Errorf("state: got %s", tx.State)
	}
}

func TestCancelSubscription(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	if ok, _ := f.machine.CancelSubscription(ctx); ok {
		t.Error("cancel with nothing active returned true")
	}
	if _, err := f.machine.PurchaseSubscription(ctx, product.IDSubscriptionYearly); err != nil {
		t.Fatal(err)
	}
	ok, err := f.machine.CancelSubscription(ctx)
	if err != nil || !ok {
		t.Errorf("cancel: got %v, %v", ok, err)
	}
}

type transitionRecorder struct {
	mu    sync.Mutex
	steps []string
}

func (*transitionRecorder) Name() string { return "transitions" }

func (r *transitionRecorder) OnPurchaseStateChanged(_ context.Context, _ interface{}, from, to string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.steps = append(r.steps, from+">"+to)
	return nil
}

func TestStateChangesReported(t *testing.T) {
	rec := &transitionRecorder{}
	reg := plugin.NewRegistry()
	if err := reg.Register(rec); err != nil {
		t.Fatal(err)
	}
	f := newFixture(t, purchase.WithPlugins(reg))

	if _, err := f.machine.PurchaseItem(context.Background(), product.IDPdf10); err != nil {
		t.Fatal(err)
	}

	want := []string{">ordered", "ordered>approved", "approved>verified", "verified>finished"}
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.steps) != len(want) {
		t.Fatalf("steps: got %v, want %v", rec.steps, want)
	}
	for i := range want {
		if rec.steps[i] != want[i] {
			t.Errorf("step %d: got %q, want %q", i, rec.steps[i], want[i])
		}
	}
}
