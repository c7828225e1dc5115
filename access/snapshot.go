package access

import (
	"context"

	"github.com/xraph/entitle/product"
)

// UserAccessStatus reports the user's standing without spending anything.
// Any storage failure yields an all-zero snapshot.
func (g *Gate) UserAccessStatus(ctx context.Context) Snapshot {
	snap, err := g.snapshot(ctx)
	if err != nil {
		g.logger.Error("access status failed", "error", err)
		return emptySnapshot()
	}
	return snap
}

func (g *Gate) snapshot(ctx context.Context) (Snapshot, error) {
	snap := emptySnapshot()

	sub, err := g.activeSubscription(ctx)
	if err != nil {
		return snap, err
	}
	if sub != nil {
		expiry := sub.ExpiryTime
		snap.HasActiveSubscription = true
		snap.SubscriptionType = string(sub.Type)
		snap.SubscriptionExpiry = &expiry
	}

	total := func(ids []string) (int, error) {
		return g.credits.TotalRemaining(ctx, ids)
	}

	if snap.PDFCredits, err = total(g.catalog.ClassIDs(product.ClassPDF)); err != nil {
		return snap, err
	}
	for _, p := range product.Platforms {
		n, err := total(g.catalog.ShareIDs(p))
		if err != nil {
			return snap, err
		}
		snap.SocialCredits[p] = n
	}
	if snap.EmailPrintSaveCredits, err = total(g.catalog.ClassIDs(product.ClassDocAction)); err != nil {
		return snap, err
	}
	if snap.SaveToDeviceCredits, err = total(g.catalog.ClassIDs(product.ClassSaveToDevice)); err != nil {
		return snap, err
	}
	if snap.CloudSaveCredits, err = total(g.catalog.ClassIDs(product.ClassCloudSave)); err != nil {
		return snap, err
	}
	return snap, nil
}
