package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/xraph/entitle/product"
)

// SpecialPoolCap is the most remaining units a non-PDF feature pool may
// hold before further packs for it are refused.
const SpecialPoolCap = 30

var (
	ErrUnknownProduct            = errors.New("entitle: unknown product")
	ErrAlreadyActiveSubscription = errors.New("entitle: a different subscription is already active")
	ErrCoveredBySubscription     = errors.New("entitle: feature is covered by the active subscription")
	ErrPackAlreadyActive         = errors.New("entitle: another PDF pack still has credits")
	ErrPoolCapReached            = errors.New("entitle: credit pool is already above the cap")
)

// ValidatePurchase reports whether productID may be bought right now. It
// returns nil when the purchase is allowed.
func (g *Gate) ValidatePurchase(ctx context.Context, productID string) error {
	p, ok := g.catalog.Lookup(productID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProduct, productID)
	}

	sub, err := g.activeSubscription(ctx)
	if err != nil {
		return err
	}

	if p.IsSubscription() {
		if sub != nil && sub.ProductID != p.ID {
			return fmt.Errorf("%w: %s", ErrAlreadyActiveSubscription, sub.ProductID)
		}
		return nil
	}

	if sub != nil {
		return fmt.Errorf("%w: %s", ErrCoveredBySubscription, p.ID)
	}

	if p.Class == product.ClassPDF {
		for _, other := range g.catalog.ClassIDs(product.ClassPDF) {
			if other == p.ID {
				continue
			}
			rec, err := g.credits.Get(ctx, other)
			if err != nil {
				return err
			}
			if rec.Live() {
				return fmt.Errorf("%w: %s", ErrPackAlreadyActive, other)
			}
		}
		return nil
	}

	held, err := g.credits.TotalRemaining(ctx, g.poolIDs(p.Class, p.Platform))
	if err != nil {
		return err
	}
	if held > SpecialPoolCap {
		return fmt.Errorf("%w: %d units held for %s", ErrPoolCapReached, held, p.ID)
	}
	return nil
}
