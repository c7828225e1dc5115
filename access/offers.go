package access

import "context"

// Offers lists every visible product with the user's current standing, in
// catalog order.
func (g *Gate) Offers(ctx context.Context) ([]Offer, error) {
	sub, err := g.activeSubscription(ctx)
	if err != nil {
		return nil, err
	}

	var offers []Offer
	for _, p := range g.catalog.All() {
		if p.Hidden {
			continue
		}
		o := Offer{
			ProductID:   p.ID,
			Name:        p.Name,
			Description: p.Description,
			Category:    categoryOf(p.Class),
			Class:       p.Class,
			Price:       p.Price,
		}
		if p.IsSubscription() {
			if sub != nil && sub.ProductID == p.ID {
				expiry := sub.ExpiryTime
				o.Active = true
				o.Unlimited = true
				o.Expiry = &expiry
			}
		} else {
			rec, err := g.credits.Get(ctx, p.ID)
			if err != nil {
				return nil, err
			}
			o.Units = rec.Remaining()
			o.Active = rec.Live()
			o.Unlimited = sub != nil
		}
		offers = append(offers, o)
	}
	return offers, nil
}

// HelpSection is one titled paragraph of purchase guidance shown next to the
// offers.
type HelpSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// PurchaseDocumentation returns the guidance shown on the purchase screen.
// The slice is a fresh copy.
func PurchaseDocumentation() []HelpSection {
	return []HelpSection{
		{
			Title:   CategorySubscriptions,
			Content: "Subscribe for unlimited access to all premium features. Choose between monthly or yearly plans. With a subscription you never run out of credits for any feature.",
		},
		{
			Title:   "One-time Purchases",
			Content: "If you prefer not to subscribe, buy credits for a specific feature. Each purchase adds a set number of credits that you can use until they run out.",
		},
		{
			Title:   "Which option is right for me?",
			Content: "If you use the app regularly or need several features, a subscription is the best value. If you only occasionally need one feature, one-time purchases cost less.",
		},
	}
}
