package product

import (
	"errors"
	"fmt"

	"github.com/xraph/entitle/types"
)

var (
	ErrInvalidProduct   = errors.New("entitle: invalid product")
	ErrDuplicateProduct = errors.New("entitle: duplicate product id")
)

// Product identifiers registered with the app stores.
const (
	IDPdf10               = "2014inv10pdf"
	IDPdf25               = "2014inv25pdf"
	IDPdf50               = "2014inv50pdf"
	IDPdf100              = "2014inv100pdf"
	IDShareFacebook       = "2015inv10fb"
	IDShareTwitter        = "2015inv10tw"
	IDShareWhatsApp       = "2015inv10wa"
	IDShareSMS            = "2015inv10sms"
	IDSaveToDevice        = "2015inv10save"
	IDCloudSave           = "2015invcloud"
	IDDocAction10         = "2015invsaveprintemail"
	IDDocAction500        = "2015inv500saveprintemail"
	IDDocAction1000       = "2015inv1000saveprintemail"
	IDSubscriptionMonthly = "gov_billing_subscription_monthly"
	IDSubscriptionYearly  = "gov_billing_subscription_yearly"
)

// Catalog is an ordered, immutable set of products. Order matters: tiers of
// the same class are drained in catalog order.
type Catalog struct {
	products []Product
	byID     map[string]int
}

// NewCatalog validates products and builds a catalog preserving their order.
func NewCatalog(products ...Product) (*Catalog, error) {
	c := &Catalog{
		products: make([]Product, 0, len(products)),
		byID:     make(map[string]int, len(products)),
	}
	for _, p := range products {
		if err := validate(p); err != nil {
			return nil, err
		}
		if _, dup := c.byID[p.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateProduct, p.ID)
		}
		c.byID[p.ID] = len(c.products)
		c.products = append(c.products, p)
	}
	return c, nil
}

func validate(p Product) error {
	switch {
	case p.ID == "":
		return fmt.Errorf("%w: empty id", ErrInvalidProduct)
	case p.Kind != KindConsumable && p.Kind != KindSubscription:
		return fmt.Errorf("%w: %s has unknown kind %q", ErrInvalidProduct, p.ID, p.Kind)
	case p.Kind == KindConsumable && p.GrantSize <= 0:
		return fmt.Errorf("%w: consumable %s needs a positive grant size", ErrInvalidProduct, p.ID)
	case p.Kind == KindSubscription && !p.Class.IsSubscription():
		return fmt.Errorf("%w: subscription %s has class %q", ErrInvalidProduct, p.ID, p.Class)
	case p.Class == ClassSocialShare && p.Platform == "":
		return fmt.Errorf("%w: share product %s has no platform", ErrInvalidProduct, p.ID)
	case p.WelcomeUnits < 0:
		return fmt.Errorf("%w: %s has negative welcome units", ErrInvalidProduct, p.ID)
	}
	return nil
}

// Lookup returns the product with the given id.
func (c *Catalog) Lookup(productID string) (Product, bool) {
	i, ok := c.byID[productID]
	if !ok {
		return Product{}, false
	}
	return c.products[i], true
}

// All returns a copy of every product in catalog order.
func (c *Catalog) All() []Product {
	out := make([]Product, len(c.products))
	copy(out, c.products)
	return out
}

// Filter returns the products matching fn in catalog order.
func (c *Catalog) Filter(fn func(Product) bool) []Product {
	var out []Product
	for _, p := range c.products {
		if fn(p) {
			out = append(out, p)
		}
	}
	return out
}

// IDs returns the ids of the products matching fn in catalog order.
func (c *Catalog) IDs(fn func(Product) bool) []string {
	var out []string
	for _, p := range c.products {
		if fn(p) {
			out = append(out, p.ID)
		}
	}
	return out
}

// ClassIDs returns the tiers backing a feature class, cheapest first.
func (c *Catalog) ClassIDs(class Class) []string {
	return c.IDs(func(p Product) bool { return p.Class == class })
}

// ShareIDs returns the products backing social sharing on one platform.
func (c *Catalog) ShareIDs(platform Platform) []string {
	return c.IDs(func(p Product) bool {
		return p.Class == ClassSocialShare && p.Platform == platform
	})
}

// Consumables returns every credit pack.
func (c *Catalog) Consumables() []Product {
	return c.Filter(func(p Product) bool { return p.Kind == KindConsumable })
}

// Subscriptions returns every subscription plan.
func (c *Catalog) Subscriptions() []Product {
	return c.Filter(Product.IsSubscription)
}

// Len returns the number of products.
func (c *Catalog) Len() int { return len(c.products) }

// Default returns the shipped catalog.
func Default() *Catalog {
	c, err := NewCatalog(defaultProducts()...)
	if err != nil {
		panic(fmt.Sprintf("product: default catalog: %v", err))
	}
	return c
}

func defaultProducts() []Product {
	pdf := func(id, feature string, units int, cents int64) Product {
		return Product{
			ID:          id,
			Feature:     feature,
			Name:        feature,
			Description: fmt.Sprintf("One-time Purchase: %d PDF Credits", units),
			Class:       ClassPDF,
			Kind:        KindConsumable,
			GrantSize:   units,
			Price:       types.USD(cents),
		}
	}
	share := func(id, feature, network string, platform Platform) Product {
		return Product{
			ID:          id,
			Feature:     feature,
			Name:        feature,
			Description: fmt.Sprintf("One-time Purchase: 10 %s Share Credits", network),
			Class:       ClassSocialShare,
			Platform:    platform,
			Kind:        KindConsumable,
			GrantSize:   10,
			Price:       types.USD(99),
		}
	}
	doc := func(id, feature string, units int, cents int64, welcome int) Product {
		return Product{
			ID:           id,
			Feature:      feature,
			Name:         feature,
			Description:  fmt.Sprintf("One-time Purchase: %d Email/Print/Save Credits", units),
			Class:        ClassDocAction,
			Kind:         KindConsumable,
			GrantSize:    units,
			Price:        types.USD(cents),
			WelcomeUnits: welcome,
		}
	}

	return []Product{
		pdf(IDPdf10, "10Pdf", 10, 99),
		pdf(IDPdf25, "25Pdf", 25, 199),
		pdf(IDPdf50, "50Pdf", 50, 299),
		pdf(IDPdf100, "100Pdf", 100, 399),
		share(IDShareFacebook, "10Fb", "Facebook", PlatformFacebook),
		share(IDShareTwitter, "10Tw", "Twitter", PlatformTwitter),
		share(IDShareWhatsApp, "10Wa", "WhatsApp", PlatformWhatsApp),
		share(IDShareSMS, "10Sms", "SMS", PlatformSMS),
		{
			ID:          IDSaveToDevice,
			Feature:     "10iBooks",
			Name:        "10iBooks",
			Description: "One-time Purchase: 10 Save to Device Credits",
			Class:       ClassSaveToDevice,
			Kind:        KindConsumable,
			GrantSize:   10,
			Price:       types.USD(99),
			Hidden:      true,
		},
		{
			ID:           IDCloudSave,
			Feature:      "save",
			Name:         "Cloud Save",
			Description:  "One-time Purchase: 10 Cloud Save Credits",
			Class:        ClassCloudSave,
			Kind:         KindConsumable,
			GrantSize:    10,
			Price:        types.USD(99),
			WelcomeUnits: 5,
		},
		doc(IDDocAction10, "email-print-save", 10, 99, 10),
		doc(IDDocAction500, "email-second-print-save", 500, 399, 0),
		doc(IDDocAction1000, "email-third-print-save", 1000, 699, 0),
		{
			ID:          IDSubscriptionMonthly,
			Feature:     "monthly",
			Name:        "Monthly Subscription Plan",
			Description: "Unlimited PDFs, print, email, save and social share for 30 days. Cloud backup included.",
			Class:       ClassSubscriptionMonthly,
			Kind:        KindSubscription,
			Price:       types.USD(499),
		},
		{
			ID:          IDSubscriptionYearly,
			Feature:     "yearly",
			Name:        "Yearly Subscription Plan",
			Description: "Unlimited PDFs, print, email, save and social share for 365 days. Cloud backup included. Save 33% vs monthly.",
			Class:       ClassSubscriptionYearly,
			Kind:        KindSubscription,
			Price:       types.USD(3999),
		},
	}
}
