package product_test

import (
	"errors"
	"testing"

	"github.com/xraph/entitle/product"
)

func TestDefaultCatalog(t *testing.T) {
	c := product.Default()
	if c.Len() != 15 {
		t.Fatalf("Len: got %d, want 15", c.Len())
	}

	tests := []struct {
		id    string
		class product.Class
		grant int
		price string
	}{
		{product.IDPdf10, product.ClassPDF, 10, "$0.99"},
		{product.IDPdf100, product.ClassPDF, 100, "$3.99"},
		{product.IDShareSMS, product.ClassSocialShare, 10, "$0.99"},
		{product.IDDocAction1000, product.ClassDocAction, 1000, "$6.99"},
		{product.IDCloudSave, product.ClassCloudSave, 10, "$0.99"},
		{product.IDSubscriptionYearly, product.ClassSubscriptionYearly, 0, "$39.99"},
	}
	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			p, ok := c.Lookup(tt.id)
			if !ok {
				t.Fatalf("Lookup(%q) missing", tt.id)
			}
			if p.Class != tt.class {
				t.Errorf("Class: got %q, want %q", p.Class, tt.class)
			}
			if p.GrantSize != tt.grant {
				t.Errorf("GrantSize: got %d, want %d", p.GrantSize, tt.grant)
			}
			if p.Price.String() != tt.price {
				t.Errorf("Price: got %s, want %s", p.Price, tt.price)
			}
		})
	}
}

func TestClassIDsKeepTierOrder(t *testing.T) {
	c := product.Default()
	got := c.ClassIDs(product.ClassPDF)
	want := []string{product.IDPdf10, product.IDPdf25, product.IDPdf50, product.IDPdf100}
	if len(got) != len(want) {
		t.Fatalf("ClassIDs: got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("ClassIDs[%d]: got %q, want %q", i, got[i], want[i])
		}
	}

	if ids := c.ShareIDs(product.PlatformWhatsApp); len(ids) != 1 || ids[0] != product.IDShareWhatsApp {
		t.Errorf("ShareIDs(whatsapp): got %v", ids)
	}
	if n := len(c.Subscriptions()); n != 2 {
		t.Errorf("Subscriptions: got %d, want 2", n)
	}
	if n := len(c.Consumables()); n != 13 {
		t.Errorf("Consumables: got %d, want 13", n)
	}
}

func TestTerm(t *testing.T) {
	c := product.Default()
	monthly, _ := c.Lookup(product.IDSubscriptionMonthly)
	yearly, _ := c.Lookup(product.IDSubscriptionYearly)
	pdf, _ := c.Lookup(product.IDPdf10)

	if monthly.Term() != product.MonthlyTerm {
		t.Errorf("monthly term: got %v", monthly.Term())
	}
	if yearly.Term() != product.YearlyTerm {
		t.Errorf("yearly term: got %v", yearly.Term())
	}
	if pdf.Term() != 0 {
		t.Errorf("consumable term: got %v", pdf.Term())
	}
}

func TestNewCatalogValidation(t *testing.T) {
	tests := []struct {
		name    string
		items   []product.Product
		wantErr error
	}{
		{
			name:    "empty id",
			items:   []product.Product{{Kind: product.KindConsumable, GrantSize: 1}},
			wantErr: product.ErrInvalidProduct,
		},
		{
			name:    "consumable without grant",
			items:   []product.Product{{ID: "x", Kind: product.KindConsumable}},
			wantErr: product.ErrInvalidProduct,
		},
		{
			name:    "subscription with consumable class",
			items:   []product.Product{{ID: "x", Kind: product.KindSubscription, Class: product.ClassPDF}},
			wantErr: product.ErrInvalidProduct,
		},
		{
			name:    "share without platform",
			items:   []product.Product{{ID: "x", Kind: product.KindConsumable, Class: product.ClassSocialShare, GrantSize: 1}},
			wantErr: product.ErrInvalidProduct,
		},
		{
			name: "duplicate",
			items: []product.Product{
				{ID: "x", Kind: product.KindConsumable, Class: product.ClassPDF, GrantSize: 1},
				{ID: "x", Kind: product.KindConsumable, Class: product.ClassPDF, GrantSize: 2},
			},
			wantErr: product.ErrDuplicateProduct,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := product.NewCatalog(tt.items...)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("got %v, want %v", err, tt.wantErr)
			}
		})
	}
}
