package access

import (
	"time"

	"github.com/xraph/entitle/product"
	"github.com/xraph/entitle/types"
)

// Reason explains a Decision.
type Reason string

const (
	ReasonSubscription Reason = "subscription"
	ReasonCredit       Reason = "credit"
	ReasonNoCredits    Reason = "no_credits"
	ReasonUnknown      Reason = "unknown_feature"
	ReasonError        Reason = "error"
)

// Decision is the outcome of one access check.
type Decision struct {
	Feature   product.Class    `json:"feature"`
	Platform  product.Platform `json:"platform,omitempty"`
	Allowed   bool             `json:"allowed"`
	Unlimited bool             `json:"unlimited"`
	Remaining int              `json:"remaining"`
	ProductID string           `json:"product_id,omitempty"`
	Reason    Reason           `json:"reason"`
	Err       error            `json:"-"`
}

// Snapshot is a read-only view of what the user can do. Building it never
// spends a credit.
type Snapshot struct {
	HasActiveSubscription bool                     `json:"has_active_subscription"`
	SubscriptionType      string                   `json:"subscription_type,omitempty"`
	SubscriptionExpiry    *time.Time               `json:"subscription_expiry,omitempty"`
	PDFCredits            int                      `json:"pdf_credits"`
	SocialCredits         map[product.Platform]int `json:"social_credits"`
	EmailPrintSaveCredits int                      `json:"email_print_save_credits"`
	SaveToDeviceCredits   int                      `json:"save_to_device_credits"`
	CloudSaveCredits      int                      `json:"cloud_save_credits"`
}

func emptySnapshot() Snapshot {
	social := make(map[product.Platform]int, len(product.Platforms))
	for _, p := range product.Platforms {
		social[p] = 0
	}
	return Snapshot{SocialCredits: social}
}

// Offer categories in display order.
const (
	CategorySubscriptions = "Subscription Plans"
	CategoryPDF           = "PDF Packages"
	CategorySharing       = "Sharing Options"
	CategoryDocuments     = "Document Actions"
	CategoryOther         = "Additional Features"
)

// Categories lists the offer categories in display order.
var Categories = []string{
	CategorySubscriptions,
	CategoryPDF,
	CategorySharing,
	CategoryDocuments,
	CategoryOther,
}

// Offer is a purchasable product with the user's current standing.
type Offer struct {
	ProductID   string        `json:"product_id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Category    string        `json:"category"`
	Class       product.Class `json:"class"`
	Price       types.Money   `json:"price"`
	Units       int           `json:"units"`
	Unlimited   bool          `json:"unlimited"`
	Active      bool          `json:"active"`
	Expiry      *time.Time    `json:"expiry,omitempty"`
}

func categoryOf(class product.Class) string {
	switch class {
	case product.ClassSubscriptionMonthly, product.ClassSubscriptionYearly:
		return CategorySubscriptions
	case product.ClassPDF:
		return CategoryPDF
	case product.ClassSocialShare:
		return CategorySharing
	case product.ClassDocAction:
		return CategoryDocuments
	default:
		return CategoryOther
	}
}

// GroupByCategory buckets offers by category, keeping their order.
func GroupByCategory(offers []Offer) map[string][]Offer {
	out := make(map[string][]Offer)
	for _, o := range offers {
		out[o.Category] = append(out[o.Category], o)
	}
	return out
}
