// Package product defines the static purchase catalog: the consumable credit
// packs and subscription plans a user can buy, and the feature class each one
// unlocks.
package product

import (
	"time"

	"github.com/xraph/entitle/types"
)

// Kind tells the purchase SDK how a product is billed.
type Kind string

const (
	KindConsumable   Kind = "consumable"
	KindSubscription Kind = "subscription"
)

// Class is the feature class a product unlocks.
type Class string

const (
	ClassPDF                 Class = "pdf"
	ClassSocialShare         Class = "social_share"
	ClassDocAction           Class = "doc_action"
	ClassSaveToDevice        Class = "save_to_device"
	ClassCloudSave           Class = "cloud_save"
	ClassSubscriptionMonthly Class = "subscription_monthly"
	ClassSubscriptionYearly  Class = "subscription_yearly"
)

// IsSubscription reports whether the class is one of the subscription plans.
func (c Class) IsSubscription() bool {
	return c == ClassSubscriptionMonthly || c == ClassSubscriptionYearly
}

// Platform is the social network a share credit is spent on.
type Platform string

const (
	PlatformFacebook Platform = "facebook"
	PlatformTwitter  Platform = "twitter"
	PlatformWhatsApp Platform = "whatsapp"
	PlatformSMS      Platform = "sms"
)

// Platforms lists every supported share platform in display order.
var Platforms = []Platform{PlatformFacebook, PlatformTwitter, PlatformWhatsApp, PlatformSMS}

// Subscription terms.
const (
	MonthlyTerm = 30 * 24 * time.Hour
	YearlyTerm  = 365 * 24 * time.Hour
)

// Product is one catalog entry.
type Product struct {
	ID          string      `json:"id"`
	Feature     string      `json:"feature"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Class       Class       `json:"class"`
	Platform    Platform    `json:"platform,omitempty"`
	Kind        Kind        `json:"kind"`
	GrantSize   int         `json:"grant_size"`
	Price       types.Money `json:"price"`

	// WelcomeUnits are credits seeded the first time the ledger is created.
	WelcomeUnits int `json:"welcome_units,omitempty"`

	// Hidden products are sellable but left out of the offer list.
	Hidden bool `json:"hidden,omitempty"`
}

// IsSubscription reports whether the product is a subscription plan.
func (p Product) IsSubscription() bool { return p.Kind == KindSubscription }

// Term returns the access period a subscription purchase buys, or zero for
// consumables.
func (p Product) Term() time.Duration {
	switch p.Class {
	case ClassSubscriptionMonthly:
		return MonthlyTerm
	case ClassSubscriptionYearly:
		return YearlyTerm
	default:
		return 0
	}
}
