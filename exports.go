package entitle

import (
	"github.com/xraph/entitle/access"
	"github.com/xraph/entitle/entitlement"
	"github.com/xraph/entitle/id"
	"github.com/xraph/entitle/product"
	"github.com/xraph/entitle/purchase"
	"github.com/xraph/entitle/subscription"
	"github.com/xraph/entitle/types"
)

// Re-export common types for convenience so users don't have to import
// the component packages.

// ID is the primary identifier type for all Entitle entities.
type ID = id.ID

// Money is re-exported from types package.
type Money = types.Money

type (
	Product       = product.Product
	Platform      = product.Platform
	Record        = entitlement.Record
	ConsumeResult = entitlement.ConsumeResult
	Subscription  = subscription.Record
	Transaction   = purchase.Transaction
	Decision      = access.Decision
	Snapshot      = access.Snapshot
	Offer         = access.Offer
	HelpSection   = access.HelpSection
)

// Social platforms.
const (
	PlatformFacebook = product.PlatformFacebook
	PlatformTwitter  = product.PlatformTwitter
	PlatformWhatsApp = product.PlatformWhatsApp
	PlatformSMS      = product.PlatformSMS
)

// Re-export Money constructors
var (
	USD = types.USD
	EUR = types.EUR
)
