package audithook

// Action constants for audit events.
const (
	// Credit actions
	ActionCreditsGranted = "credits.granted"
	ActionCreditConsumed = "credit.consumed"
	ActionPoolRetired    = "pool.retired"

	// Access actions
	ActionAccessDenied = "access.denied"

	// Subscription actions
	ActionSubscriptionActivated = "subscription.activated"
	ActionSubscriptionCanceled  = "subscription.canceled"
	ActionSubscriptionExpired   = "subscription.expired"
	ActionSubscriptionExpiring  = "subscription.expiring"

	// Purchase actions
	ActionPurchaseFinished = "purchase.finished"
	ActionPurchaseFailed   = "purchase.failed"

	// Backup actions
	ActionPurchasesRestored = "purchases.restored"
	ActionPurchasesBackedUp = "purchases.backed_up"
)

// Resource constants for audit events.
const (
	ResourceCredit       = "credit"
	ResourceFeature      = "feature"
	ResourceSubscription = "subscription"
	ResourcePurchase     = "purchase"
	ResourceBackup       = "backup"
)

// Category constants for audit events.
const (
	CategoryCredits      = "credits"
	CategoryAccess       = "access"
	CategorySubscription = "subscription"
	CategoryPayment      = "payment"
	CategoryBackup       = "backup"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)
