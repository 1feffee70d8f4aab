package domain

// View Types
const (
	ViewTypeComparison = "comparison"
	ViewTypeDirect     = "direct"
	ViewTypeSearch     = "search"
	ViewTypeCategory   = "category"
)

// Device Types
const (
	DeviceTypeMobile  = "mobile"
	DeviceTypeTablet  = "tablet"
	DeviceTypeDesktop = "desktop"
)

// Graduation Tiers
const (
	TierStarter  = "starter"
	TierGrowth   = "growth"
	TierStandard = "standard"
)

// Vendor Statuses
const (
	VendorStatusActive    = "active"
	VendorStatusSuspended = "suspended"
	VendorStatusDisabled  = "disabled"
)

// Transaction Types
const (
	TransactionTypePurchase   = "purchase"
	TransactionTypeDeduction  = "deduction"
	TransactionTypeRefund     = "refund"
	TransactionTypeBonus      = "bonus"
	TransactionTypeAdjustment = "adjustment"
)

// Transaction Statuses
const (
	TransactionStatusPending   = "pending"
	TransactionStatusCompleted = "completed"
	TransactionStatusFailed    = "failed"
	TransactionStatusRefunded  = "refunded"
	TransactionStatusCancelled = "cancelled"
)

// Payment Methods (credit purchases)
const (
	PaymentMethodJazzCash     = "jazzcash"
	PaymentMethodEasypaisa    = "easypaisa"
	PaymentMethodBankTransfer = "bank_transfer"
	PaymentMethodCard         = "card"
)

// Charge refusal reasons. These are expected business outcomes,
// not errors; the charging path returns them instead of failing.
const (
	ChargeRefusalAlreadyCharged      = "already_charged"
	ChargeRefusalNotBillable         = "not_billable"
	ChargeRefusalDailyBudgetExceeded = "daily_budget_exceeded"
	ChargeRefusalInsufficientCredits = "insufficient_credits"
	ChargeRefusalViewNotFound        = "view_not_found"
	ChargeRefusalVendorNotFound      = "vendor_not_found"
)

// List Exports for API
var ViewTypes = []string{
	ViewTypeComparison,
	ViewTypeDirect,
	ViewTypeSearch,
	ViewTypeCategory,
}

var GraduationTiers = []string{
	TierStarter,
	TierGrowth,
	TierStandard,
}

var TransactionTypes = []string{
	TransactionTypePurchase,
	TransactionTypeDeduction,
	TransactionTypeRefund,
	TransactionTypeBonus,
	TransactionTypeAdjustment,
}

var TransactionStatuses = []string{
	TransactionStatusPending,
	TransactionStatusCompleted,
	TransactionStatusFailed,
	TransactionStatusRefunded,
	TransactionStatusCancelled,
}

var PaymentMethods = []string{
	PaymentMethodJazzCash,
	PaymentMethodEasypaisa,
	PaymentMethodBankTransfer,
	PaymentMethodCard,
}
