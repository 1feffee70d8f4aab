package domain

import (
	"context"
	"time"
)

// ViewTransaction is one immutable entry in a vendor's credit audit
// trail. balance_after must equal balance_before + credit_change and
// match the ledger at the instant the entry committed. Completed
// entries are never edited in place; a refund is a new compensating
// entry referencing the original.
type ViewTransaction struct {
	ID       string `json:"id"` // UUID
	VendorID string `json:"vendorId"`
	Type     string `json:"transactionType"` // purchase, deduction, refund, bonus, adjustment

	CreditChange        int64 `json:"creditChange"` // signed, paisa
	CreditBalanceBefore int64 `json:"creditBalanceBefore"`
	CreditBalanceAfter  int64 `json:"creditBalanceAfter"`

	Status      string `json:"status"`
	Description string `json:"description"`

	// RelatedTransactionID links a refund to the entry it compensates.
	RelatedTransactionID *string `json:"relatedTransactionId"`

	PurchaseDetails  *PurchaseDetails  `json:"purchaseDetails,omitempty"`
	DeductionDetails *DeductionDetails `json:"deductionDetails,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

type PurchaseDetails struct {
	AmountPaid    int64  `json:"amountPaid"` // paisa
	Currency      string `json:"currency"`
	CreditsAdded  int64  `json:"creditsAdded"`
	PaymentMethod string `json:"paymentMethod"`
	InvoiceNumber string `json:"invoiceNumber"`
}

type DeductionDetails struct {
	SourceViewID    string `json:"sourceViewId"`
	ProductID       string `json:"productId"`
	CreditsDeducted int64  `json:"creditsDeducted"`
	Reason          string `json:"reason"`
}

// NewDeduction builds a completed deduction entry. balanceAfter is
// computed from the passed-in before/change pair, never re-read from
// the ledger, so the log cannot disagree with itself.
func NewDeduction(vendorID string, balanceBefore, charge int64, detail DeductionDetails) *ViewTransaction {
	return &ViewTransaction{
		VendorID:            vendorID,
		Type:                TransactionTypeDeduction,
		CreditChange:        -charge,
		CreditBalanceBefore: balanceBefore,
		CreditBalanceAfter:  balanceBefore - charge,
		Status:              TransactionStatusCompleted,
		Description:         "CPV charge for qualified view",
		DeductionDetails:    &detail,
	}
}

// NewPurchase builds a completed credit-purchase entry.
func NewPurchase(vendorID string, balanceBefore, credits int64, detail PurchaseDetails) *ViewTransaction {
	return &ViewTransaction{
		VendorID:            vendorID,
		Type:                TransactionTypePurchase,
		CreditChange:        credits,
		CreditBalanceBefore: balanceBefore,
		CreditBalanceAfter:  balanceBefore + credits,
		Status:              TransactionStatusCompleted,
		Description:         "Credit purchase " + detail.InvoiceNumber,
		PurchaseDetails:     &detail,
	}
}

// NewBonus builds a completed bonus grant entry.
func NewBonus(vendorID string, balanceBefore, credits int64, description string) *ViewTransaction {
	return &ViewTransaction{
		VendorID:            vendorID,
		Type:                TransactionTypeBonus,
		CreditChange:        credits,
		CreditBalanceBefore: balanceBefore,
		CreditBalanceAfter:  balanceBefore + credits,
		Status:              TransactionStatusCompleted,
		Description:         description,
	}
}

type TransactionFilter struct {
	Page  int
	Limit int
	Type  string
}

type TransactionRepository interface {
	// Create appends an entry; the log is append-only.
	Create(ctx context.Context, tx *ViewTransaction) error
	GetByID(ctx context.Context, id string) (*ViewTransaction, error)
	GetByVendorID(ctx context.Context, vendorID string, filter TransactionFilter) ([]ViewTransaction, int64, error)
	// GetByVendorAndRange returns completed entries in [from, to) in
	// chronological order; used for statements and rollups.
	GetByVendorAndRange(ctx context.Context, vendorID string, from, to time.Time) ([]ViewTransaction, error)
	// MarkRefunded transitions completed -> refunded. The entry body
	// is never edited; compensation lives in the new refund entry.
	MarkRefunded(ctx context.Context, id string) (bool, error)
}
