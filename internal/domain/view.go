package domain

import (
	"context"
	"time"
)

// Duplicate window: a second view of the same product from the same
// session within this window is stored but flagged and never billed.
const DuplicateWindow = 60 * time.Minute

// QualifyingDuration is the sole qualification threshold.
const QualifyingDuration = 3.0 // seconds

// ViewRetention is how long raw view rows are kept before the purge
// job removes them. Daily rollups survive in vendor_metrics.
const ViewRetention = 90 * 24 * time.Hour

// ProductView is a single page-view event for a vendor listing,
// carrying fraud flags and the billing outcome.
type ProductView struct {
	ID              string  `json:"id"` // UUID
	ProductID       string  `json:"productId"`
	VendorID        string  `json:"vendorId"`
	MasterProductID *string `json:"masterProductId"` // links a comparative listing to its catalog entry
	SessionID       string  `json:"sessionId"`
	UserID          *string `json:"userId"`
	ViewType        string  `json:"viewType"` // comparison, direct, search, category

	// Engagement, set by the qualification callback
	ViewDuration    float64 `json:"viewDuration"` // seconds
	IsQualifiedView bool    `json:"isQualifiedView"`
	ScrollDepth     *int    `json:"scrollDepth"`
	ClickedContact  bool    `json:"clickedContact"`

	// Billing outcome, set at most once by the charging service
	CPVCharged      bool  `json:"cpvCharged"`
	CPVAmount       int64 `json:"cpvAmount"` // paisa
	VendorBidAmount int64 `json:"vendorBidAmount"`

	// Fraud flags, computed at creation and immutable after
	IsDuplicate bool `json:"isDuplicate"`
	IsBot       bool `json:"isBot"`

	DeviceType string    `json:"deviceType"` // mobile, tablet, desktop
	UserAgent  string    `json:"-"`
	IPAddress  string    `json:"-"`
	ViewedAt   time.Time `json:"viewedAt"`
}

// Billable reports whether this view may be charged at all.
// Qualification alone is not sufficient: duplicate and bot views are
// recorded for traffic analytics but never billed.
func (v *ProductView) Billable() bool {
	return v.IsQualifiedView && !v.IsDuplicate && !v.IsBot
}

type RecordViewInput struct {
	ProductID       string
	SessionID       string
	ViewType        string
	MasterProductID *string
	UserID          *string
	UserAgent       string
	IPAddress       string
}

type ViewRepository interface {
	Create(ctx context.Context, view *ProductView) error
	GetByID(ctx context.Context, id string) (*ProductView, error)
	// GetByIDForUpdate loads the view row under a row lock inside a
	// TransactionManager.Do block.
	GetByIDForUpdate(ctx context.Context, id string) (*ProductView, error)

	// HasRecentView reports whether the (sessionID, productID) pair
	// already has a view newer than `since`.
	HasRecentView(ctx context.Context, sessionID, productID string, since time.Time) (bool, error)

	UpdateQualification(ctx context.Context, id string, duration float64, scrollDepth *int, qualified bool) (bool, error)
	// MarkContactClicked flips clicked_contact once; returns false if
	// the view does not exist.
	MarkContactClicked(ctx context.Context, id string) (bool, error)
	// MarkCharged records the billing outcome. The WHERE cpv_charged =
	// false guard makes a second attempt a no-op; returns false then.
	MarkCharged(ctx context.Context, id string, amount, bidAmount int64) (bool, error)

	// DeleteOlderThan purges expired raw views. Rollups must already
	// cover the deleted range.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}
