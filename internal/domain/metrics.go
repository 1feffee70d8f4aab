package domain

import (
	"context"
	"time"
)

// VendorMetrics is a per-vendor per-day rollup of view traffic and
// spend. Written only by the aggregator, which reads committed views
// and transactions; it never mutates billing state itself.
type VendorMetrics struct {
	ID       string    `json:"id"`
	VendorID string    `json:"vendorId"`
	Date     time.Time `json:"date"` // UTC day

	TotalViews     int64 `json:"totalViews"`
	QualifiedViews int64 `json:"qualifiedViews"`
	DuplicateViews int64 `json:"duplicateViews"`
	BotViews       int64 `json:"botViews"`
	ContactClicks  int64 `json:"contactClicks"`
	ChargedViews   int64 `json:"chargedViews"`
	TotalSpend     int64 `json:"totalSpend"` // paisa

	UpdatedAt time.Time `json:"updatedAt"`
}

// CTR returns contact clicks per total view, the vendor dashboard KPI.
func (m *VendorMetrics) CTR() float64 {
	if m.TotalViews == 0 {
		return 0
	}
	return float64(m.ContactClicks) / float64(m.TotalViews)
}

// PlatformStats is the admin dashboard's cross-vendor summary over a
// date range, computed from the rollup rows.
type PlatformStats struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`

	ActiveVendors  int64 `json:"activeVendors"`
	TotalViews     int64 `json:"totalViews"`
	QualifiedViews int64 `json:"qualifiedViews"`
	DuplicateViews int64 `json:"duplicateViews"`
	BotViews       int64 `json:"botViews"`
	ContactClicks  int64 `json:"contactClicks"`
	ChargedViews   int64 `json:"chargedViews"`
	TotalRevenue   int64 `json:"totalRevenue"` // paisa charged across all vendors
}

type MetricsRepository interface {
	// Upsert replaces the rollup row for (vendorID, date).
	Upsert(ctx context.Context, m *VendorMetrics) error
	GetByVendorAndRange(ctx context.Context, vendorID string, from, to time.Time) ([]VendorMetrics, error)

	// AggregateViews computes a day's rollup numbers straight from the
	// product_views table for one vendor.
	AggregateViews(ctx context.Context, vendorID string, day time.Time) (*VendorMetrics, error)
	// VendorIDsWithViews lists vendors that had any view on the day.
	VendorIDsWithViews(ctx context.Context, day time.Time) ([]string, error)

	// PlatformTotals sums the rollups across all vendors in [from, to).
	PlatformTotals(ctx context.Context, from, to time.Time) (*PlatformStats, error)
}
