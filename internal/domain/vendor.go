package domain

import (
	"context"
	"time"
)

// Vendor carries the billing-relevant subset of a vendor account:
// the prepaid credit balance, graduation tier, and daily budget state.
// Balances are mutated only through the repository's debit/credit
// operations, never by direct field writes.
type Vendor struct {
	ID           string `json:"id"` // UUID
	BusinessName string `json:"businessName"`
	Email        string `json:"email"`
	Status       string `json:"status"` // active, suspended, disabled (soft-disable only)

	// Ledger
	ViewCredits           int64 `json:"viewCredits"` // paisa, never negative
	TotalCreditsPurchased int64 `json:"totalCreditsPurchased"`
	TotalCreditsUsed      int64 `json:"totalCreditsUsed"`
	TotalSpent            int64 `json:"totalSpent"` // real money paid for credits

	// Graduation tier
	GraduationTier string    `json:"graduationTier"` // starter, growth, standard
	TierStartDate  time.Time `json:"tierStartDate"`

	// Bidding & daily budget
	DefaultBidAmount  int64      `json:"defaultBidAmount"`
	MaxDailyBudget    *int64     `json:"maxDailyBudget"` // nil = uncapped
	CurrentDailySpend int64      `json:"currentDailySpend"`
	LastDailyResetAt  *time.Time `json:"lastDailyResetAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// thirtyDayMonth is the fixed tier-graduation window. The schedule is
// deliberately 30-day arithmetic, not calendar months.
const thirtyDayMonth = 30 * 24 * time.Hour

// TierFor returns the graduation tier a vendor should be on at `now`,
// given when the current tier schedule started. Pure and idempotent;
// invoked lazily on each charge rather than by a scheduler.
func TierFor(tierStart, now time.Time) string {
	months := now.Sub(tierStart) / thirtyDayMonth
	switch {
	case months >= 6:
		return TierStandard
	case months >= 3:
		return TierGrowth
	default:
		return TierStarter
	}
}

// NeedsDailyReset reports whether the vendor's daily spend counter
// belongs to a previous calendar day (UTC) and must be zeroed before
// the next charge is applied.
func (v *Vendor) NeedsDailyReset(now time.Time) bool {
	if v.LastDailyResetAt == nil {
		return true
	}
	last := v.LastDailyResetAt.UTC()
	y1, m1, d1 := last.Date()
	y2, m2, d2 := now.UTC().Date()
	return y1 != y2 || m1 != m2 || d1 != d2
}

// RemainingDailyBudget returns how much the vendor may still spend
// today, or a negative value meaning "uncapped".
func (v *Vendor) RemainingDailyBudget() int64 {
	if v.MaxDailyBudget == nil {
		return -1
	}
	return *v.MaxDailyBudget - v.CurrentDailySpend
}

type VendorFilter struct {
	Page   int
	Limit  int
	Status string
	Tier   string
	Search string
}

type VendorRepository interface {
	Create(ctx context.Context, vendor *Vendor) error
	GetByID(ctx context.Context, id string) (*Vendor, error)
	// GetByIDForUpdate loads the vendor row under a row lock. Only
	// meaningful inside a TransactionManager.Do block.
	GetByIDForUpdate(ctx context.Context, id string) (*Vendor, error)
	GetAll(ctx context.Context, filter VendorFilter) ([]Vendor, int64, error)

	// Debit atomically subtracts amount from view_credits and adds it
	// to total_credits_used and current_daily_spend. Returns false
	// without mutating when the balance is short.
	Debit(ctx context.Context, id string, amount int64) (bool, error)
	// Credit adds credits and bumps the purchased/spent counters.
	Credit(ctx context.Context, id string, credits, cost int64) error
	// ApplyAdjustment moves the balance by a signed delta, refusing to
	// go negative. Returns false when the delta would underflow.
	ApplyAdjustment(ctx context.Context, id string, delta int64) (bool, error)

	ResetDailySpend(ctx context.Context, id string, at time.Time) error
	UpdateTier(ctx context.Context, id, tier string, startedAt time.Time) error
	UpdateBidSettings(ctx context.Context, id string, defaultBid int64, maxDailyBudget *int64) error
	UpdateStatus(ctx context.Context, id, status string) error
}
