package usecase

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"whatprice-backend/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type billingFixture struct {
	vendorRepo *fakeVendorRepo
	viewRepo   *fakeViewRepo
	txRepo     *fakeTransactionRepo
	uploader   *fakeUploader
	uc         *BillingUsecase
}

func newBillingFixture(t *testing.T) *billingFixture {
	t.Helper()
	f := &billingFixture{
		vendorRepo: newFakeVendorRepo(),
		viewRepo:   newFakeViewRepo(),
		txRepo:     newFakeTransactionRepo(),
		uploader:   newFakeUploader(),
	}
	f.uc = NewBillingUsecase(f.vendorRepo, f.viewRepo, f.txRepo, &fakeTxManager{}, nopCache{}, f.uploader)
	return f
}

func (f *billingFixture) seedVendor(t *testing.T, mutate func(*domain.Vendor)) *domain.Vendor {
	t.Helper()
	now := time.Now()
	v := &domain.Vendor{
		ID:               "vendor-1",
		BusinessName:     "Khan Electronics",
		Status:           domain.VendorStatusActive,
		ViewCredits:      10_000, // Rs 100
		GraduationTier:   domain.TierStarter,
		TierStartDate:    now,
		LastDailyResetAt: &now,
	}
	if mutate != nil {
		mutate(v)
	}
	require.NoError(t, f.vendorRepo.Create(context.Background(), v))
	return v
}

func (f *billingFixture) seedBillableView(t *testing.T, id string) *domain.ProductView {
	t.Helper()
	v := &domain.ProductView{
		ID:              id,
		ProductID:       "product-1",
		VendorID:        "vendor-1",
		SessionID:       "session-1",
		ViewType:        domain.ViewTypeComparison,
		ViewDuration:    5.2,
		IsQualifiedView: true,
	}
	require.NoError(t, f.viewRepo.Create(context.Background(), v))
	return v
}

func TestChargeQualifiedView(t *testing.T) {
	ctx := context.Background()

	t.Run("charges starter rate and writes the deduction entry", func(t *testing.T) {
		f := newBillingFixture(t)
		f.seedVendor(t, nil)
		f.seedBillableView(t, "view-1")

		outcome, err := f.uc.ChargeQualifiedView(ctx, "view-1")
		require.NoError(t, err)
		assert.True(t, outcome.Charged)
		assert.Equal(t, int64(10), outcome.Amount)

		vendor, err := f.vendorRepo.GetByID(ctx, "vendor-1")
		require.NoError(t, err)
		assert.Equal(t, int64(10_000-10), vendor.ViewCredits)
		assert.Equal(t, int64(10), vendor.TotalCreditsUsed)
		assert.Equal(t, int64(10), vendor.CurrentDailySpend)

		view, err := f.viewRepo.GetByID(ctx, "view-1")
		require.NoError(t, err)
		assert.True(t, view.CPVCharged)
		assert.Equal(t, int64(10), view.CPVAmount)

		entries := f.txRepo.byVendor("vendor-1")
		require.Len(t, entries, 1)
		entry := entries[0]
		assert.Equal(t, domain.TransactionTypeDeduction, entry.Type)
		assert.Equal(t, int64(-10), entry.CreditChange)
		assert.Equal(t, int64(10_000), entry.CreditBalanceBefore)
		assert.Equal(t, int64(9_990), entry.CreditBalanceAfter)
		require.NotNil(t, entry.DeductionDetails)
		assert.Equal(t, "view-1", entry.DeductionDetails.SourceViewID)
	})

	t.Run("second charge for the same view is refused", func(t *testing.T) {
		f := newBillingFixture(t)
		f.seedVendor(t, nil)
		f.seedBillableView(t, "view-1")

		first, err := f.uc.ChargeQualifiedView(ctx, "view-1")
		require.NoError(t, err)
		require.True(t, first.Charged)

		second, err := f.uc.ChargeQualifiedView(ctx, "view-1")
		require.NoError(t, err)
		assert.False(t, second.Charged)
		assert.Equal(t, domain.ChargeRefusalAlreadyCharged, second.Reason)

		vendor, err := f.vendorRepo.GetByID(ctx, "vendor-1")
		require.NoError(t, err)
		assert.Equal(t, int64(9_990), vendor.ViewCredits, "balance debited exactly once")
		assert.Len(t, f.txRepo.byVendor("vendor-1"), 1)
	})

	t.Run("duplicate, bot and unqualified views are never billed", func(t *testing.T) {
		f := newBillingFixture(t)
		f.seedVendor(t, nil)

		cases := map[string]func(*domain.ProductView){
			"view-dup":         func(v *domain.ProductView) { v.IsDuplicate = true },
			"view-bot":         func(v *domain.ProductView) { v.IsBot = true },
			"view-unqualified": func(v *domain.ProductView) { v.IsQualifiedView = false },
		}
		for id, mutate := range cases {
			view := f.seedBillableView(t, id)
			mutate(view)
			require.NoError(t, f.viewRepo.Create(ctx, view)) // overwrite with flags

			outcome, err := f.uc.ChargeQualifiedView(ctx, id)
			require.NoError(t, err)
			assert.False(t, outcome.Charged, id)
			assert.Equal(t, domain.ChargeRefusalNotBillable, outcome.Reason, id)
		}

		vendor, err := f.vendorRepo.GetByID(ctx, "vendor-1")
		require.NoError(t, err)
		assert.Equal(t, int64(10_000), vendor.ViewCredits)
		assert.Empty(t, f.txRepo.byVendor("vendor-1"))
	})

	t.Run("missing view refuses instead of failing", func(t *testing.T) {
		f := newBillingFixture(t)
		f.seedVendor(t, nil)

		outcome, err := f.uc.ChargeQualifiedView(ctx, "no-such-view")
		require.NoError(t, err)
		assert.False(t, outcome.Charged)
		assert.Equal(t, domain.ChargeRefusalViewNotFound, outcome.Reason)
	})

	t.Run("suspended vendor is not billed", func(t *testing.T) {
		f := newBillingFixture(t)
		f.seedVendor(t, func(v *domain.Vendor) { v.Status = domain.VendorStatusSuspended })
		f.seedBillableView(t, "view-1")

		outcome, err := f.uc.ChargeQualifiedView(ctx, "view-1")
		require.NoError(t, err)
		assert.False(t, outcome.Charged)
		assert.Equal(t, domain.ChargeRefusalNotBillable, outcome.Reason)
	})

	t.Run("tier rates", func(t *testing.T) {
		for tier, want := range map[string]int64{
			domain.TierStarter:  10,
			domain.TierGrowth:   20,
			domain.TierStandard: 30,
		} {
			f := newBillingFixture(t)
			f.seedVendor(t, func(v *domain.Vendor) { v.GraduationTier = tier })
			f.seedBillableView(t, "view-1")

			outcome, err := f.uc.ChargeQualifiedView(ctx, "view-1")
			require.NoError(t, err)
			require.True(t, outcome.Charged, tier)
			assert.Equal(t, want, outcome.Amount, tier)
		}
	})

	t.Run("tier graduates lazily on the 30-day schedule", func(t *testing.T) {
		f := newBillingFixture(t)
		now := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
		f.uc.now = func() time.Time { return now }
		f.seedVendor(t, func(v *domain.Vendor) {
			v.GraduationTier = domain.TierStarter
			v.TierStartDate = now.Add(-100 * 24 * time.Hour) // past 90 days
			v.LastDailyResetAt = &now
		})
		f.seedBillableView(t, "view-1")

		outcome, err := f.uc.ChargeQualifiedView(ctx, "view-1")
		require.NoError(t, err)
		require.True(t, outcome.Charged)
		assert.Equal(t, int64(20), outcome.Amount, "billed at the graduated rate")

		vendor, err := f.vendorRepo.GetByID(ctx, "vendor-1")
		require.NoError(t, err)
		assert.Equal(t, domain.TierGrowth, vendor.GraduationTier)
		assert.Equal(t, now.Add(-100*24*time.Hour), vendor.TierStartDate, "anchor date is preserved")
	})

	t.Run("daily budget refusal leaves balance and view untouched", func(t *testing.T) {
		f := newBillingFixture(t)
		budget := int64(500)
		f.seedVendor(t, func(v *domain.Vendor) {
			v.MaxDailyBudget = &budget
			v.CurrentDailySpend = 495
		})
		f.seedBillableView(t, "view-1")

		outcome, err := f.uc.ChargeQualifiedView(ctx, "view-1")
		require.NoError(t, err)
		assert.False(t, outcome.Charged)
		assert.Equal(t, domain.ChargeRefusalDailyBudgetExceeded, outcome.Reason)

		vendor, err := f.vendorRepo.GetByID(ctx, "vendor-1")
		require.NoError(t, err)
		assert.Equal(t, int64(10_000), vendor.ViewCredits)
		assert.Equal(t, int64(495), vendor.CurrentDailySpend)

		view, err := f.viewRepo.GetByID(ctx, "view-1")
		require.NoError(t, err)
		assert.False(t, view.CPVCharged)
		assert.True(t, view.IsQualifiedView, "view stays qualified for analytics")
	})

	t.Run("spend resets on the next UTC day before the budget check", func(t *testing.T) {
		f := newBillingFixture(t)
		now := time.Date(2026, 8, 29, 0, 10, 0, 0, time.UTC)
		yesterday := now.Add(-2 * time.Hour)
		f.uc.now = func() time.Time { return now }
		budget := int64(500)
		f.seedVendor(t, func(v *domain.Vendor) {
			v.MaxDailyBudget = &budget
			v.CurrentDailySpend = 495
			v.LastDailyResetAt = &yesterday
			v.TierStartDate = now
		})
		f.seedBillableView(t, "view-1")

		outcome, err := f.uc.ChargeQualifiedView(ctx, "view-1")
		require.NoError(t, err)
		require.True(t, outcome.Charged)

		vendor, err := f.vendorRepo.GetByID(ctx, "vendor-1")
		require.NoError(t, err)
		assert.Equal(t, int64(10), vendor.CurrentDailySpend, "spend counts from zero after the reset")
	})

	t.Run("insufficient credits refusal", func(t *testing.T) {
		f := newBillingFixture(t)
		f.seedVendor(t, func(v *domain.Vendor) { v.ViewCredits = 5 })
		f.seedBillableView(t, "view-1")

		outcome, err := f.uc.ChargeQualifiedView(ctx, "view-1")
		require.NoError(t, err)
		assert.False(t, outcome.Charged)
		assert.Equal(t, domain.ChargeRefusalInsufficientCredits, outcome.Reason)

		vendor, err := f.vendorRepo.GetByID(ctx, "vendor-1")
		require.NoError(t, err)
		assert.Equal(t, int64(5), vendor.ViewCredits)
	})

	t.Run("a one-rupee balance pays for exactly ten starter views", func(t *testing.T) {
		f := newBillingFixture(t)
		f.seedVendor(t, func(v *domain.Vendor) { v.ViewCredits = 100 })

		for i := 0; i < 10; i++ {
			id := "view-" + string(rune('a'+i))
			f.seedBillableView(t, id)
			outcome, err := f.uc.ChargeQualifiedView(ctx, id)
			require.NoError(t, err)
			require.True(t, outcome.Charged, "charge %d", i+1)
		}

		vendor, err := f.vendorRepo.GetByID(ctx, "vendor-1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), vendor.ViewCredits, "no residue")

		f.seedBillableView(t, "view-eleventh")
		outcome, err := f.uc.ChargeQualifiedView(ctx, "view-eleventh")
		require.NoError(t, err)
		assert.False(t, outcome.Charged)
		assert.Equal(t, domain.ChargeRefusalInsufficientCredits, outcome.Reason)

		// The log chains: each entry starts where the previous ended.
		entries := f.txRepo.byVendor("vendor-1")
		require.Len(t, entries, 10)
		for i, e := range entries {
			assert.Equal(t, e.CreditBalanceBefore+e.CreditChange, e.CreditBalanceAfter)
			if i > 0 {
				assert.Equal(t, entries[i-1].CreditBalanceAfter, e.CreditBalanceBefore)
			}
		}
	})

	t.Run("concurrent charges never drive the balance negative", func(t *testing.T) {
		f := newBillingFixture(t)
		f.seedVendor(t, func(v *domain.Vendor) { v.ViewCredits = 50 }) // room for 5

		const attempts = 20
		ids := make([]string, attempts)
		for i := range ids {
			ids[i] = "view-" + string(rune('a'+i))
			f.seedBillableView(t, ids[i])
		}

		var wg sync.WaitGroup
		for _, id := range ids {
			wg.Add(1)
			go func(viewID string) {
				defer wg.Done()
				_, err := f.uc.ChargeQualifiedView(ctx, viewID)
				assert.NoError(t, err)
			}(id)
		}
		wg.Wait()

		vendor, err := f.vendorRepo.GetByID(ctx, "vendor-1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), vendor.ViewCredits)
		assert.Len(t, f.txRepo.byVendor("vendor-1"), 5, "exactly five views were billed")
	})
}

func TestPurchaseCredits(t *testing.T) {
	ctx := context.Background()

	t.Run("tops up the balance and bumps the purchase counters", func(t *testing.T) {
		f := newBillingFixture(t)
		f.seedVendor(t, nil)

		entry, err := f.uc.PurchaseCredits(ctx, "vendor-1", PurchaseInput{
			AmountPaid:    50_000,
			CreditsAdded:  50_000,
			PaymentMethod: domain.PaymentMethodJazzCash,
		})
		require.NoError(t, err)

		vendor, err := f.vendorRepo.GetByID(ctx, "vendor-1")
		require.NoError(t, err)
		assert.Equal(t, int64(60_000), vendor.ViewCredits)
		assert.Equal(t, int64(50_000), vendor.TotalCreditsPurchased)
		assert.Equal(t, int64(50_000), vendor.TotalSpent)

		assert.Equal(t, domain.TransactionTypePurchase, entry.Type)
		assert.Equal(t, int64(50_000), entry.CreditChange)
		assert.Equal(t, int64(10_000), entry.CreditBalanceBefore)
		assert.Equal(t, int64(60_000), entry.CreditBalanceAfter)
		require.NotNil(t, entry.PurchaseDetails)
		assert.Equal(t, "PKR", entry.PurchaseDetails.Currency)
		assert.True(t, strings.HasPrefix(entry.PurchaseDetails.InvoiceNumber, "WP-"), "got %q", entry.PurchaseDetails.InvoiceNumber)
	})

	t.Run("rejects non-positive amounts and unknown payment methods", func(t *testing.T) {
		f := newBillingFixture(t)
		f.seedVendor(t, nil)

		_, err := f.uc.PurchaseCredits(ctx, "vendor-1", PurchaseInput{AmountPaid: 100, CreditsAdded: 0, PaymentMethod: domain.PaymentMethodCard})
		assert.ErrorIs(t, err, domain.ErrInvalidAmount)

		_, err = f.uc.PurchaseCredits(ctx, "vendor-1", PurchaseInput{AmountPaid: 100, CreditsAdded: 100, PaymentMethod: "hawala"})
		assert.Error(t, err)
	})
}

func TestGrantBonusAndAdjust(t *testing.T) {
	ctx := context.Background()

	t.Run("bonus credits spend like purchased ones but skip the counters", func(t *testing.T) {
		f := newBillingFixture(t)
		f.seedVendor(t, nil)

		entry, err := f.uc.GrantBonus(ctx, "vendor-1", 2_000, "launch promo")
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionTypeBonus, entry.Type)

		vendor, err := f.vendorRepo.GetByID(ctx, "vendor-1")
		require.NoError(t, err)
		assert.Equal(t, int64(12_000), vendor.ViewCredits)
		assert.Equal(t, int64(0), vendor.TotalCreditsPurchased)
		assert.Equal(t, int64(0), vendor.TotalSpent)
	})

	t.Run("adjustment cannot underflow the balance", func(t *testing.T) {
		f := newBillingFixture(t)
		f.seedVendor(t, func(v *domain.Vendor) { v.ViewCredits = 100 })

		_, err := f.uc.Adjust(ctx, "vendor-1", -150, "billing dispute")
		assert.ErrorIs(t, err, domain.ErrBalanceWouldGoNeg)

		entry, err := f.uc.Adjust(ctx, "vendor-1", -100, "billing dispute")
		require.NoError(t, err)
		assert.Equal(t, int64(0), entry.CreditBalanceAfter)

		vendor, err := f.vendorRepo.GetByID(ctx, "vendor-1")
		require.NoError(t, err)
		assert.Equal(t, int64(0), vendor.ViewCredits)
	})
}

func TestRefundTransaction(t *testing.T) {
	ctx := context.Background()

	t.Run("refunding a deduction restores the balance via a compensating entry", func(t *testing.T) {
		f := newBillingFixture(t)
		f.seedVendor(t, nil)
		f.seedBillableView(t, "view-1")

		outcome, err := f.uc.ChargeQualifiedView(ctx, "view-1")
		require.NoError(t, err)
		require.True(t, outcome.Charged)
		original := f.txRepo.byVendor("vendor-1")[0]

		refund, err := f.uc.RefundTransaction(ctx, original.ID, "disputed view")
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionTypeRefund, refund.Type)
		assert.Equal(t, int64(10), refund.CreditChange)
		require.NotNil(t, refund.RelatedTransactionID)
		assert.Equal(t, original.ID, *refund.RelatedTransactionID)

		vendor, err := f.vendorRepo.GetByID(ctx, "vendor-1")
		require.NoError(t, err)
		assert.Equal(t, int64(10_000), vendor.ViewCredits)

		updated, err := f.txRepo.GetByID(ctx, original.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.TransactionStatusRefunded, updated.Status)
		assert.Equal(t, original.CreditChange, updated.CreditChange, "original entry body untouched")
	})

	t.Run("a transaction refunds at most once", func(t *testing.T) {
		f := newBillingFixture(t)
		f.seedVendor(t, nil)
		f.seedBillableView(t, "view-1")

		_, err := f.uc.ChargeQualifiedView(ctx, "view-1")
		require.NoError(t, err)
		original := f.txRepo.byVendor("vendor-1")[0]

		_, err = f.uc.RefundTransaction(ctx, original.ID, "")
		require.NoError(t, err)

		_, err = f.uc.RefundTransaction(ctx, original.ID, "")
		assert.ErrorIs(t, err, domain.ErrAlreadyRefunded)
	})

	t.Run("bonus and adjustment entries are not refundable", func(t *testing.T) {
		f := newBillingFixture(t)
		f.seedVendor(t, nil)

		bonus, err := f.uc.GrantBonus(ctx, "vendor-1", 500, "")
		require.NoError(t, err)

		_, err = f.uc.RefundTransaction(ctx, bonus.ID, "")
		assert.ErrorIs(t, err, domain.ErrNotRefundable)
	})

	t.Run("refunding a purchase cannot underflow an already-spent balance", func(t *testing.T) {
		f := newBillingFixture(t)
		f.seedVendor(t, func(v *domain.Vendor) { v.ViewCredits = 0 })

		purchase, err := f.uc.PurchaseCredits(ctx, "vendor-1", PurchaseInput{
			AmountPaid:    100,
			CreditsAdded:  100,
			PaymentMethod: domain.PaymentMethodEasypaisa,
		})
		require.NoError(t, err)

		// Burn the purchased credits.
		for i := 0; i < 10; i++ {
			id := "view-" + string(rune('a'+i))
			f.seedBillableView(t, id)
			outcome, err := f.uc.ChargeQualifiedView(ctx, id)
			require.NoError(t, err)
			require.True(t, outcome.Charged)
		}

		_, err = f.uc.RefundTransaction(ctx, purchase.ID, "chargeback")
		assert.ErrorIs(t, err, domain.ErrBalanceWouldGoNeg)
	})
}

func TestUpdateBidSettings(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	f.seedVendor(t, nil)

	budget := int64(5_000)
	require.NoError(t, f.uc.UpdateBidSettings(ctx, "vendor-1", 15, &budget))

	vendor, err := f.vendorRepo.GetByID(ctx, "vendor-1")
	require.NoError(t, err)
	assert.Equal(t, int64(15), vendor.DefaultBidAmount)
	require.NotNil(t, vendor.MaxDailyBudget)
	assert.Equal(t, int64(5_000), *vendor.MaxDailyBudget)

	zero := int64(0)
	assert.ErrorIs(t, f.uc.UpdateBidSettings(ctx, "vendor-1", 15, &zero), domain.ErrInvalidAmount)
	assert.ErrorIs(t, f.uc.UpdateBidSettings(ctx, "vendor-1", -1, nil), domain.ErrInvalidAmount)
}

func TestExportStatement(t *testing.T) {
	ctx := context.Background()
	f := newBillingFixture(t)
	f.seedVendor(t, nil)
	f.seedBillableView(t, "view-1")

	_, err := f.uc.ChargeQualifiedView(ctx, "view-1")
	require.NoError(t, err)

	now := time.Now().UTC()
	url, err := f.uc.ExportStatement(ctx, "vendor-1", now.Year(), now.Month())
	require.NoError(t, err)
	assert.Contains(t, url, "vendor-1")

	var body string
	for _, data := range f.uploader.uploads {
		body = string(data)
	}
	require.NotEmpty(t, body)
	lines := strings.Split(strings.TrimSpace(body), "\n")
	require.Len(t, lines, 2, "header plus one deduction")
	assert.Contains(t, lines[0], "balance_after")
	assert.Contains(t, lines[1], domain.TransactionTypeDeduction)
	assert.Contains(t, lines[1], "-0.10")
}
