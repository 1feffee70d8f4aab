package usecase

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"time"

	"whatprice-backend/internal/domain"
	"whatprice-backend/pkg/cache"
	"whatprice-backend/pkg/logger"

	"github.com/google/uuid"
)

// errChargeRefused aborts the charge transaction after a refusal has
// been decided, rolling back any partial writes. It never leaves the
// usecase.
var errChargeRefused = errors.New("charge refused")

// StatementUploader stores a generated statement and returns a public
// URL. Implemented by pkg/storage.R2Storage.
type StatementUploader interface {
	UploadStatement(ctx context.Context, vendorID, filename string, data []byte) (string, error)
}

// BillingUsecase is the CPV charging service: it owns every mutation
// of a vendor's credit balance and writes the matching transaction log
// entry inside the same persistence transaction.
type BillingUsecase struct {
	vendorRepo domain.VendorRepository
	viewRepo   domain.ViewRepository
	txRepo     domain.TransactionRepository
	txManager  domain.TransactionManager
	cache      cache.CacheService
	uploader   StatementUploader
	now        func() time.Time
}

func NewBillingUsecase(
	vendorRepo domain.VendorRepository,
	viewRepo domain.ViewRepository,
	txRepo domain.TransactionRepository,
	txManager domain.TransactionManager,
	memCache cache.CacheService,
	uploader StatementUploader,
) *BillingUsecase {
	return &BillingUsecase{
		vendorRepo: vendorRepo,
		viewRepo:   viewRepo,
		txRepo:     txRepo,
		txManager:  txManager,
		cache:      memCache,
		uploader:   uploader,
		now:        time.Now,
	}
}

func vendorCacheKey(id string) string { return "vendor:" + id }

// ChargeQualifiedView attempts to bill one qualified view. Refusals
// (already charged, not billable, budget, balance) are expected
// outcomes, returned in the ChargeOutcome with a nil error. A non-nil
// error means a persistence failure: nothing was applied and the call
// is safe to retry thanks to the idempotency check.
func (u *BillingUsecase) ChargeQualifiedView(ctx context.Context, viewID string) (domain.ChargeOutcome, error) {
	var outcome domain.ChargeOutcome
	var chargedVendorID string

	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		view, err := u.viewRepo.GetByIDForUpdate(txCtx, viewID)
		if err != nil {
			if errors.Is(err, domain.ErrViewNotFound) {
				outcome = domain.Refused(domain.ChargeRefusalViewNotFound)
				return errChargeRefused
			}
			return err
		}

		// Idempotency: the core correctness invariant of the whole
		// billing path. A retried charge is a definitive no-op.
		if view.CPVCharged {
			outcome = domain.Refused(domain.ChargeRefusalAlreadyCharged)
			return errChargeRefused
		}

		// Qualification alone is not sufficient; duplicate and bot
		// views are never billed.
		if !view.Billable() {
			outcome = domain.Refused(domain.ChargeRefusalNotBillable)
			return errChargeRefused
		}

		vendor, err := u.vendorRepo.GetByIDForUpdate(txCtx, view.VendorID)
		if err != nil {
			if errors.Is(err, domain.ErrVendorNotFound) {
				outcome = domain.Refused(domain.ChargeRefusalVendorNotFound)
				return errChargeRefused
			}
			return err
		}

		if vendor.Status != domain.VendorStatusActive {
			outcome = domain.Refused(domain.ChargeRefusalNotBillable)
			return errChargeRefused
		}

		now := u.now()

		// Lazy once-per-day spend reset, checked on every charge.
		if vendor.NeedsDailyReset(now) {
			if err := u.vendorRepo.ResetDailySpend(txCtx, vendor.ID, now); err != nil {
				return err
			}
			vendor.CurrentDailySpend = 0
		}

		// Lazy tier graduation on the 30-day-month schedule.
		if tier := domain.TierFor(vendor.TierStartDate, now); tier != vendor.GraduationTier {
			if err := u.vendorRepo.UpdateTier(txCtx, vendor.ID, tier, vendor.TierStartDate); err != nil {
				return err
			}
			vendor.GraduationTier = tier
		}

		charge := domain.PerViewCharge(domain.CPVRatePer100(vendor.GraduationTier))

		if vendor.MaxDailyBudget != nil && vendor.CurrentDailySpend+charge > *vendor.MaxDailyBudget {
			// The view stays qualified but uncharged.
			outcome = domain.Refused(domain.ChargeRefusalDailyBudgetExceeded)
			return errChargeRefused
		}

		if vendor.ViewCredits < charge {
			outcome = domain.Refused(domain.ChargeRefusalInsufficientCredits)
			return errChargeRefused
		}

		// Atomic check-and-subtract; the row guard catches a balance
		// change the locked read could not have seen.
		debited, err := u.vendorRepo.Debit(txCtx, vendor.ID, charge)
		if err != nil {
			return err
		}
		if !debited {
			outcome = domain.Refused(domain.ChargeRefusalInsufficientCredits)
			return errChargeRefused
		}

		marked, err := u.viewRepo.MarkCharged(txCtx, view.ID, charge, vendor.DefaultBidAmount)
		if err != nil {
			return err
		}
		if !marked {
			outcome = domain.Refused(domain.ChargeRefusalAlreadyCharged)
			return errChargeRefused
		}

		// Balance-after is computed from the locked read, never
		// re-fetched, so the log always chains.
		deduction := domain.NewDeduction(vendor.ID, vendor.ViewCredits, charge, domain.DeductionDetails{
			SourceViewID:    view.ID,
			ProductID:       view.ProductID,
			CreditsDeducted: charge,
			Reason:          "qualified_view",
		})
		if err := u.txRepo.Create(txCtx, deduction); err != nil {
			return err
		}

		outcome = domain.ChargeOutcome{Charged: true, Amount: charge}
		chargedVendorID = vendor.ID
		return nil
	})

	if err != nil {
		if errors.Is(err, errChargeRefused) {
			return outcome, nil
		}
		return domain.ChargeOutcome{}, fmt.Errorf("charge transaction failed: %w", err)
	}

	if chargedVendorID != "" {
		u.cache.Delete(vendorCacheKey(chargedVendorID))
	}
	return outcome, nil
}

type PurchaseInput struct {
	AmountPaid    int64  `json:"amountPaid"` // paisa
	Currency      string `json:"currency"`
	CreditsAdded  int64  `json:"creditsAdded"`
	PaymentMethod string `json:"paymentMethod"`
}

// PurchaseCredits tops up a vendor's balance and appends the matching
// purchase entry. Counters are monotonic; amounts must be positive.
func (u *BillingUsecase) PurchaseCredits(ctx context.Context, vendorID string, input PurchaseInput) (*domain.ViewTransaction, error) {
	if input.CreditsAdded <= 0 || input.AmountPaid <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if !isValidPaymentMethod(input.PaymentMethod) {
		return nil, fmt.Errorf("unknown payment method %q", input.PaymentMethod)
	}
	currency := input.Currency
	if currency == "" {
		currency = "PKR"
	}

	var entry *domain.ViewTransaction
	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		vendor, err := u.vendorRepo.GetByIDForUpdate(txCtx, vendorID)
		if err != nil {
			return err
		}

		if err := u.vendorRepo.Credit(txCtx, vendor.ID, input.CreditsAdded, input.AmountPaid); err != nil {
			return err
		}

		entry = domain.NewPurchase(vendor.ID, vendor.ViewCredits, input.CreditsAdded, domain.PurchaseDetails{
			AmountPaid:    input.AmountPaid,
			Currency:      currency,
			CreditsAdded:  input.CreditsAdded,
			PaymentMethod: input.PaymentMethod,
			InvoiceNumber: newInvoiceNumber(u.now()),
		})
		return u.txRepo.Create(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	u.cache.Delete(vendorCacheKey(vendorID))
	return entry, nil
}

// GrantBonus credits promotional views without touching the purchase
// counters.
func (u *BillingUsecase) GrantBonus(ctx context.Context, vendorID string, credits int64, description string) (*domain.ViewTransaction, error) {
	if credits <= 0 {
		return nil, domain.ErrInvalidAmount
	}
	if description == "" {
		description = "Promotional bonus credits"
	}

	var entry *domain.ViewTransaction
	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		vendor, err := u.vendorRepo.GetByIDForUpdate(txCtx, vendorID)
		if err != nil {
			return err
		}

		ok, err := u.vendorRepo.ApplyAdjustment(txCtx, vendor.ID, credits)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrVendorNotFound
		}

		entry = domain.NewBonus(vendor.ID, vendor.ViewCredits, credits, description)
		return u.txRepo.Create(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	u.cache.Delete(vendorCacheKey(vendorID))
	return entry, nil
}

// Adjust moves a vendor's balance by a signed delta (admin
// correction). The balance may never go negative.
func (u *BillingUsecase) Adjust(ctx context.Context, vendorID string, delta int64, reason string) (*domain.ViewTransaction, error) {
	if delta == 0 {
		return nil, domain.ErrInvalidAmount
	}

	var entry *domain.ViewTransaction
	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		vendor, err := u.vendorRepo.GetByIDForUpdate(txCtx, vendorID)
		if err != nil {
			return err
		}

		ok, err := u.vendorRepo.ApplyAdjustment(txCtx, vendor.ID, delta)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrBalanceWouldGoNeg
		}

		entry = &domain.ViewTransaction{
			VendorID:            vendor.ID,
			Type:                domain.TransactionTypeAdjustment,
			CreditChange:        delta,
			CreditBalanceBefore: vendor.ViewCredits,
			CreditBalanceAfter:  vendor.ViewCredits + delta,
			Status:              domain.TransactionStatusCompleted,
			Description:         reason,
		}
		return u.txRepo.Create(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	u.cache.Delete(vendorCacheKey(vendorID))
	return entry, nil
}

// RefundTransaction reverses a completed deduction or purchase via a
// compensating refund entry referencing the original. The original is
// only status-flipped, never edited.
func (u *BillingUsecase) RefundTransaction(ctx context.Context, transactionID, reason string) (*domain.ViewTransaction, error) {
	var entry *domain.ViewTransaction
	var vendorID string

	err := u.txManager.Do(ctx, func(txCtx context.Context) error {
		original, err := u.txRepo.GetByID(txCtx, transactionID)
		if err != nil {
			return err
		}

		if original.Type != domain.TransactionTypeDeduction && original.Type != domain.TransactionTypePurchase {
			return domain.ErrNotRefundable
		}
		if original.Status != domain.TransactionStatusCompleted {
			return domain.ErrAlreadyRefunded
		}

		vendor, err := u.vendorRepo.GetByIDForUpdate(txCtx, original.VendorID)
		if err != nil {
			return err
		}
		vendorID = vendor.ID

		// Reverse the original movement. Refunding a purchase takes
		// the credits back and must not underflow the balance.
		change := -original.CreditChange
		ok, err := u.vendorRepo.ApplyAdjustment(txCtx, vendor.ID, change)
		if err != nil {
			return err
		}
		if !ok {
			return domain.ErrBalanceWouldGoNeg
		}

		marked, err := u.txRepo.MarkRefunded(txCtx, original.ID)
		if err != nil {
			return err
		}
		if !marked {
			return domain.ErrAlreadyRefunded
		}

		if reason == "" {
			reason = "Refund of transaction " + original.ID
		}

		entry = &domain.ViewTransaction{
			VendorID:             vendor.ID,
			Type:                 domain.TransactionTypeRefund,
			CreditChange:         change,
			CreditBalanceBefore:  vendor.ViewCredits,
			CreditBalanceAfter:   vendor.ViewCredits + change,
			Status:               domain.TransactionStatusCompleted,
			Description:          reason,
			RelatedTransactionID: &original.ID,
		}
		return u.txRepo.Create(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	u.cache.Delete(vendorCacheKey(vendorID))
	return entry, nil
}

// GetBalance returns the vendor's ledger view, cached briefly.
func (u *BillingUsecase) GetBalance(ctx context.Context, vendorID string) (*domain.Vendor, error) {
	if cached, hit := u.cache.Get(vendorCacheKey(vendorID)); hit {
		if vendor, ok := cached.(*domain.Vendor); ok {
			return vendor, nil
		}
	}

	vendor, err := u.vendorRepo.GetByID(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	u.cache.Set(vendorCacheKey(vendorID), vendor, 0)
	return vendor, nil
}

func (u *BillingUsecase) ListTransactions(ctx context.Context, vendorID string, filter domain.TransactionFilter) ([]domain.ViewTransaction, int64, error) {
	return u.txRepo.GetByVendorID(ctx, vendorID, filter)
}

// UpdateBidSettings changes the vendor's default bid and daily cap.
func (u *BillingUsecase) UpdateBidSettings(ctx context.Context, vendorID string, defaultBid int64, maxDailyBudget *int64) error {
	if defaultBid < 0 {
		return domain.ErrInvalidAmount
	}
	if maxDailyBudget != nil && *maxDailyBudget <= 0 {
		return domain.ErrInvalidAmount
	}

	if err := u.vendorRepo.UpdateBidSettings(ctx, vendorID, defaultBid, maxDailyBudget); err != nil {
		return err
	}

	u.cache.Delete(vendorCacheKey(vendorID))
	return nil
}

// ExportStatement renders a month of transactions as CSV and uploads
// it to object storage, returning the public URL.
func (u *BillingUsecase) ExportStatement(ctx context.Context, vendorID string, year int, month time.Month) (string, error) {
	if u.uploader == nil {
		return "", fmt.Errorf("statement storage not configured")
	}

	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 1, 0)

	txs, err := u.txRepo.GetByVendorAndRange(ctx, vendorID, from, to)
	if err != nil {
		return "", err
	}

	data, err := renderStatementCSV(txs)
	if err != nil {
		return "", err
	}

	filename := fmt.Sprintf("statement-%04d-%02d.csv", year, int(month))
	url, err := u.uploader.UploadStatement(ctx, vendorID, filename, data)
	if err != nil {
		return "", fmt.Errorf("failed to upload statement: %w", err)
	}

	logger.WithContext(ctx).Info().Str("vendor_id", vendorID).Str("file", filename).Int("entries", len(txs)).Msg("statement exported")
	return url, nil
}

func renderStatementCSV(txs []domain.ViewTransaction) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := []string{"date", "transaction_id", "type", "status", "change", "balance_before", "balance_after", "description"}
	if err := w.Write(header); err != nil {
		return nil, err
	}

	for _, t := range txs {
		row := []string{
			t.CreatedAt.UTC().Format(time.RFC3339),
			t.ID,
			t.Type,
			t.Status,
			domain.FormatPaisa(t.CreditChange),
			domain.FormatPaisa(t.CreditBalanceBefore),
			domain.FormatPaisa(t.CreditBalanceAfter),
			t.Description,
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}

	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// newInvoiceNumber produces identifiers like WP-202608-1A2B3C4D.
func newInvoiceNumber(now time.Time) string {
	frag := strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", ""))[:8]
	return fmt.Sprintf("WP-%04d%02d-%s", now.Year(), int(now.Month()), frag)
}

func isValidPaymentMethod(m string) bool {
	for _, pm := range domain.PaymentMethods {
		if pm == m {
			return true
		}
	}
	return false
}
