package pgrepo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"whatprice-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type vendorRepository struct {
	db *pgxpool.Pool
}

func NewVendorRepository(db *pgxpool.Pool) domain.VendorRepository {
	return &vendorRepository{db: db}
}

const vendorColumns = `
	id, business_name, email, status,
	view_credits, total_credits_purchased, total_credits_used, total_spent,
	graduation_tier, tier_start_date,
	default_bid_amount, max_daily_budget, current_daily_spend, last_daily_reset_at,
	created_at, updated_at`

func scanVendor(row pgx.Row) (*domain.Vendor, error) {
	var v domain.Vendor
	err := row.Scan(
		&v.ID, &v.BusinessName, &v.Email, &v.Status,
		&v.ViewCredits, &v.TotalCreditsPurchased, &v.TotalCreditsUsed, &v.TotalSpent,
		&v.GraduationTier, &v.TierStartDate,
		&v.DefaultBidAmount, &v.MaxDailyBudget, &v.CurrentDailySpend, &v.LastDailyResetAt,
		&v.CreatedAt, &v.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrVendorNotFound
		}
		return nil, fmt.Errorf("failed to scan vendor: %w", err)
	}
	return &v, nil
}

func (r *vendorRepository) Create(ctx context.Context, vendor *domain.Vendor) error {
	if vendor.ID == "" {
		vendor.ID = uuid.New().String()
	}
	now := time.Now()
	vendor.CreatedAt = now
	vendor.UpdatedAt = now
	if vendor.GraduationTier == "" {
		vendor.GraduationTier = domain.TierStarter
		vendor.TierStartDate = now
	}
	if vendor.Status == "" {
		vendor.Status = domain.VendorStatusActive
	}

	query := `
		INSERT INTO vendors (
			id, business_name, email, status,
			view_credits, total_credits_purchased, total_credits_used, total_spent,
			graduation_tier, tier_start_date,
			default_bid_amount, max_daily_budget, current_daily_spend, last_daily_reset_at,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`

	_, err := querier(ctx, r.db).Exec(ctx, query,
		vendor.ID, vendor.BusinessName, vendor.Email, vendor.Status,
		vendor.ViewCredits, vendor.TotalCreditsPurchased, vendor.TotalCreditsUsed, vendor.TotalSpent,
		vendor.GraduationTier, vendor.TierStartDate,
		vendor.DefaultBidAmount, vendor.MaxDailyBudget, vendor.CurrentDailySpend, vendor.LastDailyResetAt,
		vendor.CreatedAt, vendor.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create vendor: %w", err)
	}
	return nil
}

func (r *vendorRepository) GetByID(ctx context.Context, id string) (*domain.Vendor, error) {
	query := `SELECT` + vendorColumns + ` FROM vendors WHERE id = $1`
	return scanVendor(querier(ctx, r.db).QueryRow(ctx, query, id))
}

func (r *vendorRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.Vendor, error) {
	// FOR UPDATE serializes concurrent charges against one vendor row.
	query := `SELECT` + vendorColumns + ` FROM vendors WHERE id = $1 FOR UPDATE`
	return scanVendor(querier(ctx, r.db).QueryRow(ctx, query, id))
}

func (r *vendorRepository) GetAll(ctx context.Context, filter domain.VendorFilter) ([]domain.Vendor, int64, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}

	where := ` WHERE 1=1`
	args := []any{}
	idx := 1
	if filter.Status != "" {
		where += fmt.Sprintf(" AND status = $%d", idx)
		args = append(args, filter.Status)
		idx++
	}
	if filter.Tier != "" {
		where += fmt.Sprintf(" AND graduation_tier = $%d", idx)
		args = append(args, filter.Tier)
		idx++
	}
	if filter.Search != "" {
		where += fmt.Sprintf(" AND (business_name ILIKE $%d OR email ILIKE $%d)", idx, idx)
		args = append(args, "%"+filter.Search+"%")
		idx++
	}

	var total int64
	if err := querier(ctx, r.db).QueryRow(ctx, `SELECT COUNT(*) FROM vendors`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count vendors: %w", err)
	}

	query := `SELECT` + vendorColumns + ` FROM vendors` + where +
		fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", idx, idx+1)
	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)

	rows, err := querier(ctx, r.db).Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list vendors: %w", err)
	}
	defer rows.Close()

	var vendors []domain.Vendor
	for rows.Next() {
		v, err := scanVendor(rows)
		if err != nil {
			return nil, 0, err
		}
		vendors = append(vendors, *v)
	}
	return vendors, total, rows.Err()
}

// Debit is the atomic check-and-subtract at the heart of CPV billing.
// The WHERE view_credits >= $1 guard means two concurrent charges near
// a zero balance cannot both succeed.
func (r *vendorRepository) Debit(ctx context.Context, id string, amount int64) (bool, error) {
	query := `
		UPDATE vendors SET
			view_credits = view_credits - $1,
			total_credits_used = total_credits_used + $1,
			current_daily_spend = current_daily_spend + $1,
			updated_at = NOW()
		WHERE id = $2 AND view_credits >= $1
	`
	tag, err := querier(ctx, r.db).Exec(ctx, query, amount, id)
	if err != nil {
		return false, fmt.Errorf("failed to debit vendor: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *vendorRepository) Credit(ctx context.Context, id string, credits, cost int64) error {
	query := `
		UPDATE vendors SET
			view_credits = view_credits + $1,
			total_credits_purchased = total_credits_purchased + $1,
			total_spent = total_spent + $2,
			updated_at = NOW()
		WHERE id = $3
	`
	tag, err := querier(ctx, r.db).Exec(ctx, query, credits, cost, id)
	if err != nil {
		return fmt.Errorf("failed to credit vendor: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVendorNotFound
	}
	return nil
}

func (r *vendorRepository) ApplyAdjustment(ctx context.Context, id string, delta int64) (bool, error) {
	query := `
		UPDATE vendors SET
			view_credits = view_credits + $1,
			updated_at = NOW()
		WHERE id = $2 AND view_credits + $1 >= 0
	`
	tag, err := querier(ctx, r.db).Exec(ctx, query, delta, id)
	if err != nil {
		return false, fmt.Errorf("failed to apply adjustment: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *vendorRepository) ResetDailySpend(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE vendors SET
			current_daily_spend = 0,
			last_daily_reset_at = $1,
			updated_at = NOW()
		WHERE id = $2
	`
	if _, err := querier(ctx, r.db).Exec(ctx, query, at, id); err != nil {
		return fmt.Errorf("failed to reset daily spend: %w", err)
	}
	return nil
}

func (r *vendorRepository) UpdateTier(ctx context.Context, id, tier string, startedAt time.Time) error {
	query := `
		UPDATE vendors SET
			graduation_tier = $1,
			tier_start_date = $2,
			updated_at = NOW()
		WHERE id = $3
	`
	if _, err := querier(ctx, r.db).Exec(ctx, query, tier, startedAt, id); err != nil {
		return fmt.Errorf("failed to update tier: %w", err)
	}
	return nil
}

func (r *vendorRepository) UpdateBidSettings(ctx context.Context, id string, defaultBid int64, maxDailyBudget *int64) error {
	query := `
		UPDATE vendors SET
			default_bid_amount = $1,
			max_daily_budget = $2,
			updated_at = NOW()
		WHERE id = $3
	`
	tag, err := querier(ctx, r.db).Exec(ctx, query, defaultBid, maxDailyBudget, id)
	if err != nil {
		return fmt.Errorf("failed to update bid settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVendorNotFound
	}
	return nil
}

func (r *vendorRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE vendors SET status = $1, updated_at = NOW() WHERE id = $2`
	tag, err := querier(ctx, r.db).Exec(ctx, query, status, id)
	if err != nil {
		return fmt.Errorf("failed to update vendor status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrVendorNotFound
	}
	return nil
}
