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

type viewRepository struct {
	db *pgxpool.Pool
}

func NewViewRepository(db *pgxpool.Pool) domain.ViewRepository {
	return &viewRepository{db: db}
}

const viewColumns = `
	id, product_id, vendor_id, master_product_id, session_id, user_id, view_type,
	view_duration, is_qualified_view, scroll_depth, clicked_contact,
	cpv_charged, cpv_amount, vendor_bid_amount,
	is_duplicate, is_bot, device_type, user_agent, ip_address, viewed_at`

func scanView(row pgx.Row) (*domain.ProductView, error) {
	var v domain.ProductView
	err := row.Scan(
		&v.ID, &v.ProductID, &v.VendorID, &v.MasterProductID, &v.SessionID, &v.UserID, &v.ViewType,
		&v.ViewDuration, &v.IsQualifiedView, &v.ScrollDepth, &v.ClickedContact,
		&v.CPVCharged, &v.CPVAmount, &v.VendorBidAmount,
		&v.IsDuplicate, &v.IsBot, &v.DeviceType, &v.UserAgent, &v.IPAddress, &v.ViewedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrViewNotFound
		}
		return nil, fmt.Errorf("failed to scan view: %w", err)
	}
	return &v, nil
}

func (r *viewRepository) Create(ctx context.Context, view *domain.ProductView) error {
	if view.ID == "" {
		view.ID = uuid.New().String()
	}
	if view.ViewedAt.IsZero() {
		view.ViewedAt = time.Now()
	}

	query := `
		INSERT INTO product_views (
			id, product_id, vendor_id, master_product_id, session_id, user_id, view_type,
			view_duration, is_qualified_view, scroll_depth, clicked_contact,
			cpv_charged, cpv_amount, vendor_bid_amount,
			is_duplicate, is_bot, device_type, user_agent, ip_address, viewed_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20)
	`

	_, err := querier(ctx, r.db).Exec(ctx, query,
		view.ID, view.ProductID, view.VendorID, view.MasterProductID, view.SessionID, view.UserID, view.ViewType,
		view.ViewDuration, view.IsQualifiedView, view.ScrollDepth, view.ClickedContact,
		view.CPVCharged, view.CPVAmount, view.VendorBidAmount,
		view.IsDuplicate, view.IsBot, view.DeviceType, view.UserAgent, view.IPAddress, view.ViewedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create view: %w", err)
	}
	return nil
}

func (r *viewRepository) GetByID(ctx context.Context, id string) (*domain.ProductView, error) {
	query := `SELECT` + viewColumns + ` FROM product_views WHERE id = $1`
	return scanView(querier(ctx, r.db).QueryRow(ctx, query, id))
}

func (r *viewRepository) GetByIDForUpdate(ctx context.Context, id string) (*domain.ProductView, error) {
	query := `SELECT` + viewColumns + ` FROM product_views WHERE id = $1 FOR UPDATE`
	return scanView(querier(ctx, r.db).QueryRow(ctx, query, id))
}

func (r *viewRepository) HasRecentView(ctx context.Context, sessionID, productID string, since time.Time) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM product_views
			WHERE session_id = $1 AND product_id = $2 AND viewed_at >= $3
		)
	`
	var exists bool
	if err := querier(ctx, r.db).QueryRow(ctx, query, sessionID, productID, since).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check recent view: %w", err)
	}
	return exists, nil
}

func (r *viewRepository) UpdateQualification(ctx context.Context, id string, duration float64, scrollDepth *int, qualified bool) (bool, error) {
	query := `
		UPDATE product_views SET
			view_duration = $1,
			scroll_depth = COALESCE($2, scroll_depth),
			is_qualified_view = $3
		WHERE id = $4
	`
	tag, err := querier(ctx, r.db).Exec(ctx, query, duration, scrollDepth, qualified, id)
	if err != nil {
		return false, fmt.Errorf("failed to update qualification: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *viewRepository) MarkContactClicked(ctx context.Context, id string) (bool, error) {
	query := `UPDATE product_views SET clicked_contact = TRUE WHERE id = $1`
	tag, err := querier(ctx, r.db).Exec(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark contact click: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// MarkCharged sets the billing outcome at most once. The cpv_charged =
// FALSE guard is the row-level idempotency backstop behind the
// usecase-level check.
func (r *viewRepository) MarkCharged(ctx context.Context, id string, amount, bidAmount int64) (bool, error) {
	query := `
		UPDATE product_views SET
			cpv_charged = TRUE,
			cpv_amount = $1,
			vendor_bid_amount = $2
		WHERE id = $3 AND cpv_charged = FALSE
	`
	tag, err := querier(ctx, r.db).Exec(ctx, query, amount, bidAmount, id)
	if err != nil {
		return false, fmt.Errorf("failed to mark view charged: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *viewRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := querier(ctx, r.db).Exec(ctx, `DELETE FROM product_views WHERE viewed_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to purge views: %w", err)
	}
	return tag.RowsAffected(), nil
}
