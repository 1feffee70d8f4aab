package pgrepo

import (
	"context"
	"fmt"
	"time"

	"whatprice-backend/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type metricsRepository struct {
	db *pgxpool.Pool
}

func NewMetricsRepository(db *pgxpool.Pool) domain.MetricsRepository {
	return &metricsRepository{db: db}
}

func (r *metricsRepository) Upsert(ctx context.Context, m *domain.VendorMetrics) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	m.UpdatedAt = time.Now()

	query := `
		INSERT INTO vendor_metrics (
			id, vendor_id, date,
			total_views, qualified_views, duplicate_views, bot_views,
			contact_clicks, charged_views, total_spend, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (vendor_id, date) DO UPDATE SET
			total_views = EXCLUDED.total_views,
			qualified_views = EXCLUDED.qualified_views,
			duplicate_views = EXCLUDED.duplicate_views,
			bot_views = EXCLUDED.bot_views,
			contact_clicks = EXCLUDED.contact_clicks,
			charged_views = EXCLUDED.charged_views,
			total_spend = EXCLUDED.total_spend,
			updated_at = EXCLUDED.updated_at
	`

	_, err := querier(ctx, r.db).Exec(ctx, query,
		m.ID, m.VendorID, m.Date,
		m.TotalViews, m.QualifiedViews, m.DuplicateViews, m.BotViews,
		m.ContactClicks, m.ChargedViews, m.TotalSpend, m.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert metrics: %w", err)
	}
	return nil
}

func (r *metricsRepository) GetByVendorAndRange(ctx context.Context, vendorID string, from, to time.Time) ([]domain.VendorMetrics, error) {
	query := `
		SELECT id, vendor_id, date,
			total_views, qualified_views, duplicate_views, bot_views,
			contact_clicks, charged_views, total_spend, updated_at
		FROM vendor_metrics
		WHERE vendor_id = $1 AND date >= $2 AND date < $3
		ORDER BY date ASC
	`

	rows, err := querier(ctx, r.db).Query(ctx, query, vendorID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []domain.VendorMetrics
	for rows.Next() {
		var m domain.VendorMetrics
		if err := rows.Scan(
			&m.ID, &m.VendorID, &m.Date,
			&m.TotalViews, &m.QualifiedViews, &m.DuplicateViews, &m.BotViews,
			&m.ContactClicks, &m.ChargedViews, &m.TotalSpend, &m.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan metrics: %w", err)
		}
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// AggregateViews computes one vendor-day rollup straight from the raw
// view rows. Spend comes from the charged views themselves so the
// aggregator never reads, let alone writes, ledger state.
func (r *metricsRepository) AggregateViews(ctx context.Context, vendorID string, day time.Time) (*domain.VendorMetrics, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	query := `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE is_qualified_view),
			COUNT(*) FILTER (WHERE is_duplicate),
			COUNT(*) FILTER (WHERE is_bot),
			COUNT(*) FILTER (WHERE clicked_contact),
			COUNT(*) FILTER (WHERE cpv_charged),
			COALESCE(SUM(cpv_amount) FILTER (WHERE cpv_charged), 0)
		FROM product_views
		WHERE vendor_id = $1 AND viewed_at >= $2 AND viewed_at < $3
	`

	m := &domain.VendorMetrics{VendorID: vendorID, Date: dayStart}
	err := querier(ctx, r.db).QueryRow(ctx, query, vendorID, dayStart, dayEnd).Scan(
		&m.TotalViews, &m.QualifiedViews, &m.DuplicateViews, &m.BotViews,
		&m.ContactClicks, &m.ChargedViews, &m.TotalSpend,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate views: %w", err)
	}
	return m, nil
}

func (r *metricsRepository) VendorIDsWithViews(ctx context.Context, day time.Time) ([]string, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	rows, err := querier(ctx, r.db).Query(ctx,
		`SELECT DISTINCT vendor_id FROM product_views WHERE viewed_at >= $1 AND viewed_at < $2`,
		dayStart, dayEnd,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list vendors with views: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan vendor id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *metricsRepository) PlatformTotals(ctx context.Context, from, to time.Time) (*domain.PlatformStats, error) {
	query := `
		SELECT
			COUNT(DISTINCT vendor_id),
			COALESCE(SUM(total_views), 0),
			COALESCE(SUM(qualified_views), 0),
			COALESCE(SUM(duplicate_views), 0),
			COALESCE(SUM(bot_views), 0),
			COALESCE(SUM(contact_clicks), 0),
			COALESCE(SUM(charged_views), 0),
			COALESCE(SUM(total_spend), 0)
		FROM vendor_metrics
		WHERE date >= $1 AND date < $2
	`

	stats := &domain.PlatformStats{From: from, To: to}
	err := querier(ctx, r.db).QueryRow(ctx, query, from, to).Scan(
		&stats.ActiveVendors, &stats.TotalViews, &stats.QualifiedViews,
		&stats.DuplicateViews, &stats.BotViews, &stats.ContactClicks,
		&stats.ChargedViews, &stats.TotalRevenue,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate platform stats: %w", err)
	}
	return stats, nil
}
