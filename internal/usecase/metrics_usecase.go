package usecase

import (
	"context"
	"fmt"
	"time"

	"whatprice-backend/internal/domain"
	"whatprice-backend/pkg/cache"
	"whatprice-backend/pkg/logger"
)

// MetricsUsecase rolls raw view rows up into per-vendor-per-day
// summaries and purges expired views. It only reads committed billing
// state; the charging service is the sole writer of the ledger.
type MetricsUsecase struct {
	metricsRepo   domain.MetricsRepository
	viewRepo      domain.ViewRepository
	cache         cache.CacheService
	viewRetention time.Duration
	metricsTTL    time.Duration
	now           func() time.Time
}

func NewMetricsUsecase(metricsRepo domain.MetricsRepository, viewRepo domain.ViewRepository, memCache cache.CacheService, viewRetention, metricsTTL time.Duration) *MetricsUsecase {
	if viewRetention <= 0 {
		viewRetention = domain.ViewRetention
	}
	return &MetricsUsecase{
		metricsRepo:   metricsRepo,
		viewRepo:      viewRepo,
		cache:         memCache,
		viewRetention: viewRetention,
		metricsTTL:    metricsTTL,
		now:           time.Now,
	}
}

// AggregateVendorDay recomputes and stores one vendor's rollup for the
// given day. Recomputing from scratch keeps the upsert idempotent.
func (u *MetricsUsecase) AggregateVendorDay(ctx context.Context, vendorID string, day time.Time) error {
	m, err := u.metricsRepo.AggregateViews(ctx, vendorID, day)
	if err != nil {
		return err
	}
	if err := u.metricsRepo.Upsert(ctx, m); err != nil {
		return err
	}
	u.cache.Delete(metricsCacheKey(vendorID))
	return nil
}

// AggregateDay rolls up every vendor that had traffic on the day.
func (u *MetricsUsecase) AggregateDay(ctx context.Context, day time.Time) error {
	vendorIDs, err := u.metricsRepo.VendorIDsWithViews(ctx, day)
	if err != nil {
		return err
	}

	var failed int
	for _, id := range vendorIDs {
		if err := u.AggregateVendorDay(ctx, id, day); err != nil {
			failed++
			logger.WithContext(ctx).Error().Err(err).Str("vendor_id", id).Msg("rollup failed")
		}
	}
	if failed > 0 {
		return fmt.Errorf("rollup failed for %d of %d vendors", failed, len(vendorIDs))
	}
	return nil
}

// PurgeExpiredViews deletes raw views past the retention window. The
// rollups for those days already exist, so no aggregate data is lost.
func (u *MetricsUsecase) PurgeExpiredViews(ctx context.Context) (int64, error) {
	cutoff := u.now().Add(-u.viewRetention)
	return u.viewRepo.DeleteOlderThan(ctx, cutoff)
}

func metricsCacheKey(vendorID string) string { return "metrics:" + vendorID }

// GetVendorDaily returns rollups for the portal dashboard, cached
// briefly since the aggregator only refreshes hourly anyway.
func (u *MetricsUsecase) GetVendorDaily(ctx context.Context, vendorID string, from, to time.Time) ([]domain.VendorMetrics, error) {
	key := metricsCacheKey(vendorID) + ":" + from.Format("20060102") + ":" + to.Format("20060102")
	if cached, hit := u.cache.Get(key); hit {
		if m, ok := cached.([]domain.VendorMetrics); ok {
			return m, nil
		}
	}

	metrics, err := u.metricsRepo.GetByVendorAndRange(ctx, vendorID, from, to)
	if err != nil {
		return nil, err
	}

	u.cache.Set(key, metrics, u.metricsTTL)
	return metrics, nil
}

// GetPlatformStats sums the rollups across every vendor for the admin
// dashboard.
func (u *MetricsUsecase) GetPlatformStats(ctx context.Context, from, to time.Time) (*domain.PlatformStats, error) {
	key := "platform:" + from.Format("20060102") + ":" + to.Format("20060102")
	if cached, hit := u.cache.Get(key); hit {
		if s, ok := cached.(*domain.PlatformStats); ok {
			return s, nil
		}
	}

	stats, err := u.metricsRepo.PlatformTotals(ctx, from, to)
	if err != nil {
		return nil, err
	}

	u.cache.Set(key, stats, u.metricsTTL)
	return stats, nil
}

// Run drives the periodic rollup and purge until ctx is cancelled.
// Started from main as a goroutine alongside the HTTP server.
func (u *MetricsUsecase) Run(ctx context.Context, rollupInterval, purgeInterval time.Duration) {
	log := logger.Get()

	rollupTicker := time.NewTicker(rollupInterval)
	defer rollupTicker.Stop()
	purgeTicker := time.NewTicker(purgeInterval)
	defer purgeTicker.Stop()

	for {
		select {
		case <-rollupTicker.C:
			now := u.now()
			// Refresh today and yesterday; late qualification
			// callbacks can land just after midnight.
			for _, day := range []time.Time{now, now.Add(-24 * time.Hour)} {
				if err := u.AggregateDay(ctx, day); err != nil {
					log.Error().Err(err).Time("day", day).Msg("daily rollup incomplete")
				}
			}
		case <-purgeTicker.C:
			deleted, err := u.PurgeExpiredViews(ctx)
			if err != nil {
				log.Error().Err(err).Msg("view purge failed")
			} else if deleted > 0 {
				log.Info().Int64("deleted", deleted).Msg("purged expired views")
			}
		case <-ctx.Done():
			return
		}
	}
}
