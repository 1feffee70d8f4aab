package usecase

import (
	"context"
	"fmt"
	"time"

	"whatprice-backend/internal/domain"
	"whatprice-backend/pkg/cache"
	"whatprice-backend/pkg/logger"

	ua "github.com/mileusna/useragent"
)

// Charger is the internal charging entry point invoked when a view
// qualifies. It is never exposed to HTTP clients.
type Charger interface {
	ChargeQualifiedView(ctx context.Context, viewID string) (domain.ChargeOutcome, error)
}

// TrackingUsecase is the view qualification engine: it records views,
// computes fraud flags at creation time, and applies the duration
// threshold on the qualification callback.
type TrackingUsecase struct {
	viewRepo    domain.ViewRepository
	productRepo domain.ProductRepository
	cache       cache.CacheService
	charger     Charger
	now         func() time.Time
}

func NewTrackingUsecase(viewRepo domain.ViewRepository, productRepo domain.ProductRepository, memCache cache.CacheService, charger Charger) *TrackingUsecase {
	return &TrackingUsecase{
		viewRepo:    viewRepo,
		productRepo: productRepo,
		cache:       memCache,
		charger:     charger,
		now:         time.Now,
	}
}

func dupCacheKey(sessionID, productID string) string {
	return "dup:" + sessionID + ":" + productID
}

// RecordView persists a view event. Duplicates and bots are stored
// with their flags set, never rejected, so traffic analytics keep full
// visibility; the charging path excludes them later.
func (u *TrackingUsecase) RecordView(ctx context.Context, input domain.RecordViewInput) (*domain.ProductView, error) {
	if input.ProductID == "" || input.SessionID == "" {
		return nil, fmt.Errorf("productId and sessionId are required")
	}

	viewType := input.ViewType
	if !isValidViewType(viewType) {
		viewType = domain.ViewTypeDirect
	}

	// The owning vendor is resolved server-side; the public endpoint
	// never trusts a client-supplied vendor id.
	product, err := u.productRepo.GetByID(ctx, input.ProductID)
	if err != nil {
		return nil, err
	}

	now := u.now()

	// Duplicate window check. Cache fast path first, DB lookup as the
	// source of truth. This is read-then-write and acknowledged
	// best-effort: near-simultaneous identical requests may both pass.
	isDuplicate := false
	if _, hit := u.cache.Get(dupCacheKey(input.SessionID, input.ProductID)); hit {
		isDuplicate = true
	} else {
		isDuplicate, err = u.viewRepo.HasRecentView(ctx, input.SessionID, input.ProductID, now.Add(-domain.DuplicateWindow))
		if err != nil {
			return nil, err
		}
	}

	isBot, deviceType := classifyUserAgent(input.UserAgent)

	view := &domain.ProductView{
		ProductID:       input.ProductID,
		VendorID:        product.VendorID,
		MasterProductID: input.MasterProductID,
		SessionID:       input.SessionID,
		UserID:          input.UserID,
		ViewType:        viewType,
		IsQualifiedView: false,
		CPVCharged:      false,
		IsDuplicate:     isDuplicate,
		IsBot:           isBot,
		DeviceType:      deviceType,
		UserAgent:       input.UserAgent,
		IPAddress:       input.IPAddress,
		ViewedAt:        now,
	}

	if err := u.viewRepo.Create(ctx, view); err != nil {
		return nil, err
	}

	u.cache.Set(dupCacheKey(input.SessionID, input.ProductID), view.ID, domain.DuplicateWindow)

	return view, nil
}

// QualifyView overwrites the view's engagement data and recomputes the
// qualification flag. Re-calling with a new duration is allowed and
// simply recomputes. Returns false without error when the view is
// missing (routine race with expiry).
//
// A view crossing the threshold triggers the charge synchronously.
// The charging service owns all billability checks, so invoking it for
// a duplicate or bot view is harmless.
func (u *TrackingUsecase) QualifyView(ctx context.Context, viewID string, duration float64, scrollDepth *int) (bool, error) {
	if viewID == "" {
		return false, nil
	}

	qualified := duration >= domain.QualifyingDuration

	found, err := u.viewRepo.UpdateQualification(ctx, viewID, duration, scrollDepth, qualified)
	if err != nil {
		return false, err
	}
	if !found {
		return false, nil
	}

	if qualified && u.charger != nil {
		outcome, err := u.charger.ChargeQualifiedView(ctx, viewID)
		if err != nil {
			// Persistence failure on the charge path. The view stays
			// qualified-but-uncharged and a retried charge is safe, so
			// the tracking callback itself still succeeds.
			logger.WithContext(ctx).Error().Err(err).Str("view_id", viewID).Msg("charge attempt failed")
		} else if !outcome.Charged {
			logger.WithContext(ctx).Debug().Str("view_id", viewID).Str("reason", outcome.Reason).Msg("charge refused")
		}
	}

	return true, nil
}

// RecordContactClick marks the CTR signal. Clicks never trigger or
// price a charge; view qualification does.
func (u *TrackingUsecase) RecordContactClick(ctx context.Context, viewID string) (bool, error) {
	if viewID == "" {
		return false, nil
	}
	return u.viewRepo.MarkContactClicked(ctx, viewID)
}

func isValidViewType(t string) bool {
	for _, v := range domain.ViewTypes {
		if v == t {
			return true
		}
	}
	return false
}

// classifyUserAgent derives the bot flag and the informational device
// type from the raw user agent.
func classifyUserAgent(rawUA string) (isBot bool, deviceType string) {
	parsed := ua.Parse(rawUA)

	deviceType = domain.DeviceTypeDesktop
	if parsed.Mobile {
		deviceType = domain.DeviceTypeMobile
	} else if parsed.Tablet {
		deviceType = domain.DeviceTypeTablet
	}

	return parsed.Bot, deviceType
}
