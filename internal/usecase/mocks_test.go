package usecase

import (
	"context"
	"sync"
	"time"

	"whatprice-backend/internal/domain"

	"github.com/google/uuid"
)

// In-memory fakes for the repository interfaces. They reproduce the
// SQL-level guards (conditional debit, cpv_charged gate) so the
// usecase tests exercise the same invariants as the real layer.

type fakeViewRepo struct {
	mu    sync.Mutex
	views map[string]*domain.ProductView
}

func newFakeViewRepo() *fakeViewRepo {
	return &fakeViewRepo{views: make(map[string]*domain.ProductView)}
}

func (f *fakeViewRepo) Create(ctx context.Context, view *domain.ProductView) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if view.ID == "" {
		view.ID = uuid.New().String()
	}
	if view.ViewedAt.IsZero() {
		view.ViewedAt = time.Now()
	}
	cp := *view
	f.views[view.ID] = &cp
	return nil
}

func (f *fakeViewRepo) GetByID(ctx context.Context, id string) (*domain.ProductView, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.views[id]
	if !ok {
		return nil, domain.ErrViewNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeViewRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.ProductView, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeViewRepo) HasRecentView(ctx context.Context, sessionID, productID string, since time.Time) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, v := range f.views {
		if v.SessionID == sessionID && v.ProductID == productID && !v.ViewedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeViewRepo) UpdateQualification(ctx context.Context, id string, duration float64, scrollDepth *int, qualified bool) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.views[id]
	if !ok {
		return false, nil
	}
	v.ViewDuration = duration
	if scrollDepth != nil {
		v.ScrollDepth = scrollDepth
	}
	v.IsQualifiedView = qualified
	return true, nil
}

func (f *fakeViewRepo) MarkContactClicked(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.views[id]
	if !ok {
		return false, nil
	}
	v.ClickedContact = true
	return true, nil
}

func (f *fakeViewRepo) MarkCharged(ctx context.Context, id string, amount, bidAmount int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.views[id]
	if !ok || v.CPVCharged {
		return false, nil
	}
	v.CPVCharged = true
	v.CPVAmount = amount
	v.VendorBidAmount = bidAmount
	return true, nil
}

func (f *fakeViewRepo) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var deleted int64
	for id, v := range f.views {
		if v.ViewedAt.Before(cutoff) {
			delete(f.views, id)
			deleted++
		}
	}
	return deleted, nil
}

type fakeVendorRepo struct {
	mu      sync.Mutex
	vendors map[string]*domain.Vendor
}

func newFakeVendorRepo() *fakeVendorRepo {
	return &fakeVendorRepo{vendors: make(map[string]*domain.Vendor)}
}

func (f *fakeVendorRepo) put(v *domain.Vendor) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *v
	f.vendors[v.ID] = &cp
}

func (f *fakeVendorRepo) Create(ctx context.Context, vendor *domain.Vendor) error {
	if vendor.ID == "" {
		vendor.ID = uuid.New().String()
	}
	f.put(vendor)
	return nil
}

func (f *fakeVendorRepo) GetByID(ctx context.Context, id string) (*domain.Vendor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vendors[id]
	if !ok {
		return nil, domain.ErrVendorNotFound
	}
	cp := *v
	return &cp, nil
}

func (f *fakeVendorRepo) GetByIDForUpdate(ctx context.Context, id string) (*domain.Vendor, error) {
	return f.GetByID(ctx, id)
}

func (f *fakeVendorRepo) GetAll(ctx context.Context, filter domain.VendorFilter) ([]domain.Vendor, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Vendor
	for _, v := range f.vendors {
		out = append(out, *v)
	}
	return out, int64(len(out)), nil
}

func (f *fakeVendorRepo) Debit(ctx context.Context, id string, amount int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vendors[id]
	if !ok || v.ViewCredits < amount {
		return false, nil
	}
	v.ViewCredits -= amount
	v.TotalCreditsUsed += amount
	v.CurrentDailySpend += amount
	return true, nil
}

func (f *fakeVendorRepo) Credit(ctx context.Context, id string, credits, cost int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vendors[id]
	if !ok {
		return domain.ErrVendorNotFound
	}
	v.ViewCredits += credits
	v.TotalCreditsPurchased += credits
	v.TotalSpent += cost
	return nil
}

func (f *fakeVendorRepo) ApplyAdjustment(ctx context.Context, id string, delta int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vendors[id]
	if !ok || v.ViewCredits+delta < 0 {
		return false, nil
	}
	v.ViewCredits += delta
	return true, nil
}

func (f *fakeVendorRepo) ResetDailySpend(ctx context.Context, id string, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vendors[id]
	if !ok {
		return domain.ErrVendorNotFound
	}
	v.CurrentDailySpend = 0
	v.LastDailyResetAt = &at
	return nil
}

func (f *fakeVendorRepo) UpdateTier(ctx context.Context, id, tier string, startedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vendors[id]
	if !ok {
		return domain.ErrVendorNotFound
	}
	v.GraduationTier = tier
	v.TierStartDate = startedAt
	return nil
}

func (f *fakeVendorRepo) UpdateBidSettings(ctx context.Context, id string, defaultBid int64, maxDailyBudget *int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vendors[id]
	if !ok {
		return domain.ErrVendorNotFound
	}
	v.DefaultBidAmount = defaultBid
	v.MaxDailyBudget = maxDailyBudget
	return nil
}

func (f *fakeVendorRepo) UpdateStatus(ctx context.Context, id, status string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.vendors[id]
	if !ok {
		return domain.ErrVendorNotFound
	}
	v.Status = status
	return nil
}

type fakeTransactionRepo struct {
	mu      sync.Mutex
	entries []*domain.ViewTransaction
}

func newFakeTransactionRepo() *fakeTransactionRepo {
	return &fakeTransactionRepo{}
}

func (f *fakeTransactionRepo) Create(ctx context.Context, tx *domain.ViewTransaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	if tx.CreatedAt.IsZero() {
		tx.CreatedAt = time.Now()
	}
	cp := *tx
	f.entries = append(f.entries, &cp)
	return nil
}

func (f *fakeTransactionRepo) GetByID(ctx context.Context, id string) (*domain.ViewTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.entries {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (f *fakeTransactionRepo) GetByVendorID(ctx context.Context, vendorID string, filter domain.TransactionFilter) ([]domain.ViewTransaction, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ViewTransaction
	for _, t := range f.entries {
		if t.VendorID == vendorID && (filter.Type == "" || t.Type == filter.Type) {
			out = append(out, *t)
		}
	}
	return out, int64(len(out)), nil
}

func (f *fakeTransactionRepo) GetByVendorAndRange(ctx context.Context, vendorID string, from, to time.Time) ([]domain.ViewTransaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ViewTransaction
	for _, t := range f.entries {
		if t.VendorID == vendorID && !t.CreatedAt.Before(from) && t.CreatedAt.Before(to) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTransactionRepo) MarkRefunded(ctx context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, t := range f.entries {
		if t.ID == id {
			if t.Status != domain.TransactionStatusCompleted {
				return false, nil
			}
			t.Status = domain.TransactionStatusRefunded
			return true, nil
		}
	}
	return false, nil
}

// byVendor returns the vendor's entries in append order.
func (f *fakeTransactionRepo) byVendor(vendorID string) []domain.ViewTransaction {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.ViewTransaction
	for _, t := range f.entries {
		if t.VendorID == vendorID {
			out = append(out, *t)
		}
	}
	return out
}

type fakeProductRepo struct {
	products map[string]*domain.Product
}

func newFakeProductRepo() *fakeProductRepo {
	return &fakeProductRepo{products: make(map[string]*domain.Product)}
}

func (f *fakeProductRepo) GetByID(ctx context.Context, id string) (*domain.Product, error) {
	p, ok := f.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

type fakeMetricsRepo struct {
	mu       sync.Mutex
	viewRepo *fakeViewRepo
	rollups  map[string]*domain.VendorMetrics // vendorID|date
}

func newFakeMetricsRepo(viewRepo *fakeViewRepo) *fakeMetricsRepo {
	return &fakeMetricsRepo{viewRepo: viewRepo, rollups: make(map[string]*domain.VendorMetrics)}
}

func rollupKey(vendorID string, date time.Time) string {
	return vendorID + "|" + date.UTC().Format("2006-01-02")
}

func (f *fakeMetricsRepo) Upsert(ctx context.Context, m *domain.VendorMetrics) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := *m
	f.rollups[rollupKey(m.VendorID, m.Date)] = &cp
	return nil
}

func (f *fakeMetricsRepo) GetByVendorAndRange(ctx context.Context, vendorID string, from, to time.Time) ([]domain.VendorMetrics, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.VendorMetrics
	for _, m := range f.rollups {
		if m.VendorID == vendorID && !m.Date.Before(from) && m.Date.Before(to) {
			out = append(out, *m)
		}
	}
	return out, nil
}

func (f *fakeMetricsRepo) AggregateViews(ctx context.Context, vendorID string, day time.Time) (*domain.VendorMetrics, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	f.viewRepo.mu.Lock()
	defer f.viewRepo.mu.Unlock()

	m := &domain.VendorMetrics{VendorID: vendorID, Date: dayStart}
	for _, v := range f.viewRepo.views {
		if v.VendorID != vendorID || v.ViewedAt.Before(dayStart) || !v.ViewedAt.Before(dayEnd) {
			continue
		}
		m.TotalViews++
		if v.IsQualifiedView {
			m.QualifiedViews++
		}
		if v.IsDuplicate {
			m.DuplicateViews++
		}
		if v.IsBot {
			m.BotViews++
		}
		if v.ClickedContact {
			m.ContactClicks++
		}
		if v.CPVCharged {
			m.ChargedViews++
			m.TotalSpend += v.CPVAmount
		}
	}
	return m, nil
}

func (f *fakeMetricsRepo) VendorIDsWithViews(ctx context.Context, day time.Time) ([]string, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	f.viewRepo.mu.Lock()
	defer f.viewRepo.mu.Unlock()

	seen := make(map[string]bool)
	var ids []string
	for _, v := range f.viewRepo.views {
		if v.ViewedAt.Before(dayStart) || !v.ViewedAt.Before(dayEnd) {
			continue
		}
		if !seen[v.VendorID] {
			seen[v.VendorID] = true
			ids = append(ids, v.VendorID)
		}
	}
	return ids, nil
}

func (f *fakeMetricsRepo) PlatformTotals(ctx context.Context, from, to time.Time) (*domain.PlatformStats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	stats := &domain.PlatformStats{From: from, To: to}
	seen := make(map[string]bool)
	for _, m := range f.rollups {
		if m.Date.Before(from) || !m.Date.Before(to) {
			continue
		}
		if !seen[m.VendorID] {
			seen[m.VendorID] = true
			stats.ActiveVendors++
		}
		stats.TotalViews += m.TotalViews
		stats.QualifiedViews += m.QualifiedViews
		stats.DuplicateViews += m.DuplicateViews
		stats.BotViews += m.BotViews
		stats.ContactClicks += m.ContactClicks
		stats.ChargedViews += m.ChargedViews
		stats.TotalRevenue += m.TotalSpend
	}
	return stats, nil
}

// fakeTxManager serializes transactional blocks with a mutex, which is
// what FOR UPDATE row locks give the real charging path per vendor.
type fakeTxManager struct {
	mu sync.Mutex
}

func (f *fakeTxManager) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return fn(ctx)
}

// nopCache always misses, forcing usecases down the repository path.
type nopCache struct{}

func (nopCache) Get(key string) (interface{}, bool)                 { return nil, false }
func (nopCache) Set(key string, value interface{}, d time.Duration) {}
func (nopCache) Delete(key string)                                  {}
func (nopCache) Flush()                                             {}

type fakeUploader struct {
	mu      sync.Mutex
	uploads map[string][]byte
}

func newFakeUploader() *fakeUploader {
	return &fakeUploader{uploads: make(map[string][]byte)}
}

func (f *fakeUploader) UploadStatement(ctx context.Context, vendorID, filename string, data []byte) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := vendorID + "/" + filename
	f.uploads[key] = data
	return "https://cdn.example.com/statements/" + key, nil
}

// recordingCharger captures charge invocations from the tracking path.
type recordingCharger struct {
	mu      sync.Mutex
	charged []string
}

func (r *recordingCharger) ChargeQualifiedView(ctx context.Context, viewID string) (domain.ChargeOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.charged = append(r.charged, viewID)
	return domain.ChargeOutcome{Charged: true, Amount: 10}, nil
}
