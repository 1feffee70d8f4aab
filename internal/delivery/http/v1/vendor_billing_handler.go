package v1

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"whatprice-backend/internal/domain"
	"whatprice-backend/internal/usecase"
	"whatprice-backend/pkg/logger"
	"whatprice-backend/pkg/utils"
)

// VendorBillingHandler serves the vendor portal's billing pages:
// balance, transaction history, bid settings, credit purchase,
// daily metrics, and statement export.
type VendorBillingHandler struct {
	billing *usecase.BillingUsecase
	metrics *usecase.MetricsUsecase
}

func NewVendorBillingHandler(billing *usecase.BillingUsecase, metrics *usecase.MetricsUsecase) *VendorBillingHandler {
	return &VendorBillingHandler{billing: billing, metrics: metrics}
}

// vendorFromContext resolves the acting vendor. Admins may pass an
// explicit ?vendorId= to inspect an account.
func vendorFromContext(r *http.Request) (string, bool) {
	user, ok := r.Context().Value(domain.UserContextKey).(*domain.User)
	if !ok || user == nil {
		return "", false
	}
	if user.Role == domain.RoleAdmin {
		if id := r.URL.Query().Get("vendorId"); id != "" {
			return id, true
		}
	}
	if user.VendorID == "" {
		return "", false
	}
	return user.VendorID, true
}

func (h *VendorBillingHandler) GetBalance(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorFromContext(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	vendor, err := h.billing.GetBalance(r.Context(), vendorID)
	if err != nil {
		if errors.Is(err, domain.ErrVendorNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Vendor not found")
			return
		}
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load balance")
		return
	}

	utils.WriteJSON(w, http.StatusOK, domain.Response{
		Success: true,
		Data: map[string]interface{}{
			"viewCredits":           vendor.ViewCredits,
			"viewCreditsDisplay":    domain.FormatPaisa(vendor.ViewCredits),
			"totalCreditsPurchased": vendor.TotalCreditsPurchased,
			"totalCreditsUsed":      vendor.TotalCreditsUsed,
			"totalSpent":            vendor.TotalSpent,
			"graduationTier":        vendor.GraduationTier,
			"cpvRatePer100":         domain.CPVRatePer100(vendor.GraduationTier),
			"defaultBidAmount":      vendor.DefaultBidAmount,
			"maxDailyBudget":        vendor.MaxDailyBudget,
			"currentDailySpend":     vendor.CurrentDailySpend,
		},
	})
}

func (h *VendorBillingHandler) ListTransactions(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorFromContext(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	filter := domain.TransactionFilter{
		Page:  page,
		Limit: limit,
		Type:  r.URL.Query().Get("type"),
	}

	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit < 1 || filter.Limit > 100 {
		filter.Limit = 20
	}

	txs, total, err := h.billing.ListTransactions(r.Context(), vendorID, filter)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load transactions")
		return
	}

	utils.WriteJSON(w, http.StatusOK, domain.Response{
		Success: true,
		Data:    txs,
		Meta: domain.Pagination{
			Page:       filter.Page,
			Limit:      filter.Limit,
			TotalItems: total,
			TotalPages: int((total + int64(filter.Limit) - 1) / int64(filter.Limit)),
		},
	})
}

type bidSettingsRequest struct {
	DefaultBidAmount int64  `json:"defaultBidAmount"`
	MaxDailyBudget   *int64 `json:"maxDailyBudget"`
}

func (h *VendorBillingHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorFromContext(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req bidSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if err := h.billing.UpdateBidSettings(r.Context(), vendorID, req.DefaultBidAmount, req.MaxDailyBudget); err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAmount):
			utils.WriteError(w, http.StatusBadRequest, "Invalid bid or budget amount")
		case errors.Is(err, domain.ErrVendorNotFound):
			utils.WriteError(w, http.StatusNotFound, "Vendor not found")
		default:
			utils.WriteError(w, http.StatusInternalServerError, "Failed to update settings")
		}
		return
	}

	utils.WriteJSON(w, http.StatusOK, domain.Response{Success: true, Message: "Settings updated"})
}

func (h *VendorBillingHandler) PurchaseCredits(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorFromContext(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req usecase.PurchaseInput
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	entry, err := h.billing.PurchaseCredits(r.Context(), vendorID, req)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAmount):
			utils.WriteError(w, http.StatusBadRequest, "Credits and amount must be positive")
		case errors.Is(err, domain.ErrVendorNotFound):
			utils.WriteError(w, http.StatusNotFound, "Vendor not found")
		default:
			logger.WithContext(r.Context()).Error().Err(err).Str("vendor_id", vendorID).Msg("purchase failed")
			utils.WriteError(w, http.StatusInternalServerError, "Failed to purchase credits")
		}
		return
	}

	utils.WriteJSON(w, http.StatusCreated, domain.Response{Success: true, Data: entry})
}

func (h *VendorBillingHandler) GetDailyMetrics(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorFromContext(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	now := time.Now().UTC()
	from := now.AddDate(0, 0, -30)
	if s := r.URL.Query().Get("from"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			from = t
		}
	}
	to := now.AddDate(0, 0, 1)
	if s := r.URL.Query().Get("to"); s != "" {
		if t, err := time.Parse("2006-01-02", s); err == nil {
			to = t.AddDate(0, 0, 1)
		}
	}

	metrics, err := h.metrics.GetVendorDaily(r.Context(), vendorID, from, to)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load metrics")
		return
	}

	utils.WriteJSON(w, http.StatusOK, domain.Response{Success: true, Data: metrics})
}

type statementRequest struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

func (h *VendorBillingHandler) ExportStatement(w http.ResponseWriter, r *http.Request) {
	vendorID, ok := vendorFromContext(r)
	if !ok {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}

	var req statementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Year < 2020 || req.Month < 1 || req.Month > 12 {
		utils.WriteError(w, http.StatusBadRequest, "Invalid statement period")
		return
	}

	url, err := h.billing.ExportStatement(r.Context(), vendorID, req.Year, time.Month(req.Month))
	if err != nil {
		logger.WithContext(r.Context()).Error().Err(err).Str("vendor_id", vendorID).Msg("statement export failed")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to export statement")
		return
	}

	utils.WriteJSON(w, http.StatusOK, domain.Response{Success: true, Data: map[string]string{"url": url}})
}
