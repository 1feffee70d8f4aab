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

// AdminBillingHandler exposes moderation-side billing operations:
// bonuses, adjustments, refunds, and vendor ledger inspection.
type AdminBillingHandler struct {
	billing    *usecase.BillingUsecase
	metrics    *usecase.MetricsUsecase
	vendorRepo domain.VendorRepository
}

func NewAdminBillingHandler(billing *usecase.BillingUsecase, metrics *usecase.MetricsUsecase, vendorRepo domain.VendorRepository) *AdminBillingHandler {
	return &AdminBillingHandler{billing: billing, metrics: metrics, vendorRepo: vendorRepo}
}

type bonusRequest struct {
	Credits     int64  `json:"credits"`
	Description string `json:"description"`
}

func (h *AdminBillingHandler) GrantBonus(w http.ResponseWriter, r *http.Request) {
	vendorID := r.PathValue("id")

	var req bonusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	entry, err := h.billing.GrantBonus(r.Context(), vendorID, req.Credits, req.Description)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAmount):
			utils.WriteError(w, http.StatusBadRequest, "Credits must be positive")
		case errors.Is(err, domain.ErrVendorNotFound):
			utils.WriteError(w, http.StatusNotFound, "Vendor not found")
		default:
			logger.WithContext(r.Context()).Error().Err(err).Str("vendor_id", vendorID).Msg("bonus grant failed")
			utils.WriteError(w, http.StatusInternalServerError, "Failed to grant bonus")
		}
		return
	}

	utils.WriteJSON(w, http.StatusCreated, domain.Response{Success: true, Data: entry})
}

type adjustmentRequest struct {
	Delta  int64  `json:"delta"`
	Reason string `json:"reason"`
}

func (h *AdminBillingHandler) Adjust(w http.ResponseWriter, r *http.Request) {
	vendorID := r.PathValue("id")

	var req adjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if req.Reason == "" {
		utils.WriteError(w, http.StatusBadRequest, "Adjustment reason is required")
		return
	}

	entry, err := h.billing.Adjust(r.Context(), vendorID, req.Delta, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidAmount):
			utils.WriteError(w, http.StatusBadRequest, "Delta must be non-zero")
		case errors.Is(err, domain.ErrBalanceWouldGoNeg):
			utils.WriteError(w, http.StatusConflict, "Adjustment would make balance negative")
		case errors.Is(err, domain.ErrVendorNotFound):
			utils.WriteError(w, http.StatusNotFound, "Vendor not found")
		default:
			utils.WriteError(w, http.StatusInternalServerError, "Failed to apply adjustment")
		}
		return
	}

	utils.WriteJSON(w, http.StatusCreated, domain.Response{Success: true, Data: entry})
}

type refundRequest struct {
	Reason string `json:"reason"`
}

func (h *AdminBillingHandler) RefundTransaction(w http.ResponseWriter, r *http.Request) {
	transactionID := r.PathValue("id")

	var req refundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	entry, err := h.billing.RefundTransaction(r.Context(), transactionID, req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrTransactionNotFound):
			utils.WriteError(w, http.StatusNotFound, "Transaction not found")
		case errors.Is(err, domain.ErrNotRefundable):
			utils.WriteError(w, http.StatusConflict, "Only deductions and purchases are refundable")
		case errors.Is(err, domain.ErrAlreadyRefunded):
			utils.WriteError(w, http.StatusConflict, "Transaction already refunded")
		case errors.Is(err, domain.ErrBalanceWouldGoNeg):
			utils.WriteError(w, http.StatusConflict, "Refund would make balance negative")
		default:
			logger.WithContext(r.Context()).Error().Err(err).Str("transaction_id", transactionID).Msg("refund failed")
			utils.WriteError(w, http.StatusInternalServerError, "Failed to refund transaction")
		}
		return
	}

	utils.WriteJSON(w, http.StatusCreated, domain.Response{Success: true, Data: entry})
}

func (h *AdminBillingHandler) ListVendorTransactions(w http.ResponseWriter, r *http.Request) {
	vendorID := r.PathValue("id")

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	txs, total, err := h.billing.ListTransactions(r.Context(), vendorID, domain.TransactionFilter{
		Page:  page,
		Limit: limit,
		Type:  r.URL.Query().Get("type"),
	})
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load transactions")
		return
	}

	utils.WriteJSON(w, http.StatusOK, domain.Response{
		Success: true,
		Data:    txs,
		Meta:    map[string]int64{"totalItems": total},
	})
}

// GetPlatformStats serves the cross-vendor totals for the admin
// dashboard, defaulting to the last 30 days.
func (h *AdminBillingHandler) GetPlatformStats(w http.ResponseWriter, r *http.Request) {
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

	stats, err := h.metrics.GetPlatformStats(r.Context(), from, to)
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load platform stats")
		return
	}

	utils.WriteJSON(w, http.StatusOK, domain.Response{Success: true, Data: stats})
}

func (h *AdminBillingHandler) ListVendors(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	vendors, total, err := h.vendorRepo.GetAll(r.Context(), domain.VendorFilter{
		Page:   page,
		Limit:  limit,
		Status: r.URL.Query().Get("status"),
		Tier:   r.URL.Query().Get("tier"),
		Search: r.URL.Query().Get("search"),
	})
	if err != nil {
		utils.WriteError(w, http.StatusInternalServerError, "Failed to load vendors")
		return
	}

	utils.WriteJSON(w, http.StatusOK, domain.Response{
		Success: true,
		Data:    vendors,
		Meta:    map[string]int64{"totalItems": total},
	})
}
