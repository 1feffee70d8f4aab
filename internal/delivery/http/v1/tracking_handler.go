package v1

import (
	"encoding/json"
	"errors"
	"net/http"

	"whatprice-backend/internal/domain"
	"whatprice-backend/internal/usecase"
	"whatprice-backend/pkg/logger"
	"whatprice-backend/pkg/utils"
)

// TrackingHandler exposes the public view/qualify/click callbacks.
// These are fire-and-forget beacons from product pages: failures are
// soft so broken analytics never break the consumer experience.
type TrackingHandler struct {
	usecase *usecase.TrackingUsecase
}

func NewTrackingHandler(uc *usecase.TrackingUsecase) *TrackingHandler {
	return &TrackingHandler{usecase: uc}
}

type recordViewRequest struct {
	ProductID       string  `json:"productId"`
	SessionID       string  `json:"sessionId"`
	ViewType        string  `json:"viewType"`
	MasterProductID *string `json:"masterProductId"`
}

func (h *TrackingHandler) RecordView(w http.ResponseWriter, r *http.Request) {
	var req recordViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	if req.ProductID == "" || req.SessionID == "" {
		utils.WriteError(w, http.StatusBadRequest, "productId and sessionId are required")
		return
	}

	var userID *string
	if user, ok := r.Context().Value(domain.UserContextKey).(*domain.User); ok && user != nil {
		userID = &user.ID
	}

	view, err := h.usecase.RecordView(r.Context(), domain.RecordViewInput{
		ProductID:       req.ProductID,
		SessionID:       req.SessionID,
		ViewType:        req.ViewType,
		MasterProductID: req.MasterProductID,
		UserID:          userID,
		UserAgent:       r.UserAgent(),
		IPAddress:       clientIP(r),
	})
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			utils.WriteError(w, http.StatusNotFound, "Product not found")
			return
		}
		logger.WithContext(r.Context()).Error().Err(err).Msg("failed to record view")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to record view")
		return
	}

	utils.WriteJSON(w, http.StatusCreated, map[string]string{"viewId": view.ID})
}

type qualifyViewRequest struct {
	ViewID      string  `json:"viewId"`
	Duration    float64 `json:"duration"`
	ScrollDepth *int    `json:"scrollDepth"`
}

func (h *TrackingHandler) QualifyView(w http.ResponseWriter, r *http.Request) {
	var req qualifyViewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	ok, err := h.usecase.QualifyView(r.Context(), req.ViewID, req.Duration, req.ScrollDepth)
	if err != nil {
		logger.WithContext(r.Context()).Error().Err(err).Str("view_id", req.ViewID).Msg("failed to qualify view")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to qualify view")
		return
	}

	// Missing view is a routine race (expired or bogus id), soft false.
	utils.WriteJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

type contactClickRequest struct {
	ViewID string `json:"viewId"`
}

func (h *TrackingHandler) RecordContactClick(w http.ResponseWriter, r *http.Request) {
	var req contactClickRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}

	ok, err := h.usecase.RecordContactClick(r.Context(), req.ViewID)
	if err != nil {
		logger.WithContext(r.Context()).Error().Err(err).Str("view_id", req.ViewID).Msg("failed to record click")
		utils.WriteError(w, http.StatusInternalServerError, "Failed to record click")
		return
	}

	utils.WriteJSON(w, http.StatusOK, map[string]bool{"success": ok})
}

// clientIP mirrors the middleware's extraction for view records.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		return xff
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	return r.RemoteAddr
}
