package api

import (
	"errors"
	"net/http"
	"time"

	"subscription-sync/internal/database"
	"subscription-sync/internal/models"
	"subscription-sync/internal/response"
	"subscription-sync/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// SubscriptionResponse is the data returned by purchase, restore and verify.
type SubscriptionResponse struct {
	Outcome       services.OutcomeKind `json:"outcome"`
	IsSubscribed  bool                 `json:"is_subscribed"`
	ProductID     string               `json:"product_id,omitempty"`
	Package       string               `json:"package,omitempty"` // e.g. WEEKLY SUBSCRIPTION
	ExpiresAt     string               `json:"expires_at,omitempty"`
	StatusMessage string               `json:"status_message,omitempty"`
}

// parseUserID accepts an app account token and returns its canonical form.
func parseUserID(raw string) (string, bool) {
	id, err := uuid.Parse(raw)
	if err != nil {
		return "", false
	}
	return id.String(), true
}

func (h *Handler) account(c *gin.Context, userID, email string) (models.Account, bool) {
	id, ok := parseUserID(userID)
	if !ok {
		response.ErrorJSON(c, http.StatusBadRequest, "invalid_user_id", "user_id must be a UUID")
		return models.Account{}, false
	}
	return models.Account{UserID: id, Email: email}, true
}

func (h *Handler) subscriptionResponse(outcome *services.Outcome) SubscriptionResponse {
	resp := SubscriptionResponse{Outcome: outcome.Kind}
	if outcome.State != nil {
		resp.IsSubscribed = outcome.State.IsSubscribed
		resp.ProductID = outcome.State.ProductID
		resp.StatusMessage = outcome.State.StatusMessage
		resp.ExpiresAt = outcome.State.ExpirationDate.UTC().Format(time.RFC3339)
		if h.Products != nil {
			resp.Package = h.Products.PackageDetail(outcome.State.ProductID)
		}
	}
	return resp
}

// writeServiceError maps service errors to HTTP responses.
func writeServiceError(c *gin.Context, err error) {
	var purchaseErr *services.PurchaseError

	switch {
	case errors.As(err, &purchaseErr):
		response.ErrorJSON(c, http.StatusPaymentRequired, "purchase_failed", purchaseErr.Message)
	case errors.Is(err, services.ErrTimeout):
		response.ErrorJSON(c, http.StatusGatewayTimeout, "timeout", "Timed out verifying the receipt")
	case errors.Is(err, services.ErrReceiptVerificationFailed):
		response.ErrorJSON(c, http.StatusBadRequest, "receipt_verification_failed", "Receipt verification failed")
	case errors.Is(err, services.ErrReceiptItemNotFound):
		response.ErrorJSON(c, http.StatusUnprocessableEntity, "receipt_not_found", "Receipt Not Found")
	case errors.Is(err, services.ErrRestoreFailed):
		response.ErrorJSON(c, http.StatusUnprocessableEntity, "restore_failed", "Restore Failed")
	case errors.Is(err, services.ErrNoProductIDs):
		response.ErrorJSON(c, http.StatusBadRequest, "no_product_ids", err.Error())
	case errors.Is(err, services.ErrPurchaseFailed):
		response.ErrorJSON(c, http.StatusBadRequest, "purchase_failed", err.Error())
	default:
		response.ErrorJSON(c, http.StatusInternalServerError, "internal_error", "Failed to update subscription")
	}
}

// SubscriptionStatusResponse is the persisted state of one user.
type SubscriptionStatusResponse struct {
	UserID          string `json:"user_id"`
	IsSubscribed    bool   `json:"is_subscribed"`
	IsActive        bool   `json:"is_active"`
	ProductID       string `json:"product_id,omitempty"`
	Package         string `json:"package,omitempty"`
	LastPremiumPlan string `json:"last_premium_plan,omitempty"`
	ExpiresAt       string `json:"expires_at,omitempty"`
	StatusMessage   string `json:"status_message,omitempty"`
	UpdatedAt       string `json:"updated_at,omitempty"`
}

// GetSubscriptionStatus returns the stored subscription state
// GET /api/subscription/status?user_id=xxx
func (h *Handler) GetSubscriptionStatus(c *gin.Context) {
	userID, ok := parseUserID(c.Query("user_id"))
	if !ok {
		response.ErrorJSON(c, http.StatusBadRequest, "invalid_user_id", "user_id must be a UUID")
		return
	}

	state, err := h.Reconciler.State(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, database.ErrStateNotFound) {
			response.SuccessJSON(c, SubscriptionStatusResponse{UserID: userID})
			return
		}
		response.ErrorJSON(c, http.StatusInternalServerError, "internal_error", "Failed to load subscription state")
		return
	}

	resp := SubscriptionStatusResponse{
		UserID:          userID,
		IsSubscribed:    state.IsSubscribed,
		IsActive:        state.IsActive(time.Now()),
		ProductID:       state.ProductID,
		LastPremiumPlan: state.LastPremiumPlan,
		ExpiresAt:       state.ExpirationDate.UTC().Format(time.RFC3339),
		StatusMessage:   state.StatusMessage,
		UpdatedAt:       state.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if h.Products != nil {
		resp.Package = h.Products.PackageDetail(state.ProductID)
	}

	response.SuccessJSON(c, resp)
}
