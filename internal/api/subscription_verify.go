package api

import (
	"net/http"

	"subscription-sync/internal/response"

	"github.com/gin-gonic/gin"
)

// VerifySubscriptionRequest represents verify subscription request
type VerifySubscriptionRequest struct {
	UserID      string   `json:"user_id" binding:"required"`
	Email       string   `json:"email" binding:"omitempty,email"`
	ReceiptData string   `json:"receipt_data" binding:"required"` // Base64 receipt
	ProductIDs  []string `json:"product_ids"`                     // defaults to the weekly and monthly products
}

// VerifySubscription re-verifies the receipt and reconciles the stored state
// POST /api/subscription/verify
func (h *Handler) VerifySubscription(c *gin.Context) {
	var req VerifySubscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "invalid_request", "Invalid request format: "+err.Error())
		return
	}

	account, ok := h.account(c, req.UserID, req.Email)
	if !ok {
		return
	}

	productIDs := req.ProductIDs
	if len(productIDs) == 0 && h.Products != nil {
		productIDs = h.Products.ProductIDs()
	}

	outcome, err := h.Purchases.VerifySubscriptions(c.Request.Context(), account, productIDs, req.ReceiptData)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.MessageJSON(c, outcome.Message, h.subscriptionResponse(outcome))
}
