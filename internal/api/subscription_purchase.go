package api

import (
	"net/http"

	"subscription-sync/internal/models"
	"subscription-sync/internal/response"

	"github.com/gin-gonic/gin"
)

// PurchaseRequest is the purchase callback forwarded by the app
type PurchaseRequest struct {
	UserID        string                   `json:"user_id" binding:"required"` // App Account Token (UUID)
	Email         string                   `json:"email" binding:"omitempty,email"`
	Status        models.PurchaseStatus    `json:"status" binding:"required,oneof=success cancelled error"`
	ProductID     string                   `json:"product_id" binding:"required"`
	TransactionID string                   `json:"transaction_id"`
	ErrorCode     models.PurchaseErrorCode `json:"error_code"`
	ErrorMessage  string                   `json:"error_message"`
	ReceiptData   string                   `json:"receipt_data"` // Base64 receipt, required on success
}

// HandlePurchase processes a purchase result
// POST /api/subscription/purchase
func (h *Handler) HandlePurchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "invalid_request", "Invalid request format: "+err.Error())
		return
	}
	if req.Status == models.PurchaseSuccess && req.ReceiptData == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "invalid_request", "receipt_data is required for a successful purchase")
		return
	}

	account, ok := h.account(c, req.UserID, req.Email)
	if !ok {
		return
	}

	outcome, err := h.Purchases.HandlePurchase(c.Request.Context(), account, models.PurchaseResult{
		Status:        req.Status,
		ProductID:     req.ProductID,
		TransactionID: req.TransactionID,
		ErrorCode:     req.ErrorCode,
		ErrorMessage:  req.ErrorMessage,
	}, req.ReceiptData)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.MessageJSON(c, outcome.Message, h.subscriptionResponse(outcome))
}
