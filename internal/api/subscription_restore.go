package api

import (
	"net/http"

	"subscription-sync/internal/models"
	"subscription-sync/internal/response"

	"github.com/gin-gonic/gin"
)

// RestoreRequest is the restore callback forwarded by the app
type RestoreRequest struct {
	UserID      string                    `json:"user_id" binding:"required"`
	Email       string                    `json:"email" binding:"omitempty,email"`
	Restored    []models.RestoredPurchase `json:"restored"`
	Failed      []models.RestoreFailure   `json:"failed"`
	ReceiptData string                    `json:"receipt_data"`
}

// RestorePurchases processes a restore result
// POST /api/subscription/restore
func (h *Handler) RestorePurchases(c *gin.Context) {
	var req RestoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.ErrorJSON(c, http.StatusBadRequest, "invalid_request", "Invalid request format: "+err.Error())
		return
	}
	if len(req.Restored) > 0 && len(req.Failed) == 0 && req.ReceiptData == "" {
		response.ErrorJSON(c, http.StatusBadRequest, "invalid_request", "receipt_data is required to verify restored purchases")
		return
	}

	account, ok := h.account(c, req.UserID, req.Email)
	if !ok {
		return
	}

	outcome, err := h.Purchases.Restore(c.Request.Context(), account, models.RestoreResult{
		Restored: req.Restored,
		Failed:   req.Failed,
	}, req.ReceiptData)
	if err != nil {
		writeServiceError(c, err)
		return
	}

	response.MessageJSON(c, outcome.Message, h.subscriptionResponse(outcome))
}
