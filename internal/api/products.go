package api

import (
	"subscription-sync/internal/models"
	"subscription-sync/internal/response"

	"github.com/gin-gonic/gin"
)

// ProductsResponse lists the offered subscriptions
type ProductsResponse struct {
	Prices   models.SubscriptionPrices `json:"prices"`
	Packages map[string]string         `json:"packages"` // product id -> display title
}

// GetProducts returns subscription prices
// GET /api/products
func (h *Handler) GetProducts(c *gin.Context) {
	prices := h.Products.RetrieveSubscriptions(c.Request.Context())

	packages := make(map[string]string)
	for _, id := range h.Products.ProductIDs() {
		packages[id] = h.Products.PackageDetail(id)
	}

	response.SuccessJSON(c, ProductsResponse{Prices: prices, Packages: packages})
}
