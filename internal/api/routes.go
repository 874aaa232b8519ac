package api

import (
	"net/http"

	"subscription-sync/internal/middleware"
	"subscription-sync/internal/services"

	"github.com/gin-gonic/gin"
)

// Handler carries the services the HTTP handlers call into.
type Handler struct {
	Purchases  *services.PurchaseService
	Reconciler *services.Reconciler
	Products   *services.ProductService
}

// SetupRoutes sets up all routes
func SetupRoutes(r *gin.Engine, h *Handler, apiKey string) {
	api := r.Group("/api")
	api.Use(middleware.APIKeyAuthMiddleware(apiKey))
	{
		subscription := api.Group("/subscription")
		{
			subscription.POST("/purchase", h.HandlePurchase)
			subscription.POST("/restore", h.RestorePurchases)
			subscription.POST("/verify", h.VerifySubscription)
			subscription.GET("/status", h.GetSubscriptionStatus)
		}

		api.GET("/products", h.GetProducts)
	}

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "subscription-sync",
		})
	})
}
