package middleware

import (
	"crypto/subtle"
	"net/http"
	"time"

	"subscription-sync/internal/response"

	"github.com/gin-gonic/gin"
)

// APIKeyAuthMiddleware checks the X-API-Key header (or api_key query parameter)
// against the configured key. An empty key disables the check.
func APIKeyAuthMiddleware(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			c.Next()
			return
		}

		key := c.GetHeader("X-API-Key")
		// If not passed via header, try to get from query parameters
		if key == "" {
			key = c.Query("api_key")
		}

		if key == "" {
			c.JSON(http.StatusUnauthorized, response.Error("missing_api_key", "Missing api_key"))
			c.Abort()
			return
		}

		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			c.JSON(http.StatusUnauthorized, response.Error("invalid_api_key", "Invalid api_key"))
			c.Abort()
			return
		}

		c.Set("request_time", time.Now())
		c.Next()
	}
}
