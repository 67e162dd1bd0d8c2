package middleware

import (
	"net/http"
	"strings"

	"typestake/internal/logger"
	"typestake/internal/service"

	"github.com/gin-gonic/gin"
)

// WalletAuth reads an optional "Authorization: Bearer <jwt>" header. A valid
// token stores the wallet address under "wallet"; an invalid one is rejected.
// Requests without a token pass through, handlers decide whether they need one.
func WalletAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.Next()
			return
		}
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "malformed authorization header"})
			return
		}
		wallet, err := service.ParseJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set("wallet", wallet)
		c.Request = c.Request.WithContext(logger.ContextWithWallet(c.Request.Context(), wallet))
		c.Next()
	}
}
