package handlers

import (
	"errors"
	"net/http"

	"typestake/internal/domain"
	"typestake/internal/logger"

	"github.com/gin-gonic/gin"
)

// respondError maps the domain error taxonomy onto status codes. Anything
// unrecognised is a 500 with a generic body.
func respondError(c *gin.Context, err error) {
	var (
		valErr   *domain.ValidationError
		conflict *domain.ConflictError
		cfgErr   *domain.ConfigurationError
		timeout  *domain.ChainTimeoutError
		txErr    *domain.ChainTransactionError
	)
	log := logger.WithContext(c.Request.Context())

	switch {
	case errors.As(err, &valErr):
		c.JSON(http.StatusBadRequest, gin.H{"error": valErr.Error(), "field": valErr.Field})
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{"error": conflict.Error()})
	case errors.As(err, &cfgErr):
		log.Error("configuration error", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "configuration error"})
	case errors.As(err, &timeout):
		c.JSON(http.StatusGatewayTimeout, gin.H{"error": timeout.Error(), "retryable": true})
	case errors.As(err, &txErr):
		c.JSON(http.StatusBadGateway, gin.H{"error": txErr.Error(), "txHash": txErr.TxHash, "retryable": true})
	default:
		log.Error("request failed", "path", c.FullPath(), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}

func badRequest(c *gin.Context, field, reason string) {
	respondError(c, domain.NewValidationError(field, reason))
}
