package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"typestake/internal/domain"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRespondErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)

	tests := []struct {
		name string
		err  error
		code int
		body string
	}{
		{"validation", domain.NewValidationError("playerAddress", "not a hex address"), http.StatusBadRequest, "invalid playerAddress: not a hex address"},
		{"conflict", domain.NewConflict(domain.ErrDuelFull, ""), http.StatusConflict, domain.ErrDuelFull.Error()},
		{"wrapped conflict", fmt.Errorf("join: %w", domain.NewConflict(domain.ErrDuelNotOpen, "")), http.StatusConflict, domain.ErrDuelNotOpen.Error()},
		{"configuration", &domain.ConfigurationError{Setting: "VERIFIER_PRIVATE_KEY"}, http.StatusInternalServerError, "configuration error"},
		{"timeout", &domain.ChainTimeoutError{Operation: "seed", Attempts: 60, Interval: time.Second}, http.StatusGatewayTimeout, ""},
		{"transaction", &domain.ChainTransactionError{Operation: "settleDuel", TxHash: "0xabc", Reason: "reverted"}, http.StatusBadGateway, ""},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)
			c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

			respondError(c, tt.err)

			assert.Equal(t, tt.code, w.Code)
			var body map[string]interface{}
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
			if tt.body != "" {
				assert.Equal(t, tt.body, body["error"])
			}
		})
	}
}

func TestChainTransactionErrorCarriesTxHash(t *testing.T) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/", nil)

	respondError(c, &domain.ChainTransactionError{Operation: "settleDuel", TxHash: "0xdead"})

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "0xdead", body["txHash"])
	assert.Equal(t, true, body["retryable"])
}
