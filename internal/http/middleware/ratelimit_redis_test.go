package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Runs only against a live redis (REDIS_ADDR).
func TestRedisRateLimitPerWallet(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	dbIndex, _ := strconv.Atoi(os.Getenv("REDIS_DB"))
	client := InitRedisRateLimiter(addr, os.Getenv("REDIS_PASSWORD"), dbIndex)
	require.NotNil(t, client, "redis at %s did not answer ping", addr)
	t.Cleanup(func() {
		redisClient = nil
		_ = client.Close()
	})

	// unique limiter name so reruns inside the window start from zero
	name := fmt.Sprintf("settle-test-%d", time.Now().UnixNano())
	r := gin.New()
	r.POST("/settle", func(c *gin.Context) {
		if w := c.GetHeader("X-Wallet"); w != "" {
			c.Set("wallet", w)
		}
	}, RedisRateLimit(name, 2, 5*time.Second), func(c *gin.Context) { c.Status(http.StatusOK) })

	post := func(wallet string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/settle", nil)
		req.Header.Set("X-Wallet", wallet)
		return serve(r, req)
	}

	const alice = "0x70997970c51812dc3a010c7d01b50e0d17dc79c8"
	for i := 0; i < 2; i++ {
		w := post(alice)
		require.Equal(t, http.StatusOK, w.Code, "request %d", i)
		assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	}
	blocked := post(alice)
	assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
	assert.Equal(t, "0", blocked.Header().Get("X-RateLimit-Remaining"))

	// the counter is keyed by wallet, not by the shared test client IP
	assert.Equal(t, http.StatusOK, post("0x3c44cdddb6a900fa2b585dd299e03d12fa4293bc").Code)
}
