package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const limiterIdle = 10 * time.Minute

type clientInfo struct {
	limiter *rate.Limiter
	last    time.Time
}

// localLimiter keeps one token bucket per client key in process memory.
type localLimiter struct {
	mu      sync.Mutex
	clients map[string]*clientInfo
	every   rate.Limit
	burst   int
	swept   time.Time
}

func newLocalLimiter(maxRequests int, window time.Duration) *localLimiter {
	if maxRequests <= 0 {
		maxRequests = 1
	}
	return &localLimiter{
		clients: make(map[string]*clientInfo),
		every:   rate.Every(window / time.Duration(maxRequests)),
		burst:   maxRequests,
		swept:   time.Now(),
	}
}

func (l *localLimiter) allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.Sub(l.swept) > limiterIdle {
		for k, ci := range l.clients {
			if now.Sub(ci.last) > limiterIdle {
				delete(l.clients, k)
			}
		}
		l.swept = now
	}

	ci, ok := l.clients[key]
	if !ok {
		ci = &clientInfo{limiter: rate.NewLimiter(l.every, l.burst)}
		l.clients[key] = ci
	}
	ci.last = now
	return ci.limiter.Allow()
}

// SimpleRateLimit allows a burst of maxRequests per client IP, refilled evenly
// over window. Used when Redis is not configured.
func SimpleRateLimit(name string, maxRequests int, window time.Duration) gin.HandlerFunc {
	l := newLocalLimiter(maxRequests, window)
	return func(c *gin.Context) {
		if !l.allow(rateKey(c)) {
			rateLimitBlocked.WithLabelValues(name).Inc()
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
			return
		}
		rateLimitAllowed.WithLabelValues(name).Inc()
		c.Next()
	}
}

// rateKey limits authenticated wallets by address and everyone else by IP.
func rateKey(c *gin.Context) string {
	if v, ok := c.Get("wallet"); ok {
		if addr, ok := v.(string); ok && addr != "" {
			return "w:" + addr
		}
	}
	return "ip:" + c.ClientIP()
}
