package http

import (
	"time"

	"typestake/internal/http/handlers"
	"typestake/internal/http/middleware"
	"typestake/internal/ws"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouteConfig carries the knobs routes need from config.Config.
type RouteConfig struct {
	APIRateLimit    int
	APIRateWindow   time.Duration
	SettleRateLimit int
	AllowedOrigin   string
}

func RegisterRoutes(r *gin.Engine, h *handlers.Handler, health *handlers.HealthHandler, hub *ws.Hub, cfg RouteConfig) {
	if cfg.APIRateLimit <= 0 {
		cfg.APIRateLimit = 120
	}
	if cfg.APIRateWindow <= 0 {
		cfg.APIRateWindow = time.Minute
	}
	if cfg.SettleRateLimit <= 0 {
		cfg.SettleRateLimit = 20
	}

	r.Use(middleware.RequestID(), middleware.Metrics(), middleware.CORS(cfg.AllowedOrigin))

	// Health checks (no rate limiting)
	r.GET("/health", health.Health)
	r.GET("/healthz", health.Liveness)
	r.GET("/readyz", health.Readiness)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Push channel for duel watchers
	r.GET("/duel/ws", ws.HandleWS(hub, cfg.AllowedOrigin))

	api := r.Group("")
	api.Use(middleware.AccessLog(), middleware.WalletAuth(), middleware.RedisRateLimit("api", cfg.APIRateLimit, cfg.APIRateWindow))
	registerAPIRoutes(api, h, cfg)
}

func registerAPIRoutes(api *gin.RouterGroup, h *handlers.Handler, cfg RouteConfig) {
	// Signing endpoints get their own, tighter budget.
	settleRL := middleware.RedisRateLimit("settle", cfg.SettleRateLimit, cfg.APIRateWindow)
	gz := gzip.Gzip(gzip.DefaultCompression)

	api.POST("/settle", settleRL, h.Settle)

	duel := api.Group("/duel")
	{
		duel.POST("/submit", h.SubmitResult)
		duel.GET("/submit", h.FetchResults)
		duel.DELETE("/submit", h.CleanupResults)
		duel.POST("/settle", settleRL, h.SettleDuel)

		duel.POST("/record", h.RecordDuel)
		duel.GET("/record", gz, h.ListDuelRecords)
	}

	auth := api.Group("/auth")
	if h.WalletAuth != nil {
		auth.POST("/challenge", h.AuthChallenge)
		auth.POST("/verify", h.AuthVerify)
	}
	if h.Audit != nil {
		auth.GET("/activity", gz, h.Activity)
	}
}
