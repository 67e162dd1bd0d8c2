package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"typestake/internal/chain"
	"typestake/internal/config"
	"typestake/internal/db"
	httpServer "typestake/internal/http"
	"typestake/internal/http/handlers"
	"typestake/internal/http/middleware"
	"typestake/internal/logger"
	"typestake/internal/migrations"
	"typestake/internal/repository"
	"typestake/internal/service"
	"typestake/internal/signer"
	"typestake/internal/ws"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"
)

func main() {
	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogJSON)
	service.InitJWT(cfg.JWTSecret)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	health := handlers.NewHealthHandler(cfg.AppVersion)

	var (
		results service.ResultStore
		records service.RecordStore
		audits  service.AuditStore
	)
	if cfg.ResultStore == config.ResultStorePostgres {
		dbPool := db.Connect(ctx, cfg.DatabaseURL)
		defer dbPool.Close()
		if cfg.AutoMigrate {
			applied, err := db.Migrate(ctx, dbPool, migrations.FS)
			if err != nil {
				logger.Fatal("migrations failed", "applied", applied, "error", err)
			}
			logger.Info("migrations applied", "count", len(applied))
		}
		results = repository.NewDuelResultRepository(dbPool)
		records = repository.NewDuelRecordRepository(dbPool)
		audits = repository.NewAuditRepository(dbPool)
		health.Register("database", true, dbPool.Ping)
	} else {
		logger.Warn("using in-memory result store; results are lost on restart")
		results = repository.NewMemoryDuelResultStore()
		records = repository.NewMemoryDuelRecordStore()
		audits = repository.NewMemoryAuditStore()
	}
	audit := service.NewAuditService(audits)

	sign, err := signer.New(cfg.VerifierPrivateKey, audit)
	if err != nil {
		logger.Fatal("invalid verifier key", "error", err)
	}
	logger.Info("verifier loaded", "address", sign.Address().Hex())

	hub := ws.NewHub()
	hub.StartCleanup()

	// one group for everything that runs until shutdown; the first failure stops the rest
	g, gctx := errgroup.WithContext(ctx)

	var reader chain.StateReader
	if cfg.HasContract() {
		client, chainID, err := chain.Dial(ctx, cfg.RPCURL)
		if err != nil {
			logger.Fatal("failed to reach rpc", "error", err)
		}
		defer client.Close()
		reader = chain.NewContract(cfg.ContractAddress, client, nil)
		health.Register("chain", false, func(ctx context.Context) error {
			_, err := client.BlockNumber(ctx)
			return err
		})

		watcher := chain.NewWatcher(client, cfg.ContractAddress, chain.DefaultWatchInterval)
		events := watcher.Subscribe(chain.Filter{})
		g.Go(func() error {
			ws.Relay(hub, events.C())
			return nil
		})
		g.Go(func() error {
			watcher.Run(gctx)
			return nil
		})
		logger.Info("contract checks enabled", "contract", cfg.ContractAddress.Hex(), "chain_id", chainID.String())
	} else {
		logger.Warn("CONTRACT_ADDRESS not set; duel players are taken from the request")
	}

	redisClient := middleware.InitRedisRateLimiter(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	var nonces service.NonceStore = service.NewMemoryNonceStore()
	if redisClient != nil {
		defer redisClient.Close()
		nonces = service.NewRedisNonceStore(redisClient)
		health.Register("redis", false, func(ctx context.Context) error { return redisClient.Ping(ctx).Err() })
	}

	resultSync := service.NewResultSyncService(results, hub).WithReader(reader)
	hub.SetSnapshot(func(ctx context.Context, duelID uint64) (interface{}, error) {
		res, err := resultSync.Fetch(ctx, duelID)
		if err != nil {
			return nil, err
		}
		return ws.ResultsSnapshot{Results: res, Complete: len(res) >= 2}, nil
	})

	h := handlers.NewHandler(
		service.NewSettlementService(sign, results, reader),
		resultSync,
		service.NewDuelRecordService(records, audit),
		service.NewWalletAuthService(nonces, audit),
	)
	h.RequireWalletAuth = cfg.RequireWalletAuth
	h.Audit = audit

	r := gin.New()
	r.Use(gin.Recovery())
	httpServer.RegisterRoutes(r, h, health, hub, httpServer.RouteConfig{
		APIRateLimit:    cfg.APIRateLimit,
		APIRateWindow:   time.Duration(cfg.APIRateWindow) * time.Second,
		SettleRateLimit: cfg.SettleRateLimit,
		AllowedOrigin:   cfg.AllowedOrigin,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g.Go(func() error {
		logger.Info("server started", "port", cfg.AppPort, "version", cfg.AppVersion)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		logger.Error("server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("server exited")
}
