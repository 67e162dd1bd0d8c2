package db

import (
	"context"
	"fmt"
	"time"

	"typestake/internal/logger"
	"typestake/internal/retry"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolOptions tunes the pgx pool. Zero values keep the pgx defaults.
type PoolOptions struct {
	MaxConns        int32
	MaxConnIdleTime time.Duration
	// Ping is how long to keep retrying the first ping; postgres often starts
	// after the app under docker compose.
	Ping retry.Policy
}

// DefaultPoolOptions waits up to ~30s for postgres to accept connections.
var DefaultPoolOptions = PoolOptions{
	MaxConns:        10,
	MaxConnIdleTime: 5 * time.Minute,
	Ping:            retry.Exponential(8, 250*time.Millisecond, 8*time.Second),
}

// Open builds a pool and waits until postgres answers a ping.
func Open(ctx context.Context, dsn string, opts PoolOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	if opts.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = opts.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create database pool: %w", err)
	}

	err = opts.Ping.Do(ctx, func(ctx context.Context, attempt int) error {
		err := pool.Ping(ctx)
		if err != nil {
			logger.Debug("database not ready", "attempt", attempt, "error", err)
		}
		return err
	})
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Connect is Open with the default options; it exits the process on failure.
func Connect(ctx context.Context, dsn string) *pgxpool.Pool {
	pool, err := Open(ctx, dsn, DefaultPoolOptions)
	if err != nil {
		logger.Fatal("database unavailable", "error", err)
	}
	logger.Info("database connected", "max_conns", pool.Config().MaxConns)
	return pool
}
