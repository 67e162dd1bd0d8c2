package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	"github.com/samber/lo"
)

func provider(pool *pgxpool.Pool, fsys fs.FS) (*goose.Provider, func(), error) {
	sqlDB := stdlib.OpenDBFromPool(pool)
	p, err := goose.NewProvider(goose.DialectPostgres, sqlDB, fsys)
	if err != nil {
		_ = sqlDB.Close()
		return nil, nil, fmt.Errorf("load migrations: %w", err)
	}
	return p, func() { _ = sqlDB.Close() }, nil
}

// Pending lists the migrations in fsys that have not been applied yet.
func Pending(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]string, error) {
	p, closeDB, err := provider(pool, fsys)
	if err != nil {
		return nil, err
	}
	defer closeDB()

	status, err := p.Status(ctx)
	if err != nil {
		return nil, err
	}
	pending := lo.Filter(status, func(s *goose.MigrationStatus, _ int) bool { return s.State == goose.StatePending })
	return lo.Map(pending, func(s *goose.MigrationStatus, _ int) string { return s.Source.Path }), nil
}

// Migrate applies every pending migration, each in its own transaction, and
// returns the files it applied. On failure the files applied before the
// failing one are still returned alongside the error.
func Migrate(ctx context.Context, pool *pgxpool.Pool, fsys fs.FS) ([]string, error) {
	p, closeDB, err := provider(pool, fsys)
	if err != nil {
		return nil, err
	}
	defer closeDB()

	results, err := p.Up(ctx)
	if err != nil {
		var partial *goose.PartialError
		if errors.As(err, &partial) {
			return sourcePaths(partial.Applied), fmt.Errorf("migrate: %w", err)
		}
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return sourcePaths(results), nil
}

func sourcePaths(results []*goose.MigrationResult) []string {
	return lo.Map(results, func(r *goose.MigrationResult, _ int) string { return r.Source.Path })
}
