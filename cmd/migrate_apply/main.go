package main

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"typestake/internal/db"
	"typestake/internal/logger"
	"typestake/internal/migrations"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v3"
)

func main() {
	_ = godotenv.Load()

	//nolint:exhaustruct
	cmd := &cli.Command{
		Name:  "migrate_apply",
		Usage: "list or apply pending schema migrations",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:     "database-url",
				Required: true,
				Sources:  cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:  "dir",
				Usage: "read migrations from this directory instead of the embedded set",
			},
			&cli.BoolFlag{
				Name:  "apply",
				Usage: "apply pending migrations instead of listing them",
			},
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
		},
		Action: run,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		logger.Fatal("migrate failed", "error", err)
	}
}

func run(ctx context.Context, cmd *cli.Command) error {
	logger.InitWriter(os.Stderr, cmd.String("log-level"), false)

	pool, err := db.Open(ctx, cmd.String("database-url"), db.DefaultPoolOptions)
	if err != nil {
		return err
	}
	defer pool.Close()

	var fsys fs.FS = migrations.FS
	if dir := cmd.String("dir"); dir != "" {
		fsys = os.DirFS(dir)
	}
	if !cmd.Bool("apply") {
		pending, err := db.Pending(ctx, pool, fsys)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("schema is up to date")
		}
		for _, name := range pending {
			fmt.Println("pending", name)
		}
		return nil
	}

	applied, err := db.Migrate(ctx, pool, fsys)
	for _, name := range applied {
		logger.Info("applied migration", "name", name)
	}
	if err != nil {
		return err
	}
	logger.Info("schema is up to date", "applied", len(applied))
	return nil
}
