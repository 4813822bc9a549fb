// Command seed imports a YAML control catalog for one user.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"

	"github.com/miporis/compliance-evaluator/internal/adapter/observability"
	"github.com/miporis/compliance-evaluator/internal/adapter/repo/postgres"
	"github.com/miporis/compliance-evaluator/internal/config"
	"github.com/miporis/compliance-evaluator/internal/seed"
	"github.com/miporis/compliance-evaluator/internal/usecase"
)

func main() {
	file := flag.String("file", "configs/controls.yaml", "catalog YAML file")
	userID := flag.String("user", "", "owner user id (overrides the file)")
	controlType := flag.String("type", "", "control type (overrides the file)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}
	slog.SetDefault(observability.SetupLogger(cfg))

	ctx := context.Background()
	pool, err := postgres.NewPool(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("db connect failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()
	if err := postgres.Migrate(ctx, pool); err != nil {
		slog.Error("migrate failed", slog.Any("error", err))
		os.Exit(1)
	}

	svc := usecase.NewControlService(postgres.NewControlRepo(pool), postgres.NewChatRepo(pool))
	n, err := seed.SeedFile(ctx, svc, *file, seed.Options{UserID: *userID, ControlType: *controlType})
	if err != nil {
		slog.Error("seed failed", slog.String("file", *file), slog.Any("error", err))
		os.Exit(1)
	}
	slog.Info("catalog imported", slog.String("file", *file), slog.Int("controls", n))
}
