package main

// Admin CLI for city image enrichment:
//   go run ./cmd/enrichctl backfill
//   go run ./cmd/enrichctl enrich <city-id> --queue
//   go run ./cmd/enrichctl resolve Seoul --format json

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"travelog-backend/internal/bootstrap"
	"travelog-backend/internal/cli"
	"travelog-backend/internal/shared/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand(connect)
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func connect(ctx context.Context) (*cli.Backend, func() error, error) {
	cfg := config.Load()
	cfg.Process = "enrichctl"
	app, err := bootstrap.Build(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	app.RunProber()
	b := &cli.Backend{Runner: app.Coordinator, Resolver: app.Resolver}
	if app.Queue != nil {
		b.Queue = app.Queue
	}
	return b, app.Close, nil
}
