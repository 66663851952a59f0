package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/polymirror/polymirror/internal/chain"
	"github.com/polymirror/polymirror/internal/config"
	"github.com/polymirror/polymirror/internal/engine"
	"github.com/polymirror/polymirror/internal/executor"
	"github.com/polymirror/polymirror/internal/market"
	"github.com/polymirror/polymirror/internal/pkg/logger"
	"github.com/polymirror/polymirror/internal/repository"
	"github.com/polymirror/polymirror/internal/supervisor"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)

	db, err := repository.NewDB(cfg.Database)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	logger.Info("✅ Connected to PostgreSQL")

	settingsRepo := repository.NewPostgresSettingsRepo(db)
	if err := settingsRepo.EnsureDefaults(context.Background()); err != nil {
		log.Fatalf("Failed to seed settings: %v", err)
	}
	tradeRepo := repository.NewPostgresTradeRepo(db)

	chainClient, err := chain.NewClient(cfg.Chain)
	if err != nil {
		log.Fatalf("Failed to initialize chain client: %v", err)
	}

	exec, err := executor.New(cfg.Polymarket)
	if err != nil {
		log.Fatalf("Failed to initialize executor: %v", err)
	}

	resolver := market.NewResolver(cfg.Gamma)
	eng := engine.New(cfg.Listener, settingsRepo, resolver, exec, exec, tradeRepo)
	sup := supervisor.New(cfg.Listener, chainClient, settingsRepo, eng)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle(cfg.Metrics.Path, promhttp.Handler())
			if err := http.ListenAndServe(":"+cfg.Metrics.Port, mux); err != nil {
				logger.Warn("metrics listener stopped", "error", err)
			}
		}()
	}

	logger.Info("🚀 Mirror bot started",
		"contract", cfg.Chain.ContractAddress,
		"poll_interval_ms", cfg.Listener.PollIntervalMs)

	if err := sup.Run(ctx); err != nil && ctx.Err() == nil {
		log.Fatalf("Watcher stopped: %v", err)
	}
	logger.Info("Bot exiting")
}
