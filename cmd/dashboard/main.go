package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/polymirror/polymirror/internal/config"
	"github.com/polymirror/polymirror/internal/pkg/logger"
	"github.com/polymirror/polymirror/internal/repository"
	"github.com/polymirror/polymirror/internal/server"
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

	srv := server.New(cfg.Server, settingsRepo, tradeRepo, nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go srv.WatchTrades(ctx, 2*time.Second)

	logger.Info("🚀 Dashboard started", "port", cfg.Server.Port)
	if err := srv.Run(ctx, cfg.Metrics); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	logger.Info("Server exiting")
}
