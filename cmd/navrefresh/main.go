package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"mf-portfolio-go/internal/app"
	"mf-portfolio-go/internal/config"
	"mf-portfolio-go/internal/logger"
	"mf-portfolio-go/internal/portfolio"

	"go.uber.org/zap"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Setup context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	// Database, NAV cache, NAV client and ledger
	a, err := app.New(ctx, &cfg, log)
	if err != nil {
		log.Fatal("Failed to initialize", zap.Error(err))
	}
	log.Info("Ledger loaded", zap.Int("transactions", a.Ledger.Len()))

	// Initialize and run the refresher
	refresher, err := portfolio.NewRefresher(a.Service, cfg.Refresh.Schedule, log)
	if err != nil {
		log.Fatal("Failed to create refresher", zap.Error(err))
	}
	refresher.Run(ctx)

	log.Info("NAV refresher has been shut down.")
}
