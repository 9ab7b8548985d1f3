package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GeorgeAndreouGA/libero-sub000/internal/api/rest"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/app"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/config"
	"github.com/GeorgeAndreouGA/libero-sub000/internal/db"
	"github.com/GeorgeAndreouGA/libero-sub000/pkg/logger"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.LoadConfig(".")
	if err != nil {
		logger.New("info").Fatalw("Failed to load configuration", "error", err)
	}

	log := logger.New(cfg.Logging.Level)
	log.Infow("Libero subscription service starting up")

	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	pool, err := db.NewPool(ctx, cfg.Database.DSN, log)
	if err != nil {
		log.Fatalw("Failed to connect to database", "error", err)
	}
	defer pool.Close()

	application, err := app.NewApp(ctx, cfg, pool, log)
	if err != nil {
		log.Fatalw("Failed to initialize application", "error", err)
	}
	defer application.Close()

	server := rest.NewServer(application.Router, cfg, log)
	go func() {
		if err := server.Start(); err != nil {
			log.Fatalw("HTTP server failed", "error", err)
		}
	}()

	go application.ExpiryWorker.Run(ctx)
	go application.ReminderWorker.Run(ctx)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("Shutdown signal received")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(
		context.Background(),
		time.Duration(cfg.App.ShutdownTimeout)*time.Second,
	)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("HTTP server shutdown error", "error", err)
	}

	log.Infow("Shutdown complete")
}
