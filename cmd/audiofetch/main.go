package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/audiofetch/audiofetch/internal/api"
	"github.com/audiofetch/audiofetch/internal/archive"
	"github.com/audiofetch/audiofetch/internal/cleanup"
	"github.com/audiofetch/audiofetch/internal/config"
	"github.com/audiofetch/audiofetch/internal/jobs"
	"github.com/audiofetch/audiofetch/internal/metrics"
	"github.com/audiofetch/audiofetch/internal/pipeline"
	"github.com/audiofetch/audiofetch/internal/ratelimit"
	"github.com/audiofetch/audiofetch/internal/storage"
)

func main() {
	// .env is optional; environment variables may be set directly
	if err := godotenv.Load(); err != nil {
		logrus.Debug("No .env file found")
	}

	cfg := config.Load()

	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logrus.SetLevel(level)
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	// Ensure working directories exist before anything opens them
	if err := os.MkdirAll(cfg.UploadDir, 0o755); err != nil {
		logrus.WithError(err).Fatal("Failed to create upload directory")
	}
	if dir := filepath.Dir(cfg.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			logrus.WithError(err).Fatal("Failed to create database directory")
		}
	}

	store, err := storage.NewStore(cfg.DatabasePath)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize storage")
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			logrus.WithError(closeErr).Warn("Failed to close storage")
		}
	}()

	runner, err := pipeline.NewRunner(pipeline.Config{
		BinPath:         cfg.YtdlpPath,
		OutputDir:       cfg.UploadDir,
		MetadataTimeout: cfg.MetadataTimeout,
		EncodeTimeout:   cfg.PipelineTimeout,
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize download pipeline")
	}

	mirror, err := archive.NewFromConfig(cfg)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize artifact archive")
	}

	mets := metrics.New()
	limiter := ratelimit.NewLimiter(cfg.RateLimitPerMinute, cfg.RateLimitWindow)
	manager := jobs.NewManager(store, runner, mirror, mets, cfg.DefaultQuality)
	sweeper := cleanup.NewSweeper(cfg.UploadDir, cfg.Retention(), store).WithMetrics(mets)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go sweeper.Start(ctx, cfg.SweepInterval)
	go limiter.Start(ctx)

	if cfg.LogLevel != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(api.RequestID())
	router.Use(api.RequestLogger())
	router.Use(api.CORS())

	handler := api.NewHandler(manager, sweeper)
	api.SetupRoutes(router, handler, api.RateLimit(limiter, mets))
	router.GET("/metrics", gin.WrapH(mets.Handler()))

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logrus.WithFields(logrus.Fields{
			"host": cfg.Host,
			"port": cfg.Port,
		}).Info("Starting audiofetch server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("Failed to start server")
		}
	}()

	// Wait for interrupt signal to gracefully shut down
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down server...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Fatal("Server forced to shutdown")
	}

	logrus.Info("Server exited")
}
