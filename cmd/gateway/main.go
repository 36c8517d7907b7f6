package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/sangammgr88/exam-portal-gateway/internal/config"
	"github.com/sangammgr88/exam-portal-gateway/internal/database"
	"github.com/sangammgr88/exam-portal-gateway/internal/handler"
	"github.com/sangammgr88/exam-portal-gateway/internal/logger"
	"github.com/sangammgr88/exam-portal-gateway/internal/router"
	"github.com/sangammgr88/exam-portal-gateway/internal/service"
	"github.com/sangammgr88/exam-portal-gateway/internal/session"
	"github.com/sangammgr88/exam-portal-gateway/internal/upstream"
	"github.com/sangammgr88/exam-portal-gateway/internal/validator"
	"github.com/sangammgr88/exam-portal-gateway/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("upstream", cfg.UpstreamBaseURL).
		Msg("Starting Exam Portal Gateway")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Upstream Client ───────────────────────────────────────────────
	client := upstream.New(cfg.UpstreamBaseURL, cfg.UpstreamTimeout, log)

	// ─── Attempt Hub and Workers ───────────────────────────────────────
	snapshotWorker := worker.NewSnapshotWorker(rdb, log, cfg.SnapshotTTL)

	// The retry worker and the hub reference each other; the queue side is
	// wired after the hub exists.
	var retryWorker *worker.SubmitRetryWorker
	hub := session.NewHub(client, client, snapshotWorker, session.RetryQueueFunc(func(id uuid.UUID) {
		retryWorker.Enqueue(id)
	}), log, cfg.AttemptRetention)
	retryWorker = worker.NewSubmitRetryWorker(rdb, hub, log)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	go snapshotWorker.Start(workerCtx)
	go retryWorker.Start(workerCtx)
	go hub.StartJanitor(workerCtx)

	// ─── Initialize Handlers ──────────────────────────────────────────
	reportService := service.NewReportService(client, log)
	handlers := &router.Handlers{
		Catalog: handler.NewCatalogHandler(client),
		Attempt: handler.NewAttemptHandler(hub),
		Report:  handler.NewReportHandler(reportService),
		Monitor: handler.NewMonitorHandler(hub, log),
		WS:      handler.NewWSHandler(hub, log, cfg.AllowedOrigins),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
