package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/examind/examportal-backend/internal/catalog"
	"github.com/examind/examportal-backend/internal/config"
	"github.com/examind/examportal-backend/internal/database"
	"github.com/examind/examportal-backend/internal/grading"
	"github.com/examind/examportal-backend/internal/handler"
	"github.com/examind/examportal-backend/internal/logger"
	"github.com/examind/examportal-backend/internal/recovery"
	"github.com/examind/examportal-backend/internal/repository"
	"github.com/examind/examportal-backend/internal/router"
	"github.com/examind/examportal-backend/internal/service"
	"github.com/examind/examportal-backend/internal/session"
	"github.com/examind/examportal-backend/internal/validator"
	"github.com/examind/examportal-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Examind Portal Backend")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	studentRepo := repository.NewStudentRepository(pool)
	assessmentRepo := repository.NewAssessmentRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	authService := service.NewAuthService(cfg, rdb)
	mediaService := service.NewMediaService(cfg)
	catalogService := catalog.NewService(assessmentRepo, rdb, log)

	// ─── Session Engine Wiring ─────────────────────────────────────────
	// Exams submit synchronously to Postgres and snapshot progress to
	// Redis; quiz attempts are graded locally and recorded via the queue.
	intake := grading.NewPgIntake(pool, log)
	recorder := grading.NewQueueRecorder(rdb)
	records := recovery.NewRedisStore(rdb)
	manager := session.NewManager(catalogService, intake, recorder, records, log, session.Options{
		Tick:          cfg.SessionTick,
		AutosaveEvery: cfg.AutosaveEvery,
	})

	// ─── Initialize Handlers ──────────────────────────────────────────
	sessionHandler := handler.NewSessionHandler(manager, catalogService)
	handlers := &router.Handlers{
		Auth:       handler.NewAuthHandler(authService, studentRepo),
		Session:    sessionHandler,
		Attachment: handler.NewAttachmentHandler(sessionHandler, mediaService),
		WS:         handler.NewWSHandler(manager, cfg, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())

	attemptWorker := worker.NewAttemptWorker(intake, rdb, log)
	go attemptWorker.Start(workerCtx)

	// ─── Prewarm Redis Caches ─────────────────────────────────────────
	// Load all assessment payloads into Redis BEFORE accepting traffic.
	// This avoids race conditions from lazy loading under thundering herd.
	if err := catalogService.PrewarmAll(ctx); err != nil {
		log.Warn().Err(err).Msg("Cache prewarm failed")
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg)

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

	// 2. Suspend running sessions so exam attempts survive the restart.
	manager.Close(shutdownCtx)

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	time.Sleep(2 * time.Second) // Allow workers to drain.

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
