package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dvloznov/wa-finance/internal/api"
	"github.com/dvloznov/wa-finance/internal/api/handlers"
	"github.com/dvloznov/wa-finance/internal/app"
	"github.com/dvloznov/wa-finance/internal/archive"
	"github.com/dvloznov/wa-finance/internal/config"
	"github.com/dvloznov/wa-finance/internal/jobs"
	"github.com/dvloznov/wa-finance/internal/jobs/inmemory"
	"github.com/dvloznov/wa-finance/internal/logger"
)

// jobHistory is how many handled events stay visible on /api/jobs.
const jobHistory = 1000

func main() {
	cfg, err := config.Load()
	if err != nil {
		log := logger.New()
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.NewForEnv(cfg.Env, cfg.LogLevel)
	ctx := logger.WithContext(context.Background(), log)

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize service")
	}
	defer a.Close()

	// Initialize job infrastructure
	jobStore := inmemory.NewStore(jobHistory)
	jobQueue := inmemory.NewQueue(cfg.Queue.Buffer, cfg.Queue.Workers, jobStore)

	workerCtx, cancelWorker := context.WithCancel(ctx)
	defer cancelWorker()

	jobHandler := func(ctx context.Context, job *jobs.EventJob) error {
		res, err := a.Router.Handle(ctx, job.Event)
		job.Outcome = string(res.Outcome)
		job.Branch = string(res.Branch)
		return err
	}
	if err := jobQueue.Start(workerCtx, jobHandler); err != nil {
		log.Fatal().Err(err).Msg("Failed to start job workers")
	}
	log.Info().Int("workers", cfg.Queue.Workers).Int("buffer", cfg.Queue.Buffer).Msg("Job workers started")

	var archiver handlers.Archiver = archive.Nop{}
	if a.Archive != nil {
		archiver = a.Archive
	}
	var sheetsChecker handlers.SheetsChecker
	if a.Sheets != nil {
		sheetsChecker = a.Sheets
	}
	var db handlers.Pinger
	if a.Postgres != nil {
		db = a.Postgres
	}
	if cfg.VerifyToken == "" {
		log.Warn().Msg("VERIFY_TOKEN not set, webhook verification will be refused")
	}
	if cfg.AdminToken == "" {
		log.Warn().Msg("ADMIN_TOKEN not set, admin endpoints are disabled")
	}

	router := api.NewRouter(api.Deps{
		Log:        log,
		AdminToken: cfg.AdminToken,
		Webhook:    handlers.NewWebhookHandler(cfg.VerifyToken, cfg.WhatsApp.AppSecret, archiver, jobQueue),
		Send:       handlers.NewSendHandler(a.WhatsApp),
		Sheets:     handlers.NewSheetsHandler(sheetsChecker),
		Summary:    handlers.NewSummaryHandler(a.Store),
		Jobs:       handlers.NewJobsHandler(jobStore),
		DB:         db,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("Starting API server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Stop accepting webhooks first so nothing new is queued.
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Buffered events are still handled before the workers exit.
	if err := jobQueue.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Error stopping job queue")
	}
	cancelWorker()

	log.Info().Msg("Server exited")
}
