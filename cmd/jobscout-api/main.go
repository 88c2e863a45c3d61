package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/adityawiguna/jobscout-api/internal/antidetect"
	"github.com/adityawiguna/jobscout-api/internal/browser/remote"
	"github.com/adityawiguna/jobscout-api/internal/config"
	"github.com/adityawiguna/jobscout-api/internal/export/xlsx"
	"github.com/adityawiguna/jobscout-api/internal/job"
	"github.com/adityawiguna/jobscout-api/internal/orchestrator"
	"github.com/adityawiguna/jobscout-api/internal/platform/sqlite"
	jobrepo "github.com/adityawiguna/jobscout-api/internal/repository/job"
	sessionrepo "github.com/adityawiguna/jobscout-api/internal/repository/session"
	"github.com/adityawiguna/jobscout-api/internal/scraper"
	"github.com/adityawiguna/jobscout-api/internal/scraper/linkedin"
	"github.com/adityawiguna/jobscout-api/internal/server"
	"github.com/adityawiguna/jobscout-api/internal/session"
)

func main() {
	cfg := config.Load()

	// Root context: cancelled on SIGINT/SIGTERM so in-flight scraping
	// sessions stop promptly during graceful shutdown.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Open database
	db, err := sqlite.Open(cfg.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()

	// Repositories
	sessionRepo := sessionrepo.NewRepository(db.DB)
	jobRepo := jobrepo.NewRepository(db.DB)

	// Browser automation backend
	browserClient := remote.New(cfg.BrowserEndpoint, remote.WithToken(cfg.BrowserToken))
	navFactory := func(ctx context.Context, engine *antidetect.Engine) (scraper.Navigator, func(), error) {
		page, err := browserClient.NewPage(ctx)
		if err != nil {
			return nil, nil, err
		}
		cleanup := func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := page.Close(closeCtx); err != nil {
				slog.Warn("close browser page", "error", err)
			}
		}
		return linkedin.New(page, engine), cleanup, nil
	}

	// Export sink
	orchOpts := []orchestrator.Option{}
	if cfg.ExportEnabled {
		if err := os.MkdirAll(cfg.ExportDir, 0o755); err != nil {
			slog.Error("failed to create export directory", "dir", cfg.ExportDir, "error", err)
			os.Exit(1)
		}
		sink := xlsx.New(cfg.ExportDir, xlsx.WithBaseURL(cfg.ExportBaseURL))
		orchOpts = append(orchOpts, orchestrator.WithSink(sink))
	}

	orch := orchestrator.New(sessionRepo, jobRepo, navFactory, orchestrator.Config{
		MaxPages:       cfg.MaxPages,
		MaxRetries:     cfg.MaxRetries,
		PriorityCities: cfg.PriorityCities,
		PageDelayMin:   cfg.PageDelayMin,
		PageDelayMax:   cfg.PageDelayMax,
		ExportEnabled:  cfg.ExportEnabled,
	}, orchOpts...)

	// Services
	sessionSvc := session.NewService(sessionRepo)
	jobSvc := job.NewService(jobRepo)

	// Worker pool: picks up pending sessions in the background
	pool := session.NewWorkerPool(sessionRepo, orch, cfg.Workers)
	sessionSvc.SetNotify(pool.Notify)
	poolDone := make(chan struct{})
	go func() {
		pool.Run(rootCtx)
		close(poolDone)
	}()

	// Sessions a previous process left running cannot be resumed mid-page;
	// fail them so users can retry.
	if err := sessionSvc.RecoverInterrupted(rootCtx); err != nil {
		slog.Error("failed to recover interrupted sessions", "error", err)
	}
	pool.Notify()

	// HTTP server — rootCtx is used as BaseContext so every request context
	// inherits from it and is cancelled on shutdown.
	srv := server.New(rootCtx, cfg.Port, sessionSvc, jobSvc, server.WithExportDir(cfg.ExportDir))

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("server started", "port", cfg.Port)
	<-done

	// Cancel root context first so in-flight sessions persist their partial
	// results and wind down.
	rootCancel()

	// Wait for worker pool to drain before shutting down HTTP.
	<-poolDone

	// Then drain connections with a deadline.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	slog.Info("server stopped")
}
