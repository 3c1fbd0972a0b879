package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/originality/observability"
	"github.com/hazyhaar/originality/shield"
	"github.com/hazyhaar/originality/submission"
)

var serveFlags struct {
	retentionDays int
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Long: `Serves the submission API on LISTEN (default :8090):

  POST /v1/submissions               multipart upload (course, assignment, student, file)
  GET  /v1/artifacts/<path>          stored original or report
  GET  /v1/scans?status=pending      scans awaiting a verdict
  GET  /v1/scans/<id>                asynchronous scan status
  POST /api/plagiarism/webhook/<id>  Copyleaks completion webhook
  GET  /v1/health                    provider breaker state, pending scans`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().IntVar(&serveFlags.retentionDays, "retention-days", 30, "days of metrics and events to keep")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg.LogLevel, os.Stdout)

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	hb := observability.NewHeartbeatWriter(a.db, "originality-serve", 15*time.Second,
		observability.WithHeartbeatLogger(logger),
		observability.WithBacklog(a.tracker.PendingCount),
	)
	hb.Start(ctx)
	defer hb.Stop()

	go retentionLoop(ctx, a, serveFlags.retentionDays)

	if err := shield.Init(ctx, a.db); err != nil {
		return err
	}
	proxies, err := shield.ParseTrustedProxies(cfg.TrustedProxies)
	if err != nil {
		return err
	}
	rl := shield.NewRateLimiter(ctx, a.db,
		shield.WithRateLimitLogger(logger),
		shield.WithTrustedProxies(proxies),
	)
	rl.StartReloader(ctx)

	srv := &http.Server{
		Addr: cfg.Listen,
		Handler: submission.NewRouter(a.pipeline, submission.HTTPConfig{
			MaxUploadBytes: cfg.MaxUploadBytes(),
			Tracker:        a.tracker,
			Events:         a.events,
			Logger:         logger,
			RateLimiter:    rl,
		}),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.Scoring.Timeout + 60*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", cfg.Listen)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
	logger.Info("server stopped")
	return nil
}

// retentionLoop prunes old metrics, events and heartbeats once a day.
func retentionLoop(ctx context.Context, a *app, days int) {
	if days <= 0 {
		return
	}
	rc := observability.RetentionConfig{MetricsDays: days, EventsDays: days, HeartbeatsDays: 7}
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		if err := observability.Cleanup(ctx, a.db, rc); err != nil {
			a.logger.Warn("retention cleanup failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
