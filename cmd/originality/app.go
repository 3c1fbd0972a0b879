package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/hazyhaar/originality/artifact"
	"github.com/hazyhaar/originality/dbopen"
	"github.com/hazyhaar/originality/docpipe"
	"github.com/hazyhaar/originality/observability"
	"github.com/hazyhaar/originality/scoring"
	"github.com/hazyhaar/originality/submission"
)

// app holds every collaborator of the pipeline, built once per command.
type app struct {
	cfg      *submission.Config
	logger   *slog.Logger
	db       *sql.DB
	metrics  *observability.MetricsManager
	events   *observability.EventLogger
	tracker  *scoring.ScanTracker
	cache    *scoring.RedisCache
	engine   *scoring.Engine
	docs     *docpipe.Pipeline
	store    *artifact.Store
	pub      submission.Publisher
	pipeline *submission.Pipeline
}

func newApp(ctx context.Context, cfg *submission.Config, logger *slog.Logger) (*app, error) {
	a := &app{cfg: cfg, logger: logger}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	db, err := dbopen.Open(cfg.DBPath(), dbopen.WithMkdirAll(), dbopen.WithSchema(observability.Schema))
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBPath(), err)
	}
	a.db = db

	a.metrics = observability.NewMetricsManager(db, 100, 5*time.Second, observability.WithMetricsLogger(logger))
	a.events = observability.NewEventLogger(db, observability.WithEventLogger(logger))
	if a.tracker, err = scoring.NewScanTracker(db); err != nil {
		return nil, err
	}

	scfg := cfg.Scoring
	scfg.Logger = logger
	scfg.Metrics = a.metrics
	scfg.Tracker = a.tracker
	if cfg.Redis.Addr != "" {
		a.cache, err = scoring.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			// The cache is an optimisation: run without it.
			logger.Warn("redis unavailable, score cache disabled", "addr", cfg.Redis.Addr, "error", err)
		} else {
			scfg.Cache = a.cache
		}
	}
	a.engine = scoring.NewEngine(scfg)

	a.docs = docpipe.New(docpipe.Config{MaxFileSize: cfg.MaxUploadBytes(), Logger: logger})

	storeCfg := cfg.Storage
	storeCfg.Logger = logger
	if a.store, err = artifact.New(ctx, storeCfg); err != nil {
		return nil, fmt.Errorf("artifact store: %w", err)
	}

	opts := []submission.Option{
		submission.WithLogger(logger),
		submission.WithMetrics(a.metrics),
		submission.WithEvents(a.events),
		submission.WithMaxUploadBytes(cfg.MaxUploadBytes()),
	}
	if len(cfg.Kafka.Brokers) > 0 {
		pub, err := submission.NewKafkaPublisher(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, err
		}
		a.pub = pub
		opts = append(opts, submission.WithPublisher(pub))
	}
	a.pipeline = submission.New(a.store, a.docs, a.engine, opts...)

	logger.Info("originality ready",
		"provider", a.engine.ProviderName(),
		"storage", cfg.Storage.Backend,
		"cache", a.cache != nil,
		"kafka", a.pub != nil,
	)
	ok = true
	return a, nil
}

// Close releases resources in reverse construction order. Safe on a
// partially built app.
func (a *app) Close() {
	if a.pub != nil {
		if err := a.pub.Close(); err != nil {
			a.logger.Warn("close publisher", "error", err)
		}
	}
	if a.engine != nil {
		a.engine.Close()
	}
	if a.cache != nil {
		a.cache.Close()
	}
	if a.metrics != nil {
		a.metrics.Close()
	}
	if a.db != nil {
		a.db.Close()
	}
}
