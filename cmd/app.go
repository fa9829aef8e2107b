package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"chequeo/internal/audit"
	"chequeo/internal/configuration"
	"chequeo/internal/engine"
	"chequeo/internal/history"
	"chequeo/internal/record"
	"chequeo/internal/record/ords"
	"chequeo/internal/record/sqlstore"
	"chequeo/internal/score"
	"chequeo/internal/telemetry"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app wires the store, the services and their ambient dependencies.
type app struct {
	config   *configuration.AppConfig
	store    record.Store
	repo     *record.Repository
	registry *prometheus.Registry
	recorder audit.Recorder
	runs     *history.Repository[int64, engine.RunSummary]
	scores   *score.Aggregator
	rules    *engine.Engine
	closers  []func() error
}

func newApp(ctx context.Context, config *configuration.AppConfig) (*app, error) {
	a := &app{config: config}

	store, err := a.openStore(ctx)
	if err != nil {
		return nil, err
	}
	a.store = store
	a.repo = record.NewRepository(store)

	a.registry = prometheus.NewRegistry()
	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := telemetry.NewMetrics(a.registry)

	a.recorder = audit.Nop{}
	if config.Audit.File != "" {
		recorder := audit.NewJSONRecorder(config.Audit.File, config.Audit.Size, config.Audit.Amount)
		a.recorder = recorder
		a.closers = append(a.closers, recorder.Close)
	}

	a.runs = history.NewRepository[int64, engine.RunSummary](config.History.Length, config.History.TTL)
	a.scores = score.NewAggregator(a.repo, metrics, a.recorder)
	a.rules = engine.NewEngine(a.repo, metrics, a.recorder, a.runs)
	return a, nil
}

func (a *app) openStore(ctx context.Context) (record.Store, error) {
	cfg := a.config.Store
	switch cfg.Backend {
	case configuration.BackendORDS:
		slog.Info("Using ORDS store", "url", cfg.ORDS.URL, "rate_limit", cfg.ORDS.RateLimit)
		return ords.NewClient(cfg.ORDS.URL, cfg.ORDS.Timeout, cfg.ORDS.RateLimit, cfg.ORDS.PageSize), nil

	case configuration.BackendSQL:
		slog.Info("Using SQL store", "driver", cfg.SQL.Driver)
		store, err := sqlstore.Open(ctx, cfg.SQL.Driver, cfg.SQL.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sql store: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		return a.seed(ctx, store)

	case configuration.BackendMemory:
		slog.Info("Using in-memory store")
		return a.seed(ctx, record.NewMemoryStore())
	}
	return nil, fmt.Errorf("unsupported store backend '%s'", cfg.Backend)
}

// seed loads the configured fixture into store.
func (a *app) seed(ctx context.Context, store record.Store) (record.Store, error) {
	if a.config.Store.Fixture == "" {
		return store, nil
	}
	n, err := record.LoadFixture(ctx, store, a.config.Store.Fixture)
	if err != nil {
		return nil, fmt.Errorf("load fixture: %w", err)
	}
	slog.Info("Fixture loaded", "file", a.config.Store.Fixture, "records", n)
	return store, nil
}

// Close releases the store and the audit log.
func (a *app) Close() error {
	var errs []error
	for _, c := range a.closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
