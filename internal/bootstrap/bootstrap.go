// Package bootstrap wires repositories, cache and services from configuration.
package bootstrap

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/cache"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/config"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/ingest"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/repository"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/repository/memory"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/repository/postgres"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/service"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/storage"
)

const (
	breakerMaxFailures = 5
	breakerCooldown    = 30 * time.Second
)

// App holds the wired components of a process.
type App struct {
	Config     *config.Config
	Engine     *service.ForecastEngine
	Reconciler *service.Reconciler
	Importer   *ingest.Importer
	Objects    storage.ObjectStorage
	Cache      *cache.ResultCache

	closers []func() error
}

// New builds the application. DB_DRIVER=memory keeps every store in process.
func New(cfg *config.Config) (*App, error) {
	app := &App{Config: cfg}

	var (
		history  repository.HistoryRepository
		sales    repository.SalesWriter
		results  repository.ResultStore
		accuracy repository.AccuracyStore
	)

	switch cfg.Database.Driver {
	case "memory":
		repo := memory.NewHistoryRepository()
		history, sales = repo, repo
		results = memory.NewResultStore()
		accuracy = memory.NewAccuracyStore()
		log.Warn().Msg("using in-memory repositories, data is lost on exit")
	default:
		db, err := postgres.NewDB(&cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		app.closers = append(app.closers, db.Close)

		repo := postgres.NewHistoryRepository(db)
		history, sales = repo, repo
		results = postgres.NewResultStore(db)
		accuracy = postgres.NewAccuracyStore(db)
	}

	history = repository.NewBreakerHistoryRepository(history, "history", breakerMaxFailures, breakerCooldown)

	remote, err := cache.NewRemoteStore(cfg.Cache)
	if err != nil {
		log.Warn().Err(err).Msg("redis unavailable, result cache is process-local")
		remote = cache.NewNoopRemoteStore()
	}
	app.Cache = cache.NewResultCache(cfg.Cache, remote)

	app.Engine, err = service.NewForecastEngine(cfg, service.Dependencies{
		History:  history,
		Sales:    sales,
		Results:  results,
		Accuracy: accuracy,
		Cache:    app.Cache,
	})
	if err != nil {
		app.Close()
		return nil, err
	}

	if cfg.Storage.Endpoint != "" {
		objects, err := storage.NewMinioClient(cfg.Storage)
		if err != nil {
			app.Close()
			return nil, err
		}
		app.Objects = objects
	}

	app.Reconciler = service.NewReconciler(app.Engine, history, cfg.Accuracy)
	app.Importer = ingest.NewImporter(app.Engine, app.Objects)
	return app, nil
}

// RunBackground runs the reconciler and the cache janitor until ctx ends.
func (a *App) RunBackground(ctx context.Context) {
	go func() {
		if err := a.Reconciler.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("reconciler stopped")
		}
	}()

	go func() {
		interval := time.Duration(a.Config.Cache.ResultTTLSeconds) * time.Second / 2
		if interval <= 0 {
			interval = time.Minute
		}
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := a.Cache.Purge(); n > 0 {
					log.Debug().Int("removed", n).Msg("expired predictions purged")
				}
			}
		}
	}()
}

// Close releases database connections.
func (a *App) Close() error {
	var firstErr error
	for _, c := range a.closers {
		if err := c(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	a.closers = nil
	return firstErr
}
