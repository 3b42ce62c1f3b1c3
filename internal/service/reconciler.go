package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/config"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/repository"
)

// AccuracyReconciler reconciles one entity and period.
type AccuracyReconciler interface {
	ReconcileAccuracy(ctx context.Context, entityID string, period domain.Period) ([]*domain.AccuracyRecord, error)
}

// ReconcileJob is one unit of work of a reconciliation pass.
type ReconcileJob struct {
	EntityID string
	Period   domain.Period
}

// ReconcileSummary reports the outcome of a pass.
type ReconcileSummary struct {
	Jobs      int           `json:"jobs"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
	Duration  time.Duration `json:"duration"`
}

// Reconciler periodically reconciles the periods that just ended for every
// known entity and horizon using a bounded worker pool.
type Reconciler struct {
	engine   AccuracyReconciler
	entities repository.HistoryRepository
	workers  int
	limiter  *rate.Limiter
	interval time.Duration
	horizons []domain.Horizon
	now      func() time.Time
}

// NewReconciler creates a reconciler from the accuracy configuration.
func NewReconciler(engine AccuracyReconciler, entities repository.HistoryRepository, cfg config.AccuracyConfig) *Reconciler {
	workers := cfg.ReconcileWorkers
	if workers < 1 {
		workers = 1
	}

	limit := rate.Inf
	if cfg.ReconcileRatePerSecond > 0 {
		limit = rate.Limit(cfg.ReconcileRatePerSecond)
	}

	interval := time.Duration(cfg.ReconcileIntervalMins) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}

	return &Reconciler{
		engine:   engine,
		entities: entities,
		workers:  workers,
		limiter:  rate.NewLimiter(limit, workers),
		interval: interval,
		horizons: []domain.Horizon{domain.HorizonDaily, domain.HorizonWeekly, domain.HorizonMonthly},
		now:      time.Now,
	}
}

// Jobs lists the periods ending at asOf's calendar day for every entity.
func (r *Reconciler) Jobs(ctx context.Context, asOf time.Time) ([]ReconcileJob, error) {
	ids, err := r.entities.ListEntities(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}

	end := domain.TruncateDay(asOf)
	jobs := make([]ReconcileJob, 0, len(ids)*len(r.horizons))
	for _, id := range ids {
		for _, h := range r.horizons {
			jobs = append(jobs, ReconcileJob{
				EntityID: id,
				Period:   domain.Period{Horizon: h, Start: end.AddDate(0, 0, -h.Days())},
			})
		}
	}
	return jobs, nil
}

// RunOnce executes one reconciliation pass. Jobs for entities that vanished
// meanwhile are skipped; other job failures are logged and counted. Only a
// failure to list the work is returned.
func (r *Reconciler) RunOnce(ctx context.Context) (ReconcileSummary, error) {
	start := r.now()
	jobs, err := r.Jobs(ctx, start)
	if err != nil {
		return ReconcileSummary{}, err
	}

	summary := ReconcileSummary{Jobs: len(jobs)}
	var succeeded, failed, skipped atomic.Int64

	jobChan := make(chan ReconcileJob, len(jobs))
	var wg sync.WaitGroup

	// Start workers
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range jobChan {
				if err := r.limiter.Wait(ctx); err != nil {
					failed.Add(1)
					continue
				}
				if _, err := r.engine.ReconcileAccuracy(ctx, job.EntityID, job.Period); err != nil {
					if errors.Is(err, domain.ErrNotFound) {
						skipped.Add(1)
						log.Debug().Str("entity_id", job.EntityID).Msg("entity gone, reconcile skipped")
						continue
					}
					failed.Add(1)
					log.Warn().Err(err).
						Int("worker", workerID).
						Str("entity_id", job.EntityID).
						Str("horizon", string(job.Period.Horizon)).
						Msg("reconcile failed")
					continue
				}
				succeeded.Add(1)
			}
		}(i)
	}

	// Enqueue jobs
	for _, job := range jobs {
		jobChan <- job
	}
	close(jobChan)

	wg.Wait()

	summary.Succeeded = int(succeeded.Load())
	summary.Failed = int(failed.Load())
	summary.Skipped = int(skipped.Load())
	summary.Duration = r.now().Sub(start)

	log.Info().
		Int("jobs", summary.Jobs).
		Int("succeeded", summary.Succeeded).
		Int("failed", summary.Failed).
		Int("skipped", summary.Skipped).
		Dur("duration", summary.Duration).
		Msg("reconciliation pass completed")

	return summary, ctx.Err()
}

// Run executes a pass immediately and then every interval until ctx ends.
func (r *Reconciler) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if _, err := r.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error().Err(err).Msg("reconciliation pass failed")
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
