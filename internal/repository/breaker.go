package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker/v2"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
)

// BreakerHistoryRepository fails fast while the wrapped repository keeps failing.
type BreakerHistoryRepository struct {
	next    HistoryRepository
	breaker *gobreaker.CircuitBreaker[any]
}

var _ HistoryRepository = (*BreakerHistoryRepository)(nil)

// NewBreakerHistoryRepository wraps next with a circuit breaker that opens
// after more than maxFailures consecutive failures and probes again after cooldown.
func NewBreakerHistoryRepository(next HistoryRepository, name string, maxFailures uint32, cooldown time.Duration) *BreakerHistoryRepository {
	cb := gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     cooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > maxFailures
		},
		IsSuccessful: func(err error) bool {
			// caller cancellations and bad requests say nothing about backend health
			return err == nil ||
				errors.Is(err, context.Canceled) ||
				errors.Is(err, domain.ErrInvalidInput) ||
				errors.Is(err, domain.ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state changed")
		},
	})
	return &BreakerHistoryRepository{next: next, breaker: cb}
}

// State returns the current breaker state.
func (r *BreakerHistoryRepository) State() gobreaker.State {
	return r.breaker.State()
}

func guarded[T any](cb *gobreaker.CircuitBreaker[any], fn func() (T, error)) (T, error) {
	v, err := cb.Execute(func() (any, error) {
		res, err := fn()
		return res, err
	})
	if err != nil {
		var zero T
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return zero, fmt.Errorf("history repository unavailable: %w", err)
		}
		return zero, err
	}
	return v.(T), nil
}

func (r *BreakerHistoryRepository) GetSalesHistory(ctx context.Context, entityID string, window domain.Window) ([]domain.SalesObservation, error) {
	return guarded(r.breaker, func() ([]domain.SalesObservation, error) {
		return r.next.GetSalesHistory(ctx, entityID, window)
	})
}

func (r *BreakerHistoryRepository) GetContext(ctx context.Context, entityID string) (*domain.ContextSnapshot, error) {
	return guarded(r.breaker, func() (*domain.ContextSnapshot, error) {
		return r.next.GetContext(ctx, entityID)
	})
}

func (r *BreakerHistoryRepository) GetProfile(ctx context.Context, entityID string) (*domain.EntityProfile, error) {
	return guarded(r.breaker, func() (*domain.EntityProfile, error) {
		return r.next.GetProfile(ctx, entityID)
	})
}

func (r *BreakerHistoryRepository) EntityExists(ctx context.Context, entityID string) (bool, error) {
	return guarded(r.breaker, func() (bool, error) {
		return r.next.EntityExists(ctx, entityID)
	})
}

func (r *BreakerHistoryRepository) ListEntities(ctx context.Context) ([]string, error) {
	return guarded(r.breaker, func() ([]string, error) {
		return r.next.ListEntities(ctx)
	})
}
