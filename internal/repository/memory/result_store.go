package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/repository"
)

// ResultStore provides in-memory prediction storage
type ResultStore struct {
	mu      sync.RWMutex
	results map[string][]*domain.PredictionResult
}

// NewResultStore creates a new in-memory result store
func NewResultStore() *ResultStore {
	return &ResultStore{results: make(map[string][]*domain.PredictionResult)}
}

var _ repository.ResultStore = (*ResultStore)(nil)

func (s *ResultStore) Save(ctx context.Context, result *domain.PredictionResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results[result.EntityID] = append(s.results[result.EntityID], result)
	return nil
}

func (s *ResultStore) FindBy(ctx context.Context, entityID string, period domain.Period) (*domain.PredictionResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	period = period.Normalize()
	var found *domain.PredictionResult
	for _, r := range s.results[entityID] {
		if r.Horizon != period.Horizon || !domain.TruncateDay(r.PredictionDate).Equal(period.Start) {
			continue
		}
		if found == nil || !r.GeneratedAt.Before(found.GeneratedAt) {
			found = r
		}
	}
	return found, nil
}

func (s *ResultStore) ListByEntity(ctx context.Context, entityID string, limit int) ([]*domain.PredictionResult, error) {
	s.mu.RLock()
	stored := s.results[entityID]
	out := make([]*domain.PredictionResult, len(stored))
	copy(out, stored)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].GeneratedAt.After(out[j].GeneratedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Count returns the number of stored predictions
func (s *ResultStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, rs := range s.results {
		n += len(rs)
	}
	return n
}
