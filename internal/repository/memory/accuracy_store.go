package memory

import (
	"context"
	"sync"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/repository"
)

// AccuracyStore provides in-memory accuracy record storage
type AccuracyStore struct {
	mu         sync.RWMutex
	records      map[string][]*domain.AccuracyRecord
	byPrediction map[string]*domain.AccuracyRecord
	accuracies   map[string]domain.ModelAccuracy
}

// NewAccuracyStore creates a new in-memory accuracy store
func NewAccuracyStore() *AccuracyStore {
	return &AccuracyStore{
		records:      make(map[string][]*domain.AccuracyRecord),
		byPrediction: make(map[string]*domain.AccuracyRecord),
		accuracies:   make(map[string]domain.ModelAccuracy),
	}
}

var _ repository.AccuracyStore = (*AccuracyStore)(nil)

// Append stores record. A prediction is reconciled at most once; a second
// record for the same prediction is ignored.
func (s *AccuracyStore) Append(ctx context.Context, record *domain.AccuracyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byPrediction[record.PredictionID]; ok {
		return nil
	}
	s.byPrediction[record.PredictionID] = record
	s.records[record.EntityID] = append(s.records[record.EntityID], record)
	return nil
}

func (s *AccuracyStore) FindByPrediction(ctx context.Context, predictionID string) (*domain.AccuracyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.byPrediction[predictionID], nil
}

// Recent returns up to n records, newest first
func (s *AccuracyStore) Recent(ctx context.Context, entityID string, n int) ([]*domain.AccuracyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stored := s.records[entityID]
	if n <= 0 || n > len(stored) {
		n = len(stored)
	}
	out := make([]*domain.AccuracyRecord, 0, n)
	for i := len(stored) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}

func (s *AccuracyStore) SaveModelAccuracy(ctx context.Context, acc *domain.ModelAccuracy) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accuracies[acc.EntityID] = *acc
	return nil
}

func (s *AccuracyStore) GetModelAccuracy(ctx context.Context, entityID string) (*domain.ModelAccuracy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.accuracies[entityID]
	if !ok {
		return nil, nil
	}
	return &acc, nil
}
