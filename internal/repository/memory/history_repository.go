package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/repository"
)

// HistoryRepository provides in-memory sales, context and profile storage
type HistoryRepository struct {
	mu       sync.RWMutex
	entities map[string]domain.Entity
	sales    map[string][]domain.SalesObservation
	contexts map[string]domain.ContextSnapshot
	profiles map[string]domain.EntityProfile
}

// NewHistoryRepository creates a new in-memory history repository
func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{
		entities: make(map[string]domain.Entity),
		sales:    make(map[string][]domain.SalesObservation),
		contexts: make(map[string]domain.ContextSnapshot),
		profiles: make(map[string]domain.EntityProfile),
	}
}

// Verify interface compliance
var (
	_ repository.HistoryRepository = (*HistoryRepository)(nil)
	_ repository.SalesWriter       = (*HistoryRepository)(nil)
)

// AddEntity registers an entity
func (r *HistoryRepository) AddEntity(e domain.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entities[e.ID] = e
}

// SetContext stores the latest context snapshot of an entity
func (r *HistoryRepository) SetContext(snapshot domain.ContextSnapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureEntity(snapshot.EntityID)
	r.contexts[snapshot.EntityID] = snapshot
}

// SetProfile stores the profile of an entity
func (r *HistoryRepository) SetProfile(profile domain.EntityProfile) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ensureEntity(profile.EntityID)
	r.profiles[profile.EntityID] = profile
}

func (r *HistoryRepository) ensureEntity(id string) {
	if _, ok := r.entities[id]; !ok {
		r.entities[id] = domain.Entity{ID: id, Status: "active"}
	}
}

// AppendSales stores observations; an observation for an existing day replaces it.
func (r *HistoryRepository) AppendSales(ctx context.Context, observations []domain.SalesObservation) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, obs := range observations {
		if strings.TrimSpace(obs.EntityID) == "" {
			return 0, fmt.Errorf("%w: observation %d has no entity id", domain.ErrInvalidInput, i)
		}
	}

	for _, obs := range observations {
		obs.Date = domain.TruncateDay(obs.Date)
		r.ensureEntity(obs.EntityID)

		existing := r.sales[obs.EntityID]
		idx := sort.Search(len(existing), func(i int) bool {
			return !existing[i].Date.Before(obs.Date)
		})
		if idx < len(existing) && existing[idx].Date.Equal(obs.Date) {
			existing[idx] = obs
			continue
		}
		existing = append(existing, domain.SalesObservation{})
		copy(existing[idx+1:], existing[idx:])
		existing[idx] = obs
		r.sales[obs.EntityID] = existing
	}
	return len(observations), nil
}

// GetSalesHistory returns the observations inside window ordered by date
func (r *HistoryRepository) GetSalesHistory(ctx context.Context, entityID string, window domain.Window) ([]domain.SalesObservation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.SalesObservation
	for _, obs := range r.sales[entityID] {
		if window.Contains(obs.Date) {
			out = append(out, obs)
		}
	}
	return out, nil
}

// GetContext returns the context snapshot of an entity, nil if none was stored
func (r *HistoryRepository) GetContext(ctx context.Context, entityID string) (*domain.ContextSnapshot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot, ok := r.contexts[entityID]
	if !ok {
		return nil, nil
	}
	return &snapshot, nil
}

// GetProfile returns the profile of an entity, nil if none was stored
func (r *HistoryRepository) GetProfile(ctx context.Context, entityID string) (*domain.EntityProfile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profile, ok := r.profiles[entityID]
	if !ok {
		return nil, nil
	}
	return &profile, nil
}

func (r *HistoryRepository) EntityExists(ctx context.Context, entityID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entities[entityID]
	return ok, nil
}

// ListEntities returns all entity ids in ascending order
func (r *HistoryRepository) ListEntities(ctx context.Context) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entities))
	for id := range r.entities {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}
