package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
)

type mockHistoryRepository struct {
	mock.Mock
}

func (m *mockHistoryRepository) GetSalesHistory(ctx context.Context, entityID string, window domain.Window) ([]domain.SalesObservation, error) {
	args := m.Called(ctx, entityID, window)
	history, _ := args.Get(0).([]domain.SalesObservation)
	return history, args.Error(1)
}

func (m *mockHistoryRepository) GetContext(ctx context.Context, entityID string) (*domain.ContextSnapshot, error) {
	args := m.Called(ctx, entityID)
	snapshot, _ := args.Get(0).(*domain.ContextSnapshot)
	return snapshot, args.Error(1)
}

func (m *mockHistoryRepository) GetProfile(ctx context.Context, entityID string) (*domain.EntityProfile, error) {
	args := m.Called(ctx, entityID)
	profile, _ := args.Get(0).(*domain.EntityProfile)
	return profile, args.Error(1)
}

func (m *mockHistoryRepository) EntityExists(ctx context.Context, entityID string) (bool, error) {
	args := m.Called(ctx, entityID)
	return args.Bool(0), args.Error(1)
}

func (m *mockHistoryRepository) ListEntities(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	ids, _ := args.Get(0).([]string)
	return ids, args.Error(1)
}

func TestBreakerHistoryRepository_PassesThrough(t *testing.T) {
	next := &mockHistoryRepository{}
	snapshot := &domain.ContextSnapshot{EntityID: "A1", Capacity: 10}
	next.On("GetContext", mock.Anything, "A1").Return(snapshot, nil)
	next.On("GetProfile", mock.Anything, "A1").Return(nil, nil)
	next.On("EntityExists", mock.Anything, "A1").Return(true, nil)

	repo := NewBreakerHistoryRepository(next, "history-test", 2, time.Minute)
	ctx := context.Background()

	got, err := repo.GetContext(ctx, "A1")
	require.NoError(t, err)
	assert.Same(t, snapshot, got)

	profile, err := repo.GetProfile(ctx, "A1")
	require.NoError(t, err)
	assert.Nil(t, profile)

	exists, err := repo.EntityExists(ctx, "A1")
	require.NoError(t, err)
	assert.True(t, exists)
	next.AssertExpectations(t)
}

func TestBreakerHistoryRepository_OpensAfterConsecutiveFailures(t *testing.T) {
	next := &mockHistoryRepository{}
	dbDown := errors.New("connection refused")
	next.On("ListEntities", mock.Anything).Return(nil, dbDown).Times(3)

	repo := NewBreakerHistoryRepository(next, "history-test", 2, time.Minute)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := repo.ListEntities(ctx)
		assert.ErrorIs(t, err, dbDown)
	}
	assert.Equal(t, gobreaker.StateOpen, repo.State())

	_, err := repo.ListEntities(ctx)
	assert.ErrorIs(t, err, gobreaker.ErrOpenState)
	next.AssertNumberOfCalls(t, "ListEntities", 3)
}

func TestBreakerHistoryRepository_CancellationDoesNotTrip(t *testing.T) {
	next := &mockHistoryRepository{}
	next.On("ListEntities", mock.Anything).Return(nil, context.Canceled)

	repo := NewBreakerHistoryRepository(next, "history-test", 1, time.Minute)
	for i := 0; i < 5; i++ {
		_, err := repo.ListEntities(context.Background())
		assert.ErrorIs(t, err, context.Canceled)
	}
	assert.Equal(t, gobreaker.StateClosed, repo.State())
}
