package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/config"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
)

type mockHistoryRepository struct {
	mock.Mock
}

func (m *mockHistoryRepository) GetSalesHistory(ctx context.Context, entityID string, window domain.Window) ([]domain.SalesObservation, error) {
	args := m.Called(ctx, entityID, window)
	obs, _ := args.Get(0).([]domain.SalesObservation)
	return obs, args.Error(1)
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

type mockAccuracyReconciler struct {
	mock.Mock
}

func (m *mockAccuracyReconciler) ReconcileAccuracy(ctx context.Context, entityID string, period domain.Period) ([]*domain.AccuracyRecord, error) {
	args := m.Called(ctx, entityID, period)
	records, _ := args.Get(0).([]*domain.AccuracyRecord)
	return records, args.Error(1)
}

func reconcilerConfig() config.AccuracyConfig {
	cfg := config.Default().Accuracy
	cfg.ReconcileWorkers = 3
	cfg.ReconcileRatePerSecond = 0
	return cfg
}

func TestReconciler_JobsCoverEveryEntityAndHorizon(t *testing.T) {
	history := &mockHistoryRepository{}
	history.On("ListEntities", mock.Anything).Return([]string{"A1", "B2"}, nil)

	r := NewReconciler(&mockAccuracyReconciler{}, history, reconcilerConfig())
	jobs, err := r.Jobs(context.Background(), testAsOf)
	require.NoError(t, err)
	require.Len(t, jobs, 6)

	today := domain.TruncateDay(testAsOf)
	for _, job := range jobs {
		assert.Equal(t, today, job.Period.End(), "%s %s", job.EntityID, job.Period.Horizon)
	}
	assert.Equal(t, domain.Period{Horizon: domain.HorizonDaily, Start: today.AddDate(0, 0, -1)}, jobs[0].Period)
	assert.Equal(t, domain.Period{Horizon: domain.HorizonMonthly, Start: today.AddDate(0, 0, -30)}, jobs[2].Period)
}

func TestReconciler_RunOnceCountsFailures(t *testing.T) {
	history := &mockHistoryRepository{}
	history.On("ListEntities", mock.Anything).Return([]string{"A1", "B2", "C3"}, nil)

	engine := &mockAccuracyReconciler{}
	engine.On("ReconcileAccuracy", mock.Anything, "B2", mock.Anything).Return(nil, errors.New("db down"))
	engine.On("ReconcileAccuracy", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.AccuracyRecord{}, nil)

	r := NewReconciler(engine, history, reconcilerConfig())
	r.now = func() time.Time { return testAsOf }

	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 9, summary.Jobs)
	assert.Equal(t, 6, summary.Succeeded)
	assert.Equal(t, 3, summary.Failed)
	engine.AssertNumberOfCalls(t, "ReconcileAccuracy", 9)
}

func TestReconciler_RunOnceSkipsVanishedEntities(t *testing.T) {
	history := &mockHistoryRepository{}
	history.On("ListEntities", mock.Anything).Return([]string{"A1", "GONE"}, nil)

	engine := &mockAccuracyReconciler{}
	engine.On("ReconcileAccuracy", mock.Anything, "GONE", mock.Anything).
		Return(nil, fmt.Errorf("%w: sto GONE", domain.ErrNotFound))
	engine.On("ReconcileAccuracy", mock.Anything, mock.Anything, mock.Anything).Return([]*domain.AccuracyRecord{}, nil)

	r := NewReconciler(engine, history, reconcilerConfig())
	r.now = func() time.Time { return testAsOf }

	summary, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 6, summary.Jobs)
	assert.Equal(t, 3, summary.Succeeded)
	assert.Equal(t, 0, summary.Failed)
	assert.Equal(t, 3, summary.Skipped)
}

func TestReconciler_ListFailureAborts(t *testing.T) {
	history := &mockHistoryRepository{}
	history.On("ListEntities", mock.Anything).Return(nil, errors.New("timeout"))

	engine := &mockAccuracyReconciler{}
	r := NewReconciler(engine, history, reconcilerConfig())

	_, err := r.RunOnce(context.Background())
	require.Error(t, err)
	engine.AssertNotCalled(t, "ReconcileAccuracy", mock.Anything, mock.Anything, mock.Anything)
}

func TestReconciler_RunStopsWithContext(t *testing.T) {
	history := &mockHistoryRepository{}
	history.On("ListEntities", mock.Anything).Return([]string{}, nil)

	r := NewReconciler(&mockAccuracyReconciler{}, history, reconcilerConfig())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestReconciler_EndToEndWithEngine(t *testing.T) {
	f := newEngineFixture(t)
	ctx := context.Background()
	f.seedSales(t, "A1", testAsOf.AddDate(0, 0, -5), 4, 5, 3, 6, 5)

	prediction, err := f.engine.Generate(ctx, request("A1", domain.HorizonDaily))
	require.NoError(t, err)
	_, err = f.engine.RecordSales(ctx, []domain.SalesObservation{
		{EntityID: "A1", Date: prediction.PredictionDate, Quantity: 5},
	})
	require.NoError(t, err)

	next := prediction.PredictionDate.AddDate(0, 0, 1)
	f.clock = next.Add(time.Hour)

	r := NewReconciler(f.engine, f.history, reconcilerConfig())
	r.now = func() time.Time { return next }

	summary, err := r.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, summary.Jobs)
	assert.Equal(t, 0, summary.Failed)

	acc, err := f.engine.ModelAccuracy(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, 1, acc.SampleSize)
	assert.InDelta(t, 0.98, acc.Accuracy, 1e-9)
}
