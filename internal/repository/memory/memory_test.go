package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
)

var day0 = time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)

func TestHistoryRepository_AppendAndWindow(t *testing.T) {
	repo := NewHistoryRepository()
	ctx := context.Background()

	n, err := repo.AppendSales(ctx, []domain.SalesObservation{
		{EntityID: "A1", Date: day0.AddDate(0, 0, 2).Add(15 * time.Hour), Quantity: 3},
		{EntityID: "A1", Date: day0, Quantity: 1},
		{EntityID: "A1", Date: day0.AddDate(0, 0, 1), Quantity: 2},
		{EntityID: "B2", Date: day0, Quantity: 9},
	})
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	history, err := repo.GetSalesHistory(ctx, "A1", domain.WindowEndingAt(day0.AddDate(0, 0, 2), 90))
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, []float64{1, 2, 3}, []float64{history[0].Quantity, history[1].Quantity, history[2].Quantity})
	assert.Equal(t, day0.AddDate(0, 0, 2), history[2].Date, "dates are stored as calendar days")

	history, err = repo.GetSalesHistory(ctx, "A1", domain.WindowEndingAt(day0.AddDate(0, 0, 2), 2))
	require.NoError(t, err)
	assert.Len(t, history, 2)

	ids, err := repo.ListEntities(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"A1", "B2"}, ids)
}

func TestHistoryRepository_SameDayReplaces(t *testing.T) {
	repo := NewHistoryRepository()
	ctx := context.Background()

	_, err := repo.AppendSales(ctx, []domain.SalesObservation{{EntityID: "A1", Date: day0, Quantity: 1}})
	require.NoError(t, err)
	_, err = repo.AppendSales(ctx, []domain.SalesObservation{{EntityID: "A1", Date: day0.Add(time.Hour), Quantity: 5}})
	require.NoError(t, err)

	history, err := repo.GetSalesHistory(ctx, "A1", domain.WindowEndingAt(day0, 1))
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 5.0, history[0].Quantity)
}

func TestHistoryRepository_RejectsBlankEntity(t *testing.T) {
	repo := NewHistoryRepository()

	_, err := repo.AppendSales(context.Background(), []domain.SalesObservation{{EntityID: " ", Date: day0, Quantity: 1}})
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestHistoryRepository_OptionalRecords(t *testing.T) {
	repo := NewHistoryRepository()
	ctx := context.Background()

	snapshot, err := repo.GetContext(ctx, "A1")
	require.NoError(t, err)
	assert.Nil(t, snapshot)

	exists, err := repo.EntityExists(ctx, "A1")
	require.NoError(t, err)
	assert.False(t, exists)

	repo.SetContext(domain.ContextSnapshot{EntityID: "A1", Capacity: 100})
	repo.SetProfile(domain.EntityProfile{EntityID: "A1", CompetitionLevel: domain.LevelHigh})

	snapshot, err = repo.GetContext(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, 100.0, snapshot.Capacity)

	profile, err := repo.GetProfile(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, domain.LevelHigh, profile.CompetitionLevel)

	exists, err = repo.EntityExists(ctx, "A1")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestResultStore_FindByAndList(t *testing.T) {
	store := NewResultStore()
	ctx := context.Background()
	start := day0.AddDate(0, 0, 1)

	older := &domain.PredictionResult{ID: "1", EntityID: "A1", Horizon: domain.HorizonDaily, PredictionDate: start, GeneratedAt: day0.Add(time.Hour)}
	newer := &domain.PredictionResult{ID: "2", EntityID: "A1", Horizon: domain.HorizonDaily, PredictionDate: start, GeneratedAt: day0.Add(2 * time.Hour)}
	weekly := &domain.PredictionResult{ID: "3", EntityID: "A1", Horizon: domain.HorizonWeekly, PredictionDate: start, GeneratedAt: day0.Add(3 * time.Hour)}
	for _, r := range []*domain.PredictionResult{newer, older, weekly} {
		require.NoError(t, store.Save(ctx, r))
	}

	found, err := store.FindBy(ctx, "A1", domain.Period{Horizon: domain.HorizonDaily, Start: start.Add(5 * time.Hour)})
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "2", found.ID)

	found, err = store.FindBy(ctx, "A1", domain.Period{Horizon: domain.HorizonMonthly, Start: start})
	require.NoError(t, err)
	assert.Nil(t, found)

	list, err := store.ListByEntity(ctx, "A1", 2)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "3", list[0].ID)
	assert.Equal(t, "2", list[1].ID)
	assert.Equal(t, 3, store.Count())
}

func TestAccuracyStore_OneRecordPerPrediction(t *testing.T) {
	store := NewAccuracyStore()
	ctx := context.Background()

	found, err := store.FindByPrediction(ctx, "p1")
	require.NoError(t, err)
	assert.Nil(t, found)

	require.NoError(t, store.Append(ctx, &domain.AccuracyRecord{ID: "r1", EntityID: "A1", PredictionID: "p1"}))
	require.NoError(t, store.Append(ctx, &domain.AccuracyRecord{ID: "r2", EntityID: "A1", PredictionID: "p1"}))

	found, err = store.FindByPrediction(ctx, "p1")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "r1", found.ID)

	all, err := store.Recent(ctx, "A1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAccuracyStore_RecentNewestFirst(t *testing.T) {
	store := NewAccuracyStore()
	ctx := context.Background()

	for _, id := range []string{"r1", "r2", "r3"} {
		require.NoError(t, store.Append(ctx, &domain.AccuracyRecord{ID: id, EntityID: "A1", PredictionID: "p-" + id}))
	}

	recent, err := store.Recent(ctx, "A1", 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "r3", recent[0].ID)
	assert.Equal(t, "r2", recent[1].ID)

	all, err := store.Recent(ctx, "A1", 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	acc, err := store.GetModelAccuracy(ctx, "A1")
	require.NoError(t, err)
	assert.Nil(t, acc)

	require.NoError(t, store.SaveModelAccuracy(ctx, &domain.ModelAccuracy{EntityID: "A1", Accuracy: 0.9, SampleSize: 3}))
	acc, err = store.GetModelAccuracy(ctx, "A1")
	require.NoError(t, err)
	assert.Equal(t, 0.9, acc.Accuracy)
}
