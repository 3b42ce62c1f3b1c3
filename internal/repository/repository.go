// backend-go/internal/repository/repository.go
package repository

import (
	"context"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
)

// HistoryRepository supplies the raw per-entity records a forecast is built from.
// Absent context or profile is reported as (nil, nil), not as an error.
type HistoryRepository interface {
	// GetSalesHistory returns the observations inside window ordered by date ascending.
	GetSalesHistory(ctx context.Context, entityID string, window domain.Window) ([]domain.SalesObservation, error)
	GetContext(ctx context.Context, entityID string) (*domain.ContextSnapshot, error)
	GetProfile(ctx context.Context, entityID string) (*domain.EntityProfile, error)
	EntityExists(ctx context.Context, entityID string) (bool, error)
	ListEntities(ctx context.Context) ([]string, error)
}

// SalesWriter records new sales observations.
type SalesWriter interface {
	AppendSales(ctx context.Context, observations []domain.SalesObservation) (int, error)
}

// ResultStore persists produced predictions.
type ResultStore interface {
	Save(ctx context.Context, result *domain.PredictionResult) error
	// FindBy returns the most recently generated prediction of entityID whose
	// horizon and prediction date match period, or (nil, nil).
	FindBy(ctx context.Context, entityID string, period domain.Period) (*domain.PredictionResult, error)
	// ListByEntity returns up to limit predictions, newest first.
	ListByEntity(ctx context.Context, entityID string, limit int) ([]*domain.PredictionResult, error)
}

// AccuracyStore keeps reconciliation records and the rolled-up model accuracy.
type AccuracyStore interface {
	Append(ctx context.Context, record *domain.AccuracyRecord) error
	// Recent returns up to n records of entityID, newest first.
	Recent(ctx context.Context, entityID string, n int) ([]*domain.AccuracyRecord, error)
	// FindByPrediction returns the record reconciling predictionID, or (nil, nil).
	FindByPrediction(ctx context.Context, predictionID string) (*domain.AccuracyRecord, error)
	SaveModelAccuracy(ctx context.Context, acc *domain.ModelAccuracy) error
	// GetModelAccuracy returns (nil, nil) when nothing was reconciled yet.
	GetModelAccuracy(ctx context.Context, entityID string) (*domain.ModelAccuracy, error)
}
