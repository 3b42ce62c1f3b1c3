package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/repository"
)

type accuracyStore struct {
	db *DB
}

// NewAccuracyStore returns the accuracy store backed by postgres.
func NewAccuracyStore(db *DB) *accuracyStore {
	return &accuracyStore{db: db}
}

var _ repository.AccuracyStore = (*accuracyStore)(nil)

func (s *accuracyStore) Append(ctx context.Context, record *domain.AccuracyRecord) error {
	query := `
		INSERT INTO prediction_accuracy (
			id, sto_id, prediction_type, period_start, prediction_id,
			predicted_sales, actual_sales, absolute_pct_error, computed_at
		) VALUES (:id, :sto_id, :prediction_type, :period_start, :prediction_id,
			:predicted_sales, :actual_sales, :absolute_pct_error, :computed_at)
		ON CONFLICT (prediction_id) DO NOTHING
	`
	if _, err := s.db.NamedExecContext(ctx, query, record); err != nil {
		return fmt.Errorf("failed to insert accuracy record: %w", err)
	}
	return nil
}

func (s *accuracyStore) Recent(ctx context.Context, entityID string, n int) ([]*domain.AccuracyRecord, error) {
	if n <= 0 {
		n = 1000
	}
	query := `
		SELECT id, sto_id, prediction_type, period_start, prediction_id,
		       predicted_sales, actual_sales, absolute_pct_error, computed_at
		FROM prediction_accuracy
		WHERE sto_id = $1
		ORDER BY computed_at DESC
		LIMIT $2
	`

	var records []*domain.AccuracyRecord
	if err := sqlx.SelectContext(ctx, s.db, &records, query, entityID, n); err != nil {
		return nil, fmt.Errorf("failed to get accuracy records for %s: %w", entityID, err)
	}
	return records, nil
}

func (s *accuracyStore) FindByPrediction(ctx context.Context, predictionID string) (*domain.AccuracyRecord, error) {
	var record domain.AccuracyRecord
	err := sqlx.GetContext(ctx, s.db, &record, `
		SELECT id, sto_id, prediction_type, period_start, prediction_id,
		       predicted_sales, actual_sales, absolute_pct_error, computed_at
		FROM prediction_accuracy
		WHERE prediction_id = $1
	`, predictionID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get accuracy record for prediction %s: %w", predictionID, err)
	}
	return &record, nil
}

func (s *accuracyStore) SaveModelAccuracy(ctx context.Context, acc *domain.ModelAccuracy) error {
	query := `
		INSERT INTO final_pemodelan (sto_id, model_accuracy, sample_size, last_updated)
		VALUES (:sto_id, :model_accuracy, :sample_size, :last_updated)
		ON CONFLICT (sto_id)
		DO UPDATE SET
			model_accuracy = EXCLUDED.model_accuracy,
			sample_size = EXCLUDED.sample_size,
			last_updated = EXCLUDED.last_updated
	`
	if _, err := s.db.NamedExecContext(ctx, query, acc); err != nil {
		return fmt.Errorf("failed to save model accuracy for %s: %w", acc.EntityID, err)
	}
	return nil
}

func (s *accuracyStore) GetModelAccuracy(ctx context.Context, entityID string) (*domain.ModelAccuracy, error) {
	var acc domain.ModelAccuracy
	err := sqlx.GetContext(ctx, s.db, &acc,
		`SELECT sto_id, model_accuracy, sample_size, last_updated FROM final_pemodelan WHERE sto_id = $1`,
		entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get model accuracy for %s: %w", entityID, err)
	}
	return &acc, nil
}
