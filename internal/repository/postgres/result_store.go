package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/repository"
)

const predictionColumns = `
	id, sto_id, prediction_type, prediction_date, predicted_sales, predicted_supply,
	confidence_score, risk_level, action_required, model_version, features_used,
	data_flags, created_at`

// predictionRow carries the array column the domain type does not map.
type predictionRow struct {
	domain.PredictionResult
	Flags pq.StringArray `db:"data_flags"`
}

func (row *predictionRow) toDomain() *domain.PredictionResult {
	result := row.PredictionResult
	if len(row.Flags) > 0 {
		result.DataFlags = []string(row.Flags)
	}
	return &result
}

type resultStore struct {
	db *DB
}

// NewResultStore returns the prediction store backed by postgres.
func NewResultStore(db *DB) *resultStore {
	return &resultStore{db: db}
}

var _ repository.ResultStore = (*resultStore)(nil)

func (s *resultStore) Save(ctx context.Context, result *domain.PredictionResult) error {
	query := `INSERT INTO predictions (` + predictionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`

	flags := result.DataFlags
	if flags == nil {
		flags = []string{}
	}

	_, err := s.db.ExecContext(ctx, query,
		result.ID,
		result.EntityID,
		string(result.Horizon),
		domain.TruncateDay(result.PredictionDate),
		result.PredictedSales,
		result.PredictedSupply,
		result.Confidence,
		string(result.RiskLevel),
		result.Action,
		result.ModelVersion,
		result.FeaturesUsed,
		pq.Array(flags),
		result.GeneratedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert prediction %s: %w", result.ID, err)
	}
	return nil
}

func (s *resultStore) FindBy(ctx context.Context, entityID string, period domain.Period) (*domain.PredictionResult, error) {
	period = period.Normalize()
	query := `SELECT ` + predictionColumns + `
		FROM predictions
		WHERE sto_id = $1 AND prediction_type = $2 AND prediction_date = $3
		ORDER BY created_at DESC
		LIMIT 1`

	var row predictionRow
	err := sqlx.GetContext(ctx, s.db, &row, query, entityID, string(period.Horizon), period.Start)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find prediction for %s: %w", entityID, err)
	}
	return row.toDomain(), nil
}

func (s *resultStore) ListByEntity(ctx context.Context, entityID string, limit int) ([]*domain.PredictionResult, error) {
	if limit <= 0 {
		limit = 100
	}
	query := `SELECT ` + predictionColumns + `
		FROM predictions
		WHERE sto_id = $1
		ORDER BY created_at DESC
		LIMIT $2`

	var rows []predictionRow
	if err := sqlx.SelectContext(ctx, s.db, &rows, query, entityID, limit); err != nil {
		return nil, fmt.Errorf("failed to list predictions for %s: %w", entityID, err)
	}

	results := make([]*domain.PredictionResult, 0, len(rows))
	for i := range rows {
		results = append(results, rows[i].toDomain())
	}
	return results, nil
}
