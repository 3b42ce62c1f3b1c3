package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/andresuchdata/sto-forecast/backend-go/internal/domain"
	"github.com/andresuchdata/sto-forecast/backend-go/internal/repository"
)

type historyRepository struct {
	db *DB
}

// NewHistoryRepository returns the sales/context/profile repository backed by postgres.
func NewHistoryRepository(db *DB) *historyRepository {
	return &historyRepository{db: db}
}

var (
	_ repository.HistoryRepository = (*historyRepository)(nil)
	_ repository.SalesWriter       = (*historyRepository)(nil)
)

func (r *historyRepository) GetSalesHistory(ctx context.Context, entityID string, window domain.Window) ([]domain.SalesObservation, error) {
	query := `
		SELECT sto_id, tanggal AS date, total_barang_terjual AS quantity
		FROM sales_harian
		WHERE sto_id = $1 AND tanggal >= $2 AND tanggal < $3
		ORDER BY tanggal ASC
	`

	var history []domain.SalesObservation
	if err := sqlx.SelectContext(ctx, r.db, &history, query, entityID, window.From, window.To); err != nil {
		return nil, fmt.Errorf("failed to get sales history for %s: %w", entityID, err)
	}
	return history, nil
}

func (r *historyRepository) GetContext(ctx context.Context, entityID string) (*domain.ContextSnapshot, error) {
	query := `
		SELECT sto_id, capacity, utilization_rate, port_count
		FROM sto_architecture
		WHERE sto_id = $1
		ORDER BY recorded_at DESC
		LIMIT 1
	`

	var snapshot domain.ContextSnapshot
	err := sqlx.GetContext(ctx, r.db, &snapshot, query, entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get context for %s: %w", entityID, err)
	}
	return &snapshot, nil
}

func (r *historyRepository) GetProfile(ctx context.Context, entityID string) (*domain.EntityProfile, error) {
	query := `
		SELECT sto_id, population_coverage, business_density, competition_level,
		       economic_index, infrastructure_quality
		FROM sto_profile
		WHERE sto_id = $1
	`

	var profile domain.EntityProfile
	err := sqlx.GetContext(ctx, r.db, &profile, query, entityID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile for %s: %w", entityID, err)
	}
	return &profile, nil
}

func (r *historyRepository) EntityExists(ctx context.Context, entityID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sto WHERE sto_id = $1)`, entityID).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check sto %s: %w", entityID, err)
	}
	return exists, nil
}

func (r *historyRepository) ListEntities(ctx context.Context) ([]string, error) {
	var ids []string
	if err := sqlx.SelectContext(ctx, r.db, &ids, `SELECT sto_id FROM sto WHERE status = 'Active' ORDER BY sto_id`); err != nil {
		return nil, fmt.Errorf("failed to list stos: %w", err)
	}
	return ids, nil
}

// AppendSales upserts one row per (sto, day); unknown STOs are registered on the fly.
func (r *historyRepository) AppendSales(ctx context.Context, observations []domain.SalesObservation) (int, error) {
	if len(observations) == 0 {
		return 0, nil
	}

	err := r.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		// 1. Make sure every STO exists
		seen := make(map[string]bool)
		for _, obs := range observations {
			if seen[obs.EntityID] {
				continue
			}
			seen[obs.EntityID] = true
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO sto (sto_id, created_at) VALUES ($1, NOW()) ON CONFLICT (sto_id) DO NOTHING`,
				obs.EntityID,
			); err != nil {
				return fmt.Errorf("failed to upsert sto %s: %w", obs.EntityID, err)
			}
		}

		// 2. Upsert observations
		query := `
			INSERT INTO sales_harian (sto_id, tanggal, total_barang_terjual, updated_at)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (sto_id, tanggal)
			DO UPDATE SET
				total_barang_terjual = EXCLUDED.total_barang_terjual,
				updated_at = EXCLUDED.updated_at
		`

		stmt, err := tx.PrepareContext(ctx, query)
		if err != nil {
			return fmt.Errorf("failed to prepare statement: %w", err)
		}
		defer stmt.Close()

		now := time.Now()
		for _, obs := range observations {
			if _, err := stmt.ExecContext(ctx, obs.EntityID, domain.TruncateDay(obs.Date), obs.Quantity, now); err != nil {
				return fmt.Errorf("failed to insert sales observation: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(observations), nil
}
