// Package repository persists prediction records in PostgreSQL. Input and
// result payloads are stored as JSONB so the full cascade trace survives
// alongside the queryable summary columns.
package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"

	"github.com/mirai-cascade-server/internal/domain"
)

// PredictionRepository handles prediction record persistence.
type PredictionRepository struct {
	db  *pgxpool.Pool
	log *logrus.Logger
}

// NewPredictionRepository creates a new prediction repository
func NewPredictionRepository(db *pgxpool.Pool, logger *logrus.Logger) *PredictionRepository {
	return &PredictionRepository{
		db:  db,
		log: logger,
	}
}

// Save inserts a new prediction record into the database
func (r *PredictionRepository) Save(ctx context.Context, record *domain.PredictionRecord) error {
	input, err := json.Marshal(record.Input)
	if err != nil {
		return fmt.Errorf("marshaling prediction input: %w", err)
	}
	result, err := json.Marshal(record.Result)
	if err != nil {
		return fmt.Errorf("marshaling prediction result: %w", err)
	}

	query := `
		INSERT INTO predictions (
			id, input, result, final_risk_score, final_risk_category, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6
		)`

	_, err = r.db.Exec(ctx, query,
		record.ID,
		input,
		result,
		record.Result.FinalRiskScore,
		string(record.Result.FinalRiskCategory),
		record.CreatedAt,
	)

	if err != nil {
		r.log.WithFields(logrus.Fields{
			"prediction_id": record.ID,
			"error":         err,
		}).Error("Failed to save prediction")
		return fmt.Errorf("saving prediction: %w", err)
	}

	r.log.WithFields(logrus.Fields{
		"prediction_id":       record.ID,
		"final_risk_score":    record.Result.FinalRiskScore,
		"final_risk_category": record.Result.FinalRiskCategory,
	}).Info("Prediction saved successfully")

	return nil
}

// GetByID retrieves a prediction record by its ID
func (r *PredictionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.PredictionRecord, error) {
	query := `
		SELECT id, input, result, created_at
		FROM predictions
		WHERE id = $1`

	record := &domain.PredictionRecord{}
	var input, result []byte

	err := r.db.QueryRow(ctx, query, id).Scan(
		&record.ID,
		&input,
		&result,
		&record.CreatedAt,
	)

	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("prediction not found: %w", domain.ErrNotFound)
		}
		r.log.WithFields(logrus.Fields{
			"prediction_id": id,
			"error":         err,
		}).Error("Failed to get prediction by ID")
		return nil, fmt.Errorf("getting prediction by ID: %w", err)
	}

	if err := json.Unmarshal(input, &record.Input); err != nil {
		return nil, fmt.Errorf("unmarshaling prediction input: %w", err)
	}
	if err := json.Unmarshal(result, &record.Result); err != nil {
		return nil, fmt.Errorf("unmarshaling prediction result: %w", err)
	}

	return record, nil
}

// ListRecent retrieves the most recent prediction records with pagination
func (r *PredictionRepository) ListRecent(ctx context.Context, limit, offset int) ([]*domain.PredictionRecord, error) {
	query := `
		SELECT id, input, result, created_at
		FROM predictions
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2`

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		r.log.WithError(err).Error("Failed to list predictions")
		return nil, fmt.Errorf("listing predictions: %w", err)
	}
	defer rows.Close()

	var records []*domain.PredictionRecord
	for rows.Next() {
		record := &domain.PredictionRecord{}
		var input, result []byte

		err := rows.Scan(
			&record.ID,
			&input,
			&result,
			&record.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning prediction row: %w", err)
		}

		if err := json.Unmarshal(input, &record.Input); err != nil {
			return nil, fmt.Errorf("unmarshaling prediction input: %w", err)
		}
		if err := json.Unmarshal(result, &record.Result); err != nil {
			return nil, fmt.Errorf("unmarshaling prediction result: %w", err)
		}

		records = append(records, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating prediction rows: %w", err)
	}

	return records, nil
}

// CountByCategory returns the number of stored predictions per final risk
// category, used for operational reporting.
func (r *PredictionRepository) CountByCategory(ctx context.Context) (map[domain.RiskCategory]int64, error) {
	query := `
		SELECT final_risk_category, COUNT(*)
		FROM predictions
		GROUP BY final_risk_category`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("counting predictions by category: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.RiskCategory]int64)
	for rows.Next() {
		var category string
		var count int64
		if err := rows.Scan(&category, &count); err != nil {
			return nil, fmt.Errorf("scanning category count: %w", err)
		}
		counts[domain.RiskCategory(category)] = count
	}

	return counts, rows.Err()
}

// Delete removes a prediction record from the database
func (r *PredictionRepository) Delete(ctx context.Context, id uuid.UUID) error {
	query := `DELETE FROM predictions WHERE id = $1`

	result, err := r.db.Exec(ctx, query, id)
	if err != nil {
		r.log.WithFields(logrus.Fields{
			"prediction_id": id,
			"error":         err,
		}).Error("Failed to delete prediction")
		return fmt.Errorf("deleting prediction: %w", err)
	}

	if result.RowsAffected() == 0 {
		return fmt.Errorf("prediction not found: %w", domain.ErrNotFound)
	}

	return nil
}
