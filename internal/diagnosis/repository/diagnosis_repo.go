package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
	"github.com/worldbeesion/beecareful-backend/internal/storage/postgres"
)

// DiagnosisRepository handles PostgreSQL operations for diagnoses.
type DiagnosisRepository struct {
	db *sql.DB
}

func NewDiagnosisRepository(db *sql.DB) *DiagnosisRepository {
	return &DiagnosisRepository{db: db}
}

func (r *DiagnosisRepository) Create(ctx context.Context, d *domain.Diagnosis) error {
	query := `
		INSERT INTO diagnoses (beehive_id)
		VALUES ($1)
		RETURNING id, created_at
	`
	if err := postgres.Conn(ctx, r.db).QueryRowContext(ctx, query, d.BeehiveID).Scan(&d.ID, &d.CreatedAt); err != nil {
		return fmt.Errorf("insert diagnosis: %w", err)
	}
	return nil
}

func (r *DiagnosisRepository) GetByID(ctx context.Context, id int64) (*domain.Diagnosis, error) {
	query := `
		SELECT id, beehive_id, created_at, imago_count, larva_count, finalized_at
		FROM diagnoses
		WHERE id = $1
	`
	var d domain.Diagnosis
	var imago, larva sql.NullInt64
	var finalizedAt sql.NullTime
	err := postgres.Conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(
		&d.ID, &d.BeehiveID, &d.CreatedAt, &imago, &larva, &finalizedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("diagnosis", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get diagnosis: %w", err)
	}

	if imago.Valid {
		d.ImagoCount = &imago.Int64
	}
	if larva.Valid {
		d.LarvaCount = &larva.Int64
	}
	if finalizedAt.Valid {
		d.FinalizedAt = &finalizedAt.Time
	}
	return &d, nil
}

// ClaimFinalization marks the diagnosis finalized. Only the first caller gets
// true; the aggregate it writes afterwards is never overwritten.
func (r *DiagnosisRepository) ClaimFinalization(ctx context.Context, id int64) (bool, error) {
	query := `
		UPDATE diagnoses
		SET finalized_at = now()
		WHERE id = $1 AND finalized_at IS NULL
	`
	res, err := postgres.Conn(ctx, r.db).ExecContext(ctx, query, id)
	if err != nil {
		return false, fmt.Errorf("claim finalization: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("claim finalization: %w", err)
	}
	return n == 1, nil
}

func (r *DiagnosisRepository) SaveAggregate(ctx context.Context, id, imagoCount, larvaCount int64) error {
	query := `
		UPDATE diagnoses
		SET imago_count = $2, larva_count = $3
		WHERE id = $1
	`
	if _, err := postgres.Conn(ctx, r.db).ExecContext(ctx, query, id, imagoCount, larvaCount); err != nil {
		return fmt.Errorf("save diagnosis aggregate: %w", err)
	}
	return nil
}
