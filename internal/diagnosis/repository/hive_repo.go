package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
	"github.com/worldbeesion/beecareful-backend/internal/storage/postgres"
)

type HiveRepository struct {
	db *sql.DB
}

func NewHiveRepository(db *sql.DB) *HiveRepository {
	return &HiveRepository{db: db}
}

// GetByID returns the hive with the member owning its apiary.
func (r *HiveRepository) GetByID(ctx context.Context, id int64) (*domain.Beehive, error) {
	query := `
		SELECT b.id, b.apiary_id, a.member_id, b.name, b.is_infected
		FROM beehives b
		JOIN apiaries a ON a.id = b.apiary_id
		WHERE b.id = $1
	`
	var h domain.Beehive
	err := postgres.Conn(ctx, r.db).QueryRowContext(ctx, query, id).Scan(&h.ID, &h.ApiaryID, &h.OwnerID, &h.Name, &h.IsInfected)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("beehive", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get beehive: %w", err)
	}
	return &h, nil
}

func (r *HiveRepository) SetInfected(ctx context.Context, id int64, infected bool) error {
	query := `UPDATE beehives SET is_infected = $2, updated_at = now() WHERE id = $1`
	res, err := postgres.Conn(ctx, r.db).ExecContext(ctx, query, id, infected)
	if err != nil {
		return fmt.Errorf("update beehive infection: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return domain.NotFound("beehive", id)
	}
	return nil
}
