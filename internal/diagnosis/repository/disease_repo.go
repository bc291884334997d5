package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
)

type DiseaseRepository struct {
	db *sql.DB
}

func NewDiseaseRepository(db *sql.DB) *DiseaseRepository {
	return &DiseaseRepository{db: db}
}

func (r *DiseaseRepository) ListAll(ctx context.Context) ([]domain.Disease, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT id, name, stage FROM diseases ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list diseases: %w", err)
	}
	defer rows.Close()

	var out []domain.Disease
	for rows.Next() {
		var d domain.Disease
		var name, stage string
		if err := rows.Scan(&d.ID, &name, &stage); err != nil {
			return nil, fmt.Errorf("scan disease: %w", err)
		}
		d.Name = domain.DiseaseName(name)
		d.Stage = domain.Stage(stage)
		out = append(out, d)
	}
	return out, rows.Err()
}

// LoadCatalog reads the disease table once into an immutable catalog.
func (r *DiseaseRepository) LoadCatalog(ctx context.Context) (*domain.Catalog, error) {
	diseases, err := r.ListAll(ctx)
	if err != nil {
		return nil, err
	}
	return domain.NewCatalog(diseases)
}
