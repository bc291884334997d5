package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
	"github.com/worldbeesion/beecareful-backend/internal/storage/postgres"
)

// AnalyzedPhotoRepository stores per photo analysis results and aggregates
// them per diagnosis.
type AnalyzedPhotoRepository struct {
	db *sql.DB
}

func NewAnalyzedPhotoRepository(db *sql.DB) *AnalyzedPhotoRepository {
	return &AnalyzedPhotoRepository{db: db}
}

func (r *AnalyzedPhotoRepository) Create(ctx context.Context, p *domain.AnalyzedPhoto) error {
	query := `
		INSERT INTO analyzed_photos (original_photo_id, diagnosis_id, file_id, imago_count, larva_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`
	err := postgres.Conn(ctx, r.db).QueryRowContext(ctx, query,
		p.OriginalPhotoID, p.DiagnosisID, p.FileID, p.ImagoCount, p.LarvaCount,
	).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert analyzed photo: %w", err)
	}
	return nil
}

func (r *AnalyzedPhotoRepository) CreateDisease(ctx context.Context, d *domain.AnalyzedPhotoDisease) error {
	query := `
		INSERT INTO analyzed_photo_diseases (analyzed_photo_id, disease_id, count)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	err := postgres.Conn(ctx, r.db).QueryRowContext(ctx, query, d.AnalyzedPhotoID, d.DiseaseID, d.Count).Scan(&d.ID)
	if err != nil {
		return fmt.Errorf("insert analyzed photo disease: %w", err)
	}
	return nil
}

func (r *AnalyzedPhotoRepository) ListIDsByDiagnosis(ctx context.Context, diagnosisID int64) ([]int64, error) {
	query := `SELECT id FROM analyzed_photos WHERE diagnosis_id = $1 ORDER BY id`
	rows, err := postgres.Conn(ctx, r.db).QueryContext(ctx, query, diagnosisID)
	if err != nil {
		return nil, fmt.Errorf("list analyzed photos: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan analyzed photo id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SumDiseases totals detection counts per (disease, stage) over photoIDs.
func (r *AnalyzedPhotoRepository) SumDiseases(ctx context.Context, photoIDs []int64) (domain.DiseaseTotals, error) {
	totals := domain.DiseaseTotals{}
	if len(photoIDs) == 0 {
		return totals, nil
	}

	query := `
		SELECT
			COALESCE(SUM(CASE WHEN d.name = 'VARROA' AND d.stage = 'LARVA' THEN apd.count ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN d.name = 'FOULBROOD' AND d.stage = 'LARVA' THEN apd.count ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN d.name = 'CHALKBROOD' AND d.stage = 'LARVA' THEN apd.count ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN d.name = 'VARROA' AND d.stage = 'IMAGO' THEN apd.count ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN d.name = 'DWV' AND d.stage = 'IMAGO' THEN apd.count ELSE 0 END), 0)
		FROM analyzed_photo_diseases apd
		JOIN diseases d ON d.id = apd.disease_id
		WHERE apd.analyzed_photo_id = ANY($1)
	`
	var larvaVarroa, foulbrood, chalkbrood, imagoVarroa, dwv int64
	err := postgres.Conn(ctx, r.db).QueryRowContext(ctx, query, photoIDs).Scan(
		&larvaVarroa, &foulbrood, &chalkbrood, &imagoVarroa, &dwv,
	)
	if err != nil {
		return nil, fmt.Errorf("sum diseases: %w", err)
	}

	totals[domain.LarvaVarroa] = larvaVarroa
	totals[domain.LarvaFoulbrood] = foulbrood
	totals[domain.LarvaChalkbrood] = chalkbrood
	totals[domain.ImagoVarroa] = imagoVarroa
	totals[domain.ImagoDWV] = dwv
	return totals, nil
}

// SumCounts totals the larva and imago counts of photoIDs.
func (r *AnalyzedPhotoRepository) SumCounts(ctx context.Context, photoIDs []int64) (larva, imago int64, err error) {
	if len(photoIDs) == 0 {
		return 0, 0, nil
	}
	query := `
		SELECT COALESCE(SUM(larva_count), 0), COALESCE(SUM(imago_count), 0)
		FROM analyzed_photos
		WHERE id = ANY($1)
	`
	if err := postgres.Conn(ctx, r.db).QueryRowContext(ctx, query, photoIDs).Scan(&larva, &imago); err != nil {
		return 0, 0, fmt.Errorf("sum analyzed counts: %w", err)
	}
	return larva, imago, nil
}

// AnnotatedKeys maps each original photo of a diagnosis to the object key of
// its annotated image.
func (r *AnalyzedPhotoRepository) AnnotatedKeys(ctx context.Context, diagnosisID int64) (map[int64]string, error) {
	query := `
		SELECT ap.original_photo_id, f.object_key
		FROM analyzed_photos ap
		JOIN file_metadata f ON f.id = ap.file_id
		WHERE ap.diagnosis_id = $1
	`
	rows, err := postgres.Conn(ctx, r.db).QueryContext(ctx, query, diagnosisID)
	if err != nil {
		return nil, fmt.Errorf("annotated keys: %w", err)
	}
	defer rows.Close()

	out := make(map[int64]string)
	for rows.Next() {
		var photoID int64
		var key string
		if err := rows.Scan(&photoID, &key); err != nil {
			return nil, fmt.Errorf("scan annotated key: %w", err)
		}
		out[photoID] = key
	}
	return out, rows.Err()
}
