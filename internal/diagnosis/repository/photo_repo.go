package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
	"github.com/worldbeesion/beecareful-backend/internal/storage/postgres"
)

// PhotoRepository handles original photos. Status changes are conditional
// updates guarded by the allowed predecessor statuses.
type PhotoRepository struct {
	db *sql.DB
}

func NewPhotoRepository(db *sql.DB) *PhotoRepository {
	return &PhotoRepository{db: db}
}

const photoColumns = `op.id, op.diagnosis_id, op.file_id, f.object_key, f.status = 'STORED', op.status`

func (r *PhotoRepository) Create(ctx context.Context, p *domain.OriginalPhoto) error {
	query := `
		INSERT INTO original_photos (diagnosis_id, file_id, status)
		VALUES ($1, $2, $3)
		RETURNING id
	`
	if p.Status == "" {
		p.Status = domain.PhotoWaiting
	}
	err := postgres.Conn(ctx, r.db).QueryRowContext(ctx, query, p.DiagnosisID, p.FileID, string(p.Status)).Scan(&p.ID)
	if err != nil {
		return fmt.Errorf("insert original photo: %w", err)
	}
	return nil
}

func (r *PhotoRepository) GetByObjectKey(ctx context.Context, key string) (*domain.OriginalPhoto, error) {
	query := `
		SELECT ` + photoColumns + `
		FROM original_photos op
		JOIN file_metadata f ON f.id = op.file_id
		WHERE f.object_key = $1
	`
	p, err := scanPhoto(postgres.Conn(ctx, r.db).QueryRowContext(ctx, query, key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.NotFound("photo", key)
	}
	if err != nil {
		return nil, fmt.Errorf("get photo by key: %w", err)
	}
	return p, nil
}

// ListByDiagnosis returns the fixed photo set of a diagnosis ordered by id.
func (r *PhotoRepository) ListByDiagnosis(ctx context.Context, diagnosisID int64) ([]domain.OriginalPhoto, error) {
	query := `
		SELECT ` + photoColumns + `
		FROM original_photos op
		JOIN file_metadata f ON f.id = op.file_id
		WHERE op.diagnosis_id = $1
		ORDER BY op.id
	`
	rows, err := postgres.Conn(ctx, r.db).QueryContext(ctx, query, diagnosisID)
	if err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	defer rows.Close()

	var photos []domain.OriginalPhoto
	for rows.Next() {
		p, err := scanPhoto(rows)
		if err != nil {
			return nil, fmt.Errorf("scan photo: %w", err)
		}
		photos = append(photos, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list photos: %w", err)
	}
	return photos, nil
}

// TransitionStatus moves a photo to next. It reports false when the photo was
// not in a status next may be entered from.
func (r *PhotoRepository) TransitionStatus(ctx context.Context, photoID int64, next domain.PhotoStatus) (bool, error) {
	from := domain.AllowedPredecessors(next)
	if len(from) == 0 {
		return false, fmt.Errorf("%w: nothing transitions to %s", domain.ErrInvalidTransition, next)
	}

	query := `
		UPDATE original_photos
		SET status = $2, updated_at = now()
		WHERE id = $1 AND status = ANY($3)
	`
	res, err := postgres.Conn(ctx, r.db).ExecContext(ctx, query, photoID, string(next), statusStrings(from))
	if err != nil {
		return false, fmt.Errorf("transition photo %d to %s: %w", photoID, next, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("transition photo %d to %s: %w", photoID, next, err)
	}
	return n == 1, nil
}

// MarkUnreceivedBefore gives up on WAITING photos whose upload slot was issued
// before cutoff and never used. It returns the affected diagnosis ids.
func (r *PhotoRepository) MarkUnreceivedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	query := `
		UPDATE original_photos op
		SET status = 'UNRECEIVED', updated_at = now()
		FROM file_metadata f
		WHERE f.id = op.file_id
		  AND op.status = 'WAITING'
		  AND f.status = 'PENDING'
		  AND f.created_at < $1
		RETURNING op.diagnosis_id
	`
	rows, err := postgres.Conn(ctx, r.db).QueryContext(ctx, query, cutoff)
	if err != nil {
		return nil, fmt.Errorf("mark unreceived photos: %w", err)
	}
	defer rows.Close()

	seen := make(map[int64]bool)
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan diagnosis id: %w", err)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	return ids, rows.Err()
}

// StatusesByDiagnoses returns photo statuses grouped by diagnosis. Diagnoses
// of hives the member does not own are left out.
func (r *PhotoRepository) StatusesByDiagnoses(ctx context.Context, memberID int64, diagnosisIDs []int64) (map[int64][]domain.PhotoStatus, error) {
	query := `
		SELECT op.diagnosis_id, op.status
		FROM original_photos op
		JOIN diagnoses d ON d.id = op.diagnosis_id
		JOIN beehives b ON b.id = d.beehive_id
		JOIN apiaries a ON a.id = b.apiary_id
		WHERE op.diagnosis_id = ANY($1) AND a.member_id = $2
		ORDER BY op.diagnosis_id, op.id
	`
	rows, err := postgres.Conn(ctx, r.db).QueryContext(ctx, query, diagnosisIDs, memberID)
	if err != nil {
		return nil, fmt.Errorf("photo statuses: %w", err)
	}
	defer rows.Close()

	out := make(map[int64][]domain.PhotoStatus, len(diagnosisIDs))
	for rows.Next() {
		var id int64
		var status string
		if err := rows.Scan(&id, &status); err != nil {
			return nil, fmt.Errorf("scan photo status: %w", err)
		}
		out[id] = append(out[id], domain.PhotoStatus(status))
	}
	return out, rows.Err()
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanPhoto(row rowScanner) (*domain.OriginalPhoto, error) {
	var p domain.OriginalPhoto
	var status string
	if err := row.Scan(&p.ID, &p.DiagnosisID, &p.FileID, &p.ObjectKey, &p.FileStored, &status); err != nil {
		return nil, err
	}
	p.Status = domain.PhotoStatus(status)
	return &p, nil
}

func statusStrings(statuses []domain.PhotoStatus) []string {
	out := make([]string, len(statuses))
	for i, s := range statuses {
		out[i] = string(s)
	}
	return out
}
