package objectstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/worldbeesion/beecareful-backend/internal/storage/postgres"
)

// FileRepository persists file metadata. Calls join the transaction carried
// by ctx, if any.
type FileRepository struct {
	db *sql.DB
}

func NewFileRepository(db *sql.DB) *FileRepository {
	return &FileRepository{db: db}
}

func (r *FileRepository) Create(ctx context.Context, f *FileMetadata) error {
	query := `
		INSERT INTO file_metadata (object_key, original_filename, content_type, size, status)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at
	`
	if f.Status == "" {
		f.Status = FilePending
	}
	err := postgres.Conn(ctx, r.db).QueryRowContext(ctx, query,
		f.ObjectKey, f.OriginalFilename, f.ContentType, f.Size, string(f.Status),
	).Scan(&f.ID, &f.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert file metadata: %w", err)
	}
	return nil
}

func (r *FileRepository) GetByObjectKey(ctx context.Context, key string) (*FileMetadata, error) {
	query := `
		SELECT id, object_key, COALESCE(original_filename, ''), content_type, size, status, created_at, stored_at
		FROM file_metadata
		WHERE object_key = $1
	`
	var f FileMetadata
	var status string
	var storedAt sql.NullTime
	err := postgres.Conn(ctx, r.db).QueryRowContext(ctx, query, key).Scan(
		&f.ID, &f.ObjectKey, &f.OriginalFilename, &f.ContentType, &f.Size, &status, &f.CreatedAt, &storedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrObjectNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get file metadata: %w", err)
	}
	f.Status = FileStatus(status)
	if storedAt.Valid {
		f.StoredAt = &storedAt.Time
	}
	return &f, nil
}

// MarkStored flips a PENDING file to STORED. It reports false when the file
// was already stored or does not exist.
func (r *FileRepository) MarkStored(ctx context.Context, key string) (bool, error) {
	query := `
		UPDATE file_metadata
		SET status = 'STORED', stored_at = now()
		WHERE object_key = $1 AND status = 'PENDING'
	`
	res, err := postgres.Conn(ctx, r.db).ExecContext(ctx, query, key)
	if err != nil {
		return false, fmt.Errorf("mark file stored: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("mark file stored: %w", err)
	}
	return n == 1, nil
}

// ResolveStored returns the metadata of an object the backend did not upload
// itself, registering it as STORED when it is not known yet.
func (r *FileRepository) ResolveStored(ctx context.Context, key, contentType string) (*FileMetadata, error) {
	query := `
		INSERT INTO file_metadata (object_key, content_type, status, stored_at)
		VALUES ($1, $2, 'STORED', now())
		ON CONFLICT (object_key) DO UPDATE
		SET status = 'STORED', stored_at = COALESCE(file_metadata.stored_at, now())
		RETURNING id, created_at
	`
	f := &FileMetadata{ObjectKey: key, ContentType: contentType, Status: FileStored}
	if err := postgres.Conn(ctx, r.db).QueryRowContext(ctx, query, key, contentType).Scan(&f.ID, &f.CreatedAt); err != nil {
		return nil, fmt.Errorf("resolve stored file: %w", err)
	}
	return f, nil
}
