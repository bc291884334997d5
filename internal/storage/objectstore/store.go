package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Store is the object storage facade the diagnosis pipeline talks to.
type Store struct {
	files        *FileRepository
	presigner    *Presigner
	cache        *URLCache
	originPrefix string
	logger       *slog.Logger
}

func NewStore(files *FileRepository, presigner *Presigner, cache *URLCache, originPrefix string, logger *slog.Logger) *Store {
	return &Store{
		files:        files,
		presigner:    presigner,
		cache:        cache,
		originPrefix: originPrefix,
		logger:       logger,
	}
}

// IssueUploadSlot registers a PENDING file for filename and presigns the PUT
// the client uploads it with.
func (s *Store) IssueUploadSlot(ctx context.Context, filename, contentType string, expectedSize int64) (*UploadSlot, error) {
	key, err := NewObjectKey(s.originPrefix, filename)
	if err != nil {
		return nil, err
	}

	f := &FileMetadata{
		ObjectKey:        key,
		OriginalFilename: filename,
		ContentType:      contentType,
		Size:             expectedSize,
		Status:           FilePending,
	}
	if err := s.files.Create(ctx, f); err != nil {
		return nil, err
	}

	url, err := s.presigner.PresignPut(ctx, key, contentType, expectedSize)
	if err != nil {
		return nil, err
	}

	return &UploadSlot{
		File:      f,
		URL:       url,
		ExpiresAt: time.Now().Add(s.presigner.PutExpiry()),
	}, nil
}

// ResolveStored returns the metadata of an object written by another party,
// registering it when unknown.
func (s *Store) ResolveStored(ctx context.Context, key, contentType string) (*FileMetadata, error) {
	return s.files.ResolveStored(ctx, key, contentType)
}

func (s *Store) MarkStored(ctx context.Context, key string) (bool, error) {
	return s.files.MarkStored(ctx, key)
}

// GetObjectURL returns a presigned GET URL for meta, served from the cache
// while a previously issued one is still valid.
func (s *Store) GetObjectURL(ctx context.Context, meta *FileMetadata) (string, error) {
	if meta == nil || meta.ObjectKey == "" {
		return "", fmt.Errorf("object metadata without key")
	}

	if s.cache != nil {
		url, ok, err := s.cache.Get(ctx, meta.ObjectKey)
		if err != nil {
			s.logger.Warn("presigned url cache read failed", "object_key", meta.ObjectKey, "error", err)
		} else if ok {
			return url, nil
		}
	}

	url, err := s.presigner.PresignGet(ctx, meta.ObjectKey)
	if err != nil {
		return "", err
	}

	if s.cache != nil {
		if err := s.cache.Put(ctx, meta.ObjectKey, url, s.presigner.GetExpiry()); err != nil {
			s.logger.Warn("presigned url cache write failed", "object_key", meta.ObjectKey, "error", err)
		}
	}
	return url, nil
}
