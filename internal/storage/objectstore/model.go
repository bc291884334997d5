package objectstore

import (
	"errors"
	"time"
)

type FileStatus string

const (
	FilePending FileStatus = "PENDING"
	FileStored  FileStatus = "STORED"
)

// FileMetadata tracks an object in the bucket.
type FileMetadata struct {
	ID               int64
	ObjectKey        string
	OriginalFilename string
	ContentType      string
	Size             int64
	Status           FileStatus
	CreatedAt        time.Time
	StoredAt         *time.Time
}

// UploadSlot is a pending file together with the presigned URL the client
// uploads it to.
type UploadSlot struct {
	File      *FileMetadata
	URL       string
	ExpiresAt time.Time
}

var (
	ErrObjectNotFound       = errors.New("object not found")
	ErrUnsupportedExtension = errors.New("unsupported file extension")
	ErrInvalidEvent         = errors.New("invalid storage event")
	ErrDuplicateEvent       = errors.New("object already stored")
)
