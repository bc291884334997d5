package service

import (
	"context"
	"time"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
	"github.com/worldbeesion/beecareful-backend/internal/storage/objectstore"
)

type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type DiagnosisStore interface {
	Create(ctx context.Context, d *domain.Diagnosis) error
	GetByID(ctx context.Context, id int64) (*domain.Diagnosis, error)
	ClaimFinalization(ctx context.Context, id int64) (bool, error)
	SaveAggregate(ctx context.Context, id, imagoCount, larvaCount int64) error
}

type PhotoStore interface {
	Create(ctx context.Context, p *domain.OriginalPhoto) error
	GetByObjectKey(ctx context.Context, key string) (*domain.OriginalPhoto, error)
	ListByDiagnosis(ctx context.Context, diagnosisID int64) ([]domain.OriginalPhoto, error)
	TransitionStatus(ctx context.Context, photoID int64, next domain.PhotoStatus) (bool, error)
	MarkUnreceivedBefore(ctx context.Context, cutoff time.Time) ([]int64, error)
	StatusesByDiagnoses(ctx context.Context, memberID int64, diagnosisIDs []int64) (map[int64][]domain.PhotoStatus, error)
}

type AnalyzedPhotoStore interface {
	Create(ctx context.Context, p *domain.AnalyzedPhoto) error
	CreateDisease(ctx context.Context, d *domain.AnalyzedPhotoDisease) error
	ListIDsByDiagnosis(ctx context.Context, diagnosisID int64) ([]int64, error)
	SumDiseases(ctx context.Context, photoIDs []int64) (domain.DiseaseTotals, error)
	SumCounts(ctx context.Context, photoIDs []int64) (larva, imago int64, err error)
	AnnotatedKeys(ctx context.Context, diagnosisID int64) (map[int64]string, error)
}

type HiveStore interface {
	GetByID(ctx context.Context, id int64) (*domain.Beehive, error)
	SetInfected(ctx context.Context, id int64, infected bool) error
}

// FileStore is the part of object storage the pipeline writes to.
type FileStore interface {
	MarkStored(ctx context.Context, key string) (bool, error)
	ResolveStored(ctx context.Context, key, contentType string) (*objectstore.FileMetadata, error)
}

type UploadSlotIssuer interface {
	IssueUploadSlot(ctx context.Context, filename, contentType string, expectedSize int64) (*objectstore.UploadSlot, error)
	GetObjectURL(ctx context.Context, meta *objectstore.FileMetadata) (string, error)
}

type Analyzer interface {
	Analyze(ctx context.Context, objectKey string) (*domain.AnalysisResult, error)
}

type RunClaimer interface {
	Claim(ctx context.Context, diagnosisID int64) (bool, error)
	Release(ctx context.Context, diagnosisID int64) error
}

type EventPublisher interface {
	Publish(ctx context.Context, evt domain.StatusEvent) error
}

// FinalizeQueue hands a diagnosis whose analysis units all finished over to
// the finalizer.
type FinalizeQueue interface {
	Enqueue(ctx context.Context, diagnosisID int64) error
}

// Dispatcher starts a diagnosis run without blocking the caller.
type Dispatcher interface {
	Dispatch(ctx context.Context, diagnosisID int64)
}

type photoProcessor interface {
	ProcessPhoto(ctx context.Context, photo domain.OriginalPhoto, diagnosis *domain.Diagnosis) error
}
