package objectstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/worldbeesion/beecareful-backend/internal/logging"
	"github.com/worldbeesion/beecareful-backend/internal/metrics"
)

const (
	objectCreatedPut = "ObjectCreated:Put"
	sizeTolerance    = 0.2
)

// StorageEvent is the bucket notification relayed by the storage function.
type StorageEvent struct {
	BucketName string `json:"bucketName"`
	ObjectKey  string `json:"objectKey"`
	ObjectSize int64  `json:"objectSize"`
	EventTime  string `json:"eventTime"`
	EventName  string `json:"eventName"`
	AWSRegion  string `json:"awsRegion"`
}

// StoredObjectHandler is told about every object that passed validation.
type StoredObjectHandler interface {
	OnPhotoStored(ctx context.Context, objectKey string) error
}

type metadataLookup interface {
	GetByObjectKey(ctx context.Context, key string) (*FileMetadata, error)
}

// EventService validates storage notifications before they reach the
// diagnosis pipeline.
type EventService struct {
	files   metadataLookup
	bucket  string
	handler StoredObjectHandler
	metrics *metrics.DiagnosisMetrics
	logger  *slog.Logger
}

func NewEventService(files metadataLookup, bucket string, handler StoredObjectHandler, m *metrics.DiagnosisMetrics, logger *slog.Logger) *EventService {
	if logger == nil {
		logger = logging.Discard()
	}
	return &EventService{files: files, bucket: bucket, handler: handler, metrics: m, logger: logger}
}

// OnObjectStored handles one notification. A redelivered event for a file
// that is already stored still reaches the handler, so a diagnosis whose
// first trigger failed gets started, and then returns ErrDuplicateEvent.
func (s *EventService) OnObjectStored(ctx context.Context, evt StorageEvent) error {
	err := s.onObjectStored(ctx, evt)
	switch {
	case err == nil:
		s.metrics.StorageEvent("accepted")
	case errors.Is(err, ErrDuplicateEvent):
		s.metrics.StorageEvent("duplicate")
	case errors.Is(err, ErrInvalidEvent):
		s.metrics.StorageEvent("invalid")
	case errors.Is(err, ErrObjectNotFound):
		s.metrics.StorageEvent("unknown")
	}
	return err
}

func (s *EventService) onObjectStored(ctx context.Context, evt StorageEvent) error {
	log := logging.FromContext(ctx, s.logger).With("object_key", evt.ObjectKey)

	if err := s.validate(evt); err != nil {
		log.WarnContext(ctx, "rejected storage event", "error", err)
		return err
	}

	meta, err := s.files.GetByObjectKey(ctx, evt.ObjectKey)
	if err != nil {
		return err
	}
	if meta.Status == FileStored {
		if err := s.handler.OnPhotoStored(ctx, evt.ObjectKey); err != nil {
			return err
		}
		log.InfoContext(ctx, "duplicate storage event")
		return ErrDuplicateEvent
	}
	if !withinTolerance(evt.ObjectSize, meta.Size) {
		return fmt.Errorf("%w: size %d differs from expected %d", ErrInvalidEvent, evt.ObjectSize, meta.Size)
	}

	return s.handler.OnPhotoStored(ctx, evt.ObjectKey)
}

func (s *EventService) validate(evt StorageEvent) error {
	if evt.BucketName != s.bucket {
		return fmt.Errorf("%w: unexpected bucket %q", ErrInvalidEvent, evt.BucketName)
	}
	if strings.TrimPrefix(evt.EventName, "s3:") != objectCreatedPut {
		return fmt.Errorf("%w: unsupported event %q", ErrInvalidEvent, evt.EventName)
	}
	if strings.TrimSpace(evt.ObjectKey) == "" {
		return fmt.Errorf("%w: object key is empty", ErrInvalidEvent)
	}
	if evt.ObjectSize <= 0 {
		return fmt.Errorf("%w: object size is %d", ErrInvalidEvent, evt.ObjectSize)
	}
	return nil
}

// withinTolerance accepts actual when it is no further than 20% from
// expected. An unknown expected size accepts anything.
func withinTolerance(actual, expected int64) bool {
	if expected <= 0 {
		return true
	}
	return math.Abs(float64(actual-expected)) <= sizeTolerance*float64(expected)
}
