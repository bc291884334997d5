package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
	"github.com/worldbeesion/beecareful-backend/internal/logging"
	"github.com/worldbeesion/beecareful-backend/internal/storage/objectstore"
)

const MaxPhotosPerDiagnosis = 20

type PhotoUpload struct {
	Filename     string
	ContentType  string
	ExpectedSize int64
}

type UploadSlot struct {
	PhotoID   int64
	Filename  string
	ObjectKey string
	URL       string
	ExpiresAt time.Time
}

type CreatedDiagnosis struct {
	DiagnosisID int64
	Slots       []UploadSlot
}

type PhotoState struct {
	PhotoID      int64
	Status       domain.PhotoStatus
	AnnotatedURL string
}

type DiagnosisStatus struct {
	DiagnosisID int64
	BeehiveID   int64
	State       domain.BatchState
	Photos      []PhotoState
	Finalized   bool
	ImagoCount  *int64
	LarvaCount  *int64
}

// DiagnosisService is the member facing side of the pipeline: it opens
// diagnoses with their upload slots and reports on their progress.
type DiagnosisService struct {
	tx        Transactor
	diagnoses DiagnosisStore
	photos    PhotoStore
	analyzed  AnalyzedPhotoStore
	hives     HiveStore
	slots     UploadSlotIssuer
	logger    *slog.Logger
}

type DiagnosisServiceDeps struct {
	Tx        Transactor
	Diagnoses DiagnosisStore
	Photos    PhotoStore
	Analyzed  AnalyzedPhotoStore
	Hives     HiveStore
	Slots     UploadSlotIssuer
	Logger    *slog.Logger
}

func NewDiagnosisService(d DiagnosisServiceDeps) *DiagnosisService {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	return &DiagnosisService{
		tx:        d.Tx,
		diagnoses: d.Diagnoses,
		photos:    d.Photos,
		analyzed:  d.Analyzed,
		hives:     d.Hives,
		slots:     d.Slots,
		logger:    d.Logger,
	}
}

// CreateDiagnosis opens a diagnosis on a hive the member owns and issues one
// upload slot per photo. Nothing is persisted unless every slot was issued.
func (s *DiagnosisService) CreateDiagnosis(ctx context.Context, memberID, beehiveID int64, uploads []PhotoUpload) (*CreatedDiagnosis, error) {
	if len(uploads) == 0 || len(uploads) > MaxPhotosPerDiagnosis {
		return nil, fmt.Errorf("%w: between 1 and %d photos are required", domain.ErrInvalidUploadSlots, MaxPhotosPerDiagnosis)
	}
	if _, err := s.ownedHive(ctx, memberID, beehiveID); err != nil {
		return nil, err
	}

	out := &CreatedDiagnosis{}
	err := s.tx.WithinTx(ctx, func(ctx context.Context) error {
		diagnosis := &domain.Diagnosis{BeehiveID: beehiveID}
		if err := s.diagnoses.Create(ctx, diagnosis); err != nil {
			return &domain.PersistenceError{Op: "create diagnosis", Err: err}
		}
		out.DiagnosisID = diagnosis.ID

		for _, u := range uploads {
			slot, err := s.slots.IssueUploadSlot(ctx, u.Filename, u.ContentType, u.ExpectedSize)
			if err != nil {
				if errors.Is(err, objectstore.ErrUnsupportedExtension) {
					return fmt.Errorf("%w: %s: %w", domain.ErrInvalidUploadSlots, u.Filename, err)
				}
				return fmt.Errorf("issue upload slot for %s: %w", u.Filename, err)
			}

			photo := &domain.OriginalPhoto{
				DiagnosisID: diagnosis.ID,
				FileID:      slot.File.ID,
				ObjectKey:   slot.File.ObjectKey,
				Status:      domain.PhotoWaiting,
			}
			if err := s.photos.Create(ctx, photo); err != nil {
				return &domain.PersistenceError{Op: "create photo", Err: err}
			}

			out.Slots = append(out.Slots, UploadSlot{
				PhotoID:   photo.ID,
				Filename:  u.Filename,
				ObjectKey: slot.File.ObjectKey,
				URL:       slot.URL,
				ExpiresAt: slot.ExpiresAt,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logging.FromContext(ctx, s.logger).InfoContext(ctx, "diagnosis created",
		"diagnosis_id", out.DiagnosisID, "beehive_id", beehiveID, "photos", len(out.Slots))
	return out, nil
}

// GetStatus reports per photo progress of a diagnosis owned by the member.
// Annotated image URLs are included for analyzed photos.
func (s *DiagnosisService) GetStatus(ctx context.Context, memberID, diagnosisID int64) (*DiagnosisStatus, error) {
	diagnosis, err := s.diagnoses.GetByID(ctx, diagnosisID)
	if err != nil {
		return nil, err
	}
	if _, err := s.ownedHive(ctx, memberID, diagnosis.BeehiveID); err != nil {
		return nil, err
	}

	photos, err := s.photos.ListByDiagnosis(ctx, diagnosisID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "list photos", Err: err}
	}
	annotated, err := s.analyzed.AnnotatedKeys(ctx, diagnosisID)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "annotated keys", Err: err}
	}

	status := &DiagnosisStatus{
		DiagnosisID: diagnosis.ID,
		BeehiveID:   diagnosis.BeehiveID,
		Finalized:   diagnosis.Finalized(),
		ImagoCount:  diagnosis.ImagoCount,
		LarvaCount:  diagnosis.LarvaCount,
	}
	statuses := make([]domain.PhotoStatus, 0, len(photos))
	for _, p := range photos {
		statuses = append(statuses, p.Status)
		ps := PhotoState{PhotoID: p.ID, Status: p.Status}
		if key, ok := annotated[p.ID]; ok {
			url, err := s.slots.GetObjectURL(ctx, &objectstore.FileMetadata{ObjectKey: key})
			if err != nil {
				logging.FromContext(ctx, s.logger).WarnContext(ctx, "failed to presign annotated image", "photo_id", p.ID, "error", err)
			} else {
				ps.AnnotatedURL = url
			}
		}
		status.Photos = append(status.Photos, ps)
	}
	status.State = domain.SummarizeBatch(statuses)
	return status, nil
}

// GetBatchStates summarizes several diagnoses at once. Ids the member cannot
// see are absent from the result.
func (s *DiagnosisService) GetBatchStates(ctx context.Context, memberID int64, diagnosisIDs []int64) (map[int64]domain.BatchState, error) {
	if len(diagnosisIDs) == 0 {
		return map[int64]domain.BatchState{}, nil
	}
	statuses, err := s.photos.StatusesByDiagnoses(ctx, memberID, diagnosisIDs)
	if err != nil {
		return nil, &domain.PersistenceError{Op: "photo statuses", Err: err}
	}
	out := make(map[int64]domain.BatchState, len(statuses))
	for id, st := range statuses {
		out[id] = domain.SummarizeBatch(st)
	}
	return out, nil
}

func (s *DiagnosisService) ownedHive(ctx context.Context, memberID, beehiveID int64) (*domain.Beehive, error) {
	hive, err := s.hives.GetByID(ctx, beehiveID)
	if err != nil {
		return nil, err
	}
	if hive.OwnerID != memberID {
		return nil, domain.ErrForbidden
	}
	return hive, nil
}
