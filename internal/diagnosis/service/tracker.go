package service

import (
	"context"
	"errors"
	"log/slog"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
	"github.com/worldbeesion/beecareful-backend/internal/logging"
)

// UploadTracker follows photo uploads and starts a diagnosis run once every
// photo of the diagnosis is either stored or given up on.
type UploadTracker struct {
	photos     PhotoStore
	files      FileStore
	claims     RunClaimer
	dispatcher Dispatcher
	logger     *slog.Logger
}

func NewUploadTracker(photos PhotoStore, files FileStore, claims RunClaimer, dispatcher Dispatcher, logger *slog.Logger) *UploadTracker {
	if logger == nil {
		logger = logging.Discard()
	}
	return &UploadTracker{
		photos:     photos,
		files:      files,
		claims:     claims,
		dispatcher: dispatcher,
		logger:     logger,
	}
}

// OnPhotoStored records that the object behind key has landed in the bucket
// and starts the diagnosis once it is ready. Keys that do not belong to an
// original photo are an error; photos that already left WAITING are ignored.
// Calling it again for the same key is safe.
func (t *UploadTracker) OnPhotoStored(ctx context.Context, objectKey string) error {
	log := logging.FromContext(ctx, t.logger).With("object_key", objectKey)

	photo, err := t.photos.GetByObjectKey(ctx, objectKey)
	if err != nil {
		return err
	}
	if photo.Status != domain.PhotoWaiting {
		log.InfoContext(ctx, "photo is no longer waiting, ignoring upload", "photo_id", photo.ID, "status", photo.Status)
		return nil
	}

	marked, err := t.files.MarkStored(ctx, objectKey)
	if err != nil {
		return &domain.PersistenceError{Op: "mark stored", Err: err}
	}
	if !marked {
		// Redelivery: an earlier attempt may have stored the file and then
		// failed before the run was claimed.
		log.InfoContext(ctx, "file already stored, checking readiness again", "photo_id", photo.ID)
	}

	_, err = t.TriggerIfReady(ctx, photo.DiagnosisID)
	return err
}

// TriggerIfReady dispatches the diagnosis when it is ready and no run was
// started for it yet. It reports whether this call dispatched the run.
func (t *UploadTracker) TriggerIfReady(ctx context.Context, diagnosisID int64) (bool, error) {
	photos, err := t.photos.ListByDiagnosis(ctx, diagnosisID)
	if err != nil {
		return false, &domain.PersistenceError{Op: "list photos", Err: err}
	}
	if !domain.ReadyForAnalysis(photos) {
		return false, nil
	}
	return t.claimAndDispatch(ctx, diagnosisID, len(photos))
}

// Rerun recovers a diagnosis whose run was lost, for example because the
// process stopped in the middle of it. Photos stuck in ANALYZING are marked
// FAIL, the run claim is dropped and the diagnosis is dispatched again. The
// new run analyzes the photos still WAITING and enqueues finalization.
// It must not be used while a run of the diagnosis is still in flight.
func (t *UploadTracker) Rerun(ctx context.Context, diagnosisID int64) (bool, error) {
	log := logging.FromContext(ctx, t.logger).With("diagnosis_id", diagnosisID)

	photos, err := t.photos.ListByDiagnosis(ctx, diagnosisID)
	if err != nil {
		return false, &domain.PersistenceError{Op: "list photos", Err: err}
	}
	for _, p := range photos {
		if p.Status != domain.PhotoAnalyzing {
			continue
		}
		moved, err := t.photos.TransitionStatus(ctx, p.ID, domain.PhotoFail)
		if err != nil {
			return false, &domain.PersistenceError{Op: "fail stale photo", Err: err}
		}
		if moved {
			log.WarnContext(ctx, "stale analyzing photo marked failed", "photo_id", p.ID)
		}
	}

	photos, err = t.photos.ListByDiagnosis(ctx, diagnosisID)
	if err != nil {
		return false, &domain.PersistenceError{Op: "list photos", Err: err}
	}
	if !domain.RecoverableRun(photos) {
		return false, nil
	}

	if err := t.claims.Release(ctx, diagnosisID); err != nil {
		return false, &domain.PersistenceError{Op: "release run", Err: err}
	}
	return t.claimAndDispatch(ctx, diagnosisID, len(photos))
}

func (t *UploadTracker) claimAndDispatch(ctx context.Context, diagnosisID int64, photos int) (bool, error) {
	log := logging.FromContext(ctx, t.logger).With("diagnosis_id", diagnosisID)

	claimed, err := t.claims.Claim(ctx, diagnosisID)
	if err != nil {
		return false, &domain.PersistenceError{Op: "claim run", Err: err}
	}
	if !claimed {
		log.InfoContext(ctx, "diagnosis run already started")
		return false, nil
	}

	log.InfoContext(ctx, "all photos settled, starting diagnosis", "photos", photos)
	t.dispatcher.Dispatch(ctx, diagnosisID)
	return true, nil
}

// IsUnknownObject reports whether err means the stored object is not an
// original photo of any diagnosis.
func IsUnknownObject(err error) bool {
	return errors.Is(err, domain.ErrReferenceNotFound)
}
