package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
	"github.com/worldbeesion/beecareful-backend/internal/logging"
	"github.com/worldbeesion/beecareful-backend/internal/metrics"
	"github.com/worldbeesion/beecareful-backend/internal/telemetry"
)

const annotatedContentType = "image/jpeg"

// PhotoWorker runs the analysis unit of a single photo.
type PhotoWorker struct {
	tx       Transactor
	photos   PhotoStore
	analyzed AnalyzedPhotoStore
	files    FileStore
	analyzer Analyzer
	catalog  *domain.Catalog
	events   EventPublisher
	metrics  *metrics.DiagnosisMetrics
	logger   *slog.Logger
}

type PhotoWorkerDeps struct {
	Tx       Transactor
	Photos   PhotoStore
	Analyzed AnalyzedPhotoStore
	Files    FileStore
	Analyzer Analyzer
	Catalog  *domain.Catalog
	Events   EventPublisher
	Metrics  *metrics.DiagnosisMetrics
	Logger   *slog.Logger
}

func NewPhotoWorker(d PhotoWorkerDeps) *PhotoWorker {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	return &PhotoWorker{
		tx:       d.Tx,
		photos:   d.Photos,
		analyzed: d.Analyzed,
		files:    d.Files,
		analyzer: d.Analyzer,
		catalog:  d.Catalog,
		events:   d.Events,
		metrics:  d.Metrics,
		logger:   d.Logger,
	}
}

// ProcessPhoto moves photo through ANALYZING to SUCCESS or FAIL. A photo that
// is no longer WAITING is skipped. Failures are returned as
// *domain.PhotoProcessingError after the photo was marked FAIL.
func (w *PhotoWorker) ProcessPhoto(ctx context.Context, photo domain.OriginalPhoto, diagnosis *domain.Diagnosis) error {
	log := logging.FromContext(ctx, w.logger).With("diagnosis_id", diagnosis.ID, "photo_id", photo.ID)

	claimed, err := w.photos.TransitionStatus(ctx, photo.ID, domain.PhotoAnalyzing)
	if err != nil {
		w.metrics.PhotoProcessed("fail")
		return &domain.PhotoProcessingError{
			PhotoID:     photo.ID,
			DiagnosisID: diagnosis.ID,
			Err:         &domain.PersistenceError{Op: "mark analyzing", Err: err},
		}
	}
	if !claimed {
		log.InfoContext(ctx, "photo is not waiting, skipping", "status", photo.Status)
		w.metrics.PhotoProcessed("skipped")
		return nil
	}
	w.publish(ctx, diagnosis.ID, photo.ID, domain.PhotoAnalyzing)

	if err := w.analyzeAndStore(ctx, photo, diagnosis); err != nil {
		log.WarnContext(ctx, "photo analysis failed", "error", err)
		w.markFailed(ctx, log, photo, diagnosis, err)
		w.metrics.PhotoProcessed("fail")
		return &domain.PhotoProcessingError{PhotoID: photo.ID, DiagnosisID: diagnosis.ID, Err: err}
	}

	log.InfoContext(ctx, "photo analyzed")
	w.metrics.PhotoProcessed("success")
	w.publish(ctx, diagnosis.ID, photo.ID, domain.PhotoSuccess)
	return nil
}

func (w *PhotoWorker) analyzeAndStore(ctx context.Context, photo domain.OriginalPhoto, diagnosis *domain.Diagnosis) error {
	result, err := w.analyzer.Analyze(ctx, photo.ObjectKey)
	if err != nil {
		return err
	}

	return w.tx.WithinTx(ctx, func(ctx context.Context) error {
		file, err := w.files.ResolveStored(ctx, result.AnnotatedObjectKey, annotatedContentType)
		if err != nil {
			return &domain.PersistenceError{Op: "resolve annotated image", Err: err}
		}

		analyzed := &domain.AnalyzedPhoto{
			OriginalPhotoID: photo.ID,
			DiagnosisID:     diagnosis.ID,
			FileID:          file.ID,
			ImagoCount:      result.ImagoTotal(),
			LarvaCount:      result.LarvaTotal(),
		}
		if err := w.analyzed.Create(ctx, analyzed); err != nil {
			return &domain.PersistenceError{Op: "create analyzed photo", Err: err}
		}

		for _, dc := range result.DiseaseCounts() {
			disease, ok := w.catalog.Lookup(dc.Key)
			if !ok {
				return &domain.PersistenceError{Op: "create analyzed photo disease", Err: domain.NotFound("disease", dc.Key.String())}
			}
			row := &domain.AnalyzedPhotoDisease{AnalyzedPhotoID: analyzed.ID, DiseaseID: disease.ID, Count: dc.Count}
			if err := w.analyzed.CreateDisease(ctx, row); err != nil {
				return &domain.PersistenceError{Op: "create analyzed photo disease", Err: err}
			}
		}

		ok, err := w.photos.TransitionStatus(ctx, photo.ID, domain.PhotoSuccess)
		if err != nil {
			return &domain.PersistenceError{Op: "mark success", Err: err}
		}
		if !ok {
			return fmt.Errorf("mark success: %w", domain.ErrInvalidTransition)
		}
		return nil
	})
}

// markFailed records FAIL on a context that outlives the caller. Losing this
// write leaves the photo ANALYZING forever, which is logged as CRITICAL and
// reported, but not returned.
func (w *PhotoWorker) markFailed(ctx context.Context, log *slog.Logger, photo domain.OriginalPhoto, diagnosis *domain.Diagnosis, cause error) {
	ctx = context.WithoutCancel(ctx)

	ok, err := w.photos.TransitionStatus(ctx, photo.ID, domain.PhotoFail)
	if err != nil {
		logging.Critical(ctx, log, "failed to mark photo FAIL, photo stays ANALYZING", "cause", cause, "error", err)
		telemetry.CaptureCritical(&domain.PersistenceError{Op: "mark fail", Err: err}, "photo_worker", map[string]string{
			"diagnosis_id": strconv.FormatInt(diagnosis.ID, 10),
			"photo_id":     strconv.FormatInt(photo.ID, 10),
		})
		return
	}
	if !ok {
		log.WarnContext(ctx, "photo left ANALYZING before it could be marked FAIL")
		return
	}
	w.publish(ctx, diagnosis.ID, photo.ID, domain.PhotoFail)
}

func (w *PhotoWorker) publish(ctx context.Context, diagnosisID, photoID int64, status domain.PhotoStatus) {
	publishEvent(ctx, w.events, w.logger, domain.StatusEvent{
		Type:        domain.EventPhotoStatus,
		DiagnosisID: diagnosisID,
		PhotoID:     photoID,
		Status:      status,
	})
}
