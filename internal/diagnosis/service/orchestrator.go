package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
	"github.com/worldbeesion/beecareful-backend/internal/logging"
	"github.com/worldbeesion/beecareful-backend/internal/metrics"
)

const defaultMaxParallel = 8

// Orchestrator fans a diagnosis out to one analysis unit per photo, waits for
// all of them and then queues the diagnosis for finalization.
type Orchestrator struct {
	diagnoses   DiagnosisStore
	photos      PhotoStore
	worker      photoProcessor
	queue       FinalizeQueue
	maxParallel int
	metrics     *metrics.DiagnosisMetrics
	logger      *slog.Logger

	inflight sync.WaitGroup
}

type OrchestratorDeps struct {
	Diagnoses   DiagnosisStore
	Photos      PhotoStore
	Worker      *PhotoWorker
	Queue       FinalizeQueue
	MaxParallel int
	Metrics     *metrics.DiagnosisMetrics
	Logger      *slog.Logger
}

func NewOrchestrator(d OrchestratorDeps) *Orchestrator {
	return newOrchestrator(d.Diagnoses, d.Photos, d.Worker, d.Queue, d.MaxParallel, d.Metrics, d.Logger)
}

func newOrchestrator(diagnoses DiagnosisStore, photos PhotoStore, worker photoProcessor, queue FinalizeQueue, maxParallel int, m *metrics.DiagnosisMetrics, logger *slog.Logger) *Orchestrator {
	if maxParallel < 1 {
		maxParallel = defaultMaxParallel
	}
	if logger == nil {
		logger = logging.Discard()
	}
	return &Orchestrator{
		diagnoses:   diagnoses,
		photos:      photos,
		worker:      worker,
		queue:       queue,
		maxParallel: maxParallel,
		metrics:     m,
		logger:      logger,
	}
}

// RunDiagnosis analyzes every dispatchable photo of the diagnosis and then
// enqueues its finalization exactly once, whatever the individual outcomes.
// A diagnosis without photos is a no-op.
func (o *Orchestrator) RunDiagnosis(ctx context.Context, diagnosisID int64) error {
	log := logging.FromContext(ctx, o.logger).With("diagnosis_id", diagnosisID)

	diagnosis, err := o.diagnoses.GetByID(ctx, diagnosisID)
	if err != nil {
		return err
	}

	photos, err := o.photos.ListByDiagnosis(ctx, diagnosisID)
	if err != nil {
		return &domain.PersistenceError{Op: "list photos", Err: err}
	}
	if len(photos) == 0 {
		log.InfoContext(ctx, "diagnosis has no photos, nothing to run")
		return nil
	}

	var dispatch []domain.OriginalPhoto
	for _, p := range photos {
		if p.Dispatchable() {
			dispatch = append(dispatch, p)
		}
	}

	// Units never fail the group so one photo cannot cancel its siblings.
	outcomes := make([]error, len(dispatch))
	var g errgroup.Group
	g.SetLimit(o.maxParallel)
	for i, p := range dispatch {
		g.Go(func() error {
			outcomes[i] = o.worker.ProcessPhoto(ctx, p, diagnosis)
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, err := range outcomes {
		if err != nil {
			failed++
		}
	}
	if failed > 0 {
		log.WarnContext(ctx, "some photos failed analysis",
			"failed", failed, "dispatched", len(dispatch), "error", errors.Join(outcomes...))
	} else {
		log.InfoContext(ctx, "all photos analyzed", "dispatched", len(dispatch))
	}

	if err := o.queue.Enqueue(ctx, diagnosisID); err != nil {
		return fmt.Errorf("enqueue finalization of diagnosis %d: %w", diagnosisID, err)
	}
	return nil
}

// Dispatch runs RunDiagnosis in the background on a context that keeps the
// values of ctx but not its cancellation.
func (o *Orchestrator) Dispatch(ctx context.Context, diagnosisID int64) {
	ctx = context.WithoutCancel(ctx)
	o.inflight.Add(1)
	o.metrics.RunStarted()

	go func() {
		defer o.inflight.Done()
		defer o.metrics.RunDone()

		if err := o.RunDiagnosis(ctx, diagnosisID); err != nil {
			logging.FromContext(ctx, o.logger).ErrorContext(ctx, "diagnosis run failed", "diagnosis_id", diagnosisID, "error", err)
		}
	}()
}

// Wait blocks until every dispatched run returned or ctx is done.
func (o *Orchestrator) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		o.inflight.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
