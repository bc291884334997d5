package service

import (
	"context"
	"log/slog"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
	"github.com/worldbeesion/beecareful-backend/internal/logging"
	"github.com/worldbeesion/beecareful-backend/internal/metrics"
	"github.com/worldbeesion/beecareful-backend/internal/notification"
)

// FinalizeOutcome describes a diagnosis that this call finalized.
type FinalizeOutcome struct {
	DiagnosisID int64
	BeehiveID   int64
	OwnerID     int64
	Assessment  domain.Assessment
}

// Finalizer aggregates the analyzed photos of a diagnosis, decides whether
// the hive is infected and notifies its owner.
type Finalizer struct {
	tx        Transactor
	diagnoses DiagnosisStore
	analyzed  AnalyzedPhotoStore
	hives     HiveStore
	notifier  notification.Notifier
	events    EventPublisher
	metrics   *metrics.DiagnosisMetrics
	logger    *slog.Logger
}

type FinalizerDeps struct {
	Tx        Transactor
	Diagnoses DiagnosisStore
	Analyzed  AnalyzedPhotoStore
	Hives     HiveStore
	Notifier  notification.Notifier
	Events    EventPublisher
	Metrics   *metrics.DiagnosisMetrics
	Logger    *slog.Logger
}

func NewFinalizer(d FinalizerDeps) *Finalizer {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	return &Finalizer{
		tx:        d.Tx,
		diagnoses: d.Diagnoses,
		analyzed:  d.Analyzed,
		hives:     d.Hives,
		notifier:  d.Notifier,
		events:    d.Events,
		metrics:   d.Metrics,
		logger:    d.Logger,
	}
}

// FinishDiagnosis runs in its own transaction, independent of whoever
// triggered it. Only the first call for a diagnosis does any work: later calls
// return a nil outcome and a nil error.
func (f *Finalizer) FinishDiagnosis(ctx context.Context, diagnosisID int64) (*FinalizeOutcome, error) {
	ctx = context.WithoutCancel(ctx)
	log := logging.FromContext(ctx, f.logger).With("diagnosis_id", diagnosisID)

	var outcome *FinalizeOutcome
	err := f.tx.WithinTx(ctx, func(ctx context.Context) error {
		diagnosis, err := f.diagnoses.GetByID(ctx, diagnosisID)
		if err != nil {
			return err
		}
		hive, err := f.hives.GetByID(ctx, diagnosis.BeehiveID)
		if err != nil {
			return err
		}

		claimed, err := f.diagnoses.ClaimFinalization(ctx, diagnosisID)
		if err != nil {
			return &domain.PersistenceError{Op: "claim finalization", Err: err}
		}
		if !claimed {
			return nil
		}

		photoIDs, err := f.analyzed.ListIDsByDiagnosis(ctx, diagnosisID)
		if err != nil {
			return &domain.PersistenceError{Op: "list analyzed photos", Err: err}
		}
		totals, err := f.analyzed.SumDiseases(ctx, photoIDs)
		if err != nil {
			return &domain.PersistenceError{Op: "sum diseases", Err: err}
		}
		larva, imago, err := f.analyzed.SumCounts(ctx, photoIDs)
		if err != nil {
			return &domain.PersistenceError{Op: "sum counts", Err: err}
		}

		assessment := domain.Assess(totals, larva, imago)

		if err := f.diagnoses.SaveAggregate(ctx, diagnosisID, imago, larva); err != nil {
			return &domain.PersistenceError{Op: "save aggregate", Err: err}
		}
		if err := f.hives.SetInfected(ctx, hive.ID, assessment.HasDisease); err != nil {
			return err
		}

		outcome = &FinalizeOutcome{
			DiagnosisID: diagnosisID,
			BeehiveID:   hive.ID,
			OwnerID:     hive.OwnerID,
			Assessment:  assessment,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if outcome == nil {
		log.InfoContext(ctx, "diagnosis already finalized")
		f.metrics.Finalized("duplicate")
		return nil, nil
	}

	a := outcome.Assessment
	log.InfoContext(ctx, "diagnosis finalized",
		"beehive_id", outcome.BeehiveID,
		"infected", a.HasDisease,
		"larva_total", a.LarvaTotal,
		"imago_total", a.ImagoTotal,
		"larva_varroa_pct", a.LarvaVarroaPct,
		"imago_varroa_pct", a.ImagoVarroaPct,
	)
	if a.HasDisease {
		f.metrics.Finalized("infected")
	} else {
		f.metrics.Finalized("healthy")
	}

	f.notify(ctx, log, outcome)

	infected := a.HasDisease
	publishEvent(ctx, f.events, f.logger, domain.StatusEvent{
		Type:        domain.EventFinalized,
		DiagnosisID: diagnosisID,
		Infected:    &infected,
	})
	return outcome, nil
}

// notify is sent after commit; a lost notification never undoes the result.
func (f *Finalizer) notify(ctx context.Context, log *slog.Logger, o *FinalizeOutcome) {
	if f.notifier == nil {
		return
	}
	msg := completionMessage(o)
	if err := f.notifier.Notify(ctx, o.OwnerID, msg); err != nil {
		log.WarnContext(ctx, "failed to notify owner", "owner_id", o.OwnerID, "error", err)
		f.metrics.NotificationFailed()
	}
}

func completionMessage(o *FinalizeOutcome) notification.Message {
	msg := notification.Message{
		Title:       "Diagnosis complete",
		Body:        "No disease was found in your beehive.",
		Severity:    notification.SeverityInfo,
		BeehiveID:   o.BeehiveID,
		DiagnosisID: o.DiagnosisID,
		Status:      string(domain.PhotoSuccess),
	}
	if o.Assessment.HasDisease {
		msg.Body = "Signs of disease were found in your beehive. Please check the diagnosis."
		msg.Severity = notification.SeverityWarning
	}
	return msg
}
