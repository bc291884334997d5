// Package queue carries finalization requests from the orchestrator to the
// finalizer, either in process or over Kafka.
package queue

import (
	"context"
	"log/slog"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/service"
	"github.com/worldbeesion/beecareful-backend/internal/logging"
)

type Finisher interface {
	FinishDiagnosis(ctx context.Context, diagnosisID int64) (*service.FinalizeOutcome, error)
}

// Inline finalizes on the caller's goroutine.
type Inline struct {
	finisher Finisher
	logger   *slog.Logger
}

func NewInline(finisher Finisher, logger *slog.Logger) *Inline {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Inline{finisher: finisher, logger: logger}
}

func (q *Inline) Enqueue(ctx context.Context, diagnosisID int64) error {
	_, err := q.finisher.FinishDiagnosis(context.WithoutCancel(ctx), diagnosisID)
	return err
}
