package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
)

// publishEvent is best effort: subscribers are only a live view of state that
// is already persisted.
func publishEvent(ctx context.Context, p EventPublisher, logger *slog.Logger, evt domain.StatusEvent) {
	if p == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	if err := p.Publish(ctx, evt); err != nil {
		logger.WarnContext(ctx, "failed to publish status event", "diagnosis_id", evt.DiagnosisID, "type", evt.Type, "error", err)
	}
}
