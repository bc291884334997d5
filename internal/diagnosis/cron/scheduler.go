package cronjob

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/worldbeesion/beecareful-backend/internal/logging"
)

type unreceivedMarker interface {
	MarkUnreceivedBefore(ctx context.Context, cutoff time.Time) ([]int64, error)
}

type readinessTrigger interface {
	TriggerIfReady(ctx context.Context, diagnosisID int64) (bool, error)
}

// Sweeper gives up on photos whose upload URL expired without an upload and
// lets the affected diagnoses start with what they have.
type Sweeper struct {
	photos    unreceivedMarker
	tracker   readinessTrigger
	putExpiry time.Duration
	grace     time.Duration
	now       func() time.Time
	logger    *slog.Logger

	cron *cron.Cron
}

func NewSweeper(photos unreceivedMarker, tracker readinessTrigger, putExpiry, grace time.Duration, logger *slog.Logger) *Sweeper {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Sweeper{
		photos:    photos,
		tracker:   tracker,
		putExpiry: putExpiry,
		grace:     grace,
		now:       time.Now,
		logger:    logger,
	}
}

// SweepOnce runs a single pass and returns the diagnoses it dispatched.
func (s *Sweeper) SweepOnce(ctx context.Context) ([]int64, error) {
	cutoff := s.now().Add(-(s.putExpiry + s.grace))

	affected, err := s.photos.MarkUnreceivedBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	if len(affected) == 0 {
		return nil, nil
	}
	s.logger.InfoContext(ctx, "marked photos unreceived", "diagnoses", len(affected), "cutoff", cutoff)

	var started []int64
	for _, id := range affected {
		ok, err := s.tracker.TriggerIfReady(ctx, id)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to re-evaluate diagnosis", "diagnosis_id", id, "error", err)
			continue
		}
		if ok {
			started = append(started, id)
		}
	}
	return started, nil
}

// Start schedules SweepOnce on spec, a six field cron expression.
func (s *Sweeper) Start(ctx context.Context, spec string) error {
	c := cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	_, err := c.AddFunc(spec, func() {
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.ErrorContext(ctx, "unreceived sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron = c
	s.logger.Info("unreceived sweep scheduled", "spec", spec)
	c.Start()
	return nil
}

// Stop waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
}
