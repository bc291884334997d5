package cronjob

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarker struct {
	cutoff time.Time
	ids    []int64
	err    error
}

func (m *fakeMarker) MarkUnreceivedBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	m.cutoff = cutoff
	return m.ids, m.err
}

type fakeTrigger struct {
	ready map[int64]bool
	errs  map[int64]error
	seen  []int64
}

func (t *fakeTrigger) TriggerIfReady(ctx context.Context, id int64) (bool, error) {
	t.seen = append(t.seen, id)
	return t.ready[id], t.errs[id]
}

func TestSweeper_SweepOnce(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	t.Run("re-evaluates affected diagnoses", func(t *testing.T) {
		m := &fakeMarker{ids: []int64{1, 2, 3}}
		tr := &fakeTrigger{
			ready: map[int64]bool{1: true, 3: true},
			errs:  map[int64]error{3: errors.New("redis down")},
		}
		s := NewSweeper(m, tr, 10*time.Minute, 5*time.Minute, nil)
		s.now = func() time.Time { return now }

		started, err := s.SweepOnce(context.Background())
		require.NoError(t, err)
		assert.Equal(t, []int64{1}, started)
		assert.Equal(t, []int64{1, 2, 3}, tr.seen)
		assert.Equal(t, now.Add(-15*time.Minute), m.cutoff)
	})

	t.Run("nothing expired", func(t *testing.T) {
		tr := &fakeTrigger{}
		s := NewSweeper(&fakeMarker{}, tr, time.Minute, 0, nil)
		started, err := s.SweepOnce(context.Background())
		require.NoError(t, err)
		assert.Empty(t, started)
		assert.Empty(t, tr.seen)
	})

	t.Run("store failure", func(t *testing.T) {
		s := NewSweeper(&fakeMarker{err: errors.New("db down")}, &fakeTrigger{}, time.Minute, 0, nil)
		_, err := s.SweepOnce(context.Background())
		assert.Error(t, err)
	})
}

func TestSweeper_StartRejectsBadSpec(t *testing.T) {
	s := NewSweeper(&fakeMarker{}, &fakeTrigger{}, time.Minute, 0, nil)
	assert.Error(t, s.Start(context.Background(), "every five minutes"))
	s.Stop()
}
