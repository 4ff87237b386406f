package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"calsync/internal/domain"
)

type recordingSyncer struct {
	mu        sync.Mutex
	calls     int
	triggers  []domain.Trigger
	deadlines []bool
	err       error
}

func (r *recordingSyncer) SyncAllCalendars(ctx context.Context, trigger domain.Trigger) (*domain.FleetResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, hasDeadline := ctx.Deadline()
	r.calls++
	r.triggers = append(r.triggers, trigger)
	r.deadlines = append(r.deadlines, hasDeadline)

	if r.err != nil {
		return nil, r.err
	}
	return &domain.FleetResult{
		Results: []domain.CalendarResult{
			{CalendarSlug: "a", Result: &domain.SyncResult{Success: true}},
			{CalendarSlug: "b", Result: &domain.SyncResult{Err: errors.New("boom")}},
		},
	}, nil
}

func (r *recordingSyncer) snapshot() (int, []domain.Trigger, []bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls, append([]domain.Trigger(nil), r.triggers...), append([]bool(nil), r.deadlines...)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestScheduler_RunsImmediatelyAndOnTicks(t *testing.T) {
	syncer := &recordingSyncer{}
	s := NewScheduler(syncer, 20*time.Millisecond, time.Minute, newTestLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 110*time.Millisecond)
	defer cancel()

	err := s.Start(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	calls, triggers, deadlines := syncer.snapshot()
	assert.GreaterOrEqual(t, calls, 3)
	for i := range triggers {
		assert.Equal(t, domain.TriggerScheduled, triggers[i])
		assert.True(t, deadlines[i])
	}
}

func TestScheduler_SurvivesFailedPass(t *testing.T) {
	syncer := &recordingSyncer{err: errors.New("list active calendars: db down")}
	s := NewScheduler(syncer, 10*time.Millisecond, 0, newTestLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 55*time.Millisecond)
	defer cancel()

	_ = s.Start(ctx)

	calls, _, _ := syncer.snapshot()
	assert.GreaterOrEqual(t, calls, 2)
}

func TestScheduler_StopsOnCancel(t *testing.T) {
	syncer := &recordingSyncer{}
	s := NewScheduler(syncer, time.Hour, time.Minute, newTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		calls, _, _ := syncer.snapshot()
		return calls == 1
	}, time.Second, 5*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop")
	}
}
