package scheduler_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/fcpbot/fcpbot/internal/models"
	"github.com/fcpbot/fcpbot/internal/scheduler"
	"github.com/fcpbot/fcpbot/internal/store"
)

// fireRecorder collects fired proposal numbers on a channel.
type fireRecorder struct {
	mu    sync.Mutex
	fired []int
	ch    chan int
}

func newFireRecorder() *fireRecorder {
	return &fireRecorder{ch: make(chan int, 16)}
}

func (r *fireRecorder) callback(ctx context.Context, proposalNum int) {
	r.mu.Lock()
	r.fired = append(r.fired, proposalNum)
	r.mu.Unlock()
	r.ch <- proposalNum
}

func (r *fireRecorder) waitForFire(t *testing.T, timeout time.Duration) int {
	t.Helper()
	select {
	case num := <-r.ch:
		return num
	case <-time.After(timeout):
		t.Fatalf("timer did not fire within %s", timeout)
		return 0
	}
}

func (r *fireRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.fired)
}

func TestScheduleFiresAndRemovesEntry(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	rec := newFireRecorder()

	s := scheduler.New(st, rec.callback)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	if err := s.Schedule(ctx, 42, time.Now().Add(30*time.Millisecond)); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}

	if got := rec.waitForFire(t, 2*time.Second); got != 42 {
		t.Fatalf("expected proposal 42 to fire, got %d", got)
	}

	timers, err := st.ListTimers(ctx)
	if err != nil {
		t.Fatalf("ListTimers error: %v", err)
	}
	if len(timers) != 0 {
		t.Fatalf("expected store emptied after fire, got %+v", timers)
	}
}

func TestRestartReArmsPersistedTimers(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	rec := newFireRecorder()

	// First process schedules and dies before the timer fires.
	first := scheduler.New(st, func(ctx context.Context, n int) {
		t.Fatalf("timer fired before restart")
	})
	if err := first.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if err := first.Schedule(ctx, 42, time.Now().Add(80*time.Millisecond)); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	first.Stop()

	// Replacement process re-arms from the store and still fires.
	second := scheduler.New(st, rec.callback)
	if err := second.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer second.Stop()

	if got := rec.waitForFire(t, 2*time.Second); got != 42 {
		t.Fatalf("expected proposal 42 to fire after restart, got %d", got)
	}
}

func TestStartFiresPastDueImmediately(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	rec := newFireRecorder()

	// Simulates a fire time missed while the process was down.
	if err := st.UpsertTimer(ctx, models.Timer{ProposalNum: 7, EndsAt: time.Now().Add(-time.Hour)}); err != nil {
		t.Fatalf("UpsertTimer error: %v", err)
	}

	s := scheduler.New(st, rec.callback)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	if got := rec.waitForFire(t, 2*time.Second); got != 7 {
		t.Fatalf("expected past-due proposal 7 to fire, got %d", got)
	}
}

func TestCancelRemovesTimer(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	rec := newFireRecorder()

	s := scheduler.New(st, rec.callback)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	if err := s.Schedule(ctx, 9, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if err := s.Cancel(ctx, 9); err != nil {
		t.Fatalf("Cancel error: %v", err)
	}

	timers, err := st.ListTimers(ctx)
	if err != nil {
		t.Fatalf("ListTimers error: %v", err)
	}
	if len(timers) != 0 {
		t.Fatalf("expected store emptied after cancel, got %+v", timers)
	}
	if rec.count() != 0 {
		t.Fatalf("cancelled timer fired anyway")
	}
}

func TestCancelUnknownReturnsErrNotScheduled(t *testing.T) {
	s := scheduler.New(store.NewMemoryStore(), func(ctx context.Context, n int) {})
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	if err := s.Cancel(context.Background(), 404); !errors.Is(err, scheduler.ErrNotScheduled) {
		t.Fatalf("expected ErrNotScheduled, got %v", err)
	}
}

func TestScheduleReplacesPriorTimer(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	rec := newFireRecorder()

	s := scheduler.New(st, rec.callback)
	if err := s.Start(ctx); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	defer s.Stop()

	if err := s.Schedule(ctx, 5, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Schedule error: %v", err)
	}
	if err := s.Schedule(ctx, 5, time.Now().Add(30*time.Millisecond)); err != nil {
		t.Fatalf("Schedule (replace) error: %v", err)
	}

	rec.waitForFire(t, 2*time.Second)
	// The replaced far-future timer must be gone; only one fire total.
	time.Sleep(50 * time.Millisecond)
	if rec.count() != 1 {
		t.Fatalf("expected exactly one fire, got %d", rec.count())
	}
}
