// package scheduler arms wall-clock timers for FCP deadlines, backed by a
// durable TimerStore so pending deadlines survive process restarts.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/fcpbot/fcpbot/internal/models"
	"github.com/fcpbot/fcpbot/internal/store"
)

// ErrNotScheduled is returned by Cancel when no timer exists for the
// proposal. Cancelling implies the caller believed one did, so this usually
// signals a caller logic error.
var ErrNotScheduled = errors.New("no timer scheduled for proposal")

// Callback is invoked when a timer fires. The persisted entry has already
// been removed by then.
type Callback func(ctx context.Context, proposalNum int)

// Scheduler keeps one in-memory timer per proposal, mirroring the rows in
// the TimerStore. Schedule persists before arming; a crash after persist
// still fires after restart, a crash before persist never fires.
type Scheduler struct {
	store store.TimerStore
	cb    Callback

	runCtx context.Context

	mu      sync.Mutex
	timers  map[int]*time.Timer
	stopped bool
	wg      sync.WaitGroup
}

func New(st store.TimerStore, cb Callback) *Scheduler {
	return &Scheduler{
		store:  st,
		cb:     cb,
		timers: map[int]*time.Timer{},
	}
}

// Start reloads every persisted timer and re-arms it. Entries whose fire
// time has already passed fire immediately rather than being dropped, which
// gives at-least-once semantics across restarts. ctx is held for the
// lifetime of the scheduler and passed to fired callbacks.
func (s *Scheduler) Start(ctx context.Context) error {
	s.runCtx = ctx
	timers, err := s.store.ListTimers(ctx)
	if err != nil {
		return fmt.Errorf("load persisted timers: %w", err)
	}
	for _, t := range timers {
		s.arm(t.ProposalNum, t.EndsAt)
	}
	if len(timers) > 0 {
		log.Printf("[scheduler] re-armed %d persisted timer(s)", len(timers))
	}
	return nil
}

// Schedule registers the FCP deadline for a proposal, replacing any prior
// timer for the same proposal. The entry is persisted before the in-memory
// timer is armed.
func (s *Scheduler) Schedule(ctx context.Context, proposalNum int, at time.Time) error {
	if err := s.store.UpsertTimer(ctx, models.Timer{ProposalNum: proposalNum, EndsAt: at}); err != nil {
		return fmt.Errorf("persist timer: %w", err)
	}
	s.arm(proposalNum, at)
	log.Printf("[scheduler] proposal #%d scheduled to fire at %s", proposalNum, at.UTC().Format(time.RFC3339))
	return nil
}

// Cancel removes a pending timer and its persisted entry.
func (s *Scheduler) Cancel(ctx context.Context, proposalNum int) error {
	s.mu.Lock()
	t, ok := s.timers[proposalNum]
	if ok {
		t.Stop()
		delete(s.timers, proposalNum)
	}
	s.mu.Unlock()
	if !ok {
		return ErrNotScheduled
	}
	if err := s.store.DeleteTimer(ctx, proposalNum); err != nil && !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("delete persisted timer: %w", err)
	}
	log.Printf("[scheduler] proposal #%d timer cancelled", proposalNum)
	return nil
}

// Stop halts all pending timers without touching the store and waits for
// in-flight callbacks to return. Persisted entries will be re-armed by the
// next Start.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	s.stopped = true
	for num, t := range s.timers {
		t.Stop()
		delete(s.timers, num)
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *Scheduler) arm(proposalNum int, at time.Time) {
	d := time.Until(at)
	if d < 0 {
		d = 0
	}
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	if old, ok := s.timers[proposalNum]; ok {
		old.Stop()
	}
	s.timers[proposalNum] = time.AfterFunc(d, func() {
		s.fire(proposalNum)
	})
	s.mu.Unlock()
}

// fire durably removes the entry before invoking the callback, so a callback
// panic or crash cannot cause a duplicate firing.
func (s *Scheduler) fire(proposalNum int) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	delete(s.timers, proposalNum)
	s.wg.Add(1)
	s.mu.Unlock()
	defer s.wg.Done()

	ctx := s.runCtx
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.store.DeleteTimer(ctx, proposalNum); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Cancelled between arming and firing; nothing to enact.
			log.Printf("[scheduler] proposal #%d fired but entry already removed; skipping", proposalNum)
			return
		}
		// Leave the persisted row where it is; the next restart re-arms it.
		log.Printf("[scheduler] proposal #%d: removing persisted timer failed: %v", proposalNum, err)
		return
	}
	s.cb(ctx, proposalNum)
}
