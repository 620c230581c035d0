package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/fcpbot/fcpbot/internal/models"
)

// MemoryStore is an in-process TimerStore for dev and tests. It offers the
// same overwrite semantics as the Postgres store but no durability across
// processes.
type MemoryStore struct {
	mu     sync.RWMutex
	timers map[int]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{timers: map[int]time.Time{}}
}

func (m *MemoryStore) UpsertTimer(ctx context.Context, t models.Timer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.timers[t.ProposalNum] = t.EndsAt
	return nil
}

func (m *MemoryStore) DeleteTimer(ctx context.Context, proposalNum int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.timers[proposalNum]; !ok {
		return ErrNotFound
	}
	delete(m.timers, proposalNum)
	return nil
}

func (m *MemoryStore) ListTimers(ctx context.Context) ([]models.Timer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	timers := make([]models.Timer, 0, len(m.timers))
	for num, at := range m.timers {
		timers = append(timers, models.Timer{ProposalNum: num, EndsAt: at})
	}
	sort.Slice(timers, func(i, j int) bool { return timers[i].ProposalNum < timers[j].ProposalNum })
	return timers, nil
}

func (m *MemoryStore) Ping(ctx context.Context) error { return nil }
