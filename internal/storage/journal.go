package storage

import (
	"context"
	"sync"

	"poolEngine/internal/model"
)

// Journal keeps events in memory, in commit order.
type Journal struct {
	mu     sync.RWMutex
	events []model.PoolEvent
}

func NewJournal() *Journal {
	return &Journal{}
}

func (j *Journal) PutEvents(_ context.Context, events []model.PoolEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, events...)
	return nil
}

// Events returns a copy of everything recorded so far.
func (j *Journal) Events() []model.PoolEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]model.PoolEvent, len(j.events))
	copy(out, j.events)
	return out
}

// Kind returns the recorded events of one kind.
func (j *Journal) Kind(kind model.EventKind) []model.PoolEvent {
	j.mu.RLock()
	defer j.mu.RUnlock()
	var out []model.PoolEvent
	for _, e := range j.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

func (j *Journal) Len() int {
	j.mu.RLock()
	defer j.mu.RUnlock()
	return len(j.events)
}
