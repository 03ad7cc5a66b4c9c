// README: Trip store contract and its in-memory implementation.
package trip

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"ridedispatch/internal/types"
)

var ErrNotFound = errors.New("trip not found")

type Store interface {
	Create(ctx context.Context, t *Trip) error
	Get(ctx context.Context, id types.ID) (*Trip, error)
	// UpdateStatus applies from->to only when the stored status and version
	// still match, and bumps the version.
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, reason string) (bool, error)
	// FindActiveByUnit returns the unit's non-terminal trip or ErrNotFound.
	FindActiveByUnit(ctx context.Context, unitID types.ID) (*Trip, error)
	ListActive(ctx context.Context) ([]*Trip, error)
	AppendEvent(ctx context.Context, e *Event) error
	Events(ctx context.Context, id types.ID) ([]Event, error)
}

type MemoryStore struct {
	mu     sync.RWMutex
	trips  map[types.ID]Trip
	events map[types.ID][]Event
	seq    int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{trips: make(map[types.ID]Trip), events: make(map[types.ID][]Event)}
}

func (s *MemoryStore) Create(_ context.Context, t *Trip) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.trips[t.ID]; ok {
		return errors.New("trip already exists")
	}
	s.trips[t.ID] = cloneTrip(*t)
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (*Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.trips[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := cloneTrip(t)
	return &out, nil
}

func (s *MemoryStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int, reason string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.trips[id]
	if !ok {
		return false, ErrNotFound
	}
	if t.Status != from || t.Version != version {
		return false, nil
	}
	now := time.Now()
	t.Status = to
	t.Version++
	t.UpdatedAt = now
	switch to {
	case StatusCompleted:
		t.CompletedAt = &now
	case StatusCancelled:
		t.CancelledAt = &now
		t.CancelReason = reason
	}
	s.trips[id] = t
	return true, nil
}

func (s *MemoryStore) FindActiveByUnit(_ context.Context, unitID types.ID) (*Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, t := range s.trips {
		if t.UnitID == unitID && !t.Status.Terminal() {
			out := cloneTrip(t)
			return &out, nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListActive(_ context.Context) ([]*Trip, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Trip
	for _, t := range s.trips {
		if !t.Status.Terminal() {
			c := cloneTrip(t)
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) AppendEvent(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	ev := *e
	ev.ID = s.seq
	s.events[e.TripID] = append(s.events[e.TripID], ev)
	return nil
}

func (s *MemoryStore) Events(_ context.Context, id types.ID) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Event(nil), s.events[id]...), nil
}

func cloneTrip(t Trip) Trip {
	if t.Dropoff != nil {
		d := *t.Dropoff
		t.Dropoff = &d
	}
	if t.CompletedAt != nil {
		v := *t.CompletedAt
		t.CompletedAt = &v
	}
	if t.CancelledAt != nil {
		v := *t.CancelledAt
		t.CancelledAt = &v
	}
	return t
}
