// README: Unit directory contract and its in-memory implementation.
package fleet

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"ridedispatch/internal/types"
)

var ErrNotFound = errors.New("unit not found")

// Directory is the unit record store consumed by matching and the trip
// lifecycle.
type Directory interface {
	// ListAvailable returns available units ordered by ID. An empty class
	// means every class.
	ListAvailable(ctx context.Context, class Class) ([]Unit, error)
	List(ctx context.Context) ([]Unit, error)
	Get(ctx context.Context, id types.ID) (Unit, error)
	SetStatus(ctx context.Context, id types.ID, status Status) error
	SetLocation(ctx context.Context, id types.ID, p types.Point) error
	// CompareAndSetStatus moves the unit to `to` only when it is currently
	// in `from`.
	CompareAndSetStatus(ctx context.Context, id types.ID, from, to Status) (bool, error)
	Upsert(ctx context.Context, u Unit) error
}

type MemoryStore struct {
	mu    sync.RWMutex
	units map[types.ID]Unit
	now   func() time.Time
}

func NewMemoryStore(units ...Unit) *MemoryStore {
	s := &MemoryStore{units: make(map[types.ID]Unit, len(units)), now: time.Now}
	for _, u := range units {
		s.units[u.ID] = cloneUnit(u)
	}
	return s
}

func (s *MemoryStore) ListAvailable(_ context.Context, class Class) ([]Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Unit, 0, len(s.units))
	for _, u := range s.units {
		if u.Status != StatusAvailable {
			continue
		}
		if class != "" && u.Class != class {
			continue
		}
		out = append(out, cloneUnit(u))
	}
	sortByID(out)
	return out, nil
}

func (s *MemoryStore) List(_ context.Context) ([]Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Unit, 0, len(s.units))
	for _, u := range s.units {
		out = append(out, cloneUnit(u))
	}
	sortByID(out)
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id types.ID) (Unit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.units[id]
	if !ok {
		return Unit{}, ErrNotFound
	}
	return cloneUnit(u), nil
}

func (s *MemoryStore) SetStatus(_ context.Context, id types.ID, status Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok {
		return ErrNotFound
	}
	u.Status = status
	u.UpdatedAt = s.now()
	s.units[id] = u
	return nil
}

func (s *MemoryStore) SetLocation(_ context.Context, id types.ID, p types.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok {
		return ErrNotFound
	}
	u.Location = &p
	u.UpdatedAt = s.now()
	s.units[id] = u
	return nil
}

func (s *MemoryStore) CompareAndSetStatus(_ context.Context, id types.ID, from, to Status) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.units[id]
	if !ok {
		return false, ErrNotFound
	}
	if u.Status != from {
		return false, nil
	}
	u.Status = to
	u.UpdatedAt = s.now()
	s.units[id] = u
	return true, nil
}

func (s *MemoryStore) Upsert(_ context.Context, u Unit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u.UpdatedAt = s.now()
	s.units[u.ID] = cloneUnit(u)
	return nil
}

func cloneUnit(u Unit) Unit {
	if u.Location != nil {
		p := *u.Location
		u.Location = &p
	}
	return u
}

func sortByID(units []Unit) {
	sort.Slice(units, func(i, j int) bool { return units[i].ID < units[j].ID })
}
