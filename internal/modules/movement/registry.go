// README: Per-unit registry of running movement tasks keyed by phase, with idempotent stop.
package movement

import (
	"context"
	"sync"
	"time"

	"ridedispatch/internal/types"
)

// Handle identifies one registered task so that a finishing task can only
// remove itself.
type Handle struct {
	phase   Phase
	cancel  context.CancelFunc
	started time.Time
}

// TaskInfo is a diagnostic snapshot of a registered task.
type TaskInfo struct {
	Phase     Phase     `json:"phase"`
	StartedAt time.Time `json:"startedAt"`
}

type Registry struct {
	mu    sync.Mutex
	tasks map[types.ID]map[Phase]*Handle
}

func NewRegistry() *Registry {
	return &Registry{tasks: make(map[types.ID]map[Phase]*Handle)}
}

// Store registers cancel for (unitID, phase). A handle already registered
// under the same key is cancelled and replaced.
func (r *Registry) Store(unitID types.ID, phase Phase, cancel context.CancelFunc) *Handle {
	h := &Handle{phase: phase, cancel: cancel, started: time.Now()}
	r.mu.Lock()
	phases, ok := r.tasks[unitID]
	if !ok {
		phases = make(map[Phase]*Handle, 2)
		r.tasks[unitID] = phases
	}
	prev := phases[phase]
	phases[phase] = h
	r.mu.Unlock()
	if prev != nil {
		prev.cancel()
	}
	return h
}

// Stop cancels every task registered for unitID and clears the entry. It is
// safe to call repeatedly and returns how many handles were cancelled.
func (r *Registry) Stop(unitID types.ID) int {
	r.mu.Lock()
	phases := r.tasks[unitID]
	delete(r.tasks, unitID)
	r.mu.Unlock()
	for _, h := range phases {
		h.cancel()
	}
	return len(phases)
}

// StopAll cancels every registered task.
func (r *Registry) StopAll() int {
	r.mu.Lock()
	all := r.tasks
	r.tasks = make(map[types.ID]map[Phase]*Handle)
	r.mu.Unlock()
	n := 0
	for _, phases := range all {
		for _, h := range phases {
			h.cancel()
			n++
		}
	}
	return n
}

// Release removes h if it is still the registered handle for its phase.
func (r *Registry) Release(unitID types.ID, h *Handle) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	phases := r.tasks[unitID]
	if phases == nil || phases[h.phase] != h {
		return false
	}
	delete(phases, h.phase)
	if len(phases) == 0 {
		delete(r.tasks, unitID)
	}
	return true
}

func (r *Registry) Get(unitID types.ID) []TaskInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	phases := r.tasks[unitID]
	out := make([]TaskInfo, 0, len(phases))
	for _, p := range []Phase{PhaseToPickup, PhaseToDropoff} {
		if h, ok := phases[p]; ok {
			out = append(out, TaskInfo{Phase: p, StartedAt: h.started})
		}
	}
	return out
}

// Active is the number of units with at least one registered task.
func (r *Registry) Active() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.tasks)
}
