// README: Per-unit mutexes, reference counted so idle units hold no entry.
package trip

import (
	"sync"

	"ridedispatch/internal/types"
)

// unitLocks serializes read-decide-write steps per unit. Entries are
// dropped once nobody holds or waits on them.
type unitLocks struct {
	mu sync.Mutex
	m  map[types.ID]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func newUnitLocks() *unitLocks {
	return &unitLocks{m: make(map[types.ID]*refMutex)}
}

func (l *unitLocks) Lock(id types.ID) (unlock func()) {
	l.mu.Lock()
	rm, ok := l.m[id]
	if !ok {
		rm = &refMutex{}
		l.m[id] = rm
	}
	rm.refs++
	l.mu.Unlock()

	rm.Lock()
	return func() {
		rm.Unlock()
		l.mu.Lock()
		rm.refs--
		if rm.refs == 0 {
			delete(l.m, id)
		}
		l.mu.Unlock()
	}
}

func (l *unitLocks) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.m)
}
