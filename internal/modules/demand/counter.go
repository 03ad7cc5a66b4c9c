// README: Process-wide count of non-terminal trips, floored at zero.
package demand

import (
	"context"
	"sync"
)

// Counter is read at quote time and mutated on trip confirmation and
// termination. Individual updates are atomic; a read followed by a later
// Increment is not.
type Counter interface {
	Get(ctx context.Context) (int64, error)
	Increment(ctx context.Context) (int64, error)
	// Decrement never takes the value below zero.
	Decrement(ctx context.Context) (int64, error)
}

type MemoryCounter struct {
	mu sync.Mutex
	n  int64
}

func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{}
}

func (c *MemoryCounter) Get(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n, nil
}

func (c *MemoryCounter) Increment(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.n, nil
}

func (c *MemoryCounter) Decrement(context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.n > 0 {
		c.n--
	}
	return c.n, nil
}
