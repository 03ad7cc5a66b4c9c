// README: Ticker source for the simulator; the manual clock lets tests drive ticks one at a time.
package movement

import (
	"sync"
	"time"
)

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type Clock interface {
	Now() time.Time
	NewTicker(d time.Duration) Ticker
}

// RealClock uses time.Ticker.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

type realTicker struct{ t *time.Ticker }

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// ManualClock only ticks when Tick is called. Tick delivers synchronously:
// it returns once every live ticker has received the value or been stopped.
type ManualClock struct {
	mu      sync.Mutex
	now     time.Time
	tickers []*manualTicker
}

func NewManualClock(start time.Time) *ManualClock {
	return &ManualClock{now: start}
}

func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *ManualClock) NewTicker(d time.Duration) Ticker {
	t := &manualTicker{c: make(chan time.Time), stop: make(chan struct{}), d: d}
	c.mu.Lock()
	c.tickers = append(c.tickers, t)
	c.mu.Unlock()
	return t
}

// Tick advances the clock by the shortest live interval and returns how many
// tickers received the tick.
func (c *ManualClock) Tick() int {
	c.mu.Lock()
	live := c.tickers[:0]
	var step time.Duration
	for _, t := range c.tickers {
		if t.stopped() {
			continue
		}
		live = append(live, t)
		if step == 0 || t.d < step {
			step = t.d
		}
	}
	c.tickers = live
	c.now = c.now.Add(step)
	now := c.now
	targets := append([]*manualTicker(nil), live...)
	c.mu.Unlock()

	n := 0
	for _, t := range targets {
		select {
		case t.c <- now:
			n++
		case <-t.stop:
		}
	}
	return n
}

// Live reports how many tickers have not been stopped.
func (c *ManualClock) Live() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for _, t := range c.tickers {
		if !t.stopped() {
			n++
		}
	}
	return n
}

type manualTicker struct {
	c    chan time.Time
	stop chan struct{}
	once sync.Once
	d    time.Duration
}

func (t *manualTicker) C() <-chan time.Time { return t.c }

func (t *manualTicker) Stop() { t.once.Do(func() { close(t.stop) }) }

func (t *manualTicker) stopped() bool {
	select {
	case <-t.stop:
		return true
	default:
		return false
	}
}
