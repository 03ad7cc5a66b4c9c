// README: Movement simulator: one goroutine per task, advancing a unit one waypoint per tick.
package movement

import (
	"context"
	"sync"

	"ridedispatch/internal/eventbus"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/metrics"
	"ridedispatch/internal/types"
)

// Driver is the owner of the unit being moved.
type Driver interface {
	// Advance writes p as the unit position after checking that the task is
	// still live. It returns false, without writing, when it is not.
	Advance(ctx context.Context, t Task, p types.Point) (bool, error)
	// Finish receives the task result exactly once.
	Finish(r Result)
}

type Simulator struct {
	registry *Registry
	clock    Clock
	events   *eventbus.Bus[PositionEvent]
	log      logger.Logger
	metrics  *metrics.Recorder
	// mu orders wg.Add and Registry.Store against Shutdown.
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

type Option func(*Simulator)

func WithClock(c Clock) Option                         { return func(s *Simulator) { s.clock = c } }
func WithEvents(b *eventbus.Bus[PositionEvent]) Option { return func(s *Simulator) { s.events = b } }
func WithLogger(l logger.Logger) Option                { return func(s *Simulator) { s.log = logger.OrNop(l) } }
func WithMetrics(m *metrics.Recorder) Option           { return func(s *Simulator) { s.metrics = m } }

func NewSimulator(registry *Registry, opts ...Option) *Simulator {
	s := &Simulator{
		registry: registry,
		clock:    RealClock{},
		log:      logger.NopLogger{},
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Simulator) Registry() *Registry { return s.registry }

// Start registers the task and begins ticking. The ticker exists when Start
// returns. Cancelling parent, or Registry.Stop for the unit, ends the task
// with OutcomeCancelled. After Shutdown, d.Finish receives OutcomeCancelled
// before Start returns.
func (s *Simulator) Start(parent context.Context, spec Spec, d Driver) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.log.Debugw("movement rejected after shutdown", map[string]any{
			"unit": spec.UnitID, "trip": spec.TripID, "phase": spec.Phase,
		})
		d.Finish(Result{Task: spec.Task, Outcome: OutcomeCancelled})
		return
	}
	ctx, cancel := context.WithCancel(parent)
	h := s.registry.Store(spec.UnitID, spec.Phase, cancel)
	s.wg.Add(1)
	s.mu.Unlock()

	n := WaypointCount(spec.Duration)
	ticker := s.clock.NewTicker(TickInterval(spec.Duration, n))
	pts := Waypoints(spec.From, spec.To, n)

	s.metrics.MovementStarted()
	s.log.Debugw("movement started", map[string]any{
		"unit": spec.UnitID, "trip": spec.TripID, "phase": spec.Phase, "waypoints": n,
	})

	go func() {
		defer s.wg.Done()
		res := s.run(ctx, spec.Task, pts, ticker, d)
		ticker.Stop()
		s.registry.Release(spec.UnitID, h)
		cancel()
		s.metrics.MovementEnded()
		s.log.Debugw("movement finished", map[string]any{
			"unit": spec.UnitID, "trip": spec.TripID, "phase": spec.Phase,
			"outcome": res.Outcome, "written": res.Written,
		})
		d.Finish(res)
	}()
}

func (s *Simulator) run(ctx context.Context, task Task, pts []types.Point, ticker Ticker, d Driver) Result {
	res := Result{Task: task}
	last := len(pts) - 1
	// pts[0] is the start position the unit already occupies.
	for cursor := 1; ; {
		select {
		case <-ctx.Done():
			res.Outcome = OutcomeCancelled
			return res
		case <-ticker.C():
		}
		if ctx.Err() != nil {
			res.Outcome = OutcomeCancelled
			return res
		}
		p := pts[cursor]
		ok, err := d.Advance(ctx, task, p)
		if err != nil {
			res.Outcome, res.Err = OutcomeFailed, err
			return res
		}
		if !ok {
			res.Outcome = OutcomeCancelled
			return res
		}
		res.Last, res.Written = &p, res.Written+1
		s.metrics.MovementTick(string(task.Phase))
		if s.events != nil {
			s.events.Publish(PositionEvent{
				UnitID: task.UnitID, TripID: task.TripID, Phase: task.Phase,
				Point: p, Seq: cursor, Total: last, At: s.clock.Now(),
			})
		}
		if cursor == last {
			if ctx.Err() != nil {
				res.Outcome = OutcomeCancelled
			} else {
				res.Outcome = OutcomeCompleted
			}
			return res
		}
		cursor++
	}
}

// Shutdown stops every registered task and waits for their goroutines.
// Tasks started afterwards end cancelled without ticking.
func (s *Simulator) Shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.registry.StopAll()
	s.wg.Wait()
}

// Wait blocks until every started task has finished.
func (s *Simulator) Wait() {
	s.wg.Wait()
}
