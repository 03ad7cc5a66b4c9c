// README: Simulator and registry tests driven by the manual clock.
package movement

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridedispatch/internal/eventbus"
	"ridedispatch/internal/types"
)

type recordingDriver struct {
	mu       sync.Mutex
	writes   []types.Point
	results  []Result
	failAt   int
	refuseAt int
	done     chan struct{}
}

func newRecordingDriver() *recordingDriver {
	return &recordingDriver{done: make(chan struct{}, 4)}
}

func (d *recordingDriver) Advance(ctx context.Context, _ Task, p types.Point) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ctx.Err() != nil {
		return false, nil
	}
	next := len(d.writes) + 1
	if d.failAt == next {
		return false, errors.New("store unavailable")
	}
	if d.refuseAt == next {
		return false, nil
	}
	d.writes = append(d.writes, p)
	return true, nil
}

func (d *recordingDriver) Finish(r Result) {
	d.mu.Lock()
	d.results = append(d.results, r)
	d.mu.Unlock()
	d.done <- struct{}{}
}

func (d *recordingDriver) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.writes)
}

func (d *recordingDriver) snapshot() ([]types.Point, []Result) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]types.Point(nil), d.writes...), append([]Result(nil), d.results...)
}

func waitDone(t *testing.T, d *recordingDriver) {
	t.Helper()
	select {
	case <-d.done:
	case <-time.After(2 * time.Second):
		t.Fatal("task did not finish")
	}
}

var (
	origin = types.Point{Lat: 15.83, Lng: 78.04}
	pickup = types.Point{Lat: 15.835, Lng: 78.045}
)

func TestWaypointCount(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want int
	}{
		{0, 50}, {30 * time.Second, 50}, {100 * time.Second, 50}, {101 * time.Second, 50},
		{150 * time.Second, 75}, {151 * time.Second, 75}, {200 * time.Second, 100}, {time.Hour, 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, WaypointCount(tt.d), tt.d.String())
	}
}

func TestTickInterval(t *testing.T) {
	assert.Equal(t, 500*time.Millisecond, TickInterval(10*time.Second, 50))
	assert.Equal(t, 2*time.Second, TickInterval(100*time.Second, 50))
	assert.Equal(t, 2*time.Second, TickInterval(time.Hour, 100))
	assert.Equal(t, 1500*time.Millisecond, TickInterval(75*time.Second, 50))
	assert.Equal(t, 500*time.Millisecond, TickInterval(0, 0))
}

func TestWaypoints(t *testing.T) {
	for _, d := range []time.Duration{0, 94 * time.Second, 150 * time.Second, time.Hour} {
		n := WaypointCount(d)
		pts := Waypoints(origin, pickup, n)
		require.Len(t, pts, n+1)
		assert.Equal(t, origin, pts[0])
		assert.Equal(t, pickup, pts[n])
	}
	mid := Waypoints(types.Point{}, types.Point{Lat: 2, Lng: 4}, 2)[1]
	assert.Equal(t, types.Point{Lat: 1, Lng: 2}, mid)
}

func TestSimulatorCompletesAtDestination(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	bus := eventbus.New[PositionEvent](128)
	events := bus.Subscribe()
	reg := NewRegistry()
	sim := NewSimulator(reg, WithClock(clock), WithEvents(bus))
	d := newRecordingDriver()

	task := Task{TripID: "t1", UnitID: "taxi_001", Phase: PhaseToPickup}
	sim.Start(context.Background(), Spec{Task: task, From: origin, To: pickup, Duration: 94 * time.Second}, d)
	require.Len(t, reg.Get("taxi_001"), 1)

	n := WaypointCount(94 * time.Second)
	for i := 0; i < n; i++ {
		require.Equal(t, 1, clock.Tick(), "tick %d", i)
	}
	waitDone(t, d)
	sim.Wait()

	writes, results := d.snapshot()
	require.Len(t, writes, n)
	assert.Equal(t, pickup, writes[n-1])
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeCompleted, results[0].Outcome)
	assert.Equal(t, n, results[0].Written)
	assert.Equal(t, pickup, *results[0].Last)
	assert.Empty(t, reg.Get("taxi_001"))
	assert.Zero(t, clock.Live())
	assert.Zero(t, clock.Tick())

	var last PositionEvent
	for i := 0; i < n; i++ {
		last = <-events
	}
	assert.Equal(t, n, last.Seq)
	assert.Equal(t, pickup, last.Point)
}

func TestSimulatorStopHaltsWrites(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	reg := NewRegistry()
	sim := NewSimulator(reg, WithClock(clock))
	d := newRecordingDriver()

	sim.Start(context.Background(), Spec{
		Task: Task{TripID: "t1", UnitID: "taxi_002", Phase: PhaseToPickup},
		From: origin, To: pickup, Duration: 100 * time.Second,
	}, d)
	for i := 0; i < 10; i++ {
		clock.Tick()
	}
	require.Eventually(t, func() bool { return d.count() == 10 }, time.Second, time.Millisecond)

	assert.Equal(t, 1, reg.Stop("taxi_002"))
	assert.Zero(t, reg.Stop("taxi_002"))
	waitDone(t, d)
	for i := 0; i < 5; i++ {
		clock.Tick()
	}
	sim.Wait()

	writes, results := d.snapshot()
	assert.Len(t, writes, 10)
	require.Len(t, results, 1)
	assert.Equal(t, OutcomeCancelled, results[0].Outcome)
	assert.Equal(t, writes[9], *results[0].Last)
	assert.NotEqual(t, pickup, *results[0].Last)
}

func TestSimulatorGuardRefusalEndsCancelled(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	sim := NewSimulator(NewRegistry(), WithClock(clock))
	d := newRecordingDriver()
	d.refuseAt = 3

	sim.Start(context.Background(), Spec{
		Task: Task{TripID: "t1", UnitID: "u", Phase: PhaseToDropoff},
		From: origin, To: pickup, Duration: time.Minute,
	}, d)
	for i := 0; i < 3; i++ {
		clock.Tick()
	}
	waitDone(t, d)

	writes, results := d.snapshot()
	assert.Len(t, writes, 2)
	assert.Equal(t, OutcomeCancelled, results[0].Outcome)
}

func TestSimulatorDriverErrorEndsFailed(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	sim := NewSimulator(NewRegistry(), WithClock(clock))
	d := newRecordingDriver()
	d.failAt = 1

	sim.Start(context.Background(), Spec{
		Task: Task{TripID: "t1", UnitID: "u", Phase: PhaseToPickup},
		From: origin, To: pickup, Duration: time.Minute,
	}, d)
	clock.Tick()
	waitDone(t, d)

	_, results := d.snapshot()
	assert.Equal(t, OutcomeFailed, results[0].Outcome)
	assert.Error(t, results[0].Err)
	assert.Nil(t, results[0].Last)
}

func TestSimulatorParentCancelAndShutdown(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	reg := NewRegistry()
	sim := NewSimulator(reg, WithClock(clock))

	ctx, cancel := context.WithCancel(context.Background())
	a := newRecordingDriver()
	sim.Start(ctx, Spec{Task: Task{UnitID: "a", Phase: PhaseToPickup}, From: origin, To: pickup}, a)
	cancel()
	waitDone(t, a)

	b := newRecordingDriver()
	sim.Start(context.Background(), Spec{Task: Task{UnitID: "b", Phase: PhaseToPickup}, From: origin, To: pickup}, b)
	sim.Shutdown()
	waitDone(t, b)

	late := newRecordingDriver()
	sim.Start(context.Background(), Spec{Task: Task{UnitID: "c", Phase: PhaseToPickup}, From: origin, To: pickup}, late)
	waitDone(t, late)
	sim.Wait()

	for _, d := range []*recordingDriver{a, b, late} {
		_, results := d.snapshot()
		assert.Equal(t, OutcomeCancelled, results[0].Outcome)
	}
	assert.Zero(t, reg.Active())
}

func TestRegistryStoreReplacesAndReleaseIsOwnerOnly(t *testing.T) {
	reg := NewRegistry()
	var cancelled []string
	var mu sync.Mutex
	cancelFn := func(name string) context.CancelFunc {
		return func() {
			mu.Lock()
			cancelled = append(cancelled, name)
			mu.Unlock()
		}
	}

	first := reg.Store("u", PhaseToPickup, cancelFn("first"))
	second := reg.Store("u", PhaseToPickup, cancelFn("second"))
	assert.Equal(t, []string{"first"}, cancelled)

	assert.False(t, reg.Release("u", first))
	require.Len(t, reg.Get("u"), 1)

	reg.Store("u", PhaseToDropoff, cancelFn("dropoff"))
	infos := reg.Get("u")
	require.Len(t, infos, 2)
	assert.Equal(t, PhaseToPickup, infos[0].Phase)
	assert.Equal(t, PhaseToDropoff, infos[1].Phase)

	assert.True(t, reg.Release("u", second))
	assert.Equal(t, 1, reg.Stop("u"))
	assert.Equal(t, []string{"first", "dropoff"}, cancelled)
	assert.Zero(t, reg.Active())
	assert.Empty(t, reg.Get("u"))
}

func TestRegistryConcurrentStopIsSafe(t *testing.T) {
	reg := NewRegistry()
	ctx, cancel := context.WithCancel(context.Background())
	reg.Store("u", PhaseToPickup, cancel)

	var wg sync.WaitGroup
	total := make(chan int, 32)
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			total <- reg.Stop("u")
		}()
	}
	wg.Wait()
	close(total)
	sum := 0
	for n := range total {
		sum += n
	}
	assert.Equal(t, 1, sum)
	assert.Error(t, ctx.Err())
}

func TestSimulatorStartRacingShutdownFinishesEveryTask(t *testing.T) {
	clock := NewManualClock(time.Unix(0, 0))
	reg := NewRegistry()
	sim := NewSimulator(reg, WithClock(clock))

	drivers := make([]*recordingDriver, 16)
	var wg sync.WaitGroup
	for i := range drivers {
		drivers[i] = newRecordingDriver()
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			unit := types.ID(fmt.Sprintf("u%d", i))
			sim.Start(context.Background(), Spec{Task: Task{UnitID: unit, Phase: PhaseToPickup}, From: origin, To: pickup}, drivers[i])
		}(i)
	}
	sim.Shutdown()
	wg.Wait()
	sim.Wait()

	for _, d := range drivers {
		waitDone(t, d)
		writes, results := d.snapshot()
		require.Len(t, results, 1)
		assert.Equal(t, OutcomeCancelled, results[0].Outcome)
		assert.Empty(t, writes)
	}
	assert.Zero(t, reg.Active())
}
