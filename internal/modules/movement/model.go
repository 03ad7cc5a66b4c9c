// README: Movement phases, task descriptors, results and waypoint math.
package movement

import (
	"math"
	"time"

	"ridedispatch/internal/types"
)

type Phase string

const (
	PhaseToPickup  Phase = "to_pickup"
	PhaseToDropoff Phase = "to_dropoff"
)

type Outcome string

const (
	OutcomeCompleted Outcome = "completed"
	OutcomeCancelled Outcome = "cancelled"
	OutcomeFailed    Outcome = "failed"
)

const (
	MinWaypoints = 50
	MaxWaypoints = 100
	MinTick      = 500 * time.Millisecond
	MaxTick      = 2000 * time.Millisecond
)

// Task names the trip, unit and leg a movement belongs to.
type Task struct {
	TripID types.ID
	UnitID types.ID
	Phase  Phase
}

type Spec struct {
	Task
	From     types.Point
	To       types.Point
	Duration time.Duration
}

type Result struct {
	Task
	Outcome Outcome
	// Last is the last waypoint written, nil when none was.
	Last    *types.Point
	Written int
	Err     error
}

// PositionEvent is published after every applied waypoint.
type PositionEvent struct {
	UnitID types.ID    `json:"unitId"`
	TripID types.ID    `json:"tripId"`
	Phase  Phase       `json:"phase"`
	Point  types.Point `json:"location"`
	Seq    int         `json:"seq"`
	Total  int         `json:"total"`
	At     time.Time   `json:"at"`
}

// WaypointCount is floor(d/2s) clamped to [50, 100].
func WaypointCount(d time.Duration) int {
	n := int(math.Floor(d.Seconds() / 2))
	return min(max(n, MinWaypoints), MaxWaypoints)
}

// TickInterval spreads d over n ticks, clamped to [500ms, 2s].
func TickInterval(d time.Duration, n int) time.Duration {
	if n <= 0 {
		n = MinWaypoints
	}
	step := time.Duration(d.Milliseconds()/int64(n)) * time.Millisecond
	return min(max(step, MinTick), MaxTick)
}

// Waypoints returns n+1 points from `from` to `to` at fractions i/n. The
// last point is exactly `to`.
func Waypoints(from, to types.Point, n int) []types.Point {
	if n < 1 {
		n = 1
	}
	pts := make([]types.Point, n+1)
	for i := 0; i < n; i++ {
		pts[i] = types.Lerp(from, to, float64(i)/float64(n))
	}
	pts[n] = to
	return pts
}
