// README: Trip service: matching, pricing, unit claim and the movement-driven state flow.
package trip

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"ridedispatch/internal/eventbus"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/maps"
	"ridedispatch/internal/metrics"
	"ridedispatch/internal/modules/demand"
	"ridedispatch/internal/modules/fleet"
	"ridedispatch/internal/modules/matching"
	"ridedispatch/internal/modules/movement"
	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/types"
)

var (
	ErrValidation      = errors.New("invalid trip request")
	ErrNoAvailableUnit = errors.New("no available unit")
	ErrAlreadyTerminal = errors.New("trip already terminal")
	ErrInvalidState    = errors.New("invalid state transition")
	ErrConflict        = errors.New("trip state conflict")

	errUnitTaken = errors.New("unit claimed concurrently")
)

type Pricer interface {
	Estimate(ctx context.Context, req pricing.Request) pricing.Quote
}

// Router resolves distances; *maps.Resilient never fails.
type Router interface {
	Distance(ctx context.Context, origin, destination types.Point) (maps.Estimate, error)
	AvgSpeedKmh() float64
}

type Deps struct {
	Trips    Store
	Units    fleet.Directory
	Matcher  *matching.Service
	Pricing  Pricer
	Routes   Router
	Demand   demand.Counter
	Movement *movement.Simulator
	// StatusEvents, when set, receives every unit status the service writes.
	StatusEvents *eventbus.Bus[fleet.StatusEvent]
	Log          logger.Logger
	Metrics      *metrics.Recorder
	// MatchAttempts bounds re-matching after losing a unit claim.
	MatchAttempts int
	Now           func() time.Time
}

type Service struct {
	trips    Store
	units    fleet.Directory
	matcher  *matching.Service
	pricing  Pricer
	routes   Router
	demand   demand.Counter
	movement *movement.Simulator
	statuses *eventbus.Bus[fleet.StatusEvent]
	log      logger.Logger
	metrics  *metrics.Recorder
	attempts int
	now      func() time.Time
	locks    *unitLocks
	// base parents movement tasks; they outlive the request that started them.
	base context.Context
}

func NewService(d Deps) *Service {
	s := &Service{
		trips:    d.Trips,
		units:    d.Units,
		matcher:  d.Matcher,
		pricing:  d.Pricing,
		routes:   d.Routes,
		demand:   d.Demand,
		movement: d.Movement,
		statuses: d.StatusEvents,
		log:      logger.OrNop(d.Log),
		metrics:  d.Metrics,
		attempts: d.MatchAttempts,
		now:      d.Now,
		locks:    newUnitLocks(),
		base:     context.Background(),
	}
	if s.attempts <= 0 {
		s.attempts = 3
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.matcher == nil {
		s.matcher = matching.NewService(d.Units)
	}
	if s.routes == nil {
		s.routes = maps.NewResilient(nil, nil, 0, 0, s.log, s.metrics)
	}
	return s
}

type CreateCommand struct {
	RequesterID types.ID
	Pickup      types.Point
	Dropoff     *types.Point
	// Class filters candidates; empty matches any class.
	Class   string
	Loyalty *float64
}

type CancelCommand struct {
	TripID    types.ID
	ActorType string
	Reason    string
}

const defaultRequester types.ID = "user_123"

// Create matches the nearest available unit, prices the trip, claims the
// unit and starts it towards the pickup.
func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Trip, error) {
	if !cmd.Pickup.Valid() {
		return nil, fmt.Errorf("%w: pickup location", ErrValidation)
	}
	if cmd.Dropoff != nil && !cmd.Dropoff.Valid() {
		return nil, fmt.Errorf("%w: dropoff location", ErrValidation)
	}
	class, err := fleet.ParseClass(cmd.Class)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if cmd.Loyalty != nil && math.IsNaN(*cmd.Loyalty) {
		return nil, fmt.Errorf("%w: loyalty score", ErrValidation)
	}
	if cmd.RequesterID == "" {
		cmd.RequesterID = defaultRequester
	}

	var exclude []types.ID
	for i := 0; i < s.attempts; i++ {
		m, err := s.matcher.FindNearest(ctx, cmd.Pickup, class, exclude...)
		if errors.Is(err, matching.ErrNoUnit) {
			s.metrics.TripOutcome("no_unit")
			return nil, ErrNoAvailableUnit
		}
		if err != nil {
			return nil, err
		}
		t, err := s.book(ctx, cmd, m)
		if errors.Is(err, errUnitTaken) {
			s.log.Debugf("unit %s claimed concurrently, rematching", m.Unit.ID)
			exclude = append(exclude, m.Unit.ID)
			continue
		}
		if err != nil {
			return nil, err
		}
		s.metrics.TripOutcome("confirmed")
		return t, nil
	}
	s.metrics.TripOutcome("no_unit")
	return nil, ErrNoAvailableUnit
}

func (s *Service) book(ctx context.Context, cmd CreateCommand, m matching.Match) (*Trip, error) {
	unit := m.Unit
	start, _ := unit.Position()

	approach, _ := s.routes.Distance(ctx, start, cmd.Pickup)
	priced := approach
	if cmd.Dropoff != nil {
		priced, _ = s.routes.Distance(ctx, cmd.Pickup, *cmd.Dropoff)
	}
	current, err := s.demand.Get(ctx)
	if err != nil {
		s.metrics.Fallback("demand")
		s.log.Warnf("demand unavailable, pricing with zero: %v", err)
		current = 0
	}
	quote := s.pricing.Estimate(ctx, pricing.Request{
		DistanceKm:     priced.Km(),
		Demand:         current,
		Class:          unit.Class,
		Pickup:         cmd.Pickup,
		AvailableUnits: m.Available,
		Loyalty:        cmd.Loyalty,
	})

	unlock := s.locks.Lock(unit.ID)
	defer unlock()

	ok, err := s.units.CompareAndSetStatus(ctx, unit.ID, fleet.StatusAvailable, fleet.StatusEnRouteToPickup)
	if err != nil {
		return nil, fmt.Errorf("claim unit: %w", err)
	}
	if !ok {
		return nil, errUnitTaken
	}
	s.announce(unit.ID, fleet.StatusEnRouteToPickup, "")

	now := s.now()
	t := &Trip{
		ID:           types.ID(uuid.NewString()),
		RequesterID:  cmd.RequesterID,
		UnitID:       unit.ID,
		Class:        unit.Class,
		DriverName:   unit.DriverName,
		Status:       StatusRequested,
		Pickup:       cmd.Pickup,
		Dropoff:      cmd.Dropoff,
		UnitStart:    start,
		Fare:         quote.Fare,
		FareSource:   quote.Source,
		Distance:     priced.Meters,
		DistanceText: priced.DistanceText,
		ETA:          approach.Seconds,
		ETAText:      approach.DurationText,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.trips.Create(ctx, t); err != nil {
		s.releaseUnit(unit.ID)
		return nil, fmt.Errorf("persist trip: %w", err)
	}
	s.appendEvent(ctx, t.ID, StatusNone, StatusRequested, ActorRequester, &t.RequesterID)

	if err := s.transition(ctx, t, StatusConfirmed, ActorSystem, ""); err != nil {
		if _, rbErr := s.trips.UpdateStatus(ctx, t.ID, t.Status, StatusCancelled, t.Version, "confirm failed"); rbErr != nil {
			s.log.Errorf("roll back trip %s: %v", t.ID, rbErr)
		}
		s.releaseUnit(unit.ID)
		return nil, err
	}

	s.adjustDemand(ctx, s.demand.Increment)
	s.movement.Start(s.base, movement.Spec{
		Task:     movement.Task{TripID: t.ID, UnitID: unit.ID, Phase: movement.PhaseToPickup},
		From:     start,
		To:       cmd.Pickup,
		Duration: seconds(approach.Seconds),
	}, s)
	s.log.Infof("trip %s confirmed: unit=%s fare=%.2f source=%s eta=%s", t.ID, unit.ID, t.Fare.Amount, t.FareSource, t.ETAText)
	return t, nil
}

// Advance is the liveness-guarded position write for one movement tick.
func (s *Service) Advance(ctx context.Context, task movement.Task, p types.Point) (bool, error) {
	unlock := s.locks.Lock(task.UnitID)
	defer unlock()
	if ctx.Err() != nil {
		return false, nil
	}
	// The decision is made; finish the write even if the task is cancelled now.
	wctx := context.WithoutCancel(ctx)
	live, err := s.live(wctx, task)
	if err != nil || !live {
		return false, err
	}
	if err := s.units.SetLocation(wctx, task.UnitID, p); err != nil {
		return false, fmt.Errorf("write unit location: %w", err)
	}
	return true, nil
}

// live reports whether the unit is still busy with the task's trip.
func (s *Service) live(ctx context.Context, task movement.Task) (bool, error) {
	u, err := s.units.Get(ctx, task.UnitID)
	if err != nil {
		return false, err
	}
	if u.Status == fleet.StatusAvailable {
		return false, nil
	}
	t, err := s.trips.FindActiveByUnit(ctx, task.UnitID)
	if errors.Is(err, ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return t.ID == task.TripID, nil
}

// Finish handles the end of a movement task.
func (s *Service) Finish(r movement.Result) {
	switch r.Outcome {
	case movement.OutcomeCompleted:
		if r.Phase == movement.PhaseToPickup {
			s.pickupReached(r.Task)
		} else {
			s.dropoffReached(r.Task)
		}
	case movement.OutcomeFailed:
		s.metrics.TripOutcome("movement_failed")
		s.log.Errorf("movement %s for trip %s on unit %s failed after %d waypoints: %v",
			r.Phase, r.TripID, r.UnitID, r.Written, r.Err)
	default:
		s.log.Debugf("movement %s for trip %s on unit %s stopped after %d waypoints",
			r.Phase, r.TripID, r.UnitID, r.Written)
	}
}

func (s *Service) pickupReached(task movement.Task) {
	ctx := s.base
	unlock := s.locks.Lock(task.UnitID)
	defer unlock()

	t, err := s.trips.Get(ctx, task.TripID)
	if err != nil {
		s.log.Errorf("pickup reached for trip %s: %v", task.TripID, err)
		return
	}
	if t.Status != StatusConfirmed {
		return
	}
	ok, err := s.units.CompareAndSetStatus(ctx, task.UnitID, fleet.StatusEnRouteToPickup, fleet.StatusArrivedAtPickup)
	if err != nil || !ok {
		s.log.Warnf("unit %s not en route at pickup for trip %s (err=%v)", task.UnitID, t.ID, err)
		return
	}
	s.announce(task.UnitID, fleet.StatusArrivedAtPickup, t.ID)
	if t.Dropoff == nil {
		s.log.Infof("trip %s: unit %s arrived at pickup", t.ID, task.UnitID)
		return
	}

	// Unit first: a failed write leaves the trip confirmed at pickup,
	// which Cancel still resolves.
	if err := s.units.SetStatus(ctx, task.UnitID, fleet.StatusEnRouteToDropoff); err != nil {
		s.log.Errorf("unit %s to dropoff for trip %s: %v", task.UnitID, t.ID, err)
		return
	}
	if err := s.transition(ctx, t, StatusEnRoute, ActorSystem, ""); err != nil {
		s.log.Errorf("start dropoff leg for trip %s: %v", t.ID, err)
		if rbErr := s.units.SetStatus(ctx, task.UnitID, fleet.StatusArrivedAtPickup); rbErr != nil {
			s.log.Errorf("roll back unit %s to pickup: %v", task.UnitID, rbErr)
		}
		return
	}
	s.announce(task.UnitID, fleet.StatusEnRouteToDropoff, t.ID)
	leg := t.Distance / 1000 / s.routes.AvgSpeedKmh() * 3600
	s.movement.Start(s.base, movement.Spec{
		Task:     movement.Task{TripID: t.ID, UnitID: task.UnitID, Phase: movement.PhaseToDropoff},
		From:     t.Pickup,
		To:       *t.Dropoff,
		Duration: seconds(leg),
	}, s)
	s.log.Infof("trip %s: unit %s picked up, heading to dropoff", t.ID, task.UnitID)
}

func (s *Service) dropoffReached(task movement.Task) {
	ctx := s.base
	unlock := s.locks.Lock(task.UnitID)
	defer unlock()

	t, err := s.trips.Get(ctx, task.TripID)
	if err != nil {
		s.log.Errorf("dropoff reached for trip %s: %v", task.TripID, err)
		return
	}
	if t.Status != StatusEnRoute {
		return
	}
	if err := s.finishTrip(ctx, t, ActorSystem); err != nil {
		s.log.Errorf("complete trip %s: %v", t.ID, err)
	}
}

// finishTrip completes t and frees its unit where it stands. Callers hold
// the unit lock.
func (s *Service) finishTrip(ctx context.Context, t *Trip, actor string) error {
	if err := s.transition(ctx, t, StatusCompleted, actor, ""); err != nil {
		return err
	}
	if err := s.units.SetStatus(ctx, t.UnitID, fleet.StatusAvailable); err != nil {
		return fmt.Errorf("release unit: %w", err)
	}
	s.announce(t.UnitID, fleet.StatusAvailable, "")
	s.adjustDemand(ctx, s.demand.Decrement)
	s.metrics.TripOutcome("completed")
	s.log.Infof("trip %s completed by unit %s", t.ID, t.UnitID)
	return nil
}

// CompleteAtPickup ends a pickup-only trip once its unit has arrived.
func (s *Service) CompleteAtPickup(ctx context.Context, id types.ID) (*Trip, error) {
	t, err := s.trips.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(t.UnitID)
	defer unlock()

	if t, err = s.trips.Get(ctx, id); err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}
	if t.Status != StatusConfirmed || t.Dropoff != nil {
		return nil, ErrInvalidState
	}
	u, err := s.units.Get(ctx, t.UnitID)
	if err != nil {
		return nil, err
	}
	if u.Status != fleet.StatusArrivedAtPickup {
		return nil, ErrInvalidState
	}
	if err := s.finishTrip(ctx, t, ActorRequester); err != nil {
		return nil, err
	}
	return t, nil
}

// Cancel stops any movement and frees the unit at its current location.
// Cancelling a completed or cancelled trip returns ErrAlreadyTerminal and
// changes nothing.
func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) (*Trip, error) {
	t, err := s.trips.Get(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	unlock := s.locks.Lock(t.UnitID)
	defer unlock()
	return s.cancelLocked(ctx, cmd)
}

func (s *Service) cancelLocked(ctx context.Context, cmd CancelCommand) (*Trip, error) {
	t, err := s.trips.Get(ctx, cmd.TripID)
	if err != nil {
		return nil, err
	}
	if t.Status.Terminal() {
		return nil, ErrAlreadyTerminal
	}
	actor := cmd.ActorType
	if actor == "" {
		actor = ActorRequester
	}
	if err := s.transition(ctx, t, StatusCancelled, actor, cmd.Reason); err != nil {
		return nil, err
	}
	stopped := s.movement.Registry().Stop(t.UnitID)
	if err := s.units.SetStatus(ctx, t.UnitID, fleet.StatusAvailable); err != nil {
		s.log.Errorf("release unit %s after cancelling trip %s: %v", t.UnitID, t.ID, err)
	} else {
		s.announce(t.UnitID, fleet.StatusAvailable, "")
	}
	s.adjustDemand(ctx, s.demand.Decrement)
	s.metrics.TripOutcome("cancelled")
	s.log.Infof("trip %s cancelled by %s: unit=%s stopped_tasks=%d", t.ID, actor, t.UnitID, stopped)
	return t, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Trip, error) {
	return s.trips.Get(ctx, id)
}

func (s *Service) Events(ctx context.Context, id types.ID) ([]Event, error) {
	if _, err := s.trips.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.trips.Events(ctx, id)
}

type ResetResult struct {
	Updated        int `json:"updated"`
	CancelledTrips int `json:"cancelledTrips"`
}

// ResetFleet cancels every active trip, stops all movement and marks every
// unit available. Each unit is reset under its own lock, so a booking that
// lands mid-reset is either cancelled with its unit or kept whole.
// Updated counts every unit in the directory.
func (s *Service) ResetFleet(ctx context.Context) (ResetResult, error) {
	units, err := s.units.List(ctx)
	if err != nil {
		return ResetResult{}, err
	}
	var res ResetResult
	listed := make(map[types.ID]bool, len(units))
	stragglers := 0
	for _, u := range units {
		listed[u.ID] = true
		n, freed, err := s.resetUnit(ctx, u.ID)
		if err != nil {
			return res, err
		}
		res.CancelledTrips += n
		if freed {
			stragglers++
		}
	}

	// Trips whose unit is no longer in the directory.
	active, err := s.trips.ListActive(ctx)
	if err != nil {
		return res, err
	}
	for _, t := range active {
		if listed[t.UnitID] {
			continue
		}
		_, err := s.Cancel(ctx, CancelCommand{TripID: t.ID, ActorType: ActorAdmin, Reason: "fleet reset"})
		switch {
		case err == nil:
			res.CancelledTrips++
		case !errors.Is(err, ErrAlreadyTerminal):
			s.log.Warnf("reset: cancel trip %s: %v", t.ID, err)
		}
	}
	res.Updated = len(units)
	s.log.Infof("reset %d units to available (%d stragglers), cancelled %d trips", res.Updated, stragglers, res.CancelledTrips)
	return res, nil
}

// resetUnit cancels the unit's active trip, stops its movement and frees it.
// freed reports a busy unit that had no trip left to cancel.
func (s *Service) resetUnit(ctx context.Context, id types.ID) (cancelled int, freed bool, err error) {
	unlock := s.locks.Lock(id)
	defer unlock()

	for {
		t, err := s.trips.FindActiveByUnit(ctx, id)
		if errors.Is(err, ErrNotFound) {
			break
		}
		if err != nil {
			return cancelled, false, fmt.Errorf("reset unit %s: %w", id, err)
		}
		if _, err := s.cancelLocked(ctx, CancelCommand{TripID: t.ID, ActorType: ActorAdmin, Reason: "fleet reset"}); err != nil {
			return cancelled, false, fmt.Errorf("reset unit %s: cancel trip %s: %w", id, t.ID, err)
		}
		cancelled++
	}
	s.movement.Registry().Stop(id)

	u, err := s.units.Get(ctx, id)
	if err != nil {
		return cancelled, false, fmt.Errorf("reset unit %s: %w", id, err)
	}
	if u.Status == fleet.StatusAvailable {
		return cancelled, false, nil
	}
	if err := s.units.SetStatus(ctx, id, fleet.StatusAvailable); err != nil {
		return cancelled, false, fmt.Errorf("reset unit %s: %w", id, err)
	}
	s.announce(id, fleet.StatusAvailable, "")
	return cancelled, true, nil
}

// transition moves t to `to` with a version check and records the event.
func (s *Service) transition(ctx context.Context, t *Trip, to Status, actor, reason string) error {
	if !CanTransition(t.Status, to) {
		return ErrInvalidState
	}
	ok, err := s.trips.UpdateStatus(ctx, t.ID, t.Status, to, t.Version, reason)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	from := t.Status
	now := s.now()
	t.Status, t.Version, t.UpdatedAt = to, t.Version+1, now
	switch to {
	case StatusCompleted:
		t.CompletedAt = &now
	case StatusCancelled:
		t.CancelledAt, t.CancelReason = &now, reason
	}
	var actorID *types.ID
	if actor == ActorRequester {
		actorID = &t.RequesterID
	}
	s.appendEvent(ctx, t.ID, from, to, actor, actorID)
	return nil
}

func (s *Service) appendEvent(ctx context.Context, id types.ID, from, to Status, actor string, actorID *types.ID) {
	err := s.trips.AppendEvent(ctx, &Event{
		TripID:     id,
		FromStatus: from,
		ToStatus:   to,
		ActorType:  actor,
		ActorID:    actorID,
		CreatedAt:  s.now(),
	})
	if err != nil {
		s.log.Warnf("append event for trip %s: %v", id, err)
	}
}

func (s *Service) releaseUnit(id types.ID) {
	if err := s.units.SetStatus(s.base, id, fleet.StatusAvailable); err != nil {
		s.log.Errorf("release unit %s: %v", id, err)
		return
	}
	s.announce(id, fleet.StatusAvailable, "")
}

// announce publishes a unit status the service has just written.
func (s *Service) announce(id types.ID, status fleet.Status, tripID types.ID) {
	if s.statuses == nil {
		return
	}
	s.statuses.Publish(fleet.StatusEvent{UnitID: id, Status: status, TripID: tripID, At: s.now()})
}

func (s *Service) adjustDemand(ctx context.Context, op func(context.Context) (int64, error)) {
	n, err := op(ctx)
	if err != nil {
		s.log.Warnf("demand counter update failed: %v", err)
		return
	}
	s.metrics.Demand(n)
}

func seconds(v float64) time.Duration {
	if v <= 0 || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}
