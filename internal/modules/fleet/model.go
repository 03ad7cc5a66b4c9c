// README: Unit aggregate, classes and movement statuses.
package fleet

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"ridedispatch/internal/types"
)

type Class string

const (
	ClassMini  Class = "mini"
	ClassSedan Class = "sedan"
	ClassSUV   Class = "suv"
)

var Classes = []Class{ClassMini, ClassSedan, ClassSUV}

var ErrUnknownClass = errors.New("unknown unit class")

// ParseClass accepts an empty string as "no filter".
func ParseClass(s string) (Class, error) {
	c := Class(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case "", ClassMini, ClassSedan, ClassSUV:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownClass, s)
}

type Status string

const (
	StatusAvailable        Status = "available"
	StatusEnRouteToPickup  Status = "en_route_to_pickup"
	StatusArrivedAtPickup  Status = "arrived_at_pickup"
	StatusEnRouteToDropoff Status = "en_route_to_dropoff"
)

var Statuses = []Status{StatusAvailable, StatusEnRouteToPickup, StatusArrivedAtPickup, StatusEnRouteToDropoff}

type Unit struct {
	ID         types.ID
	DriverName string
	Class      Class
	// Location is nil when the stored coordinates could not be resolved.
	Location  *types.Point
	Status    Status
	UpdatedAt time.Time
}

// Position returns the unit location when it is present and valid.
func (u Unit) Position() (types.Point, bool) {
	if u.Location == nil || !u.Location.Valid() {
		return types.Point{}, false
	}
	return *u.Location, true
}

// Summary counts units per status.
func Summary(units []Unit) map[Status]int {
	out := make(map[Status]int, len(Statuses))
	for _, s := range Statuses {
		out[s] = 0
	}
	for _, u := range units {
		out[u.Status]++
	}
	return out
}

// StatusEvent reports a status written by the dispatcher. TripID is empty
// when the unit was released.
type StatusEvent struct {
	UnitID types.ID  `json:"unitId"`
	Status Status    `json:"status"`
	TripID types.ID  `json:"tripId,omitempty"`
	At     time.Time `json:"at"`
}
