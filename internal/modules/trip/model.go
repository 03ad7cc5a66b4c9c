// README: Trip aggregate and status definitions.
package trip

import (
	"time"

	"ridedispatch/internal/modules/fleet"
	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/types"
)

type Status string

const (
	StatusNone      Status = "none"
	StatusRequested Status = "requested"
	StatusConfirmed Status = "confirmed"
	StatusEnRoute   Status = "en_route"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// Terminal statuses accept no further writes.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Trip struct {
	ID          types.ID     `json:"id"`
	RequesterID types.ID     `json:"userId"`
	UnitID      types.ID     `json:"taxiId"`
	Class       fleet.Class  `json:"carType"`
	DriverName  string       `json:"driverName,omitempty"`
	Status      Status       `json:"status"`
	Version     int          `json:"-"`
	Pickup      types.Point  `json:"pickupLocation"`
	Dropoff     *types.Point `json:"dropoffLocation"`
	// UnitStart is where the unit was when it was matched.
	UnitStart  types.Point    `json:"taxiLocation"`
	Fare       types.Money    `json:"fare"`
	FareSource pricing.Source `json:"fareSource"`
	// Distance is the priced distance: pickup to dropoff when there is a
	// dropoff, else unit to pickup.
	Distance     float64    `json:"distance"`
	DistanceText string     `json:"distanceText"`
	ETA          float64    `json:"eta"`
	ETAText      string     `json:"etaText"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
	CompletedAt  *time.Time `json:"completedAt,omitempty"`
	CancelledAt  *time.Time `json:"cancelledAt,omitempty"`
	CancelReason string     `json:"cancelReason,omitempty"`
}

type Event struct {
	ID         int64     `json:"id"`
	TripID     types.ID  `json:"tripId"`
	FromStatus Status    `json:"from"`
	ToStatus   Status    `json:"to"`
	ActorType  string    `json:"actorType"`
	ActorID    *types.ID `json:"actorId,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
}

const (
	ActorRequester = "requester"
	ActorSystem    = "system"
	ActorAdmin     = "admin"
)

// AllowedTransitions is the trip state flow as code. Completed and
// cancelled have no outgoing edges.
var AllowedTransitions = map[Status][]Status{
	StatusNone:      {StatusRequested},
	StatusRequested: {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusEnRoute, StatusCompleted, StatusCancelled},
	StatusEnRoute:   {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
