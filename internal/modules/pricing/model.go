// README: Pricing rates per unit class, quote requests and predictor features.
package pricing

import (
	"time"

	"ridedispatch/internal/modules/fleet"
	"ridedispatch/internal/types"
	"ridedispatch/internal/weather"
)

type Rate struct {
	Class    fleet.Class
	BaseFare float64
	PerKm    float64
}

// DefaultRates are used when no rate table is configured. Unknown classes
// price as sedan.
var DefaultRates = map[fleet.Class]Rate{
	fleet.ClassMini:  {Class: fleet.ClassMini, BaseFare: 40, PerKm: 12},
	fleet.ClassSedan: {Class: fleet.ClassSedan, BaseFare: 50, PerKm: 15},
	fleet.ClassSUV:   {Class: fleet.ClassSUV, BaseFare: 70, PerKm: 20},
}

const FallbackClass = fleet.ClassSedan

type Source string

const (
	SourcePredicted Source = "predicted"
	SourceFormula   Source = "formula"
)

type Request struct {
	DistanceKm float64
	Demand     int64
	Class      fleet.Class
	// Pickup locates the weather lookup for the predictive path.
	Pickup         types.Point
	AvailableUnits int
	// Loyalty is the requester's score in [0,10]; nil uses the default.
	Loyalty *float64
}

type Quote struct {
	Fare       types.Money
	Source     Source
	Multiplier float64
	Weather    weather.Condition
}

// Features is the predictor input. Values are already clamped.
type Features struct {
	DistanceKm     float64
	Hour           int
	DayOfWeek      time.Weekday
	Demand         int64
	AvailableUnits int
	Weather        weather.Condition
	Loyalty        float64
	Class          fleet.Class
}
