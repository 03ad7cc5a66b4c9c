// README: Deterministic fare formula with a stepped demand multiplier.
package pricing

import "ridedispatch/internal/types"

// DemandMultiplier is 1.0 up to 5 active trips, 1.5 up to 10, then 2.0.
func DemandMultiplier(demand int64) float64 {
	switch {
	case demand > 10:
		return 2.0
	case demand > 5:
		return 1.5
	default:
		return 1.0
	}
}

// FormulaFare returns (base + km*perKm) * multiplier rounded to cents.
func FormulaFare(r Rate, distanceKm float64, demand int64) float64 {
	return types.RoundCents((r.BaseFare + distanceKm*r.PerKm) * DemandMultiplier(demand))
}
