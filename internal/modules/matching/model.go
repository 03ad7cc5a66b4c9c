// README: Nearest-unit selection by planar distance over available candidates.
package matching

import (
	"ridedispatch/internal/modules/fleet"
	"ridedispatch/internal/types"
)

// Match is the chosen unit plus how many candidates were considered.
type Match struct {
	Unit      fleet.Unit
	Distance  float64
	Available int
}

// Nearest scans candidates in order and keeps the strictly closer one, so the
// first of equally distant units wins. Units without a valid location are
// skipped.
func Nearest(pickup types.Point, candidates []fleet.Unit) (fleet.Unit, float64, bool) {
	var (
		best  fleet.Unit
		bestD float64
		found bool
	)
	for _, u := range candidates {
		p, ok := u.Position()
		if !ok {
			continue
		}
		d := types.PlanarDistance(pickup, p)
		if !found || d < bestD {
			best, bestD, found = u, d, true
		}
	}
	return best, bestD, found
}
