// README: Common money value object used across modules.
package types

import "math"

type Money struct {
	Amount   float64
	Currency string
}

// RoundCents rounds to 2 decimal places, half away from zero.
func RoundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
