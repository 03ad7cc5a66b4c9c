// README: Identifiers and the coordinate value type shared by every module.
package types

import (
	"errors"
	"fmt"
	"math"
)

type ID string

// ErrUpstreamUnavailable marks a failed external collaborator. Callers absorb
// it behind a fallback and never surface it to the trip lifecycle.
var ErrUpstreamUnavailable = errors.New("upstream unavailable")

// MetersPerDegree converts planar degree distance into approximate meters.
const MetersPerDegree = 111000.0

type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (p Point) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lng) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lng, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// PlanarDistance is the Euclidean distance on raw degrees. Only meaningful for
// ranking nearby candidates inside a small operating area.
func PlanarDistance(a, b Point) float64 {
	return math.Hypot(a.Lat-b.Lat, a.Lng-b.Lng)
}

// Lerp returns the point at fraction f of the segment a→b.
func Lerp(a, b Point, f float64) Point {
	return Point{
		Lat: a.Lat + (b.Lat-a.Lat)*f,
		Lng: a.Lng + (b.Lng-a.Lng)*f,
	}
}

// LatLng formats the point the way map APIs accept a coordinate string.
func (p Point) LatLng() string {
	return fmt.Sprintf("%f,%f", p.Lat, p.Lng)
}
