// README: Distance/route contracts and the planar fallbacks applied when a provider fails.
package maps

import (
	"context"
	"fmt"
	"math"
	"time"

	"ridedispatch/internal/logger"
	"ridedispatch/internal/metrics"
	"ridedispatch/internal/types"
)

const (
	SourceProvider = "provider"
	SourceFallback = "fallback"
)

type Estimate struct {
	Meters       float64 `json:"distance"`
	Seconds      float64 `json:"duration"`
	DistanceText string  `json:"distanceText"`
	DurationText string  `json:"durationText"`
	Source       string  `json:"source"`
}

func (e Estimate) Km() float64 { return e.Meters / 1000 }

type Route struct {
	Points  []types.Point `json:"coordinates"`
	Meters  float64       `json:"distance"`
	Seconds float64       `json:"duration"`
	Source  string        `json:"source"`
}

type DistanceProvider interface {
	Distance(ctx context.Context, origin, destination types.Point) (Estimate, error)
}

type RouteProvider interface {
	Route(ctx context.Context, origin, destination types.Point) (Route, error)
}

// Approximate converts planar degree distance to meters and derives the ETA
// from avgSpeedKmh.
func Approximate(origin, destination types.Point, avgSpeedKmh float64) Estimate {
	meters := types.PlanarDistance(origin, destination) * types.MetersPerDegree
	seconds := math.Round(meters / 1000 / avgSpeedKmh * 3600)
	return Estimate{
		Meters:       meters,
		Seconds:      seconds,
		DistanceText: fmt.Sprintf("%.2f km", meters/1000),
		DurationText: durationText(seconds),
		Source:       SourceFallback,
	}
}

func durationText(seconds float64) string {
	m := int(math.Round(seconds / 60))
	if m == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", m)
}

// Resilient bounds the wrapped providers by a timeout and substitutes the
// planar approximation or the straight line when they fail. Its methods
// never return an error.
type Resilient struct {
	distance    DistanceProvider
	route       RouteProvider
	timeout     time.Duration
	avgSpeedKmh float64
	log         logger.Logger
	metrics     *metrics.Recorder
}

// NewResilient accepts nil providers; the fallback is then always used.
func NewResilient(d DistanceProvider, r RouteProvider, timeout time.Duration, avgSpeedKmh float64, log logger.Logger, m *metrics.Recorder) *Resilient {
	if avgSpeedKmh <= 0 {
		avgSpeedKmh = 30
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Resilient{distance: d, route: r, timeout: timeout, avgSpeedKmh: avgSpeedKmh, log: logger.OrNop(log), metrics: m}
}

func (r *Resilient) AvgSpeedKmh() float64 { return r.avgSpeedKmh }

func (r *Resilient) Distance(ctx context.Context, origin, destination types.Point) (Estimate, error) {
	if r.distance != nil {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		est, err := r.distance.Distance(ctx, origin, destination)
		if err == nil && est.Meters >= 0 && !math.IsNaN(est.Meters) {
			return est, nil
		}
		r.metrics.Fallback("distance")
		r.log.Warnf("distance provider unavailable, using planar approximation: %v", err)
	}
	return Approximate(origin, destination, r.avgSpeedKmh), nil
}

func (r *Resilient) Route(ctx context.Context, origin, destination types.Point) (Route, error) {
	if r.route != nil {
		ctx, cancel := context.WithTimeout(ctx, r.timeout)
		defer cancel()
		rt, err := r.route.Route(ctx, origin, destination)
		if err == nil && len(rt.Points) >= 2 {
			return rt, nil
		}
		r.metrics.Fallback("route")
		r.log.Warnf("route provider unavailable, using straight line: %v", err)
	}
	est := Approximate(origin, destination, r.avgSpeedKmh)
	return Route{
		Points:  []types.Point{origin, destination},
		Meters:  est.Meters,
		Seconds: est.Seconds,
		Source:  SourceFallback,
	}, nil
}
