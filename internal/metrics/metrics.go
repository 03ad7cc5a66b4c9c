// README: Prometheus collectors for trip outcomes, fare sources, fallbacks and movement activity.
package metrics

import (
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder is safe to use as a nil pointer; every method is then a no-op.
type Recorder struct {
	trips     *prometheus.CounterVec
	quotes    *prometheus.CounterVec
	fallbacks *prometheus.CounterVec
	ticks     *prometheus.CounterVec
	active    prometheus.Gauge
	demand    prometheus.Gauge
	gatherer  prometheus.Gatherer
}

func New() (*Recorder, error) {
	return NewWithRegistry(prometheus.NewRegistry())
}

// NewWithRegistry registers on reg, reusing collectors that are already
// registered there.
func NewWithRegistry(reg *prometheus.Registry) (*Recorder, error) {
	r := &Recorder{gatherer: reg}
	var err error
	if r.trips, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ride_trips_total",
		Help: "Trip lifecycle transitions by outcome",
	}, []string{"outcome"})); err != nil {
		return nil, err
	}
	if r.quotes, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ride_fare_quotes_total",
		Help: "Fare quotes by pricing source",
	}, []string{"source"})); err != nil {
		return nil, err
	}
	if r.fallbacks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ride_upstream_fallbacks_total",
		Help: "External collaborator failures absorbed by a fallback",
	}, []string{"provider"})); err != nil {
		return nil, err
	}
	if r.ticks, err = register(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ride_movement_ticks_total",
		Help: "Applied movement position writes by phase",
	}, []string{"phase"})); err != nil {
		return nil, err
	}
	if r.active, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ride_active_movements",
		Help: "Movement tasks currently running",
	})); err != nil {
		return nil, err
	}
	if r.demand, err = register(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ride_demand_active_trips",
		Help: "Last observed value of the demand counter",
	})); err != nil {
		return nil, err
	}
	return r, nil
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		return c, err
	}
	return c, nil
}

func (r *Recorder) TripOutcome(outcome string) {
	if r == nil {
		return
	}
	r.trips.WithLabelValues(outcome).Inc()
}

func (r *Recorder) FareQuote(source string) {
	if r == nil {
		return
	}
	r.quotes.WithLabelValues(source).Inc()
}

func (r *Recorder) Fallback(provider string) {
	if r == nil {
		return
	}
	r.fallbacks.WithLabelValues(provider).Inc()
}

func (r *Recorder) MovementTick(phase string) {
	if r == nil {
		return
	}
	r.ticks.WithLabelValues(phase).Inc()
}

func (r *Recorder) MovementStarted() {
	if r == nil {
		return
	}
	r.active.Inc()
}

func (r *Recorder) MovementEnded() {
	if r == nil {
		return
	}
	r.active.Dec()
}

func (r *Recorder) Demand(n int64) {
	if r == nil {
		return
	}
	r.demand.Set(float64(n))
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.gatherer, promhttp.HandlerOpts{})
}
