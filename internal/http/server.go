// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/eventbus"
	"ridedispatch/internal/http/handlers"
	"ridedispatch/internal/http/middleware"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/maps"
	"ridedispatch/internal/metrics"
	"ridedispatch/internal/modules/demand"
	"ridedispatch/internal/modules/fleet"
	"ridedispatch/internal/modules/movement"
	"ridedispatch/internal/modules/pricing"
	"ridedispatch/internal/modules/trip"
)

type ServerDeps struct {
	Trips   *trip.Service
	Units   fleet.Directory
	Pricing *pricing.Service
	Demand  demand.Counter
	Routes  *maps.Resilient
	// Weather may be nil when lookups are disabled.
	Weather handlers.WeatherReporter
	Events  *eventbus.Bus[movement.PositionEvent]
	// Statuses feeds stream snapshots on unit status changes; optional.
	Statuses *eventbus.Bus[fleet.StatusEvent]
	Metrics  *metrics.Recorder
	// MetricsPath mounts the Prometheus handler when non-empty.
	MetricsPath string
	Log         logger.Logger
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	deps.Log = logger.OrNop(deps.Log)
	return &Server{deps: deps}
}

func (s *Server) Routes() *gin.Engine {
	d := s.deps
	r := gin.New()
	r.Use(middleware.Recovery(d.Log), middleware.Logging(d.Log))

	trips := handlers.NewTripHandler(d.Trips)
	r.POST("/api/book", trips.Create)
	r.POST("/api/cancel", trips.Cancel)
	r.POST("/api/trips", trips.Create)
	r.GET("/api/trips/:id", trips.Get)
	r.GET("/api/trips/:id/events", trips.Events)
	r.POST("/api/trips/:id/cancel", trips.Cancel)
	r.POST("/api/trips/:id/complete", trips.Complete)

	units := handlers.NewUnitHandler(d.Units, d.Trips, d.Events, d.Statuses, d.Log)
	r.GET("/api/units", units.List)
	r.GET("/api/units/stream", units.Stream)
	r.GET("/api/admin/units-status", units.Status)
	r.POST("/api/admin/reset-units", units.Reset)

	fares := handlers.NewFareHandler(d.Pricing, d.Units, d.Demand, d.Log)
	r.POST("/api/fare/predict", fares.Predict)

	geo := handlers.NewGeoHandler(d.Routes, d.Weather, d.Log)
	r.GET("/api/distance", geo.Distance)
	r.GET("/api/route", geo.Route)
	r.GET("/api/weather", geo.Weather)

	if d.MetricsPath != "" && d.Metrics != nil {
		r.GET(d.MetricsPath, gin.WrapH(d.Metrics.Handler()))
	}
	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	return r
}
