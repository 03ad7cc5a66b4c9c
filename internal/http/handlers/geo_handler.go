// README: Distance, route and weather lookups with the same fallbacks the trip flow uses.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/logger"
	"ridedispatch/internal/maps"
	"ridedispatch/internal/types"
	"ridedispatch/internal/weather"
)

// WeatherReporter is satisfied by *weather.Client.
type WeatherReporter interface {
	Current(ctx context.Context, p types.Point) (weather.Report, error)
}

type GeoHandler struct {
	routes  *maps.Resilient
	weather WeatherReporter
	log     logger.Logger
}

// NewGeoHandler accepts a nil weather reporter; the weather endpoint then
// answers 503.
func NewGeoHandler(routes *maps.Resilient, w WeatherReporter, log logger.Logger) *GeoHandler {
	return &GeoHandler{routes: routes, weather: w, log: logger.OrNop(log)}
}

// Distance handles GET /api/distance?originLat=&originLng=&destLat=&destLng=.
func (h *GeoHandler) Distance(c *gin.Context) {
	origin, ok1 := queryPoint(c, "originLat", "originLng")
	dest, ok2 := queryPoint(c, "destLat", "destLng")
	if !ok1 || !ok2 {
		writeError(c, http.StatusBadRequest, "Missing or invalid parameters. Provide: originLat, originLng, destLat, destLng")
		return
	}
	est, _ := h.routes.Distance(c.Request.Context(), origin, dest)
	writeJSON(c, http.StatusOK, gin.H{
		"origin":       origin,
		"destination":  dest,
		"distance":     est.Meters,
		"distanceText": est.DistanceText,
		"duration":     est.Seconds,
		"durationText": est.DurationText,
		"source":       est.Source,
	})
}

// Route handles GET /api/route?startLat=&startLng=&endLat=&endLng=.
func (h *GeoHandler) Route(c *gin.Context) {
	start, ok1 := queryPoint(c, "startLat", "startLng")
	end, ok2 := queryPoint(c, "endLat", "endLng")
	if !ok1 || !ok2 {
		writeError(c, http.StatusBadRequest, "Missing or invalid parameters. Provide: startLat, startLng, endLat, endLng")
		return
	}
	rt, _ := h.routes.Route(c.Request.Context(), start, end)
	writeJSON(c, http.StatusOK, gin.H{
		"success":     true,
		"route":       rt.Points,
		"coordinates": rt.Points,
		"distance":    rt.Meters,
		"duration":    rt.Seconds,
		"source":      rt.Source,
	})
}

// Weather handles GET /api/weather?latitude=&longitude=.
func (h *GeoHandler) Weather(c *gin.Context) {
	p, ok := queryPoint(c, "latitude", "longitude")
	if !ok {
		writeError(c, http.StatusBadRequest, "Invalid latitude/longitude.")
		return
	}
	if h.weather == nil {
		writeError(c, http.StatusServiceUnavailable, "weather lookups disabled")
		return
	}
	r, err := h.weather.Current(c.Request.Context(), p)
	if err != nil {
		h.log.Warnf("weather lookup: %v", err)
		writeError(c, http.StatusBadGateway, "Failed to fetch weather data")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"location":  r.Location,
		"current":   r,
		"condition": weather.Categorize(r),
	})
}
