// README: Standalone fare quote handler.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/logger"
	"ridedispatch/internal/modules/demand"
	"ridedispatch/internal/modules/fleet"
	"ridedispatch/internal/modules/pricing"
)

type FareHandler struct {
	pricing *pricing.Service
	units   fleet.Directory
	demand  demand.Counter
	log     logger.Logger
}

func NewFareHandler(p *pricing.Service, units fleet.Directory, d demand.Counter, log logger.Logger) *FareHandler {
	return &FareHandler{pricing: p, units: units, demand: d, log: logger.OrNop(log)}
}

type fareReq struct {
	DistanceKm     *float64 `json:"distanceKm"`
	Demand         *int64   `json:"demand"`
	AvailableTaxis *int     `json:"availableTaxis"`
	CarType        string   `json:"carType"`
	Latitude       *float64 `json:"latitude"`
	Longitude      *float64 `json:"longitude"`
	LoyaltyScore   *float64 `json:"brandLoyaltyScore"`
}

// Predict handles POST /api/fare/predict. Missing demand and availability
// are read from the live counters.
func (h *FareHandler) Predict(c *gin.Context) {
	var req fareReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	if req.DistanceKm == nil || *req.DistanceKm < 0 {
		writeError(c, http.StatusBadRequest, "Invalid distanceKm. Must be a non-negative number.")
		return
	}
	class, err := fleet.ParseClass(req.CarType)
	if err != nil || class == "" {
		writeError(c, http.StatusBadRequest, "Invalid carType. Must be one of: mini, sedan, suv.")
		return
	}
	pickup, ok := (&latLng{Latitude: req.Latitude, Longitude: req.Longitude}).point()
	if !ok {
		writeError(c, http.StatusBadRequest, "Invalid latitude/longitude. Must be numbers.")
		return
	}

	ctx := c.Request.Context()
	r := pricing.Request{DistanceKm: *req.DistanceKm, Class: class, Pickup: pickup, Loyalty: req.LoyaltyScore}
	if req.Demand != nil {
		r.Demand = max(*req.Demand, 0)
	} else if n, err := h.demand.Get(ctx); err == nil {
		r.Demand = n
	} else {
		h.log.Warnf("fare quote: demand unavailable: %v", err)
	}
	if req.AvailableTaxis != nil {
		r.AvailableUnits = max(*req.AvailableTaxis, 0)
	} else if units, err := h.units.ListAvailable(ctx, ""); err == nil {
		r.AvailableUnits = len(units)
	} else {
		h.log.Warnf("fare quote: availability unavailable: %v", err)
		r.AvailableUnits = 10
	}

	q := h.pricing.Estimate(ctx, r)
	writeJSON(c, http.StatusOK, gin.H{
		"success":    true,
		"price":      q.Fare.Amount,
		"currency":   q.Fare.Currency,
		"method":     q.Source,
		"multiplier": q.Multiplier,
		"weather":    q.Weather,
	})
}
