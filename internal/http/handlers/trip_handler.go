// README: Trip handlers for book/get/cancel/complete and the state event log.
package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/modules/trip"
	"ridedispatch/internal/types"
)

type TripHandler struct {
	trips *trip.Service
}

func NewTripHandler(svc *trip.Service) *TripHandler {
	return &TripHandler{trips: svc}
}

type bookReq struct {
	UserID          string   `json:"userId"`
	PickupLocation  *latLng  `json:"pickupLocation"`
	DropoffLocation *latLng  `json:"dropoffLocation"`
	CarType         string   `json:"carType"`
	LoyaltyScore    *float64 `json:"brandLoyaltyScore"`
}

// Create handles POST /api/book.
func (h *TripHandler) Create(c *gin.Context) {
	var req bookReq
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "invalid json")
		return
	}
	pickup, ok := req.PickupLocation.point()
	if !ok {
		writeError(c, http.StatusBadRequest, "Invalid pickup location. Must provide latitude and longitude.")
		return
	}
	cmd := trip.CreateCommand{
		RequesterID: types.ID(strings.TrimSpace(req.UserID)),
		Pickup:      pickup,
		Class:       req.CarType,
		Loyalty:     req.LoyaltyScore,
	}
	if req.DropoffLocation != nil {
		d, ok := req.DropoffLocation.point()
		if !ok {
			writeError(c, http.StatusBadRequest, "Invalid dropoff location.")
			return
		}
		cmd.Dropoff = &d
	}
	t, err := h.trips.Create(c.Request.Context(), cmd)
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusCreated, gin.H{"booking": t})
}

func (h *TripHandler) Get(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid trip id")
		return
	}
	t, err := h.trips.Get(c.Request.Context(), types.ID(id))
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"booking": t})
}

func (h *TripHandler) Events(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid trip id")
		return
	}
	events, err := h.trips.Events(c.Request.Context(), types.ID(id))
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"events": events})
}

type cancelReq struct {
	BookingID string `json:"bookingId"`
	TaxiID    string `json:"taxiId"`
	Reason    string `json:"reason"`
}

// Cancel handles POST /api/cancel with the trip id in the body, and
// POST /api/trips/:id/cancel.
func (h *TripHandler) Cancel(c *gin.Context) {
	var req cancelReq
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			writeError(c, http.StatusBadRequest, "invalid json")
			return
		}
	}
	if id := c.Param("id"); id != "" {
		req.BookingID = id
	}
	if !isValidID(req.BookingID) {
		writeError(c, http.StatusBadRequest, "bookingId is required")
		return
	}
	if req.TaxiID != "" {
		t, err := h.trips.Get(c.Request.Context(), types.ID(req.BookingID))
		if err != nil {
			writeTripError(c, err)
			return
		}
		if t.UnitID != types.ID(req.TaxiID) {
			writeError(c, http.StatusBadRequest, "taxiId does not match booking")
			return
		}
	}
	t, err := h.trips.Cancel(c.Request.Context(), trip.CancelCommand{
		TripID:    types.ID(req.BookingID),
		ActorType: trip.ActorRequester,
		Reason:    req.Reason,
	})
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "booking": t})
}

// Complete handles POST /api/trips/:id/complete for pickup-only trips.
func (h *TripHandler) Complete(c *gin.Context) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, http.StatusBadRequest, "invalid trip id")
		return
	}
	t, err := h.trips.CompleteAtPickup(c.Request.Context(), types.ID(id))
	if err != nil {
		writeTripError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"success": true, "booking": t})
}
