// README: Unit handlers: fleet listing, live SSE stream and admin status/reset.
package handlers

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/eventbus"
	"ridedispatch/internal/logger"
	"ridedispatch/internal/modules/fleet"
	"ridedispatch/internal/modules/movement"
	"ridedispatch/internal/modules/trip"
	"ridedispatch/internal/types"
)

type UnitHandler struct {
	units    fleet.Directory
	trips    *trip.Service
	events   *eventbus.Bus[movement.PositionEvent]
	statuses *eventbus.Bus[fleet.StatusEvent]
	log      logger.Logger
}

// NewUnitHandler builds the unit handlers. statuses may be nil, in which
// case the stream sends a single fleet snapshot.
func NewUnitHandler(units fleet.Directory, trips *trip.Service, events *eventbus.Bus[movement.PositionEvent], statuses *eventbus.Bus[fleet.StatusEvent], log logger.Logger) *UnitHandler {
	return &UnitHandler{units: units, trips: trips, events: events, statuses: statuses, log: logger.OrNop(log)}
}

type unitView struct {
	ID         types.ID     `json:"id"`
	DriverName string       `json:"driverName"`
	Class      fleet.Class  `json:"carType"`
	Location   types.Point  `json:"location"`
	Status     fleet.Status `json:"status"`
}

func (h *UnitHandler) located(c *gin.Context) ([]unitView, error) {
	units, err := h.units.List(c.Request.Context())
	if err != nil {
		return nil, err
	}
	out := make([]unitView, 0, len(units))
	for _, u := range units {
		p, ok := u.Position()
		if !ok {
			continue
		}
		out = append(out, unitView{ID: u.ID, DriverName: u.DriverName, Class: u.Class, Location: p, Status: u.Status})
	}
	return out, nil
}

// List handles GET /api/units; units without a usable location are omitted.
func (h *UnitHandler) List(c *gin.Context) {
	units, err := h.located(c)
	if err != nil {
		h.log.Errorf("list units: %v", err)
		writeError(c, http.StatusInternalServerError, "Failed to fetch taxis")
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"taxis": units})
}

// Stream handles GET /api/units/stream as Server-Sent Events: a fleet
// snapshot, every position update, and a fresh snapshot after each unit
// status change.
func (h *UnitHandler) Stream(c *gin.Context) {
	units, err := h.located(c)
	if err != nil {
		writeError(c, http.StatusInternalServerError, "Failed to fetch taxis")
		return
	}
	sub := h.events.Subscribe()
	defer h.events.Unsubscribe(sub)
	var changes <-chan fleet.StatusEvent
	if h.statuses != nil {
		changes = h.statuses.Subscribe()
		defer h.statuses.Unsubscribe(changes)
	}

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.SSEvent("connected", gin.H{"message": "Connected to taxi stream"})
	c.SSEvent("message", gin.H{"taxis": units, "timestamp": time.Now().UnixMilli()})
	c.Writer.Flush()

	ctx := c.Request.Context()
	c.Stream(func(io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case ev, ok := <-sub:
			if !ok {
				return false
			}
			c.SSEvent("position", ev)
			return true
		case ev, ok := <-changes:
			if !ok {
				return false
			}
			units, err := h.located(c)
			if err != nil {
				h.log.Warnf("stream snapshot after unit %s went %s: %v", ev.UnitID, ev.Status, err)
				return true
			}
			c.SSEvent("message", gin.H{"taxis": units, "timestamp": time.Now().UnixMilli()})
			return true
		}
	})
}

// Status handles GET /api/admin/units-status.
func (h *UnitHandler) Status(c *gin.Context) {
	units, err := h.units.List(c.Request.Context())
	if err != nil {
		h.log.Errorf("units status: %v", err)
		writeError(c, http.StatusInternalServerError, "Failed to get taxis status")
		return
	}
	summary := gin.H{"total": len(units)}
	for status, n := range fleet.Summary(units) {
		summary[string(status)] = n
	}
	list := make([]gin.H, 0, len(units))
	for _, u := range units {
		list = append(list, gin.H{"id": u.ID, "driverName": u.DriverName, "carType": u.Class, "status": u.Status})
	}
	writeJSON(c, http.StatusOK, gin.H{"summary": summary, "taxis": list})
}

// Reset handles POST /api/admin/reset-units.
func (h *UnitHandler) Reset(c *gin.Context) {
	res, err := h.trips.ResetFleet(c.Request.Context())
	if err != nil {
		h.log.Errorf("reset units: %v", err)
		writeError(c, http.StatusInternalServerError, "Failed to reset taxis")
		return
	}
	if res.Updated == 0 {
		writeJSON(c, http.StatusOK, gin.H{"message": "No taxis found. Run seed script first.", "updated": 0})
		return
	}
	writeJSON(c, http.StatusOK, gin.H{
		"message":        fmt.Sprintf("Successfully reset %d taxis to available status", res.Updated),
		"updated":        res.Updated,
		"cancelledTrips": res.CancelledTrips,
	})
}
