// README: Base handler utilities (JSON helpers, error mapping).
package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/modules/fleet"
	"ridedispatch/internal/modules/trip"
	"ridedispatch/internal/types"
)

type errorResponse struct {
	Error string `json:"error"`
}

// latLng is the wire shape for coordinates in request bodies.
type latLng struct {
	Latitude  *float64 `json:"latitude"`
	Longitude *float64 `json:"longitude"`
}

func (l *latLng) point() (types.Point, bool) {
	if l == nil || l.Latitude == nil || l.Longitude == nil {
		return types.Point{}, false
	}
	p := types.Point{Lat: *l.Latitude, Lng: *l.Longitude}
	return p, p.Valid()
}

// isValidID accepts the unit and trip id alphabet: letters, digits, '_' and '-'.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '_' || c == '-' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, status int, msg string) {
	writeJSON(c, status, errorResponse{Error: msg})
}

func writeTripError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, trip.ErrValidation):
		writeError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, trip.ErrNotFound), errors.Is(err, fleet.ErrNotFound):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, trip.ErrNoAvailableUnit):
		writeError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, trip.ErrAlreadyTerminal), errors.Is(err, trip.ErrInvalidState), errors.Is(err, trip.ErrConflict):
		writeError(c, http.StatusConflict, err.Error())
	default:
		writeError(c, http.StatusInternalServerError, "internal error")
	}
}

// queryPoint reads a coordinate pair from two query parameters.
func queryPoint(c *gin.Context, latKey, lngKey string) (types.Point, bool) {
	lat, err1 := strconv.ParseFloat(c.Query(latKey), 64)
	lng, err2 := strconv.ParseFloat(c.Query(lngKey), 64)
	if err1 != nil || err2 != nil {
		return types.Point{}, false
	}
	p := types.Point{Lat: lat, Lng: lng}
	return p, p.Valid()
}
