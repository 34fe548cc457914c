// README: Admin handlers for manual re-dispatch and the nearby-driver view.
package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"fitdash/internal/apperr"
	"fitdash/internal/types"
)

type AdminHandler struct {
	dispatch DispatchService
	location LocationService
}

func NewAdminHandler(dispatch DispatchService, location LocationService) *AdminHandler {
	return &AdminHandler{dispatch: dispatch, location: location}
}

func (h *AdminHandler) Redispatch(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}
	if err := h.dispatch.Redispatch(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusAccepted, statusResp{Status: "queued"})
}

func (h *AdminHandler) NearbyDrivers(c *gin.Context) {
	lat, err1 := strconv.ParseFloat(c.Query("lat"), 64)
	lng, err2 := strconv.ParseFloat(c.Query("lng"), 64)
	if err1 != nil || err2 != nil {
		writeError(c, apperr.InvalidArgument("lat and lng query parameters are required"))
		return
	}
	var radius float64
	if v := c.Query("radiusKm"); v != "" {
		r, err := strconv.ParseFloat(v, 64)
		if err != nil {
			writeError(c, apperr.InvalidArgument("invalid radiusKm %q", v))
			return
		}
		radius = r
	}
	limit, _ := strconv.Atoi(c.Query("limit"))

	drivers, err := h.location.NearbyDrivers(c.Request.Context(), types.Point{Lat: lat, Lng: lng}, radius, limit)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"drivers": drivers})
}
