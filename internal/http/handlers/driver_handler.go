// README: Driver self-service handlers for live location and availability.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"fitdash/internal/http/middleware"
)

type DriverHandler struct {
	location LocationService
}

func NewDriverHandler(svc LocationService) *DriverHandler {
	return &DriverHandler{location: svc}
}

func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	var req pointReq
	if !bindJSON(c, &req) {
		return
	}
	res, err := h.location.UpdateDriverLocation(c.Request.Context(), middleware.CallerUID(c), req.point())
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, res)
}

type availabilityReq struct {
	Online *bool `json:"online" binding:"required"`
}

func (h *DriverHandler) SetAvailability(c *gin.Context) {
	var req availabilityReq
	if !bindJSON(c, &req) {
		return
	}
	d, err := h.location.SetAvailability(c.Request.Context(), middleware.CallerUID(c), *req.Online)
	if err != nil {
		writeError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, d)
}
