// README: Base handler utilities (JSON helpers, request binding, error mapping) and the service surfaces handlers depend on.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"fitdash/internal/apperr"
	"fitdash/internal/http/middleware"
	"fitdash/internal/modules/driver"
	"fitdash/internal/modules/location"
	"fitdash/internal/modules/order"
	"fitdash/internal/modules/payment"
	"fitdash/internal/modules/rating"
	"fitdash/internal/types"
)

type OrderService interface {
	Create(ctx context.Context, cmd order.CreateCommand) (*order.CreateResult, error)
	Complete(ctx context.Context, cmd order.CompleteCommand) error
	UpdateStatus(ctx context.Context, cmd order.StatusCommand) error
	Get(ctx context.Context, callerID, id types.ID) (*order.Detail, error)
}

type RatingService interface {
	Submit(ctx context.Context, cmd rating.SubmitCommand) error
}

type PaymentService interface {
	CreatePaymentOrder(ctx context.Context, cmd payment.CreateCommand) (*payment.CreateResult, error)
	VerifyPaymentSignature(ctx context.Context, cmd payment.VerifyCommand) (*payment.VerifyResult, error)
}

type LocationService interface {
	UpdateDriverLocation(ctx context.Context, driverID types.ID, p types.Point) (*location.UpdateResult, error)
	SetAvailability(ctx context.Context, driverID types.ID, online bool) (*driver.Driver, error)
	NearbyDrivers(ctx context.Context, p types.Point, radiusKm float64, limit int) ([]location.NearbyDriver, error)
}

type DispatchService interface {
	Redispatch(ctx context.Context, orderID types.ID) error
}

// isValidID accepts the ids minted here (uuids) and Firebase/Firestore style keys.
func isValidID(v string) bool {
	if v == "" || len(v) > 64 {
		return false
	}
	for _, c := range v {
		if (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || c == '-' || c == '_' {
			continue
		}
		return false
	}
	return true
}

func writeJSON(c *gin.Context, status int, v any) {
	c.JSON(status, v)
}

func writeError(c *gin.Context, err error) {
	middleware.AbortWithError(c, err)
}

// bindJSON decodes the body into v, answering 400 on failure.
func bindJSON(c *gin.Context, v any) bool {
	if err := c.ShouldBindJSON(v); err != nil {
		writeError(c, apperr.InvalidArgument("invalid request body: %v", err))
		return false
	}
	return true
}

// pathID reads and validates the :id path parameter.
func pathID(c *gin.Context) (types.ID, bool) {
	id := c.Param("id")
	if !isValidID(id) {
		writeError(c, apperr.InvalidArgument("invalid id %q", id))
		return "", false
	}
	return types.ID(id), true
}

type pointReq struct {
	Lat *float64 `json:"lat" binding:"required"`
	Lng *float64 `json:"lng" binding:"required"`
}

func (p pointReq) point() types.Point {
	return types.Point{Lat: *p.Lat, Lng: *p.Lng}
}

type statusResp struct {
	Status string `json:"status"`
}

var okResp = statusResp{Status: "ok"}

func writeOK(c *gin.Context) {
	writeJSON(c, http.StatusOK, okResp)
}
