// README: API gateway; registers gin routes and delegates to module services.
package http

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"fitdash/internal/http/handlers"
	"fitdash/internal/http/middleware"
	"fitdash/internal/infra"
	"fitdash/internal/metrics"
	"fitdash/internal/modules/user"
)

// Pinger reports backing store health. *pgxpool.Pool satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

type ServerDeps struct {
	Orders   handlers.OrderService
	Ratings  handlers.RatingService
	Payments handlers.PaymentService
	Location handlers.LocationService
	Dispatch handlers.DispatchService
	Roles    middleware.RoleResolver
	Verifier infra.TokenVerifier
	Health   Pinger
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	return &Server{deps: deps}
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery(), middleware.Logging())

	r.GET("/health", s.health)
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	api := r.Group("/api", middleware.Auth(s.deps.Verifier))

	orderHandler := handlers.NewOrderHandler(s.deps.Orders, s.deps.Ratings)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders/:id", orderHandler.Get)
	api.POST("/orders/:id/complete", middleware.RequireRole(s.deps.Roles, user.RoleDriver), orderHandler.Complete)
	api.POST("/orders/:id/status", middleware.RequireRole(s.deps.Roles, user.RoleDriver, user.RoleAdmin), orderHandler.UpdateStatus)
	api.POST("/orders/:id/rating", orderHandler.Rate)

	paymentHandler := handlers.NewPaymentHandler(s.deps.Payments)
	api.POST("/payments/orders", paymentHandler.CreateOrder)
	api.POST("/payments/verify", paymentHandler.Verify)

	driverHandler := handlers.NewDriverHandler(s.deps.Location)
	me := api.Group("/drivers/me", middleware.RequireRole(s.deps.Roles, user.RoleDriver))
	me.PUT("/location", driverHandler.UpdateLocation)
	me.PUT("/availability", driverHandler.SetAvailability)

	adminHandler := handlers.NewAdminHandler(s.deps.Dispatch, s.deps.Location)
	admin := api.Group("/admin", middleware.RequireRole(s.deps.Roles, user.RoleAdmin))
	admin.POST("/orders/:id/dispatch", adminHandler.Redispatch)
	admin.GET("/drivers/nearby", adminHandler.NearbyDrivers)

	return r
}

func (s *Server) health(c *gin.Context) {
	if s.deps.Health != nil {
		if err := s.deps.Health.Ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
