// Package router wires handlers and middleware onto an Echo instance.
package router

import (
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/config"
	"github.com/iliyamo/seat-booking/internal/handler"
	"github.com/iliyamo/seat-booking/internal/middleware"
)

// Deps are the handlers and settings the routes need.  Redis may be nil;
// rate limiting is then skipped.
type Deps struct {
	Bookings  *handler.BookingHandler
	Catalog   *handler.CatalogHandler
	Readiness handler.ReadinessChecker
	JWTSecret string
	RateLimit config.RateLimitConfig
	Redis     *redis.Client
	Log       *zap.Logger
}

// New returns an Echo instance with every route registered.
func New(d Deps) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(echomw.Recover())
	e.Use(middleware.RequestLogger(d.Log))

	RegisterRoutes(e, d.Readiness)
	RegisterCatalog(e, d.Catalog)
	RegisterBookings(e, d)
	return e
}

// RegisterRoutes registers the unauthenticated probe endpoints.
func RegisterRoutes(e *echo.Echo, readiness handler.ReadinessChecker) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(readiness))
}

// RegisterCatalog registers the public, cached read endpoints.
func RegisterCatalog(e *echo.Echo, h *handler.CatalogHandler) {
	g := e.Group("/v1")
	g.GET("/movies", h.Movies)
	g.GET("/screenings/:id", h.Screening)
	g.GET("/screenings/:id/seats", h.Seats)
}

// RegisterBookings registers the booking endpoints.  All of them require
// a valid JWT; the subject is the requester.  Requesting confirmation is
// reserved to operators.
func RegisterBookings(e *echo.Echo, d Deps) {
	g := e.Group("/v1", middleware.JWTAuth(d.JWTSecret))
	g.POST("/screenings/:id/bookings", d.Bookings.Book, middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log))
	g.GET("/bookings/:id", d.Bookings.Get)
	g.POST("/bookings/:id/cancel", d.Bookings.Cancel)
	g.POST("/bookings/:id/confirm", d.Bookings.RequestConfirmation, middleware.RequireRole(middleware.RoleOperator))
}
