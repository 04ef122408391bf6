// Package router defines how HTTP routes are registered for the API.
package router

import (
	"database/sql"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/cinema-seat-sync/internal/auth"
	"github.com/iliyamo/cinema-seat-sync/internal/handler"
	"github.com/iliyamo/cinema-seat-sync/internal/middleware"
)

// RegisterRoutes registers routes that do not require authentication:
// liveness, readiness and the Prometheus scrape endpoint.
func RegisterRoutes(e *echo.Echo, rdb redis.UniversalClient, db *sql.DB, gatherer prometheus.Gatherer) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(rdb, db))
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
}

// RegisterBooking registers the booking endpoints under /v1.  Every route
// requires a valid access token; the rate limiter sits after
// authentication so it can key on the user.
func RegisterBooking(e *echo.Echo, h *handler.BookingHandler, v *auth.Verifier, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1", middleware.JWTAuth(v), limiter)
	g.POST("/bookings", h.Create)
	g.DELETE("/bookings/:id", h.Cancel)
	g.GET("/me/bookings", h.MyBookings)
	g.GET("/shows/:id/bookings", h.ShowBookings)
	g.GET("/shows/:id/locks", h.ShowLocks)
}

// RegisterRealtime exposes the websocket endpoint.  Authentication happens
// inside the handler so that a refused connection gets a plain 401.
func RegisterRealtime(e *echo.Echo, h *handler.RealtimeHandler) {
	e.GET("/v1/ws", h.Serve)
}
