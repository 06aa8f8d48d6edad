package router // package router defines how HTTP routes are registered for the API

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/iliyamo/ticket-reservation/internal/handler"
	"github.com/iliyamo/ticket-reservation/internal/middleware"
)

// RegisterRoutes registers the unauthenticated probes.  ready may be nil
// when there is no external dependency to check.
func RegisterRoutes(e *echo.Echo, ready func(ctx context.Context) error) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(ready))
}

// RegisterAuth registers account and session routes under /v1/auth plus
// GET /v1/me.  Logout accepts either a refresh token or a bearer token, so
// it parses the bearer token when one is present but does not require it.
func RegisterAuth(e *echo.Echo, h *handler.AuthHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/auth")
	g.POST("/register", h.Register, limiter)
	g.POST("/login", h.Login, limiter)
	g.POST("/refresh", h.Refresh, limiter)
	g.POST("/logout", h.Logout, middleware.OptionalJWT(jwtSecret))

	e.GET("/v1/me", h.Me,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer, middleware.RoleOwner),
	)
}

// RegisterMetrics exposes the collectors in g on GET /metrics.
func RegisterMetrics(e *echo.Echo, g prometheus.Gatherer) {
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
}

// RegisterTicketTypes registers the ticket type routes.  Browsing is
// public; the listing goes through cache and creation runs evict.  Creating
// a ticket type requires the OWNER role.
func RegisterTicketTypes(e *echo.Echo, h *handler.TicketTypeHandler, jwtSecret string, cache, evict echo.MiddlewareFunc) {
	e.GET("/v1/ticket-types", h.List, cache)
	e.GET("/v1/ticket-types/:id", h.Get)

	owner := e.Group("/v1/ticket-types",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleOwner),
	)
	owner.POST("", h.Create, evict)
}

// RegisterOrders registers the order routes.  All of them need a valid JWT;
// the limiter applies to the state-changing routes only.
func RegisterOrders(e *echo.Echo, h *handler.OrderHandler, jwtSecret string, limiter echo.MiddlewareFunc) {
	g := e.Group("/v1/orders",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(middleware.RoleCustomer, middleware.RoleOwner),
	)
	g.GET("", h.List)
	g.GET("/:id", h.Get)
	g.POST("", h.Create, limiter)
	g.POST("/:id/cancel", h.Cancel, limiter)
}

// NotFound answers unknown routes with the API error shape.
func NotFound(c echo.Context) error {
	return c.JSON(http.StatusNotFound, echo.Map{"error": "route not found", "code": "not_found"})
}
