package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Health is the liveness probe.  It returns "ok" while the process serves.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Ready returns a readiness probe that runs check (for example a database
// ping) with a short timeout and answers 503 when it fails.
func Ready(check func(ctx context.Context) error) echo.HandlerFunc {
	return func(c echo.Context) error {
		if check != nil {
			ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
			defer cancel()
			if err := check(ctx); err != nil {
				return writeError(c, http.StatusServiceUnavailable, codeUnavailable, "dependency unavailable")
			}
		}
		return c.String(http.StatusOK, "ready")
	}
}
