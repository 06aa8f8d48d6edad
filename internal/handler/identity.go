package handler

import (
	"errors"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/ticket-reservation/internal/middleware"
)

var errNoUser = errors.New("invalid user_id in context")

// getUserID returns the requester id stored by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
	id, ok := middleware.UserID(c)
	if !ok || id == 0 {
		return 0, errNoUser
	}
	return id, nil
}
