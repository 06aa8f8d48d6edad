package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/ticket-reservation/internal/model"
)

// Error codes returned in the "code" field of error bodies.
const (
	codeInvalidRequest      = "invalid_request"
	codeUnauthorized        = "unauthorized"
	codeInvalidCapacity     = "invalid_capacity"
	codeInvalidQuantity     = "invalid_quantity"
	codeTicketTypeNotFound  = "ticket_type_not_found"
	codeOrderNotFound       = "order_not_found"
	codeAlreadyProcessed    = "already_processed"
	codeAlreadyCancelled    = "already_cancelled"
	codeNotFulfilled        = "not_fulfilled"
	codeWindowExpired       = "window_expired"
	codeInsufficientSupply  = "insufficient_supply"
	codeUnavailable         = "unavailable"
	codeWeakPassword        = "weak_password"
	codeEmailTaken          = "email_taken"
	codeInvalidCredentials  = "invalid_credentials"
	codeInvalidRefreshToken = "invalid_refresh_token"
	codeUserNotFound        = "user_not_found"
	codeInternal            = "internal_error"
)

func writeError(c echo.Context, status int, code, msg string) error {
	return c.JSON(status, echo.Map{"error": msg, "code": code})
}

// writeServiceError maps service and model errors to HTTP responses.
// Unknown errors are logged and reported as 500 without details.
func writeServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, model.ErrInvalidCapacity):
		return writeError(c, http.StatusBadRequest, codeInvalidCapacity, err.Error())
	case errors.Is(err, model.ErrInvalidQuantity):
		return writeError(c, http.StatusBadRequest, codeInvalidQuantity, err.Error())
	case errors.Is(err, model.ErrTicketTypeNotFound):
		return writeError(c, http.StatusNotFound, codeTicketTypeNotFound, err.Error())
	case errors.Is(err, model.ErrOrderNotFound):
		return writeError(c, http.StatusNotFound, codeOrderNotFound, err.Error())
	case errors.Is(err, model.ErrAlreadyProcessed):
		return writeError(c, http.StatusConflict, codeAlreadyProcessed, err.Error())
	case errors.Is(err, model.ErrAlreadyCancelled):
		return writeError(c, http.StatusConflict, codeAlreadyCancelled, err.Error())
	case errors.Is(err, model.ErrNotFulfilled):
		c.Response().Header().Set("Retry-After", "1")
		return writeError(c, http.StatusServiceUnavailable, codeNotFulfilled, err.Error())
	case errors.Is(err, model.ErrWindowExpired):
		return writeError(c, http.StatusForbidden, codeWindowExpired, err.Error())
	}
	zerolog.Ctx(c.Request().Context()).Error().Err(err).Str("path", c.Path()).Msg("request failed")
	return writeError(c, http.StatusInternalServerError, codeInternal, "internal error")
}
