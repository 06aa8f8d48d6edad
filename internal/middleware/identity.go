package middleware

// identity.go resolves the authenticated user for key building in the rate
// limiter.  The JWT "sub" claim arrives as a string or, when issued as a
// number, as float64.

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

// UserID returns the authenticated user id stored by JWTAuth.
func UserID(c echo.Context) (uint64, bool) {
	switch t := c.Get(ContextUserID).(type) {
	case uint64:
		return t, true
	case int:
		return uint64(t), t >= 0
	case int64:
		return uint64(t), t >= 0
	case float64:
		return uint64(t), t >= 0 && t == float64(uint64(t))
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, true
		}
	}
	return 0, false
}

func currentUserID(c echo.Context) string {
	if id, ok := UserID(c); ok {
		return strconv.FormatUint(id, 10)
	}
	return "anon"
}
