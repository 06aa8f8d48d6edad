package middleware // package middleware holds the Echo middleware shared by the routers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Context keys set by JWTAuth and OptionalJWT.
const (
	ContextUserID = "user_id"
	ContextRole   = "role"
)

var (
	errNoBearer      = errors.New("missing bearer token")
	errInvalidToken  = errors.New("invalid token")
	errInvalidClaims = errors.New("invalid claims")
)

type tokenParser struct {
	secret []byte
	parser *jwt.Parser
}

func newTokenParser(secret string) tokenParser {
	return tokenParser{
		secret: []byte(secret),
		parser: jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired()),
	}
}

// authenticate validates the bearer token of the request and stores its
// "sub" and "role" claims in the context.
func (p tokenParser) authenticate(c echo.Context) error {
	auth := c.Request().Header.Get("Authorization")
	if !strings.HasPrefix(auth, "Bearer ") {
		return errNoBearer
	}
	claims := jwt.MapClaims{}
	tok, err := p.parser.ParseWithClaims(strings.TrimPrefix(auth, "Bearer "), claims, func(*jwt.Token) (interface{}, error) {
		return p.secret, nil
	})
	if err != nil || !tok.Valid {
		return errInvalidToken
	}
	if claims["sub"] == nil {
		return errInvalidClaims
	}
	// Type assertions are left to UserID and RequireRole.
	c.Set(ContextUserID, claims["sub"])
	c.Set(ContextRole, claims["role"])
	return nil
}

// JWTAuth rejects requests without a valid HS256 bearer token that carries
// an expiry and a subject.
func JWTAuth(secret string) echo.MiddlewareFunc {
	p := newTokenParser(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := p.authenticate(c); err != nil {
				return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error(), "code": "unauthorized"})
			}
			return next(c)
		}
	}
}

// OptionalJWT authenticates the request when it carries a valid bearer
// token and lets it through anonymously otherwise.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	p := newTokenParser(secret)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			_ = p.authenticate(c)
			return next(c)
		}
	}
}
