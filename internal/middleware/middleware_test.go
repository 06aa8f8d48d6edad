package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/ticket-reservation/internal/config"
	"github.com/iliyamo/ticket-reservation/internal/utils"
)

const secret = "test-secret"

func run(t *testing.T, mw echo.MiddlewareFunc, req *http.Request, pre func(echo.Context)) (*httptest.ResponseRecorder, echo.Context, bool) {
	t.Helper()
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if pre != nil {
		pre(c)
	}
	called := false
	err := mw(func(c echo.Context) error {
		called = true
		return c.NoContent(http.StatusNoContent)
	})(c)
	if err != nil {
		t.Fatalf("middleware: %v", err)
	}
	return rec, c, called
}

func bearer(token string) *http.Request {
	req := httptest.NewRequest(http.MethodGet, "/v1/orders", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestJWTAuth(t *testing.T) {
	t.Parallel()
	valid, err := utils.NewAccessToken(secret, 42, RoleCustomer, time.Hour, time.Now())
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	expired, _ := utils.NewAccessToken(secret, 42, RoleCustomer, time.Minute, time.Now().Add(-time.Hour))
	other, _ := utils.NewAccessToken("other", 42, RoleCustomer, time.Hour, time.Now())
	noExp, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "42"}).SignedString([]byte(secret))
	noSub, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(time.Hour).Unix()}).SignedString([]byte(secret))

	tests := []struct {
		name  string
		token string
		ok    bool
	}{
		{"valid", valid.Token, true},
		{"missing", "", false},
		{"expired", expired.Token, false},
		{"wrong secret", other.Token, false},
		{"no expiry", noExp, false},
		{"no subject", noSub, false},
		{"garbage", "abc.def.ghi", false},
	}
	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			rec, c, called := run(t, JWTAuth(secret), bearer(tc.token), nil)
			if called != tc.ok {
				t.Fatalf("expected next called=%v, got %v (status %d)", tc.ok, called, rec.Code)
			}
			if !tc.ok {
				if rec.Code != http.StatusUnauthorized {
					t.Fatalf("expected 401, got %d", rec.Code)
				}
				return
			}
			if id, ok := UserID(c); !ok || id != 42 {
				t.Fatalf("expected user 42, got %d %v", id, ok)
			}
			if c.Get(ContextRole) != RoleCustomer {
				t.Fatalf("expected role %s, got %v", RoleCustomer, c.Get(ContextRole))
			}
		})
	}
}

func TestUserID(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   any
		want uint64
		ok   bool
	}{
		{uint64(7), 7, true},
		{7, 7, true},
		{int64(8), 8, true},
		{float64(9), 9, true},
		{"10", 10, true},
		{-1, 0, false},
		{1.5, 0, false},
		{"abc", 0, false},
		{nil, 0, false},
	}
	e := echo.New()
	for _, tc := range tests {
		c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
		c.Set(ContextUserID, tc.in)
		got, ok := UserID(c)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("UserID(%v) = %d %v, want %d %v", tc.in, got, ok, tc.want, tc.ok)
		}
	}
}

func TestRequireRole(t *testing.T) {
	t.Parallel()
	mw := RequireRole(RoleOwner)
	for role, want := range map[any]bool{RoleOwner: true, RoleCustomer: false, nil: false} {
		rec, _, called := run(t, mw, httptest.NewRequest(http.MethodPost, "/", nil), func(c echo.Context) {
			c.Set(ContextRole, role)
		})
		if called != want {
			t.Fatalf("role %v: expected allowed=%v, got %v", role, want, called)
		}
		if !want && rec.Code != http.StatusForbidden {
			t.Fatalf("role %v: expected 403, got %d", role, rec.Code)
		}
	}
}

func TestRateKey(t *testing.T) {
	t.Parallel()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/v1/orders", nil)
	req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
	c := e.NewContext(req, httptest.NewRecorder())
	c.SetPath("/v1/orders")
	c.Set(ContextUserID, uint64(5))

	tests := map[string]string{
		config.KeyByIP:        "rl:ip:10.0.0.1",
		config.KeyByUser:      "rl:user:5",
		config.KeyByUserRoute: "rl:user:5:route:POST /v1/orders",
	}
	for strategy, want := range tests {
		if got := rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: strategy}, c); got != want {
			t.Fatalf("%s: expected %q, got %q", strategy, want, got)
		}
	}

	anon := e.NewContext(httptest.NewRequest(http.MethodPost, "/", nil), httptest.NewRecorder())
	if got := rateKey(config.RateLimitConfig{Prefix: "rl", KeyStrategy: config.KeyByUser}, anon); got != "rl:user:anon" {
		t.Fatalf("expected anon key, got %q", got)
	}
}

func TestRedisMiddlewaresWithoutClient(t *testing.T) {
	t.Parallel()
	mws := map[string]echo.MiddlewareFunc{
		"limiter": NewTokenBucket(config.RateLimitConfig{Enabled: true, Capacity: 1, Refill: 1, Interval: time.Second}, nil),
		"cache":   NewRedisCache(config.CacheConfig{Enabled: true, TTL: time.Second}, nil),
		"evict":   EvictCache(config.CacheConfig{Enabled: true}, nil),
	}
	for name, mw := range mws {
		for i := 0; i < 3; i++ {
			rec, _, called := run(t, mw, httptest.NewRequest(http.MethodGet, "/", nil), nil)
			if !called || rec.Code != http.StatusNoContent {
				t.Fatalf("%s: expected pass-through, got %d", name, rec.Code)
			}
		}
	}
}

func TestTeeWriterStopsCopyingPastLimit(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	w := &teeWriter{ResponseWriter: rec, status: http.StatusOK, limit: 4}
	_, _ = w.Write([]byte("abc"))
	if w.overflow || w.buf.String() != "abc" {
		t.Fatalf("unexpected state %q %v", w.buf.String(), w.overflow)
	}
	_, _ = w.Write([]byte("de"))
	if !w.overflow || w.buf.Len() != 0 {
		t.Fatalf("expected overflow")
	}
	if rec.Body.String() != "abcde" {
		t.Fatalf("client body truncated: %q", rec.Body.String())
	}
}

func TestRequestLogger(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	log := zerolog.New(&buf)
	req := httptest.NewRequest(http.MethodGet, "/v1/ticket-types", nil)
	req.Header.Set(echo.HeaderXRequestID, "req-1")

	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/v1/ticket-types")
	err := RequestLogger(log)(func(c echo.Context) error {
		if zerolog.Ctx(c.Request().Context()).GetLevel() == zerolog.Disabled {
			t.Errorf("request context carries no logger")
		}
		return c.String(http.StatusTeapot, "short and stout")
	})(c)
	if err != nil {
		t.Fatalf("middleware: %v", err)
	}

	var line map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &line); err != nil {
		t.Fatalf("decode %q: %v", buf.String(), err)
	}
	if line["request_id"] != "req-1" || line["status"] != float64(http.StatusTeapot) || line["level"] != "warn" {
		t.Fatalf("unexpected log line %v", line)
	}
	if !strings.Contains(buf.String(), `"path":"/v1/ticket-types"`) {
		t.Fatalf("path missing from %s", buf.String())
	}
}

func TestOptionalJWT(t *testing.T) {
	t.Parallel()
	valid, _ := utils.NewAccessToken(secret, 9, RoleOwner, time.Hour, time.Now())
	for token, wantUser := range map[string]bool{valid.Token: true, "": false, "junk": false} {
		_, c, called := run(t, OptionalJWT(secret), bearer(token), nil)
		if !called {
			t.Fatalf("optional auth must never block")
		}
		if _, ok := UserID(c); ok != wantUser {
			t.Fatalf("token %q: expected user=%v", token, wantUser)
		}
	}
}
