package utils

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestNewAccessToken(t *testing.T) {
	t.Parallel()
	now := time.Now()
	tok, err := NewAccessToken("s", 12, "OWNER", time.Hour, now)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tok.Exp.Equal(now.UTC().Add(time.Hour)) {
		t.Fatalf("unexpected expiry %v", tok.Exp)
	}

	claims := jwt.MapClaims{}
	_, err = jwt.ParseWithClaims(tok.Token, claims, func(*jwt.Token) (any, error) { return []byte("s"), nil })
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims["sub"] != float64(12) || claims["role"] != "OWNER" {
		t.Fatalf("unexpected claims %v", claims)
	}
}

func TestNewAccessTokenRejectsBadInput(t *testing.T) {
	t.Parallel()
	if _, err := NewAccessToken("", 1, "OWNER", time.Hour, time.Now()); err == nil {
		t.Fatalf("expected error for empty secret")
	}
	if _, err := NewAccessToken("s", 1, "OWNER", 0, time.Now()); err == nil {
		t.Fatalf("expected error for zero ttl")
	}
}
