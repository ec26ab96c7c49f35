package model

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Token is the bearer credential sent as X-Auth-Token on every upstream call.
type Token struct {
	Value      string
	ObtainedAt time.Time
	ExpiresAt  time.Time
}

// NewToken builds a token valid for ttl from obtainedAt. When the value is a
// JWT whose exp claim falls earlier than that window, the claim wins.
func NewToken(value string, obtainedAt time.Time, ttl time.Duration) Token {
	expires := obtainedAt.Add(ttl)
	if exp, ok := jwtExpiry(value); ok && exp.Before(expires) {
		expires = exp
	}
	return Token{Value: value, ObtainedAt: obtainedAt, ExpiresAt: expires}
}

// ValidAt reports whether the token exists and has not expired at now.
func (t Token) ValidAt(now time.Time) bool {
	return t.Value != "" && now.Before(t.ExpiresAt)
}

// Redacted returns a short prefix suitable for logs.
func (t Token) Redacted() string {
	if len(t.Value) <= 8 {
		return "***"
	}
	return t.Value[:8] + "..."
}

// jwtExpiry reads the exp claim without verifying the signature; the portal's
// signing key is unknown and the claim is only used to shorten the window.
func jwtExpiry(value string) (time.Time, bool) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(value, claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
