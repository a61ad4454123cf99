package session

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrInvalidCookie is returned when the cookie is malformed or invalid
	ErrInvalidCookie = errors.New("invalid session cookie")
	// ErrExpiredCookie is returned when the cookie has expired
	ErrExpiredCookie = errors.New("session cookie has expired")
	// ErrInvalidSignature is returned when the cookie signature is invalid
	ErrInvalidSignature = errors.New("invalid cookie signature")
	// ErrMissingClaims is returned when required claims are missing
	ErrMissingClaims = errors.New("missing required claims")
)

// cookieClaims is the signed payload carried by the session cookie.
// SID is the opaque session token; Username is advisory — the server-side
// store stays authoritative so logout invalidates stale cookies.
type cookieClaims struct {
	SID      string `json:"sid"`
	Username string `json:"username,omitempty"`
	jwt.RegisteredClaims
}

// CookieCodec signs and validates session cookie values.
type CookieCodec struct {
	secret   []byte
	lifetime time.Duration
}

// NewCookieCodec creates a codec signing with secret; issued cookies expire
// after lifetime.
func NewCookieCodec(secret []byte, lifetime time.Duration) *CookieCodec {
	return &CookieCodec{secret: secret, lifetime: lifetime}
}

// Encode produces a signed cookie value for the session.
func (c *CookieCodec) Encode(sid, username string) (string, error) {
	now := time.Now()
	claims := cookieClaims{
		SID:      sid,
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.lifetime)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign session cookie: %w", err)
	}
	return signed, nil
}

// Decode validates a cookie value and extracts the session ID and username.
// It verifies the signature, the expiry, and the presence of the sid claim.
func (c *CookieCodec) Decode(value string) (sid, username string, err error) {
	if value == "" {
		return "", "", fmt.Errorf("%w: empty value", ErrInvalidCookie)
	}

	claims := &cookieClaims{}
	token, err := jwt.ParseWithClaims(value, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("%w: unexpected signing method: %v", ErrInvalidSignature, token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", "", fmt.Errorf("%w: %v", ErrExpiredCookie, err)
		}
		if errors.Is(err, jwt.ErrSignatureInvalid) {
			return "", "", fmt.Errorf("%w: %v", ErrInvalidSignature, err)
		}
		return "", "", fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}
	if !token.Valid {
		return "", "", fmt.Errorf("%w: token is not valid", ErrInvalidCookie)
	}
	if claims.SID == "" {
		return "", "", fmt.Errorf("%w: sid claim missing", ErrMissingClaims)
	}

	return claims.SID, claims.Username, nil
}
