package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/goliatone/go-taskauth/middleware/jwtware"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// AuthClaims is the read side of a verified token
type AuthClaims = jwtware.AuthClaims

// JWTClaims is the claim set carried by access and refresh tokens
type JWTClaims struct {
	jwt.RegisteredClaims
	EmailAddr string `json:"email"`
	TokenType string `json:"token_type"`
}

var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// Email returns the email claim
func (c *JWTClaims) Email() string {
	return c.EmailAddr
}

// Expires returns the expiration time, zero when unset
func (c *JWTClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// IssuedAt returns the issued at time, zero when unset
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt == nil {
		return time.Time{}
	}
	return c.RegisteredClaims.IssuedAt.Time
}
