package auth

import (
	"context"
	"strings"

	"github.com/golang-jwt/jwt/v5"
)

// Claims mirrors the JWT payload emitted by the identity provider after a magic-link sign in.
type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity is the verified caller of a request.
type Identity struct {
	UserID string
	Email  string
}

// TokenVerifier validates a raw credential and returns its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, token string) (Claims, error)
}

// IdentityFromClaims projects verified claims onto an Identity.
func IdentityFromClaims(claims Claims) Identity {
	return Identity{
		UserID: strings.TrimSpace(claims.Subject),
		Email:  strings.TrimSpace(claims.Email),
	}
}
