package auth

import (
	"errors"
	"net/http"
	"strings"
)

const bearerPrefix = "Bearer "

var (
	// ErrMissingCredential indicates the request carried neither a bearer token nor a session cookie.
	ErrMissingCredential = errors.New("auth: credential missing")
	// ErrMalformedAuthorization indicates an Authorization header that is not a bearer credential.
	ErrMalformedAuthorization = errors.New("auth: authorization header malformed")
	errMissingVerifier        = errors.New("auth: token verifier required")
)

// AuthenticatorConfig wires the request authenticator.
type AuthenticatorConfig struct {
	Verifier TokenVerifier
	// CookieName is the session cookie consulted when no Authorization header is sent.
	CookieName string
}

// Authenticator resolves the caller identity from an HTTP request.
type Authenticator struct {
	verifier   TokenVerifier
	cookieName string
}

// NewAuthenticator constructs an Authenticator.
func NewAuthenticator(cfg AuthenticatorConfig) (*Authenticator, error) {
	if cfg.Verifier == nil {
		return nil, errMissingVerifier
	}
	return &Authenticator{
		verifier:   cfg.Verifier,
		cookieName: strings.TrimSpace(cfg.CookieName),
	}, nil
}

// Authenticate extracts and verifies the request credential.
// An explicit Authorization header always wins over the session cookie.
func (a *Authenticator) Authenticate(r *http.Request) (Identity, error) {
	if r == nil {
		return Identity{}, ErrMissingCredential
	}
	token, err := a.extractToken(r)
	if err != nil {
		return Identity{}, err
	}
	claims, err := a.verifier.Verify(r.Context(), token)
	if err != nil {
		return Identity{}, err
	}
	identity := IdentityFromClaims(claims)
	if identity.UserID == "" {
		return Identity{}, errMissingSubject
	}
	return identity, nil
}

func (a *Authenticator) extractToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header != "" {
		if !strings.HasPrefix(header, bearerPrefix) {
			return "", ErrMalformedAuthorization
		}
		token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
		if token == "" {
			return "", ErrMalformedAuthorization
		}
		return token, nil
	}
	if a.cookieName == "" {
		return "", ErrMissingCredential
	}
	cookie, err := r.Cookie(a.cookieName)
	if err != nil || strings.TrimSpace(cookie.Value) == "" {
		return "", ErrMissingCredential
	}
	return strings.TrimSpace(cookie.Value), nil
}
