package server

import (
	"errors"

	"github.com/MarcoPoloResearchLab/chirp/internal/auth"
	"github.com/MarcoPoloResearchLab/chirp/internal/failures"
	"github.com/MarcoPoloResearchLab/chirp/internal/profiles"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

const opAuthenticate = "server.authenticate"

// resolveIdentity authenticates the request. The returned error never discloses why
// the credential was rejected.
func (h *httpHandler) resolveIdentity(c *gin.Context) (profiles.Identity, error) {
	identity, err := h.authenticator.Authenticate(c.Request)
	if err != nil {
		h.logAuthFailure(err)
		return profiles.Identity{}, failures.Unauthenticated(opAuthenticate, "rejected", err)
	}
	return profiles.Identity{UserID: identity.UserID, Email: identity.Email}, nil
}

func (h *httpHandler) requireIdentity(c *gin.Context) {
	identity, err := h.resolveIdentity(c)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.Set(identityContextKey, identity)
	c.Next()
}

func identityFromContext(c *gin.Context) (profiles.Identity, bool) {
	value, ok := c.Get(identityContextKey)
	if !ok {
		return profiles.Identity{}, false
	}
	identity, ok := value.(profiles.Identity)
	return identity, ok && identity.UserID != ""
}

func (h *httpHandler) logAuthFailure(err error) {
	switch {
	case errors.Is(err, auth.ErrMissingCredential):
		h.logger.Debug("request carried no credential")
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, auth.ErrExpiredSessionToken):
		h.logger.Info("token validation failed", zap.Error(err))
	default:
		h.logger.Warn("token validation failed", zap.Error(err))
	}
}
