package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/chirp/internal/failures"
	"github.com/MarcoPoloResearchLab/chirp/internal/profiles"
	"github.com/gin-gonic/gin"
)

const opProfileUpdate = "server.profile_update"

type profileEditPayload struct {
	Name  *string `json:"name"`
	Email *string `json:"email"`
	Bio   *string `json:"bio"`
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	profile, err := h.profiles.GetByHandle(c.Request.Context(), c.Param("handle"))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleMe(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		h.respondError(c, failures.Unauthenticated(opAuthenticate, "missing_identity", nil))
		return
	}
	profile, err := h.profiles.Ensure(c.Request.Context(), identity)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	identity, ok := identityFromContext(c)
	if !ok {
		h.respondError(c, failures.Unauthenticated(opAuthenticate, "missing_identity", nil))
		return
	}
	var payload profileEditPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.respondError(c, failures.InvalidInput(opProfileUpdate, "malformed_body", "request body must be a JSON object"))
		return
	}
	profile, err := h.profiles.Update(c.Request.Context(), identity, profiles.Edit{
		Name:  payload.Name,
		Email: payload.Email,
		Bio:   payload.Bio,
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, profile)
}
