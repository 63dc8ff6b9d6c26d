package server

import (
	"net/http"

	"github.com/MarcoPoloResearchLab/chirp/internal/failures"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func statusForKind(kind failures.Kind) int {
	switch kind {
	case failures.KindInvalidInput:
		return http.StatusBadRequest
	case failures.KindUnauthenticated:
		return http.StatusUnauthorized
	case failures.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the client-safe message of err with its mapped status.
// Server-side failures are logged with their machine code since the body hides it.
func (h *httpHandler) respondError(c *gin.Context, err error) {
	status := statusForKind(failures.KindOf(err))
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("code", failures.CodeOf(err)),
			zap.String("path", c.FullPath()),
			zap.Error(err),
		)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": failures.MessageOf(err)})
}
