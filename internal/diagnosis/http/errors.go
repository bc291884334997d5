package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/worldbeesion/beecareful-backend/internal/api/http/middleware"
	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
	"github.com/worldbeesion/beecareful-backend/internal/logging"
)

// writeError maps service errors onto HTTP responses.
func (h *Handler) writeError(c *gin.Context, err error, action string) {
	switch {
	case errors.Is(err, domain.ErrReferenceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, domain.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "access denied"})
	case errors.Is(err, domain.ErrInvalidUploadSlots):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		logging.FromContext(c.Request.Context(), h.logger).ErrorContext(c.Request.Context(), action+" failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":      "failed to " + action,
			"request_id": middleware.GetRequestID(c.Request.Context()),
		})
	}
}
