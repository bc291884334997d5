package http

import (
	"crypto/subtle"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/worldbeesion/beecareful-backend/internal/diagnosis/domain"
	"github.com/worldbeesion/beecareful-backend/internal/logging"
	"github.com/worldbeesion/beecareful-backend/internal/storage/objectstore"
)

// StorageEvent handles object created notifications relayed from the bucket.
// The relay is authenticated with header X-API-Key (optional in dev if the
// key is not configured).
func (h *Handler) StorageEvent(c *gin.Context) {
	if h.storageAPIKey != "" {
		key := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(h.storageAPIKey)) != 1 {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized: invalid api key"})
			return
		}
	}

	var body objectstore.StorageEvent
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "details": err.Error()})
		return
	}

	ctx := c.Request.Context()
	err := h.storage.OnObjectStored(ctx, body)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"message": "event processed", "objectKey": body.ObjectKey})
	case errors.Is(err, objectstore.ErrDuplicateEvent):
		c.JSON(http.StatusOK, gin.H{"message": "duplicate event ignored", "objectKey": body.ObjectKey})
	case errors.Is(err, objectstore.ErrInvalidEvent):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, objectstore.ErrObjectNotFound), errors.Is(err, domain.ErrReferenceNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "object not found"})
	default:
		logging.FromContext(ctx, h.logger).ErrorContext(ctx, "storage event failed", "object_key", body.ObjectKey, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to process event"})
	}
}
