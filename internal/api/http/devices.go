package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/worldbeesion/beecareful-backend/internal/auth"
)

type deviceRegistrar interface {
	RegisterDevice(ctx context.Context, memberID int64, token string) error
}

type RegisterDeviceRequest struct {
	FCMToken string `json:"fcmToken" binding:"required"`
}

// DeviceHandler lets a member register the FCM token of a device for
// diagnosis notifications.
type DeviceHandler struct {
	devices deviceRegistrar
}

func NewDeviceHandler(devices deviceRegistrar) *DeviceHandler {
	return &DeviceHandler{devices: devices}
}

func (h *DeviceHandler) RegisterDevice(c *gin.Context) {
	var req RegisterDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.FCMToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fcmToken is required"})
		return
	}

	if err := h.devices.RegisterDevice(c.Request.Context(), auth.MemberID(c), strings.TrimSpace(req.FCMToken)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to register device"})
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *DeviceHandler) RegisterRoutes(r gin.IRouter) {
	r.PUT("/members/me/devices", h.RegisterDevice)
}
