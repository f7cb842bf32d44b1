package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/kiwix-monitor-go/internal/infrastructure"
)

// NotificationHandler exposes the notification tray
type NotificationHandler struct {
	center *infrastructure.NotificationCenter
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(center *infrastructure.NotificationCenter) *NotificationHandler {
	return &NotificationHandler{center: center}
}

// ListNotifications handles GET /api/v1/notifications
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"notifications": h.center.List(),
		"channels":      h.center.Channels(),
	})
}
