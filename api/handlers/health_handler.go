package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/yourusername/kiwix-monitor-go/internal/app"
)

// HealthHandler handles health check requests
type HealthHandler struct {
	coordinator *app.SessionCoordinator
	version     string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(coordinator *app.SessionCoordinator, version string) *HealthHandler {
	return &HealthHandler{
		coordinator: coordinator,
		version:     version,
	}
}

// HealthResponse represents a health check response
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
	Session struct {
		ID         string `json:"id"`
		Running    bool   `json:"running"`
		Foreground bool   `json:"foreground"`
	} `json:"session"`
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	status := h.coordinator.Status()

	response := HealthResponse{
		Status:  "ok",
		Version: h.version,
	}
	response.Session.ID = status.SessionID
	response.Session.Running = status.Running
	response.Session.Foreground = status.Foreground

	c.JSON(http.StatusOK, response)
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	status := h.coordinator.Status()
	if !status.Running || !status.ListenerAttached {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "not ready",
			"reason": "session coordinator not listening",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
