package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/kiwix-monitor-go/internal/app"
	"github.com/yourusername/kiwix-monitor-go/internal/domain"
)

// ServiceHandler accepts host lifecycle commands
type ServiceHandler struct {
	coordinator *app.SessionCoordinator
	logger      *zap.Logger
}

// NewServiceHandler creates a new service handler
func NewServiceHandler(coordinator *app.SessionCoordinator, logger *zap.Logger) *ServiceHandler {
	return &ServiceHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

// Command handles POST /api/v1/service/command
func (h *ServiceHandler) Command(c *gin.Context) {
	var cmd app.ServiceCommand
	if err := c.ShouldBindJSON(&cmd); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.coordinator.HandleCommand(c.Request.Context(), cmd); err != nil {
		if errors.Is(err, domain.ErrCoordinatorStopped) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		h.logger.Warn("Service command rejected", zap.String("action", cmd.Action), zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, h.coordinator.Status())
}

// Status handles GET /api/v1/service
func (h *ServiceHandler) Status(c *gin.Context) {
	c.JSON(http.StatusOK, h.coordinator.Status())
}
