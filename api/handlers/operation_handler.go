package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/kiwix-monitor-go/internal/app"
	"github.com/yourusername/kiwix-monitor-go/internal/domain"
)

// OperationHandler handles operation-related HTTP requests
type OperationHandler struct {
	coordinator *app.SessionCoordinator
	logger      *zap.Logger
}

// NewOperationHandler creates a new operation handler
func NewOperationHandler(coordinator *app.SessionCoordinator, logger *zap.Logger) *OperationHandler {
	return &OperationHandler{
		coordinator: coordinator,
		logger:      logger,
	}
}

// ListOperations handles GET /api/v1/operations
func (h *OperationHandler) ListOperations(c *gin.Context) {
	filters := make(map[string]interface{})
	if status := c.Query("status"); status != "" {
		if !domain.ValidateStatus(domain.OperationStatus(status)) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
			return
		}
		filters["status"] = status
	}
	if fileName := c.Query("file_name"); fileName != "" {
		filters["file_name"] = fileName
	}

	ops, err := h.coordinator.ListOperations(filters)
	if err != nil {
		h.logger.Error("Failed to list operations", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if ops == nil {
		ops = []*domain.Operation{}
	}

	c.JSON(http.StatusOK, ops)
}

// GetStats handles GET /api/v1/operations/stats
func (h *OperationHandler) GetStats(c *gin.Context) {
	stats, err := h.coordinator.GetStats()
	if err != nil {
		h.logger.Error("Failed to get stats", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, stats)
}

// GetOperation handles GET /api/v1/operations/:id
func (h *OperationHandler) GetOperation(c *gin.Context) {
	id, ok := parseOperationID(c)
	if !ok {
		return
	}

	op, err := h.coordinator.GetOperation(id)
	if err != nil {
		h.writeError(c, id, err)
		return
	}

	c.JSON(http.StatusOK, op)
}

// ClearOperation handles DELETE /api/v1/operations/:id
func (h *OperationHandler) ClearOperation(c *gin.Context) {
	id, ok := parseOperationID(c)
	if !ok {
		return
	}

	if err := h.coordinator.Clear(c.Request.Context(), id); err != nil {
		h.writeError(c, id, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "operation cleared"})
}

func (h *OperationHandler) writeError(c *gin.Context, id int64, err error) {
	switch {
	case errors.Is(err, domain.ErrOperationNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "operation not found"})
	case errors.Is(err, domain.ErrCoordinatorStopped):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	default:
		h.logger.Error("Operation request failed", zap.Int64("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func parseOperationID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid operation id"})
		return 0, false
	}
	return id, true
}
