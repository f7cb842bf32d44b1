package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/kiwix-monitor-go/internal/domain"
	"github.com/yourusername/kiwix-monitor-go/internal/infrastructure"
)

const maxEventPayload = 64 << 10

// EngineHandler receives download engine callbacks
type EngineHandler struct {
	bridge *infrastructure.EngineBridge
	logger *zap.Logger
}

// NewEngineHandler creates a new engine handler
func NewEngineHandler(bridge *infrastructure.EngineBridge, logger *zap.Logger) *EngineHandler {
	return &EngineHandler{
		bridge: bridge,
		logger: logger,
	}
}

// PostEvent handles POST /api/v1/engine/events
func (h *EngineHandler) PostEvent(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxEventPayload)
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error()})
		return
	}

	ev, err := h.bridge.Ingest(payload)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidEvent) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		h.logger.Error("Failed to ingest engine event", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"kind":         ev.Kind(),
		"operation_id": ev.Operation().ID,
	})
}
