package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/yourusername/kiwix-monitor-go/api/handlers"
	"github.com/yourusername/kiwix-monitor-go/api/middleware"
	"github.com/yourusername/kiwix-monitor-go/internal/app"
	"github.com/yourusername/kiwix-monitor-go/internal/infrastructure"
	"github.com/yourusername/kiwix-monitor-go/pkg/logger"
)

// Version is reported by /health
const Version = "1.0.0"

// Dependencies are the components the HTTP layer talks to
type Dependencies struct {
	Coordinator *app.SessionCoordinator
	Bridge      *infrastructure.EngineBridge
	Center      *infrastructure.NotificationCenter
	Logger      *zap.Logger
	MultiLogger *logger.MultiLogger
	LogsDir     string
	AuthSecret  string
}

// SetupRouter builds the HTTP router. The returned stream is already
// registered as a coordinator observer; close it on shutdown.
func SetupRouter(deps Dependencies) (*gin.Engine, *handlers.OperationStream) {
	if gin.Mode() != gin.TestMode {
		gin.SetMode(gin.ReleaseMode)
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}

	router := gin.New()

	// Middleware
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger(log, deps.MultiLogger))
	router.Use(middleware.Recovery(log, deps.MultiLogger))

	// Health endpoints
	healthHandler := handlers.NewHealthHandler(deps.Coordinator, Version)
	router.GET("/health", healthHandler.Health)
	router.GET("/ready", healthHandler.Ready)

	stream := handlers.NewOperationStream(log)
	deps.Coordinator.AddObserver(stream.Broadcast)

	// API v1 routes
	v1 := router.Group("/api/v1")
	v1.Use(middleware.BearerAuth(deps.AuthSecret))
	{
		engineHandler := handlers.NewEngineHandler(deps.Bridge, log)
		v1.POST("/engine/events", engineHandler.PostEvent)

		operationHandler := handlers.NewOperationHandler(deps.Coordinator, log)
		operations := v1.Group("/operations")
		{
			operations.GET("", operationHandler.ListOperations)
			operations.GET("/stats", operationHandler.GetStats)
			operations.GET("/stream", stream.HandleWebSocket)
			operations.GET("/:id", operationHandler.GetOperation)
			operations.DELETE("/:id", operationHandler.ClearOperation)
		}

		notificationHandler := handlers.NewNotificationHandler(deps.Center)
		v1.GET("/notifications", notificationHandler.ListNotifications)

		serviceHandler := handlers.NewServiceHandler(deps.Coordinator, log)
		v1.GET("/service", serviceHandler.Status)
		v1.POST("/service/command", serviceHandler.Command)

		logHandler := handlers.NewLogHandler(deps.LogsDir)
		logSocket := handlers.NewLogWebSocketHandler(deps.LogsDir, log)
		logs := v1.Group("/logs")
		{
			logs.GET("/categories", logHandler.GetCategories)
			logs.GET("/:category", logHandler.GetLogs)
			logs.GET("/:category/search", logHandler.SearchLogs)
			logs.GET("/:category/tail", logSocket.HandleWebSocket)
		}
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return router, stream
}
