package api

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"notification-engine/internal/config"
	"notification-engine/internal/engine"
	"notification-engine/internal/health"
	"notification-engine/internal/logging"
	"notification-engine/internal/ws"
)

func NewRouter(store NotificationStore, eng *engine.Engine, hub *ws.Hub, monitor *health.Monitor, logger *logging.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))
	r.Use(MetricsMiddleware())

	h := NewHandler(store, eng, hub, monitor, logger, cfg.Monitor.Interval)

	api := r.Group(cfg.API.BasePath)
	{
		api.POST("/events", h.SubmitEvent)

		api.GET("/notifications/user/:user_id", h.GetNotificationsByUserID)
		api.GET("/notifications/user/:user_id/unread-count", h.GetUnreadCount)
		api.POST("/notifications/user/:user_id/read-all", h.MarkAllRead)
		api.GET("/notifications/:id", h.GetNotification)
		api.POST("/notifications/:id/read", h.MarkRead)
		api.POST("/notifications/:id/archive", h.ArchiveNotification)
	}

	r.GET("/ws", h.ServeWS)

	r.GET("/health", h.GetHealth)
	r.POST("/health", h.PostHealth)
	r.PUT("/health", h.PutHealth)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}
