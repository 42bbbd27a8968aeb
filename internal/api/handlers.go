package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"notification-engine/internal/engine"
	"notification-engine/internal/health"
	"notification-engine/internal/logging"
	"notification-engine/internal/models"
	"notification-engine/internal/ws"
)

// NotificationStore is the slice of the database the handlers need. *db.DB
// implements it; tests substitute a fake.
type NotificationStore interface {
	GetByID(ctx context.Context, id string) (models.Notification, error)
	ListForUser(ctx context.Context, userID string, filter models.ListFilter) ([]models.Notification, int, error)
	UnreadCount(ctx context.Context, userID string) (int, error)
	MarkRead(ctx context.Context, id string) (string, error)
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Archive(ctx context.Context, id string) error
}

type Handler struct {
	store           NotificationStore
	engine          *engine.Engine
	hub             *ws.Hub
	monitor         *health.Monitor
	logger          *logging.Logger
	monitorInterval time.Duration
}

func NewHandler(store NotificationStore, eng *engine.Engine, hub *ws.Hub, monitor *health.Monitor, logger *logging.Logger, monitorInterval time.Duration) *Handler {
	return &Handler{store: store, engine: eng, hub: hub, monitor: monitor, logger: logger, monitorInterval: monitorInterval}
}

// SubmitEvent accepts a raw activity event and hands it to the pipeline.
// Processing is asynchronous, so the response is always 202 on valid input.
func (h *Handler) SubmitEvent(c *gin.Context) {
	var ev models.Event
	if err := c.ShouldBindJSON(&ev); err != nil {
		h.logger.Errorf("Invalid event body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := ev.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.engine.Submit(ev)
	c.JSON(http.StatusAccepted, gin.H{"status": "accepted"})
}

func (h *Handler) GetNotificationsByUserID(c *gin.Context) {
	userID := c.Param("user_id")

	filter := models.ListFilter{
		UnreadOnly:      c.Query("unread_only") == "true",
		IncludeArchived: c.Query("include_archived") == "true",
		Limit:           intQuery(c, "limit", 20),
		Offset:          intQuery(c, "offset", 0),
	}

	notifications, total, err := h.store.ListForUser(c.Request.Context(), userID, filter)
	if err != nil {
		h.logger.Errorf("Failed to list notifications for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get notifications"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"notifications": notifications,
		"total":         total,
		"limit":         filter.Limit,
		"offset":        filter.Offset,
	})
}

func (h *Handler) GetNotification(c *gin.Context) {
	id := c.Param("id")
	n, err := h.store.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("Failed to get notification %s: %v", id, err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}
	c.JSON(http.StatusOK, n)
}

func (h *Handler) GetUnreadCount(c *gin.Context) {
	userID := c.Param("user_id")
	count, err := h.store.UnreadCount(c.Request.Context(), userID)
	if err != nil {
		h.logger.Errorf("Failed to count unread for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get unread count"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"unread_count": count})
}

// MarkRead persists the read flag, then fans the receipt out to the owner's
// live connections so other tabs update.
func (h *Handler) MarkRead(c *gin.Context) {
	id := c.Param("id")
	userID, err := h.store.MarkRead(c.Request.Context(), id)
	if err != nil {
		h.logger.Errorf("Failed to mark notification %s read: %v", id, err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}

	h.hub.Send(userID, string(ws.EventNotificationRead), ws.ReadReceipt{
		NotificationID: id,
		UserID:         userID,
	})
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) MarkAllRead(c *gin.Context) {
	userID := c.Param("user_id")
	updated, err := h.store.MarkAllRead(c.Request.Context(), userID)
	if err != nil {
		h.logger.Errorf("Failed to mark all read for user %s: %v", userID, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark all read"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *Handler) ArchiveNotification(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Archive(c.Request.Context(), id); err != nil {
		h.logger.Errorf("Failed to archive notification %s: %v", id, err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Notification not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "archived"})
}

func intQuery(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}
