package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"notification-engine/internal/health"
	"notification-engine/internal/models"
)

// resolvedAlertRetention bounds how long resolved alerts stay queryable.
const resolvedAlertRetention = 24 * time.Hour

// GetHealth returns the health report, detailed unless ?detailed=false asks
// for the slim form. With ?format=prometheus it renders the flat text form
// instead.
func (h *Handler) GetHealth(c *gin.Context) {
	report := h.monitor.Detailed()

	if c.Query("format") == "prometheus" {
		c.Data(http.StatusOK, "text/plain; version=0.0.4", []byte(health.FormatMetricsText(report)))
		return
	}

	status := http.StatusOK
	if report.Overall == models.OverallCritical {
		status = http.StatusServiceUnavailable
	}
	if c.Query("detailed") == "false" {
		c.JSON(status, report.HealthReport)
		return
	}
	c.JSON(status, report)
}

type healthAction struct {
	Action  string `json:"action"`
	AlertID string `json:"alertId"`
	UserID  string `json:"userId"`
}

// PostHealth runs a management action against the monitor.
func (h *Handler) PostHealth(c *gin.Context) {
	var req healthAction
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	switch req.Action {
	case "start":
		h.monitor.StartMonitoring(h.monitorInterval)
		c.JSON(http.StatusOK, gin.H{"status": "monitoring started"})

	case "stop":
		h.monitor.StopMonitoring()
		c.JSON(http.StatusOK, gin.H{"status": "monitoring stopped"})

	case "check":
		c.JSON(http.StatusOK, h.monitor.Check())

	case "resolve_alert":
		if req.AlertID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "alertId is required"})
			return
		}
		if err := h.monitor.ResolveAlert(req.AlertID); err != nil {
			c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "alert resolved"})

	case "get_alerts":
		c.JSON(http.StatusOK, gin.H{"alerts": h.monitor.AllAlerts()})

	case "cleanup":
		c.JSON(http.StatusOK, gin.H{
			"alerts_cleared":       h.monitor.ClearOldAlerts(resolvedAlertRetention),
			"dedup_entries_swept":  h.engine.Deduplicator().Sweep(),
			"rate_windows_dropped": h.engine.RateLimiter().Cleanup(),
			"attempt_logs_dropped": h.engine.DeliveryManager().CleanupOldAttempts(),
		})

	case "test_reliability":
		if req.UserID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
			return
		}
		n := models.Notification{
			ID:        uuid.New().String(),
			UserID:    req.UserID,
			Type:      models.TypeSystemHealth,
			Title:     "Delivery test",
			Message:   "Verifying the delivery path end to end",
			Icon:      "🧪",
			Priority:  models.PriorityHigh,
			Data:      map[string]interface{}{"test": true},
			CreatedAt: time.Now(),
		}
		h.engine.DeliveryManager().Deliver(c.Request.Context(), n)
		c.JSON(http.StatusOK, gin.H{"status": "test notification dispatched", "notification_id": n.ID})

	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown action: " + req.Action})
	}
}

// PutHealth returns deep diagnostics: the detailed report plus the per-metric
// threshold table and monitor state.
func (h *Handler) PutHealth(c *gin.Context) {
	report := h.monitor.Detailed()
	c.JSON(http.StatusOK, gin.H{
		"report":             report,
		"monitoring_running": h.monitor.Running(),
		"alerts_total":       len(h.monitor.AllAlerts()),
		"alerts_active":      len(h.monitor.ActiveAlerts()),
		"generated_at":       time.Now().UTC(),
	})
}
