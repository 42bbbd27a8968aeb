package health

import (
	"fmt"
	"sort"
	"strings"

	"notification-engine/internal/models"
)

// FormatMetricsText renders a detailed report as flat "name value" lines for
// scrape-style consumers. Metric lines are sorted so output is stable.
func FormatMetricsText(r DetailedReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "notification_system_health_score %d\n", r.Score)
	fmt.Fprintf(&b, "notification_system_alert_count %d\n", len(r.Alerts))

	metrics := make([]models.HealthMetric, len(r.Metrics))
	copy(metrics, r.Metrics)
	sort.Slice(metrics, func(i, j int) bool { return metrics[i].Name < metrics[j].Name })

	for _, metric := range metrics {
		fmt.Fprintf(&b, "notification_%s %g\n", metric.Name, metric.Value)
		fmt.Fprintf(&b, "notification_%s_status %g\n", metric.Name, statusValue(metric.Status))
	}

	d := r.SystemStats.Delivery
	fmt.Fprintf(&b, "notification_delivery_attempts_total %d\n", d.TotalAttempts)
	fmt.Fprintf(&b, "notification_delivery_success_total %d\n", d.SuccessfulDeliveries)
	fmt.Fprintf(&b, "notification_delivery_failed_total %d\n", d.FailedDeliveries)
	fmt.Fprintf(&b, "notification_delivery_expired_total %d\n", d.ExpiredNotifications)

	dd := r.SystemStats.Deduplication
	fmt.Fprintf(&b, "notification_dedup_checks_total %d\n", dd.Checks)
	fmt.Fprintf(&b, "notification_dedup_suppressed_total %d\n", dd.Suppressed)

	rl := r.SystemStats.RateLimit
	fmt.Fprintf(&b, "notification_rate_limit_bypassed_total %d\n", rl.Bypassed)
	fmt.Fprintf(&b, "notification_rate_limit_denied_total %d\n", rl.Denied)

	fmt.Fprintf(&b, "notification_process_uptime_seconds %g\n", r.Performance.UptimeSeconds)
	fmt.Fprintf(&b, "notification_process_goroutines %d\n", r.Performance.Goroutines)
	fmt.Fprintf(&b, "notification_process_heap_alloc_bytes %d\n", r.Performance.HeapAllocBytes)
	fmt.Fprintf(&b, "notification_last_checked_timestamp %d\n", r.LastChecked.Unix())

	return b.String()
}

// statusValue maps a metric status onto a numeric gauge (1 healthy, 0.5
// warning, 0 critical).
func statusValue(s models.MetricStatus) float64 {
	switch s {
	case models.StatusHealthy:
		return 1
	case models.StatusWarning:
		return 0.5
	default:
		return 0
	}
}
