package models

import "time"

// MetricStatus classifies a health metric against its thresholds.
type MetricStatus string

const (
	StatusHealthy  MetricStatus = "healthy"
	StatusWarning  MetricStatus = "warning"
	StatusCritical MetricStatus = "critical"
)

// Threshold holds the warning and critical boundaries for a metric.
type Threshold struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
}

// HealthMetric is one sampled value with its status classification.
type HealthMetric struct {
	Name        string       `json:"name"`
	Value       float64      `json:"value"`
	Status      MetricStatus `json:"status"`
	Threshold   Threshold    `json:"threshold"`
	Unit        string       `json:"unit"`
	Description string       `json:"description"`
	// HigherIsBetter flips threshold comparison for percentage-style
	// metrics where a large value is the healthy one.
	HigherIsBetter bool      `json:"-"`
	LastUpdated    time.Time `json:"last_updated"`
}

// AlertSeverity ranks a system alert.
type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

// SystemAlert is raised when a metric crosses a threshold, deduplicated by
// title while unresolved.
type SystemAlert struct {
	ID         string                 `json:"id"`
	Kind       string                 `json:"kind"`
	Severity   AlertSeverity          `json:"severity"`
	Title      string                 `json:"title"`
	Message    string                 `json:"message"`
	Context    map[string]interface{} `json:"context,omitempty"`
	CreatedAt  time.Time              `json:"created_at"`
	Resolved   bool                   `json:"resolved"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
}

// OverallStatus is the aggregate system state derived from the score.
type OverallStatus string

const (
	OverallHealthy  OverallStatus = "healthy"
	OverallDegraded OverallStatus = "degraded"
	OverallCritical OverallStatus = "critical"
)

// HealthReport is the snapshot returned by a health check: a 0-100 composite
// score, per-metric statuses, and the currently active alerts.
type HealthReport struct {
	Overall         OverallStatus  `json:"overall"`
	Score           int            `json:"score"`
	Metrics         []HealthMetric `json:"metrics"`
	Alerts          []SystemAlert  `json:"alerts"`
	Recommendations []string       `json:"recommendations,omitempty"`
	Error           string         `json:"error,omitempty"`
	LastChecked     time.Time      `json:"last_checked"`
}
