package health

import (
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"

	"notification-engine/internal/engine"
	"notification-engine/internal/logging"
	"notification-engine/internal/models"
)

// StatsProvider exposes the sampled state of the pipeline components.
// *engine.Engine implements it; tests use a fake.
type StatsProvider interface {
	DedupStats() engine.DedupStats
	RateLimitStats() engine.RateLimitStats
	BatchStats() engine.BatchStats
	DeliveryStats() engine.DeliveryStats
	QueueDepth() int
}

// ConnectionCounter reports live channel population. *ws.Hub implements it.
type ConnectionCounter interface {
	ConnectionCount() int
}

// Monitor periodically samples the pipeline, classifies each metric against
// thresholds, computes a composite 0-100 score, and raises alerts on
// critical crossings. Alerts are deduplicated by title while unresolved.
type Monitor struct {
	provider StatsProvider
	conns    ConnectionCounter
	logger   *logging.Logger
	now      func() time.Time

	mu        sync.Mutex
	metrics   map[string]*models.HealthMetric
	alerts    map[string]*models.SystemAlert
	running   bool
	stop      chan struct{}
	startedAt time.Time

	// alertSink receives newly created critical alerts (ops channel).
	alertSink func(models.SystemAlert)
}

// MonitorOption customises a Monitor.
type MonitorOption func(*Monitor)

// WithMonitorNow overrides the clock, for tests.
func WithMonitorNow(now func() time.Time) MonitorOption {
	return func(m *Monitor) {
		if now != nil {
			m.now = now
		}
	}
}

// NewMonitor builds a Monitor over the given sources.
func NewMonitor(provider StatsProvider, conns ConnectionCounter, logger *logging.Logger, opts ...MonitorOption) *Monitor {
	m := &Monitor{
		provider: provider,
		conns:    conns,
		logger:   logger,
		now:      time.Now,
		metrics:  make(map[string]*models.HealthMetric),
		alerts:   make(map[string]*models.SystemAlert),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.startedAt = m.now()
	m.initMetrics()
	return m
}

// SetAlertSink installs the receiver for newly raised critical alerts.
func (m *Monitor) SetAlertSink(fn func(models.SystemAlert)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertSink = fn
}

func (m *Monitor) initMetrics() {
	defs := []models.HealthMetric{
		{
			Name:           "delivery_rate",
			Unit:           "%",
			Description:    "Percentage of push attempts that succeeded",
			Threshold:      models.Threshold{Warning: 90, Critical: 80},
			HigherIsBetter: true,
		},
		{
			Name:        "error_rate",
			Unit:        "%",
			Description: "Percentage of push attempts that failed",
			Threshold:   models.Threshold{Warning: 10, Critical: 20},
		},
		{
			Name:        "pending_retries",
			Unit:        "count",
			Description: "Notifications waiting on a delivery retry",
			Threshold:   models.Threshold{Warning: 50, Critical: 100},
		},
		{
			Name:        "rate_limit_violations",
			Unit:        "count",
			Description: "Users currently on rate-limit cooldown",
			Threshold:   models.Threshold{Warning: 10, Critical: 25},
		},
		{
			Name:        "dedup_cache_size",
			Unit:        "count",
			Description: "Entries held by the deduplicator",
			Threshold:   models.Threshold{Warning: 10000, Critical: 50000},
		},
		{
			Name:        "pending_batches",
			Unit:        "count",
			Description: "Open batches awaiting flush",
			Threshold:   models.Threshold{Warning: 200, Critical: 500},
		},
		{
			Name:        "queue_depth",
			Unit:        "count",
			Description: "Events waiting on the pipeline queue",
			Threshold:   models.Threshold{Warning: 250, Critical: 450},
		},
		{
			Name:        "active_connections",
			Unit:        "count",
			Description: "Live websocket connections",
			Threshold:   models.Threshold{Warning: 1000, Critical: 2000},
		},
	}
	for i := range defs {
		d := defs[i]
		d.Status = models.StatusHealthy
		d.LastUpdated = m.now()
		m.metrics[d.Name] = &d
	}
}

// StartMonitoring begins periodic checks. Calling it again while running is
// a no-op, so no second timer can exist.
func (m *Monitor) StartMonitoring(interval time.Duration) {
	m.mu.Lock()
	if m.running {
		m.mu.Unlock()
		m.logger.Infof("health monitoring already running")
		return
	}
	m.running = true
	m.stop = make(chan struct{})
	stop := m.stop
	m.mu.Unlock()

	m.logger.Infof("health monitoring started (interval: %v)", interval)
	// Initial check before the first tick.
	m.Check()

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				m.Check()
			}
		}
	}()
}

// StopMonitoring halts periodic checks; idempotent.
func (m *Monitor) StopMonitoring() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.running {
		return
	}
	m.running = false
	close(m.stop)
	m.logger.Infof("health monitoring stopped")
}

// Running reports whether periodic checks are active.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Check samples every component and returns the resulting report. A failure
// while sampling degrades the report to critical with score 0 instead of
// taking the monitor down.
func (m *Monitor) Check() (report models.HealthReport) {
	defer func() {
		if r := recover(); r != nil {
			errText := fmt.Sprintf("health check failed: %v", r)
			m.logger.Errorf("%s", errText)
			m.raiseAlert("availability", models.SeverityCritical, "Health Check Failed", errText, nil)
			report = models.HealthReport{
				Overall:     models.OverallCritical,
				Score:       0,
				Alerts:      m.ActiveAlerts(),
				Error:       errText,
				LastChecked: m.now(),
			}
		}
	}()

	delivery := m.provider.DeliveryStats()
	dedup := m.provider.DedupStats()
	rate := m.provider.RateLimitStats()
	batches := m.provider.BatchStats()
	queueDepth := m.provider.QueueDepth()
	connections := m.conns.ConnectionCount()

	deliveryRate := 100.0
	errorRate := 0.0
	if delivery.TotalAttempts > 0 {
		deliveryRate = float64(delivery.SuccessfulDeliveries) / float64(delivery.TotalAttempts) * 100
		errorRate = float64(delivery.FailedDeliveries) / float64(delivery.TotalAttempts) * 100
	}

	m.mu.Lock()
	m.setMetric("delivery_rate", deliveryRate)
	m.setMetric("error_rate", errorRate)
	m.setMetric("pending_retries", float64(delivery.PendingRetries))
	m.setMetric("rate_limit_violations", float64(rate.UsersOnCooldown))
	m.setMetric("dedup_cache_size", float64(dedup.Entries))
	m.setMetric("pending_batches", float64(batches.PendingBatches))
	m.setMetric("queue_depth", float64(queueDepth))
	m.setMetric("active_connections", float64(connections))

	score := m.scoreLocked()
	overall := overallStatus(score)
	snapshot := m.metricsLocked()
	m.mu.Unlock()

	m.checkForAlerts(snapshot)

	report = models.HealthReport{
		Overall:         overall,
		Score:           score,
		Metrics:         snapshot,
		Alerts:          m.ActiveAlerts(),
		Recommendations: recommendations(snapshot),
		LastChecked:     m.now(),
	}
	m.logger.Debugf("health check complete: score %d/100 (%s)", score, overall)
	return report
}

// setMetric updates one metric and classifies it. Caller holds the mutex.
func (m *Monitor) setMetric(name string, value float64) {
	metric, ok := m.metrics[name]
	if !ok {
		return
	}
	metric.Value = value
	metric.LastUpdated = m.now()

	if metric.HigherIsBetter {
		switch {
		case value >= metric.Threshold.Warning:
			metric.Status = models.StatusHealthy
		case value >= metric.Threshold.Critical:
			metric.Status = models.StatusWarning
		default:
			metric.Status = models.StatusCritical
		}
	} else {
		switch {
		case value <= metric.Threshold.Warning:
			metric.Status = models.StatusHealthy
		case value <= metric.Threshold.Critical:
			metric.Status = models.StatusWarning
		default:
			metric.Status = models.StatusCritical
		}
	}
}

func (m *Monitor) scoreLocked() int {
	if len(m.metrics) == 0 {
		return 0
	}
	total := 0
	for _, metric := range m.metrics {
		switch metric.Status {
		case models.StatusHealthy:
			total += 100
		case models.StatusWarning:
			total += 60
		case models.StatusCritical:
			total += 20
		}
	}
	return total / len(m.metrics)
}

func (m *Monitor) metricsLocked() []models.HealthMetric {
	out := make([]models.HealthMetric, 0, len(m.metrics))
	for _, metric := range m.metrics {
		out = append(out, *metric)
	}
	return out
}

func overallStatus(score int) models.OverallStatus {
	switch {
	case score >= 80:
		return models.OverallHealthy
	case score >= 50:
		return models.OverallDegraded
	default:
		return models.OverallCritical
	}
}

func (m *Monitor) checkForAlerts(snapshot []models.HealthMetric) {
	for _, metric := range snapshot {
		switch metric.Status {
		case models.StatusCritical:
			m.raiseAlert("performance", models.SeverityCritical,
				fmt.Sprintf("Critical: %s", metric.Name),
				fmt.Sprintf("%s is critical: %g%s", metric.Description, metric.Value, metric.Unit),
				map[string]interface{}{"metric": metric.Name, "value": metric.Value, "threshold": metric.Threshold.Critical})
		case models.StatusWarning:
			m.raiseAlert("performance", models.SeverityMedium,
				fmt.Sprintf("Warning: %s", metric.Name),
				fmt.Sprintf("%s is degraded: %g%s", metric.Description, metric.Value, metric.Unit),
				map[string]interface{}{"metric": metric.Name, "value": metric.Value, "threshold": metric.Threshold.Warning})
		}
	}
}

// raiseAlert creates an alert unless an unresolved one with the same title
// exists, in which case only its timestamp is refreshed.
func (m *Monitor) raiseAlert(kind string, severity models.AlertSeverity, title, message string, context map[string]interface{}) {
	m.mu.Lock()
	for _, existing := range m.alerts {
		if existing.Title == title && !existing.Resolved {
			existing.CreatedAt = m.now()
			m.mu.Unlock()
			return
		}
	}

	alert := &models.SystemAlert{
		ID:        uuid.New().String(),
		Kind:      kind,
		Severity:  severity,
		Title:     title,
		Message:   message,
		Context:   context,
		CreatedAt: m.now(),
	}
	m.alerts[alert.ID] = alert
	sink := m.alertSink
	m.mu.Unlock()

	m.logger.Warnf("alert raised: %s - %s", title, message)
	if sink != nil && severity == models.SeverityCritical {
		sink(*alert)
	}
}

// ResolveAlert marks an alert resolved.
func (m *Monitor) ResolveAlert(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	alert, ok := m.alerts[id]
	if !ok {
		return fmt.Errorf("no alert found for id %s", id)
	}
	if !alert.Resolved {
		now := m.now()
		alert.Resolved = true
		alert.ResolvedAt = &now
	}
	return nil
}

// ActiveAlerts returns unresolved alerts.
func (m *Monitor) ActiveAlerts() []models.SystemAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.SystemAlert{}
	for _, alert := range m.alerts {
		if !alert.Resolved {
			out = append(out, *alert)
		}
	}
	return out
}

// AllAlerts returns every alert, resolved or not.
func (m *Monitor) AllAlerts() []models.SystemAlert {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SystemAlert, 0, len(m.alerts))
	for _, alert := range m.alerts {
		out = append(out, *alert)
	}
	return out
}

// ClearOldAlerts drops resolved alerts older than the given age and returns
// how many were removed.
func (m *Monitor) ClearOldAlerts(olderThan time.Duration) int {
	cutoff := m.now().Add(-olderThan)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, alert := range m.alerts {
		if alert.Resolved && alert.ResolvedAt != nil && alert.ResolvedAt.Before(cutoff) {
			delete(m.alerts, id)
			removed++
		}
	}
	return removed
}

// recommendations suggests operator follow-ups for critical metrics.
func recommendations(snapshot []models.HealthMetric) []string {
	var recs []string
	for _, metric := range snapshot {
		if metric.Status != models.StatusCritical {
			continue
		}
		switch metric.Name {
		case "delivery_rate":
			recs = append(recs, "Check live channel infrastructure and retry configuration")
		case "pending_retries":
			recs = append(recs, "Inspect the retry backlog; users may be offline en masse or pushes failing")
		case "rate_limit_violations":
			recs = append(recs, "Review rate limiting rules; many users are hitting the cap")
		case "queue_depth":
			recs = append(recs, "Pipeline queue is backing up; consider more workers")
		}
	}
	return recs
}

// SystemStats bundles the raw component counters for detailed reports.
type SystemStats struct {
	Delivery      engine.DeliveryStats  `json:"delivery"`
	Deduplication engine.DedupStats     `json:"deduplication"`
	RateLimit     engine.RateLimitStats `json:"rate_limit"`
	Batching      engine.BatchStats     `json:"batching"`
	QueueDepth    int                   `json:"queue_depth"`
	Connections   int                   `json:"connections"`
}

// ProcessInfo carries process metadata for diagnostics.
type ProcessInfo struct {
	UptimeSeconds  float64 `json:"uptime_seconds"`
	Goroutines     int     `json:"goroutines"`
	HeapAllocBytes uint64  `json:"heap_alloc_bytes"`
	SysBytes       uint64  `json:"sys_bytes"`
	GoVersion      string  `json:"go_version"`
	Platform       string  `json:"platform"`
	Arch           string  `json:"arch"`
}

// DetailedReport is the health report extended with raw component stats and
// process metadata. Both the JSON path and the flat text exporter render it.
type DetailedReport struct {
	models.HealthReport
	SystemStats SystemStats `json:"system_stats"`
	Performance ProcessInfo `json:"performance"`
}

// Detailed runs a check and attaches component and process statistics.
func (m *Monitor) Detailed() DetailedReport {
	report := m.Check()
	return DetailedReport{
		HealthReport: report,
		SystemStats: SystemStats{
			Delivery:      m.provider.DeliveryStats(),
			Deduplication: m.provider.DedupStats(),
			RateLimit:     m.provider.RateLimitStats(),
			Batching:      m.provider.BatchStats(),
			QueueDepth:    m.provider.QueueDepth(),
			Connections:   m.conns.ConnectionCount(),
		},
		Performance: m.processInfo(),
	}
}

func (m *Monitor) processInfo() ProcessInfo {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return ProcessInfo{
		UptimeSeconds:  m.now().Sub(m.startedAt).Seconds(),
		Goroutines:     runtime.NumGoroutine(),
		HeapAllocBytes: mem.HeapAlloc,
		SysBytes:       mem.Sys,
		GoVersion:      runtime.Version(),
		Platform:       runtime.GOOS,
		Arch:           runtime.GOARCH,
	}
}
