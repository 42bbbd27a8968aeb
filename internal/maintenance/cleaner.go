package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"notification-engine/internal/engine"
	"notification-engine/internal/health"
	"notification-engine/internal/logging"
)

const (
	defaultSweepSpec = "@hourly"
	defaultAlertSpec = "@daily"

	// Resolved alerts stay queryable for a day before the daily job drops them.
	alertRetention = 24 * time.Hour
)

// Cleaner runs periodic housekeeping: sweeping expired dedup fingerprints,
// dropping stale rate-limit windows and old delivery attempt logs, and
// pruning resolved alerts.
type Cleaner struct {
	engine  *engine.Engine
	monitor *health.Monitor
	logger  *logging.Logger
	cron    *cron.Cron

	sweepSchedule string
	alertSchedule string
}

// Option customises the Cleaner.
type Option func(*Cleaner)

// WithCron injects a preconfigured cron instance, primarily for testing.
func WithCron(c *cron.Cron) Option {
	return func(cleaner *Cleaner) {
		if c != nil {
			cleaner.cron = c
		}
	}
}

// WithSweepSchedule overrides the cron specification for component sweeps.
func WithSweepSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.sweepSchedule = spec
		}
	}
}

// WithAlertSchedule overrides the cron specification for alert pruning.
func WithAlertSchedule(spec string) Option {
	return func(cleaner *Cleaner) {
		if spec != "" {
			cleaner.alertSchedule = spec
		}
	}
}

func NewCleaner(eng *engine.Engine, monitor *health.Monitor, logger *logging.Logger, opts ...Option) *Cleaner {
	cleaner := &Cleaner{
		engine:        eng,
		monitor:       monitor,
		logger:        logger,
		sweepSchedule: defaultSweepSpec,
		alertSchedule: defaultAlertSpec,
	}
	for _, opt := range opts {
		opt(cleaner)
	}
	if cleaner.cron == nil {
		cleaner.cron = cron.New(cron.WithLogger(cron.DiscardLogger))
	}
	return cleaner
}

// Start registers the jobs and launches the scheduler.
func (c *Cleaner) Start() error {
	if _, err := c.cron.AddFunc(c.sweepSchedule, c.sweep); err != nil {
		return err
	}
	if c.monitor != nil {
		if _, err := c.cron.AddFunc(c.alertSchedule, c.pruneAlerts); err != nil {
			return err
		}
	}
	c.cron.Start()
	c.logger.Infof("maintenance scheduler started (sweep %s, alerts %s)", c.sweepSchedule, c.alertSchedule)
	return nil
}

// Stop halts the scheduler, waiting for any running job to finish.
func (c *Cleaner) Stop() context.Context {
	if c.cron == nil {
		return context.Background()
	}
	return c.cron.Stop()
}

// RunOnce executes every job sequentially. Used in tests and on shutdown.
func (c *Cleaner) RunOnce() {
	c.sweep()
	if c.monitor != nil {
		c.pruneAlerts()
	}
}

func (c *Cleaner) sweep() {
	dedup := c.engine.Deduplicator().Sweep()
	rate := c.engine.RateLimiter().Cleanup()
	attempts := c.engine.DeliveryManager().CleanupOldAttempts()
	if dedup+rate+attempts > 0 {
		c.logger.Infof("maintenance sweep: %d dedup entries, %d rate windows, %d attempt logs removed",
			dedup, rate, attempts)
	}
}

func (c *Cleaner) pruneAlerts() {
	if removed := c.monitor.ClearOldAlerts(alertRetention); removed > 0 {
		c.logger.Infof("maintenance: pruned %d resolved alerts", removed)
	}
}
