package engine

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"notification-engine/internal/logging"
	"notification-engine/internal/metrics"
	"notification-engine/internal/models"
)

// Store is the persisted-notification collaborator the delivery manager
// depends on. db.DB implements it.
type Store interface {
	Save(ctx context.Context, n models.Notification) error
	MarkDelivered(ctx context.Context, id string) error
}

// Pusher is the live channel: Send fans a message out to every active
// connection of a user and reports whether anything received it. ws.Hub
// implements it.
type Pusher interface {
	Send(userID string, messageType string, payload interface{}) bool
}

// DeliveryStats is what the health monitor samples from the DeliveryManager.
type DeliveryStats struct {
	TotalAttempts        int `json:"total_attempts"`
	SuccessfulDeliveries int `json:"successful_deliveries"`
	FailedDeliveries     int `json:"failed_deliveries"`
	PendingRetries       int `json:"pending_retries"`
	ExpiredNotifications int `json:"expired_notifications"`
}

// DeliveryManager persists finished notifications and pushes them over the
// live channel with bounded retry. Push is a best-effort accelerator: after
// the attempt budget is spent the record stays persisted and unread, so the
// user still sees it on their next list query.
type DeliveryManager struct {
	store  Store
	pusher Pusher
	logger *logging.Logger

	maxAttempts int
	delays      []time.Duration
	retention   time.Duration
	sched       Scheduler
	now         func() time.Time

	mu       sync.Mutex
	attempts map[string][]models.DeliveryAttempt // notification id -> ordered attempts
	pending  map[string]CancelFunc               // notification id -> retry cancel

	total   int
	success int
	failed  int
	expired int
}

// DeliveryOption customises a DeliveryManager.
type DeliveryOption func(*DeliveryManager)

// WithDeliveryScheduler overrides the retry scheduler, for tests.
func WithDeliveryScheduler(s Scheduler) DeliveryOption {
	return func(m *DeliveryManager) {
		if s != nil {
			m.sched = s
		}
	}
}

// WithDeliveryNow overrides the clock, for tests.
func WithDeliveryNow(now func() time.Time) DeliveryOption {
	return func(m *DeliveryManager) {
		if now != nil {
			m.now = now
		}
	}
}

// NewDeliveryManager builds a DeliveryManager retrying up to maxAttempts
// times with the given backoff ladder (the last delay repeats when the
// ladder is shorter than the attempt budget).
func NewDeliveryManager(store Store, pusher Pusher, logger *logging.Logger, maxAttempts int, delays []time.Duration, retention time.Duration, opts ...DeliveryOption) *DeliveryManager {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	if len(delays) == 0 {
		delays = []time.Duration{time.Second}
	}
	m := &DeliveryManager{
		store:       store,
		pusher:      pusher,
		logger:      logger,
		maxAttempts: maxAttempts,
		delays:      delays,
		retention:   retention,
		sched:       NewScheduler(),
		now:         time.Now,
		attempts:    make(map[string][]models.DeliveryAttempt),
		pending:     make(map[string]CancelFunc),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Deliver persists the notification, then attempts the live push. Persist
// failures are contained here: the fire-and-forget contract means the
// producer never sees them.
func (m *DeliveryManager) Deliver(ctx context.Context, n models.Notification) {
	if err := m.store.Save(ctx, n); err != nil {
		m.logger.Errorf("failed to persist notification %s for user %s: %v", n.ID, n.UserID, err)
		return
	}
	m.attemptPush(n, 1)
}

// attemptPush performs one push attempt and schedules the next one on
// failure. Retry backoff is a delayed re-invocation, never a blocking wait.
func (m *DeliveryManager) attemptPush(n models.Notification, attemptNo int) {
	now := m.now()
	delivered := m.pusher.Send(n.UserID, "notification", n)

	rec := models.DeliveryAttempt{
		ID:             uuid.New().String(),
		NotificationID: n.ID,
		AttemptNumber:  attemptNo,
		Channel:        "push",
		AttemptedAt:    now,
	}

	m.mu.Lock()
	m.total++
	delete(m.pending, n.ID)

	if delivered {
		rec.Status = models.AttemptSuccess
		m.success++
		m.attempts[n.ID] = append(m.attempts[n.ID], rec)
		m.mu.Unlock()

		metrics.NotificationsDelivered.Inc()
		if err := m.store.MarkDelivered(context.Background(), n.ID); err != nil {
			m.logger.Warnf("failed to stamp delivery of notification %s: %v", n.ID, err)
		}
		m.logger.Debugf("notification %s delivered to user %s on attempt %d", n.ID, n.UserID, attemptNo)
		return
	}

	rec.Status = models.AttemptFailed
	rec.Error = "no connection accepted the push"
	m.failed++
	metrics.DeliveryFailures.Inc()

	if attemptNo >= m.maxAttempts {
		m.expired++
		m.attempts[n.ID] = append(m.attempts[n.ID], rec)
		m.mu.Unlock()
		m.logger.Warnf("notification %s for user %s undelivered after %d attempts; left unread in store", n.ID, n.UserID, attemptNo)
		return
	}

	delay := m.delays[minInt(attemptNo-1, len(m.delays)-1)]
	next := now.Add(delay)
	rec.NextRetryAt = &next
	m.attempts[n.ID] = append(m.attempts[n.ID], rec)
	m.pending[n.ID] = m.sched.Schedule(delay, func() { m.attemptPush(n, attemptNo+1) })
	m.mu.Unlock()

	m.logger.Debugf("push of notification %s failed, retry %d/%d in %v", n.ID, attemptNo+1, m.maxAttempts, delay)
}

// Cancel aborts a pending retry, e.g. when the notification was read or
// archived before the attempt budget ran out.
func (m *DeliveryManager) Cancel(notificationID string) bool {
	m.mu.Lock()
	cancel, ok := m.pending[notificationID]
	if ok {
		delete(m.pending, notificationID)
	}
	m.mu.Unlock()

	if !ok {
		return false
	}
	return cancel()
}

// Attempts returns the ordered attempt history for one notification.
func (m *DeliveryManager) Attempts(notificationID string) []models.DeliveryAttempt {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.DeliveryAttempt(nil), m.attempts[notificationID]...)
}

// Stats returns cumulative delivery counters.
func (m *DeliveryManager) Stats() DeliveryStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return DeliveryStats{
		TotalAttempts:        m.total,
		SuccessfulDeliveries: m.success,
		FailedDeliveries:     m.failed,
		PendingRetries:       len(m.pending),
		ExpiredNotifications: m.expired,
	}
}

// CleanupOldAttempts discards attempt history older than the retention
// window. Histories with a retry still pending are kept.
func (m *DeliveryManager) CleanupOldAttempts() int {
	cutoff := m.now().Add(-m.retention)

	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for id, recs := range m.attempts {
		if _, retrying := m.pending[id]; retrying {
			continue
		}
		if len(recs) > 0 && recs[len(recs)-1].AttemptedAt.Before(cutoff) {
			delete(m.attempts, id)
			removed++
		}
	}
	return removed
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
