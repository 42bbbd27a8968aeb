package engine

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"notification-engine/internal/logging"
	"notification-engine/internal/models"
)

// batch is one in-progress aggregation. It is either open (accepting
// merges) or flushed (terminal); a flushed key may be reused by a fresh
// batch on the next event.
type batch struct {
	key          string
	userID       string
	typ          string
	entityType   string
	entityID     string
	contextTitle string
	actors       []string // distinct, insertion order
	count        int      // raw merged events, may exceed len(actors)
	firstEventAt time.Time
	lastEventAt  time.Time
	cancel       CancelFunc
}

// BatchStats is what the health monitor samples from the Batcher.
type BatchStats struct {
	PendingBatches            int      `json:"pending_batches"`
	TotalPendingNotifications int      `json:"total_pending_notifications"`
	ActiveBatchKeys           []string `json:"active_batch_keys"`
}

// Batcher groups related low-priority events under a batch key and flushes
// them into a single aggregated notification by size or time. All
// merge-or-create-then-maybe-flush transitions are serialized under one
// mutex so concurrent submissions for the same key cannot race a flush.
type Batcher struct {
	mu      sync.Mutex
	open    map[string]*batch
	delay   time.Duration
	maxSize int
	sched   Scheduler
	now     func() time.Time
	onFlush func(models.Notification)
	logger  *logging.Logger
}

// BatcherOption customises a Batcher.
type BatcherOption func(*Batcher)

// WithBatchScheduler overrides the flush-timer scheduler, for tests.
func WithBatchScheduler(s Scheduler) BatcherOption {
	return func(b *Batcher) {
		if s != nil {
			b.sched = s
		}
	}
}

// WithBatchNow overrides the clock, for tests.
func WithBatchNow(now func() time.Time) BatcherOption {
	return func(b *Batcher) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBatcher builds a Batcher. onFlush receives every finished notification,
// batched or immediate.
func NewBatcher(delay time.Duration, maxSize int, onFlush func(models.Notification), logger *logging.Logger, opts ...BatcherOption) *Batcher {
	b := &Batcher{
		open:    make(map[string]*batch),
		delay:   delay,
		maxSize: maxSize,
		sched:   NewScheduler(),
		now:     time.Now,
		onFlush: onFlush,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Enqueue merges an event into its batch, creating the batch and arming its
// flush timer on first sight. Non-batchable types are forwarded immediately
// as single-event notifications.
func (b *Batcher) Enqueue(e models.Event) {
	if !isBatchable(e.Type) {
		b.onFlush(ImmediateNotification(e))
		return
	}

	key := batchKey(e)
	occurred := e.OccurredAt
	if occurred.IsZero() {
		occurred = b.now()
	}

	b.mu.Lock()
	bat, ok := b.open[key]
	if !ok {
		bat = &batch{
			key:          key,
			userID:       e.UserID,
			typ:          e.Type,
			entityType:   e.EntityType,
			entityID:     e.EntityID,
			contextTitle: e.ContextTitle,
			firstEventAt: occurred,
		}
		b.open[key] = bat
		// The timer fires once per batch lifetime; an early size-triggered
		// flush cancels it to avoid a double flush.
		bat.cancel = b.sched.Schedule(b.delay, func() { b.flushKey(key) })
	}

	if e.ActorName != "" && !containsActor(bat.actors, e.ActorName) {
		bat.actors = append(bat.actors, e.ActorName)
	}
	bat.count++
	bat.lastEventAt = occurred

	if bat.count >= b.maxSize {
		bat.cancel()
		delete(b.open, key)
		n := b.finish(bat)
		b.mu.Unlock()
		b.logger.Debugf("batch %s flushed by size (%d events)", key, bat.count)
		b.onFlush(n)
		return
	}
	b.mu.Unlock()
}

// flushKey is the timer callback.
func (b *Batcher) flushKey(key string) {
	b.mu.Lock()
	bat, ok := b.open[key]
	if !ok {
		b.mu.Unlock()
		return
	}
	delete(b.open, key)
	n := b.finish(bat)
	b.mu.Unlock()

	b.logger.Debugf("batch %s flushed by timer (%d events)", key, bat.count)
	b.onFlush(n)
}

// FlushAll force-flushes every open batch without waiting for timers and
// returns the notifications it produced (already handed to onFlush).
func (b *Batcher) FlushAll() []models.Notification {
	b.mu.Lock()
	flushed := make([]models.Notification, 0, len(b.open))
	for key, bat := range b.open {
		bat.cancel()
		delete(b.open, key)
		flushed = append(flushed, b.finish(bat))
	}
	b.mu.Unlock()

	for _, n := range flushed {
		b.onFlush(n)
	}
	return flushed
}

// Stats reports open-batch counts for monitoring.
func (b *Batcher) Stats() BatchStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	total := 0
	keys := make([]string, 0, len(b.open))
	for key, bat := range b.open {
		total += bat.count
		keys = append(keys, key)
	}
	return BatchStats{
		PendingBatches:            len(b.open),
		TotalPendingNotifications: total,
		ActiveBatchKeys:           keys,
	}
}

// finish converts an open batch into its aggregated notification. Caller
// holds the mutex.
func (b *Batcher) finish(bat *batch) models.Notification {
	c := batchedContent(bat.typ, bat.actors, bat.count, bat.contextTitle)
	return models.Notification{
		ID:         uuid.New().String(),
		UserID:     bat.userID,
		Type:       bat.typ,
		Title:      c.title,
		Message:    c.message,
		Icon:       c.icon,
		Priority:   batchedPriority(bat.count),
		EntityType: bat.entityType,
		EntityID:   bat.entityID,
		EntityURL:  entityURL(bat.entityType, bat.entityID),
		Data: map[string]interface{}{
			"actors":       append([]string(nil), bat.actors...),
			"count":        bat.count,
			"contextTitle": bat.contextTitle,
			"firstEventAt": bat.firstEventAt,
			"lastEventAt":  bat.lastEventAt,
		},
		CreatedAt: b.now(),
	}
}

func batchKey(e models.Event) string {
	return e.UserID + "_" + e.Type + "_" + e.EntityType + "_" + e.EntityID
}

func containsActor(actors []string, name string) bool {
	for _, a := range actors {
		if a == name {
			return true
		}
	}
	return false
}
