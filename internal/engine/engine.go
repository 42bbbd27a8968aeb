package engine

import (
	"context"
	"sync"
	"time"

	"notification-engine/internal/config"
	"notification-engine/internal/logging"
	"notification-engine/internal/metrics"
	"notification-engine/internal/models"
)

// Engine is the pipeline front door. Submit is fire-and-forget: events land
// on a buffered queue drained by a worker pool, which runs each event
// through dedup, rate limiting, and either the batching or the immediate
// path. Producers never see pipeline failures.
type Engine struct {
	logger   *logging.Logger
	dedup    *Deduplicator
	limiter  *RateLimiter
	batcher  *Batcher
	delivery *DeliveryManager

	events chan models.Event
	ctx    context.Context
	cancel context.CancelFunc
	wg     *sync.WaitGroup

	workers     int
	workersDone sync.WaitGroup
}

// Option customises an Engine.
type Option func(*opts)

type opts struct {
	dedup    []DedupOption
	rate     []RateLimitOption
	batch    []BatcherOption
	delivery []DeliveryOption
}

// WithDedupOptions forwards options to the Deduplicator.
func WithDedupOptions(o ...DedupOption) Option {
	return func(e *opts) { e.dedup = append(e.dedup, o...) }
}

// WithRateOptions forwards options to the RateLimiter.
func WithRateOptions(o ...RateLimitOption) Option {
	return func(e *opts) { e.rate = append(e.rate, o...) }
}

// WithBatchOptions forwards options to the Batcher.
func WithBatchOptions(o ...BatcherOption) Option {
	return func(e *opts) { e.batch = append(e.batch, o...) }
}

// WithDeliveryOptions forwards options to the DeliveryManager.
func WithDeliveryOptions(o ...DeliveryOption) Option {
	return func(e *opts) { e.delivery = append(e.delivery, o...) }
}

// New constructs an Engine with owned sub-components wired together. Each
// caller gets fresh instances; nothing here is process-global.
func New(cfg config.Config, logger *logging.Logger, store Store, pusher Pusher, options ...Option) *Engine {
	var o opts
	for _, opt := range options {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		logger:  logger,
		events:  make(chan models.Event, cfg.Engine.QueueSize),
		ctx:     ctx,
		cancel:  cancel,
		workers: cfg.Engine.MaxWorkers,
	}

	e.dedup = NewDeduplicator(cfg.Engine.DedupWindow, o.dedup...)
	e.limiter = NewRateLimiter(cfg.Engine.RateLimitMax, cfg.Engine.RateLimitWindow, o.rate...)
	e.delivery = NewDeliveryManager(store, pusher, logger,
		cfg.Engine.MaxDeliveryAttempts, cfg.Engine.RetryDelays, cfg.Engine.AttemptRetention,
		o.delivery...)
	// Persistence is not tied to the pipeline context: batches flushed
	// during shutdown must still reach the store.
	e.batcher = NewBatcher(cfg.Engine.BatchDelay, cfg.Engine.MaxBatchSize,
		func(n models.Notification) { e.delivery.Deliver(context.Background(), n) },
		logger, o.batch...)

	return e
}

// Start launches the worker pool.
func (e *Engine) Start(wg *sync.WaitGroup) {
	e.wg = wg
	for i := 0; i < e.workers; i++ {
		e.wg.Add(1)
		e.workersDone.Add(1)
		go e.worker(i)
	}
}

// Submit enqueues an event for processing and returns immediately. A full
// queue drops the event with a log line rather than blocking the producer.
func (e *Engine) Submit(ev models.Event) {
	if ev.Priority == "" {
		ev.Priority = models.PriorityMedium
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now()
	}

	select {
	case e.events <- ev:
		metrics.EventsSubmitted.Inc()
	default:
		metrics.EventsDropped.Inc()
		e.logger.Errorf("event queue full, dropping %s event for user %s", ev.Type, ev.UserID)
	}
}

// Stop shuts the pipeline down. It waits for the workers to exit, processes
// whatever the queue still holds, and force-flushes every open batch, so no
// accepted event can open a batch after the final flush.
func (e *Engine) Stop() {
	e.cancel()
	e.workersDone.Wait()

	for {
		select {
		case ev := <-e.events:
			e.process(ev)
		default:
			e.batcher.FlushAll()
			return
		}
	}
}

// worker processes events until the context is cancelled.
func (e *Engine) worker(id int) {
	defer e.wg.Done()
	defer e.workersDone.Done()
	for {
		select {
		case <-e.ctx.Done():
			e.logger.Infof("pipeline worker %d stopped", id)
			return
		case ev := <-e.events:
			e.process(ev)
		}
	}
}

// process runs one event through the pipeline. Suppression and rate denial
// are deliberate no-ops, reflected only in counters.
func (e *Engine) process(ev models.Event) {
	if e.dedup.ShouldSuppress(ev) {
		metrics.EventsDeduplicated.Inc()
		e.logger.Debugf("suppressed duplicate %s event for user %s (entity %s)", ev.Type, ev.UserID, ev.EntityID)
		return
	}

	if !e.limiter.Allow(ev.UserID, ev.Type, ev.Priority) {
		metrics.EventsRateLimited.Inc()
		e.logger.Debugf("rate limited %s event for user %s", ev.Type, ev.UserID)
		return
	}

	if ev.Priority.Bypass() {
		// Same contract as batch flushes: events drained during shutdown
		// must still reach the store.
		e.delivery.Deliver(context.Background(), ImmediateNotification(ev))
		return
	}

	e.batcher.Enqueue(ev)
}

// QueueDepth reports how many events are waiting on the pipeline queue.
func (e *Engine) QueueDepth() int {
	return len(e.events)
}

// Component accessors for the health monitor, maintenance jobs, and the
// control API.

func (e *Engine) DedupStats() DedupStats { return e.dedup.Stats() }

func (e *Engine) RateLimitStats() RateLimitStats { return e.limiter.Stats() }

func (e *Engine) BatchStats() BatchStats { return e.batcher.Stats() }

func (e *Engine) DeliveryStats() DeliveryStats { return e.delivery.Stats() }

func (e *Engine) Deduplicator() *Deduplicator { return e.dedup }

func (e *Engine) RateLimiter() *RateLimiter { return e.limiter }

func (e *Engine) Batcher() *Batcher { return e.batcher }

func (e *Engine) DeliveryManager() *DeliveryManager { return e.delivery }
