package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"notification-engine/internal/config"
	"notification-engine/internal/models"
)

func testConfig() config.Config {
	var cfg config.Config
	cfg.Engine.QueueSize = 100
	cfg.Engine.MaxWorkers = 2
	cfg.Engine.DedupWindow = time.Hour
	cfg.Engine.RateLimitMax = 50
	cfg.Engine.RateLimitWindow = time.Hour
	cfg.Engine.BatchDelay = 5 * time.Minute
	cfg.Engine.MaxBatchSize = 10
	cfg.Engine.MaxDeliveryAttempts = 3
	cfg.Engine.RetryDelays = retryLadder
	cfg.Engine.AttemptRetention = 24 * time.Hour
	return cfg
}

func startEngine(t *testing.T, store *fakeStore, pusher *fakePusher, options ...Option) *Engine {
	t.Helper()
	e := New(testConfig(), testLogger(t), store, pusher, options...)
	var wg sync.WaitGroup
	e.Start(&wg)
	t.Cleanup(func() {
		e.Stop()
		wg.Wait()
	})
	return e
}

func TestEngineDeliversUrgentImmediately(t *testing.T) {
	store := &fakeStore{}
	pusher := &fakePusher{ok: true}
	e := startEngine(t, store, pusher)

	e.Submit(models.Event{
		UserID:       "u1",
		Type:         models.TypeSystemAnnounce,
		Priority:     models.PriorityUrgent,
		ContextTitle: "Maintenance window tonight",
	})

	require.Eventually(t, func() bool {
		return e.DeliveryStats().SuccessfulDeliveries == 1
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, 1, store.savedCount())
	assert.Equal(t, 0, e.BatchStats().PendingBatches)
}

func TestEngineBatchesLowPriorityLikes(t *testing.T) {
	store := &fakeStore{}
	pusher := &fakePusher{ok: true}
	e := startEngine(t, store, pusher)

	for _, actor := range []string{"Alice", "Bob", "Carol"} {
		e.Submit(models.Event{
			UserID:     "u1",
			Type:       models.TypeDiscussionLike,
			Priority:   models.PriorityLow,
			ActorID:    actor,
			ActorName:  actor,
			EntityType: models.EntityDiscussion,
			EntityID:   "d1",
		})
	}

	require.Eventually(t, func() bool {
		return e.BatchStats().PendingBatches == 1
	}, time.Second, 5*time.Millisecond)

	// Nothing delivered until the batch flushes.
	assert.Equal(t, 0, store.savedCount())

	e.Batcher().FlushAll()
	require.Eventually(t, func() bool {
		return store.savedCount() == 1
	}, time.Second, 5*time.Millisecond)

	stats := e.BatchStats()
	assert.Equal(t, 0, stats.PendingBatches)
}

func TestEngineSuppressesDuplicates(t *testing.T) {
	store := &fakeStore{}
	pusher := &fakePusher{ok: true}
	e := startEngine(t, store, pusher)

	ev := models.Event{
		UserID:     "u1",
		Type:       models.TypeFollow,
		Priority:   models.PriorityUrgent,
		ActorID:    "a1",
		ActorName:  "Alice",
		EntityType: models.EntityUser,
		EntityID:   "a1",
	}
	e.Submit(ev)
	e.Submit(ev)

	require.Eventually(t, func() bool {
		return e.DedupStats().Checks == 2
	}, time.Second, 5*time.Millisecond)

	assert.Equal(t, uint64(1), e.DedupStats().Suppressed)
	require.Eventually(t, func() bool {
		return store.savedCount() == 1
	}, time.Second, 5*time.Millisecond)
}

func TestEngineDefaultsPriorityAndTimestamp(t *testing.T) {
	store := &fakeStore{}
	pusher := &fakePusher{ok: true}
	e := startEngine(t, store, pusher)

	// Medium priority is neither bypass nor batchable for this type, so the
	// event flows through the immediate path.
	e.Submit(models.Event{UserID: "u1", Type: models.TypeDiscussionMention, ActorName: "Alice"})

	require.Eventually(t, func() bool {
		return store.savedCount() == 1
	}, time.Second, 5*time.Millisecond)

	store.mu.Lock()
	n := store.saved[0]
	store.mu.Unlock()
	assert.Equal(t, models.PriorityMedium, n.Priority)
}

func TestEngineStopProcessesQueuedEvents(t *testing.T) {
	store := &fakeStore{}
	pusher := &fakePusher{ok: true}
	e := New(testConfig(), testLogger(t), store, pusher)
	var wg sync.WaitGroup
	e.Start(&wg)

	for _, entity := range []string{"a1", "a2", "a3", "a4", "a5"} {
		e.Submit(models.Event{
			UserID:       "u1",
			Type:         models.TypeSystemAnnounce,
			Priority:     models.PriorityUrgent,
			EntityID:     entity,
			ContextTitle: "Maintenance window tonight",
		})
	}
	e.Stop()
	wg.Wait()

	// Stop returns only after everything accepted by Submit was processed,
	// whether a worker picked it up or the shutdown drain did.
	assert.Equal(t, 5, store.savedCount())
}

func TestEngineStopFlushesOpenBatches(t *testing.T) {
	store := &fakeStore{}
	pusher := &fakePusher{ok: true}
	e := New(testConfig(), testLogger(t), store, pusher)
	var wg sync.WaitGroup
	e.Start(&wg)

	e.Submit(models.Event{
		UserID:     "u1",
		Type:       models.TypeChartLike,
		Priority:   models.PriorityLow,
		ActorName:  "Alice",
		EntityType: models.EntityChart,
		EntityID:   "c1",
	})

	require.Eventually(t, func() bool {
		return e.BatchStats().PendingBatches == 1
	}, time.Second, 5*time.Millisecond)

	e.Stop()
	wg.Wait()

	assert.Equal(t, 1, store.savedCount())
}
