package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"notification-engine/internal/models"
)

func TestRateLimiterCapsPerWindow(t *testing.T) {
	clock := newFakeClock()
	r := NewRateLimiter(5, time.Hour, WithRateNow(clock.Now))

	for i := 0; i < 5; i++ {
		assert.True(t, r.Allow("u1", models.TypeDiscussionLike, models.PriorityLow), "event %d should pass", i+1)
	}
	assert.False(t, r.Allow("u1", models.TypeDiscussionLike, models.PriorityLow))
}

func TestRateLimiterKeysAreUserAndType(t *testing.T) {
	clock := newFakeClock()
	r := NewRateLimiter(1, time.Hour, WithRateNow(clock.Now))

	assert.True(t, r.Allow("u1", models.TypeDiscussionLike, models.PriorityLow))
	assert.False(t, r.Allow("u1", models.TypeDiscussionLike, models.PriorityLow))

	// Other type and other user have their own windows.
	assert.True(t, r.Allow("u1", models.TypeFollow, models.PriorityLow))
	assert.True(t, r.Allow("u2", models.TypeDiscussionLike, models.PriorityLow))
}

func TestRateLimiterBypassForHighPriority(t *testing.T) {
	clock := newFakeClock()
	r := NewRateLimiter(1, time.Hour, WithRateNow(clock.Now))

	assert.True(t, r.Allow("u1", models.TypeSystemAnnounce, models.PriorityLow))
	assert.False(t, r.Allow("u1", models.TypeSystemAnnounce, models.PriorityLow))

	assert.True(t, r.Allow("u1", models.TypeSystemAnnounce, models.PriorityUrgent))
	assert.True(t, r.Allow("u1", models.TypeSystemAnnounce, models.PriorityHigh))

	stats := r.Stats()
	assert.Equal(t, uint64(2), stats.Bypassed)
}

func TestRateLimiterWindowResetsLazily(t *testing.T) {
	clock := newFakeClock()
	r := NewRateLimiter(2, time.Hour, WithRateNow(clock.Now))

	assert.True(t, r.Allow("u1", models.TypeFollow, models.PriorityLow))
	assert.True(t, r.Allow("u1", models.TypeFollow, models.PriorityLow))
	assert.False(t, r.Allow("u1", models.TypeFollow, models.PriorityLow))

	clock.Advance(61 * time.Minute)
	assert.True(t, r.Allow("u1", models.TypeFollow, models.PriorityLow))
}

func TestRateLimiterReset(t *testing.T) {
	clock := newFakeClock()
	r := NewRateLimiter(1, time.Hour, WithRateNow(clock.Now))

	assert.True(t, r.Allow("u1", models.TypeFollow, models.PriorityLow))
	assert.False(t, r.Allow("u1", models.TypeFollow, models.PriorityLow))

	r.Reset("u1")
	assert.True(t, r.Allow("u1", models.TypeFollow, models.PriorityLow))
}

func TestRateLimiterStats(t *testing.T) {
	clock := newFakeClock()
	r := NewRateLimiter(1, time.Hour, WithRateNow(clock.Now))

	r.Allow("u1", models.TypeFollow, models.PriorityLow)
	r.Allow("u1", models.TypeFollow, models.PriorityLow) // denied, u1 on cooldown
	r.Allow("u2", models.TypeFollow, models.PriorityLow)

	stats := r.Stats()
	assert.Equal(t, 2, stats.TotalUsers)
	assert.Equal(t, 1, stats.UsersOnCooldown)
	assert.Equal(t, 2, stats.TotalTracked)
	assert.Equal(t, uint64(1), stats.Denied)
}

func TestRateLimiterCleanup(t *testing.T) {
	clock := newFakeClock()
	r := NewRateLimiter(5, time.Hour, WithRateNow(clock.Now))

	r.Allow("u1", models.TypeFollow, models.PriorityLow)
	r.Allow("u2", models.TypeFollow, models.PriorityLow)

	clock.Advance(30 * time.Minute)
	r.Allow("u3", models.TypeFollow, models.PriorityLow)

	clock.Advance(45 * time.Minute)
	assert.Equal(t, 2, r.Cleanup())
	assert.Equal(t, 1, r.Stats().TotalUsers)
}
