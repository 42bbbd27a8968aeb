package engine

import (
	"strings"
	"sync"
	"time"

	"notification-engine/internal/models"
)

// keySep joins user id and type into one map key.
const keySep = "\x1f"

type rateWindow struct {
	count       int
	windowStart time.Time
	onCooldown  bool
}

// RateLimitStats is what the health monitor samples from the RateLimiter.
type RateLimitStats struct {
	TotalUsers      int    `json:"total_users"`
	UsersOnCooldown int    `json:"users_on_cooldown"`
	TotalTracked    int    `json:"total_notifications_tracked"`
	Bypassed        uint64 `json:"bypassed"`
	Denied          uint64 `json:"denied"`
}

// RateLimiter caps how many notifications of a given type a user may accrue
// per rolling window. Windows reset lazily on access; urgent and high
// priority events bypass the cap but are still counted.
type RateLimiter struct {
	mu      sync.Mutex
	windows map[string]*rateWindow
	max     int
	window  time.Duration
	now     func() time.Time

	bypassed uint64
	denied   uint64
}

// RateLimitOption customises a RateLimiter.
type RateLimitOption func(*RateLimiter)

// WithRateNow overrides the clock, for tests.
func WithRateNow(now func() time.Time) RateLimitOption {
	return func(r *RateLimiter) {
		if now != nil {
			r.now = now
		}
	}
}

// NewRateLimiter builds a RateLimiter allowing max events per (user, type)
// per window.
func NewRateLimiter(max int, window time.Duration, opts ...RateLimitOption) *RateLimiter {
	r := &RateLimiter{
		windows: make(map[string]*rateWindow),
		max:     max,
		window:  window,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Allow reports whether an event for (userID, typ) may proceed. The counter
// resets when the rolling window has elapsed; priority bypass events always
// proceed but are recorded for observability.
func (r *RateLimiter) Allow(userID, typ string, priority models.Priority) bool {
	now := r.now()
	key := userID + keySep + typ

	r.mu.Lock()
	defer r.mu.Unlock()

	w, ok := r.windows[key]
	if !ok {
		w = &rateWindow{windowStart: now}
		r.windows[key] = w
	}

	if now.Sub(w.windowStart) > r.window {
		w.count = 0
		w.windowStart = now
		w.onCooldown = false
	}

	if priority.Bypass() {
		w.count++
		r.bypassed++
		return true
	}

	if w.count >= r.max {
		w.onCooldown = true
		r.denied++
		return false
	}

	w.count++
	return true
}

// Reset clears all tracked windows for a user (admin hook).
func (r *RateLimiter) Reset(userID string) {
	prefix := userID + keySep

	r.mu.Lock()
	defer r.mu.Unlock()
	for key := range r.windows {
		if strings.HasPrefix(key, prefix) {
			delete(r.windows, key)
		}
	}
}

// Cleanup drops windows that have fully elapsed, bounding memory. Returns
// how many were removed.
func (r *RateLimiter) Cleanup() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, w := range r.windows {
		if now.Sub(w.windowStart) > r.window {
			delete(r.windows, key)
			removed++
		}
	}
	return removed
}

// Stats aggregates tracked users, cooldown users, and event totals.
func (r *RateLimiter) Stats() RateLimitStats {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	users := make(map[string]bool)
	cooldown := make(map[string]bool)
	tracked := 0
	for key, w := range r.windows {
		userID := key
		if i := strings.Index(key, keySep); i >= 0 {
			userID = key[:i]
		}
		users[userID] = true
		if w.onCooldown && now.Sub(w.windowStart) <= r.window {
			cooldown[userID] = true
		}
		tracked += w.count
	}

	return RateLimitStats{
		TotalUsers:      len(users),
		UsersOnCooldown: len(cooldown),
		TotalTracked:    tracked,
		Bypassed:        r.bypassed,
		Denied:          r.denied,
	}
}
