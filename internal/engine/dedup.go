package engine

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	"notification-engine/internal/models"
)

// DedupRule controls suppression for one notification type. When PerActor is
// set, events from different actors are considered distinct within the
// window (replies from Alice and Bob both get through; a second reply from
// Alice does not).
type DedupRule struct {
	Window   time.Duration
	PerActor bool
}

// defaultRules mirrors the per-type windows the pipeline was tuned with.
func defaultRules() map[string]DedupRule {
	return map[string]DedupRule{
		models.TypeDiscussionLike:    {Window: 60 * time.Minute},
		models.TypeDiscussionReply:   {Window: 30 * time.Minute, PerActor: true},
		models.TypeDiscussionMention: {Window: 10 * time.Minute},
		models.TypeCommentLike:       {Window: 60 * time.Minute},
		models.TypeCommentReply:      {Window: 30 * time.Minute, PerActor: true},
		models.TypeChartLike:         {Window: 60 * time.Minute},
		models.TypeFollow:            {Window: 60 * time.Minute},
		models.TypeWelcome:           {Window: 24 * time.Hour},
		models.TypeSystemAnnounce:    {Window: 2 * time.Hour},
	}
}

// DedupStats is what the health monitor samples from the Deduplicator.
type DedupStats struct {
	Entries    int    `json:"entries"`
	Checks     uint64 `json:"checks"`
	Suppressed uint64 `json:"suppressed"`
}

// Deduplicator suppresses semantically identical events arriving within a
// per-type window. Entries expire passively and are swept periodically to
// bound memory.
type Deduplicator struct {
	mu            sync.Mutex
	seen          map[string]time.Time // fingerprint -> expiry
	rules         map[string]DedupRule
	defaultWindow time.Duration
	now           func() time.Time

	checks     uint64
	suppressed uint64
}

// DedupOption customises a Deduplicator.
type DedupOption func(*Deduplicator)

// WithDedupNow overrides the clock, for tests.
func WithDedupNow(now func() time.Time) DedupOption {
	return func(d *Deduplicator) {
		if now != nil {
			d.now = now
		}
	}
}

// WithDedupRule overrides or adds the rule for one notification type.
func WithDedupRule(typ string, rule DedupRule) DedupOption {
	return func(d *Deduplicator) {
		d.rules[typ] = rule
	}
}

// NewDeduplicator builds a Deduplicator using defaultWindow for types
// without a specific rule.
func NewDeduplicator(defaultWindow time.Duration, opts ...DedupOption) *Deduplicator {
	d := &Deduplicator{
		seen:          make(map[string]time.Time),
		rules:         defaultRules(),
		defaultWindow: defaultWindow,
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// ShouldSuppress reports whether the event is a duplicate of one already
// seen within the window. A suppressed event has no side effects and does
// not refresh the window; a surviving event records a fresh expiry.
func (d *Deduplicator) ShouldSuppress(e models.Event) bool {
	rule, ok := d.rules[e.Type]
	if !ok {
		rule = DedupRule{Window: d.defaultWindow, PerActor: true}
	}

	fp := fingerprint(e, rule.PerActor)
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()
	d.checks++

	if expiry, exists := d.seen[fp]; exists && now.Before(expiry) {
		d.suppressed++
		return true
	}
	d.seen[fp] = now.Add(rule.Window)
	return false
}

// Sweep drops expired entries and returns how many were removed.
func (d *Deduplicator) Sweep() int {
	now := d.now()

	d.mu.Lock()
	defer d.mu.Unlock()

	removed := 0
	for fp, expiry := range d.seen {
		if !now.Before(expiry) {
			delete(d.seen, fp)
			removed++
		}
	}
	return removed
}

// Stats returns current cache size and cumulative counters.
func (d *Deduplicator) Stats() DedupStats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DedupStats{
		Entries:    len(d.seen),
		Checks:     d.checks,
		Suppressed: d.suppressed,
	}
}

// fingerprint hashes the identity of an event. The actor is part of the
// identity only for per-actor rules, so "Alice liked" and "Bob liked" the
// same entity collapse for like-style types.
func fingerprint(e models.Event, perActor bool) string {
	actor := ""
	if perActor {
		actor = e.ActorID
	}
	sum := md5.Sum([]byte(fmt.Sprintf("%s|%s|%s|%s", e.UserID, e.Type, e.EntityID, actor)))
	return hex.EncodeToString(sum[:])
}
