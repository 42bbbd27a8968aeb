package models

import "time"

// Priority controls batching and rate-limit behaviour of an event.
type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Bypass reports whether events of this priority skip batching and the
// rate-limit cap.
func (p Priority) Bypass() bool {
	return p == PriorityUrgent || p == PriorityHigh
}

// Valid reports whether p is one of the known priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Known notification event types produced by the content services.
const (
	TypeDiscussionReply   = "discussion_reply"
	TypeDiscussionLike    = "discussion_like"
	TypeDiscussionMention = "discussion_mention"
	TypeCommentLike       = "comment_like"
	TypeCommentReply      = "comment_reply"
	TypeChartLike         = "chart_like"
	TypeFollow            = "follow"
	TypeWelcome           = "welcome"
	TypeSystemAnnounce    = "system_announcement"
	TypeSystemHealth      = "system_health"
)

// Entity types a notification can point at.
const (
	EntityDiscussion = "discussion"
	EntityReply      = "reply"
	EntityChart      = "chart"
	EntityUser       = "user"
	EntitySystem     = "system"
)

// Event is the ephemeral input submitted by content services. It is consumed
// by the pipeline immediately and never persisted as-is.
type Event struct {
	UserID       string                 `json:"user_id"`
	Type         string                 `json:"type"`
	Priority     Priority               `json:"priority"`
	ActorID      string                 `json:"actor_id,omitempty"`
	ActorName    string                 `json:"actor_name,omitempty"`
	EntityType   string                 `json:"entity_type,omitempty"`
	EntityID     string                 `json:"entity_id,omitempty"`
	ContextTitle string                 `json:"context_title,omitempty"`
	Data         map[string]interface{} `json:"data,omitempty"`
	OccurredAt   time.Time              `json:"occurred_at,omitempty"`
}

// Validate checks the fields required from every producer.
func (e Event) Validate() error {
	if e.UserID == "" {
		return ErrMissingUserID
	}
	if e.Type == "" {
		return ErrMissingType
	}
	if e.Priority != "" && !e.Priority.Valid() {
		return ErrInvalidPriority
	}
	return nil
}
