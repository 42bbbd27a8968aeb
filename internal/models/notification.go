package models

import (
	"errors"
	"time"
)

var (
	ErrMissingUserID   = errors.New("event is missing user_id")
	ErrMissingType     = errors.New("event is missing type")
	ErrInvalidPriority = errors.New("event priority is invalid")
)

// Notification is the persisted record delivered to a user. It is created by
// a batch flush or directly on the immediate path, and remains the source of
// truth even when live push fails.
type Notification struct {
	ID          string                 `json:"id"`
	UserID      string                 `json:"user_id"`
	Type        string                 `json:"type"`
	Title       string                 `json:"title"`
	Message     string                 `json:"message"`
	Icon        string                 `json:"icon,omitempty"`
	Priority    Priority               `json:"priority"`
	EntityType  string                 `json:"entity_type,omitempty"`
	EntityID    string                 `json:"entity_id,omitempty"`
	EntityURL   string                 `json:"entity_url,omitempty"`
	Data        map[string]interface{} `json:"data,omitempty"`
	IsRead      bool                   `json:"is_read"`
	ReadAt      *time.Time             `json:"read_at,omitempty"`
	IsArchived  bool                   `json:"is_archived"`
	ArchivedAt  *time.Time             `json:"archived_at,omitempty"`
	DeliveredAt *time.Time             `json:"delivered_at,omitempty"`
	CreatedAt   time.Time              `json:"created_at"`
}

// AttemptStatus is the outcome of a single delivery attempt.
type AttemptStatus string

const (
	AttemptPending AttemptStatus = "pending"
	AttemptSuccess AttemptStatus = "success"
	AttemptFailed  AttemptStatus = "failed"
	AttemptExpired AttemptStatus = "expired"
)

// DeliveryAttempt records one try at pushing a persisted notification over
// the live channel. Attempts for one notification are ordered by
// AttemptNumber; once success or the attempt cap is reached no further
// attempts are scheduled.
type DeliveryAttempt struct {
	ID             string        `json:"id"`
	NotificationID string        `json:"notification_id"`
	AttemptNumber  int           `json:"attempt_number"`
	Channel        string        `json:"channel"`
	Status         AttemptStatus `json:"status"`
	Error          string        `json:"error,omitempty"`
	AttemptedAt    time.Time     `json:"attempted_at"`
	NextRetryAt    *time.Time    `json:"next_retry_at,omitempty"`
}

// ListFilter narrows a user's notification listing.
type ListFilter struct {
	UnreadOnly      bool
	IncludeArchived bool
	Limit           int
	Offset          int
}
