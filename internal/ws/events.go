package ws

import "time"

// EventType is the closed set of message types carried over the live
// channel. Dispatch is by exhaustive handler map so a typo'd type is a
// protocol error, never silently swallowed.
type EventType string

const (
	EventNotification     EventType = "notification"
	EventNotificationRead EventType = "notification_read"
	EventTypingStart      EventType = "typing_start"
	EventTypingStop       EventType = "typing_stop"
)

// Valid reports whether t names a known message type.
func (t EventType) Valid() bool {
	switch t {
	case EventNotification, EventNotificationRead, EventTypingStart, EventTypingStop:
		return true
	}
	return false
}

// Event is the wire envelope: a typed message with its payload.
type Event struct {
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// ReadReceipt is the payload of notification_read, used for cross-tab sync.
// Receipts are eventually consistent across a user's connections.
type ReadReceipt struct {
	NotificationID string `json:"notificationId"`
	UserID         string `json:"userId"`
}

// Typing is the payload of typing_start / typing_stop. It is an ephemeral
// presence signal: receivers schedule local removal a few seconds after
// typing_start unless a stop or a refreshed start arrives first.
type Typing struct {
	UserID       string `json:"userId"`
	Username     string `json:"username"`
	DiscussionID string `json:"discussionId"`
}
