package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"notification-engine/internal/logging"
)

// maxConnsPerUser caps simultaneous sessions per user.
const maxConnsPerUser = 10

// writeWait bounds a single frame write so one stalled consumer cannot
// hold everyone else up.
const writeWait = 10 * time.Second

var ErrTooManyConnections = errors.New("too many connections for user")

// wire is the minimal write surface of a websocket connection. gorilla's
// *websocket.Conn satisfies it; tests use an in-memory fake.
type wire interface {
	WriteJSON(v interface{}) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Connection is one live session of a user. Writes are serialized under a
// per-connection mutex, so frame order matches call order and every caller
// learns whether its frame actually reached the wire.
type Connection struct {
	userID  string
	hub     *Hub
	w       wire
	writeMu sync.Mutex
	once    sync.Once
}

// UserID returns the owning user.
func (c *Connection) UserID() string { return c.userID }

func (c *Connection) close() {
	c.once.Do(func() { _ = c.w.Close() })
}

// write pushes one frame onto the wire and reports whether it landed. A
// failed or timed-out write drops the connection, which the caller must
// treat as non-delivery.
func (c *Connection) write(ev Event) bool {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.w.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.w.WriteJSON(ev); err != nil {
		c.hub.logger.Warnf("write to user %s connection failed, dropping: %v", c.userID, err)
		c.hub.Unregister(c)
		return false
	}
	return true
}

// Hub is the connection registry: a map from user id to that user's set of
// live connections. Register/unregister/send are safe to call concurrently;
// send snapshots the set before fanning out.
type Hub struct {
	mu     sync.Mutex
	conns  map[string]map[*Connection]bool
	logger *logging.Logger

	// onRead is invoked for inbound read receipts before they are
	// rebroadcast to the user's other connections.
	onRead func(notificationID, userID string)

	handlers map[EventType]func(*Connection, json.RawMessage)
}

// NewHub builds an empty registry.
func NewHub(logger *logging.Logger) *Hub {
	h := &Hub{
		conns:  make(map[string]map[*Connection]bool),
		logger: logger,
	}
	h.handlers = map[EventType]func(*Connection, json.RawMessage){
		EventNotification:     h.handleClientNotification,
		EventNotificationRead: h.handleRead,
		EventTypingStart:      h.handleTyping(EventTypingStart),
		EventTypingStop:       h.handleTyping(EventTypingStop),
	}
	return h
}

// SetOnRead installs the callback run when a client acknowledges a
// notification over the channel.
func (h *Hub) SetOnRead(fn func(notificationID, userID string)) {
	h.onRead = fn
}

// Register attaches a new connection for a user.
func (h *Hub) Register(userID string, w wire) (*Connection, error) {
	c := &Connection{
		userID: userID,
		hub:    h,
		w:      w,
	}

	h.mu.Lock()
	set, ok := h.conns[userID]
	if !ok {
		set = make(map[*Connection]bool)
		h.conns[userID] = set
	}
	if len(set) >= maxConnsPerUser {
		h.mu.Unlock()
		h.logger.Warnf("max connections reached for user %s", userID)
		return nil, ErrTooManyConnections
	}
	set[c] = true
	total := len(set)
	h.mu.Unlock()

	h.logger.Infof("registered connection for user %s (total: %d)", userID, total)
	return c, nil
}

// Unregister detaches a connection and closes its wire.
func (h *Hub) Unregister(c *Connection) {
	h.mu.Lock()
	if set, ok := h.conns[c.userID]; ok {
		delete(set, c)
		if len(set) == 0 {
			delete(h.conns, c.userID)
		}
	}
	h.mu.Unlock()

	c.close()
	h.logger.Infof("removed connection for user %s", c.userID)
}

// Send fans a message out to every live connection of a user. It reports
// false when no connection accepted the write, whether the user was absent
// or every write hit a broken transport; the delivery manager treats both
// as a retryable failure.
func (h *Hub) Send(userID string, messageType string, payload interface{}) bool {
	return h.fanOut(userID, nil, EventType(messageType), payload)
}

// fanOut writes to every connection of a user except the given one and
// reports whether any write succeeded.
func (h *Hub) fanOut(userID string, except *Connection, typ EventType, payload interface{}) bool {
	ev := Event{Type: typ, Data: payload, Timestamp: time.Now()}

	h.mu.Lock()
	targets := make([]*Connection, 0, len(h.conns[userID]))
	for c := range h.conns[userID] {
		if c != except {
			targets = append(targets, c)
		}
	}
	h.mu.Unlock()

	delivered := false
	for _, c := range targets {
		if c.write(ev) {
			delivered = true
		}
	}
	return delivered
}

// BroadcastExcept sends to every connection of every user except the given
// one; used to relay typing presence.
func (h *Hub) BroadcastExcept(sender *Connection, messageType EventType, payload interface{}) {
	ev := Event{Type: messageType, Data: payload, Timestamp: time.Now()}

	h.mu.Lock()
	var targets []*Connection
	for _, set := range h.conns {
		for c := range set {
			if c != sender {
				targets = append(targets, c)
			}
		}
	}
	h.mu.Unlock()

	for _, c := range targets {
		c.write(ev)
	}
}

// ConnectionCount returns the number of live connections across all users.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	total := 0
	for _, set := range h.conns {
		total += len(set)
	}
	return total
}

// UserCount returns the number of users with at least one connection.
func (h *Hub) UserCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// HandleMessage dispatches one inbound client frame through the handler
// map. Unknown types are protocol errors.
func (h *Hub) HandleMessage(c *Connection, raw []byte) {
	var frame struct {
		Type EventType       `json:"type"`
		Data json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(raw, &frame); err != nil {
		h.logger.Warnf("malformed frame from user %s: %v", c.userID, err)
		return
	}

	handler, ok := h.handlers[frame.Type]
	if !ok {
		h.logger.Warnf("unknown message type %q from user %s", frame.Type, c.userID)
		return
	}
	handler(c, frame.Data)
}

// handleClientNotification rejects client-originated notification frames;
// only the server may push them.
func (h *Hub) handleClientNotification(c *Connection, _ json.RawMessage) {
	h.logger.Warnf("client %s attempted to push a notification frame", c.userID)
}

// handleRead processes a read receipt: record it, then rebroadcast to the
// user's other tabs. The sender's identity wins over whatever user id the
// payload claims.
func (h *Hub) handleRead(c *Connection, data json.RawMessage) {
	var receipt ReadReceipt
	if err := json.Unmarshal(data, &receipt); err != nil {
		h.logger.Warnf("malformed read receipt from user %s: %v", c.userID, err)
		return
	}
	if receipt.NotificationID == "" {
		h.logger.Warnf("read receipt without notification id from user %s", c.userID)
		return
	}
	receipt.UserID = c.userID

	if h.onRead != nil {
		h.onRead(receipt.NotificationID, receipt.UserID)
	}
	h.fanOut(c.userID, c, EventNotificationRead, receipt)
}

// handleTyping relays a presence signal to everyone else; receivers expire
// it client-side.
func (h *Hub) handleTyping(typ EventType) func(*Connection, json.RawMessage) {
	return func(c *Connection, data json.RawMessage) {
		var t Typing
		if err := json.Unmarshal(data, &t); err != nil {
			h.logger.Warnf("malformed typing payload from user %s: %v", c.userID, err)
			return
		}
		t.UserID = c.userID
		h.BroadcastExcept(c, typ, t)
	}
}
