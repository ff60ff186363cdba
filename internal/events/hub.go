package events

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// DefaultQueueSize bounds each subscriber's pending events.
const DefaultQueueSize = 64

// ErrHubClosed is returned when subscribing to a closed hub.
var ErrHubClosed = errors.New("event hub closed")

// Publisher is the publishing side of the hub.
type Publisher interface {
	Publish(conversationID int64, ev Event)
}

// Hub fans events out to every subscriber of a conversation. Delivery is
// at-most-once: a subscriber whose queue is full misses the event.
type Hub struct {
	mu        sync.RWMutex
	subs      map[int64]map[string]*Subscription
	queueSize int
	closed    bool
}

// Subscription receives events for one conversation until closed.
type Subscription struct {
	ID             string
	ConversationID int64

	events chan Event
	hub    *Hub
	once   sync.Once
}

// NewHub creates an open hub. A non-positive queueSize uses DefaultQueueSize.
func NewHub(queueSize int) *Hub {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Hub{
		subs:      make(map[int64]map[string]*Subscription),
		queueSize: queueSize,
	}
}

// Subscribe registers a new subscriber for conversationID.
func (h *Hub) Subscribe(conversationID int64) (*Subscription, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return nil, ErrHubClosed
	}

	sub := &Subscription{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		events:         make(chan Event, h.queueSize),
		hub:            h,
	}
	if _, ok := h.subs[conversationID]; !ok {
		h.subs[conversationID] = make(map[string]*Subscription)
	}
	h.subs[conversationID][sub.ID] = sub

	slog.Debug("Event subscriber registered", "conversation_id", conversationID, "subscriber_id", sub.ID)
	return sub, nil
}

// Events returns the receive channel. It is closed when the subscription or hub closes.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close unregisters the subscription. It is idempotent.
func (s *Subscription) Close() {
	s.hub.unsubscribe(s)
}

func (h *Hub) unsubscribe(sub *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if conv, ok := h.subs[sub.ConversationID]; ok {
		if current, exists := conv[sub.ID]; exists && current == sub {
			delete(conv, sub.ID)
			if len(conv) == 0 {
				delete(h.subs, sub.ConversationID)
			}
		}
	}
	sub.once.Do(func() { close(sub.events) })
}

// Publish delivers ev to every current subscriber of conversationID without blocking.
func (h *Hub) Publish(conversationID int64, ev Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if h.closed {
		return
	}
	for _, sub := range h.subs[conversationID] {
		select {
		case sub.events <- ev:
		default:
			slog.Warn("Dropping event for slow subscriber",
				"conversation_id", conversationID,
				"subscriber_id", sub.ID,
				"event", ev.Name)
		}
	}
}

// Subscribers returns the number of live subscribers for conversationID.
func (h *Hub) Subscribers(conversationID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[conversationID])
}

// Close ends every subscription and rejects new ones. It is idempotent.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for id, conv := range h.subs {
		for _, sub := range conv {
			sub.once.Do(func() { close(sub.events) })
		}
		delete(h.subs, id)
	}
	slog.Info("Event hub closed")
}
