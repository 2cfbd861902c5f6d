// Package event provides the in-process hub that relays domain events to real-time clients.
package event

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	// DefaultBufferSize is the default per-subscriber channel buffer.
	DefaultBufferSize = 64
)

// Type identifies the event category published on the hub.
type Type string

const (
	// TypeNewMessage is emitted when an inbound WhatsApp message arrives.
	TypeNewMessage Type = "new_message"
	// TypeMeetingConfirmed is emitted after a meeting request was handled.
	TypeMeetingConfirmed Type = "meeting_confirmed"
	// TypeAgentResponse is emitted after the agent finished one request.
	TypeAgentResponse Type = "agent_response"
	// TypeAgentHistoryCleared is emitted when the agent history is reset.
	TypeAgentHistoryCleared Type = "agent_history_cleared"
	// TypeMessageCreated is emitted after a message record is stored.
	TypeMessageCreated Type = "message_created"
)

// Event is the payload delivered to subscribers.
type Event struct {
	Type      Type            `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Publisher publishes events to subscribers.
type Publisher interface {
	Publish(event Event)
}

// Subscriber subscribes to hub events.
type Subscriber interface {
	Subscribe(buffer int) (string, <-chan Event, func())
}

// Hub is an in-process pub/sub dispatcher.
type Hub struct {
	mu      sync.RWMutex
	streams map[string]chan Event
}

// NewHub creates an empty event hub.
func NewHub() *Hub {
	return &Hub{
		streams: map[string]chan Event{},
	}
}

// New builds an event with data marshalled to JSON. Unmarshalable data is dropped.
func New(eventType Type, data any) Event {
	evt := Event{Type: eventType, Timestamp: time.Now().UTC()}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			evt.Data = raw
		}
	}
	return evt
}

// Publish broadcasts one event to all subscribers.
// Slow subscribers are skipped in a non-blocking way.
func (h *Hub) Publish(event Event) {
	if h == nil || event.Type == "" {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.streams {
		select {
		case ch <- event:
		default:
		}
	}
}

// Subscribe registers one subscriber.
// It returns a stream ID, read-only event channel, and a cancel function.
func (h *Hub) Subscribe(buffer int) (string, <-chan Event, func()) {
	if h == nil {
		ch := make(chan Event)
		close(ch)
		return "", ch, func() {}
	}
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}

	streamID := uuid.NewString()
	ch := make(chan Event, buffer)

	h.mu.Lock()
	h.streams[streamID] = ch
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			if current, ok := h.streams[streamID]; ok {
				delete(h.streams, streamID)
				close(current)
			}
			h.mu.Unlock()
		})
	}

	return streamID, ch, cancel
}

// Len reports the number of active subscribers.
func (h *Hub) Len() int {
	if h == nil {
		return 0
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.streams)
}
