// Package sse fans import progress out to server-sent-event subscribers.
package sse

import (
	"encoding/json"
	"log/slog"
	"sync"
)

const subscriberBuffer = 16

type Event struct {
	Type string // "progress", "completed", "failed"
	Data string // JSON
}

// Hub is an in-memory pub/sub keyed by topic.
type Hub struct {
	mu     sync.Mutex
	topics map[string]map[chan Event]struct{}
}

func New() *Hub {
	return &Hub{topics: make(map[string]map[chan Event]struct{})}
}

// CollectionTopic is the topic import events for a collection are published on.
func CollectionTopic(collectionID string) string {
	return "collection:" + collectionID
}

// Subscribe returns a channel of events on topic and a func that detaches and
// closes it.
func (h *Hub) Subscribe(topic string) (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)

	h.mu.Lock()
	if h.topics[topic] == nil {
		h.topics[topic] = make(map[chan Event]struct{})
	}
	h.topics[topic][ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.topics[topic], ch)
			if len(h.topics[topic]) == 0 {
				delete(h.topics, topic)
			}
			close(ch)
			h.mu.Unlock()
		})
	}
}

// Publish never blocks; a subscriber with a full buffer misses the event.
func (h *Hub) Publish(topic string, event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.topics[topic] {
		select {
		case ch <- event:
		default:
		}
	}
}

func (h *Hub) PublishJSON(topic, eventType string, v interface{}) {
	if h == nil {
		return
	}
	b, err := json.Marshal(v)
	if err != nil {
		slog.Error("sse marshal", "type", eventType, "error", err)
		return
	}
	h.Publish(topic, Event{Type: eventType, Data: string(b)})
}

func (h *Hub) Subscribers(topic string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.topics[topic])
}
