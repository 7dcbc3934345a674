// Package notify fans rotation and lifecycle events out to live viewers.
// Delivery is best-effort and at-most-once per connected subscriber: there is
// no replay, and a subscriber that cannot keep up loses events rather than
// stalling the publisher. Callers needing current state must re-fetch through
// the read path; this channel is never a source of truth.
package notify

import (
	"sync"
	"time"

	id "github.com/musicamatics/queueskip/pkg/domain"
)

// EventKind enumerates the published event types.
type EventKind string

const (
	EventRotated     EventKind = "rotated"
	EventTransferred EventKind = "transferred"
	EventRedeemed    EventKind = "redeemed"
	EventExpired     EventKind = "expired"
)

// Event is one notification. NewCode is set for rotated events, NewPassID for
// transferred events.
type Event struct {
	Kind      EventKind `json:"kind"`
	PassID    string    `json:"passId"`
	NewCode   string    `json:"newCode,omitempty"`
	NewPassID string    `json:"newPassId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// PassTopic names the per-pass topic.
func PassTopic(passID id.PassID) string { return "pass-" + passID.String() }

// VenueTopic names the per-venue topic.
func VenueTopic(venueID id.VenueID) string { return "venue-" + venueID.String() }

const subscriberBuffer = 16

type subscriber struct {
	ch     chan Event
	topics map[string]struct{}
}

// Hub is the in-process fan-out. One hub per process; topics are created and
// destroyed implicitly by subscription.
type Hub struct {
	mu     sync.RWMutex
	topics map[string]map[*subscriber]struct{}
}

func NewHub() *Hub {
	return &Hub{topics: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers interest in one or more topics. The returned cancel
// func detaches the subscriber and closes the channel; it is safe to call
// more than once.
func (h *Hub) Subscribe(topics ...string) (<-chan Event, func()) {
	sub := &subscriber{
		ch:     make(chan Event, subscriberBuffer),
		topics: make(map[string]struct{}, len(topics)),
	}

	h.mu.Lock()
	for _, topic := range topics {
		if h.topics[topic] == nil {
			h.topics[topic] = make(map[*subscriber]struct{})
		}
		h.topics[topic][sub] = struct{}{}
		sub.topics[topic] = struct{}{}
	}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			for topic := range sub.topics {
				delete(h.topics[topic], sub)
				if len(h.topics[topic]) == 0 {
					delete(h.topics, topic)
				}
			}
			h.mu.Unlock()
			close(sub.ch)
		})
	}
	return sub.ch, cancel
}

// Publish delivers the event to every current subscriber of the topic.
// Non-blocking: a full subscriber buffer drops the event for that subscriber.
func (h *Hub) Publish(topic string, event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.topics[topic] {
		select {
		case sub.ch <- event:
		default:
		}
	}
}

// SubscriberCount reports current subscribers on a topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.topics[topic])
}
