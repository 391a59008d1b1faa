package service

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Event types published by the annotation service.
const (
	EventAnnotationSaved   = "annotation_saved"
	EventAnnotationDeleted = "annotation_deleted"
	EventAnnotationsSynced = "annotations_synced"
	EventCommentAdded      = "comment_added"
	EventCommentUpdated    = "comment_updated"
	EventCommentDeleted    = "comment_deleted"
)

// Event is a notification about a state change, fanned out to subscribers.
type Event struct {
	Type    string `json:"type"`
	Payload any    `json:"payload,omitempty"`
}

// EventBus fans events out to subscribers. Publishing never blocks: a
// subscriber that cannot keep up has the event dropped on the floor.
type EventBus struct {
	mu          sync.RWMutex
	subscribers []chan Event
}

func NewEventBus() *EventBus {
	return &EventBus{}
}

// Subscribe returns a buffered channel receiving all future events.
func (b *EventBus) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, 16)
	b.subscribers = append(b.subscribers, ch)
	return ch
}

// Publish delivers the event to every subscriber without blocking.
func (b *EventBus) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, ch := range b.subscribers {
		select {
		case ch <- e:
		default:
			log.Warn().Str("type", e.Type).Msg("event dropped, subscriber full")
		}
	}
}
