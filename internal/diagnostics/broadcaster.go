// Package diagnostics implements the process-wide publish/subscribe stream
// of structured error events.
//
// The pipeline only guarantees publication: fan-out is non-blocking and a
// subscriber that cannot keep up loses events rather than stalling the
// publisher. Consumers include the logging subscriber wired by the server
// and any external listener such as an editor integration.
package diagnostics

import (
	"sync"
	"time"
)

// Severity classifies a diagnostic event.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Event is a structured error event published by the pipeline.
type Event struct {
	Time      time.Time
	Severity  Severity
	Source    string // subsystem or component id that raised the fault
	Message   string
	Error     string // underlying error text, empty when none
	RequestID string
}

// Broadcaster fans events out to any number of subscribers.
type Broadcaster struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	size int
}

// NewBroadcaster creates a broadcaster whose subscriber channels buffer up
// to size events before the subscriber starts losing them.
func NewBroadcaster(size int) *Broadcaster {
	if size <= 0 {
		size = 64
	}
	return &Broadcaster{
		subs: make(map[chan Event]struct{}),
		size: size,
	}
}

// Subscribe registers a new subscriber and returns its event channel.
func (b *Broadcaster) Subscribe() chan Event {
	ch := make(chan Event, b.size)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes and closes a subscriber channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	if _, ok := b.subs[ch]; ok {
		delete(b.subs, ch)
		close(ch)
	}
	b.mu.Unlock()
}

// Publish delivers the event to every subscriber that has buffer room.
func (b *Broadcaster) Publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- event:
		default:
			// Subscriber is behind. Drop rather than block the pipeline.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
