package events

import (
	"context"
	"log/slog"
	"sync"
)

// Bus fans events out to subscribers and appends them to the log.
// Delivery is non-blocking: a slow subscriber drops events rather than
// stalling the publisher.
type Bus struct {
	mu      sync.RWMutex
	byType  map[string][]chan Event
	allSubs []chan Event
	log     *EventLog
	logger  *slog.Logger
	closed  bool
}

// NewBus creates a bus. The EventLog is optional; pass nil to disable
// persistence.
func NewBus(log *EventLog, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		byType: make(map[string][]chan Event),
		log:    log,
		logger: logger.With("component", "events"),
	}
}

// Publish persists the event and delivers it to matching subscribers.
func (b *Bus) Publish(ctx context.Context, e Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	subs := make([]chan Event, 0, len(b.byType[e.EventType()])+len(b.allSubs))
	subs = append(subs, b.byType[e.EventType()]...)
	subs = append(subs, b.allSubs...)
	b.mu.RUnlock()

	if b.log != nil {
		if _, err := b.log.Append(e); err != nil {
			// Delivery matters more than the audit trail.
			b.logger.Error("persist event", "type", e.EventType(), "error", err)
		}
	}

	for _, ch := range subs {
		select {
		case ch <- e:
		default:
			b.logger.Warn("subscriber full, dropping event",
				"type", e.EventType(),
				"entity_id", e.EntityID())
		}
	}
	return nil
}

// Subscribe returns a channel receiving events of one type.
func (b *Bus) Subscribe(eventType string, buffer int) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, buffer)
	b.byType[eventType] = append(b.byType[eventType], ch)
	return ch
}

// SubscribeAll returns a channel receiving every published event.
func (b *Bus) SubscribeAll(buffer int) <-chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()

	ch := make(chan Event, buffer)
	b.allSubs = append(b.allSubs, ch)
	return ch
}

// Unsubscribe removes and closes a subscription channel.
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for eventType, subs := range b.byType {
		for i, sub := range subs {
			if sub == ch {
				b.byType[eventType] = append(subs[:i], subs[i+1:]...)
				close(sub)
				return
			}
		}
	}
	for i, sub := range b.allSubs {
		if sub == ch {
			b.allSubs = append(b.allSubs[:i], b.allSubs[i+1:]...)
			close(sub)
			return
		}
	}
}

// Close shuts the bus down and closes all subscriber channels.
func (b *Bus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true

	for _, subs := range b.byType {
		for _, ch := range subs {
			close(ch)
		}
	}
	b.byType = nil
	for _, ch := range b.allSubs {
		close(ch)
	}
	b.allSubs = nil
	return nil
}
