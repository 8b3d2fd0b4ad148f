package registry

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/vinayprograms/compliancekit/errors"
	"github.com/vinayprograms/compliancekit/logging"
	"github.com/vinayprograms/compliancekit/telemetry"
)

// EventType names a registry event.
type EventType string

const (
	EventAgentRegistered   EventType = "agent.registered"
	EventAgentUnregistered EventType = "agent.unregistered"
	EventStatusChanged     EventType = "agent.status_changed"
	EventHealthCheckFailed EventType = "agent.health_check_failed"
	EventMetricsRecorded   EventType = "agent.metrics_recorded"

	// EventAll subscribes to every event type.
	EventAll EventType = "*"
)

// Event is one registry occurrence. Events are delivered synchronously and
// not stored.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	AgentID   string                 `json:"agentId"`
	Payload   map[string]interface{} `json:"payload,omitempty"`
	Timestamp time.Time              `json:"timestamp"`

	// Processed is set once every handler has been called.
	Processed bool `json:"processed"`
}

// Handler receives events. A returned error or panic is logged and does not
// affect other handlers or the publisher.
type Handler func(Event) error

// ListenerID identifies a subscription for removal.
type ListenerID string

type listener struct {
	id      ListenerID
	handler Handler
}

// eventBus dispatches events to per-type subscribers.
type eventBus struct {
	mu        sync.RWMutex
	listeners map[EventType][]listener

	logger  *logging.Logger
	metrics *telemetry.Metrics
}

func newEventBus(logger *logging.Logger, metrics *telemetry.Metrics) *eventBus {
	return &eventBus{
		listeners: make(map[EventType][]listener),
		logger:    logger,
		metrics:   metrics,
	}
}

func (b *eventBus) add(t EventType, h Handler) ListenerID {
	id := ListenerID(uuid.NewString())
	b.mu.Lock()
	b.listeners[t] = append(b.listeners[t], listener{id: id, handler: h})
	b.mu.Unlock()
	return id
}

func (b *eventBus) remove(t EventType, id ListenerID) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	ls := b.listeners[t]
	for i, l := range ls {
		if l.id == id {
			b.listeners[t] = append(ls[:i:i], ls[i+1:]...)
			if len(b.listeners[t]) == 0 {
				delete(b.listeners, t)
			}
			return true
		}
	}
	return false
}

func (b *eventBus) count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, ls := range b.listeners {
		n += len(ls)
	}
	return n
}

func (b *eventBus) clear() {
	b.mu.Lock()
	b.listeners = make(map[EventType][]listener)
	b.mu.Unlock()
}

// emit calls the handlers for e.Type, then the EventAll handlers, in
// subscription order. It returns e with Processed set.
func (b *eventBus) emit(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}

	b.mu.RLock()
	targets := make([]listener, 0, len(b.listeners[e.Type])+len(b.listeners[EventAll]))
	targets = append(targets, b.listeners[e.Type]...)
	targets = append(targets, b.listeners[EventAll]...)
	b.mu.RUnlock()

	b.metrics.IncEvent(string(e.Type))
	for _, l := range targets {
		if err := b.deliver(l.handler, e); err != nil {
			b.logger.HandlerFailed(string(e.Type), err)
			b.metrics.IncHandlerFailure(string(e.Type))
		}
	}
	e.Processed = true
	return e
}

func (b *eventBus) deliver(h Handler, e Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
		}
	}()
	if err := h(e); err != nil {
		return fmt.Errorf("handler %s: %w", e.Type, err)
	}
	return nil
}
