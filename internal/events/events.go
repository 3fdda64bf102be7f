package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"
)

const (
	EventStatusChanged = "status_changed"
	EventCancelled     = "cancelled"
	EventRefunded      = "refunded"
	EventItemsChanged  = "items_changed"
)

// OrderEventPayload is the storefront lifecycle change carried by an event.
type OrderEventPayload struct {
	OrderID   int64  `json:"order_id"`
	OldStatus string `json:"old_status,omitempty"`
	NewStatus string `json:"new_status,omitempty"`
}

// KnownType reports whether t is one of the order lifecycle events.
func KnownType(t string) bool {
	switch t {
	case EventStatusChanged, EventCancelled, EventRefunded, EventItemsChanged:
		return true
	}
	return false
}

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// OrderPayload decodes the payload of an order event.
func (e *Event) OrderPayload() (OrderEventPayload, error) {
	var p OrderEventPayload
	if err := json.Unmarshal(e.Payload, &p); err != nil {
		return p, err
	}
	if p.OrderID <= 0 {
		return p, errors.New("event payload carries no order id")
	}
	return p, nil
}

// EventHandler reacts to an event.
type EventHandler func(ctx context.Context, event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish runs all subscribers of the event type in order and joins their errors.
func (b *EventBus) Publish(ctx context.Context, event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		if err := handler(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(ctx context.Context, eventType string, payload any) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return b.Publish(ctx, &Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
}
