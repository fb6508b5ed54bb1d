// Package events provides the in-process publish/subscribe bus components
// use to signal each other without direct coupling.
package events

import (
	"context"
	"sync"

	"github.com/dockhand-io/dockhand/internal/logging"
)

// Event names emitted by the control plane.
const (
	WebhookReceived = "webhook_received"
	RoutesUpdated   = "routes_updated"
	DeployStarted   = "deploy_started"
	DeployCompleted = "deploy_completed"
	DeployFailed    = "deploy_failed"
	CertRenewed     = "cert_renewed"
	CertFailed      = "cert_failed"
)

// Event is a named notification with loosely typed payload fields.
type Event struct {
	Name   string
	Fields map[string]any
}

// String returns the field as a string, or "" when absent.
func (e Event) String(key string) string {
	s, _ := e.Fields[key].(string)
	return s
}

// Handler consumes one event. A returned error is logged by the bus and
// never reaches the emitter.
type Handler func(ctx context.Context, e Event) error

// Bus fans events out to subscribed handlers. Delivery is synchronous and
// in registration order per event name; there is no persistence and no
// cross-process delivery.
type Bus struct {
	log *logging.Logger

	mu       sync.RWMutex
	handlers map[string][]Handler
}

// NewBus creates an empty Bus.
func NewBus(log *logging.Logger) *Bus {
	return &Bus{
		log:      log,
		handlers: make(map[string][]Handler),
	}
}

// Subscribe registers a handler for an event name. Handlers cannot be
// removed; subscriptions live for the process lifetime.
func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

// Emit delivers the event to every handler registered for its name. A
// failing handler does not stop the remaining handlers.
func (b *Bus) Emit(ctx context.Context, e Event) {
	b.mu.RLock()
	handlers := b.handlers[e.Name]
	b.mu.RUnlock()

	for _, h := range handlers {
		if err := h(ctx, e); err != nil {
			b.log.Error("event handler failed", "event", e.Name, "error", err)
		}
	}
}
