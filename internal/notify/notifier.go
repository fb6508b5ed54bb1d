// Package notify fans deploy and certificate lifecycle events out to
// external channels.
package notify

import (
	"context"
	"time"
)

// EventType identifies what happened during a deploy or renewal lifecycle.
type EventType string

const (
	EventDeployStarted   EventType = "deploy_started"
	EventDeploySucceeded EventType = "deploy_succeeded"
	EventDeployFailed    EventType = "deploy_failed"
	EventCertRenewed     EventType = "cert_renewed"
	EventCertFailed      EventType = "cert_failed"
)

// Event represents a notification event.
type Event struct {
	Type      EventType `json:"type"`
	App       string    `json:"app,omitempty"`
	Deploy    string    `json:"deploy,omitempty"`
	Domain    string    `json:"domain,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Notifier sends events to an external system.
type Notifier interface {
	Send(ctx context.Context, event Event) error
	Name() string
}

// Logger is a minimal logging interface to avoid importing the logging package.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Multi fans out events to multiple notifiers.
// It never returns errors: failures are logged but don't block deploys.
type Multi struct {
	notifiers []Notifier
	log       Logger
}

// NewMulti creates a dispatcher from the given notifiers.
func NewMulti(log Logger, notifiers ...Notifier) *Multi {
	return &Multi{notifiers: notifiers, log: log}
}

// Notify sends an event to all registered notifiers.
// Returns true if at least one notifier succeeded (or none are configured).
func (m *Multi) Notify(ctx context.Context, event Event) bool {
	if len(m.notifiers) == 0 {
		return true
	}

	anyOK := false
	for _, n := range m.notifiers {
		if err := n.Send(ctx, event); err != nil {
			m.log.Error("notification failed",
				"provider", n.Name(),
				"event", string(event.Type),
				"app", event.App,
				"error", err.Error(),
			)
		} else {
			anyOK = true
		}
	}
	return anyOK
}
