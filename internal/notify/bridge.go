package notify

import (
	"context"

	"github.com/dockhand-io/dockhand/internal/clock"
	"github.com/dockhand-io/dockhand/internal/config"
	"github.com/dockhand-io/dockhand/internal/events"
)

// Bus is the subscription surface the bridge attaches to.
type Bus interface {
	Subscribe(name string, h events.Handler)
}

// FromConfig builds the notifier chain the environment enables. The log
// notifier is always present so every event leaves a record.
func FromConfig(cfg *config.Config, log Logger) *Multi {
	notifiers := []Notifier{NewLogNotifier(log)}
	if cfg.NotifyWebhookURL != "" {
		notifiers = append(notifiers, NewWebhook(cfg.NotifyWebhookURL, nil))
	}
	if cfg.NotifySlackWebhook != "" {
		notifiers = append(notifiers, NewSlack(cfg.NotifySlackWebhook))
	}
	if cfg.NotifyMQTTBroker != "" {
		notifiers = append(notifiers, NewMQTT(cfg.NotifyMQTTBroker, cfg.NotifyMQTTTopic))
	}
	return NewMulti(log, notifiers...)
}

// Subscribe attaches the chain to the deploy and certificate lifecycle
// events on the bus.
func Subscribe(bus Bus, m *Multi, clk clock.Clock) {
	forward := func(typ EventType) events.Handler {
		return func(ctx context.Context, e events.Event) error {
			m.Notify(ctx, Event{
				Type:      typ,
				App:       e.String("app_id"),
				Deploy:    e.String("deploy_id"),
				Domain:    e.String("domain"),
				Error:     e.String("error"),
				Timestamp: clk.Now().UTC(),
			})
			return nil
		}
	}
	bus.Subscribe(events.DeployStarted, forward(EventDeployStarted))
	bus.Subscribe(events.DeployCompleted, forward(EventDeploySucceeded))
	bus.Subscribe(events.DeployFailed, forward(EventDeployFailed))
	bus.Subscribe(events.CertRenewed, forward(EventCertRenewed))
	bus.Subscribe(events.CertFailed, forward(EventCertFailed))
}
