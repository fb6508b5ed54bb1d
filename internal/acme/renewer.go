package acme

import (
	"context"
	"fmt"
	"time"

	cron "github.com/robfig/cron/v3"

	"github.com/dockhand-io/dockhand/internal/clock"
	"github.com/dockhand-io/dockhand/internal/core"
	"github.com/dockhand-io/dockhand/internal/events"
	"github.com/dockhand-io/dockhand/internal/logging"
	"github.com/dockhand-io/dockhand/internal/metrics"
)

// Issuer obtains a certificate for a single domain. Implemented by *Client.
type Issuer interface {
	ObtainCertificate(ctx context.Context, domain string) (*core.Certificate, error)
}

// CertLister reads certificates approaching expiry.
type CertLister interface {
	ExpiringCertificates(ctx context.Context, before time.Time) ([]core.Certificate, error)
}

// Bus publishes renewal outcomes.
type Bus interface {
	Emit(ctx context.Context, e events.Event)
}

// Renewer re-obtains certificates that expire within the renewal window.
// Sweeps run on a cron schedule; a failed renewal is logged and retried on
// the next sweep.
type Renewer struct {
	issuer      Issuer
	registry    CertLister
	bus         Bus
	log         *logging.Logger
	clock       clock.Clock
	schedule    string
	renewalDays int
}

// NewRenewer creates a Renewer. schedule is a cron expression or descriptor
// such as "@hourly"; renewalDays is how far ahead of expiry a certificate
// becomes due.
func NewRenewer(issuer Issuer, reg CertLister, bus Bus, log *logging.Logger, clk clock.Clock, schedule string, renewalDays int) *Renewer {
	if renewalDays <= 0 {
		renewalDays = 30
	}
	return &Renewer{
		issuer:      issuer,
		registry:    reg,
		bus:         bus,
		log:         log,
		clock:       clk,
		schedule:    schedule,
		renewalDays: renewalDays,
	}
}

// Run sweeps at every schedule boundary until ctx is cancelled.
func (r *Renewer) Run(ctx context.Context) error {
	sched, err := cron.ParseStandard(r.schedule)
	if err != nil {
		return fmt.Errorf("parse renewal schedule %q: %w", r.schedule, err)
	}
	r.log.Info("certificate renewer started", "schedule", r.schedule, "window_days", r.renewalDays)

	for {
		next := sched.Next(r.clock.Now())
		select {
		case <-r.clock.After(next.Sub(r.clock.Now())):
			r.RenewExpiring(ctx)
		case <-ctx.Done():
			r.log.Info("certificate renewer stopped")
			return nil
		}
	}
}

// RenewExpiring re-obtains every auto-renew certificate that expires within
// the window. Returns the number renewed.
func (r *Renewer) RenewExpiring(ctx context.Context) int {
	cutoff := r.clock.Now().Add(time.Duration(r.renewalDays) * 24 * time.Hour)
	certs, err := r.registry.ExpiringCertificates(ctx, cutoff)
	if err != nil {
		r.log.Error("list expiring certificates failed", "error", err)
		return 0
	}
	metrics.CertificatesExpiring.Set(float64(len(certs)))

	renewed := 0
	for _, cert := range certs {
		if !cert.AutoRenew {
			continue
		}
		r.log.Info("renewing certificate", "domain", cert.Domain, "expires", cert.ExpiresAt)
		if _, err := r.issuer.ObtainCertificate(ctx, cert.Domain); err != nil {
			r.log.Error("certificate renewal failed", "domain", cert.Domain, "error", err)
			r.bus.Emit(ctx, events.Event{Name: events.CertFailed, Fields: map[string]any{
				"domain": cert.Domain,
				"error":  err.Error(),
			}})
			continue
		}
		renewed++
		r.bus.Emit(ctx, events.Event{Name: events.CertRenewed, Fields: map[string]any{
			"domain": cert.Domain,
		}})
	}
	if renewed > 0 {
		r.log.Info("renewal sweep complete", "renewed", renewed)
	}
	return renewed
}
