package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestMetricsRegistered(t *testing.T) {
	// Vector metrics are not gathered until at least one label set exists.
	DeploysTotal.WithLabelValues("success")
	WebhooksReceived.WithLabelValues("github", "accepted")
	HealthProbes.WithLabelValues("healthy")

	mfs, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	expected := map[string]bool{
		"dockhand_deploys_total":           false,
		"dockhand_deploy_duration_seconds": false,
		"dockhand_routes_active":           false,
		"dockhand_certificates_expiring":   false,
		"dockhand_webhooks_received_total": false,
		"dockhand_health_probes_total":     false,
	}

	for _, mf := range mfs {
		if _, ok := expected[mf.GetName()]; ok {
			expected[mf.GetName()] = true
		}
	}

	for name, found := range expected {
		if !found {
			t.Errorf("metric %q not registered", name)
		}
	}
}

func TestCounterIncrements(t *testing.T) {
	DeploysTotal.WithLabelValues("success").Inc()
	DeploysTotal.WithLabelValues("failed").Inc()
	WebhooksReceived.WithLabelValues("gitlab", "ignored").Inc()
	HealthProbes.WithLabelValues("unhealthy").Inc()
	DeployDuration.Observe(1.5)
}

func TestGaugeSets(t *testing.T) {
	RoutesActive.Set(4)
	CertificatesExpiring.Set(1)
}
