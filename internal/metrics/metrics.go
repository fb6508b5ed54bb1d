package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	DeploysTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dockhand_deploys_total",
		Help: "Total number of deployments by outcome.",
	}, []string{"status"})
	DeployDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "dockhand_deploy_duration_seconds",
		Help:    "Duration of deployment operations from build to cutover.",
		Buckets: prometheus.DefBuckets,
	})
	RoutesActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dockhand_routes_active",
		Help: "Number of enabled routes.",
	})
	CertificatesExpiring = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "dockhand_certificates_expiring",
		Help: "Number of certificates inside the renewal window.",
	})
	WebhooksReceived = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dockhand_webhooks_received_total",
		Help: "Total number of webhook deliveries by provider and outcome.",
	}, []string{"provider", "result"})
	HealthProbes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "dockhand_health_probes_total",
		Help: "Total number of upstream health probes by verdict.",
	}, []string{"result"})
)
