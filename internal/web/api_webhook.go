package web

import (
	"net/http"

	"github.com/dockhand-io/dockhand/internal/metrics"
	"github.com/dockhand-io/dockhand/internal/webhook"
)

// Webhook endpoints are public: the git hosts calling them cannot carry an
// API token. Signature or token verification against the registered repo's
// secret is the only gate, and it runs over the raw body exactly as signed.

// apiWebhookGitHub ingests a GitHub push delivery.
func (s *Server) apiWebhookGitHub(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	res, err := s.deps.Webhooks.HandleGitHub(r.Context(), body, r.Header.Get("X-Hub-Signature-256"))
	s.writeWebhookResult(w, "github", res, err)
}

// apiWebhookGitLab ingests a GitLab push delivery.
func (s *Server) apiWebhookGitLab(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	res, err := s.deps.Webhooks.HandleGitLab(r.Context(), body, r.Header.Get("X-Gitlab-Token"))
	s.writeWebhookResult(w, "gitlab", res, err)
}

// apiWebhookGitea ingests a Gitea push delivery.
func (s *Server) apiWebhookGitea(w http.ResponseWriter, r *http.Request) {
	body, err := readBody(w, r)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	res, err := s.deps.Webhooks.HandleGitea(r.Context(), body)
	s.writeWebhookResult(w, "gitea", res, err)
}

func (s *Server) writeWebhookResult(w http.ResponseWriter, provider string, res webhook.Result, err error) {
	if err != nil {
		metrics.WebhooksReceived.WithLabelValues(provider, "rejected").Inc()
		s.writeDomainError(w, err)
		return
	}
	metrics.WebhooksReceived.WithLabelValues(provider, res.Status).Inc()
	writeJSON(w, http.StatusOK, res)
}
