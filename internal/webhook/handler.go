package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"

	"github.com/dockhand-io/dockhand/internal/core"
	"github.com/dockhand-io/dockhand/internal/events"
	"github.com/dockhand-io/dockhand/internal/logging"
	"github.com/dockhand-io/dockhand/internal/metrics"
)

// Registry is the slice of the registry the handler needs.
type Registry interface {
	GitRepoByURL(ctx context.Context, url, branch string) (core.GitRepo, error)
	RecordGitActivity(ctx context.Context, id, commit string) error
}

// Bus publishes accepted deliveries.
type Bus interface {
	Emit(ctx context.Context, e events.Event)
}

// Handler verifies inbound push deliveries and emits webhook_received for
// the ones that should deploy.
type Handler struct {
	registry Registry
	bus      Bus
	log      *logging.Logger
}

func New(registry Registry, bus Bus, log *logging.Logger) *Handler {
	return &Handler{registry: registry, bus: bus, log: log}
}

// Result is the delivery outcome reported back to the git host.
type Result struct {
	Status string `json:"status"` // accepted or ignored
	Reason string `json:"reason,omitempty"`
	RepoID string `json:"repo_id,omitempty"`
	Commit string `json:"commit,omitempty"`
}

func ignored(reason string) Result {
	return Result{Status: "ignored", Reason: reason}
}

// HandleGitHub processes a GitHub push. The signature is the
// X-Hub-Signature-256 header, checked over the raw body.
func (h *Handler) HandleGitHub(ctx context.Context, body []byte, signature string) (Result, error) {
	res, err := h.handleGitHub(ctx, body, signature)
	observeDelivery("github", res, err)
	return res, err
}

func (h *Handler) handleGitHub(ctx context.Context, body []byte, signature string) (Result, error) {
	push, err := parseGitHub(body)
	if err != nil {
		return Result{}, err
	}
	if push.RepoURL == "" || push.Branch == "" {
		return ignored("missing repository or branch"), nil
	}
	repo, err := h.registry.GitRepoByURL(ctx, push.RepoURL, push.Branch)
	if core.IsNotFound(err) && push.SSHURL != "" {
		repo, err = h.registry.GitRepoByURL(ctx, push.SSHURL, push.Branch)
	}
	if core.IsNotFound(err) {
		return ignored("repository not registered"), nil
	}
	if err != nil {
		return Result{}, err
	}
	if !repo.Enabled {
		return ignored("repository disabled"), nil
	}
	if !verifySignature(body, signature, repo.WebhookSecret) {
		return Result{}, core.Errorf(core.KindSignatureMismatch, "github signature mismatch for %s", repo.ID)
	}
	return h.trigger(ctx, repo, push.Commit)
}

// HandleGitLab processes a GitLab push. The token is the X-Gitlab-Token
// header, compared against the repo's webhook secret.
func (h *Handler) HandleGitLab(ctx context.Context, body []byte, token string) (Result, error) {
	res, err := h.handleGitLab(ctx, body, token)
	observeDelivery("gitlab", res, err)
	return res, err
}

func (h *Handler) handleGitLab(ctx context.Context, body []byte, token string) (Result, error) {
	push, err := parseGitLab(body)
	if err != nil {
		return Result{}, err
	}
	if push.RepoURL == "" || push.Branch == "" {
		return ignored("missing repository or branch"), nil
	}
	repo, err := h.registry.GitRepoByURL(ctx, push.RepoURL, push.Branch)
	if core.IsNotFound(err) {
		return ignored("repository not registered"), nil
	}
	if err != nil {
		return Result{}, err
	}
	if !repo.Enabled {
		return ignored("repository disabled"), nil
	}
	if !verifyToken(token, repo.WebhookSecret) {
		return Result{}, core.Errorf(core.KindSignatureMismatch, "gitlab token mismatch for %s", repo.ID)
	}
	return h.trigger(ctx, repo, push.Commit)
}

// HandleGitea processes a Gitea push. Deliveries are unauthenticated;
// registration of the (url, branch) pair is the gate.
func (h *Handler) HandleGitea(ctx context.Context, body []byte) (Result, error) {
	res, err := h.handleGitea(ctx, body)
	observeDelivery("gitea", res, err)
	return res, err
}

func (h *Handler) handleGitea(ctx context.Context, body []byte) (Result, error) {
	push, err := parseGitea(body)
	if err != nil {
		return Result{}, err
	}
	if push.RepoURL == "" || push.Branch == "" {
		return ignored("missing repository or branch"), nil
	}
	repo, err := h.registry.GitRepoByURL(ctx, push.RepoURL, push.Branch)
	if core.IsNotFound(err) {
		return ignored("repository not registered"), nil
	}
	if err != nil {
		return Result{}, err
	}
	if !repo.Enabled {
		return ignored("repository disabled"), nil
	}
	return h.trigger(ctx, repo, push.Commit)
}

// trigger records the commit and emits the deploy trigger. A delivery for
// the commit already deployed is ignored without side effects.
func (h *Handler) trigger(ctx context.Context, repo core.GitRepo, commit string) (Result, error) {
	if repo.LastCommit == commit {
		return ignored("commit already deployed"), nil
	}
	if err := h.registry.RecordGitActivity(ctx, repo.ID, commit); err != nil {
		return Result{}, err
	}
	h.log.Info("webhook accepted", "repo", repo.URL, "branch", repo.Branch, "commit", core.ShortID(commit))
	h.bus.Emit(ctx, events.Event{Name: events.WebhookReceived, Fields: map[string]any{
		"repo_id": repo.ID,
		"commit":  commit,
	}})
	return Result{Status: "accepted", RepoID: repo.ID, Commit: commit}, nil
}

// verifySignature checks a sha256=<hex> HMAC over the raw delivery body.
// Repos without a secret accept unsigned deliveries; repos with one reject
// anything unsigned or mismatched.
func verifySignature(body []byte, signature, secret string) bool {
	if secret == "" {
		return true
	}
	if signature == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	expected := "sha256=" + hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func verifyToken(token, secret string) bool {
	if secret == "" {
		return true
	}
	return hmac.Equal([]byte(token), []byte(secret))
}

func observeDelivery(provider string, res Result, err error) {
	result := res.Status
	if err != nil {
		result = "rejected"
	}
	metrics.WebhooksReceived.WithLabelValues(provider, result).Inc()
}
