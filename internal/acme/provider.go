package acme

import (
	"context"

	"github.com/dockhand-io/dockhand/internal/logging"
)

// ChallengeStore persists pending HTTP-01 responses for the edge proxy.
type ChallengeStore interface {
	SetACMEChallenge(ctx context.Context, token, keyAuth string) error
	DeleteACMEChallenge(ctx context.Context, token string) error
}

// HTTP01Provider publishes challenges through the registry so the proxy can
// answer /.well-known/acme-challenge/{token}. Implements lego's
// challenge.Provider.
type HTTP01Provider struct {
	store ChallengeStore
	log   *logging.Logger
}

// NewHTTP01Provider creates an HTTP01Provider.
func NewHTTP01Provider(store ChallengeStore, log *logging.Logger) *HTTP01Provider {
	return &HTTP01Provider{store: store, log: log}
}

// Present stores the key authorization under the token. The provider
// interface carries no context, so the store call uses the background one.
func (p *HTTP01Provider) Present(domain, token, keyAuth string) error {
	p.log.Info("acme challenge presented", "domain", domain, "token", token)
	return p.store.SetACMEChallenge(context.Background(), token, keyAuth)
}

// CleanUp drops the challenge once the directory has validated it.
func (p *HTTP01Provider) CleanUp(domain, token, _ string) error {
	p.log.Info("acme challenge cleaned up", "domain", domain, "token", token)
	return p.store.DeleteACMEChallenge(context.Background(), token)
}
