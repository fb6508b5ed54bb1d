// Package registry persists control-plane state. Entities live in the
// durable SQL store; routes, certificates and ACME challenges are
// additionally projected into a Redis hot cache for the data-plane proxy.
// Container and network observations are process-local mirrors of the
// Docker daemon and are never persisted.
package registry

import (
	"context"
	"sync"
	"time"

	"github.com/dockhand-io/dockhand/internal/clock"
	"github.com/dockhand-io/dockhand/internal/core"
	"github.com/dockhand-io/dockhand/internal/logging"
)

// Registry is the single entry point for state reads and writes. Writes to
// cached entities go durable-first; a cache failure after a durable success
// is logged and tolerated, the projection heals on the next read.
type Registry struct {
	store *Store
	cache *Cache
	log   *logging.Logger
	clock clock.Clock

	mu         sync.RWMutex
	networks   map[string]core.DockerNetwork
	containers map[string]core.DockerContainer
}

// New assembles a Registry over an opened store and cache.
func New(store *Store, cache *Cache, log *logging.Logger, clk clock.Clock) *Registry {
	return &Registry{
		store:      store,
		cache:      cache,
		log:        log,
		clock:      clk,
		networks:   make(map[string]core.DockerNetwork),
		containers: make(map[string]core.DockerContainer),
	}
}

// Close releases the store and cache connections.
func (r *Registry) Close() error {
	err := r.store.Close()
	if cerr := r.cache.Close(); err == nil {
		err = cerr
	}
	return err
}

func (r *Registry) stamp(created *time.Time, updated *time.Time) {
	now := r.clock.Now().UTC()
	if created.IsZero() {
		*created = now
	}
	if updated != nil {
		*updated = now
	}
}

// Projects

func (r *Registry) SetProject(ctx context.Context, p *core.Project) error {
	r.stamp(&p.CreatedAt, &p.UpdatedAt)
	return r.store.UpsertProject(ctx, *p)
}

func (r *Registry) GetProject(ctx context.Context, id string) (core.Project, error) {
	return r.store.GetProject(ctx, id)
}

func (r *Registry) ListProjects(ctx context.Context) ([]core.Project, error) {
	return r.store.ListProjects(ctx)
}

// DeleteProject removes the project and everything under it: applications,
// their deployment history and the project's secrets.
func (r *Registry) DeleteProject(ctx context.Context, id string) error {
	return r.store.DeleteProject(ctx, id)
}

// Applications

func (r *Registry) SetApplication(ctx context.Context, app *core.Application) error {
	app.Normalize()
	r.stamp(&app.CreatedAt, &app.UpdatedAt)
	return r.store.UpsertApplication(ctx, *app)
}

func (r *Registry) GetApplication(ctx context.Context, id string) (core.Application, error) {
	return r.store.GetApplication(ctx, id)
}

func (r *Registry) ListApplications(ctx context.Context) ([]core.Application, error) {
	return r.store.ListApplications(ctx)
}

func (r *Registry) ProjectApplications(ctx context.Context, projectID string) ([]core.Application, error) {
	return r.store.ProjectApplications(ctx, projectID)
}

// DeleteApplication removes the application and its deployment history.
func (r *Registry) DeleteApplication(ctx context.Context, id string) error {
	return r.store.DeleteApplication(ctx, id)
}

// Deployments

func (r *Registry) SetDeployment(ctx context.Context, d *core.Deployment) error {
	if d.StartedAt.IsZero() {
		d.StartedAt = r.clock.Now().UTC()
	}
	return r.store.UpsertDeployment(ctx, *d)
}

func (r *Registry) GetDeployment(ctx context.Context, id string) (core.Deployment, error) {
	return r.store.GetDeployment(ctx, id)
}

// AppDeployments returns the newest deployments of an application,
// descending by version. limit <= 0 means the default of 10.
func (r *Registry) AppDeployments(ctx context.Context, appID string, limit int) ([]core.Deployment, error) {
	return r.store.AppDeployments(ctx, appID, limit)
}

// NextDeploymentVersion allocates the next version number for an
// application from its durable history.
func (r *Registry) NextDeploymentVersion(ctx context.Context, appID string) (int, error) {
	return r.store.NextDeploymentVersion(ctx, appID)
}

// Routes

// SetRoute normalizes, persists and mirrors a route. The mirror pipeline
// bumps config:version exactly once per call.
func (r *Registry) SetRoute(ctx context.Context, rt *core.Route) error {
	rt.Normalize()
	if err := r.store.UpsertRoute(ctx, *rt); err != nil {
		return err
	}
	if err := r.cache.MirrorRoute(ctx, *rt); err != nil {
		r.log.Warn("route cache mirror failed", "route", rt.ID, "error", err)
	}
	return nil
}

func (r *Registry) GetRoute(ctx context.Context, id string) (core.Route, error) {
	rt, err := r.store.GetRoute(ctx, id)
	if err != nil {
		return core.Route{}, err
	}
	// Heal the projection if it was lost, e.g. after a cache restart.
	if ok, cerr := r.cache.HasRoute(ctx, id); cerr == nil && !ok {
		if merr := r.cache.MirrorRoute(ctx, rt); merr != nil {
			r.log.Warn("route cache heal failed", "route", id, "error", merr)
		}
	}
	return rt, nil
}

func (r *Registry) ListRoutes(ctx context.Context) ([]core.Route, error) {
	return r.store.ListRoutes(ctx)
}

func (r *Registry) RoutesByHost(ctx context.Context, host string) ([]core.Route, error) {
	return r.store.RoutesByHost(ctx, host)
}

// DeleteRoute loads the route before deleting so the host and enabled
// indexes can be cleaned alongside the projection.
func (r *Registry) DeleteRoute(ctx context.Context, id string) error {
	rt, err := r.store.GetRoute(ctx, id)
	if err != nil {
		return err
	}
	if err := r.store.DeleteRoute(ctx, id); err != nil {
		return err
	}
	if err := r.cache.PurgeRoute(ctx, rt); err != nil {
		r.log.Warn("route cache purge failed", "route", id, "error", err)
	}
	return nil
}

// UpdateUpstreamHealth records a health verdict for one upstream of a
// route. Cache-only: verdicts expire after 60 seconds.
func (r *Registry) UpdateUpstreamHealth(ctx context.Context, routeID, address string, port int, healthy bool) error {
	return r.cache.SetUpstreamHealth(ctx, routeID, address, port, healthy)
}

// ConfigVersion returns the routing-table version the proxy watches.
func (r *Registry) ConfigVersion(ctx context.Context) (int64, error) {
	return r.cache.ConfigVersion(ctx)
}

// Certificates

func (r *Registry) SetCertificate(ctx context.Context, cert *core.Certificate) error {
	if err := r.store.UpsertCertificate(ctx, *cert); err != nil {
		return err
	}
	if err := r.cache.MirrorCertificate(ctx, *cert); err != nil {
		r.log.Warn("certificate cache mirror failed", "domain", cert.Domain, "error", err)
	}
	return nil
}

func (r *Registry) GetCertificate(ctx context.Context, domain string) (core.Certificate, error) {
	return r.store.GetCertificate(ctx, domain)
}

func (r *Registry) ListCertificates(ctx context.Context) ([]core.Certificate, error) {
	return r.store.ListCertificates(ctx)
}

// ExpiringCertificates returns certificates expiring before the cutoff.
func (r *Registry) ExpiringCertificates(ctx context.Context, before time.Time) ([]core.Certificate, error) {
	return r.store.ExpiringCertificates(ctx, before)
}

func (r *Registry) DeleteCertificate(ctx context.Context, domain string) error {
	if err := r.store.DeleteCertificate(ctx, domain); err != nil {
		return err
	}
	if err := r.cache.PurgeCertificate(ctx, domain); err != nil {
		r.log.Warn("certificate cache purge failed", "domain", domain, "error", err)
	}
	return nil
}

// ACME challenges live only in the cache: a challenge is useless beyond its
// TTL and must be visible to every replica serving the well-known path.

func (r *Registry) SetACMEChallenge(ctx context.Context, token, keyAuth string) error {
	return r.cache.SetChallenge(ctx, token, keyAuth)
}

func (r *Registry) GetACMEChallenge(ctx context.Context, token string) (string, error) {
	return r.cache.GetChallenge(ctx, token)
}

func (r *Registry) DeleteACMEChallenge(ctx context.Context, token string) error {
	return r.cache.DeleteChallenge(ctx, token)
}

// Git repositories

func (r *Registry) SetGitRepo(ctx context.Context, repo *core.GitRepo) error {
	repo.Normalize()
	if repo.CreatedAt.IsZero() {
		repo.CreatedAt = r.clock.Now().UTC()
	}
	return r.store.UpsertGitRepo(ctx, *repo)
}

func (r *Registry) GetGitRepo(ctx context.Context, id string) (core.GitRepo, error) {
	return r.store.GetGitRepo(ctx, id)
}

func (r *Registry) ListGitRepos(ctx context.Context) ([]core.GitRepo, error) {
	return r.store.ListGitRepos(ctx)
}

// GitRepoByURL resolves a repository by its (url, branch) pair, the key
// webhook deliveries arrive with.
func (r *Registry) GitRepoByURL(ctx context.Context, url, branch string) (core.GitRepo, error) {
	return r.store.GitRepoByURL(ctx, url, branch)
}

// RecordGitActivity stores the last seen commit and deploy time of a
// repository after a webhook-triggered deploy.
func (r *Registry) RecordGitActivity(ctx context.Context, id, commit string) error {
	repo, err := r.store.GetGitRepo(ctx, id)
	if err != nil {
		return err
	}
	repo.LastCommit = commit
	repo.LastDeployAt = r.clock.Now().UTC()
	return r.store.UpsertGitRepo(ctx, repo)
}

func (r *Registry) DeleteGitRepo(ctx context.Context, id string) error {
	return r.store.DeleteGitRepo(ctx, id)
}

// Secrets

func (r *Registry) SetSecret(ctx context.Context, s *core.Secret) error {
	if s.ID == "" {
		s.ID = core.SecretID(s.ProjectID, s.Name)
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = r.clock.Now().UTC()
	}
	return r.store.UpsertSecret(ctx, *s)
}

func (r *Registry) GetSecret(ctx context.Context, projectID, name string) (core.Secret, error) {
	return r.store.GetSecret(ctx, projectID, name)
}

func (r *Registry) ProjectSecrets(ctx context.Context, projectID string) ([]core.Secret, error) {
	return r.store.ProjectSecrets(ctx, projectID)
}

func (r *Registry) DeleteSecret(ctx context.Context, projectID, name string) error {
	return r.store.DeleteSecret(ctx, projectID, name)
}

// Middlewares

func (r *Registry) SetMiddleware(ctx context.Context, m *core.Middleware) error {
	return r.store.UpsertMiddleware(ctx, *m)
}

func (r *Registry) GetMiddleware(ctx context.Context, name string) (core.Middleware, error) {
	return r.store.GetMiddleware(ctx, name)
}

func (r *Registry) ListMiddlewares(ctx context.Context) ([]core.Middleware, error) {
	return r.store.ListMiddlewares(ctx)
}

func (r *Registry) DeleteMiddleware(ctx context.Context, name string) error {
	return r.store.DeleteMiddleware(ctx, name)
}

// Docker mirrors, keyed by full engine id.

func (r *Registry) SetNetwork(n core.DockerNetwork) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.networks[n.ID] = n
}

func (r *Registry) GetNetwork(id string) (core.DockerNetwork, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n, ok := r.networks[id]
	return n, ok
}

func (r *Registry) ListNetworks() []core.DockerNetwork {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.DockerNetwork, 0, len(r.networks))
	for _, n := range r.networks {
		out = append(out, n)
	}
	return out
}

func (r *Registry) DeleteNetwork(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.networks, id)
}

func (r *Registry) SetContainer(c core.DockerContainer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.containers[c.ID] = c
}

func (r *Registry) GetContainer(id string) (core.DockerContainer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.containers[id]
	return c, ok
}

func (r *Registry) ListContainers() []core.DockerContainer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.DockerContainer, 0, len(r.containers))
	for _, c := range r.containers {
		out = append(out, c)
	}
	return out
}

func (r *Registry) DeleteContainer(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.containers, id)
}
