// Package engine turns declared applications into running containers. It
// plans a project from its manifests, rolls new replica sets out next to the
// old ones behind a healthcheck gate, regenerates the app routes the proxy
// serves, and keeps the per-application deployment history.
package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"

	"github.com/dockhand-io/dockhand/internal/clock"
	"github.com/dockhand-io/dockhand/internal/config"
	"github.com/dockhand-io/dockhand/internal/core"
	"github.com/dockhand-io/dockhand/internal/deps"
	"github.com/dockhand-io/dockhand/internal/events"
	"github.com/dockhand-io/dockhand/internal/logging"
	"github.com/dockhand-io/dockhand/internal/manifest"
)

// Docker is the slice of the daemon facade the engine drives.
type Docker interface {
	InspectContainer(ctx context.Context, id string) (container.InspectResponse, error)
	CreateContainer(ctx context.Context, name string, cfg *container.Config, hostCfg *container.HostConfig, netCfg *network.NetworkingConfig) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, timeout int) error
	RemoveContainer(ctx context.Context, id string) error
	ContainerLogs(ctx context.Context, id string, tail int) (string, error)

	CreateExec(ctx context.Context, id string, cmd []string) (string, error)
	StartExec(ctx context.Context, execID string) error
	InspectExec(ctx context.Context, execID string) (running bool, exitCode int, err error)

	PullImage(ctx context.Context, refStr string) error
	ImageExists(ctx context.Context, refStr string) bool
	BuildImage(ctx context.Context, buildContext io.Reader, tag, dockerfile string) (string, error)

	ConnectNetwork(ctx context.Context, networkID, containerID string, aliases []string) error
}

// Registry is the slice of the registry the engine reads and writes.
type Registry interface {
	SetProject(ctx context.Context, p *core.Project) error
	GetProject(ctx context.Context, id string) (core.Project, error)
	SetApplication(ctx context.Context, app *core.Application) error
	GetApplication(ctx context.Context, id string) (core.Application, error)
	SetDeployment(ctx context.Context, d *core.Deployment) error
	AppDeployments(ctx context.Context, appID string, limit int) ([]core.Deployment, error)
	NextDeploymentVersion(ctx context.Context, appID string) (int, error)
	SetRoute(ctx context.Context, rt *core.Route) error
	DeleteRoute(ctx context.Context, id string) error
	SetGitRepo(ctx context.Context, repo *core.GitRepo) error
	GetGitRepo(ctx context.Context, id string) (core.GitRepo, error)
	GetSecret(ctx context.Context, projectID, name string) (core.Secret, error)
}

// Bus publishes deploy lifecycle events and feeds webhook triggers in.
type Bus interface {
	Subscribe(name string, h events.Handler)
	Emit(ctx context.Context, e events.Event)
}

// Engine coordinates builds, container launches and route updates. One
// deploy runs per application at a time; deploys of different applications
// may run concurrently.
type Engine struct {
	docker   Docker
	registry Registry
	bus      Bus
	log      *logging.Logger
	clock    clock.Clock
	cfg      *config.Config

	mu       sync.Mutex
	inflight map[string]bool
	ips      map[string]string // app id -> last recorded replica address
	root     context.Context

	tasks sync.WaitGroup
}

// New creates an Engine and subscribes it to webhook triggers.
func New(d Docker, reg Registry, bus Bus, cfg *config.Config, log *logging.Logger, clk clock.Clock) *Engine {
	e := &Engine{
		docker:   d,
		registry: reg,
		bus:      bus,
		log:      log,
		clock:    clk,
		cfg:      cfg,
		inflight: make(map[string]bool),
		ips:      make(map[string]string),
	}
	bus.Subscribe(events.WebhookReceived, e.onWebhook)
	return e
}

// Run blocks until ctx is cancelled, then waits for in-flight deploys to
// notice the cancellation. Containers already created are left running.
func (e *Engine) Run(ctx context.Context) error {
	if err := os.MkdirAll(e.cfg.DeployPath, 0o755); err != nil {
		return fmt.Errorf("create deploy path: %w", err)
	}
	e.mu.Lock()
	e.root = ctx
	e.mu.Unlock()
	e.log.Info("deployment engine started", "deploy_path", e.cfg.DeployPath)

	<-ctx.Done()
	e.tasks.Wait()
	e.log.Info("deployment engine stopped")
	return nil
}

// onWebhook reacts to a verified push by deploying the repository in the
// background. The webhook response does not wait for the deploy.
func (e *Engine) onWebhook(_ context.Context, ev events.Event) error {
	repoID := ev.String("repo_id")
	if repoID == "" {
		return nil
	}
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		ctx := e.background()
		repo, err := e.registry.GetGitRepo(ctx, repoID)
		if err != nil {
			e.log.Error("webhook repo lookup failed", "repo", repoID, "error", err)
			return
		}
		if _, err := e.DeployFromRepo(ctx, &repo); err != nil {
			e.log.Error("webhook deploy failed", "repo", repoID, "error", err)
		}
	}()
	return nil
}

// DeployFromRepo clones the repository, parses its manifests and deploys
// the resulting plan.
func (e *Engine) DeployFromRepo(ctx context.Context, repo *core.GitRepo) ([]core.Application, error) {
	bundle, err := manifest.FetchRepo(ctx, e.cfg.DeployPath, *repo)
	if err != nil {
		return nil, err
	}
	return e.DeployFromBundle(ctx, bundle, repo)
}

// DeployFromYAML deploys manifest content submitted directly over the API.
func (e *Engine) DeployFromYAML(ctx context.Context, deployContent, composeContent []byte) ([]core.Application, error) {
	deployCfg, err := manifest.ParseDeploy(deployContent)
	if err != nil {
		return nil, err
	}
	composeCfg, err := manifest.ParseCompose(composeContent)
	if err != nil {
		return nil, err
	}
	return e.DeployFromBundle(ctx, &manifest.Bundle{Deploy: deployCfg, Compose: composeCfg}, nil)
}

// DeployFromLocal deploys a directory already on disk. A missing deploy
// manifest is tolerated; the project is inferred from the directory name.
func (e *Engine) DeployFromLocal(ctx context.Context, path string) ([]core.Application, error) {
	bundle, err := manifest.LoadLocal(path)
	if err != nil {
		return nil, err
	}
	return e.DeployFromBundle(ctx, bundle, nil)
}

// DeployProject redeploys a project from its recorded source path. The
// project keeps its identity when the directory has no deploy manifest.
func (e *Engine) DeployProject(ctx context.Context, project *core.Project) ([]core.Application, error) {
	if project.SourcePath == "" {
		return nil, core.Errorf(core.KindNotFound, "project %s has no deployment source", project.ID)
	}
	bundle, err := manifest.LoadDirAs(project.SourcePath, project.ID, project.Name)
	if err != nil {
		return nil, err
	}
	return e.DeployFromBundle(ctx, bundle, nil)
}

// DeployFromBundle upserts the project, plans one application per compose
// service and deploys them in dependency order. A failed application is
// recorded in its own deployment and does not stop the rest of the plan.
func (e *Engine) DeployFromBundle(ctx context.Context, b *manifest.Bundle, repo *core.GitRepo) ([]core.Application, error) {
	project := &core.Project{
		ID:          b.Deploy.ID,
		Name:        b.Deploy.Name,
		Description: b.Deploy.Description,
		SourcePath:  b.Dir,
		Env:         b.Deploy.Env,
	}
	if err := e.registry.SetProject(ctx, project); err != nil {
		return nil, err
	}
	if repo != nil && repo.ProjectID == "" {
		repo.ProjectID = project.ID
		if err := e.registry.SetGitRepo(ctx, repo); err != nil {
			e.log.Warn("repo project link failed", "repo", repo.ID, "error", err)
		}
	}

	apps := e.planApps(project.ID, b.Compose.Services, b.Deploy.Services, b.Dir)
	ordered, err := deps.Order(apps)
	if err != nil {
		return nil, err
	}
	ids := make([]string, len(ordered))
	for i, a := range ordered {
		ids[i] = a.ID
	}
	e.log.Info("deploy order resolved", "project", project.ID, "order", strings.Join(ids, ", "))

	deployed := make([]core.Application, 0, len(ordered))
	for i := range ordered {
		app := &ordered[i]
		if err := e.registry.SetApplication(ctx, app); err != nil {
			return deployed, err
		}
		if _, err := e.Deploy(ctx, app); err != nil {
			e.log.Error("application deploy failed", "app", app.ID, "error", err)
		}
		deployed = append(deployed, *app)
	}
	return deployed, nil
}

// planApps builds one Application per compose service: image and build
// settings from compose, routing metadata from the deploy manifest,
// dependencies qualified with the project id.
func (e *Engine) planApps(projectID string, services map[string]manifest.ComposeService, meta map[string]manifest.ServiceMeta, dir string) []core.Application {
	names := make([]string, 0, len(services))
	for name := range services {
		names = append(names, name)
	}
	sort.Strings(names)

	apps := make([]core.Application, 0, len(names))
	for _, name := range names {
		svc := services[name]
		m := meta[name]

		app := core.Application{
			ID:          projectID + "-" + name,
			ProjectID:   projectID,
			Name:        name,
			Source:      core.SourceImage,
			Image:       svc.Image,
			Domain:      m.Domain,
			Port:        m.Port,
			Replicas:    m.Replicas,
			Env:         map[string]string(svc.Environment),
			Volumes:     svc.Volumes,
			Networks:    svc.Networks,
			Healthcheck: svc.Healthcheck,
		}
		if svc.Build != nil {
			app.Source = core.SourceGit
			app.SourceURL = dir
			app.BuildContext = svc.Build.Context
			app.Dockerfile = svc.Build.Dockerfile
		}
		if app.Domain == "" {
			app.Domain = fmt.Sprintf("%s-%s.%s", name, projectID, e.cfg.RootDomain)
		}
		if len(app.Networks) == 0 {
			app.Networks = []string{e.cfg.ProxyNetwork}
		}
		for _, dep := range svc.DependsOn {
			app.DependsOn = append(app.DependsOn, projectID+"-"+dep)
		}
		app.Normalize()
		apps = append(apps, app)
	}
	return apps
}

// background returns the engine's lifecycle context for work detached from
// a request.
func (e *Engine) background() context.Context {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.root != nil {
		return e.root
	}
	return context.Background()
}

// tryLock claims the per-application deploy slot.
func (e *Engine) tryLock(appID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.inflight[appID] {
		return false
	}
	e.inflight[appID] = true
	return true
}

func (e *Engine) unlock(appID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.inflight, appID)
}

// cacheIP remembers the address of the application's last started replica
// for @{dep} references in dependent environments.
func (e *Engine) cacheIP(appID, ip string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ips[appID] = ip
}

func (e *Engine) cachedIP(appID string) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	ip, ok := e.ips[appID]
	return ip, ok
}

func (e *Engine) dropIP(appID string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.ips, appID)
}
