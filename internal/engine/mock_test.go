package engine

import (
	"context"
	"fmt"
	"io"
	"net/netip"
	"sort"
	"strings"
	"sync"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/network"

	"github.com/dockhand-io/dockhand/internal/clock"
	"github.com/dockhand-io/dockhand/internal/config"
	"github.com/dockhand-io/dockhand/internal/core"
	"github.com/dockhand-io/dockhand/internal/events"
	"github.com/dockhand-io/dockhand/internal/logging"
)

// fakeDocker implements the engine's Docker interface, recording calls and
// answering from configured maps.
type fakeDocker struct {
	mu sync.Mutex

	inspect map[string]container.InspectResponse

	createCalls   []string
	createErr     map[string]error
	createConfigs map[string]*container.Config
	createHosts   map[string]*container.HostConfig

	startCalls []string
	startErr   map[string]error

	stopCalls   []string
	removeCalls []string

	connectCalls []string // "network/container"
	connectErr   map[string]error

	logsResult map[string]string

	pullCalls   []string
	pullErr     map[string]error
	localImages map[string]bool

	buildTags        []string
	buildDockerfiles []string
	buildOutput      string
	buildErr         error

	execCalls  []string
	healthCode map[string]int // container id → exit code of its check
}

func newFakeDocker() *fakeDocker {
	return &fakeDocker{
		inspect:       make(map[string]container.InspectResponse),
		createErr:     make(map[string]error),
		createConfigs: make(map[string]*container.Config),
		createHosts:   make(map[string]*container.HostConfig),
		startErr:      make(map[string]error),
		connectErr:    make(map[string]error),
		logsResult:    make(map[string]string),
		pullErr:       make(map[string]error),
		localImages:   make(map[string]bool),
		healthCode:    make(map[string]int),
	}
}

func (f *fakeDocker) InspectContainer(_ context.Context, id string) (container.InspectResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	info, ok := f.inspect[id]
	if !ok {
		return container.InspectResponse{}, fmt.Errorf("no such container %s", id)
	}
	return info, nil
}

func (f *fakeDocker) CreateContainer(_ context.Context, name string, cfg *container.Config, hostCfg *container.HostConfig, _ *network.NetworkingConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls = append(f.createCalls, name)
	f.createConfigs[name] = cfg
	f.createHosts[name] = hostCfg
	if err, ok := f.createErr[name]; ok {
		return "", err
	}
	return "new-" + name, nil
}

func (f *fakeDocker) StartContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.startCalls = append(f.startCalls, id)
	if err, ok := f.startErr[id]; ok {
		return err
	}
	return nil
}

func (f *fakeDocker) StopContainer(_ context.Context, id string, _ int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls = append(f.stopCalls, id)
	return nil
}

func (f *fakeDocker) RemoveContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removeCalls = append(f.removeCalls, id)
	return nil
}

func (f *fakeDocker) ContainerLogs(_ context.Context, id string, _ int) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if logs, ok := f.logsResult[id]; ok {
		return logs, nil
	}
	return "", nil
}

func (f *fakeDocker) CreateExec(_ context.Context, id string, _ []string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.execCalls = append(f.execCalls, id)
	return "exec:" + id, nil
}

func (f *fakeDocker) StartExec(context.Context, string) error { return nil }

func (f *fakeDocker) InspectExec(_ context.Context, execID string) (bool, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id := strings.TrimPrefix(execID, "exec:")
	return false, f.healthCode[id], nil
}

func (f *fakeDocker) PullImage(_ context.Context, ref string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pullCalls = append(f.pullCalls, ref)
	if err, ok := f.pullErr[ref]; ok {
		return err
	}
	return nil
}

func (f *fakeDocker) ImageExists(_ context.Context, ref string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.localImages[ref]
}

func (f *fakeDocker) BuildImage(_ context.Context, buildContext io.Reader, tag, dockerfile string) (string, error) {
	io.Copy(io.Discard, buildContext)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.buildTags = append(f.buildTags, tag)
	f.buildDockerfiles = append(f.buildDockerfiles, dockerfile)
	return f.buildOutput, f.buildErr
}

func (f *fakeDocker) ConnectNetwork(_ context.Context, networkID, containerID string, _ []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connectCalls = append(f.connectCalls, networkID+"/"+containerID)
	if err, ok := f.connectErr[networkID]; ok {
		return err
	}
	return nil
}

// setIP registers an inspect result placing the container on the given
// network.
func (f *fakeDocker) setIP(id, netName, ip string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	addr, _ := netip.ParseAddr(ip)
	f.inspect[id] = container.InspectResponse{
		NetworkSettings: &container.NetworkSettings{
			Networks: map[string]*network.EndpointSettings{
				netName: {IPAddress: addr},
			},
		},
	}
}

// fakeRegistry implements the engine's Registry interface in memory.
type fakeRegistry struct {
	mu           sync.Mutex
	projects     map[string]core.Project
	apps         map[string]core.Application
	deployments  map[string]core.Deployment
	versions     map[string]int
	routes       map[string]core.Route
	routeDeletes []string
	repos        map[string]core.GitRepo
	secrets      map[string]string // "project/name" → value
}

func newFakeRegistry() *fakeRegistry {
	return &fakeRegistry{
		projects:    make(map[string]core.Project),
		apps:        make(map[string]core.Application),
		deployments: make(map[string]core.Deployment),
		versions:    make(map[string]int),
		routes:      make(map[string]core.Route),
		repos:       make(map[string]core.GitRepo),
		secrets:     make(map[string]string),
	}
}

func (f *fakeRegistry) SetProject(_ context.Context, p *core.Project) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.projects[p.ID] = *p
	return nil
}

func (f *fakeRegistry) GetProject(_ context.Context, id string) (core.Project, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	p, ok := f.projects[id]
	if !ok {
		return core.Project{}, core.Errorf(core.KindNotFound, "project %s not found", id)
	}
	return p, nil
}

func (f *fakeRegistry) SetApplication(_ context.Context, app *core.Application) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.apps[app.ID] = *app
	return nil
}

func (f *fakeRegistry) GetApplication(_ context.Context, id string) (core.Application, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[id]
	if !ok {
		return core.Application{}, core.Errorf(core.KindNotFound, "application %s not found", id)
	}
	return app, nil
}

func (f *fakeRegistry) SetDeployment(_ context.Context, d *core.Deployment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deployments[d.ID] = *d
	return nil
}

func (f *fakeRegistry) AppDeployments(_ context.Context, appID string, limit int) ([]core.Deployment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []core.Deployment
	for _, d := range f.deployments {
		if d.AppID == appID {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version > out[j].Version })
	if limit <= 0 {
		limit = 10
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRegistry) NextDeploymentVersion(_ context.Context, appID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.versions[appID]++
	return f.versions[appID], nil
}

func (f *fakeRegistry) SetRoute(_ context.Context, rt *core.Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes[rt.ID] = *rt
	return nil
}

func (f *fakeRegistry) DeleteRoute(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routeDeletes = append(f.routeDeletes, id)
	if _, ok := f.routes[id]; !ok {
		return core.Errorf(core.KindNotFound, "route %s not found", id)
	}
	delete(f.routes, id)
	return nil
}

func (f *fakeRegistry) SetGitRepo(_ context.Context, repo *core.GitRepo) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.repos[repo.ID] = *repo
	return nil
}

func (f *fakeRegistry) GetGitRepo(_ context.Context, id string) (core.GitRepo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	repo, ok := f.repos[id]
	if !ok {
		return core.GitRepo{}, core.Errorf(core.KindNotFound, "repo %s not found", id)
	}
	return repo, nil
}

func (f *fakeRegistry) GetSecret(_ context.Context, projectID, name string) (core.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	value, ok := f.secrets[projectID+"/"+name]
	if !ok {
		return core.Secret{}, core.Errorf(core.KindNotFound, "secret %s not found", name)
	}
	return core.Secret{ID: core.SecretID(projectID, name), ProjectID: projectID, Name: name, Value: value}, nil
}

func (f *fakeRegistry) deployment(id string) (core.Deployment, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.deployments[id]
	return d, ok
}

func (f *fakeRegistry) application(id string) (core.Application, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	app, ok := f.apps[id]
	return app, ok
}

// fakeBus records emitted events and dispatches nothing.
type fakeBus struct {
	mu       sync.Mutex
	events   []events.Event
	handlers map[string][]events.Handler
	onEmit   func(e events.Event)
}

func (f *fakeBus) Subscribe(name string, h events.Handler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.handlers == nil {
		f.handlers = make(map[string][]events.Handler)
	}
	f.handlers[name] = append(f.handlers[name], h)
}

func (f *fakeBus) Emit(_ context.Context, e events.Event) {
	f.mu.Lock()
	f.events = append(f.events, e)
	hook := f.onEmit
	f.mu.Unlock()
	if hook != nil {
		hook(e)
	}
}

func (f *fakeBus) named(name string) []events.Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []events.Event
	for _, e := range f.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func testConfig(t interface{ TempDir() string }) *config.Config {
	return &config.Config{
		LabelPrefix:    "dockhand.",
		ProxyNetwork:   "dockhand-proxy",
		LocalIP:        "127.0.0.1",
		RootDomain:     "127.0.0.1.nip.io",
		DeployPath:     t.TempDir(),
		ImageNamespace: "dockhand",
	}
}

func newTestEngine(t interface{ TempDir() string }, d *fakeDocker, reg *fakeRegistry) (*Engine, *fakeBus) {
	bus := &fakeBus{}
	e := New(d, reg, bus, testConfig(t), logging.New(false, "error"), clock.NewFake())
	return e, bus
}
