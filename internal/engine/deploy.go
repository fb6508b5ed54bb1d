package engine

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/moby/moby/api/types/container"

	"github.com/dockhand-io/dockhand/internal/core"
	"github.com/dockhand-io/dockhand/internal/events"
	"github.com/dockhand-io/dockhand/internal/metrics"
)

const (
	// healthWindow bounds how long new replicas get to pass their check.
	healthWindow = 60 * time.Second
	// settleWait stands in for a healthcheck when none is declared.
	settleWait = 2 * time.Second

	oldContainerGrace = 5  // seconds, replaced replicas at cutover
	stopGrace         = 10 // seconds, operator-requested stop
)

// Deploy runs a full rolling deploy of one application and blocks until it
// finishes. A concurrent deploy of the same application is rejected with a
// conflict.
func (e *Engine) Deploy(ctx context.Context, app *core.Application) (*core.Deployment, error) {
	dep, err := e.begin(ctx, app)
	if err != nil {
		return nil, err
	}
	defer e.unlock(app.ID)
	return e.runDeploy(ctx, app, dep)
}

// DeployAsync allocates the version and pending record, then runs the
// rolling deploy in the background. The returned Deployment is the pending
// snapshot; callers follow progress through the registry.
func (e *Engine) DeployAsync(ctx context.Context, app *core.Application) (*core.Deployment, error) {
	dep, err := e.begin(ctx, app)
	if err != nil {
		return nil, err
	}
	pending := *dep
	appCopy := *app
	e.tasks.Add(1)
	go func() {
		defer e.tasks.Done()
		defer e.unlock(appCopy.ID)
		if _, err := e.runDeploy(e.background(), &appCopy, dep); err != nil {
			e.log.Error("async deploy failed", "deploy", dep.ID, "error", err)
		}
	}()
	return &pending, nil
}

// begin claims the app's deploy slot, allocates the next version and
// persists the pending Deployment.
func (e *Engine) begin(ctx context.Context, app *core.Application) (*core.Deployment, error) {
	if !e.tryLock(app.ID) {
		return nil, core.Errorf(core.KindConflict, "deploy already in progress for %s", app.ID)
	}
	version, err := e.registry.NextDeploymentVersion(ctx, app.ID)
	if err != nil {
		e.unlock(app.ID)
		return nil, err
	}
	dep := &core.Deployment{
		ID:      core.DeploymentID(app.ID, version),
		AppID:   app.ID,
		Version: version,
		Status:  core.StatusPending,
	}
	if err := e.registry.SetDeployment(ctx, dep); err != nil {
		e.unlock(app.ID)
		return nil, err
	}
	return dep, nil
}

// runDeploy drives one deployment through build, launch, health gate and
// cutover. The old replica set keeps serving until the new one is healthy;
// on failure the new set is torn down and the application left untouched.
func (e *Engine) runDeploy(ctx context.Context, app *core.Application, dep *core.Deployment) (*core.Deployment, error) {
	start := e.clock.Now()
	oldIDs := append([]string(nil), app.ContainerIDs...)
	e.bus.Emit(ctx, events.Event{Name: events.DeployStarted, Fields: map[string]any{
		"app_id":    app.ID,
		"deploy_id": dep.ID,
	}})

	var newIDs []string
	err := func() error {
		if err := e.advance(ctx, app, dep, core.StatusBuilding); err != nil {
			return err
		}
		image, err := e.resolveImage(ctx, app, dep)
		if err != nil {
			return err
		}
		dep.Image = image
		if err := e.advance(ctx, app, dep, core.StatusDeploying); err != nil {
			return err
		}
		newIDs, err = e.launchReplicas(ctx, app, dep, image)
		if err != nil {
			return err
		}
		return e.healthGate(ctx, app, newIDs)
	}()
	if err != nil {
		e.failDeploy(ctx, app, dep, newIDs, err)
		return dep, err
	}

	// Cutover. The application points at the new set before the old one
	// goes away, so a crash in between leaves both serving rather than
	// neither.
	dep.Status = core.StatusRunning
	dep.ContainerIDs = newIDs
	dep.FinishedAt = e.clock.Now().UTC()
	if err := e.registry.SetDeployment(ctx, dep); err != nil {
		e.log.Error("persist deployment failed", "deploy", dep.ID, "error", err)
	}
	app.Status = core.StatusRunning
	app.ContainerIDs = newIDs
	app.Image = dep.Image
	if err := e.registry.SetApplication(ctx, app); err != nil {
		e.log.Error("persist application failed", "app", app.ID, "error", err)
	}
	e.bus.Emit(ctx, events.Event{Name: events.DeployCompleted, Fields: map[string]any{
		"app_id":    app.ID,
		"deploy_id": dep.ID,
	}})
	if app.Domain != "" {
		e.refreshAppRoute(ctx, app)
	}
	e.removeContainers(ctx, oldIDs, oldContainerGrace)
	metrics.DeploysTotal.WithLabelValues("success").Inc()
	metrics.DeployDuration.Observe(e.clock.Since(start).Seconds())
	e.log.Info("deploy completed", "deploy", dep.ID)
	return dep, nil
}

// advance moves both records to the next lifecycle status.
func (e *Engine) advance(ctx context.Context, app *core.Application, dep *core.Deployment, status core.DeployStatus) error {
	dep.Status = status
	if err := e.registry.SetDeployment(ctx, dep); err != nil {
		return err
	}
	app.Status = status
	return e.registry.SetApplication(ctx, app)
}

// failDeploy records the failure with the new containers' log tails, tears
// the new set down and emits deploy_failed. On shutdown nothing is touched:
// created containers are deliberately left in place.
func (e *Engine) failDeploy(ctx context.Context, app *core.Application, dep *core.Deployment, newIDs []string, cause error) {
	if ctx.Err() != nil {
		e.log.Warn("deploy aborted by shutdown", "deploy", dep.ID)
		return
	}
	metrics.DeploysTotal.WithLabelValues("failed").Inc()
	e.log.Error("deploy failed", "deploy", dep.ID, "error", cause)

	logs := cause.Error()
	if tail := e.captureLogs(ctx, newIDs); tail != "" {
		logs += "\n" + tail
	}
	dep.Status = core.StatusFailed
	dep.Logs = logs
	dep.FinishedAt = e.clock.Now().UTC()
	if err := e.registry.SetDeployment(ctx, dep); err != nil {
		e.log.Error("persist deployment failed", "deploy", dep.ID, "error", err)
	}
	app.Status = core.StatusFailed
	if err := e.registry.SetApplication(ctx, app); err != nil {
		e.log.Error("persist application failed", "app", app.ID, "error", err)
	}
	e.removeContainers(ctx, newIDs, oldContainerGrace)
	e.bus.Emit(ctx, events.Event{Name: events.DeployFailed, Fields: map[string]any{
		"app_id":    app.ID,
		"deploy_id": dep.ID,
		"error":     cause.Error(),
	}})
}

// resolveImage materializes the image the deployment will run.
func (e *Engine) resolveImage(ctx context.Context, app *core.Application, dep *core.Deployment) (string, error) {
	switch app.Source {
	case core.SourceGit:
		return e.buildFromGit(ctx, app, dep)
	case core.SourceImage, core.SourceCompose:
		return e.pullImage(ctx, app)
	default:
		return "", core.Errorf(core.KindInvalidInput, "unknown deploy source %q", app.Source)
	}
}

// launchReplicas creates and starts the new replica set next to the old
// one. Names carry the version so the generations never collide. Returns
// the ids created so far even on error so the caller can clean them up.
func (e *Engine) launchReplicas(ctx context.Context, app *core.Application, dep *core.Deployment, image string) ([]string, error) {
	env, err := e.resolveEnv(ctx, app)
	if err != nil {
		return nil, err
	}
	networks := app.Networks
	if len(networks) == 0 {
		networks = []string{e.cfg.ProxyNetwork}
	}

	labels := map[string]string{
		e.cfg.LabelPrefix + "enable":     "true",
		e.cfg.LabelPrefix + "app_id":     app.ID,
		e.cfg.LabelPrefix + "project_id": app.ProjectID,
		e.cfg.LabelPrefix + "deploy_id":  dep.ID,
	}
	if domain := e.completeDomain(app); domain != "" {
		labels[e.cfg.LabelPrefix+"http.routers."+app.ID+".host"] = domain
		labels[e.cfg.LabelPrefix+"http.routers."+app.ID+".port"] = strconv.Itoa(app.Port)
	}

	var ids []string
	for i := 0; i < app.Replicas; i++ {
		name := fmt.Sprintf("%s-v%d", app.ID, dep.Version)
		if app.Replicas > 1 {
			name = fmt.Sprintf("%s-%d", name, i)
		}
		cfg := &container.Config{
			Image:    image,
			Env:      envList(env),
			Labels:   labels,
			Hostname: app.ID,
		}
		hostCfg := &container.HostConfig{}
		if len(app.Volumes) > 0 {
			hostCfg.Binds = app.Volumes
		}
		id, err := e.docker.CreateContainer(ctx, name, cfg, hostCfg, nil)
		if err != nil {
			return ids, core.Wrap(core.KindRuntimeError, err, "create container "+name)
		}
		ids = append(ids, id)
		// The service answers DNS as its app id on every attached network.
		for _, net := range networks {
			if err := e.docker.ConnectNetwork(ctx, net, id, []string{app.ID}); err != nil {
				e.log.Warn("network connect failed", "network", net, "container", core.ShortID(id), "error", err)
			}
		}
		if err := e.docker.StartContainer(ctx, id); err != nil {
			return ids, core.Wrap(core.KindRuntimeError, err, "start container "+name)
		}
		e.log.Info("container started", "name", name, "id", core.ShortID(id))
		if ip := e.containerIP(ctx, id, networks); ip != "" {
			e.cacheIP(app.ID, ip)
		}
	}
	return ids, nil
}

// resolveEnv merges project and application environment, then resolves
// ${name} secret references and @{dep} dependency addresses.
func (e *Engine) resolveEnv(ctx context.Context, app *core.Application) (map[string]string, error) {
	merged := make(map[string]string)
	project, err := e.registry.GetProject(ctx, app.ProjectID)
	if err == nil {
		for k, v := range project.Env {
			merged[k] = v
		}
	} else if !core.IsNotFound(err) {
		e.log.Warn("project env unavailable", "project", app.ProjectID, "error", err)
	}
	for k, v := range app.Env {
		merged[k] = v
	}
	for k, v := range merged {
		merged[k] = e.resolveValue(ctx, app, v)
	}
	return merged, nil
}

// resolveValue handles the two reference forms an env value may take:
// a whole-value ${name} reads the project secret, and @{dep-id} tokens are
// replaced by the dependency's recorded address once it has containers.
func (e *Engine) resolveValue(ctx context.Context, app *core.Application, value string) string {
	if name, ok := strings.CutPrefix(value, "${"); ok && strings.HasSuffix(name, "}") {
		name = strings.TrimSuffix(name, "}")
		secret, err := e.registry.GetSecret(ctx, app.ProjectID, name)
		if err != nil {
			e.log.Warn("secret not found", "project", app.ProjectID, "name", name)
			return value
		}
		return secret.Value
	}
	for _, depID := range app.DependsOn {
		token := "@" + depID
		if !strings.Contains(value, token) {
			continue
		}
		depApp, err := e.registry.GetApplication(ctx, depID)
		if err != nil || len(depApp.ContainerIDs) == 0 {
			continue
		}
		// The network alias resolves too, so the id is a usable fallback.
		addr := depID
		if ip, ok := e.cachedIP(depID); ok {
			addr = ip
		}
		value = strings.ReplaceAll(value, token, addr)
	}
	return value
}

// completeDomain resolves the routed domain: empty falls back to
// {app.id}-{project}.{root domain}, a bare name gets the root domain
// appended.
func (e *Engine) completeDomain(app *core.Application) string {
	domain := app.Domain
	switch {
	case domain == "":
		domain = fmt.Sprintf("%s-%s.%s", app.ID, app.ProjectID, e.cfg.RootDomain)
	case !strings.Contains(domain, "."):
		domain = domain + "." + e.cfg.RootDomain
	}
	return domain
}

// healthGate holds the cutover until every new replica passes the app's
// healthcheck in the same round. Without a declared check a short settle
// wait counts as healthy.
func (e *Engine) healthGate(ctx context.Context, app *core.Application, ids []string) error {
	if app.Healthcheck == nil || app.Healthcheck.Test.IsZero() || len(ids) == 0 {
		return e.clock.Sleep(ctx, settleWait)
	}
	argv := app.Healthcheck.Test.Argv()
	interval := app.Healthcheck.Interval.Duration()
	if interval <= 0 {
		interval = 5 * time.Second
	}

	deadline := e.clock.Now().Add(healthWindow)
	for e.clock.Now().Before(deadline) {
		if e.allHealthy(ctx, argv, ids) {
			e.log.Info("all replicas healthy", "app", app.ID)
			return nil
		}
		if err := e.clock.Sleep(ctx, interval); err != nil {
			return err
		}
	}
	return core.Errorf(core.KindHealthcheckFailed, "replicas of %s failed their healthcheck", app.ID)
}

// allHealthy probes every replica concurrently; all must pass.
func (e *Engine) allHealthy(ctx context.Context, argv []string, ids []string) bool {
	results := make(chan bool, len(ids))
	for _, id := range ids {
		go func() {
			results <- e.execHealthcheck(ctx, id, argv)
		}()
	}
	ok := true
	for range ids {
		if !<-results {
			ok = false
		}
	}
	return ok
}

// execHealthcheck runs the check command inside one container and reports
// whether it exited zero. A check still running after the poll budget
// counts as failed.
func (e *Engine) execHealthcheck(ctx context.Context, id string, argv []string) bool {
	execID, err := e.docker.CreateExec(ctx, id, argv)
	if err != nil {
		e.log.Warn("healthcheck exec create failed", "container", core.ShortID(id), "error", err)
		return false
	}
	if err := e.docker.StartExec(ctx, execID); err != nil {
		e.log.Warn("healthcheck exec start failed", "container", core.ShortID(id), "error", err)
		return false
	}
	for i := 0; i < 10; i++ {
		running, code, err := e.docker.InspectExec(ctx, execID)
		if err != nil {
			e.log.Warn("healthcheck inspect failed", "container", core.ShortID(id), "error", err)
			return false
		}
		if !running {
			if code != 0 {
				e.log.Warn("healthcheck failed", "container", core.ShortID(id), "exit", code)
			}
			return code == 0
		}
		if e.clock.Sleep(ctx, 200*time.Millisecond) != nil {
			return false
		}
	}
	return false
}

// refreshAppRoute regenerates the application's route from the current
// container set, preferring proxy-network addresses.
func (e *Engine) refreshAppRoute(ctx context.Context, app *core.Application) {
	preferred := append([]string{e.cfg.ProxyNetwork}, app.Networks...)
	var upstreams []core.Upstream
	for _, id := range app.ContainerIDs {
		ip := e.containerIP(ctx, id, preferred)
		if ip == "" {
			continue
		}
		upstreams = append(upstreams, core.Upstream{
			Address:     ip,
			Port:        app.Port,
			Weight:      1,
			Healthy:     true,
			ContainerID: id,
		})
	}
	if len(upstreams) == 0 {
		e.log.Warn("no upstreams for route", "app", app.ID)
		return
	}
	rt := &core.Route{
		ID:           core.AppRouteID(app.ID),
		Host:         app.Domain,
		Protocol:     core.ProtocolHTTP,
		Upstreams:    upstreams,
		PreserveHost: true,
		Enabled:      true,
	}
	rt.Normalize()
	if err := e.registry.SetRoute(ctx, rt); err != nil {
		e.log.Error("route update failed", "route", rt.ID, "error", err)
		return
	}
	e.log.Info("route updated", "host", rt.Host, "upstreams", len(upstreams))
}

// containerIP returns the container's address on the first preferred
// network carrying one, falling back to any attached network.
func (e *Engine) containerIP(ctx context.Context, id string, preferred []string) string {
	info, err := e.docker.InspectContainer(ctx, id)
	if err != nil || info.NetworkSettings == nil {
		return ""
	}
	nets := info.NetworkSettings.Networks
	for _, name := range preferred {
		if ep := nets[name]; ep != nil && ep.IPAddress.IsValid() {
			return ep.IPAddress.String()
		}
	}
	names := make([]string, 0, len(nets))
	for name := range nets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if ep := nets[name]; ep != nil && ep.IPAddress.IsValid() {
			return ep.IPAddress.String()
		}
	}
	return ""
}

// captureLogs collects the last lines of each container's output for the
// failure record.
func (e *Engine) captureLogs(ctx context.Context, ids []string) string {
	var b strings.Builder
	for _, id := range ids {
		logs, err := e.docker.ContainerLogs(ctx, id, 50)
		if err != nil || logs == "" {
			continue
		}
		fmt.Fprintf(&b, "--- %s ---\n%s\n", core.ShortID(id), strings.TrimRight(logs, "\n"))
	}
	return strings.TrimRight(b.String(), "\n")
}

// removeContainers stops and deletes containers, tolerating ones already
// gone.
func (e *Engine) removeContainers(ctx context.Context, ids []string, grace int) {
	for _, id := range ids {
		if err := e.docker.StopContainer(ctx, id, grace); err != nil {
			e.log.Warn("container stop failed", "container", core.ShortID(id), "error", err)
		}
		if err := e.docker.RemoveContainer(ctx, id); err != nil {
			e.log.Warn("container remove failed", "container", core.ShortID(id), "error", err)
			continue
		}
		e.log.Info("container removed", "container", core.ShortID(id))
	}
}

// envList renders an environment map in the runtime's KEY=VALUE form,
// sorted for stable container configs.
func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(env))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
