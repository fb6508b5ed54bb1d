package engine

import (
	"context"

	"github.com/dockhand-io/dockhand/internal/core"
	"github.com/dockhand-io/dockhand/internal/events"
	"github.com/dockhand-io/dockhand/internal/metrics"
)

// rollbackHistory bounds how far back a rollback target may sit.
const rollbackHistory = 50

// StopApp stops the application's containers without removing them.
func (e *Engine) StopApp(ctx context.Context, app *core.Application) error {
	for _, id := range app.ContainerIDs {
		if err := e.docker.StopContainer(ctx, id, stopGrace); err != nil {
			e.log.Warn("container stop failed", "container", core.ShortID(id), "error", err)
			continue
		}
		e.log.Info("container stopped", "container", core.ShortID(id))
	}
	app.Status = core.StatusStopped
	return e.registry.SetApplication(ctx, app)
}

// RemoveApp tears down the application's containers and route. The
// application record itself is the caller's to delete.
func (e *Engine) RemoveApp(ctx context.Context, app *core.Application) error {
	e.removeContainers(ctx, app.ContainerIDs, oldContainerGrace)
	if app.Domain != "" {
		if err := e.registry.DeleteRoute(ctx, core.AppRouteID(app.ID)); err != nil && !core.IsNotFound(err) {
			e.log.Warn("route delete failed", "app", app.ID, "error", err)
		}
	}
	e.dropIP(app.ID)
	return nil
}

// Rollback redeploys the image of an earlier version as a fresh deployment.
// The target's image is reused as-is, so no build runs and no healthcheck
// gates the cutover; the replaced replicas are removed once the new set is
// up.
func (e *Engine) Rollback(ctx context.Context, app *core.Application, targetVersion int) (*core.Deployment, error) {
	if !e.tryLock(app.ID) {
		return nil, core.Errorf(core.KindConflict, "deploy already in progress for %s", app.ID)
	}
	defer e.unlock(app.ID)

	history, err := e.registry.AppDeployments(ctx, app.ID, rollbackHistory)
	if err != nil {
		return nil, err
	}
	var target *core.Deployment
	for i := range history {
		if history[i].Version == targetVersion {
			target = &history[i]
			break
		}
	}
	if target == nil || target.Image == "" {
		return nil, core.Errorf(core.KindNotFound, "no deployable image for %s v%d", app.ID, targetVersion)
	}

	version, err := e.registry.NextDeploymentVersion(ctx, app.ID)
	if err != nil {
		return nil, err
	}
	dep := &core.Deployment{
		ID:      core.DeploymentID(app.ID, version),
		AppID:   app.ID,
		Version: version,
		Status:  core.StatusDeploying,
		Image:   target.Image,
	}
	if err := e.registry.SetDeployment(ctx, dep); err != nil {
		return nil, err
	}
	e.log.Info("rolling back", "app", app.ID, "to", targetVersion, "as", version)
	e.bus.Emit(ctx, events.Event{Name: events.DeployStarted, Fields: map[string]any{
		"app_id":    app.ID,
		"deploy_id": dep.ID,
	}})

	oldIDs := append([]string(nil), app.ContainerIDs...)
	newIDs, err := e.launchReplicas(ctx, app, dep, target.Image)
	if err != nil {
		e.failDeploy(ctx, app, dep, newIDs, err)
		return dep, err
	}

	dep.Status = core.StatusRunning
	dep.ContainerIDs = newIDs
	dep.FinishedAt = e.clock.Now().UTC()
	if err := e.registry.SetDeployment(ctx, dep); err != nil {
		e.log.Error("persist deployment failed", "deploy", dep.ID, "error", err)
	}
	app.Status = core.StatusRunning
	app.ContainerIDs = newIDs
	app.Image = target.Image
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
	e.log.Info("rollback completed", "deploy", dep.ID)
	return dep, nil
}
