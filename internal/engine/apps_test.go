package engine

import (
	"context"
	"reflect"
	"testing"

	"github.com/dockhand-io/dockhand/internal/core"
)

func TestStopAppLeavesContainersInPlace(t *testing.T) {
	d := newFakeDocker()
	reg := newFakeRegistry()
	e, _ := newTestEngine(t, d, reg)

	app := imageApp("p1-web", "p1", "nginx:1.27")
	app.ContainerIDs = []string{"c1", "c2"}
	reg.apps[app.ID] = app

	if err := e.StopApp(context.Background(), &app); err != nil {
		t.Fatalf("StopApp: %v", err)
	}
	if !reflect.DeepEqual(d.stopCalls, []string{"c1", "c2"}) {
		t.Errorf("stopped %v", d.stopCalls)
	}
	if len(d.removeCalls) != 0 {
		t.Errorf("removed %v, want none", d.removeCalls)
	}
	if got, _ := reg.application(app.ID); got.Status != core.StatusStopped {
		t.Errorf("persisted status = %s", got.Status)
	}
}

func TestRemoveAppTearsDownContainersAndRoute(t *testing.T) {
	d := newFakeDocker()
	reg := newFakeRegistry()
	e, _ := newTestEngine(t, d, reg)

	app := imageApp("p1-web", "p1", "nginx:1.27")
	app.Domain = "web.example.com"
	app.ContainerIDs = []string{"c1"}
	reg.routes["app-p1-web"] = core.Route{ID: "app-p1-web"}
	e.cacheIP(app.ID, "10.0.0.5")

	if err := e.RemoveApp(context.Background(), &app); err != nil {
		t.Fatalf("RemoveApp: %v", err)
	}
	if !reflect.DeepEqual(d.removeCalls, []string{"c1"}) {
		t.Errorf("removed %v", d.removeCalls)
	}
	if !reflect.DeepEqual(reg.routeDeletes, []string{"app-p1-web"}) {
		t.Errorf("route deletes = %v", reg.routeDeletes)
	}
	if _, ok := e.cachedIP(app.ID); ok {
		t.Error("address cache not cleared")
	}
}

func TestRemoveAppToleratesMissingRoute(t *testing.T) {
	d := newFakeDocker()
	reg := newFakeRegistry()
	e, _ := newTestEngine(t, d, reg)

	app := imageApp("p1-web", "p1", "nginx:1.27")
	app.Domain = "web.example.com"
	if err := e.RemoveApp(context.Background(), &app); err != nil {
		t.Fatalf("RemoveApp: %v", err)
	}
}

func TestRollbackReusesTargetImage(t *testing.T) {
	d := newFakeDocker()
	reg := newFakeRegistry()
	e, _ := newTestEngine(t, d, reg)

	app := imageApp("p1-web", "p1", "dockhand/p1-web:v2")
	app.ContainerIDs = []string{"c2"}
	reg.apps[app.ID] = app
	reg.versions[app.ID] = 2
	reg.deployments["p1-web-v1"] = core.Deployment{
		ID: "p1-web-v1", AppID: "p1-web", Version: 1,
		Status: core.StatusRunning, Image: "dockhand/p1-web:v1",
	}
	reg.deployments["p1-web-v2"] = core.Deployment{
		ID: "p1-web-v2", AppID: "p1-web", Version: 2,
		Status: core.StatusRunning, Image: "dockhand/p1-web:v2",
	}
	// A failing check must not matter: rollbacks skip the health gate.
	d.healthCode["new-p1-web-v3"] = 1

	dep, err := e.Rollback(context.Background(), &app, 1)
	if err != nil {
		t.Fatalf("Rollback: %v", err)
	}
	if dep.Version != 3 || dep.Image != "dockhand/p1-web:v1" {
		t.Fatalf("rollback deployment = v%d %s", dep.Version, dep.Image)
	}
	if dep.Status != core.StatusRunning {
		t.Errorf("status = %s", dep.Status)
	}
	if !reflect.DeepEqual(d.createCalls, []string{"p1-web-v3"}) {
		t.Errorf("created %v", d.createCalls)
	}
	// The image comes from history: nothing is pulled or built.
	if len(d.pullCalls) != 0 || len(d.buildTags) != 0 {
		t.Errorf("pull=%v build=%v, want none", d.pullCalls, d.buildTags)
	}
	if !reflect.DeepEqual(d.stopCalls, []string{"c2"}) {
		t.Errorf("stopped %v, want the replaced replica", d.stopCalls)
	}
	if app.Image != "dockhand/p1-web:v1" || !reflect.DeepEqual(app.ContainerIDs, []string{"new-p1-web-v3"}) {
		t.Errorf("app = %s %v", app.Image, app.ContainerIDs)
	}
}

func TestRollbackRejectsUnknownVersion(t *testing.T) {
	d := newFakeDocker()
	reg := newFakeRegistry()
	e, _ := newTestEngine(t, d, reg)

	app := imageApp("p1-web", "p1", "nginx:1.27")
	reg.apps[app.ID] = app
	reg.deployments["p1-web-v1"] = core.Deployment{
		ID: "p1-web-v1", AppID: "p1-web", Version: 1, Status: core.StatusFailed,
	}

	// v1 never produced an image, v9 never existed.
	for _, version := range []int{1, 9} {
		_, err := e.Rollback(context.Background(), &app, version)
		if core.KindOf(err) != core.KindNotFound {
			t.Errorf("Rollback(%d) err = %v, want not_found", version, err)
		}
	}
}

func TestRollbackConflictsWithInflightDeploy(t *testing.T) {
	d := newFakeDocker()
	reg := newFakeRegistry()
	e, _ := newTestEngine(t, d, reg)

	app := imageApp("p1-web", "p1", "nginx:1.27")
	if !e.tryLock(app.ID) {
		t.Fatal("tryLock")
	}
	defer e.unlock(app.ID)

	_, err := e.Rollback(context.Background(), &app, 1)
	if core.KindOf(err) != core.KindConflict {
		t.Fatalf("err = %v, want conflict", err)
	}
}
