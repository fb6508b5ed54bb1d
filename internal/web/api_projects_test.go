package web

import (
	"net/http"
	"strings"
	"testing"

	"github.com/dockhand-io/dockhand/internal/core"
)

func TestCreateProjectDefaults(t *testing.T) {
	ts := newTestServer()
	w := ts.do(http.MethodPost, "/api/v1/projects", `{"name":"blog","source_path":"/srv/blog"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	m := decodeMap(t, w)
	id, _ := m["id"].(string)
	if !strings.HasPrefix(id, "proj-") {
		t.Errorf("id = %q, want proj- prefix", id)
	}
	if m["name"] != "blog" {
		t.Errorf("name = %v", m["name"])
	}
}

func TestCreateProjectRequiresName(t *testing.T) {
	ts := newTestServer()
	w := ts.do(http.MethodPost, "/api/v1/projects", `{"description":"nameless"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestUpdateProjectPartial(t *testing.T) {
	ts := newTestServer()
	ts.registry.projects["p1"] = core.Project{ID: "p1", Name: "blog", Description: "old", SourcePath: "/srv/blog"}

	w := ts.do(http.MethodPut, "/api/v1/projects/p1", `{"description":"new"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	got := ts.registry.projects["p1"]
	if got.Description != "new" {
		t.Errorf("description = %q, want new", got.Description)
	}
	if got.Name != "blog" || got.SourcePath != "/srv/blog" {
		t.Errorf("untouched fields changed: %+v", got)
	}
}

func TestDeleteProjectTearsDownApps(t *testing.T) {
	ts := newTestServer()
	ts.registry.projects["p1"] = core.Project{ID: "p1", Name: "blog"}
	ts.registry.apps["a1"] = core.Application{ID: "a1", ProjectID: "p1", Name: "web"}
	ts.registry.apps["a2"] = core.Application{ID: "a2", ProjectID: "p1", Name: "worker"}
	ts.registry.apps["other"] = core.Application{ID: "other", ProjectID: "p2", Name: "other"}

	w := ts.do(http.MethodDelete, "/api/v1/projects/p1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if got := decodeMap(t, w)["status"]; got != "deleted" {
		t.Errorf("status = %v, want deleted", got)
	}

	if len(ts.deployer.removed) != 2 {
		t.Errorf("removed apps = %v, want a1 and a2", ts.deployer.removed)
	}
	if _, ok := ts.registry.projects["p1"]; ok {
		t.Error("project still stored")
	}
	if _, ok := ts.registry.apps["a1"]; ok {
		t.Error("a1 still stored")
	}
	if _, ok := ts.registry.apps["other"]; !ok {
		t.Error("unrelated app removed")
	}
}

func TestDeployProjectPrefersLinkedRepo(t *testing.T) {
	ts := newTestServer()
	ts.registry.projects["p1"] = core.Project{ID: "p1", Name: "blog", SourcePath: "/srv/blog"}
	ts.registry.repos["r1"] = core.GitRepo{
		ID: "r1", Provider: core.ProviderGitHub,
		URL: "https://github.com/acme/blog", Branch: "main", ProjectID: "p1",
	}

	w := ts.do(http.MethodPost, "/api/v1/projects/p1/deploy", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if got := decodeMap(t, w)["status"]; got != "deploying" {
		t.Errorf("status = %v, want deploying", got)
	}
	if len(ts.deployer.repoIDs) != 1 || ts.deployer.repoIDs[0] != "r1" {
		t.Errorf("repo deploys = %v, want [r1]", ts.deployer.repoIDs)
	}
	if len(ts.deployer.projIDs) != 0 {
		t.Errorf("source-path deploy ran despite linked repo: %v", ts.deployer.projIDs)
	}
}

func TestDeployProjectFallsBackToSourcePath(t *testing.T) {
	ts := newTestServer()
	ts.registry.projects["p1"] = core.Project{ID: "p1", Name: "blog", SourcePath: "/srv/blog"}

	w := ts.do(http.MethodPost, "/api/v1/projects/p1/deploy", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}
	if len(ts.deployer.projIDs) != 1 || ts.deployer.projIDs[0] != "p1" {
		t.Errorf("project deploys = %v, want [p1]", ts.deployer.projIDs)
	}
}

func TestDeployProjectWithoutSource(t *testing.T) {
	ts := newTestServer()
	ts.registry.projects["p1"] = core.Project{ID: "p1", Name: "blog"}

	w := ts.do(http.MethodPost, "/api/v1/projects/p1/deploy", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", w.Code, w.Body.String())
	}
}

func TestDeployProjectUnknown(t *testing.T) {
	ts := newTestServer()
	w := ts.do(http.MethodPost, "/api/v1/projects/ghost/deploy", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestRestartProjectRestartsAllContainers(t *testing.T) {
	ts := newTestServer()
	ts.registry.projects["p1"] = core.Project{ID: "p1", Name: "blog"}
	ts.registry.apps["a1"] = core.Application{ID: "a1", ProjectID: "p1", ContainerIDs: []string{"c1", "c2"}}
	ts.registry.apps["a2"] = core.Application{ID: "a2", ProjectID: "p1", ContainerIDs: []string{"c3"}}

	w := ts.do(http.MethodPost, "/api/v1/projects/p1/restart", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := decodeMap(t, w)["status"]; got != "restarted" {
		t.Errorf("status = %v, want restarted", got)
	}
	if len(ts.manager.restarted) != 3 {
		t.Errorf("restarted = %v, want 3 containers", ts.manager.restarted)
	}
}

func TestProjectApplications(t *testing.T) {
	ts := newTestServer()
	ts.registry.projects["p1"] = core.Project{ID: "p1"}
	ts.registry.apps["a1"] = core.Application{ID: "a1", ProjectID: "p1"}

	w := ts.do(http.MethodGet, "/api/v1/projects/p1/applications", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if got := len(decodeList(t, w)); got != 1 {
		t.Errorf("applications = %d, want 1", got)
	}
}
