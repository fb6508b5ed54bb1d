package web

import (
	"net/http"
	"strings"
	"testing"

	"github.com/dockhand-io/dockhand/internal/core"
)

func TestCreateRouteDefaults(t *testing.T) {
	ts := newTestServer()
	w := ts.do(http.MethodPost, "/api/v1/routes", `{"host":"app.example.com"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	m := decodeMap(t, w)

	id, _ := m["id"].(string)
	if !strings.HasPrefix(id, "manual-") {
		t.Errorf("id = %q, want manual- prefix", id)
	}
	if m["enabled"] != true {
		t.Error("route should start enabled")
	}
	if m["path"] != "/" {
		t.Errorf("path = %v, want /", m["path"])
	}
	if m["protocol"] != "http" {
		t.Errorf("protocol = %v, want http", m["protocol"])
	}
	if m["load_balancer"] != "round_robin" {
		t.Errorf("load_balancer = %v, want round_robin", m["load_balancer"])
	}
	if _, ok := ts.registry.routes[id]; !ok {
		t.Error("route not stored")
	}
}

func TestCreateRouteRequiresHost(t *testing.T) {
	ts := newTestServer()
	w := ts.do(http.MethodPost, "/api/v1/routes", `{"path":"/x"}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestCreateRouteConflict(t *testing.T) {
	ts := newTestServer()
	ts.registry.routes["web"] = core.Route{ID: "web", Host: "a.example.com"}

	w := ts.do(http.MethodPost, "/api/v1/routes", `{"id":"web","host":"b.example.com"}`)
	if w.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", w.Code)
	}
}

func TestCreateRouteRejectsBadJSON(t *testing.T) {
	ts := newTestServer()
	w := ts.do(http.MethodPost, "/api/v1/routes", `{"host":`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestGetRouteNotFound(t *testing.T) {
	ts := newTestServer()
	w := ts.do(http.MethodGet, "/api/v1/routes/missing", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestUpdateRoutePartial(t *testing.T) {
	ts := newTestServer()
	ts.registry.routes["web"] = core.Route{
		ID:        "web",
		Host:      "app.example.com",
		Path:      "/api",
		Protocol:  core.ProtocolHTTP,
		Upstreams: []core.Upstream{{Address: "10.0.0.2", Port: 8080, Weight: 1}},
		Enabled:   true,
	}

	w := ts.do(http.MethodPut, "/api/v1/routes/web", `{"enabled":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	got := ts.registry.routes["web"]
	if got.Enabled {
		t.Error("enabled not cleared")
	}
	if got.Host != "app.example.com" || got.Path != "/api" {
		t.Errorf("untouched fields changed: host=%s path=%s", got.Host, got.Path)
	}
	if len(got.Upstreams) != 1 {
		t.Errorf("upstreams changed: %v", got.Upstreams)
	}
}

func TestUpdateRouteReplacesUpstreams(t *testing.T) {
	ts := newTestServer()
	ts.registry.routes["web"] = core.Route{
		ID:        "web",
		Host:      "app.example.com",
		Upstreams: []core.Upstream{{Address: "10.0.0.2", Port: 8080, Weight: 1}},
		Enabled:   true,
	}

	body := `{"upstreams":[{"address":"10.0.0.3","port":9090},{"address":"10.0.0.4","port":9090}]}`
	w := ts.do(http.MethodPut, "/api/v1/routes/web", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	got := ts.registry.routes["web"]
	if len(got.Upstreams) != 2 {
		t.Fatalf("upstreams = %d, want 2", len(got.Upstreams))
	}
	if got.Upstreams[0].Address != "10.0.0.3" {
		t.Errorf("upstream[0] = %s, want 10.0.0.3", got.Upstreams[0].Address)
	}
	// Normalize backfills the default weight on replaced upstreams.
	if got.Upstreams[0].Weight != 1 {
		t.Errorf("weight = %d, want 1", got.Upstreams[0].Weight)
	}
}

func TestDeleteRoute(t *testing.T) {
	ts := newTestServer()
	ts.registry.routes["web"] = core.Route{ID: "web", Host: "app.example.com"}

	w := ts.do(http.MethodDelete, "/api/v1/routes/web", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("status = %d, want 204", w.Code)
	}
	if _, ok := ts.registry.routes["web"]; ok {
		t.Error("route still stored")
	}

	w = ts.do(http.MethodDelete, "/api/v1/routes/web", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d, want 404", w.Code)
	}
}

func TestListRoutesEmpty(t *testing.T) {
	ts := newTestServer()
	w := ts.do(http.MethodGet, "/api/v1/routes", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestListRoutesFiltersByHost(t *testing.T) {
	ts := newTestServer()
	ts.registry.routes["web"] = core.Route{ID: "web", Host: "app.example.com"}
	ts.registry.routes["api"] = core.Route{ID: "api", Host: "api.example.com"}

	w := ts.do(http.MethodGet, "/api/v1/routes?host=api.example.com", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	got := decodeList(t, w)
	if len(got) != 1 {
		t.Fatalf("routes = %d, want 1", len(got))
	}
	if got[0]["id"] != "api" {
		t.Errorf("id = %v, want api", got[0]["id"])
	}

	w = ts.do(http.MethodGet, "/api/v1/routes?host=nowhere.example.com", "")
	if body := strings.TrimSpace(w.Body.String()); body != "[]" {
		t.Errorf("body = %s, want []", body)
	}
}

func TestMiddlewareLifecycle(t *testing.T) {
	ts := newTestServer()

	w := ts.do(http.MethodPost, "/api/v1/middlewares", `{"name":"rate","type":"rate_limit","config":{"rps":10}}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("create = %d, want 201: %s", w.Code, w.Body.String())
	}

	w = ts.do(http.MethodGet, "/api/v1/middlewares/rate", "")
	if w.Code != http.StatusOK {
		t.Fatalf("get = %d, want 200", w.Code)
	}
	if got := decodeMap(t, w)["type"]; got != "rate_limit" {
		t.Errorf("type = %v, want rate_limit", got)
	}

	w = ts.do(http.MethodDelete, "/api/v1/middlewares/rate", "")
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete = %d, want 204", w.Code)
	}
}

func TestCreateMiddlewareRequiresNameAndType(t *testing.T) {
	ts := newTestServer()
	for _, body := range []string{`{"type":"gzip"}`, `{"name":"gz"}`} {
		w := ts.do(http.MethodPost, "/api/v1/middlewares", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("create %s = %d, want 400", body, w.Code)
		}
	}
}
