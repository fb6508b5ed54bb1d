package web

import (
	"net/http"
	"testing"

	"github.com/dockhand-io/dockhand/internal/core"
)

func TestListSecretsOmitsValues(t *testing.T) {
	ts := newTestServer()
	ts.registry.secrets["p1-db_password"] = core.Secret{
		ID: "p1-db_password", ProjectID: "p1", Name: "db_password", Value: "hunter2",
	}

	w := ts.do(http.MethodGet, "/api/v1/secrets/p1", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	list := decodeList(t, w)
	if len(list) != 1 {
		t.Fatalf("secrets = %d, want 1", len(list))
	}
	if list[0]["name"] != "db_password" {
		t.Errorf("name = %v", list[0]["name"])
	}
	if _, ok := list[0]["value"]; ok {
		t.Error("secret value leaked through the listing")
	}
}

func TestCreateSecret(t *testing.T) {
	ts := newTestServer()
	w := ts.do(http.MethodPost, "/api/v1/secrets", `{"project_id":"p1","name":"api_key","value":"s3cret"}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", w.Code, w.Body.String())
	}
	if got := decodeMap(t, w)["status"]; got != "created" {
		t.Errorf("status = %v, want created", got)
	}
	stored, ok := ts.registry.secrets[core.SecretID("p1", "api_key")]
	if !ok {
		t.Fatal("secret not stored")
	}
	if stored.Value != "s3cret" {
		t.Errorf("value = %q", stored.Value)
	}
}

func TestCreateSecretValidation(t *testing.T) {
	ts := newTestServer()
	for _, body := range []string{`{"name":"x","value":"v"}`, `{"project_id":"p1","value":"v"}`} {
		w := ts.do(http.MethodPost, "/api/v1/secrets", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("create %s = %d, want 400", body, w.Code)
		}
	}
}

func TestDeleteSecret(t *testing.T) {
	ts := newTestServer()
	ts.registry.secrets["p1-api_key"] = core.Secret{ID: "p1-api_key", ProjectID: "p1", Name: "api_key"}

	w := ts.do(http.MethodDelete, "/api/v1/secrets/p1/api_key", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if _, ok := ts.registry.secrets["p1-api_key"]; ok {
		t.Error("secret still stored")
	}

	w = ts.do(http.MethodDelete, "/api/v1/secrets/p1/api_key", "")
	if w.Code != http.StatusNotFound {
		t.Fatalf("second delete = %d, want 404", w.Code)
	}
}
