package auth

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestMiddlewarePassesPublicPaths(t *testing.T) {
	svc, _ := newTestService("hunter2")
	var hits []string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits = append(hits, r.URL.Path)
	})
	h := Middleware(svc)(next)

	public := []string{
		"/api/v1/webhook/github",
		"/api/v1/auth/login",
		"/api/v1/health",
		"/metrics",
	}
	for _, path := range public {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest("POST", path, nil))
		if rec.Code != http.StatusOK {
			t.Errorf("%s: status %d, want 200", path, rec.Code)
		}
	}
	if len(hits) != len(public) {
		t.Errorf("handler reached for %v, want all of %v", hits, public)
	}
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	svc, _ := newTestService("hunter2")
	h := Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached without a token")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/v1/projects", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "authentication required") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestMiddlewareRejectsInvalidToken(t *testing.T) {
	svc, _ := newTestService("hunter2")
	h := Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with a bad token")
	}))

	req := httptest.NewRequest("GET", "/api/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer not-a-real-token")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestMiddlewareInjectsAuthenticatedUser(t *testing.T) {
	svc, _ := newTestService("hunter2")
	tok, err := svc.Login("admin", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}

	var user string
	h := Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = UserFrom(r.Context())
	}))

	req := httptest.NewRequest("GET", "/api/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if user != "admin" {
		t.Errorf("UserFrom = %q, want admin", user)
	}
}

func TestMiddlewareRejectsExpiredToken(t *testing.T) {
	svc, clk := newTestService("hunter2")
	tok, err := svc.Login("admin", "hunter2")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	clk.Advance(25 * time.Hour)

	h := Middleware(svc)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler reached with an expired token")
	}))

	req := httptest.NewRequest("GET", "/api/v1/projects", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}
