package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/glebarez/sqlite"

	"github.com/dockhand-io/dockhand/internal/clock"
	"github.com/dockhand-io/dockhand/internal/core"
	"github.com/dockhand-io/dockhand/internal/logging"
)

func newTestRegistry(t *testing.T) (*Registry, *miniredis.Miniredis, *clock.Fake) {
	t.Helper()
	store, err := openStore(sqlite.Open(":memory:"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	sqlDB, _ := store.db.DB()
	sqlDB.SetMaxOpenConns(1)

	mr := miniredis.RunT(t)
	cache, err := OpenCache(context.Background(), "redis://"+mr.Addr())
	if err != nil {
		t.Fatalf("opening cache: %v", err)
	}

	clk := clock.NewFake()
	reg := New(store, cache, logging.New(false, "error"), clk)
	t.Cleanup(func() { reg.Close() })
	return reg, mr, clk
}

func TestSetRouteDurableAndMirrored(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	rt := core.Route{
		ID:   "app-web",
		Host: "web.example.com",
		Upstreams: []core.Upstream{
			{Address: "10.0.0.2", Port: 8080, Healthy: true},
		},
		Enabled: true,
	}
	if err := reg.SetRoute(ctx, &rt); err != nil {
		t.Fatalf("set: %v", err)
	}

	// Normalize applied.
	if rt.Path != "/" || rt.Protocol != core.ProtocolHTTP || rt.LoadBalancer != core.RoundRobin {
		t.Errorf("defaults not applied: %+v", rt)
	}
	if rt.Upstreams[0].Weight != 1 {
		t.Errorf("upstream weight not defaulted: %+v", rt.Upstreams[0])
	}

	got, err := reg.GetRoute(ctx, "app-web")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Host != "web.example.com" {
		t.Errorf("durable read mismatch: %+v", got)
	}
	if ok, _ := reg.cache.HasRoute(ctx, "app-web"); !ok {
		t.Error("route not mirrored to cache")
	}
	if v, _ := reg.ConfigVersion(ctx); v != 1 {
		t.Errorf("config version = %d, want 1", v)
	}
}

func TestDeleteRoutePurgesProjection(t *testing.T) {
	reg, mr, _ := newTestRegistry(t)
	ctx := context.Background()

	rt := core.Route{ID: "app-web", Host: "web.example.com", Enabled: true}
	if err := reg.SetRoute(ctx, &rt); err != nil {
		t.Fatal(err)
	}
	if err := reg.DeleteRoute(ctx, "app-web"); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if _, err := reg.GetRoute(ctx, "app-web"); !core.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
	if mr.Exists("routes:app-web") {
		t.Error("projection survived delete")
	}
	if members, _ := mr.Members("routes:index:host:web.example.com"); len(members) != 0 {
		t.Errorf("host index survived delete: %v", members)
	}
	if err := reg.DeleteRoute(ctx, "app-web"); !core.IsNotFound(err) {
		t.Errorf("double delete: got %v", err)
	}
}

func TestGetRouteHealsLostProjection(t *testing.T) {
	reg, mr, _ := newTestRegistry(t)
	ctx := context.Background()

	rt := core.Route{ID: "app-web", Host: "web.example.com", Enabled: true}
	if err := reg.SetRoute(ctx, &rt); err != nil {
		t.Fatal(err)
	}

	mr.FlushAll()

	if _, err := reg.GetRoute(ctx, "app-web"); err != nil {
		t.Fatalf("get after cache loss: %v", err)
	}
	if ok, _ := reg.cache.HasRoute(ctx, "app-web"); !ok {
		t.Error("projection not rebuilt on read")
	}
}

func TestCacheFailureToleratedOnWrite(t *testing.T) {
	reg, mr, _ := newTestRegistry(t)
	ctx := context.Background()

	// A dead cache must not fail the durable write.
	mr.Close()

	rt := core.Route{ID: "app-web", Host: "web.example.com", Enabled: true}
	if err := reg.SetRoute(ctx, &rt); err != nil {
		t.Fatalf("set with dead cache: %v", err)
	}
	got, err := reg.store.GetRoute(ctx, "app-web")
	if err != nil || got.ID != "app-web" {
		t.Errorf("durable write lost: %+v, %v", got, err)
	}
}

func TestProjectTimestamps(t *testing.T) {
	reg, _, clk := newTestRegistry(t)
	ctx := context.Background()

	p := core.Project{ID: "blog", Name: "Blog"}
	if err := reg.SetProject(ctx, &p); err != nil {
		t.Fatal(err)
	}
	created := p.CreatedAt
	if created.IsZero() || !p.UpdatedAt.Equal(created) {
		t.Fatalf("first write stamps both: created=%v updated=%v", p.CreatedAt, p.UpdatedAt)
	}

	clk.Advance(time.Hour)
	p.Description = "updated"
	if err := reg.SetProject(ctx, &p); err != nil {
		t.Fatal(err)
	}
	if !p.CreatedAt.Equal(created) {
		t.Errorf("created_at moved on update: %v", p.CreatedAt)
	}
	if !p.UpdatedAt.After(created) {
		t.Errorf("updated_at not bumped: %v", p.UpdatedAt)
	}
}

func TestSetApplicationNormalizes(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	app := core.Application{ID: "web", ProjectID: "blog", Name: "web", Source: core.SourceImage, Image: "nginx:alpine"}
	if err := reg.SetApplication(ctx, &app); err != nil {
		t.Fatal(err)
	}
	if app.Port != 80 || app.Replicas != 1 || app.Status != core.StatusPending {
		t.Errorf("defaults not applied: %+v", app)
	}
	if app.SourceBranch != "main" || app.Dockerfile != "Dockerfile" || app.BuildContext != "." {
		t.Errorf("source defaults not applied: %+v", app)
	}
}

func TestSecretIDAssigned(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	s := core.Secret{ProjectID: "blog", Name: "db_pass", Value: "hunter2"}
	if err := reg.SetSecret(ctx, &s); err != nil {
		t.Fatal(err)
	}
	if s.ID != "blog-db_pass" {
		t.Errorf("id = %q, want blog-db_pass", s.ID)
	}
	got, err := reg.GetSecret(ctx, "blog", "db_pass")
	if err != nil || got.Value != "hunter2" {
		t.Errorf("round trip: %+v, %v", got, err)
	}
}

func TestRecordGitActivity(t *testing.T) {
	reg, _, clk := newTestRegistry(t)
	ctx := context.Background()

	repo := core.GitRepo{ID: "repo-1", Provider: core.ProviderGitHub, URL: "https://github.com/acme/api", Enabled: true}
	if err := reg.SetGitRepo(ctx, &repo); err != nil {
		t.Fatal(err)
	}
	// Normalize fills branch and config file.
	if repo.Branch != "main" || repo.ConfigFile != "deploy.yaml" {
		t.Errorf("defaults not applied: %+v", repo)
	}

	clk.Advance(time.Minute)
	if err := reg.RecordGitActivity(ctx, "repo-1", "abc1234"); err != nil {
		t.Fatal(err)
	}
	got, err := reg.GetGitRepo(ctx, "repo-1")
	if err != nil {
		t.Fatal(err)
	}
	if got.LastCommit != "abc1234" {
		t.Errorf("last commit = %q", got.LastCommit)
	}
	if !got.LastDeployAt.Equal(clk.Now()) {
		t.Errorf("last deploy at = %v, want %v", got.LastDeployAt, clk.Now())
	}
}

func TestCertificateMirroring(t *testing.T) {
	reg, mr, clk := newTestRegistry(t)
	ctx := context.Background()

	cert := core.Certificate{
		Domain:    "web.example.com",
		CertPath:  "/certs/web.example.com/fullchain.pem",
		KeyPath:   "/certs/web.example.com/privkey.pem",
		ExpiresAt: clk.Now().Add(90 * 24 * time.Hour),
		AutoRenew: true,
	}
	if err := reg.SetCertificate(ctx, &cert); err != nil {
		t.Fatal(err)
	}
	if !mr.Exists("certs:web.example.com") {
		t.Error("certificate not mirrored")
	}

	got, err := reg.ExpiringCertificates(ctx, clk.Now().Add(100*24*time.Hour))
	if err != nil || len(got) != 1 {
		t.Fatalf("expiring: %v, %v", got, err)
	}

	if err := reg.DeleteCertificate(ctx, "web.example.com"); err != nil {
		t.Fatal(err)
	}
	if mr.Exists("certs:web.example.com") {
		t.Error("projection survived delete")
	}
}

func TestDockerMirrors(t *testing.T) {
	reg, _, _ := newTestRegistry(t)

	full := "0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef"
	reg.SetContainer(core.DockerContainer{ID: full, Name: "blog-web-v1", Image: "nginx:alpine", Status: "running"})
	reg.SetNetwork(core.DockerNetwork{ID: "net1", Name: "dockhand-proxy", Driver: "bridge"})

	if c, ok := reg.GetContainer(full); !ok || c.Name != "blog-web-v1" {
		t.Errorf("container mirror: %+v, %v", c, ok)
	}
	if _, ok := reg.GetContainer(core.ShortID(full)); ok {
		t.Error("mirror must be keyed by full id, short id resolved")
	}
	if n, ok := reg.GetNetwork("net1"); !ok || n.Name != "dockhand-proxy" {
		t.Errorf("network mirror: %+v, %v", n, ok)
	}
	if len(reg.ListContainers()) != 1 || len(reg.ListNetworks()) != 1 {
		t.Error("list mismatch")
	}

	reg.DeleteContainer(full)
	reg.DeleteNetwork("net1")
	if len(reg.ListContainers()) != 0 || len(reg.ListNetworks()) != 0 {
		t.Error("delete mismatch")
	}
}

func TestChallengePassthrough(t *testing.T) {
	reg, _, _ := newTestRegistry(t)
	ctx := context.Background()

	if err := reg.SetACMEChallenge(ctx, "tok", "tok.auth"); err != nil {
		t.Fatal(err)
	}
	got, err := reg.GetACMEChallenge(ctx, "tok")
	if err != nil || got != "tok.auth" {
		t.Fatalf("get = %q, %v", got, err)
	}
	if err := reg.DeleteACMEChallenge(ctx, "tok"); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.GetACMEChallenge(ctx, "tok"); !core.IsNotFound(err) {
		t.Errorf("expected not-found, got %v", err)
	}
}
