package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dockhand-io/dockhand/internal/acme"
	"github.com/dockhand-io/dockhand/internal/auth"
	"github.com/dockhand-io/dockhand/internal/clock"
	"github.com/dockhand-io/dockhand/internal/config"
	"github.com/dockhand-io/dockhand/internal/docker"
	"github.com/dockhand-io/dockhand/internal/engine"
	"github.com/dockhand-io/dockhand/internal/events"
	"github.com/dockhand-io/dockhand/internal/health"
	"github.com/dockhand-io/dockhand/internal/logging"
	"github.com/dockhand-io/dockhand/internal/manager"
	"github.com/dockhand-io/dockhand/internal/notify"
	"github.com/dockhand-io/dockhand/internal/provider"
	"github.com/dockhand-io/dockhand/internal/registry"
	"github.com/dockhand-io/dockhand/internal/web"
	"github.com/dockhand-io/dockhand/internal/webhook"
)

var version = "dev"

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "configuration error: %v\n", err)
		os.Exit(1)
	}
	log := logging.New(cfg.LogJSON, cfg.LogLevel)

	fmt.Println("dockhand " + version)
	fmt.Println("=============================================")
	fmt.Printf("DOCKER_SOCKET=%s\n", cfg.DockerSocket)
	fmt.Printf("LABEL_PREFIX=%s\n", cfg.LabelPrefix)
	fmt.Printf("PROXY_NETWORK=%s\n", cfg.ProxyNetwork)
	fmt.Printf("ROOT_DOMAIN=%s\n", cfg.RootDomain)
	fmt.Printf("DEPLOY_PATH=%s\n", cfg.DeployPath)
	fmt.Printf("CERTS_PATH=%s\n", cfg.CertsPath)
	fmt.Printf("ACME_STAGING=%t\n", cfg.ACMEStaging)
	fmt.Printf("API_ADDR=%s\n", cfg.APIAddr())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	var tlsCfg *docker.TLSConfig
	if cfg.DockerCACert != "" || cfg.DockerClientCert != "" || cfg.DockerClientKey != "" {
		tlsCfg = &docker.TLSConfig{
			CACert:     cfg.DockerCACert,
			ClientCert: cfg.DockerClientCert,
			ClientKey:  cfg.DockerClientKey,
		}
	}
	client, err := docker.NewClient(cfg.DockerSocket, tlsCfg)
	if err != nil {
		log.Error("failed to create docker client", "error", err)
		os.Exit(1)
	}
	defer client.Close()
	if err := client.Ping(ctx); err != nil {
		log.Error("docker daemon unreachable", "socket", cfg.DockerSocket, "error", err)
		os.Exit(1)
	}

	store, err := registry.OpenStore(cfg.DatabaseURL)
	if err != nil {
		log.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	cache, err := registry.OpenCache(ctx, cfg.RedisURL)
	if err != nil {
		log.Error("failed to connect to redis", "error", err)
		os.Exit(1)
	}

	clk := clock.Real{}
	reg := registry.New(store, cache, log, clk)
	defer reg.Close()

	bus := events.NewBus(log)
	notifier := notify.FromConfig(cfg, log)
	notify.Subscribe(bus, notifier, clk)

	eng := engine.New(client, reg, bus, cfg, log, clk)
	prov := provider.New(client, reg, bus, log, clk, cfg.LabelPrefix, cfg.ProxyNetwork)
	mgr := manager.New(client, reg, log)
	if err := mgr.SyncNetworks(ctx); err != nil {
		log.Warn("network sync failed", "error", err)
	}

	// A failed ACME bootstrap (no outbound network, directory outage) must
	// not take the control plane down. Certificate endpoints answer 503
	// until the next restart.
	issuer := acme.New(reg, log, cfg.ACMEEmail, cfg.CertsPath, cfg.ACMEStaging)
	acmeReady := true
	if err := issuer.Start(ctx); err != nil {
		acmeReady = false
		log.Error("acme start failed, certificate issuing disabled", "error", err)
	}

	checker := health.New(reg, log, clk, cfg.HealthCheckInterval)
	hooks := webhook.New(reg, bus, log)
	authSvc := auth.New(cfg, log, clk)

	deps := web.Dependencies{
		Registry: reg,
		Deployer: eng,
		Manager:  mgr,
		Images:   client,
		Webhooks: hooks,
		Auth:     authSvc,
		Log:      log,
		Version:  version,
		Restart:  func() { os.Exit(1) }, // the supervisor brings the process back up
	}
	if acmeReady {
		deps.Certs = issuer
	}
	srv := web.NewServer(deps)

	go func() {
		if err := srv.ListenAndServe(cfg.APIAddr()); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("api server error", "error", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("dockhand started", "version", version)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return eng.Run(gctx) })
	g.Go(func() error { return prov.Run(gctx) })
	g.Go(func() error { return checker.Run(gctx) })
	if acmeReady {
		renewer := acme.NewRenewer(issuer, reg, bus, log, clk, cfg.RenewalSchedule, cfg.CertRenewalDays)
		g.Go(func() error { return renewer.Run(gctx) })
	}

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("dockhand exited with error", "error", err)
		os.Exit(1)
	}
	log.Info("dockhand shutdown complete")
}
