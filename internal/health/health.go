// Package health periodically probes route upstreams and records their
// availability so the data plane can demote dead backends.
package health

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/dockhand-io/dockhand/internal/clock"
	"github.com/dockhand-io/dockhand/internal/core"
	"github.com/dockhand-io/dockhand/internal/logging"
	"github.com/dockhand-io/dockhand/internal/metrics"
)

// Registry is the subset of registry operations the checker uses.
type Registry interface {
	ListRoutes(ctx context.Context) ([]core.Route, error)
	UpdateUpstreamHealth(ctx context.Context, routeID, address string, port int, healthy bool) error
}

// Checker probes upstreams of enabled routes on a fixed cadence.
type Checker struct {
	registry Registry
	log      *logging.Logger
	clock    clock.Clock
	interval time.Duration

	http *http.Client
	dial func(ctx context.Context, network, addr string) (net.Conn, error)
}

// New creates a Checker probing every interval.
func New(reg Registry, log *logging.Logger, clk clock.Clock, interval time.Duration) *Checker {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Checker{
		registry: reg,
		log:      log,
		clock:    clk,
		interval: interval,
		http:     &http.Client{Timeout: 5 * time.Second},
		dial:     (&net.Dialer{}).DialContext,
	}
}

// Run probes once immediately, then on every interval until ctx is
// cancelled.
func (c *Checker) Run(ctx context.Context) error {
	c.CheckAll(ctx)
	for {
		select {
		case <-c.clock.After(c.interval):
			c.CheckAll(ctx)
		case <-ctx.Done():
			c.log.Info("health checker stopped")
			return nil
		}
	}
}

// CheckAll probes every upstream of every enabled route that declares a
// non-none healthcheck, writing each verdict to the registry.
func (c *Checker) CheckAll(ctx context.Context) {
	routes, err := c.registry.ListRoutes(ctx)
	if err != nil {
		c.log.Error("route list failed", "error", err)
		return
	}

	active := 0
	for _, rt := range routes {
		if rt.Enabled {
			active++
		}
	}
	metrics.RoutesActive.Set(float64(active))

	for _, rt := range routes {
		if !rt.Enabled || rt.HealthCheck == nil || rt.HealthCheck.Type == core.HealthNone {
			continue
		}
		for _, up := range rt.Upstreams {
			healthy := c.probe(ctx, rt.HealthCheck, up)
			verdict := "healthy"
			if !healthy {
				verdict = "unhealthy"
			}
			metrics.HealthProbes.WithLabelValues(verdict).Inc()
			if err := c.registry.UpdateUpstreamHealth(ctx, rt.ID, up.Address, up.Port, healthy); err != nil {
				c.log.Error("health verdict write failed", "route", rt.ID, "upstream", up.Address, "error", err)
			}
		}
	}
}

// probe runs one check. HTTP considers any status below 500 healthy; TCP
// considers a completed dial healthy. Unknown check types pass.
func (c *Checker) probe(ctx context.Context, hc *core.HealthCheck, up core.Upstream) bool {
	timeout := time.Duration(hc.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch hc.Type {
	case core.HealthHTTP:
		path := hc.Path
		if path == "" {
			path = "/"
		}
		url := fmt.Sprintf("http://%s%s", net.JoinHostPort(up.Address, strconv.Itoa(up.Port)), path)
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return false
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)
		return resp.StatusCode < 500
	case core.HealthTCP:
		conn, err := c.dial(ctx, "tcp", net.JoinHostPort(up.Address, strconv.Itoa(up.Port)))
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
	return true
}
