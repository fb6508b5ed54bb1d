// Package provider watches the container runtime and projects labeled
// containers into Routes, keeping the Registry's container mirror current.
package provider

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/moby/moby/api/types/container"
	mobyevents "github.com/moby/moby/api/types/events"

	"github.com/dockhand-io/dockhand/internal/clock"
	"github.com/dockhand-io/dockhand/internal/core"
	"github.com/dockhand-io/dockhand/internal/events"
	"github.com/dockhand-io/dockhand/internal/logging"
)

// Registry is the subset of registry operations the provider uses.
type Registry interface {
	SetRoute(ctx context.Context, rt *core.Route) error
	DeleteRoute(ctx context.Context, id string) error
	ListRoutes(ctx context.Context) ([]core.Route, error)
	SetContainer(c core.DockerContainer)
	DeleteContainer(id string)
}

// Docker is the runtime surface the provider consumes.
type Docker interface {
	ListContainers(ctx context.Context) ([]container.Summary, error)
	InspectContainer(ctx context.Context, id string) (container.InspectResponse, error)
	WatchEvents(ctx context.Context) (<-chan mobyevents.Message, <-chan error)
}

// Bus publishes routes_updated notifications.
type Bus interface {
	Emit(ctx context.Context, e events.Event)
}

// Provider is the runtime event watcher.
type Provider struct {
	docker   Docker
	registry Registry
	bus      Bus
	log      *logging.Logger
	clock    clock.Clock

	labelPrefix  string
	proxyNetwork string
}

// New creates a Provider. labelPrefix must include its trailing dot.
func New(d Docker, reg Registry, bus Bus, log *logging.Logger, clk clock.Clock, labelPrefix, proxyNetwork string) *Provider {
	return &Provider{
		docker:       d,
		registry:     reg,
		bus:          bus,
		log:          log,
		clock:        clk,
		labelPrefix:  labelPrefix,
		proxyNetwork: proxyNetwork,
	}
}

// Run syncs all running containers once, then consumes the runtime event
// stream until ctx is cancelled. Stream errors trigger a 1-second backoff
// and a fresh subscription.
func (p *Provider) Run(ctx context.Context) error {
	if err := p.SyncAll(ctx); err != nil {
		p.log.Error("container sync failed", "error", err)
	}
	for {
		msgs, errs := p.docker.WatchEvents(ctx)
		err := p.consume(ctx, msgs, errs)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		p.log.Error("event stream interrupted", "error", err)
		if err := p.clock.Sleep(ctx, time.Second); err != nil {
			return err
		}
	}
}

// SyncAll mirrors every running container and its routes.
func (p *Provider) SyncAll(ctx context.Context) error {
	containers, err := p.docker.ListContainers(ctx)
	if err != nil {
		return err
	}
	for _, c := range containers {
		if err := p.processContainer(ctx, c.ID); err != nil {
			p.log.Warn("container sync skipped", "container", core.ShortID(c.ID), "error", err)
		}
	}
	p.log.Info("containers synced", "count", len(containers))
	return nil
}

func (p *Provider) consume(ctx context.Context, msgs <-chan mobyevents.Message, errs <-chan error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-errs:
			return err
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("event stream closed")
			}
			p.handleEvent(ctx, msg)
		}
	}
}

func (p *Provider) handleEvent(ctx context.Context, msg mobyevents.Message) {
	if msg.Type != mobyevents.ContainerEventType || msg.Actor.ID == "" {
		return
	}
	switch msg.Action {
	case mobyevents.ActionStart:
		if err := p.processContainer(ctx, msg.Actor.ID); err != nil {
			p.log.Warn("container inspect failed", "container", core.ShortID(msg.Actor.ID), "error", err)
		}
	case mobyevents.ActionStop, mobyevents.ActionDie, mobyevents.ActionKill:
		// The container may already be gone, so work from the actor id
		// instead of an inspect.
		p.removeContainer(ctx, msg.Actor.ID)
	}
}

// processContainer refreshes the mirror for one container and writes the
// routes its labels declare.
func (p *Provider) processContainer(ctx context.Context, id string) error {
	info, err := p.docker.InspectContainer(ctx, id)
	if err != nil {
		return err
	}
	mirror := mirrorFromInspect(info)
	p.registry.SetContainer(mirror)

	if mirror.Labels[p.labelPrefix+"enable"] != "true" {
		return nil
	}
	addr := PickAddress(mirror, p.proxyNetwork)
	if addr == "" {
		p.log.Warn("container has no usable address", "container", core.ShortID(mirror.ID))
		return nil
	}
	routes := ParseRoutes(mirror.Labels, p.labelPrefix, mirror.ID, addr)
	for i := range routes {
		if err := p.registry.SetRoute(ctx, &routes[i]); err != nil {
			p.log.Error("route write failed", "route", routes[i].ID, "error", err)
		} else {
			p.log.Info("route discovered", "route", routes[i].ID, "host", routes[i].Host, "upstream", addr)
		}
	}
	p.bus.Emit(ctx, events.Event{Name: events.RoutesUpdated, Fields: map[string]any{
		"container_id": mirror.ID,
		"routes":       len(routes),
	}})
	return nil
}

// removeContainer purges every route owned by the container and drops it
// from the mirror.
func (p *Provider) removeContainer(ctx context.Context, id string) {
	prefix := core.ShortID(id) + "-"
	routes, err := p.registry.ListRoutes(ctx)
	if err != nil {
		p.log.Error("route list failed", "error", err)
		return
	}
	removed := 0
	for _, rt := range routes {
		if !strings.HasPrefix(rt.ID, prefix) {
			continue
		}
		if err := p.registry.DeleteRoute(ctx, rt.ID); err != nil {
			p.log.Error("route delete failed", "route", rt.ID, "error", err)
			continue
		}
		removed++
	}
	p.registry.DeleteContainer(id)
	if removed > 0 {
		p.log.Info("routes purged", "container", core.ShortID(id), "count", removed)
	}
	p.bus.Emit(ctx, events.Event{Name: events.RoutesUpdated, Fields: map[string]any{
		"container_id": id,
		"removed":      true,
	}})
}

// mirrorFromInspect flattens an inspect response into the ephemeral mirror
// form. Network names are sorted so downstream address picks stay stable.
func mirrorFromInspect(info container.InspectResponse) core.DockerContainer {
	c := core.DockerContainer{
		ID:   info.ID,
		Name: strings.TrimPrefix(info.Name, "/"),
	}
	if info.Config != nil {
		c.Image = info.Config.Image
		c.Labels = info.Config.Labels
	}
	if info.State != nil {
		c.Status = string(info.State.Status)
	}
	if info.NetworkSettings != nil {
		c.IPAddresses = make(map[string]string)
		for name, ep := range info.NetworkSettings.Networks {
			c.Networks = append(c.Networks, name)
			if ep != nil && ep.IPAddress.IsValid() {
				c.IPAddresses[name] = ep.IPAddress.String()
			}
		}
		sort.Strings(c.Networks)
	}
	return c
}
