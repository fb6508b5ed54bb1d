// Package manager is the operational surface over the container runtime:
// network lifecycle, container start/stop/restart and log tailing. Reads
// serve from the Registry's ephemeral mirror; successful mutations refresh
// the mirror from a fresh inspect.
package manager

import (
	"context"
	"sort"

	"github.com/moby/moby/api/types/network"

	"github.com/dockhand-io/dockhand/internal/core"
	"github.com/dockhand-io/dockhand/internal/docker"
	"github.com/dockhand-io/dockhand/internal/logging"
)

// Docker is the runtime surface the manager uses.
type Docker interface {
	ListNetworks(ctx context.Context) ([]network.Summary, error)
	InspectNetwork(ctx context.Context, id string) (network.Inspect, error)
	CreateNetwork(ctx context.Context, spec docker.NetworkSpec) (string, error)
	RemoveNetwork(ctx context.Context, id string) error
	ConnectNetwork(ctx context.Context, networkID, containerID string, aliases []string) error
	DisconnectNetwork(ctx context.Context, networkID, containerID string, force bool) error
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, timeout int) error
	RestartContainer(ctx context.Context, id string) error
	ContainerLogs(ctx context.Context, id string, tail int) (string, error)
}

// Registry is the mirror surface the manager reads and refreshes.
type Registry interface {
	SetNetwork(n core.DockerNetwork)
	GetNetwork(id string) (core.DockerNetwork, bool)
	ListNetworks() []core.DockerNetwork
	DeleteNetwork(id string)
	GetContainer(id string) (core.DockerContainer, bool)
	ListContainers() []core.DockerContainer
}

// Manager exposes operational network and container actions.
type Manager struct {
	docker   Docker
	registry Registry
	log      *logging.Logger
}

// New creates a Manager.
func New(d Docker, reg Registry, log *logging.Logger) *Manager {
	return &Manager{docker: d, registry: reg, log: log}
}

// SyncNetworks mirrors every runtime network. Individual inspect failures
// are skipped so one broken network cannot block startup.
func (m *Manager) SyncNetworks(ctx context.Context) error {
	networks, err := m.docker.ListNetworks(ctx)
	if err != nil {
		return err
	}
	for _, n := range networks {
		info, err := m.docker.InspectNetwork(ctx, n.ID)
		if err != nil {
			m.log.Warn("network inspect failed", "network", n.Name, "error", err)
			continue
		}
		m.registry.SetNetwork(networkFromInspect(info))
	}
	m.log.Info("networks synced", "count", len(networks))
	return nil
}

// Networks lists the mirrored networks.
func (m *Manager) Networks() []core.DockerNetwork {
	return m.registry.ListNetworks()
}

// Network returns one network, healing the mirror from a live inspect when
// the entry is missing.
func (m *Manager) Network(ctx context.Context, id string) (core.DockerNetwork, error) {
	if n, ok := m.registry.GetNetwork(id); ok {
		return n, nil
	}
	info, err := m.docker.InspectNetwork(ctx, id)
	if err != nil {
		return core.DockerNetwork{}, core.Errorf(core.KindNotFound, "network %s not found", id)
	}
	n := networkFromInspect(info)
	m.registry.SetNetwork(n)
	return n, nil
}

// CreateNetwork creates a runtime network and mirrors it.
func (m *Manager) CreateNetwork(ctx context.Context, spec docker.NetworkSpec) (core.DockerNetwork, error) {
	if spec.Name == "" {
		return core.DockerNetwork{}, core.Errorf(core.KindInvalidInput, "network name is required")
	}
	id, err := m.docker.CreateNetwork(ctx, spec)
	if err != nil {
		return core.DockerNetwork{}, core.Wrap(core.KindRuntimeError, err, "create network")
	}
	info, err := m.docker.InspectNetwork(ctx, id)
	if err != nil {
		return core.DockerNetwork{}, core.Wrap(core.KindRuntimeError, err, "inspect created network")
	}
	n := networkFromInspect(info)
	m.registry.SetNetwork(n)
	m.log.Info("network created", "name", spec.Name, "id", core.ShortID(id))
	return n, nil
}

// DeleteNetwork removes the runtime network and drops it from the mirror.
func (m *Manager) DeleteNetwork(ctx context.Context, id string) error {
	if err := m.docker.RemoveNetwork(ctx, id); err != nil {
		return core.Wrap(core.KindRuntimeError, err, "delete network")
	}
	m.registry.DeleteNetwork(id)
	m.log.Info("network deleted", "id", core.ShortID(id))
	return nil
}

// Connect attaches a container to a network and refreshes the mirror.
func (m *Manager) Connect(ctx context.Context, networkID, containerID string, aliases []string) error {
	if err := m.docker.ConnectNetwork(ctx, networkID, containerID, aliases); err != nil {
		return core.Wrap(core.KindRuntimeError, err, "connect container")
	}
	m.refreshNetwork(ctx, networkID)
	m.log.Info("container connected", "network", core.ShortID(networkID), "container", core.ShortID(containerID))
	return nil
}

// Disconnect detaches a container from a network and refreshes the mirror.
func (m *Manager) Disconnect(ctx context.Context, networkID, containerID string, force bool) error {
	if err := m.docker.DisconnectNetwork(ctx, networkID, containerID, force); err != nil {
		return core.Wrap(core.KindRuntimeError, err, "disconnect container")
	}
	m.refreshNetwork(ctx, networkID)
	m.log.Info("container disconnected", "network", core.ShortID(networkID), "container", core.ShortID(containerID))
	return nil
}

func (m *Manager) refreshNetwork(ctx context.Context, id string) {
	info, err := m.docker.InspectNetwork(ctx, id)
	if err != nil {
		m.log.Warn("network refresh failed", "network", core.ShortID(id), "error", err)
		return
	}
	m.registry.SetNetwork(networkFromInspect(info))
}

// Containers lists the mirrored containers.
func (m *Manager) Containers() []core.DockerContainer {
	return m.registry.ListContainers()
}

// Container returns one mirrored container.
func (m *Manager) Container(id string) (core.DockerContainer, error) {
	c, ok := m.registry.GetContainer(id)
	if !ok {
		return core.DockerContainer{}, core.Errorf(core.KindNotFound, "container %s not found", core.ShortID(id))
	}
	return c, nil
}

// StartContainer starts a container.
func (m *Manager) StartContainer(ctx context.Context, id string) error {
	if err := m.docker.StartContainer(ctx, id); err != nil {
		return core.Wrap(core.KindRuntimeError, err, "start container")
	}
	m.log.Info("container started", "container", core.ShortID(id))
	return nil
}

// StopContainer stops a container with the given grace period in seconds.
func (m *Manager) StopContainer(ctx context.Context, id string, timeout int) error {
	if timeout <= 0 {
		timeout = 10
	}
	if err := m.docker.StopContainer(ctx, id, timeout); err != nil {
		return core.Wrap(core.KindRuntimeError, err, "stop container")
	}
	m.log.Info("container stopped", "container", core.ShortID(id))
	return nil
}

// RestartContainer restarts a container.
func (m *Manager) RestartContainer(ctx context.Context, id string) error {
	if err := m.docker.RestartContainer(ctx, id); err != nil {
		return core.Wrap(core.KindRuntimeError, err, "restart container")
	}
	m.log.Info("container restarted", "container", core.ShortID(id))
	return nil
}

// ContainerLogs tails a container's output.
func (m *Manager) ContainerLogs(ctx context.Context, id string, tail int) (string, error) {
	if tail <= 0 {
		tail = 100
	}
	logs, err := m.docker.ContainerLogs(ctx, id, tail)
	if err != nil {
		return "", core.Wrap(core.KindRuntimeError, err, "container logs")
	}
	return logs, nil
}

// networkFromInspect flattens a network inspect into the mirror form.
func networkFromInspect(info network.Inspect) core.DockerNetwork {
	n := core.DockerNetwork{
		ID:     info.ID,
		Name:   info.Name,
		Driver: info.Driver,
		Scope:  info.Scope,
	}
	if n.Driver == "" {
		n.Driver = "bridge"
	}
	if n.Scope == "" {
		n.Scope = "local"
	}
	if len(info.IPAM.Config) > 0 {
		if subnet := info.IPAM.Config[0].Subnet; subnet.IsValid() {
			n.Subnet = subnet.String()
		}
		if gateway := info.IPAM.Config[0].Gateway; gateway.IsValid() {
			n.Gateway = gateway.String()
		}
	}
	for id := range info.Containers {
		n.Containers = append(n.Containers, id)
	}
	sort.Strings(n.Containers)
	return n
}
