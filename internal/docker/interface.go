package docker

import (
	"context"
	"io"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/events"
	"github.com/moby/moby/api/types/network"
)

// API is the subset of daemon operations the control plane uses.
// Implemented by Client for production, and by mocks in tests.
type API interface {
	ListContainers(ctx context.Context) ([]container.Summary, error)
	ListAllContainers(ctx context.Context) ([]container.Summary, error)
	InspectContainer(ctx context.Context, id string) (container.InspectResponse, error)
	CreateContainer(ctx context.Context, name string, cfg *container.Config, hostCfg *container.HostConfig, netCfg *network.NetworkingConfig) (string, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, timeout int) error
	RestartContainer(ctx context.Context, id string) error
	RemoveContainer(ctx context.Context, id string) error
	ContainerLogs(ctx context.Context, id string, tail int) (string, error)

	CreateExec(ctx context.Context, id string, cmd []string) (string, error)
	StartExec(ctx context.Context, execID string) error
	InspectExec(ctx context.Context, execID string) (running bool, exitCode int, err error)

	PullImage(ctx context.Context, refStr string) error
	ImageExists(ctx context.Context, refStr string) bool
	BuildImage(ctx context.Context, buildContext io.Reader, tag, dockerfile string) (string, error)
	ListImages(ctx context.Context) ([]ImageSummary, error)
	RemoveImage(ctx context.Context, id string) error
	PruneImages(ctx context.Context) (ImagePruneResult, error)

	ListNetworks(ctx context.Context) ([]network.Summary, error)
	InspectNetwork(ctx context.Context, id string) (network.Inspect, error)
	CreateNetwork(ctx context.Context, spec NetworkSpec) (string, error)
	RemoveNetwork(ctx context.Context, id string) error
	ConnectNetwork(ctx context.Context, networkID, containerID string, aliases []string) error
	DisconnectNetwork(ctx context.Context, networkID, containerID string, force bool) error

	WatchEvents(ctx context.Context) (<-chan events.Message, <-chan error)

	Ping(ctx context.Context) error
	Close() error
}

// Verify Client implements API at compile time.
var _ API = (*Client)(nil)
