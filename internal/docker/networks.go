package docker

import (
	"context"
	"net/netip"

	"github.com/moby/moby/api/types/network"
	"github.com/moby/moby/client"
)

// NetworkSpec holds the create parameters exposed through the API.
type NetworkSpec struct {
	Name     string
	Driver   string
	Subnet   string
	Gateway  string
	Internal bool
}

// ListNetworks returns all networks known to the daemon.
func (c *Client) ListNetworks(ctx context.Context) ([]network.Summary, error) {
	result, err := c.api.NetworkList(ctx, client.NetworkListOptions{})
	if err != nil {
		return nil, err
	}
	return result.Items, nil
}

// InspectNetwork returns full network details by id or name.
func (c *Client) InspectNetwork(ctx context.Context, id string) (network.Inspect, error) {
	result, err := c.api.NetworkInspect(ctx, id, client.NetworkInspectOptions{})
	if err != nil {
		return network.Inspect{}, err
	}
	return result.Network, nil
}

// CreateNetwork creates a network and returns its full id. Driver defaults
// to bridge.
func (c *Client) CreateNetwork(ctx context.Context, spec NetworkSpec) (string, error) {
	if spec.Driver == "" {
		spec.Driver = "bridge"
	}
	opts := client.NetworkCreateOptions{
		Driver:   spec.Driver,
		Internal: spec.Internal,
	}
	if spec.Subnet != "" {
		subnet, err := netip.ParsePrefix(spec.Subnet)
		if err != nil {
			return "", err
		}
		cfg := network.IPAMConfig{Subnet: subnet}
		if spec.Gateway != "" {
			gateway, err := netip.ParseAddr(spec.Gateway)
			if err != nil {
				return "", err
			}
			cfg.Gateway = gateway
		}
		opts.IPAM = &network.IPAM{Config: []network.IPAMConfig{cfg}}
	}
	resp, err := c.api.NetworkCreate(ctx, spec.Name, opts)
	if err != nil {
		return "", err
	}
	return resp.ID, nil
}

// RemoveNetwork removes a network by id.
func (c *Client) RemoveNetwork(ctx context.Context, id string) error {
	_, err := c.api.NetworkRemove(ctx, id, client.NetworkRemoveOptions{})
	return err
}

// ConnectNetwork attaches a container to a network, optionally under
// additional DNS aliases.
func (c *Client) ConnectNetwork(ctx context.Context, networkID, containerID string, aliases []string) error {
	opts := client.NetworkConnectOptions{Container: containerID}
	if len(aliases) > 0 {
		opts.EndpointConfig = &network.EndpointSettings{Aliases: aliases}
	}
	_, err := c.api.NetworkConnect(ctx, networkID, opts)
	return err
}

// DisconnectNetwork detaches a container from a network.
func (c *Client) DisconnectNetwork(ctx context.Context, networkID, containerID string, force bool) error {
	_, err := c.api.NetworkDisconnect(ctx, networkID, client.NetworkDisconnectOptions{
		Container: containerID,
		Force:     force,
	})
	return err
}
