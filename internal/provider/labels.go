package provider

import (
	"sort"
	"strconv"
	"strings"

	"github.com/dockhand-io/dockhand/internal/core"
)

// ParseRoutes extracts edge routes from a container's labels. Labels of the
// form {prefix}http.routers.<router>.<prop> are grouped per router; each
// group with a host yields one Route with id "{short_id}-{router}". All
// routes point at the single given upstream address.
//
// Recognized props: host (required, backticks stripped), port (default 80),
// path (default "/"), tls, middlewares (comma-separated), strip_path,
// preserve_host (default true).
func ParseRoutes(labels map[string]string, labelPrefix, containerID, address string) []core.Route {
	prefix := labelPrefix + "http.routers."
	routers := make(map[string]map[string]string)
	for key, value := range labels {
		rest, ok := strings.CutPrefix(key, prefix)
		if !ok {
			continue
		}
		name, prop, ok := strings.Cut(rest, ".")
		if !ok {
			continue
		}
		if routers[name] == nil {
			routers[name] = make(map[string]string)
		}
		routers[name][prop] = value
	}

	names := make([]string, 0, len(routers))
	for name := range routers {
		names = append(names, name)
	}
	sort.Strings(names)

	short := core.ShortID(containerID)
	var routes []core.Route
	for _, name := range names {
		props := routers[name]
		host := strings.TrimSpace(strings.Trim(props["host"], "`"))
		if host == "" {
			continue
		}
		port := 80
		if v, err := strconv.Atoi(props["port"]); err == nil && v > 0 {
			port = v
		}
		protocol := core.ProtocolHTTP
		if strings.EqualFold(props["tls"], "true") {
			protocol = core.ProtocolHTTPS
		}
		var middlewares []string
		for _, m := range strings.Split(props["middlewares"], ",") {
			if m = strings.TrimSpace(m); m != "" {
				middlewares = append(middlewares, m)
			}
		}
		rt := core.Route{
			ID:       short + "-" + name,
			Host:     host,
			Path:     props["path"],
			Protocol: protocol,
			Upstreams: []core.Upstream{{
				Address:     address,
				Port:        port,
				Weight:      1,
				Healthy:     true,
				ContainerID: containerID,
			}},
			Middlewares:  middlewares,
			StripPath:    strings.EqualFold(props["strip_path"], "true"),
			PreserveHost: !strings.EqualFold(props["preserve_host"], "false"),
			Enabled:      true,
		}
		rt.Normalize()
		routes = append(routes, rt)
	}
	return routes
}

// PickAddress chooses the IP the data plane should dial for a container:
// the proxy-network address when attached, otherwise the first connected
// network that has one. Empty when the container has no usable address.
func PickAddress(c core.DockerContainer, proxyNetwork string) string {
	if ip := c.IPAddresses[proxyNetwork]; ip != "" {
		return ip
	}
	for _, name := range c.Networks {
		if ip := c.IPAddresses[name]; ip != "" {
			return ip
		}
	}
	return ""
}
