// Package deps orders applications by their declared dependencies so a
// project deploys backends before the services that address them.
package deps

import (
	"sort"
	"strings"

	"github.com/dockhand-io/dockhand/internal/core"
)

// Graph is a directed graph of application dependencies.
type Graph struct {
	adj map[string][]string // app id -> ids it depends on
	all map[string]bool
}

// Build constructs the graph from the applications' depends_on lists.
// References to applications outside the given set are ignored; they name
// services managed elsewhere and cannot constrain this deploy's order.
func Build(apps []core.Application) *Graph {
	g := &Graph{
		adj: make(map[string][]string),
		all: make(map[string]bool),
	}

	for _, a := range apps {
		g.all[a.ID] = true
	}

	for _, a := range apps {
		var deps []string
		for _, dep := range a.DependsOn {
			if g.all[dep] {
				deps = append(deps, dep)
			}
		}
		if len(deps) > 0 {
			g.adj[a.ID] = deps
		}
	}

	return g
}

// Sort returns application ids in topological order (dependencies first)
// using Kahn's algorithm. Ties break alphabetically so the order is
// deterministic. A cycle yields an invalid-dependency error naming the
// applications stuck in it.
func (g *Graph) Sort() ([]string, error) {
	inDegree := make(map[string]int)
	reverse := make(map[string][]string) // dep -> dependents

	for id := range g.all {
		inDegree[id] = 0
	}

	for id, deps := range g.adj {
		for _, dep := range deps {
			inDegree[id]++
			reverse[dep] = append(reverse[dep], id)
		}
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	var result []string
	for len(queue) > 0 {
		sort.Strings(queue)
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, dep := range reverse[node] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if len(result) != len(g.all) {
		stuck := make([]string, 0, len(g.all)-len(result))
		placed := make(map[string]bool, len(result))
		for _, id := range result {
			placed[id] = true
		}
		for id := range g.all {
			if !placed[id] {
				stuck = append(stuck, id)
			}
		}
		sort.Strings(stuck)
		return nil, core.Errorf(core.KindInvalidDependency,
			"dependency cycle involving %s", strings.Join(stuck, ", "))
	}

	return result, nil
}

// Order sorts the applications themselves, dependencies first.
func Order(apps []core.Application) ([]core.Application, error) {
	ids, err := Build(apps).Sort()
	if err != nil {
		return nil, err
	}
	byID := make(map[string]core.Application, len(apps))
	for _, a := range apps {
		byID[a.ID] = a
	}
	out := make([]core.Application, 0, len(apps))
	for _, id := range ids {
		out = append(out, byID[id])
	}
	return out, nil
}
