// Package manifest reads the two files a deployable repository carries:
// deploy.yaml for project identity and per-service routing metadata, and
// docker-compose.yml for the service definitions themselves.
package manifest

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/dockhand-io/dockhand/internal/core"
)

// DeployConfig is the deploy.yaml schema.
type DeployConfig struct {
	ID          string                 `yaml:"id"`
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description"`
	Env         map[string]string      `yaml:"env"`
	Services    map[string]ServiceMeta `yaml:"services"`
}

// ServiceMeta is the routing metadata deploy.yaml attaches to one compose
// service. All fields are optional; the planner fills defaults.
type ServiceMeta struct {
	Domain   string `yaml:"domain"`
	Port     int    `yaml:"port"`
	Replicas int    `yaml:"replicas"`
}

// ComposeConfig is the subset of docker-compose.yml the deployment engine
// consumes. Unknown compose keys are ignored.
type ComposeConfig struct {
	Services map[string]ComposeService `yaml:"services"`
}

// ComposeService is one service entry of a compose file.
type ComposeService struct {
	Image       string                   `yaml:"image"`
	Build       *BuildSpec               `yaml:"build"`
	Environment EnvMap                   `yaml:"environment"`
	Volumes     []string                 `yaml:"volumes"`
	Networks    []string                 `yaml:"networks"`
	DependsOn   []string                 `yaml:"depends_on"`
	Ports       []string                 `yaml:"ports"`
	Healthcheck *core.ComposeHealthcheck `yaml:"healthcheck"`
}

// BuildSpec accepts both compose build forms: a bare context string or a
// mapping with context and dockerfile keys.
type BuildSpec struct {
	Context    string `yaml:"context"`
	Dockerfile string `yaml:"dockerfile"`
}

func (b *BuildSpec) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		b.Context, b.Dockerfile = s, ""
		return nil
	case yaml.MappingNode:
		type plain BuildSpec
		var p plain
		if err := value.Decode(&p); err != nil {
			return err
		}
		*b = BuildSpec(p)
		return nil
	}
	return fmt.Errorf("build must be a string or a mapping")
}

// EnvMap accepts both compose environment forms: a mapping or a sequence of
// KEY=VALUE strings. Sequence items without a "=" are dropped.
type EnvMap map[string]string

func (m *EnvMap) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.MappingNode:
		var raw map[string]string
		if err := value.Decode(&raw); err != nil {
			return err
		}
		*m = raw
		return nil
	case yaml.SequenceNode:
		var items []string
		if err := value.Decode(&items); err != nil {
			return err
		}
		out := make(map[string]string, len(items))
		for _, item := range items {
			if k, v, ok := strings.Cut(item, "="); ok {
				out[k] = v
			}
		}
		*m = out
		return nil
	}
	return fmt.Errorf("environment must be a mapping or a sequence of KEY=VALUE strings")
}

// ParseDeploy decodes deploy.yaml. The project id is the one required field;
// the name falls back to it.
func ParseDeploy(data []byte) (*DeployConfig, error) {
	var cfg DeployConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, core.Wrap(core.KindInvalidInput, err, "parse deploy.yaml")
	}
	if cfg.ID == "" {
		return nil, core.Errorf(core.KindInvalidInput, "deploy.yaml: project id is required")
	}
	if cfg.Name == "" {
		cfg.Name = cfg.ID
	}
	return &cfg, nil
}

// ParseCompose decodes docker-compose.yml.
func ParseCompose(data []byte) (*ComposeConfig, error) {
	var cfg ComposeConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, core.Wrap(core.KindInvalidInput, err, "parse docker-compose.yml")
	}
	if len(cfg.Services) == 0 {
		return nil, core.Errorf(core.KindInvalidInput, "docker-compose.yml: no services defined")
	}
	return &cfg, nil
}
