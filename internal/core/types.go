// Package core holds the domain model shared by every subsystem: projects,
// applications, deployments, routes, certificates, git repositories, and the
// ephemeral runtime mirrors, plus the error kinds the control plane
// distinguishes.
package core

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"
)

// Protocol is the wire protocol a Route speaks to its upstreams.
type Protocol string

const (
	ProtocolHTTP  Protocol = "http"
	ProtocolHTTPS Protocol = "https"
	ProtocolTCP   Protocol = "tcp"
	ProtocolUDP   Protocol = "udp"
)

// LoadBalancer selects how a Route spreads traffic across upstreams.
type LoadBalancer string

const (
	RoundRobin LoadBalancer = "round_robin"
	LeastConn  LoadBalancer = "least_conn"
	IPHash     LoadBalancer = "ip_hash"
	Random     LoadBalancer = "random"
)

// HealthCheckType selects the probe a Route's upstreams receive.
type HealthCheckType string

const (
	HealthHTTP HealthCheckType = "http"
	HealthTCP  HealthCheckType = "tcp"
	HealthNone HealthCheckType = "none"
)

// DeploySource says where an Application's image comes from.
type DeploySource string

const (
	SourceGit     DeploySource = "git"
	SourceImage   DeploySource = "image"
	SourceCompose DeploySource = "compose"
)

// DeployStatus is the lifecycle state of an Application or Deployment.
type DeployStatus string

const (
	StatusPending   DeployStatus = "pending"
	StatusBuilding  DeployStatus = "building"
	StatusDeploying DeployStatus = "deploying"
	StatusRunning   DeployStatus = "running"
	StatusStopped   DeployStatus = "stopped"
	StatusFailed    DeployStatus = "failed"
)

// GitProvider identifies the source-control host of a GitRepo.
type GitProvider string

const (
	ProviderGitHub    GitProvider = "github"
	ProviderGitLab    GitProvider = "gitlab"
	ProviderGitea     GitProvider = "gitea"
	ProviderBitbucket GitProvider = "bitbucket"
)

// Project groups related applications sharing environment and lifecycle.
type Project struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description,omitempty"`
	SourcePath  string            `json:"source_path,omitempty"`
	Env         map[string]string `json:"env,omitempty"`
	CreatedAt   time.Time         `json:"created_at,omitzero"`
	UpdatedAt   time.Time         `json:"updated_at,omitzero"`
}

// Application is the declared desired state of one service.
type Application struct {
	ID           string              `json:"id"`
	ProjectID    string              `json:"project_id"`
	Name         string              `json:"name"`
	Source       DeploySource        `json:"source"`
	SourceURL    string              `json:"source_url,omitempty"`
	SourceBranch string              `json:"source_branch,omitempty"`
	Dockerfile   string              `json:"dockerfile,omitempty"`
	BuildContext string              `json:"build_context,omitempty"`
	Image        string              `json:"image,omitempty"`
	ComposeFile  string              `json:"compose_file,omitempty"`
	Domain       string              `json:"domain,omitempty"`
	Port         int                 `json:"port"`
	Env          map[string]string   `json:"env,omitempty"`
	Volumes      []string            `json:"volumes,omitempty"`
	Networks     []string            `json:"networks,omitempty"`
	Replicas     int                 `json:"replicas"`
	DependsOn    []string            `json:"depends_on,omitempty"`
	Healthcheck  *ComposeHealthcheck `json:"healthcheck,omitempty"`
	Status       DeployStatus        `json:"status"`
	ContainerIDs []string            `json:"container_ids,omitempty"`
	CreatedAt    time.Time           `json:"created_at,omitzero"`
	UpdatedAt    time.Time           `json:"updated_at,omitzero"`
}

// Normalize fills zero-valued optional fields with their defaults.
func (a *Application) Normalize() {
	if a.SourceBranch == "" {
		a.SourceBranch = "main"
	}
	if a.Dockerfile == "" {
		a.Dockerfile = "Dockerfile"
	}
	if a.BuildContext == "" {
		a.BuildContext = "."
	}
	if a.Port == 0 {
		a.Port = 80
	}
	if a.Replicas == 0 {
		a.Replicas = 1
	}
	if a.Status == "" {
		a.Status = StatusPending
	}
}

// Deployment is the immutable record of one attempt to realize an
// Application at a specific version. Versions are monotonic per app,
// starting at 1.
type Deployment struct {
	ID           string       `json:"id"`
	AppID        string       `json:"app_id"`
	Version      int          `json:"version"`
	Status       DeployStatus `json:"status"`
	Image        string       `json:"image,omitempty"`
	ContainerIDs []string     `json:"container_ids,omitempty"`
	Logs         string       `json:"logs,omitempty"`
	StartedAt    time.Time    `json:"started_at,omitzero"`
	FinishedAt   time.Time    `json:"finished_at,omitzero"`
}

// DeploymentID builds the canonical deployment id for an app version.
func DeploymentID(appID string, version int) string {
	return fmt.Sprintf("%s-v%d", appID, version)
}

// Upstream is one reachable backend endpoint of a Route.
type Upstream struct {
	Address     string `json:"address"`
	Port        int    `json:"port"`
	Weight      int    `json:"weight"`
	Healthy     bool   `json:"healthy"`
	ContainerID string `json:"container_id,omitempty"`
}

// HealthCheck configures the periodic probe of a Route's upstreams.
type HealthCheck struct {
	Type               HealthCheckType `json:"type"`
	Path               string          `json:"path,omitempty"`
	Interval           int             `json:"interval"`
	Timeout            int             `json:"timeout"`
	HealthyThreshold   int             `json:"healthy_threshold"`
	UnhealthyThreshold int             `json:"unhealthy_threshold"`
}

// Normalize fills zero-valued fields with their defaults.
func (h *HealthCheck) Normalize() {
	if h.Type == "" {
		h.Type = HealthHTTP
	}
	if h.Path == "" {
		h.Path = "/"
	}
	if h.Interval == 0 {
		h.Interval = 10
	}
	if h.Timeout == 0 {
		h.Timeout = 5
	}
	if h.HealthyThreshold == 0 {
		h.HealthyThreshold = 2
	}
	if h.UnhealthyThreshold == 0 {
		h.UnhealthyThreshold = 3
	}
}

// Route maps a virtual host (and path) to a set of upstream backends.
// (host, path) is the primary lookup key; id is unique.
type Route struct {
	ID           string       `json:"id"`
	Host         string       `json:"host"`
	Path         string       `json:"path"`
	Protocol     Protocol     `json:"protocol"`
	Upstreams    []Upstream   `json:"upstreams"`
	Middlewares  []string     `json:"middlewares,omitempty"`
	LoadBalancer LoadBalancer `json:"load_balancer"`
	HealthCheck  *HealthCheck `json:"health_check,omitempty"`
	StripPath    bool         `json:"strip_path"`
	PreserveHost bool         `json:"preserve_host"`
	Enabled      bool         `json:"enabled"`
}

// Normalize fills zero-valued fields with their defaults. Boolean defaults
// (enabled, preserve_host) are the caller's responsibility since absent and
// false are indistinguishable here.
func (r *Route) Normalize() {
	if r.Path == "" {
		r.Path = "/"
	}
	if r.Protocol == "" {
		r.Protocol = ProtocolHTTP
	}
	if r.LoadBalancer == "" {
		r.LoadBalancer = RoundRobin
	}
	for i := range r.Upstreams {
		if r.Upstreams[i].Weight == 0 {
			r.Upstreams[i].Weight = 1
		}
	}
}

// AppRouteID is the id of the Route the deployment engine maintains for an
// application.
func AppRouteID(appID string) string {
	return "app-" + appID
}

// Certificate records an issued TLS certificate for one domain.
type Certificate struct {
	Domain    string    `json:"domain"`
	CertPath  string    `json:"cert_path"`
	KeyPath   string    `json:"key_path"`
	ExpiresAt time.Time `json:"expires_at"`
	AutoRenew bool      `json:"auto_renew"`
}

// GitRepo is a registered source repository that can trigger deploys via
// webhook. (url, branch) is unique.
type GitRepo struct {
	ID            string      `json:"id"`
	Provider      GitProvider `json:"provider"`
	URL           string      `json:"url"`
	Branch        string      `json:"branch"`
	ConfigFile    string      `json:"config_file"`
	WebhookSecret string      `json:"webhook_secret,omitempty"`
	ProjectID     string      `json:"project_id,omitempty"`
	LastCommit    string      `json:"last_commit,omitempty"`
	LastDeployAt  time.Time   `json:"last_deploy_at,omitzero"`
	Enabled       bool        `json:"enabled"`
	CreatedAt     time.Time   `json:"created_at,omitzero"`
}

// Normalize fills zero-valued optional fields with their defaults.
func (r *GitRepo) Normalize() {
	if r.Branch == "" {
		r.Branch = "main"
	}
	if r.ConfigFile == "" {
		r.ConfigFile = "deploy.yaml"
	}
}

// Secret is a named value scoped to a project, referenced from env values
// as ${name}.
type Secret struct {
	ID        string    `json:"id"`
	ProjectID string    `json:"project_id"`
	Name      string    `json:"name"`
	Value     string    `json:"value,omitempty"`
	CreatedAt time.Time `json:"created_at,omitzero"`
}

// SecretID builds the canonical secret id.
func SecretID(projectID, name string) string {
	return projectID + "-" + name
}

// Middleware is a named, reusable request-processing step referenced by
// Routes.
type Middleware struct {
	Name   string         `json:"name"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// DockerNetwork mirrors a runtime network. Ephemeral: rebuilt from the
// runtime on restart.
type DockerNetwork struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Driver     string   `json:"driver"`
	Scope      string   `json:"scope,omitempty"`
	Subnet     string   `json:"subnet,omitempty"`
	Gateway    string   `json:"gateway,omitempty"`
	Containers []string `json:"containers,omitempty"`
}

// DockerContainer mirrors a runtime container. Keyed by the full id;
// ephemeral like DockerNetwork.
type DockerContainer struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Image       string            `json:"image"`
	Status      string            `json:"status"`
	Labels      map[string]string `json:"labels,omitempty"`
	Networks    []string          `json:"networks,omitempty"`
	IPAddresses map[string]string `json:"ip_addresses,omitempty"`
}

// ShortID truncates a container id to the 12-char display form. Full ids
// stay canonical everywhere else.
func ShortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

// NewID returns a prefixed random identifier, e.g. NewID("app") -> "app-9f86d081".
func NewID(prefix string) string {
	u := uuid.New()
	return prefix + "-" + hex.EncodeToString(u[:4])
}

// ComposeHealthcheck mirrors a compose-file healthcheck block attached to an
// Application. It gates rolling deploys; Routes carry their own HealthCheck.
type ComposeHealthcheck struct {
	Test        HealthcheckTest `json:"test" yaml:"test"`
	Interval    Seconds         `json:"interval,omitempty" yaml:"interval,omitempty"`
	Timeout     Seconds         `json:"timeout,omitempty" yaml:"timeout,omitempty"`
	Retries     int             `json:"retries,omitempty" yaml:"retries,omitempty"`
	StartPeriod Seconds         `json:"start_period,omitempty" yaml:"start_period,omitempty"`
}

// HealthcheckTest is the command of a compose healthcheck: either a plain
// string run under `sh -c`, or a vector in docker's ["CMD", ...] /
// ["CMD-SHELL", ...] form. Exactly one of Shell and Command is set.
type HealthcheckTest struct {
	Shell   string
	Command []string
}

// Argv resolves the exec form of the test: CMD vectors run directly,
// CMD-SHELL and string tests run under `sh -c`.
func (t HealthcheckTest) Argv() []string {
	if t.Shell != "" {
		return []string{"sh", "-c", t.Shell}
	}
	if len(t.Command) == 0 {
		return nil
	}
	switch t.Command[0] {
	case "CMD":
		return t.Command[1:]
	case "CMD-SHELL":
		return []string{"sh", "-c", strings.Join(t.Command[1:], " ")}
	default:
		return t.Command
	}
}

// IsZero reports whether no test is declared.
func (t HealthcheckTest) IsZero() bool {
	return t.Shell == "" && len(t.Command) == 0
}

func (t HealthcheckTest) MarshalJSON() ([]byte, error) {
	if t.Command != nil {
		return json.Marshal(t.Command)
	}
	return json.Marshal(t.Shell)
}

func (t *HealthcheckTest) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		t.Shell, t.Command = s, nil
		return nil
	}
	var v []string
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("healthcheck test must be a string or a string array")
	}
	t.Command, t.Shell = v, ""
	return nil
}

func (t HealthcheckTest) MarshalYAML() (any, error) {
	if t.Command != nil {
		return t.Command, nil
	}
	return t.Shell, nil
}

func (t *HealthcheckTest) UnmarshalYAML(value *yaml.Node) error {
	switch value.Kind {
	case yaml.ScalarNode:
		var s string
		if err := value.Decode(&s); err != nil {
			return err
		}
		t.Shell, t.Command = s, nil
		return nil
	case yaml.SequenceNode:
		var v []string
		if err := value.Decode(&v); err != nil {
			return err
		}
		t.Command, t.Shell = v, ""
		return nil
	}
	return fmt.Errorf("healthcheck test must be a string or a sequence")
}

// Seconds is a whole-second duration that also accepts compose-style
// strings like "5s" when decoding.
type Seconds int

// Duration converts to a time.Duration.
func (s Seconds) Duration() time.Duration {
	return time.Duration(s) * time.Second
}

func (s Seconds) MarshalJSON() ([]byte, error) {
	return json.Marshal(int(s))
}

func (s *Seconds) UnmarshalJSON(data []byte) error {
	var n int
	if err := json.Unmarshal(data, &n); err == nil {
		*s = Seconds(n)
		return nil
	}
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return fmt.Errorf("duration must be a number or a string")
	}
	return s.parse(str)
}

func (s *Seconds) UnmarshalYAML(value *yaml.Node) error {
	var n int
	if err := value.Decode(&n); err == nil {
		*s = Seconds(n)
		return nil
	}
	var str string
	if err := value.Decode(&str); err != nil {
		return fmt.Errorf("duration must be a number or a string")
	}
	return s.parse(str)
}

func (s *Seconds) parse(str string) error {
	if n, err := strconv.Atoi(str); err == nil {
		*s = Seconds(n)
		return nil
	}
	d, err := time.ParseDuration(str)
	if err != nil {
		return fmt.Errorf("invalid duration %q", str)
	}
	*s = Seconds(int(d.Seconds()))
	return nil
}
