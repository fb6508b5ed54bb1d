package registry

import (
	"time"

	"github.com/dockhand-io/dockhand/internal/core"
)

// Row models for the durable layer. Scalar fields get real columns so the
// secondary-index queries stay SQL; nested structures are stored as JSON
// via the gorm serializer.

type projectRow struct {
	ID          string `gorm:"primaryKey"`
	Name        string `gorm:"index"`
	Description string
	SourcePath  string
	Env         map[string]string `gorm:"serializer:json"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (projectRow) TableName() string { return "projects" }

type applicationRow struct {
	ID           string `gorm:"primaryKey"`
	ProjectID    string `gorm:"index"`
	Name         string
	Source       string
	SourceURL    string
	SourceBranch string
	Dockerfile   string
	BuildContext string
	Image        string
	ComposeFile  string
	Domain       string
	Port         int
	Env          map[string]string        `gorm:"serializer:json"`
	Volumes      []string                 `gorm:"serializer:json"`
	Networks     []string                 `gorm:"serializer:json"`
	Replicas     int
	DependsOn    []string                 `gorm:"serializer:json"`
	Healthcheck  *core.ComposeHealthcheck `gorm:"serializer:json"`
	Status       string
	ContainerIDs []string                 `gorm:"serializer:json"`
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (applicationRow) TableName() string { return "applications" }

type deploymentRow struct {
	ID           string `gorm:"primaryKey"`
	AppID        string `gorm:"index"`
	Version      int
	Status       string
	Image        string
	ContainerIDs []string `gorm:"serializer:json"`
	Logs         string   `gorm:"type:text"`
	StartedAt    time.Time
	FinishedAt   time.Time
}

func (deploymentRow) TableName() string { return "deployments" }

type routeRow struct {
	ID           string `gorm:"primaryKey"`
	Host         string `gorm:"index"`
	Path         string
	Protocol     string
	Upstreams    []core.Upstream   `gorm:"serializer:json"`
	Middlewares  []string          `gorm:"serializer:json"`
	LoadBalancer string
	HealthCheck  *core.HealthCheck `gorm:"serializer:json"`
	StripPath    bool
	PreserveHost bool
	Enabled      bool
}

func (routeRow) TableName() string { return "routes" }

type certificateRow struct {
	Domain    string `gorm:"primaryKey"`
	CertPath  string
	KeyPath   string
	ExpiresAt time.Time `gorm:"index"`
	AutoRenew bool
}

func (certificateRow) TableName() string { return "certificates" }

type gitRepoRow struct {
	ID            string `gorm:"primaryKey"`
	Provider      string
	URL           string `gorm:"uniqueIndex:idx_repo_url_branch"`
	Branch        string `gorm:"uniqueIndex:idx_repo_url_branch"`
	ConfigFile    string
	WebhookSecret string
	ProjectID     string
	LastCommit    string
	LastDeployAt  time.Time
	Enabled       bool
	CreatedAt     time.Time
}

func (gitRepoRow) TableName() string { return "git_repos" }

type secretRow struct {
	ID        string `gorm:"primaryKey"`
	ProjectID string `gorm:"index"`
	Name      string
	Value     string
	CreatedAt time.Time
}

func (secretRow) TableName() string { return "secrets" }

type middlewareRow struct {
	Name   string         `gorm:"primaryKey"`
	Type   string
	Config map[string]any `gorm:"serializer:json"`
}

func (middlewareRow) TableName() string { return "middlewares" }

func toProjectRow(p core.Project) projectRow {
	return projectRow{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		SourcePath:  p.SourcePath,
		Env:         p.Env,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func (r projectRow) toProject() core.Project {
	return core.Project{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		SourcePath:  r.SourcePath,
		Env:         r.Env,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

func toApplicationRow(a core.Application) applicationRow {
	return applicationRow{
		ID:           a.ID,
		ProjectID:    a.ProjectID,
		Name:         a.Name,
		Source:       string(a.Source),
		SourceURL:    a.SourceURL,
		SourceBranch: a.SourceBranch,
		Dockerfile:   a.Dockerfile,
		BuildContext: a.BuildContext,
		Image:        a.Image,
		ComposeFile:  a.ComposeFile,
		Domain:       a.Domain,
		Port:         a.Port,
		Env:          a.Env,
		Volumes:      a.Volumes,
		Networks:     a.Networks,
		Replicas:     a.Replicas,
		DependsOn:    a.DependsOn,
		Healthcheck:  a.Healthcheck,
		Status:       string(a.Status),
		ContainerIDs: a.ContainerIDs,
		CreatedAt:    a.CreatedAt,
		UpdatedAt:    a.UpdatedAt,
	}
}

func (r applicationRow) toApplication() core.Application {
	return core.Application{
		ID:           r.ID,
		ProjectID:    r.ProjectID,
		Name:         r.Name,
		Source:       core.DeploySource(r.Source),
		SourceURL:    r.SourceURL,
		SourceBranch: r.SourceBranch,
		Dockerfile:   r.Dockerfile,
		BuildContext: r.BuildContext,
		Image:        r.Image,
		ComposeFile:  r.ComposeFile,
		Domain:       r.Domain,
		Port:         r.Port,
		Env:          r.Env,
		Volumes:      r.Volumes,
		Networks:     r.Networks,
		Replicas:     r.Replicas,
		DependsOn:    r.DependsOn,
		Healthcheck:  r.Healthcheck,
		Status:       core.DeployStatus(r.Status),
		ContainerIDs: r.ContainerIDs,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func toDeploymentRow(d core.Deployment) deploymentRow {
	return deploymentRow{
		ID:           d.ID,
		AppID:        d.AppID,
		Version:      d.Version,
		Status:       string(d.Status),
		Image:        d.Image,
		ContainerIDs: d.ContainerIDs,
		Logs:         d.Logs,
		StartedAt:    d.StartedAt,
		FinishedAt:   d.FinishedAt,
	}
}

func (r deploymentRow) toDeployment() core.Deployment {
	return core.Deployment{
		ID:           r.ID,
		AppID:        r.AppID,
		Version:      r.Version,
		Status:       core.DeployStatus(r.Status),
		Image:        r.Image,
		ContainerIDs: r.ContainerIDs,
		Logs:         r.Logs,
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
	}
}

func toRouteRow(rt core.Route) routeRow {
	return routeRow{
		ID:           rt.ID,
		Host:         rt.Host,
		Path:         rt.Path,
		Protocol:     string(rt.Protocol),
		Upstreams:    rt.Upstreams,
		Middlewares:  rt.Middlewares,
		LoadBalancer: string(rt.LoadBalancer),
		HealthCheck:  rt.HealthCheck,
		StripPath:    rt.StripPath,
		PreserveHost: rt.PreserveHost,
		Enabled:      rt.Enabled,
	}
}

func (r routeRow) toRoute() core.Route {
	return core.Route{
		ID:           r.ID,
		Host:         r.Host,
		Path:         r.Path,
		Protocol:     core.Protocol(r.Protocol),
		Upstreams:    r.Upstreams,
		Middlewares:  r.Middlewares,
		LoadBalancer: core.LoadBalancer(r.LoadBalancer),
		HealthCheck:  r.HealthCheck,
		StripPath:    r.StripPath,
		PreserveHost: r.PreserveHost,
		Enabled:      r.Enabled,
	}
}

func toCertificateRow(c core.Certificate) certificateRow {
	return certificateRow{
		Domain:    c.Domain,
		CertPath:  c.CertPath,
		KeyPath:   c.KeyPath,
		ExpiresAt: c.ExpiresAt,
		AutoRenew: c.AutoRenew,
	}
}

func (r certificateRow) toCertificate() core.Certificate {
	return core.Certificate{
		Domain:    r.Domain,
		CertPath:  r.CertPath,
		KeyPath:   r.KeyPath,
		ExpiresAt: r.ExpiresAt,
		AutoRenew: r.AutoRenew,
	}
}

func toGitRepoRow(g core.GitRepo) gitRepoRow {
	return gitRepoRow{
		ID:            g.ID,
		Provider:      string(g.Provider),
		URL:           g.URL,
		Branch:        g.Branch,
		ConfigFile:    g.ConfigFile,
		WebhookSecret: g.WebhookSecret,
		ProjectID:     g.ProjectID,
		LastCommit:    g.LastCommit,
		LastDeployAt:  g.LastDeployAt,
		Enabled:       g.Enabled,
		CreatedAt:     g.CreatedAt,
	}
}

func (r gitRepoRow) toGitRepo() core.GitRepo {
	return core.GitRepo{
		ID:            r.ID,
		Provider:      core.GitProvider(r.Provider),
		URL:           r.URL,
		Branch:        r.Branch,
		ConfigFile:    r.ConfigFile,
		WebhookSecret: r.WebhookSecret,
		ProjectID:     r.ProjectID,
		LastCommit:    r.LastCommit,
		LastDeployAt:  r.LastDeployAt,
		Enabled:       r.Enabled,
		CreatedAt:     r.CreatedAt,
	}
}

func toSecretRow(s core.Secret) secretRow {
	return secretRow{
		ID:        s.ID,
		ProjectID: s.ProjectID,
		Name:      s.Name,
		Value:     s.Value,
		CreatedAt: s.CreatedAt,
	}
}

func (r secretRow) toSecret() core.Secret {
	return core.Secret{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		Name:      r.Name,
		Value:     r.Value,
		CreatedAt: r.CreatedAt,
	}
}

func toMiddlewareRow(m core.Middleware) middlewareRow {
	return middlewareRow{Name: m.Name, Type: m.Type, Config: m.Config}
}

func (r middlewareRow) toMiddleware() core.Middleware {
	return core.Middleware{Name: r.Name, Type: r.Type, Config: r.Config}
}
