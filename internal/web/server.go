// Package web is the REST control surface. Handlers translate HTTP to
// calls on the collaborators injected through Dependencies and map domain
// error kinds back to status codes.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dockhand-io/dockhand/internal/auth"
	"github.com/dockhand-io/dockhand/internal/core"
	"github.com/dockhand-io/dockhand/internal/docker"
	"github.com/dockhand-io/dockhand/internal/logging"
	"github.com/dockhand-io/dockhand/internal/webhook"
)

// maxBodyBytes bounds every request body the API reads.
const maxBodyBytes = 1 << 20

// Registry is the state store slice the API reads and writes.
type Registry interface {
	SetProject(ctx context.Context, p *core.Project) error
	GetProject(ctx context.Context, id string) (core.Project, error)
	ListProjects(ctx context.Context) ([]core.Project, error)
	DeleteProject(ctx context.Context, id string) error
	ProjectApplications(ctx context.Context, projectID string) ([]core.Application, error)

	SetApplication(ctx context.Context, app *core.Application) error
	GetApplication(ctx context.Context, id string) (core.Application, error)
	ListApplications(ctx context.Context) ([]core.Application, error)
	DeleteApplication(ctx context.Context, id string) error
	AppDeployments(ctx context.Context, appID string, limit int) ([]core.Deployment, error)
	GetDeployment(ctx context.Context, id string) (core.Deployment, error)

	SetRoute(ctx context.Context, rt *core.Route) error
	GetRoute(ctx context.Context, id string) (core.Route, error)
	ListRoutes(ctx context.Context) ([]core.Route, error)
	RoutesByHost(ctx context.Context, host string) ([]core.Route, error)
	DeleteRoute(ctx context.Context, id string) error
	ConfigVersion(ctx context.Context) (int64, error)

	GetCertificate(ctx context.Context, domain string) (core.Certificate, error)
	ListCertificates(ctx context.Context) ([]core.Certificate, error)
	DeleteCertificate(ctx context.Context, domain string) error

	SetGitRepo(ctx context.Context, repo *core.GitRepo) error
	GetGitRepo(ctx context.Context, id string) (core.GitRepo, error)
	ListGitRepos(ctx context.Context) ([]core.GitRepo, error)
	GitRepoByURL(ctx context.Context, url, branch string) (core.GitRepo, error)
	DeleteGitRepo(ctx context.Context, id string) error

	SetSecret(ctx context.Context, s *core.Secret) error
	ProjectSecrets(ctx context.Context, projectID string) ([]core.Secret, error)
	DeleteSecret(ctx context.Context, projectID, name string) error

	SetMiddleware(ctx context.Context, m *core.Middleware) error
	GetMiddleware(ctx context.Context, name string) (core.Middleware, error)
	ListMiddlewares(ctx context.Context) ([]core.Middleware, error)
	DeleteMiddleware(ctx context.Context, name string) error
}

// Deployer is the deployment engine slice the API drives.
type Deployer interface {
	Deploy(ctx context.Context, app *core.Application) (*core.Deployment, error)
	DeployAsync(ctx context.Context, app *core.Application) (*core.Deployment, error)
	Rollback(ctx context.Context, app *core.Application, targetVersion int) (*core.Deployment, error)
	StopApp(ctx context.Context, app *core.Application) error
	RemoveApp(ctx context.Context, app *core.Application) error
	DeployFromRepo(ctx context.Context, repo *core.GitRepo) ([]core.Application, error)
	DeployFromYAML(ctx context.Context, deployContent, composeContent []byte) ([]core.Application, error)
	DeployFromLocal(ctx context.Context, path string) ([]core.Application, error)
	DeployProject(ctx context.Context, project *core.Project) ([]core.Application, error)
}

// Manager is the operational runtime surface for networks and containers.
type Manager interface {
	Networks() []core.DockerNetwork
	Network(ctx context.Context, id string) (core.DockerNetwork, error)
	CreateNetwork(ctx context.Context, spec docker.NetworkSpec) (core.DockerNetwork, error)
	DeleteNetwork(ctx context.Context, id string) error
	Connect(ctx context.Context, networkID, containerID string, aliases []string) error
	Disconnect(ctx context.Context, networkID, containerID string, force bool) error

	Containers() []core.DockerContainer
	Container(id string) (core.DockerContainer, error)
	StartContainer(ctx context.Context, id string) error
	StopContainer(ctx context.Context, id string, timeout int) error
	RestartContainer(ctx context.Context, id string) error
	ContainerLogs(ctx context.Context, id string, tail int) (string, error)
}

// CertIssuer obtains certificates on demand.
type CertIssuer interface {
	ObtainCertificate(ctx context.Context, domain string) (*core.Certificate, error)
}

// Images is the local image housekeeping surface.
type Images interface {
	ListImages(ctx context.Context) ([]docker.ImageSummary, error)
	PruneImages(ctx context.Context) (docker.ImagePruneResult, error)
	RemoveImage(ctx context.Context, id string) error
}

// Webhooks verifies and triages inbound push deliveries.
type Webhooks interface {
	HandleGitHub(ctx context.Context, body []byte, signature string) (webhook.Result, error)
	HandleGitLab(ctx context.Context, body []byte, token string) (webhook.Result, error)
	HandleGitea(ctx context.Context, body []byte) (webhook.Result, error)
}

// Dependencies defines what the API server needs from the rest of the
// application.
type Dependencies struct {
	Registry Registry
	Deployer Deployer
	Manager  Manager
	Certs    CertIssuer
	Images   Images
	Webhooks Webhooks
	Auth     *auth.Service
	Log      *logging.Logger

	// Version is the build version reported by system info.
	Version string

	// Restart terminates the process so a supervisor brings it back up.
	// Called in its own goroutine after the restart response is written.
	Restart func()
}

// Server is the REST API server.
type Server struct {
	deps    Dependencies
	mux     *http.ServeMux
	server  *http.Server
	started time.Time
}

// NewServer creates a Server with all routes registered.
func NewServer(deps Dependencies) *Server {
	s := &Server{
		deps:    deps,
		mux:     http.NewServeMux(),
		started: time.Now(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the server's handler chain, with authentication wrapped
// around the mux when an auth service is configured.
func (s *Server) Handler() http.Handler {
	if s.deps.Auth == nil {
		return s.mux
	}
	return auth.Middleware(s.deps.Auth)(s.mux)
}

// ListenAndServe starts the HTTP server on the given address.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.Handler(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0, // deploys are synchronous and may outlive any fixed limit
		IdleTimeout:  120 * time.Second,
	}
	s.deps.Log.Info("api listening", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) registerRoutes() {
	// Auth
	s.mux.HandleFunc("POST /api/v1/auth/login", s.apiLogin)
	s.mux.HandleFunc("GET /api/v1/auth/me", s.apiMe)

	// Routes
	s.mux.HandleFunc("GET /api/v1/routes", s.apiListRoutes)
	s.mux.HandleFunc("GET /api/v1/routes/{id}", s.apiGetRoute)
	s.mux.HandleFunc("POST /api/v1/routes", s.apiCreateRoute)
	s.mux.HandleFunc("PUT /api/v1/routes/{id}", s.apiUpdateRoute)
	s.mux.HandleFunc("DELETE /api/v1/routes/{id}", s.apiDeleteRoute)

	// Networks
	s.mux.HandleFunc("GET /api/v1/networks", s.apiListNetworks)
	s.mux.HandleFunc("GET /api/v1/networks/{id}", s.apiGetNetwork)
	s.mux.HandleFunc("POST /api/v1/networks", s.apiCreateNetwork)
	s.mux.HandleFunc("DELETE /api/v1/networks/{id}", s.apiDeleteNetwork)
	s.mux.HandleFunc("POST /api/v1/networks/{id}/connect/{cid}", s.apiConnectContainer)
	s.mux.HandleFunc("POST /api/v1/networks/{id}/disconnect/{cid}", s.apiDisconnectContainer)

	// Containers
	s.mux.HandleFunc("GET /api/v1/containers", s.apiListContainers)
	s.mux.HandleFunc("GET /api/v1/containers/{id}", s.apiGetContainer)
	s.mux.HandleFunc("POST /api/v1/containers/{id}/start", s.apiStartContainer)
	s.mux.HandleFunc("POST /api/v1/containers/{id}/stop", s.apiStopContainer)
	s.mux.HandleFunc("POST /api/v1/containers/{id}/restart", s.apiRestartContainer)
	s.mux.HandleFunc("GET /api/v1/containers/{id}/logs", s.apiContainerLogs)

	// Certificates
	s.mux.HandleFunc("GET /api/v1/certificates", s.apiListCertificates)
	s.mux.HandleFunc("GET /api/v1/certificates/{domain}", s.apiGetCertificate)
	s.mux.HandleFunc("POST /api/v1/certificates", s.apiRequestCertificate)
	s.mux.HandleFunc("DELETE /api/v1/certificates/{domain}", s.apiDeleteCertificate)

	// Images
	s.mux.HandleFunc("GET /api/v1/images", s.apiListImages)
	s.mux.HandleFunc("POST /api/v1/images/prune", s.apiPruneImages)
	s.mux.HandleFunc("DELETE /api/v1/images/{id}", s.apiRemoveImage)

	// Middlewares
	s.mux.HandleFunc("GET /api/v1/middlewares", s.apiListMiddlewares)
	s.mux.HandleFunc("GET /api/v1/middlewares/{name}", s.apiGetMiddleware)
	s.mux.HandleFunc("POST /api/v1/middlewares", s.apiCreateMiddleware)
	s.mux.HandleFunc("DELETE /api/v1/middlewares/{name}", s.apiDeleteMiddleware)

	// Projects
	s.mux.HandleFunc("GET /api/v1/projects", s.apiListProjects)
	s.mux.HandleFunc("GET /api/v1/projects/{id}", s.apiGetProject)
	s.mux.HandleFunc("POST /api/v1/projects", s.apiCreateProject)
	s.mux.HandleFunc("PUT /api/v1/projects/{id}", s.apiUpdateProject)
	s.mux.HandleFunc("DELETE /api/v1/projects/{id}", s.apiDeleteProject)
	s.mux.HandleFunc("GET /api/v1/projects/{id}/applications", s.apiProjectApplications)
	s.mux.HandleFunc("POST /api/v1/projects/{id}/deploy", s.apiDeployProject)
	s.mux.HandleFunc("POST /api/v1/projects/{id}/restart", s.apiRestartProject)

	// Applications
	s.mux.HandleFunc("GET /api/v1/applications", s.apiListApplications)
	s.mux.HandleFunc("GET /api/v1/applications/{id}", s.apiGetApplication)
	s.mux.HandleFunc("POST /api/v1/applications", s.apiCreateApplication)
	s.mux.HandleFunc("PUT /api/v1/applications/{id}", s.apiUpdateApplication)
	s.mux.HandleFunc("DELETE /api/v1/applications/{id}", s.apiDeleteApplication)
	s.mux.HandleFunc("POST /api/v1/applications/{id}/deploy", s.apiDeployApplication)
	s.mux.HandleFunc("POST /api/v1/applications/{id}/stop", s.apiStopApplication)
	s.mux.HandleFunc("POST /api/v1/applications/{id}/rollback", s.apiRollbackApplication)
	s.mux.HandleFunc("GET /api/v1/applications/{id}/deployments", s.apiAppDeployments)
	s.mux.HandleFunc("GET /api/v1/applications/{id}/logs", s.apiAppLogs)
	s.mux.HandleFunc("GET /api/v1/applications/{id}/deploy-logs", s.apiAppDeployLogs)

	// Git repositories
	s.mux.HandleFunc("GET /api/v1/repos", s.apiListRepos)
	s.mux.HandleFunc("GET /api/v1/repos/{id}", s.apiGetRepo)
	s.mux.HandleFunc("POST /api/v1/repos", s.apiCreateRepo)
	s.mux.HandleFunc("PUT /api/v1/repos/{id}", s.apiUpdateRepo)
	s.mux.HandleFunc("DELETE /api/v1/repos/{id}", s.apiDeleteRepo)
	s.mux.HandleFunc("POST /api/v1/repos/{id}/deploy", s.apiDeployRepo)

	// Secrets
	s.mux.HandleFunc("GET /api/v1/secrets/{project}", s.apiListSecrets)
	s.mux.HandleFunc("POST /api/v1/secrets", s.apiCreateSecret)
	s.mux.HandleFunc("DELETE /api/v1/secrets/{project}/{name}", s.apiDeleteSecret)

	// Manifest submission
	s.mux.HandleFunc("POST /api/v1/deploy/yaml", s.apiDeployYAML)
	s.mux.HandleFunc("POST /api/v1/deploy/local", s.apiDeployLocal)

	// Webhooks
	s.mux.HandleFunc("POST /api/v1/webhook/github", s.apiWebhookGitHub)
	s.mux.HandleFunc("POST /api/v1/webhook/gitlab", s.apiWebhookGitLab)
	s.mux.HandleFunc("POST /api/v1/webhook/gitea", s.apiWebhookGitea)

	// System
	s.mux.HandleFunc("GET /api/v1/stats", s.apiStats)
	s.mux.HandleFunc("GET /api/v1/health", s.apiHealth)
	s.mux.HandleFunc("GET /api/v1/system/info", s.apiSystemInfo)
	s.mux.HandleFunc("POST /api/v1/system/restart", s.apiSystemRestart)

	s.mux.Handle("GET /metrics", promhttp.Handler())
}

// writeJSON encodes v as JSON and writes it to the response.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeDomainError maps an error's kind onto the HTTP status it deserves.
func (s *Server) writeDomainError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch core.KindOf(err) {
	case core.KindNotFound:
		status = http.StatusNotFound
	case core.KindConflict:
		status = http.StatusConflict
	case core.KindInvalidInput, core.KindInvalidDependency:
		status = http.StatusBadRequest
	case core.KindSignatureMismatch:
		status = http.StatusUnauthorized
	}
	if status == http.StatusInternalServerError {
		s.deps.Log.Error("request failed", "error", err)
	}
	writeError(w, status, err.Error())
}

// decodeJSON reads a size-capped request body into v.
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		return core.Wrap(core.KindInvalidInput, err, "decode request body")
	}
	return nil
}

// readBody reads the size-capped raw request body. Webhook signature checks
// need the exact bytes the sender signed.
func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, core.Errorf(core.KindInvalidInput, "request body exceeds %d bytes", tooLarge.Limit)
		}
		return nil, core.Wrap(core.KindInvalidInput, err, "read request body")
	}
	return body, nil
}

// statusResponse is the minimal acknowledgement most action endpoints
// return.
type statusResponse struct {
	Status string `json:"status"`
}
