package web

import (
	"net/http"
	"strconv"

	"github.com/dockhand-io/dockhand/internal/core"
)

// apiListApplications returns every application.
func (s *Server) apiListApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.deps.Registry.ListApplications(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if apps == nil {
		apps = []core.Application{}
	}
	writeJSON(w, http.StatusOK, apps)
}

// apiGetApplication returns one application by id.
func (s *Server) apiGetApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.deps.Registry.GetApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

type applicationCreateRequest struct {
	ID           string                   `json:"id"`
	ProjectID    string                   `json:"project_id"`
	Name         string                   `json:"name"`
	Source       core.DeploySource        `json:"source"`
	SourceURL    string                   `json:"source_url"`
	SourceBranch string                   `json:"source_branch"`
	Dockerfile   string                   `json:"dockerfile"`
	BuildContext string                   `json:"build_context"`
	Image        string                   `json:"image"`
	ComposeFile  string                   `json:"compose_file"`
	Domain       string                   `json:"domain"`
	Port         int                      `json:"port"`
	Env          map[string]string        `json:"env"`
	Volumes      []string                 `json:"volumes"`
	Networks     []string                 `json:"networks"`
	Replicas     int                      `json:"replicas"`
	DependsOn    []string                 `json:"depends_on"`
	Healthcheck  *core.ComposeHealthcheck `json:"healthcheck"`
}

// apiCreateApplication registers an application without deploying it. The
// id defaults to a generated app-xxxxxxxx.
func (s *Server) apiCreateApplication(w http.ResponseWriter, r *http.Request) {
	var req applicationCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "application name is required")
		return
	}
	if req.ProjectID == "" {
		writeError(w, http.StatusBadRequest, "project_id is required")
		return
	}

	id := req.ID
	if id == "" {
		id = core.NewID("app")
	}
	app := core.Application{
		ID:           id,
		ProjectID:    req.ProjectID,
		Name:         req.Name,
		Source:       req.Source,
		SourceURL:    req.SourceURL,
		SourceBranch: req.SourceBranch,
		Dockerfile:   req.Dockerfile,
		BuildContext: req.BuildContext,
		Image:        req.Image,
		ComposeFile:  req.ComposeFile,
		Domain:       req.Domain,
		Port:         req.Port,
		Env:          req.Env,
		Volumes:      req.Volumes,
		Networks:     req.Networks,
		Replicas:     req.Replicas,
		DependsOn:    req.DependsOn,
		Healthcheck:  req.Healthcheck,
	}
	if app.Source == "" {
		app.Source = core.SourceImage
	}
	if err := s.deps.Registry.SetApplication(r.Context(), &app); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

type applicationUpdateRequest struct {
	Name         *string                  `json:"name"`
	SourceURL    *string                  `json:"source_url"`
	SourceBranch *string                  `json:"source_branch"`
	Dockerfile   *string                  `json:"dockerfile"`
	Image        *string                  `json:"image"`
	Domain       *string                  `json:"domain"`
	Port         *int                     `json:"port"`
	Env          map[string]string        `json:"env"`
	Volumes      []string                 `json:"volumes"`
	Replicas     *int                     `json:"replicas"`
	Healthcheck  *core.ComposeHealthcheck `json:"healthcheck"`
}

// apiUpdateApplication applies a partial update to an application. The new
// state takes effect on the next deploy.
func (s *Server) apiUpdateApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.deps.Registry.GetApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var req applicationUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.Name != nil {
		app.Name = *req.Name
	}
	if req.SourceURL != nil {
		app.SourceURL = *req.SourceURL
	}
	if req.SourceBranch != nil {
		app.SourceBranch = *req.SourceBranch
	}
	if req.Dockerfile != nil {
		app.Dockerfile = *req.Dockerfile
	}
	if req.Image != nil {
		app.Image = *req.Image
	}
	if req.Domain != nil {
		app.Domain = *req.Domain
	}
	if req.Port != nil {
		app.Port = *req.Port
	}
	if req.Env != nil {
		app.Env = req.Env
	}
	if req.Volumes != nil {
		app.Volumes = req.Volumes
	}
	if req.Replicas != nil {
		app.Replicas = *req.Replicas
	}
	if req.Healthcheck != nil {
		app.Healthcheck = req.Healthcheck
	}

	if err := s.deps.Registry.SetApplication(r.Context(), &app); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}

// apiDeleteApplication tears the application down and removes its record.
func (s *Server) apiDeleteApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.deps.Registry.GetApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.deps.Deployer.RemoveApp(r.Context(), &app); err != nil {
		s.deps.Log.Warn("app teardown failed during delete", "app", app.ID, "error", err)
	}
	if err := s.deps.Registry.DeleteApplication(r.Context(), app.ID); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "deleted"})
}

// apiDeployApplication runs a rolling deploy and returns the finished
// deployment record. The request blocks for the duration of the deploy
// unless ?async=true, which returns the pending record with 202 and lets
// the deploy run in the background.
func (s *Server) apiDeployApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.deps.Registry.GetApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	if r.URL.Query().Get("async") == "true" {
		d, err := s.deps.Deployer.DeployAsync(r.Context(), &app)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, d)
		return
	}

	d, err := s.deps.Deployer.Deploy(r.Context(), &app)
	if err != nil && d == nil {
		s.writeDomainError(w, err)
		return
	}
	// A failed deploy still produced a record; its status and captured
	// logs carry the cause.
	writeJSON(w, http.StatusOK, d)
}

// apiStopApplication stops all replicas without removing the application.
func (s *Server) apiStopApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.deps.Registry.GetApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if err := s.deps.Deployer.StopApp(r.Context(), &app); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "stopped"})
}

// apiRollbackApplication redeploys a historical version's image directly,
// with no build and no health gate.
func (s *Server) apiRollbackApplication(w http.ResponseWriter, r *http.Request) {
	app, err := s.deps.Registry.GetApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var req struct {
		Version int `json:"version"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.Version <= 0 {
		writeError(w, http.StatusBadRequest, "version must be a positive integer")
		return
	}

	d, err := s.deps.Deployer.Rollback(r.Context(), &app, req.Version)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

// apiAppDeployments returns the application's deployment history, newest
// first.
func (s *Server) apiAppDeployments(w http.ResponseWriter, r *http.Request) {
	deployments, err := s.deps.Registry.AppDeployments(r.Context(), r.PathValue("id"), 0)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if deployments == nil {
		deployments = []core.Deployment{}
	}
	writeJSON(w, http.StatusOK, deployments)
}

// apiAppLogs returns the log tail of each replica, keyed by container id.
func (s *Server) apiAppLogs(w http.ResponseWriter, r *http.Request) {
	app, err := s.deps.Registry.GetApplication(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	tail := 100
	if v := r.URL.Query().Get("tail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "tail must be a positive integer")
			return
		}
		tail = n
	}

	logs := make(map[string]string, len(app.ContainerIDs))
	for _, cid := range app.ContainerIDs {
		out, err := s.deps.Manager.ContainerLogs(r.Context(), cid, tail)
		if err != nil {
			s.deps.Log.Warn("container logs failed", "app", app.ID, "container", core.ShortID(cid), "error", err)
			continue
		}
		logs[cid] = out
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

// apiAppDeployLogs returns the captured log output of the latest deploy,
// or of the deployment named in ?deployment=.
func (s *Server) apiAppDeployLogs(w http.ResponseWriter, r *http.Request) {
	appID := r.PathValue("id")

	if did := r.URL.Query().Get("deployment"); did != "" {
		d, err := s.deps.Registry.GetDeployment(r.Context(), did)
		if err != nil {
			s.writeDomainError(w, err)
			return
		}
		if d.AppID != appID {
			writeError(w, http.StatusNotFound, "deployment "+did+" does not belong to "+appID)
			return
		}
		writeDeployLogs(w, d)
		return
	}

	deployments, err := s.deps.Registry.AppDeployments(r.Context(), appID, 1)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if len(deployments) == 0 {
		writeJSON(w, http.StatusOK, map[string]string{"logs": "No deployments found."})
		return
	}
	writeDeployLogs(w, deployments[0])
}

func writeDeployLogs(w http.ResponseWriter, d core.Deployment) {
	writeJSON(w, http.StatusOK, map[string]any{
		"logs":    d.Logs,
		"status":  d.Status,
		"version": d.Version,
	})
}
