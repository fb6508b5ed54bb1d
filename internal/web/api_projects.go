package web

import (
	"net/http"

	"github.com/dockhand-io/dockhand/internal/core"
)

// apiListProjects returns every project.
func (s *Server) apiListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := s.deps.Registry.ListProjects(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if projects == nil {
		projects = []core.Project{}
	}
	writeJSON(w, http.StatusOK, projects)
}

// apiGetProject returns one project by id.
func (s *Server) apiGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Registry.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type projectCreateRequest struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	SourcePath  string            `json:"source_path"`
	Env         map[string]string `json:"env"`
}

// apiCreateProject registers a project. The id defaults to a generated
// proj-xxxxxxxx.
func (s *Server) apiCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "project name is required")
		return
	}

	id := req.ID
	if id == "" {
		id = core.NewID("proj")
	}
	p := core.Project{
		ID:          id,
		Name:        req.Name,
		Description: req.Description,
		SourcePath:  req.SourcePath,
		Env:         req.Env,
	}
	if err := s.deps.Registry.SetProject(r.Context(), &p); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, p)
}

type projectUpdateRequest struct {
	Name        *string           `json:"name"`
	Description *string           `json:"description"`
	SourcePath  *string           `json:"source_path"`
	Env         map[string]string `json:"env"`
}

// apiUpdateProject applies a partial update to a project.
func (s *Server) apiUpdateProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Registry.GetProject(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var req projectUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.Name != nil {
		p.Name = *req.Name
	}
	if req.Description != nil {
		p.Description = *req.Description
	}
	if req.SourcePath != nil {
		p.SourcePath = *req.SourcePath
	}
	if req.Env != nil {
		p.Env = req.Env
	}

	if err := s.deps.Registry.SetProject(r.Context(), &p); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// apiDeleteProject removes a project and tears down its applications,
// containers included.
func (s *Server) apiDeleteProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	apps, err := s.deps.Registry.ProjectApplications(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	for i := range apps {
		if err := s.deps.Deployer.RemoveApp(r.Context(), &apps[i]); err != nil {
			s.deps.Log.Warn("app teardown failed during project delete", "app", apps[i].ID, "error", err)
		}
		if err := s.deps.Registry.DeleteApplication(r.Context(), apps[i].ID); err != nil && !core.IsNotFound(err) {
			s.writeDomainError(w, err)
			return
		}
	}
	if err := s.deps.Registry.DeleteProject(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "deleted"})
}

// apiProjectApplications returns the applications of one project.
func (s *Server) apiProjectApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := s.deps.Registry.ProjectApplications(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if apps == nil {
		apps = []core.Application{}
	}
	writeJSON(w, http.StatusOK, apps)
}

// apiDeployProject deploys a project from its registered source: the linked
// git repository when one exists, otherwise the recorded source path.
func (s *Server) apiDeployProject(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	p, err := s.deps.Registry.GetProject(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	repos, err := s.deps.Registry.ListGitRepos(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	for i := range repos {
		if repos[i].ProjectID != id {
			continue
		}
		if _, err := s.deps.Deployer.DeployFromRepo(r.Context(), &repos[i]); err != nil {
			s.writeDomainError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, statusResponse{Status: "deploying"})
		return
	}

	if p.SourcePath == "" {
		writeError(w, http.StatusNotFound, "no deployment source found for project "+id)
		return
	}
	if _, err := s.deps.Deployer.DeployProject(r.Context(), &p); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "deploying"})
}

// apiRestartProject restarts every container of every application in the
// project.
func (s *Server) apiRestartProject(w http.ResponseWriter, r *http.Request) {
	apps, err := s.deps.Registry.ProjectApplications(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	for _, app := range apps {
		for _, cid := range app.ContainerIDs {
			if err := s.deps.Manager.RestartContainer(r.Context(), cid); err != nil {
				s.deps.Log.Warn("container restart failed", "app", app.ID, "container", core.ShortID(cid), "error", err)
			}
		}
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "restarted"})
}
