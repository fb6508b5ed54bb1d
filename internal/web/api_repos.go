package web

import (
	"net/http"

	"github.com/dockhand-io/dockhand/internal/core"
)

// apiListRepos returns every registered git repository.
func (s *Server) apiListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := s.deps.Registry.ListGitRepos(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if repos == nil {
		repos = []core.GitRepo{}
	}
	writeJSON(w, http.StatusOK, repos)
}

// apiGetRepo returns one repository by id.
func (s *Server) apiGetRepo(w http.ResponseWriter, r *http.Request) {
	repo, err := s.deps.Registry.GetGitRepo(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

type repoCreateRequest struct {
	ID            string           `json:"id"`
	Provider      core.GitProvider `json:"provider"`
	URL           string           `json:"url"`
	Branch        string           `json:"branch"`
	ConfigFile    string           `json:"config_file"`
	WebhookSecret string           `json:"webhook_secret"`
	ProjectID     string           `json:"project_id"`
}

// apiCreateRepo registers a repository for webhook-triggered deploys. The
// (url, branch) pair must be unique; the id defaults to a generated
// repo-xxxxxxxx.
func (s *Server) apiCreateRepo(w http.ResponseWriter, r *http.Request) {
	var req repoCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.URL == "" {
		writeError(w, http.StatusBadRequest, "repository url is required")
		return
	}
	if req.Provider == "" {
		writeError(w, http.StatusBadRequest, "provider is required")
		return
	}

	repo := core.GitRepo{
		ID:            req.ID,
		Provider:      req.Provider,
		URL:           req.URL,
		Branch:        req.Branch,
		ConfigFile:    req.ConfigFile,
		WebhookSecret: req.WebhookSecret,
		ProjectID:     req.ProjectID,
		Enabled:       true,
	}
	repo.Normalize()
	if repo.ID == "" {
		repo.ID = core.NewID("repo")
	}
	if _, err := s.deps.Registry.GitRepoByURL(r.Context(), repo.URL, repo.Branch); err == nil {
		writeError(w, http.StatusConflict, "repository already registered for "+repo.URL+"@"+repo.Branch)
		return
	}

	if err := s.deps.Registry.SetGitRepo(r.Context(), &repo); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, repo)
}

type repoUpdateRequest struct {
	Branch        *string `json:"branch"`
	ConfigFile    *string `json:"config_file"`
	WebhookSecret *string `json:"webhook_secret"`
	ProjectID     *string `json:"project_id"`
	Enabled       *bool   `json:"enabled"`
}

// apiUpdateRepo applies a partial update to a repository.
func (s *Server) apiUpdateRepo(w http.ResponseWriter, r *http.Request) {
	repo, err := s.deps.Registry.GetGitRepo(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var req repoUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.Branch != nil {
		repo.Branch = *req.Branch
	}
	if req.ConfigFile != nil {
		repo.ConfigFile = *req.ConfigFile
	}
	if req.WebhookSecret != nil {
		repo.WebhookSecret = *req.WebhookSecret
	}
	if req.ProjectID != nil {
		repo.ProjectID = *req.ProjectID
	}
	if req.Enabled != nil {
		repo.Enabled = *req.Enabled
	}

	if err := s.deps.Registry.SetGitRepo(r.Context(), &repo); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, repo)
}

// apiDeleteRepo removes a repository registration.
func (s *Server) apiDeleteRepo(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registry.DeleteGitRepo(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "deleted"})
}

// apiDeployRepo clones the repository and deploys its manifests, as a
// webhook push would.
func (s *Server) apiDeployRepo(w http.ResponseWriter, r *http.Request) {
	repo, err := s.deps.Registry.GetGitRepo(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	apps, err := s.deps.Deployer.DeployFromRepo(r.Context(), &repo)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deployingResponse(apps))
}
