package web

import (
	"net/http"

	"github.com/dockhand-io/dockhand/internal/core"
)

// deployingResponse reports which applications a deployed plan touched.
func deployingResponse(apps []core.Application) map[string]any {
	ids := make([]string, len(apps))
	for i, a := range apps {
		ids[i] = a.ID
	}
	return map[string]any{"status": "deploying", "applications": ids}
}

// apiDeployYAML deploys manifest content submitted inline: the deploy
// manifest and the compose file, both as raw YAML strings.
func (s *Server) apiDeployYAML(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeployContent  string `json:"deploy_content"`
		ComposeContent string `json:"compose_content"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.DeployContent == "" || req.ComposeContent == "" {
		writeError(w, http.StatusBadRequest, "deploy_content and compose_content are required")
		return
	}

	apps, err := s.deps.Deployer.DeployFromYAML(r.Context(), []byte(req.DeployContent), []byte(req.ComposeContent))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deployingResponse(apps))
}

// apiDeployLocal deploys a directory already present on the host. Without
// a deploy manifest the project is inferred from the directory name.
func (s *Server) apiDeployLocal(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Path string `json:"path"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.Path == "" {
		writeError(w, http.StatusBadRequest, "path is required")
		return
	}

	apps, err := s.deps.Deployer.DeployFromLocal(r.Context(), req.Path)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deployingResponse(apps))
}
