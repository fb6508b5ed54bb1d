package web

import (
	"net/http"
	"time"

	"github.com/dockhand-io/dockhand/internal/core"
)

// apiListSecrets returns the secret names of a project. Values never leave
// the registry through this endpoint.
func (s *Server) apiListSecrets(w http.ResponseWriter, r *http.Request) {
	secrets, err := s.deps.Registry.ProjectSecrets(r.Context(), r.PathValue("project"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	type secretInfo struct {
		Name      string    `json:"name"`
		CreatedAt time.Time `json:"created_at"`
	}
	result := make([]secretInfo, 0, len(secrets))
	for _, sec := range secrets {
		result = append(result, secretInfo{Name: sec.Name, CreatedAt: sec.CreatedAt})
	}
	writeJSON(w, http.StatusOK, result)
}

// apiCreateSecret stores or replaces a project secret.
func (s *Server) apiCreateSecret(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ProjectID string `json:"project_id"`
		Name      string `json:"name"`
		Value     string `json:"value"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.ProjectID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "project_id and name are required")
		return
	}

	secret := core.Secret{
		ID:        core.SecretID(req.ProjectID, req.Name),
		ProjectID: req.ProjectID,
		Name:      req.Name,
		Value:     req.Value,
	}
	if err := s.deps.Registry.SetSecret(r.Context(), &secret); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, statusResponse{Status: "created"})
}

// apiDeleteSecret removes a project secret.
func (s *Server) apiDeleteSecret(w http.ResponseWriter, r *http.Request) {
	project, name := r.PathValue("project"), r.PathValue("name")
	if err := s.deps.Registry.DeleteSecret(r.Context(), project, name); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "deleted"})
}
