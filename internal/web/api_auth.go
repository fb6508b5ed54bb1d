package web

import (
	"net/http"

	"github.com/dockhand-io/dockhand/internal/auth"
)

// apiLogin exchanges admin credentials for a bearer token.
func (s *Server) apiLogin(w http.ResponseWriter, r *http.Request) {
	if s.deps.Auth == nil {
		writeError(w, http.StatusServiceUnavailable, "authentication is not configured")
		return
	}

	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}

	token, err := s.deps.Auth.Login(req.Username, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, token)
}

// apiMe returns the authenticated user of the current token.
func (s *Server) apiMe(w http.ResponseWriter, r *http.Request) {
	user := auth.UserFrom(r.Context())
	if user == "" {
		writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"username": user})
}
