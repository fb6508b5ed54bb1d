package web

import (
	"net/http"

	"github.com/dockhand-io/dockhand/internal/core"
)

// apiListMiddlewares returns all named middlewares.
func (s *Server) apiListMiddlewares(w http.ResponseWriter, r *http.Request) {
	mws, err := s.deps.Registry.ListMiddlewares(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if mws == nil {
		mws = []core.Middleware{}
	}
	writeJSON(w, http.StatusOK, mws)
}

// apiGetMiddleware returns one middleware by name.
func (s *Server) apiGetMiddleware(w http.ResponseWriter, r *http.Request) {
	m, err := s.deps.Registry.GetMiddleware(r.Context(), r.PathValue("name"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// apiCreateMiddleware registers or replaces a named middleware.
func (s *Server) apiCreateMiddleware(w http.ResponseWriter, r *http.Request) {
	var m core.Middleware
	if err := decodeJSON(w, r, &m); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if m.Name == "" {
		writeError(w, http.StatusBadRequest, "middleware name is required")
		return
	}
	if m.Type == "" {
		writeError(w, http.StatusBadRequest, "middleware type is required")
		return
	}

	if err := s.deps.Registry.SetMiddleware(r.Context(), &m); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, m)
}

// apiDeleteMiddleware removes a middleware. Routes referencing it keep the
// dangling name; the routing plane skips names it cannot resolve.
func (s *Server) apiDeleteMiddleware(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registry.DeleteMiddleware(r.Context(), r.PathValue("name")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
