package web

import (
	"net/http"

	"github.com/dockhand-io/dockhand/internal/core"
)

// apiListRoutes returns every configured route, or only those serving the
// host given in ?host=.
func (s *Server) apiListRoutes(w http.ResponseWriter, r *http.Request) {
	var (
		routes []core.Route
		err    error
	)
	if host := r.URL.Query().Get("host"); host != "" {
		routes, err = s.deps.Registry.RoutesByHost(r.Context(), host)
	} else {
		routes, err = s.deps.Registry.ListRoutes(r.Context())
	}
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if routes == nil {
		routes = []core.Route{}
	}
	writeJSON(w, http.StatusOK, routes)
}

// apiGetRoute returns one route by id.
func (s *Server) apiGetRoute(w http.ResponseWriter, r *http.Request) {
	rt, err := s.deps.Registry.GetRoute(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

type routeCreateRequest struct {
	ID           string            `json:"id"`
	Host         string            `json:"host"`
	Path         string            `json:"path"`
	Protocol     core.Protocol     `json:"protocol"`
	Upstreams    []core.Upstream   `json:"upstreams"`
	Middlewares  []string          `json:"middlewares"`
	LoadBalancer core.LoadBalancer `json:"load_balancer"`
	HealthCheck  *core.HealthCheck `json:"health_check"`
	StripPath    bool              `json:"strip_path"`
	PreserveHost bool              `json:"preserve_host"`
}

// apiCreateRoute registers a manually managed route. Routes created here
// start enabled; the id defaults to a generated manual-xxxxxxxx.
func (s *Server) apiCreateRoute(w http.ResponseWriter, r *http.Request) {
	var req routeCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.Host == "" {
		writeError(w, http.StatusBadRequest, "host is required")
		return
	}

	id := req.ID
	if id == "" {
		id = core.NewID("manual")
	}
	if _, err := s.deps.Registry.GetRoute(r.Context(), id); err == nil {
		writeError(w, http.StatusConflict, "route already exists: "+id)
		return
	}

	rt := core.Route{
		ID:           id,
		Host:         req.Host,
		Path:         req.Path,
		Protocol:     req.Protocol,
		Upstreams:    req.Upstreams,
		Middlewares:  req.Middlewares,
		LoadBalancer: req.LoadBalancer,
		HealthCheck:  req.HealthCheck,
		StripPath:    req.StripPath,
		PreserveHost: req.PreserveHost,
		Enabled:      true,
	}
	if err := s.deps.Registry.SetRoute(r.Context(), &rt); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, rt)
}

type routeUpdateRequest struct {
	Host         *string            `json:"host"`
	Path         *string            `json:"path"`
	Protocol     *core.Protocol     `json:"protocol"`
	Upstreams    []core.Upstream    `json:"upstreams"`
	Middlewares  []string           `json:"middlewares"`
	LoadBalancer *core.LoadBalancer `json:"load_balancer"`
	HealthCheck  *core.HealthCheck  `json:"health_check"`
	StripPath    *bool              `json:"strip_path"`
	PreserveHost *bool              `json:"preserve_host"`
	Enabled      *bool              `json:"enabled"`
}

// apiUpdateRoute applies a partial update to a route. Only fields present
// in the body change.
func (s *Server) apiUpdateRoute(w http.ResponseWriter, r *http.Request) {
	rt, err := s.deps.Registry.GetRoute(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}

	var req routeUpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}

	if req.Host != nil {
		rt.Host = *req.Host
	}
	if req.Path != nil {
		rt.Path = *req.Path
	}
	if req.Protocol != nil {
		rt.Protocol = *req.Protocol
	}
	if req.Upstreams != nil {
		rt.Upstreams = req.Upstreams
	}
	if req.Middlewares != nil {
		rt.Middlewares = req.Middlewares
	}
	if req.LoadBalancer != nil {
		rt.LoadBalancer = *req.LoadBalancer
	}
	if req.HealthCheck != nil {
		rt.HealthCheck = req.HealthCheck
	}
	if req.StripPath != nil {
		rt.StripPath = *req.StripPath
	}
	if req.PreserveHost != nil {
		rt.PreserveHost = *req.PreserveHost
	}
	if req.Enabled != nil {
		rt.Enabled = *req.Enabled
	}

	if err := s.deps.Registry.SetRoute(r.Context(), &rt); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rt)
}

// apiDeleteRoute removes a route.
func (s *Server) apiDeleteRoute(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registry.DeleteRoute(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
