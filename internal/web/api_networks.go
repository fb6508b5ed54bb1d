package web

import (
	"net/http"

	"github.com/dockhand-io/dockhand/internal/core"
	"github.com/dockhand-io/dockhand/internal/docker"
)

// apiListNetworks returns the mirrored runtime networks.
func (s *Server) apiListNetworks(w http.ResponseWriter, _ *http.Request) {
	networks := s.deps.Manager.Networks()
	if networks == nil {
		networks = []core.DockerNetwork{}
	}
	writeJSON(w, http.StatusOK, networks)
}

// apiGetNetwork returns one network by id, refreshing the mirror from the
// runtime when needed.
func (s *Server) apiGetNetwork(w http.ResponseWriter, r *http.Request) {
	n, err := s.deps.Manager.Network(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

type networkCreateRequest struct {
	Name     string `json:"name"`
	Driver   string `json:"driver"`
	Subnet   string `json:"subnet"`
	Gateway  string `json:"gateway"`
	Internal bool   `json:"internal"`
}

// apiCreateNetwork creates a runtime network.
func (s *Server) apiCreateNetwork(w http.ResponseWriter, r *http.Request) {
	var req networkCreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "network name is required")
		return
	}
	if req.Driver == "" {
		req.Driver = "bridge"
	}

	n, err := s.deps.Manager.CreateNetwork(r.Context(), docker.NetworkSpec{
		Name:     req.Name,
		Driver:   req.Driver,
		Subnet:   req.Subnet,
		Gateway:  req.Gateway,
		Internal: req.Internal,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// apiDeleteNetwork removes a runtime network.
func (s *Server) apiDeleteNetwork(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Manager.DeleteNetwork(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// apiConnectContainer attaches a container to a network, optionally with
// DNS aliases.
func (s *Server) apiConnectContainer(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Aliases []string `json:"aliases"`
	}
	if r.ContentLength > 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			s.writeDomainError(w, err)
			return
		}
	}

	networkID, containerID := r.PathValue("id"), r.PathValue("cid")
	if err := s.deps.Manager.Connect(r.Context(), networkID, containerID, req.Aliases); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "connected"})
}

// apiDisconnectContainer detaches a container from a network.
func (s *Server) apiDisconnectContainer(w http.ResponseWriter, r *http.Request) {
	force := r.URL.Query().Get("force") == "true"
	networkID, containerID := r.PathValue("id"), r.PathValue("cid")
	if err := s.deps.Manager.Disconnect(r.Context(), networkID, containerID, force); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "disconnected"})
}
