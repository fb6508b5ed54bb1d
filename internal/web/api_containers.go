package web

import (
	"net/http"
	"strconv"

	"github.com/dockhand-io/dockhand/internal/core"
)

// apiListContainers returns the mirrored runtime containers.
func (s *Server) apiListContainers(w http.ResponseWriter, _ *http.Request) {
	containers := s.deps.Manager.Containers()
	if containers == nil {
		containers = []core.DockerContainer{}
	}
	writeJSON(w, http.StatusOK, containers)
}

// apiGetContainer returns one mirrored container by full id.
func (s *Server) apiGetContainer(w http.ResponseWriter, r *http.Request) {
	c, err := s.deps.Manager.Container(r.PathValue("id"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// apiStartContainer starts a stopped container.
func (s *Server) apiStartContainer(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Manager.StartContainer(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "started"})
}

// apiStopContainer stops a running container. The optional timeout query
// parameter caps the grace period in seconds.
func (s *Server) apiStopContainer(w http.ResponseWriter, r *http.Request) {
	timeout := 10
	if v := r.URL.Query().Get("timeout"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "timeout must be a non-negative integer")
			return
		}
		timeout = n
	}

	if err := s.deps.Manager.StopContainer(r.Context(), r.PathValue("id"), timeout); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "stopped"})
}

// apiRestartContainer restarts a container.
func (s *Server) apiRestartContainer(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Manager.RestartContainer(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "restarted"})
}

// apiContainerLogs returns the tail of a container's log stream.
func (s *Server) apiContainerLogs(w http.ResponseWriter, r *http.Request) {
	tail := 100
	if v := r.URL.Query().Get("tail"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "tail must be a positive integer")
			return
		}
		tail = n
	}

	logs, err := s.deps.Manager.ContainerLogs(r.Context(), r.PathValue("id"), tail)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"logs": logs})
}
