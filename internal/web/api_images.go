package web

import (
	"net/http"

	"github.com/dockhand-io/dockhand/internal/docker"
)

// apiListImages returns the local images, flagging the ones containers use.
func (s *Server) apiListImages(w http.ResponseWriter, r *http.Request) {
	if s.deps.Images == nil {
		writeError(w, http.StatusServiceUnavailable, "image management not available")
		return
	}
	images, err := s.deps.Images.ListImages(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if images == nil {
		images = []docker.ImageSummary{}
	}
	writeJSON(w, http.StatusOK, images)
}

// apiPruneImages removes dangling images and reports what was reclaimed.
func (s *Server) apiPruneImages(w http.ResponseWriter, r *http.Request) {
	if s.deps.Images == nil {
		writeError(w, http.StatusServiceUnavailable, "image management not available")
		return
	}
	result, err := s.deps.Images.PruneImages(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// apiRemoveImage removes one image by id or reference.
func (s *Server) apiRemoveImage(w http.ResponseWriter, r *http.Request) {
	if s.deps.Images == nil {
		writeError(w, http.StatusServiceUnavailable, "image management not available")
		return
	}
	if err := s.deps.Images.RemoveImage(r.Context(), r.PathValue("id")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse{Status: "removed"})
}
