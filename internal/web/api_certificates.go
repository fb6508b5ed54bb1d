package web

import (
	"net/http"

	"github.com/dockhand-io/dockhand/internal/core"
)

// apiListCertificates returns all issued certificates.
func (s *Server) apiListCertificates(w http.ResponseWriter, r *http.Request) {
	certs, err := s.deps.Registry.ListCertificates(r.Context())
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	if certs == nil {
		certs = []core.Certificate{}
	}
	writeJSON(w, http.StatusOK, certs)
}

// apiGetCertificate returns the certificate for one domain.
func (s *Server) apiGetCertificate(w http.ResponseWriter, r *http.Request) {
	cert, err := s.deps.Registry.GetCertificate(r.Context(), r.PathValue("domain"))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cert)
}

// apiRequestCertificate orders a certificate for a domain. The order runs
// synchronously; HTTP-01 validation has to complete before this returns.
func (s *Server) apiRequestCertificate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Domain string `json:"domain"`
	}
	if err := decodeJSON(w, r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	if req.Domain == "" {
		writeError(w, http.StatusBadRequest, "domain is required")
		return
	}
	if s.deps.Certs == nil {
		writeError(w, http.StatusServiceUnavailable, "certificate issuing is not configured")
		return
	}

	cert, err := s.deps.Certs.ObtainCertificate(r.Context(), req.Domain)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, cert)
}

// apiDeleteCertificate removes a certificate record.
func (s *Server) apiDeleteCertificate(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Registry.DeleteCertificate(r.Context(), r.PathValue("domain")); err != nil {
		s.writeDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
