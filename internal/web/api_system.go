package web

import (
	"fmt"
	"net/http"
	"runtime"
	"time"
)

// apiStats returns entity counts across the control plane.
func (s *Server) apiStats(w http.ResponseWriter, r *http.Request) {
	type statsResponse struct {
		Routes       int `json:"routes"`
		Certificates int `json:"certificates"`
		Containers   int `json:"containers"`
		Networks     int `json:"networks"`
		Projects     int `json:"projects"`
		Applications int `json:"applications"`
		Repos        int `json:"repos"`
	}

	var resp statsResponse
	if routes, err := s.deps.Registry.ListRoutes(r.Context()); err == nil {
		resp.Routes = len(routes)
	}
	if certs, err := s.deps.Registry.ListCertificates(r.Context()); err == nil {
		resp.Certificates = len(certs)
	}
	if projects, err := s.deps.Registry.ListProjects(r.Context()); err == nil {
		resp.Projects = len(projects)
	}
	if apps, err := s.deps.Registry.ListApplications(r.Context()); err == nil {
		resp.Applications = len(apps)
	}
	if repos, err := s.deps.Registry.ListGitRepos(r.Context()); err == nil {
		resp.Repos = len(repos)
	}
	resp.Containers = len(s.deps.Manager.Containers())
	resp.Networks = len(s.deps.Manager.Networks())

	writeJSON(w, http.StatusOK, resp)
}

// apiHealth is the liveness probe.
func (s *Server) apiHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{Status: "ok"})
}

// apiSystemInfo returns runtime information about this instance.
func (s *Server) apiSystemInfo(w http.ResponseWriter, r *http.Request) {
	type infoResponse struct {
		Version       string    `json:"version"`
		GoVersion     string    `json:"go_version"`
		Platform      string    `json:"platform"`
		Goroutines    int       `json:"goroutines"`
		Uptime        string    `json:"uptime"`
		StartedAt     time.Time `json:"started_at"`
		ConfigVersion int64     `json:"config_version"`
	}

	resp := infoResponse{
		Version:    s.deps.Version,
		GoVersion:  runtime.Version(),
		Platform:   runtime.GOOS + "/" + runtime.GOARCH,
		Goroutines: runtime.NumGoroutine(),
		Uptime:     formatUptime(time.Since(s.started)),
		StartedAt:  s.started,
	}
	if v, err := s.deps.Registry.ConfigVersion(r.Context()); err == nil {
		resp.ConfigVersion = v
	}
	writeJSON(w, http.StatusOK, resp)
}

// apiSystemRestart exits the process after the response is written, for a
// supervisor to bring it back up.
func (s *Server) apiSystemRestart(w http.ResponseWriter, _ *http.Request) {
	if s.deps.Restart == nil {
		writeError(w, http.StatusServiceUnavailable, "restart is not available")
		return
	}
	s.deps.Log.Warn("restart requested over api")
	go func() {
		time.Sleep(time.Second)
		s.deps.Restart()
	}()
	writeJSON(w, http.StatusOK, statusResponse{Status: "restarting"})
}

// formatUptime formats a duration into a human-readable "Xd Xh Xm" string.
func formatUptime(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	mins := int(d.Minutes()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm", days, hours, mins)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, mins)
	}
	return fmt.Sprintf("%dm", mins)
}
