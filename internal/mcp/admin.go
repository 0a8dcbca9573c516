// ABOUTME: Admin HTTP routes for profile inspection and switching.
// ABOUTME: Also serves the health endpoint used by the health subcommand.

package mcp

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/2389/mcp-hub/internal/store"
)

// profileStatus is the response body for GET /api/profile.
type profileStatus struct {
	Current   string   `json:"current,omitempty"`
	Available []string `json:"available"`
	Backends  []string `json:"backends"`
}

// switchRequest is the request body for POST /api/profile.
type switchRequest struct {
	Name string `json:"name"`
}

// UsageReporter serves the audit queries behind /api/usage.
// *store.SQLiteStore satisfies it.
type UsageReporter interface {
	UsageSummary(ctx context.Context) ([]*store.ToolUsage, error)
	ListInvocations(ctx context.Context, limit int) ([]*store.InvocationRecord, error)
}

// usageReport is the response body for GET /api/usage.
type usageReport struct {
	Summary []*store.ToolUsage        `json:"summary"`
	Recent  []*store.InvocationRecord `json:"recent"`
}

// recentInvocationsLimit caps the recent list in a usage report.
const recentInvocationsLimit = 50

func (s *Server) registerAdminRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/profile", s.handleProfile)
	mux.HandleFunc("/api/usage", s.handleUsage)
	mux.HandleFunc("/health", s.handleHealth)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.profileStatus(w)
	case http.MethodPost:
		s.switchProfile(w, r)
	default:
		w.Header().Set("Allow", "GET, POST")
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) profileStatus(w http.ResponseWriter) {
	current, _ := s.profiles.CurrentProfile()
	available, err := s.profiles.Available()
	if err != nil {
		s.logger.Warn("listing profiles", "error", err)
	}

	status := profileStatus{
		Current:   current,
		Available: available,
		Backends:  s.profiles.ConnectedBackends(),
	}
	if status.Available == nil {
		status.Available = []string{}
	}
	if status.Backends == nil {
		status.Backends = []string{}
	}
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) switchProfile(w http.ResponseWriter, r *http.Request) {
	var req switchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxRequestBodySize)).Decode(&req); err != nil {
		http.Error(w, "Bad Request: invalid JSON", http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		http.Error(w, "Bad Request: name is required", http.StatusBadRequest)
		return
	}

	if err := s.profiles.Activate(r.Context(), req.Name); err != nil {
		s.logger.Error("profile switch failed", "profile", req.Name, "error", err)
		writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": err.Error()})
		return
	}

	s.logger.Info("profile switched", "profile", req.Name)
	s.profileStatus(w)
}

func (s *Server) handleUsage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.usage == nil {
		http.Error(w, "Not Found: auditing is not enabled", http.StatusNotFound)
		return
	}

	summary, err := s.usage.UsageSummary(r.Context())
	if err != nil {
		s.logger.Error("querying usage summary", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	recent, err := s.usage.ListInvocations(r.Context(), recentInvocationsLimit)
	if err != nil {
		s.logger.Error("listing invocations", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	report := usageReport{Summary: summary, Recent: recent}
	if report.Summary == nil {
		report.Summary = []*store.ToolUsage{}
	}
	if report.Recent == nil {
		report.Recent = []*store.InvocationRecord{}
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}
	current, _ := s.profiles.CurrentProfile()
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"profile":  current,
		"sessions": s.sessions.Count(),
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
