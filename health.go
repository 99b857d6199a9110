package transitdata

import (
	"encoding/json"
	"net/http"
)

type healthResponse struct {
	Status        string `json:"status"`
	Running       bool   `json:"running"`
	Artifacts     int    `json:"artifacts"`
	LastRunID     string `json:"last_run_id,omitempty"`
	LastRunStatus string `json:"last_run_status,omitempty"`
	LastRunEpoch  int64  `json:"last_run_epoch"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	m := s.runner.Manifest()
	resp := healthResponse{
		Status:    "ok",
		Running:   s.runner.Running(),
		Artifacts: len(m.Artifacts()),
	}
	if last, ok := m.LastRun(); ok {
		resp.LastRunID = last.ID
		resp.LastRunStatus = last.Status
		resp.LastRunEpoch = last.Finished.Unix()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleManifest(w http.ResponseWriter, r *http.Request) {
	m := s.runner.Manifest()
	writeJSON(w, http.StatusOK, map[string]any{
		"artifacts": m.Artifacts(),
		"runs":      m.Runs(),
	})
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	opts := s.opts
	if only := r.URL.Query().Get("only"); only != "" {
		opts.Only = only
	}
	if feed := r.URL.Query().Get("feed"); feed != "" {
		opts.Feed = feed
	}
	if _, err := s.runner.jobs(opts); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !s.runner.RunAsync(s.ctx, opts) {
		writeJSON(w, http.StatusConflict, map[string]string{"error": ErrRunInProgress.Error()})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}
