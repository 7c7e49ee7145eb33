// Package api exposes the stabilizer's control plane over HTTP: the
// toggle/reset/stats commands, the synchronous detection ingest used by
// upstream perception callers, and debug charts.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/banshee-data/stability.report/internal/config"
	"github.com/banshee-data/stability.report/internal/monitoring"
	"github.com/banshee-data/stability.report/internal/stabilize"
	storage "github.com/banshee-data/stability.report/internal/storage/sqlite"
)

// Server carries the handler dependencies. The store may be nil; chart
// and history endpoints then report 404.
type Server struct {
	stab   *stabilize.Stabilizer
	store  storage.TrackStore
	tuning *config.TuningConfig
}

// NewServer creates the API server around an engine, an optional store,
// and the loaded tuning configuration.
func NewServer(stab *stabilize.Stabilizer, store storage.TrackStore, tuning *config.TuningConfig) *Server {
	return &Server{stab: stab, store: store, tuning: tuning}
}

// RegisterRoutes mounts all API and debug endpoints on mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/healthz", s.handleHealthz)
	mux.HandleFunc("/api/detections", s.handleIngest)
	mux.HandleFunc("/api/stabilize/toggle", s.handleToggle)
	mux.HandleFunc("/api/stabilize/enable", s.handleEnable)
	mux.HandleFunc("/api/stabilize/disable", s.handleDisable)
	mux.HandleFunc("/api/stabilize/reset", s.handleReset)
	mux.HandleFunc("/api/stabilize/reset-stats", s.handleResetStats)
	mux.HandleFunc("/api/stabilize/stats", s.handleStats)
	mux.HandleFunc("/api/stabilize/params", s.handleParams)
	mux.HandleFunc("/debug/stabilize/charts", s.handleStatsChart)
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		monitoring.Logf("api: failed to encode response: %v", err)
	}
}

func (s *Server) writeJSONError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"enabled": s.stab.Enabled(),
	})
}

// handleIngest is the synchronous perception entry point: a batch of raw
// detections for one source goes in, the stabilized batch comes out.
// Invalid detections in the batch are skipped and reported, not fatal.
func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sourceID := r.URL.Query().Get("source")
	if sourceID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing 'source' parameter")
		return
	}

	var detections []stabilize.Detection
	if err := json.NewDecoder(r.Body).Decode(&detections); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("parse detections: %v", err))
		return
	}

	stabilized, perr := s.stab.Process(detections, sourceID)
	resp := map[string]any{
		"source_id":  sourceID,
		"enabled":    s.stab.Enabled(),
		"raw":        len(detections),
		"stabilized": stabilized,
	}
	if perr != nil {
		resp["skipped"] = perr.Error()
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	enabled := s.stab.Toggle()
	monitoring.Logf("api: stabilization toggled, enabled=%v", enabled)
	s.writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (s *Server) handleEnable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.stab.Enable()
	s.writeJSON(w, http.StatusOK, map[string]bool{"enabled": true})
}

func (s *Server) handleDisable(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.stab.Disable()
	s.writeJSON(w, http.StatusOK, map[string]bool{"enabled": false})
}

// handleReset clears tracks for one source, or all sources when no
// source parameter is given. Cumulative stats are left alone; use
// reset-stats for those.
func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sourceID := r.URL.Query().Get("source")
	if sourceID == "" {
		s.stab.ResetAll()
		s.writeJSON(w, http.StatusOK, map[string]string{"reset": "all"})
		return
	}
	s.stab.Reset(sourceID)
	s.writeJSON(w, http.StatusOK, map[string]string{"reset": sourceID})
}

func (s *Server) handleResetStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sourceID := r.URL.Query().Get("source")
	if sourceID == "" {
		s.writeJSONError(w, http.StatusBadRequest, "missing 'source' parameter")
		return
	}
	s.stab.ResetStats(sourceID)
	s.writeJSON(w, http.StatusOK, map[string]string{"stats_reset": sourceID})
}

// handleStats returns the snapshot for one source, or a map of all
// known sources when no source parameter is given. Never errors for an
// unknown source: the caller gets zeroed counters.
func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	sourceID := r.URL.Query().Get("source")
	if sourceID != "" {
		s.writeJSON(w, http.StatusOK, s.stab.Stats(sourceID))
		return
	}
	all := make(map[string]stabilize.Stats)
	for _, id := range s.stab.Sources() {
		all[id] = s.stab.Stats(id)
	}
	s.writeJSON(w, http.StatusOK, all)
}

// handleParams reports the effective tuning values the engine was built
// with. Read-only: there is no hot reload.
func (s *Server) handleParams(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	cfg := s.stab.Config()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"min_frames":              cfg.MinFrames,
		"max_gap":                 cfg.MaxGap,
		"appear_confidence":       cfg.AppearConfidence,
		"persist_confidence":      cfg.PersistConfidence,
		"iou_threshold":           cfg.IoUThreshold,
		"max_confidence_history":  cfg.MaxConfidenceHistory,
		"matcher":                 s.stab.MatcherName(),
		"enabled":                 s.stab.Enabled(),
		"stats_snapshot_interval": s.tuning.GetStatsSnapshotInterval().String(),
	})
}
