package httpapi

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"strconv"

	"sos_engine/internal/metrics"
	"sos_engine/internal/pipeline"
	"sos_engine/internal/store"
)

const defaultIncidentLimit = 100

// Processor scores one SOS submission.
type Processor interface {
	Process(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Incidents is the read side of the incident log.
type Incidents interface {
	ListIncidents(ctx context.Context, limit int) ([]store.Incident, error)
	Health(ctx context.Context) error
}

// Server exposes the SOS intake and reporting endpoints.
type Server struct {
	proc           Processor
	incidents      Incidents
	metrics        *metrics.Metrics
	maxUploadBytes int64
}

func NewServer(proc Processor, inc Incidents, m *metrics.Metrics, maxUploadBytes int64) *Server {
	return &Server{proc: proc, incidents: inc, metrics: m, maxUploadBytes: maxUploadBytes}
}

// Router wires the HTTP surface.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/sos_alert", s.handleSOSAlert)
	mux.HandleFunc("GET /api/v1/incidents", s.handleIncidents)
	mux.HandleFunc("GET /ops/health", s.handleHealth)
	mux.HandleFunc("GET /ops/status", s.handleStatus)
	return mux
}

// handleSOSAlert accepts a multipart form with a required location_data field
// and optional audio_file and text_message parts. Malformed submissions are
// the caller's fault (400); anything past intake answers 500 without detail.
func (s *Server) handleSOSAlert(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		respondError(w, http.StatusBadRequest, "expected multipart form data")
		return
	}
	defer r.MultipartForm.RemoveAll()

	location := r.FormValue("location_data")
	if location == "" {
		respondError(w, http.StatusBadRequest, "location_data is required")
		return
	}

	req := pipeline.Request{
		Location: location,
		Text:     r.FormValue("text_message"),
	}

	if file, header, err := r.FormFile("audio_file"); err == nil {
		data, rerr := io.ReadAll(file)
		file.Close()
		if rerr != nil {
			respondError(w, http.StatusBadRequest, "could not read audio_file")
			return
		}
		req.Audio = data
		req.AudioExt = filepath.Ext(header.Filename)
	}

	res, err := s.proc.Process(r.Context(), req)
	if err != nil {
		log.Printf("httpapi: sos_alert: %v", err)
		respondError(w, http.StatusInternalServerError, "internal error during risk scoring")
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleIncidents(w http.ResponseWriter, r *http.Request) {
	limit := defaultIncidentLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 1000 {
			respondError(w, http.StatusBadRequest, "limit must be in [1, 1000]")
			return
		}
		limit = n
	}
	incidents, err := s.incidents.ListIncidents(r.Context(), limit)
	if err != nil {
		log.Printf("httpapi: list incidents: %v", err)
		respondError(w, http.StatusInternalServerError, "could not list incidents")
		return
	}
	if incidents == nil {
		incidents = []store.Incident{}
	}
	respondJSON(w, http.StatusOK, map[string]any{"incidents": incidents})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.incidents.Health(r.Context()); err != nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, s.metrics.Snapshot())
}

func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("httpapi: write response: %v", err)
	}
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}
