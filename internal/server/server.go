// Package server is the thin HTTP boundary over the pipeline. It decodes
// the caller-facing request shapes, runs the pipeline, and reports coarse
// job progress through the in-memory job store. No business logic lives
// here.
package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"redline/internal/job"
	"redline/internal/pipeline"
	"redline/internal/playbook"
)

// Server is the HTTP API server for redline.
type Server struct {
	router   chi.Router
	pipe     *pipeline.Pipeline
	jobs     *job.Store
	library  *playbook.Library
	log      *zap.Logger
	maxBytes int64
}

// New creates and configures the HTTP server. The playbook library may be
// nil when serve mode runs without a playbook directory.
func New(pipe *pipeline.Pipeline, jobs *job.Store, library *playbook.Library, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pipe:     pipe,
		jobs:     jobs,
		library:  library,
		log:      logger,
		maxBytes: 32 << 20,
	}
	s.setupRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	r.Get("/healthz", s.handleHealth)
	r.Post("/v1/map", s.handleMap)
	r.Post("/v1/amend", s.handleAmend)
	r.Get("/v1/jobs/{jobID}", s.handleJob)
	r.Get("/v1/playbooks", s.handlePlaybooks)

	s.router = r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// mapResponseBody wraps the pipeline response with the job id the caller
// can poll while a request is in flight.
type mapResponseBody struct {
	JobID string `json:"jobId"`
	*pipeline.MappingResponse
}

func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	var req pipeline.MappingRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Structure) == 0 || len(req.Rules) == 0 {
		jsonError(w, "structure and rules are required", http.StatusBadRequest)
		return
	}

	jobID := s.jobs.Create("map")
	resp, err := s.pipe.MapRules(r.Context(), req, jobID, s.jobs)
	if err != nil {
		s.jobs.Fail(jobID, err)
		s.log.Error("mapping failed", zap.String("jobId", jobID), zap.Error(err))
		jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.jobs.Complete(jobID)
	writeJSON(w, http.StatusOK, mapResponseBody{JobID: jobID, MappingResponse: resp})
}

type amendResponseBody struct {
	JobID string `json:"jobId"`
	*pipeline.AmendResponse
}

func (s *Server) handleAmend(w http.ResponseWriter, r *http.Request) {
	var req pipeline.AmendRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Structure) == 0 {
		jsonError(w, "structure is required", http.StatusBadRequest)
		return
	}

	jobID := s.jobs.Create("amend")
	resp, err := s.pipe.Amend(r.Context(), req, jobID, s.jobs)
	if err != nil {
		s.jobs.Fail(jobID, err)
		s.log.Error("amendment failed", zap.String("jobId", jobID), zap.Error(err))
		jsonError(w, err.Error(), http.StatusBadGateway)
		return
	}
	s.jobs.Complete(jobID)
	writeJSON(w, http.StatusOK, amendResponseBody{JobID: jobID, AmendResponse: resp})
}

func (s *Server) handleJob(w http.ResponseWriter, r *http.Request) {
	j, ok := s.jobs.Get(chi.URLParam(r, "jobID"))
	if !ok {
		jsonError(w, "job not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (s *Server) handlePlaybooks(w http.ResponseWriter, _ *http.Request) {
	if s.library == nil {
		writeJSON(w, http.StatusOK, []string{})
		return
	}
	writeJSON(w, http.StatusOK, s.library.Names())
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		jsonError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func jsonError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}
