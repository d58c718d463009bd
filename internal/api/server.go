package api

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/fractionalquest/voicegraph/internal/extractor"
	"github.com/fractionalquest/voicegraph/internal/models"
	"github.com/fractionalquest/voicegraph/internal/store"
	syncpipe "github.com/fractionalquest/voicegraph/internal/sync"
)

// Server is an HTTP API server that exposes the voice-to-graph pipeline.
type Server struct {
	orch      *syncpipe.Orchestrator
	store     store.Store
	logger    *slog.Logger
	authToken string // empty = no auth required
}

// NewServer creates a new Server with the given dependencies.
func NewServer(orch *syncpipe.Orchestrator, st store.Store, logger *slog.Logger, authToken string) *Server {
	return &Server{
		orch:      orch,
		store:     st,
		logger:    logger,
		authToken: authToken,
	}
}

// Handler returns an http.Handler with all routes registered.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Health check, no auth required.
	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("POST /v1/utterances", s.auth(s.handleUtterance))
	mux.HandleFunc("GET /v1/confirmations", s.auth(s.handleListConfirmations))
	mux.HandleFunc("POST /v1/confirmations/{id}/resolve", s.auth(s.handleResolve))
	mux.HandleFunc("GET /v1/records", s.auth(s.handleListRecords))
	mux.HandleFunc("POST /v1/graph/rebuild", s.auth(s.handleRebuild))
	mux.HandleFunc("GET /v1/stats", s.auth(s.handleStats))

	return mux
}

// --- middleware ---

// auth wraps a handler with Bearer token authentication when authToken is set.
func (s *Server) auth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.authToken == "" {
			next(w, r)
			return
		}
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.authToken)) != 1 {
			s.writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

// --- handlers ---

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// utteranceRequest is the body accepted by POST /v1/utterances.
type utteranceRequest struct {
	UserID    string `json:"user_id"`
	UserKind  string `json:"user_kind"`
	Utterance string `json:"utterance"`
}

func (s *Server) handleUtterance(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req utteranceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}
	if req.Utterance == "" {
		s.writeError(w, http.StatusBadRequest, "utterance is required")
		return
	}

	result, err := s.orch.ProcessUtterance(r.Context(), req.UserID, req.UserKind, req.Utterance)
	if err != nil {
		if errors.Is(err, extractor.ErrUtteranceTooShort) {
			s.writeError(w, http.StatusUnprocessableEntity, "utterance too short")
			return
		}
		if errors.Is(err, extractor.ErrExtraction) {
			s.logger.Error("extraction failed", "user_id", req.UserID, "error", err)
			s.writeError(w, http.StatusBadGateway, "extraction failed, please try again")
			return
		}
		s.logger.Error("failed to process utterance", "user_id", req.UserID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to process utterance")
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

// confirmationsResponse is returned by GET /v1/confirmations.
type confirmationsResponse struct {
	Confirmations []models.PendingConfirmation `json:"confirmations"`
}

func (s *Server) handleListConfirmations(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	pending, err := s.orch.ListPending(r.Context(), userID)
	if err != nil {
		s.logger.Error("failed to list confirmations", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list confirmations")
		return
	}

	if pending == nil {
		pending = []models.PendingConfirmation{}
	}
	s.writeJSON(w, http.StatusOK, confirmationsResponse{Confirmations: pending})
}

// resolveRequest is the body accepted by POST /v1/confirmations/{id}/resolve.
type resolveRequest struct {
	Decision models.Decision `json:"decision"`
}

// resolveResponse is returned by POST /v1/confirmations/{id}/resolve. Record
// is null for denials.
type resolveResponse struct {
	Record *models.CanonicalRecord `json:"record"`
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "id is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !req.Decision.IsValid() {
		s.writeError(w, http.StatusBadRequest, "decision must be approve or deny")
		return
	}

	rec, err := s.orch.ResolveConfirmation(r.Context(), id, req.Decision)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			s.writeError(w, http.StatusNotFound, "confirmation not found")
		case errors.Is(err, store.ErrAlreadyResolved):
			s.writeError(w, http.StatusConflict, "confirmation already resolved")
		default:
			s.logger.Error("failed to resolve confirmation", "id", id, "error", err)
			s.writeError(w, http.StatusInternalServerError, "could not save, please retry")
		}
		return
	}

	s.writeJSON(w, http.StatusOK, resolveResponse{Record: rec})
}

// recordsResponse is returned by GET /v1/records.
type recordsResponse struct {
	Records []models.CanonicalRecord `json:"records"`
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	records, err := s.store.ListRecords(r.Context(), userID)
	if err != nil {
		s.logger.Error("failed to list records", "user_id", userID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to list records")
		return
	}

	if records == nil {
		records = []models.CanonicalRecord{}
	}
	s.writeJSON(w, http.StatusOK, recordsResponse{Records: records})
}

// rebuildRequest is the body accepted by POST /v1/graph/rebuild.
type rebuildRequest struct {
	UserID string `json:"user_id"`
}

func (s *Server) handleRebuild(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1 MB limit
	var req rebuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.UserID == "" {
		s.writeError(w, http.StatusBadRequest, "user_id is required")
		return
	}

	n, err := s.orch.RebuildGraph(r.Context(), req.UserID)
	if err != nil {
		s.logger.Error("failed to rebuild graph", "user_id", req.UserID, "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to rebuild graph")
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]int{"nodes": n})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.Stats(r.Context())
	if err != nil {
		s.logger.Error("failed to get stats", "error", err)
		s.writeError(w, http.StatusInternalServerError, "failed to get stats")
		return
	}

	s.writeJSON(w, http.StatusOK, stats)
}

// --- helpers ---

// writeJSON encodes v as JSON and writes it to w with the given status code.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if encErr := json.NewEncoder(w).Encode(v); encErr != nil {
		s.logger.Error("failed to encode response", "error", encErr)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// Shutdown gracefully shuts down an http.Server with the given timeout.
// This is a convenience helper used by the serve command.
func Shutdown(srv *http.Server, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return srv.Shutdown(ctx)
}
