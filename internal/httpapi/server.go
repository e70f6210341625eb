package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"optrack/internal/domain"
	"optrack/internal/lifecycle"
)

// Server serves the position-tracker HTTP API.
type Server struct {
	coord *lifecycle.Coordinator
	log   *slog.Logger
}

// NewServer creates a Server over an initialized coordinator.
func NewServer(coord *lifecycle.Coordinator, log *slog.Logger) *Server {
	return &Server{coord: coord, log: log}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/positions/active", s.handleActive)
	mux.HandleFunc("GET /api/positions/inactive", s.handleInactive)
	mux.HandleFunc("POST /api/positions", s.handleAdd)
	mux.HandleFunc("DELETE /api/positions/{id}", s.handleDelete)
}

// Handler returns an http.Handler with CORS middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return corsMiddleware(mux)
}

func (s *Server) handleActive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.ActivePositions())
}

func (s *Server) handleInactive(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.coord.InactivePositions())
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	var req AddPositionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		if !errors.Is(err, domain.ErrValidation) {
			err = fmt.Errorf("%w: %v", domain.ErrValidation, err)
		}
		s.writeError(w, err)
		return
	}
	terms, err := req.Terms()
	if err != nil {
		s.writeError(w, err)
		return
	}

	id, settled, err := s.coord.AddPosition(r.Context(), terms)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, AddPositionResponse{ID: id, Settled: settled})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		s.writeError(w, domain.ErrValidation)
		return
	}

	settled, err := s.coord.DeletePosition(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, DeletePositionResponse{Settled: settled})
}

// writeError maps the domain error taxonomy onto HTTP status codes.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrNoData), errors.Is(err, domain.ErrQuoteNotFound):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
