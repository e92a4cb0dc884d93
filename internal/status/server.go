package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/andresmejia3/checkpoint/internal/checkpoint"
	"github.com/andresmejia3/checkpoint/internal/logger"
	"github.com/andresmejia3/checkpoint/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// StatsSource reports controller counters.
type StatsSource interface {
	Stats() checkpoint.Stats
}

// RecordLister reads stored attendance.
type RecordLister interface {
	List(ctx context.Context, date string) ([]store.Record, error)
}

// Response is the body of GET /status.
type Response struct {
	checkpoint.Stats
	GallerySize int `json:"gallery_size"`
}

// Server is the read-only status surface. It never touches the claim loop.
type Server struct {
	router      *chi.Mux
	httpServer  *http.Server
	stats       StatsSource
	records     RecordLister
	gallerySize int
}

// NewServer creates the status server listening on addr.
func NewServer(addr string, stats StatsSource, records RecordLister, gallerySize int) *Server {
	r := chi.NewRouter()

	s := &Server{
		router:      r,
		stats:       stats,
		records:     records,
		gallerySize: gallerySize,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(10 * time.Second))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Get("/status", s.handleStatus)
	s.router.Get("/attendance", s.handleAttendance)
}

// Handler exposes the router, mostly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	logger.Info("Status server listening", logger.LoggerOptions{Key: "addr", Data: s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start status server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := Response{GallerySize: s.gallerySize}
	if s.stats != nil {
		resp.Stats = s.stats.Stats()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleAttendance(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	if date != "" {
		if _, err := time.Parse(store.DateLayout, date); err != nil {
			respondError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
	}
	if s.records == nil {
		respondJSON(w, http.StatusOK, []store.Record{})
		return
	}

	records, err := s.records.List(r.Context(), date)
	if err != nil {
		logger.Error("Failed to list attendance", logger.LoggerOptions{Key: "error", Data: err})
		respondError(w, http.StatusInternalServerError, "failed to list attendance")
		return
	}
	if records == nil {
		records = []store.Record{}
	}
	respondJSON(w, http.StatusOK, records)
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
