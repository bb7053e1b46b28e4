// Package api exposes the operational HTTP interface: health, metrics,
// recent and stuck run listings, and the kill switch.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Abishekkhanal/sikkimjobs/internal/ingest"
	"github.com/Abishekkhanal/sikkimjobs/internal/metrics"
)

// Server wires the ops endpoints to the store-backed repositories.
type Server struct {
	router     chi.Router
	runs       *ingest.RunRepo
	killSwitch *ingest.KillSwitch
	clock      ingest.Clock
	maxRunAge  time.Duration
	logger     *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	runs *ingest.RunRepo,
	killSwitch *ingest.KillSwitch,
	clock ingest.Clock,
	maxRunAge time.Duration,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		runs:       runs,
		killSwitch: killSwitch,
		clock:      clock,
		maxRunAge:  maxRunAge,
		logger:     logger,
	}

	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Get("/runs", s.listRuns)
		r.Get("/runs/stuck", s.listStuckRuns)
		r.Get("/control", s.getControl)
		r.Post("/control", s.setControl)
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 200 {
			limit = v
		}
	}
	runs, err := s.runs.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("list runs failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs})
}

// listStuckRuns surfaces runs that never reached finalization: still
// "running" but started longer ago than any plausible run lasts. Each one is
// evidence of a crashed process.
func (s *Server) listStuckRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.runs.Stuck(r.Context(), s.clock.Now(), s.maxRunAge)
	if err != nil {
		s.logger.Error("stuck run query failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "stuck run query failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stuck": runs, "maxRunAge": s.maxRunAge.String()})
}

func (s *Server) getControl(w http.ResponseWriter, r *http.Request) {
	enabled, err := s.killSwitch.Enabled(r.Context())
	if err != nil {
		s.logger.Error("kill switch read failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "kill switch read failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": enabled})
}

func (s *Server) setControl(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Enabled bool   `json:"enabled"`
		Reason  string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid body"})
		return
	}
	if err := s.killSwitch.SetEnabled(r.Context(), body.Enabled, body.Reason); err != nil {
		s.logger.Error("kill switch update failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "kill switch update failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"enabled": body.Enabled})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				http.Error(w, "internal error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
