// Package control is the daemon's local HTTP API. CLI commands that find a running
// writer send their intents here instead of opening the store for writing.
package control

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/julianstephens/streakline/internal/constants"
	"github.com/julianstephens/streakline/internal/coordinator"
	apperrors "github.com/julianstephens/streakline/internal/errors"
	"github.com/julianstephens/streakline/internal/logger"
	"github.com/julianstephens/streakline/internal/metrics"
	"github.com/julianstephens/streakline/internal/tracker"
)

// IntentResponse is the body returned by POST /intents.
type IntentResponse struct {
	Changed       bool   `json:"changed"`
	Habit         string `json:"habit"`
	Streak        int    `json:"streak"`
	LongestStreak int    `json:"longest_streak"`
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

type Server struct {
	tracker *tracker.Tracker
	coord   *coordinator.Coordinator
	metrics *metrics.Sync
	secret  string
}

func NewServer(tr *tracker.Tracker, coord *coordinator.Coordinator, m *metrics.Sync, secret string) *Server {
	return &Server{tracker: tr, coord: coord, metrics: m, secret: secret}
}

// Router returns the authenticated control routes plus the public health,
// status and metrics routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	s.mountPublic(r)
	r.Group(func(r chi.Router) {
		r.Use(s.authenticate)
		r.Post("/intents", s.handleIntent)
		r.Post("/refresh", s.handleRefresh)
	})
	return r
}

// PublicRouter serves only the unauthenticated routes, for the metrics listener.
func (s *Server) PublicRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	s.mountPublic(r)
	return r
}

func (s *Server) mountPublic(r chi.Router) {
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/status", s.handleStatus)
	r.Handle("/metrics", s.metrics.Handler())
}

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := r.Header.Get(constants.ControlHeader)
		if s.secret == "" || subtle.ConstantTimeCompare([]byte(got), []byte(s.secret)) != 1 {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "invalid control secret", Kind: "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleIntent(w http.ResponseWriter, r *http.Request) {
	var in tracker.Intent
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Kind: "invalid_config"})
		return
	}

	res, err := s.tracker.Apply(r.Context(), in)
	s.metrics.Intent(in.Action.String(), err)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ResponseFor(res))
}

// ResponseFor summarizes a local tracker result the way the daemon reports it.
func ResponseFor(res tracker.Result) IntentResponse {
	return IntentResponse{
		Changed:       res.Changed,
		Habit:         res.Habit.Name,
		Streak:        res.Habit.Streak,
		LongestStreak: res.Habit.LongestStreak,
	}
}

func (s *Server) handleRefresh(w http.ResponseWriter, _ *http.Request) {
	if s.coord == nil {
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "sync is not running", Kind: "unavailable"})
		return
	}
	if err := s.coord.Refresh(); err != nil {
		status, kind := http.StatusServiceUnavailable, "unavailable"
		if errors.Is(err, coordinator.ErrRefreshThrottled) {
			status, kind = http.StatusTooManyRequests, "throttled"
		}
		writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "queued"})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	if s.coord == nil {
		writeJSON(w, http.StatusOK, coordinator.Status{})
		return
	}
	writeJSON(w, http.StatusOK, s.coord.Status())
}

// writeError maps the domain error taxonomy onto HTTP statuses. The kind field
// lets the client rebuild a matching sentinel.
func writeError(w http.ResponseWriter, err error) {
	status, kind := http.StatusInternalServerError, "internal"
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		status, kind = http.StatusNotFound, "not_found"
	case errors.Is(err, apperrors.ErrInvalidConfig):
		status, kind = http.StatusBadRequest, "invalid_config"
	case errors.Is(err, apperrors.ErrNotAllowed):
		status, kind = http.StatusConflict, "not_allowed"
	case errors.Is(err, apperrors.ErrSourceUnavailable):
		status, kind = http.StatusServiceUnavailable, "source_unavailable"
	default:
		logger.Error("Control request failed", "error", err)
	}
	writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("Failed to encode control response", "error", err)
	}
}
