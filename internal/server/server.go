package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"memorymatch/internal/game"
	"memorymatch/internal/game/memory"
	"memorymatch/internal/session"
)

// Options configures a Server.
type Options struct {
	Secret   []byte
	TokenTTL time.Duration
	Logger   zerolog.Logger
}

// Server is the HTTP server.
type Server struct {
	r        *chi.Mux
	registry *game.Registry
	manager  *session.Manager
	tokens   tokenIssuer
	log      zerolog.Logger
}

// New creates a server with all routes.
func New(registry *game.Registry, manager *session.Manager, opts Options) *Server {
	s := &Server{
		r:        chi.NewRouter(),
		registry: registry,
		manager:  manager,
		tokens:   tokenIssuer{secret: opts.Secret, ttl: opts.TokenTTL},
		log:      opts.Logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.r.Use(chimw.RequestID)
	s.r.Use(chimw.RealIP)
	s.r.Use(chimw.Recoverer)
	s.r.Use(s.requestLogger)

	s.r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	})

	s.r.Route("/api", func(r chi.Router) {
		r.Get("/modes", s.handleListModes)

		r.Post("/profiles", s.handleCreateProfile)
		r.Route("/profiles/{id}", func(r chi.Router) {
			r.Use(s.requireProfile)
			r.Get("/", s.handleGetProfile)
			r.Post("/session", s.handleOpenSession)
			r.Delete("/save", s.handleClearSave)
		})

		r.Get("/sessions", s.handleListSessions)
		r.Route("/sessions/{code}", func(r chi.Router) {
			r.Get("/", s.handleGetSession)
			r.Post("/tap", s.handleTap)
			r.Post("/suspend", s.handleSuspend)
			r.Post("/restart", s.handleRestart)
			r.Get("/ws", s.handleWebSocket)
		})
	})

	s.r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, "not found")
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.r.ServeHTTP(w, r)
}

// requestLogger logs one line per request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.log.Debug().
			Str("request_id", chimw.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Dur("elapsed", time.Since(start)).
			Msg("http request")
	})
}

func (s *Server) handleListModes(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.List())
}

type createProfileRequest struct {
	Name string `json:"name"`
	Mode string `json:"mode"`
}

type createProfileResponse struct {
	ProfileID string    `json:"profileId"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

func (s *Server) handleCreateProfile(w http.ResponseWriter, r *http.Request) {
	var req createProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name required")
		return
	}

	p, err := s.manager.CreateProfile(req.Name, strings.TrimSpace(req.Mode))
	if errors.Is(err, session.ErrUnknownMode) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.log.Error().Err(err).Msg("create profile")
		writeError(w, http.StatusInternalServerError, "could not create profile")
		return
	}

	token, exp, err := s.tokens.issue(p.ID)
	if err != nil {
		s.log.Error().Err(err).Msg("sign token")
		writeError(w, http.StatusInternalServerError, "could not issue token")
		return
	}
	writeJSON(w, http.StatusCreated, createProfileResponse{ProfileID: p.ID, Token: token, ExpiresAt: exp})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.manager.Profile(chi.URLParam(r, "id"))
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

type openSessionResponse struct {
	Code  string       `json:"code"`
	State memory.State `json:"state"`
}

func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.manager.Open(chi.URLParam(r, "id"))
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, openSessionResponse{Code: sess.Code, State: sess.State()})
}

func (s *Server) handleClearSave(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.ResetProfile(chi.URLParam(r, "id")); err != nil {
		s.writeManagerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.manager.List())
}

type sessionResponse struct {
	Info  session.Info `json:"info"`
	State memory.State `json:"state"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, ok := s.manager.Get(chi.URLParam(r, "code"))
	if !ok {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, sessionResponse{Info: sess.Info(), State: sess.State()})
}

type tapRequest struct {
	Index *int `json:"index"`
}

type tapResponse struct {
	Accepted bool         `json:"accepted"`
	State    memory.State `json:"state"`
}

func (s *Server) handleTap(w http.ResponseWriter, r *http.Request) {
	var req tapRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Index == nil {
		writeError(w, http.StatusBadRequest, "index required")
		return
	}
	ok, st, err := s.manager.Tap(chi.URLParam(r, "code"), *req.Index)
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, tapResponse{Accepted: ok, State: st})
}

func (s *Server) handleSuspend(w http.ResponseWriter, r *http.Request) {
	if err := s.manager.Suspend(chi.URLParam(r, "code")); err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "suspended"})
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	st, err := s.manager.Restart(chi.URLParam(r, "code"))
	if err != nil {
		s.writeManagerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) writeManagerError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrProfileNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, session.ErrUnknownMode):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.log.Error().Err(err).Msg("request failed")
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
