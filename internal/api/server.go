package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"datewatch/internal/config"
	"datewatch/internal/service"
	"datewatch/internal/telemetry"
	"datewatch/internal/tracker"
)

// Server wires HTTP handlers to the tracker service.
type Server struct {
	router  chi.Router
	service *service.Service
	cfg     config.Config
	logger  *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(svc *service.Service, cfg config.Config, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		service: svc,
		cfg:     cfg,
		logger:  logger,
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metricsMiddleware)
	r.Use(timeoutMiddleware(60 * time.Second))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", telemetry.Handler())
	r.Get("/admin", s.adminPage)

	r.Route("/v1/entities", func(r chi.Router) {
		r.Get("/", s.listEntities)
		r.Get("/{identity}", s.getEntity)
		r.Get("/{identity}/stats", s.getStats)

		r.Group(func(r chi.Router) {
			if cfg.Auth.Enabled {
				r.Use(adminTokenMiddleware(cfg.Auth.AdminToken))
			}
			r.Post("/", s.registerEntity)
			r.Patch("/{identity}", s.updateEntity)
			r.Delete("/{identity}", s.deleteEntity)
			r.Post("/{identity}/refresh", s.refreshEntity)
			r.Post("/{identity}/start", s.startPolling)
			r.Post("/{identity}/stop", s.stopPolling)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) registerEntity(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ent, err := s.service.Register(req)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, ent)
}

func (s *Server) listEntities(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"entities": s.service.List()})
}

func (s *Server) getEntity(w http.ResponseWriter, r *http.Request) {
	ent, err := s.service.Get(chi.URLParam(r, "identity"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (s *Server) getStats(w http.ResponseWriter, r *http.Request) {
	// This endpoint feeds automation that cannot handle errors; it
	// answers 200 with {"0", ""} even for unknown identities.
	writeJSON(w, http.StatusOK, s.service.Stats(chi.URLParam(r, "identity")))
}

func (s *Server) updateEntity(w http.ResponseWriter, r *http.Request) {
	var patch tracker.ConfigPatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	ent, err := s.service.UpdateConfig(chi.URLParam(r, "identity"), patch)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (s *Server) deleteEntity(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")
	if err := s.service.Delete(identity); err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"identity": identity, "status": "deleted"})
}

func (s *Server) refreshEntity(w http.ResponseWriter, r *http.Request) {
	ent, status, err := s.service.Refresh(r.Context(), chi.URLParam(r, "identity"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entity": ent, "cycle_status": status})
}

func (s *Server) startPolling(w http.ResponseWriter, r *http.Request) {
	ent, err := s.service.StartPolling(chi.URLParam(r, "identity"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (s *Server) stopPolling(w http.ResponseWriter, r *http.Request) {
	ent, err := s.service.StopPolling(chi.URLParam(r, "identity"))
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ent)
}

func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tracker.ErrNotFound):
		writeError(w, http.StatusNotFound, "entity not found")
	case errors.Is(err, tracker.ErrConflict):
		writeError(w, http.StatusConflict, "entity already exists")
	case tracker.IsConfigError(err):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
