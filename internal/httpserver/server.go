package httpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/lugatuic/passwd-webui/middleware"
	"github.com/lugatuic/passwd-webui/server"
)

// ProfileService is the profile workflow plus the readiness check.
type ProfileService interface {
	server.ProfileService
	Ping(ctx context.Context) error
}

// Server composes dependencies and constructs the HTTP handler graph.
type Server struct {
	logger   *zap.Logger
	svc      ProfileService
	renderer server.Renderer
	static   http.Handler
}

// New creates a Server. static serves the embedded assets under /static/.
func New(logger *zap.Logger, svc ProfileService, renderer server.Renderer, static http.Handler) *Server {
	return &Server{
		logger:   logger,
		svc:      svc,
		renderer: renderer,
		static:   static,
	}
}

// Handler wires routes and middleware, returning the root handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(s.logger, w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
	})
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondJSON(s.logger, w, http.StatusNotFound, map[string]string{"error": "not found"})
	})

	// Health endpoints
	r.Get("/livez", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := s.svc.Ping(ctx); err != nil {
			s.logger.Warn("readyz.ping_failed", zap.Error(err))
			respondJSON(s.logger, w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
		respondJSON(s.logger, w, http.StatusOK, map[string]string{"status": "ready"})
	})

	// HTML forms
	r.Method(http.MethodGet, "/", s.makeAppHandler(func(w http.ResponseWriter, r *http.Request) error {
		return server.HandleIndex(s.renderer, w, r)
	}))
	r.Method(http.MethodPost, "/", s.makeAppHandler(func(w http.ResponseWriter, r *http.Request) error {
		return server.HandleLogin(s.svc, s.renderer, w, r)
	}))
	r.Method(http.MethodPost, "/edit", s.makeAppHandler(func(w http.ResponseWriter, r *http.Request) error {
		return server.HandleEdit(s.svc, s.renderer, w, r)
	}))

	// JSON API
	r.Route("/api/v1", func(r chi.Router) {
		r.Method(http.MethodPost, "/profile", s.makeAppHandler(func(w http.ResponseWriter, r *http.Request) error {
			return server.HandleLoadProfileJSON(s.svc, w, r)
		}))
		r.Method(http.MethodPut, "/profile", s.makeAppHandler(func(w http.ResponseWriter, r *http.Request) error {
			return server.HandleUpdateProfileJSON(s.svc, w, r)
		}))
	})

	if s.static != nil {
		r.Handle("/static/*", http.StripPrefix("/static/", s.static))
	}
	r.Get("/favicon.ico", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	// Recover (outer), RequestID, Logger.
	var handler http.Handler = r
	handler = middleware.Logger(s.logger, handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recover(s.logger, handler)

	return handler
}

// appHandler is an application handler that returns an error.
// Errors are logged and translated to HTTP responses by the adapter.
type appHandler func(http.ResponseWriter, *http.Request) error

// makeAppHandler adapts appHandler to http.Handler with sanitized error responses.
func (s *Server) makeAppHandler(fn appHandler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Pages and responses carry personal data.
		w.Header().Set("Cache-Control", "no-store")
		if err := fn(w, r); err != nil {
			s.logger.Error("handler.error",
				zap.Error(err),
				zap.String("path", r.URL.Path),
				zap.String("method", r.Method),
				zap.String("request_id", r.Header.Get(middleware.RequestIDHeader)),
			)
			// Do not leak internal details.
			respondJSON(s.logger, w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}
	})
}

// respondJSON writes a JSON response with proper headers.
func respondJSON(logger *zap.Logger, w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		if logger != nil {
			logger.Error("respond_json.encode_error", zap.Error(err))
		}
		_, _ = w.Write([]byte("\n"))
	}
}
