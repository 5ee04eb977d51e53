package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"

	v1 "github.com/gosuda/coachlink/internal/api/v1"
	"github.com/gosuda/coachlink/internal/api/ws"
	"github.com/gosuda/coachlink/internal/config"
	"github.com/gosuda/coachlink/internal/domain"
	"github.com/gosuda/coachlink/internal/server/middleware"
)

// Deps are the components the local API exposes.
type Deps struct {
	Session      v1.SessionController
	Health       domain.HealthRecorder
	Events       ws.Subscriber
	EventChannel string
	// Ready reports whether backing stores are reachable. Optional.
	Ready func(ctx context.Context) error
}

// Server is the local control API: session state, messages, health data
// ingestion and the session event stream.
type Server struct {
	router     chi.Router
	httpServer *http.Server
	deps       Deps
}

// New creates a Server with all routes wired. ctx bounds background work
// such as rate limiter cleanup.
func New(ctx context.Context, cfg config.APIConfig, deps Deps) *Server {
	router := chi.NewRouter()

	// Global middleware stack.
	router.Use(chimw.RequestID)
	router.Use(chimw.RealIP)
	router.Use(chimw.Logger)
	router.Use(chimw.Recoverer)
	router.Use(cors.New(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)

	s := &Server{
		router: router,
		deps:   deps,
		httpServer: &http.Server{
			Addr:         cfg.Addr,
			Handler:      router,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			BaseContext:  func(net.Listener) context.Context { return ctx },
		},
	}

	router.Route("/api/v1", func(r chi.Router) {
		if cfg.JWTSecret != "" {
			r.Use(middleware.Auth(cfg.JWTSecret, deps.Session.UserID()))
		}
		r.Use(middleware.RateLimitByIP(ctx, cfg.RateLimit, cfg.RateBurst))

		apiConfig := huma.DefaultConfig("coachlink API", "1.0.0")
		apiConfig.Servers = []*huma.Server{
			{URL: "/api/v1"},
		}
		api := humachi.New(r, apiConfig)
		registerAPIRoutes(api, deps)
	})

	if deps.Events != nil {
		hub := ws.NewHub(deps.Events, deps.EventChannel, s.snapshot, originHosts(cfg.CORSOrigins))
		router.Route("/ws", func(r chi.Router) {
			if cfg.JWTSecret != "" {
				r.Use(middleware.Auth(cfg.JWTSecret, deps.Session.UserID()))
			}
			registerWSRoutes(r, hub)
		})
	}

	// Health check (unauthenticated).
	router.Get("/healthz", s.healthz)

	return s
}

// Handler returns the root handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

type snapshot struct {
	Session  any              `json:"session"`
	Messages []domain.Message `json:"messages"`
}

func (s *Server) snapshot() any {
	return snapshot{Session: s.deps.Session.Info(), Messages: s.deps.Session.Messages()}
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	body := map[string]string{
		"status":  "ok",
		"session": string(s.deps.Session.Info().Status),
	}
	if s.deps.Ready != nil {
		if err := s.deps.Ready(r.Context()); err != nil {
			log.Warn().Err(err).Msg("server: readiness check failed")
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// originHosts turns CORS origins into websocket origin host patterns.
func originHosts(origins []string) []string {
	hosts := make([]string, 0, len(origins))
	for _, o := range origins {
		if o == "*" {
			hosts = append(hosts, o)
			continue
		}
		u, err := url.Parse(o)
		if err != nil || u.Host == "" {
			continue
		}
		hosts = append(hosts, u.Host)
	}
	return hosts
}

// Start begins listening for HTTP requests.
func (s *Server) Start(_ context.Context) error {
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server.Start: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server.Shutdown: %w", err)
	}
	return nil
}
