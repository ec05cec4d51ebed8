// Package server assembles the HTTP API: settings, search, history, the
// actuator endpoints and the browser UI behind one chi router.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/ziadkadry99/econsult/internal/history"
	"github.com/ziadkadry99/econsult/internal/identity"
	"github.com/ziadkadry99/econsult/internal/logging"
	"github.com/ziadkadry99/econsult/internal/metrics"
	"github.com/ziadkadry99/econsult/internal/search"
	"github.com/ziadkadry99/econsult/internal/settings"
	"github.com/ziadkadry99/econsult/internal/web"
)

// ServiceName is reported by /health.
const ServiceName = "vector-search-api"

// Config holds server configuration.
type Config struct {
	Host           string
	Port           int
	AppName        string
	Version        string
	Development    bool
	AllowedOrigins []string
	PublicAPIBase  string
	StaticDir      string
}

// Deps are the feature stores and services mounted on the router. Nil
// entries leave their routes out.
type Deps struct {
	Settings          *settings.Store
	SettingsMaxLength int
	History           *history.Store
	Search            *search.Service
	Metrics           *metrics.Collector
}

// ShutdownFunc releases one resource during graceful shutdown.
type ShutdownFunc func(ctx context.Context) error

type shutdownHook struct {
	name string
	fn   ShutdownFunc
}

// Server is the econsult HTTP server.
type Server struct {
	cfg        Config
	deps       Deps
	logger     *zap.Logger
	router     chi.Router
	httpServer *http.Server
	hooks      []shutdownHook
}

// New creates a server with all routes registered.
func New(cfg Config, deps Deps, logger *zap.Logger) (*Server, error) {
	s := &Server{cfg: cfg, deps: deps, logger: logger}
	router, err := s.buildRouter()
	if err != nil {
		return nil, err
	}
	s.router = router
	return s, nil
}

func (s *Server) buildRouter() (chi.Router, error) {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(logging.Middleware(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(s.deps.Metrics.Middleware)

	origins := s.cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", identity.HeaderIdentity, identity.HeaderCluster},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/actuator", func(r chi.Router) {
		r.Get("/health", s.handleActuatorHealth)
		r.Get("/info", s.handleActuatorInfo)
		if s.deps.Metrics != nil {
			r.Handle("/prometheus", s.deps.Metrics.Handler())
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(identity.Middleware(s.cfg.Development, s.logger))
		if s.deps.Settings != nil {
			settings.RegisterRoutes(r, s.deps.Settings, s.deps.SettingsMaxLength, s.logger)
		}
		if s.deps.Search != nil {
			search.RegisterRoutes(r, s.deps.Search, s.logger)
		}
		if s.deps.History != nil {
			history.RegisterRoutes(r, s.deps.History, s.logger)
		}
	})

	if s.deps.Search != nil {
		search.RegisterWebSocket(r, s.deps.Search, s.cfg.Development, origins, s.logger)
	}

	err := web.RegisterRoutes(r, web.Options{
		APIBase:   s.cfg.PublicAPIBase,
		AppName:   s.cfg.AppName,
		StaticDir: s.cfg.StaticDir,
	}, s.logger)
	if err != nil {
		return nil, fmt.Errorf("web ui: %w", err)
	}
	return r, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy", "service": ServiceName})
}

func (s *Server) handleActuatorHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "UP"})
}

func (s *Server) handleActuatorInfo(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"app": map[string]string{"name": s.cfg.AppName, "version": s.cfg.Version},
	})
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler { return s.router }

// Addr is the listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
}

// OnShutdown registers fn to run after the HTTP server stops. Hooks run in
// registration order.
func (s *Server) OnShutdown(name string, fn ShutdownFunc) {
	s.hooks = append(s.hooks, shutdownHook{name: name, fn: fn})
}

// Run serves until ctx is cancelled, then shuts down gracefully within
// grace and runs the shutdown hooks.
func (s *Server) Run(ctx context.Context, grace time.Duration) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.Addr(), err)
	}
	return s.Serve(ctx, ln, grace)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener, grace time.Duration) error {
	s.httpServer = &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("econsult server listening", zap.String("addr", ln.Addr().String()))
		errCh <- s.httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	return s.Shutdown(shutdownCtx)
}

// Shutdown stops the HTTP server and runs every hook, returning the joined
// errors.
func (s *Server) Shutdown(ctx context.Context) error {
	var errs []error
	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}
	for _, h := range s.hooks {
		if err := h.fn(ctx); err != nil {
			s.logger.Warn("shutdown hook failed", zap.String("hook", h.name), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", h.name, err))
		}
	}
	return errors.Join(errs...)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
