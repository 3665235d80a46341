package server

import (
	"log/slog"
	"net/http"

	"github.com/vango-go/carelive/pkg/gateway/config"
	"github.com/vango-go/carelive/pkg/gateway/handlers"
	"github.com/vango-go/carelive/pkg/gateway/lifecycle"
	"github.com/vango-go/carelive/pkg/gateway/live/backend"
	"github.com/vango-go/carelive/pkg/gateway/live/registry"
	"github.com/vango-go/carelive/pkg/gateway/live/sessions"
	"github.com/vango-go/carelive/pkg/gateway/mw"
	"github.com/vango-go/carelive/pkg/gateway/ratelimit"
)

// Dependencies are the long-lived collaborators shared by every request.
type Dependencies struct {
	Runner      backend.Runner
	Sessions    *registry.Registry
	Connections *sessions.Tracker
	Lifecycle   *lifecycle.Lifecycle
	// Warehouse is optional; readiness pings it when set.
	Warehouse handlers.Pinger
	// Limiter defaults to the configured per-client connection limits.
	Limiter *ratelimit.Limiter
}

type Server struct {
	cfg    config.Config
	logger *slog.Logger
	mux    *http.ServeMux
	deps   Dependencies
}

func New(cfg config.Config, logger *slog.Logger, deps Dependencies) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if deps.Sessions == nil {
		deps.Sessions = registry.New(registry.Config{
			AppName:  cfg.AppName,
			Capacity: cfg.SessionCapacity,
			TTL:      cfg.SessionTTL,
			Logger:   logger,
		})
	}
	if deps.Connections == nil {
		deps.Connections = sessions.NewTracker()
	}
	if deps.Lifecycle == nil {
		deps.Lifecycle = &lifecycle.Lifecycle{}
	}
	if deps.Limiter == nil {
		limits := ratelimit.Config{
			ConnectRPS:     cfg.ConnectRPS,
			ConnectBurst:   cfg.ConnectBurst,
			MaxConnections: cfg.MaxConnectionsPerClient,
		}
		if limits.Enabled() {
			deps.Limiter = ratelimit.New(limits)
		}
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		mux:    http.NewServeMux(),
		deps:   deps,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	live := handlers.LiveHandler{
		Config:      s.cfg,
		Runner:      s.deps.Runner,
		Sessions:    s.deps.Sessions,
		Logger:      s.logger,
		Lifecycle:   s.deps.Lifecycle,
		Connections: s.deps.Connections,
	}
	s.mux.Handle("GET /ws/{userID}/{sessionID}", live)
	s.mux.Handle("GET /ws", live)

	s.mux.Handle("GET /healthz", handlers.HealthHandler{})
	s.mux.Handle("GET /health", handlers.StatusHandler{AppName: s.cfg.AppName})
	s.mux.Handle("GET /readyz", handlers.ReadyHandler{
		Config:      s.cfg,
		Lifecycle:   s.deps.Lifecycle,
		Connections: s.deps.Connections,
		Sessions:    s.deps.Sessions,
		Warehouse:   s.deps.Warehouse,
	})
	s.mux.Handle("GET /{$}", handlers.IndexHandler{AppName: s.cfg.AppName})
	s.mux.Handle("/", handlers.NotFoundHandler{})
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = mw.ConnectionLimit(s.cfg, s.logger, s.deps.Limiter, h)
	h = mw.CORS(s.cfg, h)
	h = mw.Recover(s.logger, h)
	h = mw.AccessLog(s.logger, h)
	h = mw.RequestID(h)
	return h
}

// Connections is the tracker used to drain live sockets on shutdown.
func (s *Server) Connections() *sessions.Tracker {
	return s.deps.Connections
}

func (s *Server) Lifecycle() *lifecycle.Lifecycle {
	return s.deps.Lifecycle
}

func (s *Server) Sessions() *registry.Registry {
	return s.deps.Sessions
}
