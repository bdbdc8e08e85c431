// Package server assembles the controller: configuration, logging, metrics,
// the session domain, and the HTTP/WebSocket API surface.
package server

import (
	"fmt"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	apihttp "github.com/spyglassproxy/spyglass/internal/api/http"
	"github.com/spyglassproxy/spyglass/internal/api/middleware"
	"github.com/spyglassproxy/spyglass/internal/api/ws"
	"github.com/spyglassproxy/spyglass/internal/domain/client"
	"github.com/spyglassproxy/spyglass/internal/domain/session"
	"github.com/spyglassproxy/spyglass/internal/domain/surface"
	"github.com/spyglassproxy/spyglass/internal/infrastructure/config"
	"github.com/spyglassproxy/spyglass/internal/infrastructure/logging"
	"github.com/spyglassproxy/spyglass/internal/infrastructure/monitoring"
	"github.com/spyglassproxy/spyglass/internal/prefs"
	"github.com/spyglassproxy/spyglass/internal/rewrite"
	"github.com/spyglassproxy/spyglass/internal/search"
	"github.com/spyglassproxy/spyglass/internal/transport"
	"github.com/spyglassproxy/spyglass/internal/worker"
)

// Server wraps the HTTP server and dependencies.
type Server struct {
	router   *gin.Engine
	sessions *session.Manager
	logger   *logging.Logger
	config   *config.Config
	metrics  *monitoring.Metrics
}

// New creates a fully wired server instance.
func New(cfg *config.Config) (*Server, error) {
	var logger *logging.Logger
	if cfg.Logging.Development {
		logger = logging.NewDevelopment()
	} else {
		logger = logging.NewDefault()
	}

	logger.Info("initializing spyglass",
		zap.String("host", cfg.Server.Host),
		zap.String("port", cfg.Server.Port),
		zap.String("codec", cfg.Rewrite.Codec),
	)

	metrics := monitoring.NewMetrics()

	registry, err := search.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to load search engine catalog: %w", err)
	}

	store, err := prefs.NewFileStore(cfg.Search.PrefsPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open preference store: %w", err)
	}

	codec := rewrite.FromName(cfg.Rewrite.Codec, cfg.Rewrite.Prefix, cfg.Rewrite.Key)
	fetcher := surface.NewFetcher(cfg.Observe.FetchTimeout)
	if cfg.Observe.FetchRPS > 0 {
		fetcher.SetRateLimit(cfg.Observe.FetchRPS)
	}
	factory := &surface.FetchFactory{
		Codec:   codec,
		Fetcher: fetcher,
		Logger:  logger,
		Timeout: cfg.Observe.FetchTimeout,
	}

	sessions := session.NewManager(session.Config{
		Factory: factory,
		Collaborators: client.Collaborators{
			Codec:     codec,
			Transport: transport.NewWS(cfg.Transport.Timeout),
			Worker:    worker.NewHTTP(cfg.Worker.Endpoint, cfg.Worker.Timeout),

			TransportEndpoint: cfg.Transport.Endpoint,
			DialTarget:        cfg.Transport.DialTarget,
			WorkerScript:      cfg.Worker.ScriptRef,
			WorkerScope:       cfg.Worker.Scope,
			WorkerType:        cfg.Worker.Type,
		},
		Registry:      registry,
		Prefs:         store,
		DefaultEngine: cfg.Search.DefaultEngine,
		PollInterval:  cfg.Observe.PollInterval,
		Logger:        logger,
		Metrics:       metrics,
	})

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(monitoring.Middleware(metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig()))
	if cfg.RateLimit.Enabled {
		logger.Info("rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	handlers := apihttp.NewHandlers(sessions, registry, logger)
	wsHandler := ws.NewHandler(sessions, logger, metrics)

	router.GET("/", handlers.Root)
	router.GET("/health", handlers.Health)

	// Session management
	router.GET("/sessions", handlers.ListSessions)
	router.POST("/sessions", handlers.CreateSession)
	router.GET("/sessions/:id", handlers.GetSession)
	router.POST("/sessions/:id/activate", handlers.SwitchSession)
	router.DELETE("/sessions/:id", handlers.CloseSession)

	// Navigation
	router.POST("/sessions/:id/navigate", handlers.Navigate)
	router.POST("/sessions/:id/back", handlers.Back)
	router.POST("/sessions/:id/forward", handlers.Forward)
	router.POST("/sessions/:id/reload", handlers.Reload)

	// Search engines
	router.GET("/engines", handlers.ListEngines)
	router.PUT("/engines", handlers.SetEngine)

	// Event stream
	router.GET("/stream", wsHandler.HandleConnection)

	// Metrics
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	logger.Info("server initialized")

	return &Server{
		router:   router,
		sessions: sessions,
		logger:   logger,
		config:   cfg,
		metrics:  metrics,
	}, nil
}

// Run starts the HTTP server.
func (s *Server) Run() error {
	addr := s.config.Server.Host + ":" + s.config.Server.Port
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.router.Run(addr)
}

// Sessions exposes the session manager, mainly for tests.
func (s *Server) Sessions() *session.Manager {
	return s.sessions
}

// Close shuts the server down, destroying every open session.
func (s *Server) Close() error {
	s.logger.Info("shutting down")
	s.sessions.Shutdown()
	return s.logger.Sync()
}
