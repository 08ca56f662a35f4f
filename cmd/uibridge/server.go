package main

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/uibridge/uibridge/api/handlers"
	"github.com/uibridge/uibridge/config"
	"github.com/uibridge/uibridge/engine"
	"github.com/uibridge/uibridge/engine/session"
	"github.com/uibridge/uibridge/internal/metrics"
	"github.com/uibridge/uibridge/internal/server"
	"github.com/uibridge/uibridge/internal/telemetry"
	"github.com/uibridge/uibridge/store"
	"github.com/uibridge/uibridge/types"
)

// Server wires the bridge together: browser session, engine, HTTP front,
// and the metrics endpoint.
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	providers *telemetry.Providers

	collector *metrics.Collector
	archive   *store.TranscriptStore
	connector *session.Connector
	engine    *engine.Engine

	httpManager    *server.Manager
	metricsManager *server.Manager

	stopRateLimiter func()
	shutdownOnce    sync.Once
}

// NewServer creates the server. Nothing is started until Start.
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		providers: providers,
	}
}

// Start connects to the browser, starts the engine, and begins serving.
func (s *Server) Start(ctx context.Context) error {
	s.collector = metrics.NewCollector("uibridge", s.logger)

	archive, err := store.Open(s.cfg.Database, s.logger)
	if err != nil {
		// The archive is best effort; the bridge serves without it.
		s.logger.Warn("transcript archive unavailable", zap.Error(err))
	}
	s.archive = archive

	s.connector = session.NewConnector(s.cfg.Browser, s.logger)

	opts := []engine.Option{engine.WithMetrics(s.collector)}
	if s.archive != nil {
		opts = append(opts, engine.WithArchive(s.archive))
	}
	s.engine = engine.New(s.cfg, s.connector, s.logger, opts...)

	if err := s.engine.Start(ctx); err != nil {
		return fmt.Errorf("start engine: %w", err)
	}

	handler := s.buildHandler()

	httpCfg := server.Config{
		Addr:            fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:     s.cfg.Server.ReadTimeout,
		WriteTimeout:    s.cfg.Server.WriteTimeout,
		IdleTimeout:     120 * time.Second,
		MaxHeaderBytes:  1 << 20,
		ShutdownTimeout: s.cfg.Server.ShutdownTimeout,
	}
	s.httpManager = server.NewManager(handler, httpCfg, s.logger)
	if err := s.httpManager.Start(); err != nil {
		return fmt.Errorf("start HTTP server: %w", err)
	}

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsCfg := server.DefaultConfig()
	metricsCfg.Addr = fmt.Sprintf(":%d", s.cfg.Server.MetricsPort)
	metricsCfg.WriteTimeout = 30 * time.Second
	s.metricsManager = server.NewManager(metricsMux, metricsCfg, s.logger.Named("metrics"))
	if err := s.metricsManager.Start(); err != nil {
		return fmt.Errorf("start metrics server: %w", err)
	}

	s.logger.Info("bridge started",
		zap.String("addr", s.httpManager.Addr()),
		zap.String("metrics_addr", s.metricsManager.Addr()),
		zap.Strings("models", s.engine.Models()),
		zap.Bool("archive", s.archive != nil),
	)
	return nil
}

func (s *Server) buildHandler() http.Handler {
	chat := handlers.NewChatHandler(s.engine, s.cfg.Engine.StreamInterval, s.logger)
	legacy := handlers.NewLegacyCompletionHandler(s.engine, s.logger)
	models := handlers.NewModelsHandler(s.engine, s.logger)
	embeddings := handlers.NewEmbeddingsHandler(s.logger)
	history := handlers.NewHistoryHandler(s.engine, s.logger)

	health := handlers.NewHealthHandler(s.logger)
	health.RegisterCheck(handlers.NewFuncHealthCheck("browser", func(ctx context.Context) error {
		if s.connector.Interactive() == nil {
			return types.NewError(types.ErrConnectionFailed, "browser session not connected")
		}
		return nil
	}))
	if s.archive != nil {
		health.RegisterCheck(handlers.NewFuncHealthCheck("archive", s.archive.Ping))
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/chat/completions", chat.HandleCompletion)
	mux.HandleFunc("POST /v1/completions", legacy.Handle)
	mux.HandleFunc("GET /v1/models", models.HandleList)
	mux.HandleFunc("POST /v1/embeddings", embeddings.Handle)
	mux.HandleFunc("GET /v1/history", history.Handle)

	mux.HandleFunc("GET /health", health.HandleHealth)
	mux.HandleFunc("GET /healthz", health.HandleHealthz)
	mux.HandleFunc("GET /ready", health.HandleReady)
	mux.HandleFunc("GET /readyz", health.HandleReady)
	mux.HandleFunc("GET /version", health.HandleVersion(Version, BuildTime, GitCommit))

	skipAuthPaths := map[string]struct{}{
		"/health":  {},
		"/healthz": {},
		"/ready":   {},
		"/readyz":  {},
		"/version": {},
	}

	rateLimit, stop := RateLimiter(s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger)
	s.stopRateLimiter = stop

	return Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		OTelTracing(),
		CORS(s.cfg.Server.AllowedOrigins),
		rateLimit,
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger),
	)
}

// WaitForShutdown blocks until a termination signal or a server error,
// then shuts everything down.
func (s *Server) WaitForShutdown() {
	s.httpManager.WaitForShutdown()

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()
	s.Shutdown(ctx)
}

// Shutdown stops the HTTP servers, the engine, and the archive. Idempotent.
func (s *Server) Shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		s.logger.Info("shutting down bridge")

		if s.stopRateLimiter != nil {
			s.stopRateLimiter()
		}
		if s.httpManager != nil {
			if err := s.httpManager.Shutdown(ctx); err != nil {
				s.logger.Error("HTTP shutdown failed", zap.Error(err))
			}
		}
		if s.metricsManager != nil {
			if err := s.metricsManager.Shutdown(ctx); err != nil {
				s.logger.Error("metrics shutdown failed", zap.Error(err))
			}
		}
		if s.engine != nil {
			if err := s.engine.Close(); err != nil {
				s.logger.Error("engine close failed", zap.Error(err))
			}
		}
		if s.archive != nil {
			if err := s.archive.Close(); err != nil {
				s.logger.Error("archive close failed", zap.Error(err))
			}
		}
		if err := s.providers.Shutdown(ctx); err != nil {
			s.logger.Error("telemetry shutdown failed", zap.Error(err))
		}

		s.logger.Info("bridge stopped")
	})
}
