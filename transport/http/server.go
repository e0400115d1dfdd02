// Package http exposes the submission pipeline over HTTP.
package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kart-io/relayhub/pkg/config"
	"github.com/kart-io/relayhub/pkg/logger"
	"github.com/kart-io/relayhub/transport/http/handlers"
	"github.com/kart-io/relayhub/transport/http/middleware"
)

// Submission endpoints. Both accept the same body.
const (
	TelegramPath    = "/api/telegram"
	SubmissionsPath = "/api/submissions"
	HealthPath      = "/healthz"
	MetricsPath     = "/metrics"
)

// Server is the inbound HTTP surface
type Server struct {
	config   Config
	handler  http.Handler
	server   *http.Server
	registry *prometheus.Registry
	logger   logger.Logger
}

// Config holds HTTP server configuration
type Config struct {
	Addr              string
	ReadHeaderTimeout time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	MaxHeaderBytes    int
	MaxBodyBytes      int64
	Version           string
	CORS              *middleware.CORSConfig
	// Registry backs /metrics. A fresh registry is created when nil.
	Registry *prometheus.Registry
}

// ConfigFromService derives server settings from the service config
func ConfigFromService(cfg *config.Config) Config {
	return Config{
		Addr:         cfg.ListenAddr,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Version:      cfg.Telemetry.ServiceVersion,
	}
}

// NewServer creates a new HTTP server around p
func NewServer(cfg Config, p handlers.Processor, l logger.Logger) *Server {
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.ReadHeaderTimeout == 0 {
		cfg.ReadHeaderTimeout = 10 * time.Second
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	// A submission with two destinations and an attachment fallback can
	// legitimately take minutes.
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 3 * time.Minute
	}
	if cfg.MaxHeaderBytes == 0 {
		cfg.MaxHeaderBytes = 1 << 20
	}
	if l == nil {
		l = logger.Discard
	}

	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		config:   cfg,
		registry: cfg.Registry,
		logger:   l,
	}
	s.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.handler = s.routes(p)
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
		ReadTimeout:       cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		MaxHeaderBytes:    cfg.MaxHeaderBytes,
	}
	return s
}

func (s *Server) routes(p handlers.Processor) http.Handler {
	metrics := middleware.NewMetrics(s.registry)
	cors := middleware.CORS(s.config.CORS)
	logging := middleware.NewLoggingMiddleware(s.logger)

	submit := handlers.NewSubmitHandler(p, s.config.MaxBodyBytes, s.logger)

	mux := http.NewServeMux()
	for _, path := range []string{TelegramPath, SubmissionsPath} {
		mux.Handle(path, metrics.Middleware(path, cors(logging.Middleware(submit))))
	}
	mux.Handle(HealthPath, handlers.NewHealthHandler(s.config.Version))
	mux.Handle(MetricsPath, promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	return mux
}

// Handler returns the routed handler
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Registry returns the registry behind /metrics
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

// Start serves until Stop is called. It returns nil after a graceful stop.
func (s *Server) Start() error {
	s.logger.Info("HTTP server listening", "addr", s.config.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Stop stops the HTTP server, letting in-flight submissions finish until
// ctx expires
func (s *Server) Stop(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}
