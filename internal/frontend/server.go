// Package frontend serves the quality-control web screens.
package frontend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"procodus.dev/qc-app/internal/backend"
	"procodus.dev/qc-app/internal/qcrpc"
	"procodus.dev/qc-app/pkg/metrics"
)

// DefaultRequestTimeout bounds each backend call made while serving a page.
const DefaultRequestTimeout = 5 * time.Second

// Server represents the frontend HTTP server.
type Server struct {
	logger       *slog.Logger
	httpServer   *http.Server
	api          backend.API
	client       *qcrpc.Client
	config       *ServerConfig
	metrics      *metrics.FrontendMetrics
	visualParams []string
	timeout      time.Duration
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger

	// HTTP server configuration
	HTTPPort int

	// BackendGRPCAddr is dialed on Run unless API is set.
	BackendGRPCAddr string
	// API serves pages from an in-process implementation instead of gRPC.
	API backend.API

	// VisualParams are offered on the visual-analysis form.
	VisualParams   []string
	RequestTimeout time.Duration

	// Metrics is optional.
	Metrics *metrics.FrontendMetrics
}

// NewServer creates a new frontend Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.HTTPPort <= 0 {
		return nil, errors.New("HTTP port must be positive")
	}

	if cfg.BackendGRPCAddr == "" && cfg.API == nil {
		return nil, errors.New("backend gRPC address cannot be empty")
	}

	params := cfg.VisualParams
	if len(params) == 0 {
		params = DefaultVisualParams
	}

	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = DefaultRequestTimeout
	}

	return &Server{
		logger:       cfg.Logger,
		api:          cfg.API,
		config:       cfg,
		metrics:      cfg.Metrics,
		visualParams: params,
		timeout:      timeout,
	}, nil
}

// Run starts the frontend server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting frontend server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	if s.api == nil {
		s.logger.Info("connecting to backend gRPC server", "address", s.config.BackendGRPCAddr)
		client, err := qcrpc.Dial(s.config.BackendGRPCAddr)
		if err != nil {
			return fmt.Errorf("failed to connect to backend: %w", err)
		}
		s.client = client
		s.api = client
	}

	s.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.config.HTTPPort),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	s.logger.Info("starting HTTP server", "address", s.httpServer.Addr)

	httpErr := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			httpErr <- fmt.Errorf("HTTP server error: %w", err)
		}
		close(httpErr)
	}()

	s.logger.Info("frontend server started successfully")

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case err := <-httpErr:
		if err != nil {
			s.logger.Error("HTTP server error", "error", err)
			return errors.Join(err, s.Shutdown())
		}
	}

	return s.Shutdown()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down frontend server")

	var errs []error

	if s.httpServer != nil {
		s.logger.Info("stopping HTTP server")
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.logger.Error("failed to shutdown HTTP server", "error", err)
			errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
		}
	}

	if s.client != nil {
		s.logger.Info("closing gRPC connection")
		if err := s.client.Close(); err != nil {
			s.logger.Error("failed to close gRPC connection", "error", err)
			errs = append(errs, fmt.Errorf("gRPC connection close error: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("frontend server shutdown completed with errors", "error", err)
		return err
	}

	s.logger.Info("frontend server shutdown completed successfully")
	return nil
}

// Handler returns the routed and instrumented HTTP handler. It requires an
// API, either configured or connected by Run.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	route := func(pattern string, h http.HandlerFunc) {
		mux.HandleFunc(pattern, s.inFlight(h))
	}

	route("GET /health", s.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	route("GET /{$}", s.handleDashboard)

	route("GET /batches", s.handleBatches)
	route("GET /batches/new", s.handleBatchNew)
	route("POST /batches", s.handleBatchCreate)
	route("GET /batches/{id}", s.handleBatch)
	route("GET /batches/{id}/edit", s.handleBatchEdit)
	route("POST /batches/{id}", s.handleBatchUpdate)
	route("POST /batches/{id}/delete", s.handleBatchDelete)

	route("GET /frames", s.handleFrames)
	route("GET /frames/new", s.handleFrameNew)
	route("POST /frames", s.handleFrameCreate)
	route("GET /frames/{id}", s.handleFrame)
	route("GET /frames/{id}/edit", s.handleFrameEdit)
	route("POST /frames/{id}", s.handleFrameUpdate)
	route("POST /frames/{id}/delete", s.handleFrameDelete)
	route("POST /frames/{id}/process", s.handleFrameProcess)
	route("GET /frames/{id}/visual", s.handleVisualForm)
	route("POST /frames/{id}/visual", s.handleVisualCapture)

	route("GET /sensors", s.handleSensors)
	route("POST /sensors", s.handleSensorCreate)
	route("POST /sensors/{id}/delete", s.handleSensorDelete)
	route("GET /rules", s.handleRules)
	route("POST /rules", s.handleRuleCreate)
	route("POST /rules/{id}/delete", s.handleRuleDelete)
	route("GET /models", s.handleModels)
	route("POST /models", s.handleModelCreate)

	mux.HandleFunc("/", s.handleNotFound)

	return s.withRequestID(s.withLogging(s.withMetrics(mux)))
}

func (s *Server) requestContext(r *http.Request) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), s.timeout)
}
