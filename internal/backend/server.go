package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"gorm.io/gorm"

	"procodus.dev/qc-app/pkg/metrics"
	"procodus.dev/qc-app/pkg/mq"
)

// Value source names accepted by ServerConfig.ValueSource.
const (
	ValueSourceRandom     = "random"
	ValueSourceInstrument = "instrument"
)

// RegisterFunc installs a transport for api on a gRPC server.
type RegisterFunc func(s grpc.ServiceRegistrar, api API)

// Server represents the backend process: database, reading consumer, gRPC API
// and metrics endpoint.
type Server struct {
	logger        *slog.Logger
	config        *ServerConfig
	db            *gorm.DB
	service       *Service
	consumer      *ReadingConsumer
	grpcServer    *grpc.Server
	metricsServer *http.Server
}

// ServerConfig holds the configuration for the Server.
type ServerConfig struct {
	Logger *slog.Logger
	DB     DBConfig

	// RabbitMQURL enables the instrument reading consumer when set.
	RabbitMQURL  string
	QueueName    string
	DurableQueue bool

	// ValueSource is ValueSourceRandom (default) or ValueSourceInstrument.
	ValueSource string
	RandomMin   float64
	RandomMax   float64
	// ReadingMaxAge bounds the age of readings used by the instrument source.
	ReadingMaxAge time.Duration

	// Alerts is optional.
	Alerts AlertSender

	// Register installs the gRPC transport.
	Register      RegisterFunc
	ServerOptions []grpc.ServerOption
	GRPCPort      int

	// MetricsPort serves /metrics when positive.
	MetricsPort int
	Metrics     *metrics.BackendMetrics
	MQMetrics   *metrics.MQMetrics
}

// NewServer creates a new Server instance.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Register == nil {
		return nil, errors.New("gRPC register function cannot be nil")
	}

	if cfg.GRPCPort <= 0 {
		return nil, errors.New("gRPC port must be positive")
	}

	if cfg.RabbitMQURL != "" && cfg.QueueName == "" {
		return nil, errors.New("queue name cannot be empty")
	}

	switch cfg.DB.Driver {
	case "", DriverPostgres:
		if cfg.DB.Host == "" {
			return nil, errors.New("database host cannot be empty")
		}
		if cfg.DB.Port <= 0 {
			return nil, errors.New("database port must be positive")
		}
		if cfg.DB.User == "" {
			return nil, errors.New("database user cannot be empty")
		}
		if cfg.DB.DBName == "" {
			return nil, errors.New("database name cannot be empty")
		}
	case DriverSQLite:
		if cfg.DB.SQLitePath == "" {
			return nil, errors.New("sqlite path cannot be empty")
		}
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.DB.Driver)
	}

	if _, err := NewValueSource(cfg.ValueSource, cfg.RandomMin, cfg.RandomMax, cfg.ReadingMaxAge); err != nil {
		return nil, err
	}

	return &Server{
		logger: cfg.Logger,
		config: cfg,
	}, nil
}

// NewValueSource builds the value source named by kind.
func NewValueSource(kind string, min, max float64, maxAge time.Duration) (ValueSource, error) {
	switch kind {
	case "", ValueSourceRandom:
		if min == 0 && max == 0 {
			min, max = DefaultRandomMin, DefaultRandomMax
		}
		return NewRandomValueSource(min, max, 0), nil
	case ValueSourceInstrument:
		return &InstrumentValueSource{MaxAge: maxAge}, nil
	default:
		return nil, fmt.Errorf("unknown value source %q", kind)
	}
}

// Run starts the backend server and blocks until shutdown.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("starting backend server")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	dbCfg := s.config.DB
	dbCfg.Logger = s.logger
	db, err := NewDB(&dbCfg)
	if err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	s.db = db

	if _, err := Diagnose(ctx, db, s.logger); err != nil {
		s.logger.Warn("database diagnostics failed", "error", err)
	}

	values, err := NewValueSource(s.config.ValueSource, s.config.RandomMin, s.config.RandomMax, s.config.ReadingMaxAge)
	if err != nil {
		return errors.Join(err, s.Shutdown())
	}

	service, err := NewService(&ServiceConfig{
		Logger:  s.logger,
		DB:      db,
		Values:  values,
		Alerts:  s.config.Alerts,
		Metrics: s.config.Metrics,
	})
	if err != nil {
		return errors.Join(fmt.Errorf("failed to initialize service: %w", err), s.Shutdown())
	}
	s.service = service

	if s.config.RabbitMQURL != "" {
		if err := s.startConsumer(ctx); err != nil {
			return errors.Join(err, s.Shutdown())
		}
	} else {
		s.logger.Info("rabbitmq URL not set, instrument reading consumer disabled")
	}

	s.grpcServer = grpc.NewServer(s.config.ServerOptions...)
	s.config.Register(s.grpcServer, s.service)

	grpcAddr := fmt.Sprintf(":%d", s.config.GRPCPort)
	lis, err := net.Listen("tcp", grpcAddr)
	if err != nil {
		return errors.Join(fmt.Errorf("failed to listen on %s: %w", grpcAddr, err), s.Shutdown())
	}

	s.logger.Info("starting gRPC server", "address", grpcAddr)

	serveErr := make(chan error, 2)
	go func() {
		if err := s.grpcServer.Serve(lis); err != nil {
			serveErr <- fmt.Errorf("gRPC server error: %w", err)
		}
	}()

	if s.config.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		s.metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", s.config.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := s.metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serveErr <- fmt.Errorf("metrics server error: %w", err)
			}
		}()
	}

	s.logger.Info("backend server started successfully")

	var runErr error
	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
	case <-ctx.Done():
		s.logger.Info("context canceled")
	case runErr = <-serveErr:
		s.logger.Error("server error", "error", runErr)
	}
	cancel()

	return errors.Join(runErr, s.Shutdown())
}

func (s *Server) startConsumer(ctx context.Context) error {
	client, err := mq.NewClient(&mq.Config{
		URL:       s.config.RabbitMQURL,
		QueueName: s.config.QueueName,
		Durable:   s.config.DurableQueue,
		Logger:    s.logger.With("component", "mq"),
		Metrics:   s.config.MQMetrics,
	})
	if err != nil {
		return fmt.Errorf("failed to create mq client: %w", err)
	}

	consumer, err := NewReadingConsumer(&ReadingConsumerConfig{
		Logger:  s.logger,
		Client:  client,
		Store:   s.service,
		Queue:   s.config.QueueName,
		Metrics: s.config.Metrics,
	})
	if err != nil {
		_ = client.Close()
		return fmt.Errorf("failed to initialize consumer: %w", err)
	}
	s.consumer = consumer

	if err := consumer.Start(ctx); err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info("shutting down backend server")

	var errs []error

	if s.grpcServer != nil {
		s.logger.Info("stopping gRPC server")
		s.grpcServer.GracefulStop()
	}

	if s.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.metricsServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("metrics server shutdown error: %w", err))
		}
		cancel()
	}

	if s.consumer != nil {
		if err := s.consumer.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("consumer shutdown error: %w", err))
		}
	}

	if s.db != nil {
		if err := CloseDB(s.db, s.logger); err != nil {
			errs = append(errs, fmt.Errorf("database close error: %w", err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("backend server shutdown completed with errors", "error", err)
		return err
	}

	s.logger.Info("backend server shutdown completed successfully")
	return nil
}
