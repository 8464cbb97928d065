package instrument

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"procodus.dev/qc-app/pkg/generator"
	"procodus.dev/qc-app/pkg/metrics"
	"procodus.dev/qc-app/pkg/mq"
)

// DefaultQueueName is the readings queue shared with the backend consumer.
const DefaultQueueName = "instrument-readings"

// ClientFactory opens the queue client for producer id.
type ClientFactory func(id int) (mq.ClientInterface, error)

// ServerConfig holds the configuration for the instrument simulator.
type ServerConfig struct {
	// Logger is the structured logger
	Logger *slog.Logger
	// RabbitMQURL is the connection string for RabbitMQ
	RabbitMQURL string
	// QueueName is the queue readings are published to
	QueueName    string
	DurableQueue bool
	// Interval is the time between reading rounds
	Interval time.Duration
	// ProducerCount is the number of simulated instruments
	ProducerCount int
	// SensorIDs are measured by every instrument
	SensorIDs []uint
	// Signal shapes the generated values
	Signal generator.SignalConfig
	// NewClient overrides the RabbitMQ client, mainly for tests.
	NewClient ClientFactory
	// MetricsPort serves /metrics while running when positive
	MetricsPort int
	// Metrics is the optional Prometheus metrics collector
	Metrics *metrics.InstrumentMetrics
	// MQMetrics is the optional Prometheus metrics collector for MQ operations
	MQMetrics *metrics.MQMetrics
}

// Server runs a set of instrument producers.
type Server struct {
	logger    *slog.Logger
	config    *ServerConfig
	producers []*Producer
	clients   []mq.ClientInterface
	wg        sync.WaitGroup
	closeOnce sync.Once
}

var (
	errInvalidProducerCount = errors.New("producer count must be greater than 0")
	errInvalidInterval      = errors.New("interval must be greater than 0")
	errLoggerRequired       = errors.New("logger is required")
	errNoSensors            = errors.New("at least one sensor ID is required")
)

// NewServer creates the producers and their queue clients.
func NewServer(cfg *ServerConfig) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errLoggerRequired
	}

	if cfg.ProducerCount <= 0 {
		return nil, errInvalidProducerCount
	}

	if cfg.Interval <= 0 {
		return nil, errInvalidInterval
	}

	if len(cfg.SensorIDs) == 0 {
		return nil, errNoSensors
	}

	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueueName
	}

	newClient := cfg.NewClient
	if newClient == nil {
		if cfg.RabbitMQURL == "" {
			return nil, errors.New("RabbitMQ URL cannot be empty")
		}
		newClient = func(id int) (mq.ClientInterface, error) {
			return mq.NewClient(&mq.Config{
				URL:       cfg.RabbitMQURL,
				QueueName: cfg.QueueName,
				Durable:   cfg.DurableQueue,
				Logger:    cfg.Logger.With(slog.String("component", "mq-client"), slog.Int("producer_id", id)),
				Metrics:   cfg.MQMetrics,
			})
		}
	}

	s := &Server{
		logger:    cfg.Logger,
		config:    cfg,
		producers: make([]*Producer, 0, cfg.ProducerCount),
		clients:   make([]mq.ClientInterface, 0, cfg.ProducerCount),
	}

	for i := range cfg.ProducerCount {
		client, err := newClient(i)
		if err != nil {
			s.closeClients()
			return nil, fmt.Errorf("failed to create queue client %d: %w", i, err)
		}
		s.clients = append(s.clients, client)

		producer, err := NewProducer(&ProducerConfig{
			Client:    client,
			SensorIDs: cfg.SensorIDs,
			Signal:    cfg.Signal,
			Metrics:   cfg.Metrics,
		})
		if err != nil {
			s.closeClients()
			return nil, fmt.Errorf("failed to create producer %d: %w", i, err)
		}
		s.producers = append(s.producers, producer)

		s.logger.Info("created instrument producer",
			"producer_id", i,
			"queue", cfg.QueueName,
			"source", producer.Source(),
			"sensor_count", len(cfg.SensorIDs),
		)
	}

	return s, nil
}

// Run starts all producers and blocks until the context is canceled or a
// shutdown signal arrives.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	for i, producer := range s.producers {
		s.wg.Add(1)
		go s.runProducer(ctx, i, producer)
	}

	var metricsServer *http.Server
	if s.config.MetricsPort > 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		metricsServer = &http.Server{
			Addr:              fmt.Sprintf(":%d", s.config.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				s.logger.Error("metrics server error", "error", err)
			}
		}()
	}

	s.logger.Info("instrument simulator started",
		"producer_count", len(s.producers),
		"interval", s.config.Interval,
	)

	select {
	case sig := <-sigChan:
		s.logger.Info("received shutdown signal", "signal", sig.String())
		cancel()
	case <-ctx.Done():
		s.logger.Info("context canceled, shutting down")
	}

	s.logger.Info("waiting for producers to shut down")
	s.wg.Wait()

	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("failed to shut down metrics server", "error", err)
		}
		shutdownCancel()
	}

	s.closeClients()
	s.logger.Info("instrument simulator stopped")
	return nil
}

func (s *Server) runProducer(ctx context.Context, id int, producer *Producer) {
	defer s.wg.Done()
	defer producer.trackActive()()

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	logger := s.logger.With(slog.Int("producer_id", id), slog.String("source", producer.Source()))
	logger.Info("producer started")

	for {
		select {
		case <-ctx.Done():
			logger.Info("producer shutting down")
			return

		case <-ticker.C:
			if err := producer.PublishReadings(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error("failed to publish readings", "error", err)
				continue
			}
			logger.Debug("readings published")
		}
	}
}

// closeClients closes every queue client once.
func (s *Server) closeClients() {
	s.closeOnce.Do(func() {
		var wg sync.WaitGroup
		for i, client := range s.clients {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := client.Close(); err != nil {
					s.logger.Error("failed to close MQ client", "producer_id", i, "error", err)
					return
				}
				s.logger.Debug("MQ client closed", "producer_id", i)
			}()
		}
		wg.Wait()
	})
}

// Shutdown closes the queue clients. Running producers stop once their
// context is canceled.
func (s *Server) Shutdown() error {
	s.logger.Info("shutdown requested")
	s.closeClients()
	return nil
}
