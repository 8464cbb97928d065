package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"google.golang.org/grpc"

	"procodus.dev/qc-app/internal/alerting"
	"procodus.dev/qc-app/internal/backend"
	"procodus.dev/qc-app/internal/instrument"
	"procodus.dev/qc-app/internal/qcrpc"
	"procodus.dev/qc-app/pkg/metrics"
)

var backendCmd = &cobra.Command{
	Use:   "backend",
	Short: "Run the backend server",
	Long: `Run the backend server that:
- Persists quality-control records to PostgreSQL (or SQLite)
- Processes frame sensors against notification rules
- Consumes instrument readings from RabbitMQ
- Pushes alert summaries through shoutrrr
- Serves the gRPC API`,
	RunE: runBackend,
}

func init() {
	rootCmd.AddCommand(backendCmd)

	// Backend-specific flags
	addDBFlags(backendCmd)
	backendCmd.Flags().String("rabbitmq-url", "", "RabbitMQ URL (empty disables the reading consumer)")
	backendCmd.Flags().String("queue-name", instrument.DefaultQueueName, "RabbitMQ queue name for instrument readings")
	backendCmd.Flags().Bool("durable-queue", true, "declare the readings queue as durable")
	backendCmd.Flags().Int("grpc-port", 9090, "gRPC server port")
	backendCmd.Flags().Int("metrics-port", 9091, "Prometheus metrics port (0 disables)")
	backendCmd.Flags().String("value-source", backend.ValueSourceRandom, "sensor value source (random, instrument)")
	backendCmd.Flags().Float64("random-min", backend.DefaultRandomMin, "lower bound of random sensor values")
	backendCmd.Flags().Float64("random-max", backend.DefaultRandomMax, "upper bound of random sensor values")
	backendCmd.Flags().Duration("reading-max-age", 0, "ignore instrument readings older than this (0 accepts any age)")
	backendCmd.Flags().StringSlice("alert-url", nil, "shoutrrr service URL for notification alerts (repeatable)")
	backendCmd.Flags().Duration("alert-timeout", alerting.DefaultTimeout, "timeout for one alert delivery")
}

func runBackend(cmd *cobra.Command, _ []string) error {
	keys := map[string]string{
		"backend.rabbitmq.url":        "rabbitmq-url",
		"backend.rabbitmq.queue_name": "queue-name",
		"backend.rabbitmq.durable":    "durable-queue",
		"backend.grpc.port":           "grpc-port",
		"backend.metrics.port":        "metrics-port",
		"backend.values.source":       "value-source",
		"backend.values.random_min":   "random-min",
		"backend.values.random_max":   "random-max",
		"backend.values.max_age":      "reading-max-age",
		"backend.alerts.urls":         "alert-url",
		"backend.alerts.timeout":      "alert-timeout",
	}
	for k, v := range dbFlagKeys {
		keys[k] = v
	}
	if err := bindFlags(cmd, keys); err != nil {
		return err
	}

	logger := GetLogger("backend")
	logger.Info("starting backend service")

	alerts, err := alerting.New(&alerting.Config{
		Logger:  logger,
		URLs:    viper.GetStringSlice("backend.alerts.urls"),
		Timeout: viper.GetDuration("backend.alerts.timeout"),
	})
	if err != nil {
		logger.Error("failed to configure alerts", "error", err)
		return err
	}

	backendMetrics := metrics.NewBackendMetrics(metrics.Namespace)

	// Create backend configuration from viper
	config := &backend.ServerConfig{
		Logger:        logger,
		DB:            dbConfig(logger),
		RabbitMQURL:   viper.GetString("backend.rabbitmq.url"),
		QueueName:     viper.GetString("backend.rabbitmq.queue_name"),
		DurableQueue:  viper.GetBool("backend.rabbitmq.durable"),
		ValueSource:   viper.GetString("backend.values.source"),
		RandomMin:     viper.GetFloat64("backend.values.random_min"),
		RandomMax:     viper.GetFloat64("backend.values.random_max"),
		ReadingMaxAge: viper.GetDuration("backend.values.max_age"),
		Alerts:        alerts,
		Register:      qcrpc.Register,
		ServerOptions: []grpc.ServerOption{
			grpc.UnaryInterceptor(qcrpc.UnaryServerInterceptor(logger, backendMetrics)),
		},
		GRPCPort:    viper.GetInt("backend.grpc.port"),
		MetricsPort: viper.GetInt("backend.metrics.port"),
		Metrics:     backendMetrics,
		MQMetrics:   metrics.NewMQMetrics(metrics.Namespace),
	}

	// Create and run server
	server, err := backend.NewServer(config)
	if err != nil {
		logger.Error("failed to create backend server", "error", err)
		return err
	}

	logger.Info("backend server configuration",
		"db_driver", config.DB.Driver,
		"db_host", config.DB.Host,
		"db_name", config.DB.DBName,
		"reading_queue", config.QueueName,
		"consumer_enabled", config.RabbitMQURL != "",
		"value_source", config.ValueSource,
		"alert_services", len(viper.GetStringSlice("backend.alerts.urls")),
		"grpc_port", config.GRPCPort,
		"metrics_port", config.MetricsPort,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("backend server error", "error", err)
		return err
	}

	logger.Info("backend server stopped")
	return nil
}
