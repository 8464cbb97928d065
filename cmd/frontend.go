package main

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/qc-app/internal/frontend"
	"procodus.dev/qc-app/pkg/metrics"
)

var frontendCmd = &cobra.Command{
	Use:   "frontend",
	Short: "Run the frontend server",
	Long: `Run the frontend web server that:
- Serves the batch, frame and catalog screens
- Runs sensor processing and captures expert visual analyses
- Connects to the backend gRPC API`,
	RunE: runFrontend,
}

func init() {
	rootCmd.AddCommand(frontendCmd)

	// Frontend-specific flags
	frontendCmd.Flags().Int("http-port", 8080, "HTTP server port")
	frontendCmd.Flags().String("backend-addr", "localhost:9090", "Backend gRPC server address")
	frontendCmd.Flags().StringSlice("visual-param", nil, "parameter offered on the visual-analysis form (repeatable)")
	frontendCmd.Flags().Duration("request-timeout", frontend.DefaultRequestTimeout, "timeout for backend calls made while serving a page")
}

func runFrontend(cmd *cobra.Command, _ []string) error {
	if err := bindFlags(cmd, map[string]string{
		"frontend.http.port":       "http-port",
		"frontend.backend.addr":    "backend-addr",
		"frontend.visual_params":   "visual-param",
		"frontend.request_timeout": "request-timeout",
	}); err != nil {
		return err
	}

	logger := GetLogger("frontend")
	logger.Info("starting frontend service")

	// Create frontend configuration from viper
	config := &frontend.ServerConfig{
		Logger:          logger,
		HTTPPort:        viper.GetInt("frontend.http.port"),
		BackendGRPCAddr: viper.GetString("frontend.backend.addr"),
		VisualParams:    viper.GetStringSlice("frontend.visual_params"),
		RequestTimeout:  viper.GetDuration("frontend.request_timeout"),
		Metrics:         metrics.NewFrontendMetrics(metrics.Namespace),
	}

	// Create and run server
	server, err := frontend.NewServer(config)
	if err != nil {
		logger.Error("failed to create frontend server", "error", err)
		return err
	}

	logger.Info("frontend server configuration",
		"http_port", config.HTTPPort,
		"backend_addr", config.BackendGRPCAddr,
		"visual_params", config.VisualParams,
	)

	if err := server.Run(context.Background()); err != nil {
		logger.Error("frontend server error", "error", err)
		return err
	}

	logger.Info("frontend server stopped")
	return nil
}
