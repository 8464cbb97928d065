package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"procodus.dev/qc-app/internal/backend"
	"procodus.dev/qc-app/pkg/logger"
)

// InitConfig initializes Viper configuration.
// It reads an optional dotenv file, then config files (config.yaml) and
// environment variables prefixed with QC_APP.
func InitConfig(cfgFile, envFile string) error {
	if envFile != "" {
		// Existing environment variables win over the file.
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	}

	if cfgFile != "" {
		// Use config file from the flag
		viper.SetConfigFile(cfgFile)
	} else {
		// Search for config in current directory and /etc/qc-app/
		viper.AddConfigPath(".")
		viper.AddConfigPath("/etc/qc-app/")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Environment variables
	viper.SetEnvPrefix("QC_APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		var configNotFoundErr viper.ConfigFileNotFoundError
		if errors.As(err, &configNotFoundErr) {
			// Config file not found; rely on env vars and defaults
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	return nil
}

// GetLogger creates a slog.Logger based on configuration.
func GetLogger(service string) *slog.Logger {
	return logger.New(&logger.Config{
		Level:   logger.ParseLevel(viper.GetString("log.level")),
		Service: service,
	})
}

// bindFlags binds the named flags of cmd to viper keys. Commands share keys
// such as the database settings, so binding happens when a command runs
// rather than at init.
func bindFlags(cmd *cobra.Command, keys map[string]string) error {
	for key, flag := range keys {
		if err := viper.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
			return fmt.Errorf("failed to bind %s flag: %w", flag, err)
		}
	}
	return nil
}

var dbFlagKeys = map[string]string{
	"db.driver":      "db-driver",
	"db.host":        "db-host",
	"db.port":        "db-port",
	"db.user":        "db-user",
	"db.password":    "db-password",
	"db.name":        "db-name",
	"db.sslmode":     "db-sslmode",
	"db.sqlite_path": "db-sqlite-path",
}

// addDBFlags registers the database flags shared by backend, migrate and seed.
func addDBFlags(cmd *cobra.Command) {
	cmd.Flags().String("db-driver", backend.DriverPostgres, "database driver (postgres, sqlite)")
	cmd.Flags().String("db-host", "localhost", "PostgreSQL host")
	cmd.Flags().Int("db-port", 5432, "PostgreSQL port")
	cmd.Flags().String("db-user", "postgres", "PostgreSQL user")
	cmd.Flags().String("db-password", "", "PostgreSQL password")
	cmd.Flags().String("db-name", "qc", "PostgreSQL database name")
	cmd.Flags().String("db-sslmode", "disable", "PostgreSQL SSL mode")
	cmd.Flags().String("db-sqlite-path", "qc.db", "SQLite database file")
}

func dbConfig(logger *slog.Logger) backend.DBConfig {
	return backend.DBConfig{
		Logger:     logger,
		Driver:     viper.GetString("db.driver"),
		Host:       viper.GetString("db.host"),
		Port:       viper.GetInt("db.port"),
		User:       viper.GetString("db.user"),
		Password:   viper.GetString("db.password"),
		DBName:     viper.GetString("db.name"),
		SSLMode:    viper.GetString("db.sslmode"),
		SQLitePath: viper.GetString("db.sqlite_path"),
	}
}
