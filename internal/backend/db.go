package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Verdict codes shared by the mark lookup and visual-analysis capture.
const (
	MarkCodePass   = "PASS"
	MarkCodeRework = "REWORK"
	MarkCodeReject = "REJECT"
)

// Seeded lookup rows.
var (
	defaultBatchStatuses = []string{"Planned", "In progress", "Completed", "On hold"}
	defaultMarkTypes     = []FinalMarkType{
		{Code: MarkCodePass, FinalMarkName: "Pass"},
		{Code: MarkCodeRework, FinalMarkName: "Rework"},
		{Code: MarkCodeReject, FinalMarkName: "Reject"},
	}
	defaultNotificationTypes = []string{"Warning", "Critical"}
)

// DBConfig holds the database configuration.
type DBConfig struct {
	Logger *slog.Logger
	// Driver is DriverPostgres (default) or DriverSQLite.
	Driver   string
	Host     string
	User     string
	Password string
	DBName   string
	SSLMode  string
	// SQLitePath is a file path or a "file:" URI used by DriverSQLite.
	SQLitePath string
	Port       int
}

// NewDB opens the database, runs migrations and seeds lookup tables.
func NewDB(cfg *DBConfig) (*gorm.DB, error) {
	if cfg == nil {
		return nil, errors.New("database config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	dialector, err := dialectorFor(cfg)
	if err != nil {
		return nil, err
	}

	gormConfig := &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	}

	db, err := gorm.Open(dialector, gormConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	if cfg.Driver == DriverSQLite {
		// A single connection keeps shared in-memory databases alive and
		// serializes writers.
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetConnMaxLifetime(0)
	} else {
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	cfg.Logger.Info("database connection established", "driver", driverName(cfg))

	if err := runMigrations(db, cfg.Logger); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	if err := seedLookups(db); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to seed lookup tables: %w", err)
	}

	return db, nil
}

func driverName(cfg *DBConfig) string {
	if cfg.Driver == "" {
		return DriverPostgres
	}
	return cfg.Driver
}

func dialectorFor(cfg *DBConfig) (gorm.Dialector, error) {
	switch driverName(cfg) {
	case DriverPostgres:
		dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=UTC",
			cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode)
		cfg.Logger.Info("connecting to database",
			"host", cfg.Host,
			"port", cfg.Port,
			"dbname", cfg.DBName,
		)
		return postgres.Open(dsn), nil
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return nil, errors.New("sqlite path cannot be empty")
		}
		cfg.Logger.Info("opening sqlite database", "path", cfg.SQLitePath)
		return sqlite.Open(sqliteDSN(cfg.SQLitePath)), nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// sqliteDSN enables foreign key enforcement so cascades match PostgreSQL.
func sqliteDSN(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + "_foreign_keys=on"
}

// runMigrations runs database migrations for all models.
func runMigrations(db *gorm.DB, logger *slog.Logger) error {
	logger.Info("running database migrations")

	if err := db.AutoMigrate(
		&BatchStatus{},
		&FinalMarkType{},
		&FrameModel{},
		&NotificationType{},
		&Sensor{},
		&ProductionBatch{},
		&Frame{},
		&NotificationRule{},
		&ProcessedSensor{},
		&Notification{},
		&InstrumentReading{},
	); err != nil {
		return fmt.Errorf("auto-migration failed: %w", err)
	}

	logger.Info("database migrations completed successfully")
	return nil
}

func seedLookups(db *gorm.DB) error {
	return db.Transaction(func(tx *gorm.DB) error {
		for _, name := range defaultBatchStatuses {
			row := BatchStatus{StatusName: name}
			if err := tx.Where(&row).FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("batch status %q: %w", name, err)
			}
		}
		for _, mark := range defaultMarkTypes {
			row := FinalMarkType{Code: mark.Code}
			if err := tx.Where(&row).Attrs(FinalMarkType{FinalMarkName: mark.FinalMarkName}).FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("mark type %q: %w", mark.Code, err)
			}
		}
		for _, name := range defaultNotificationTypes {
			row := NotificationType{TypeName: name}
			if err := tx.Where(&row).FirstOrCreate(&row).Error; err != nil {
				return fmt.Errorf("notification type %q: %w", name, err)
			}
		}
		return nil
	})
}

// Diagnostics summarizes the database state at start-up.
type Diagnostics struct {
	Tables  []string
	Batches int64
}

// Diagnose checks connectivity, lists tables and counts production batches.
func Diagnose(ctx context.Context, db *gorm.DB, logger *slog.Logger) (*Diagnostics, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("database is not reachable: %w", err)
	}

	tables, err := db.WithContext(ctx).Migrator().GetTables()
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}

	var batches int64
	if err := db.WithContext(ctx).Model(&ProductionBatch{}).Count(&batches).Error; err != nil {
		return nil, fmt.Errorf("failed to count production batches: %w", err)
	}

	logger.Info("database diagnostics",
		"tables", strings.Join(tables, ","),
		"table_count", len(tables),
		"production_batches", batches,
	)

	return &Diagnostics{Tables: tables, Batches: batches}, nil
}

// CloseDB closes the database connection.
func CloseDB(db *gorm.DB, logger *slog.Logger) error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	logger.Info("closing database connection")
	if err := sqlDB.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	logger.Info("database connection closed")
	return nil
}
