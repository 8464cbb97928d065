package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"procodus.dev/qc-app/pkg/metrics"
)

// AlertSender pushes a summary of a processing run that raised notifications.
type AlertSender interface {
	SendAlert(ctx context.Context, alert Alert) error
}

// Service implements API on top of a GORM database.
type Service struct {
	logger  *slog.Logger
	db      *gorm.DB
	values  ValueSource
	alerts  AlertSender
	metrics *metrics.BackendMetrics
	now     func() time.Time
}

// ServiceConfig holds the configuration for the Service.
type ServiceConfig struct {
	Logger *slog.Logger
	DB     *gorm.DB
	// Values measures sensors during processing (defaults to a RandomValueSource).
	Values ValueSource
	// Alerts is optional.
	Alerts AlertSender
	// Metrics is optional.
	Metrics *metrics.BackendMetrics
	// Now overrides the clock in tests.
	Now func() time.Time
}

// NewService creates a new Service instance.
func NewService(cfg *ServiceConfig) (*Service, error) {
	if cfg == nil {
		return nil, errors.New("service config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.DB == nil {
		return nil, errors.New("database cannot be nil")
	}

	s := &Service{
		logger:  cfg.Logger,
		db:      cfg.DB,
		values:  cfg.Values,
		alerts:  cfg.Alerts,
		metrics: cfg.Metrics,
		now:     cfg.Now,
	}
	if s.values == nil {
		s.values = NewRandomValueSource(DefaultRandomMin, DefaultRandomMax, 0)
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

var _ API = (*Service)(nil)

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// updateVersioned applies fields to the row identified by idColumn when its
// version still matches, bumping the version. A miss is resolved to
// ErrNotFound or ErrConflict.
func updateVersioned(tx *gorm.DB, model any, idColumn string, id uint, version int, fields map[string]any) error {
	fields["version"] = gorm.Expr("version + 1")
	res := tx.Model(model).Where(idColumn+" = ? AND version = ?", id, version).Updates(fields)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected > 0 {
		return nil
	}

	var n int64
	if err := tx.Model(model).Where(idColumn+" = ?", id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return ErrConflict
}

// exists reports whether a row with the given id is present.
func exists(tx *gorm.DB, model any, idColumn string, id uint) (bool, error) {
	var n int64
	if err := tx.Model(model).Where(idColumn+" = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// requireRef validates an optional foreign key.
func requireRef(tx *gorm.DB, model any, idColumn string, id *uint, field string) error {
	if id == nil {
		return nil
	}
	ok, err := exists(tx, model, idColumn, *id)
	if err != nil {
		return fmt.Errorf("failed to check %s: %w", field, err)
	}
	if !ok {
		return invalid(field, fmt.Sprintf("no record with id %d", *id))
	}
	return nil
}

// notFound converts gorm's record-not-found into ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
