package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
)

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (in *BatchInput) normalize() error {
	in.StartDate = utcPtr(in.StartDate)
	in.EndDate = utcPtr(in.EndDate)
	in.Recom = strings.TrimSpace(in.Recom)
	if in.StartDate != nil && in.EndDate != nil && in.EndDate.Before(*in.StartDate) {
		return invalid("end_date", "end date must not be before start date")
	}
	return nil
}

// ListBatches returns all batches, newest first.
func (s *Service) ListBatches(ctx context.Context) ([]ProductionBatch, error) {
	var batches []ProductionBatch
	if err := s.db.WithContext(ctx).
		Preload("BatchStatus").
		Order("production_batch_id DESC").
		Find(&batches).Error; err != nil {
		return nil, fmt.Errorf("failed to list batches: %w", err)
	}
	return batches, nil
}

// GetBatch returns one batch with its status.
func (s *Service) GetBatch(ctx context.Context, id uint) (*ProductionBatch, error) {
	var batch ProductionBatch
	if err := s.db.WithContext(ctx).Preload("BatchStatus").First(&batch, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &batch, nil
}

// CreateBatch stores a new batch.
func (s *Service) CreateBatch(ctx context.Context, in BatchInput) (*ProductionBatch, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	batch := ProductionBatch{
		StartDate:     in.StartDate,
		EndDate:       in.EndDate,
		BatchStatusID: in.BatchStatusID,
		Recom:         in.Recom,
		Version:       1,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRef(tx, &BatchStatus{}, "batch_status_id", in.BatchStatusID, "batch_status_id"); err != nil {
			return err
		}
		return tx.Create(&batch).Error
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create batch: %w", err)
	}

	s.logger.Info("batch created", "batch_id", batch.ID)
	return s.GetBatch(ctx, batch.ID)
}

// UpdateBatch overwrites the editable fields of a batch when in.Version
// matches the stored version.
func (s *Service) UpdateBatch(ctx context.Context, in BatchInput) (*ProductionBatch, error) {
	if err := in.normalize(); err != nil {
		return nil, err
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := requireRef(tx, &BatchStatus{}, "batch_status_id", in.BatchStatusID, "batch_status_id"); err != nil {
			return err
		}
		return updateVersioned(tx, &ProductionBatch{}, "production_batch_id", in.ID, in.Version, map[string]any{
			"start_date":      in.StartDate,
			"end_date":        in.EndDate,
			"batch_status_id": in.BatchStatusID,
			"recom":           in.Recom,
		})
	})
	if err != nil {
		if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update batch %d: %w", in.ID, err)
	}

	s.logger.Info("batch updated", "batch_id", in.ID)
	return s.GetBatch(ctx, in.ID)
}

// DeleteBatch removes a batch. Its frames are kept and detached.
func (s *Service) DeleteBatch(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Frame{}).Where("prod_batch_id = ?", id).Update("prod_batch_id", nil).Error; err != nil {
			return err
		}
		res := tx.Delete(&ProductionBatch{}, id)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("failed to delete batch %d: %w", id, err)
	}

	s.logger.Info("batch deleted", "batch_id", id)
	return nil
}
