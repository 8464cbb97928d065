package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

func framePreloads(db *gorm.DB) *gorm.DB {
	return db.
		Preload("Batch").
		Preload("FrameModel").
		Preload("SystemMark").
		Preload("ExpertMark").
		Preload("FinalMark")
}

func validateFrameRefs(tx *gorm.DB, in FrameInput) error {
	if err := requireRef(tx, &ProductionBatch{}, "production_batch_id", in.ProdBatchID, "prod_batch_id"); err != nil {
		return err
	}
	if err := requireRef(tx, &FrameModel{}, "frame_model_id", in.FrameModelID, "frame_model_id"); err != nil {
		return err
	}
	for field, id := range map[string]*uint{
		"system_mark_id": in.SystemMarkID,
		"expert_mark_id": in.ExpertMarkID,
		"final_mark_id":  in.FinalMarkID,
	} {
		if err := requireRef(tx, &FinalMarkType{}, "final_mark_type_id", id, field); err != nil {
			return err
		}
	}
	return nil
}

// ListFrames returns frames, newest first, optionally limited to one batch.
func (s *Service) ListFrames(ctx context.Context, filter FrameFilter) ([]Frame, error) {
	q := framePreloads(s.db.WithContext(ctx)).Order("frame_id DESC")
	if filter.BatchID != nil {
		q = q.Where("prod_batch_id = ?", *filter.BatchID)
	}

	var frames []Frame
	if err := q.Find(&frames).Error; err != nil {
		return nil, fmt.Errorf("failed to list frames: %w", err)
	}
	return frames, nil
}

// GetFrame returns one frame with its batch, model and marks.
func (s *Service) GetFrame(ctx context.Context, id uint) (*Frame, error) {
	var frame Frame
	if err := framePreloads(s.db.WithContext(ctx)).First(&frame, id).Error; err != nil {
		return nil, notFound(err)
	}
	return &frame, nil
}

// CreateFrame stores a new frame.
func (s *Service) CreateFrame(ctx context.Context, in FrameInput) (*Frame, error) {
	visual, err := normalizeVisualJSON(in.VisualJSON)
	if err != nil {
		return nil, err
	}

	frame := Frame{
		ProdBatchID:        in.ProdBatchID,
		FrameModelID:       in.FrameModelID,
		SystemMarkID:       in.SystemMarkID,
		ExpertMarkID:       in.ExpertMarkID,
		FinalMarkID:        in.FinalMarkID,
		SerialNumber:       strings.TrimSpace(in.SerialNumber),
		VisualAnalysParams: visual,
		Version:            1,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := validateFrameRefs(tx, in); err != nil {
			return err
		}
		return tx.Create(&frame).Error
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create frame: %w", err)
	}

	s.logger.Info("frame created", "frame_id", frame.ID, "serial_number", frame.SerialNumber)
	return s.GetFrame(ctx, frame.ID)
}

// UpdateFrame overwrites the editable fields of a frame when in.Version
// matches the stored version.
func (s *Service) UpdateFrame(ctx context.Context, in FrameInput) (*Frame, error) {
	visual, err := normalizeVisualJSON(in.VisualJSON)
	if err != nil {
		return nil, err
	}

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := validateFrameRefs(tx, in); err != nil {
			return err
		}
		return updateVersioned(tx, &Frame{}, "frame_id", in.ID, in.Version, map[string]any{
			"prod_batch_id":        in.ProdBatchID,
			"frame_model_id":       in.FrameModelID,
			"system_mark_id":       in.SystemMarkID,
			"expert_mark_id":       in.ExpertMarkID,
			"final_mark_id":        in.FinalMarkID,
			"serial_number":        strings.TrimSpace(in.SerialNumber),
			"visual_analys_params": visual,
		})
	})
	if err != nil {
		if errors.Is(err, ErrValidation) || errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update frame %d: %w", in.ID, err)
	}

	s.logger.Info("frame updated", "frame_id", in.ID)
	return s.GetFrame(ctx, in.ID)
}

// DeleteFrame removes a frame together with its processed sensors and
// notifications.
func (s *Service) DeleteFrame(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("frame_id = ?", id).Delete(&Notification{}).Error; err != nil {
			return fmt.Errorf("failed to delete notifications: %w", err)
		}
		if err := tx.Where("frame_id = ?", id).Delete(&ProcessedSensor{}).Error; err != nil {
			return fmt.Errorf("failed to delete processed sensors: %w", err)
		}
		res := tx.Delete(&Frame{}, id)
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
		return fmt.Errorf("failed to delete frame %d: %w", id, err)
	}

	s.logger.Info("frame deleted", "frame_id", id)
	return nil
}
