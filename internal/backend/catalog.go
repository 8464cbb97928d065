package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

// ListBatchStatuses returns the batch status lookup.
func (s *Service) ListBatchStatuses(ctx context.Context) ([]BatchStatus, error) {
	var rows []BatchStatus
	if err := s.db.WithContext(ctx).Order("batch_status_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list batch statuses: %w", err)
	}
	return rows, nil
}

// ListFrameModels returns all frame models by name.
func (s *Service) ListFrameModels(ctx context.Context) ([]FrameModel, error) {
	var rows []FrameModel
	if err := s.db.WithContext(ctx).Order("frame_name").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list frame models: %w", err)
	}
	return rows, nil
}

// CreateFrameModel stores a new frame model with a unique name.
func (s *Service) CreateFrameModel(ctx context.Context, name string) (*FrameModel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("frame_name", "name is required")
	}

	model := FrameModel{FrameName: name}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&FrameModel{}).Where("frame_name = ?", name).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return invalid("frame_name", fmt.Sprintf("model %q already exists", name))
		}
		return tx.Create(&model).Error
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create frame model: %w", err)
	}
	return &model, nil
}

// ListMarkTypes returns the mark lookup.
func (s *Service) ListMarkTypes(ctx context.Context) ([]FinalMarkType, error) {
	var rows []FinalMarkType
	if err := s.db.WithContext(ctx).Order("final_mark_type_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list mark types: %w", err)
	}
	return rows, nil
}

// ListNotificationTypes returns the notification type lookup.
func (s *Service) ListNotificationTypes(ctx context.Context) ([]NotificationType, error) {
	var rows []NotificationType
	if err := s.db.WithContext(ctx).Order("notification_type_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list notification types: %w", err)
	}
	return rows, nil
}

// ListSensors returns all sensors in processing order.
func (s *Service) ListSensors(ctx context.Context) ([]Sensor, error) {
	var rows []Sensor
	if err := s.db.WithContext(ctx).Order("sensor_id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list sensors: %w", err)
	}
	return rows, nil
}

// CreateSensor stores a new sensor with a unique name.
func (s *Service) CreateSensor(ctx context.Context, name string) (*Sensor, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("sensor_name", "name is required")
	}

	sensor := Sensor{SensorName: name}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&Sensor{}).Where("sensor_name = ?", name).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return invalid("sensor_name", fmt.Sprintf("sensor %q already exists", name))
		}
		return tx.Create(&sensor).Error
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create sensor: %w", err)
	}

	s.logger.Info("sensor created", "sensor_id", sensor.ID, "name", name)
	return &sensor, nil
}

// DeleteSensor removes a sensor with its rules and instrument readings. A
// sensor that already has processed values cannot be removed.
func (s *Service) DeleteSensor(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		ok, err := exists(tx, &Sensor{}, "sensor_id", id)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotFound
		}

		var used int64
		if err := tx.Model(&ProcessedSensor{}).Where("sensor_id = ?", id).Count(&used).Error; err != nil {
			return err
		}
		if used > 0 {
			return invalid("sensor", fmt.Sprintf("sensor has %d processed values", used))
		}

		if err := tx.Where("sensor_id = ?", id).Delete(&NotificationRule{}).Error; err != nil {
			return err
		}
		if err := tx.Where("sensor_id = ?", id).Delete(&InstrumentReading{}).Error; err != nil {
			return err
		}
		return tx.Delete(&Sensor{}, id).Error
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrValidation) {
			return err
		}
		return fmt.Errorf("failed to delete sensor %d: %w", id, err)
	}

	s.logger.Info("sensor deleted", "sensor_id", id)
	return nil
}

// ListRules returns all notification rules with their sensor and type.
func (s *Service) ListRules(ctx context.Context) ([]NotificationRule, error) {
	var rows []NotificationRule
	if err := s.db.WithContext(ctx).
		Preload("Sensor").
		Preload("NotificationType").
		Order("sensor_id").
		Order("notification_rule_id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rows, nil
}

// CreateRule stores a new notification rule. At least one threshold is required.
func (s *Service) CreateRule(ctx context.Context, in RuleInput) (*NotificationRule, error) {
	if in.NormalValue == nil && in.CriticalValue == nil {
		return nil, invalid("thresholds", "set a normal or a critical value")
	}

	rule := NotificationRule{
		SensorID:           in.SensorID,
		NormalValue:        in.NormalValue,
		CriticalValue:      in.CriticalValue,
		NotificationTypeID: in.NotificationTypeID,
	}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sensorID := in.SensorID
		if err := requireRef(tx, &Sensor{}, "sensor_id", &sensorID, "sensor_id"); err != nil {
			return err
		}
		if err := requireRef(tx, &NotificationType{}, "notification_type_id", in.NotificationTypeID, "notification_type_id"); err != nil {
			return err
		}
		return tx.Create(&rule).Error
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}

	s.logger.Info("notification rule created", "rule_id", rule.ID, "sensor_id", rule.SensorID)

	var created NotificationRule
	if err := s.db.WithContext(ctx).Preload("Sensor").Preload("NotificationType").First(&created, rule.ID).Error; err != nil {
		return nil, notFound(err)
	}
	return &created, nil
}

// DeleteRule removes a rule. Notifications it raised keep existing without it.
func (s *Service) DeleteRule(ctx context.Context, id uint) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&Notification{}).Where("notification_rule_id = ?", id).
			Update("notification_rule_id", nil).Error; err != nil {
			return err
		}
		res := tx.Delete(&NotificationRule{}, id)
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
		return fmt.Errorf("failed to delete rule %d: %w", id, err)
	}
	return nil
}

// ListProcessedSensors returns the processed values of a frame.
func (s *Service) ListProcessedSensors(ctx context.Context, frameID uint) ([]ProcessedSensor, error) {
	var rows []ProcessedSensor
	if err := s.db.WithContext(ctx).
		Preload("Sensor").
		Where("frame_id = ?", frameID).
		Order("prod_processed_sensor_id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list processed sensors: %w", err)
	}
	return rows, nil
}

// ListNotifications returns the notifications of a frame.
func (s *Service) ListNotifications(ctx context.Context, frameID uint) ([]Notification, error) {
	var rows []Notification
	if err := s.db.WithContext(ctx).
		Preload("ProcessedSensor.Sensor").
		Preload("NotificationRule.NotificationType").
		Where("frame_id = ?", frameID).
		Order("notification_id").
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	return rows, nil
}

// RecordReading stores an instrument reading for a known sensor.
func (s *Service) RecordReading(ctx context.Context, in ReadingInput) (*InstrumentReading, error) {
	reading := InstrumentReading{
		SensorID:  in.SensorID,
		Value:     in.Value,
		Timestamp: in.Timestamp.UTC(),
		Source:    strings.TrimSpace(in.Source),
	}
	if in.Timestamp.IsZero() {
		reading.Timestamp = s.clock()
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sensorID := in.SensorID
		if err := requireRef(tx, &Sensor{}, "sensor_id", &sensorID, "sensor_id"); err != nil {
			return err
		}
		return tx.Create(&reading).Error
	})
	if err != nil {
		if errors.Is(err, ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to record reading: %w", err)
	}
	return &reading, nil
}

// Summary returns dashboard counters and the latest notifications.
func (s *Service) Summary(ctx context.Context) (*Summary, error) {
	db := s.db.WithContext(ctx)
	sum := &Summary{}

	counts := []struct {
		dst   *int64
		query *gorm.DB
	}{
		{&sum.Batches, db.Model(&ProductionBatch{})},
		{&sum.Frames, db.Model(&Frame{})},
		{&sum.ProcessedFrames, db.Model(&ProcessedSensor{}).Distinct("frame_id")},
		{&sum.AnalyzedFrames, db.Model(&Frame{}).Where("visual_analys_params IS NOT NULL")},
		{&sum.Notifications, db.Model(&Notification{})},
		{&sum.Sensors, db.Model(&Sensor{})},
	}
	for _, c := range counts {
		if err := c.query.Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("failed to build summary: %w", err)
		}
	}

	if err := db.
		Preload("ProcessedSensor.Sensor").
		Preload("NotificationRule").
		Order("notification_id DESC").
		Limit(10).
		Find(&sum.RecentNotifications).Error; err != nil {
		return nil, fmt.Errorf("failed to load recent notifications: %w", err)
	}
	return sum, nil
}
