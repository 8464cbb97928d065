package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

// ProcessResult describes one sensor-processing run.
type ProcessResult struct {
	Processed            []ProcessedSensor `json:"processed"`
	Alerts               []Notification    `json:"alerts"`
	FrameID              uint              `json:"frame_id"`
	NotificationsCreated int               `json:"notifications_created"`
}

// Message is the operator-facing outcome of the run.
func (r *ProcessResult) Message() string {
	if r.NotificationsCreated == 0 {
		return fmt.Sprintf("Processed %d sensors, no notifications raised.", len(r.Processed))
	}
	return fmt.Sprintf("Processed %d sensors, %d notifications raised!", len(r.Processed), r.NotificationsCreated)
}

// Alert is the summary pushed to external services after a run that raised
// notifications.
type Alert struct {
	Time         time.Time   `json:"time"`
	SerialNumber string      `json:"serial_number"`
	Lines        []AlertLine `json:"lines"`
	FrameID      uint        `json:"frame_id"`
}

// AlertLine is one fired rule.
type AlertLine struct {
	Normal   *float64 `json:"normal,omitempty"`
	Critical *float64 `json:"critical,omitempty"`
	Sensor   string   `json:"sensor"`
	Severity string   `json:"severity"`
	Value    float64  `json:"value"`
}

// ProcessFrameSensors measures every sensor for a frame, stores one processed
// row per sensor and creates a notification for every rule that fires. It
// runs in one transaction and refuses frames that were already processed.
func (s *Service) ProcessFrameSensors(ctx context.Context, frameID uint) (*ProcessResult, error) {
	var timer *prometheus.Timer
	if s.metrics != nil {
		timer = prometheus.NewTimer(s.metrics.ProcessingDuration)
	}

	var (
		result *ProcessResult
		alert  *Alert
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		result, alert, err = s.processFrame(ctx, tx, frameID)
		return err
	})

	if timer != nil {
		timer.ObserveDuration()
	}
	s.countRun(err)

	if err != nil {
		if errors.Is(err, ErrPrecondition) || errors.Is(err, ErrNotFound) {
			s.logger.Info("frame sensors not processed", "frame_id", frameID, "reason", err)
			return nil, err
		}
		s.logger.Error("failed to process frame sensors", "frame_id", frameID, "error", err)
		return nil, fmt.Errorf("failed to process frame %d: %w", frameID, err)
	}

	s.logger.Info("frame sensors processed",
		"frame_id", frameID,
		"sensors", len(result.Processed),
		"notifications", result.NotificationsCreated,
	)

	if alert != nil {
		s.dispatchAlert(ctx, alert)
	}

	return result, nil
}

func (s *Service) processFrame(ctx context.Context, tx *gorm.DB, frameID uint) (*ProcessResult, *Alert, error) {
	var frame Frame
	if err := tx.First(&frame, frameID).Error; err != nil {
		return nil, nil, notFound(err)
	}

	var already int64
	if err := tx.Model(&ProcessedSensor{}).Where("frame_id = ?", frameID).Count(&already).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to check processed sensors: %w", err)
	}
	if already > 0 {
		return nil, nil, ErrAlreadyProcessed
	}

	var sensors []Sensor
	if err := tx.Order("sensor_id").Find(&sensors).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load sensors: %w", err)
	}
	if len(sensors) == 0 {
		return nil, nil, ErrNoSensors
	}

	now := s.clock()

	// Rows are created first so that notifications can reference their IDs.
	processed := make([]ProcessedSensor, 0, len(sensors))
	for _, sensor := range sensors {
		value, err := s.values.Measure(ctx, tx, sensor)
		if err != nil {
			return nil, nil, err
		}
		row := ProcessedSensor{
			SensorID:       sensor.ID,
			FrameID:        frameID,
			ValueAfterProc: value,
			ProcessTime:    now,
		}
		if err := tx.Create(&row).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to store processed sensor %d: %w", sensor.ID, err)
		}
		row.Sensor = &sensor
		processed = append(processed, row)
	}

	var rules []NotificationRule
	if err := tx.Order("notification_rule_id").Find(&rules).Error; err != nil {
		return nil, nil, fmt.Errorf("failed to load notification rules: %w", err)
	}
	bySensor := groupRulesBySensor(rules)

	result := &ProcessResult{FrameID: frameID, Processed: processed}
	alert := &Alert{FrameID: frameID, SerialNumber: frame.SerialNumber, Time: now}

	for i := range processed {
		row := &processed[i]
		for _, rule := range EvaluateRules(bySensor[row.SensorID], row.ValueAfterProc) {
			n := Notification{
				SensorProdID:       row.ID,
				NotificationRuleID: &rule.ID,
				FrameID:            frameID,
				NotificationTime:   now,
			}
			if err := tx.Create(&n).Error; err != nil {
				return nil, nil, fmt.Errorf("failed to store notification for rule %d: %w", rule.ID, err)
			}
			n.ProcessedSensor = row
			n.NotificationRule = &rule
			result.Alerts = append(result.Alerts, n)

			alert.Lines = append(alert.Lines, AlertLine{
				Sensor:   row.Sensor.SensorName,
				Value:    row.ValueAfterProc,
				Normal:   rule.NormalValue,
				Critical: rule.CriticalValue,
				Severity: RuleSeverity(rule, row.ValueAfterProc),
			})
			if s.metrics != nil {
				s.metrics.NotificationsCreated.WithLabelValues(row.Sensor.SensorName).Inc()
			}
		}
	}
	result.NotificationsCreated = len(result.Alerts)

	if s.metrics != nil {
		s.metrics.SensorsProcessed.Add(float64(len(processed)))
	}

	if result.NotificationsCreated == 0 {
		return result, nil, nil
	}
	return result, alert, nil
}

func (s *Service) dispatchAlert(ctx context.Context, alert *Alert) {
	if s.alerts == nil {
		return
	}
	status := "sent"
	if err := s.alerts.SendAlert(ctx, *alert); err != nil {
		status = "failed"
		s.logger.Warn("failed to dispatch alert", "frame_id", alert.FrameID, "error", err)
	}
	if s.metrics != nil {
		s.metrics.AlertsDispatched.WithLabelValues(status).Inc()
	}
}

func (s *Service) countRun(err error) {
	if s.metrics == nil {
		return
	}
	outcome := "processed"
	switch {
	case err == nil:
	case errors.Is(err, ErrAlreadyProcessed):
		outcome = "already_processed"
	case errors.Is(err, ErrNoSensors):
		outcome = "no_sensors"
	case errors.Is(err, ErrNoReading):
		outcome = "no_reading"
	case errors.Is(err, ErrNotFound):
		outcome = "not_found"
	default:
		outcome = "error"
	}
	s.metrics.ProcessingRunsTotal.WithLabelValues(outcome).Inc()
}
