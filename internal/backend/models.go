// Package backend implements the quality-control record store: production
// batches, inspected frames, sensors and notification rules, together with
// the sensor-processing and expert visual-analysis routines.
package backend

import (
	"bytes"
	"time"

	"gorm.io/datatypes"
)

// BatchStatus is a lookup of production batch states.
type BatchStatus struct {
	StatusName string `gorm:"column:status_name;size:100;not null;uniqueIndex" json:"status_name"`
	ID         uint   `gorm:"column:batch_status_id;primaryKey" json:"id"`
}

// TableName specifies the table name for BatchStatus model.
func (BatchStatus) TableName() string {
	return "batch_status"
}

// FinalMarkType is a lookup of quality marks. A frame references it three
// times: the system mark, the expert mark and the final mark.
type FinalMarkType struct {
	FinalMarkName string `gorm:"column:final_mark_name;size:100;not null" json:"final_mark_name"`
	// Code is the verdict string that maps onto this mark, e.g. "REJECT".
	Code string `gorm:"column:code;size:32;not null;uniqueIndex" json:"code"`
	ID   uint   `gorm:"column:final_mark_type_id;primaryKey" json:"id"`
}

// TableName specifies the table name for FinalMarkType model.
func (FinalMarkType) TableName() string {
	return "final_mark_type"
}

// FrameModel is a product model that frames are built to.
type FrameModel struct {
	FrameName string `gorm:"column:frame_name;size:200;not null;uniqueIndex" json:"frame_name"`
	ID        uint   `gorm:"column:frame_model_id;primaryKey" json:"id"`
}

// TableName specifies the table name for FrameModel model.
func (FrameModel) TableName() string {
	return "frame_model"
}

// ProductionBatch is a production run grouping frames.
type ProductionBatch struct {
	StartDate     *time.Time   `gorm:"column:start_date" json:"start_date,omitempty"`
	EndDate       *time.Time   `gorm:"column:end_date" json:"end_date,omitempty"`
	BatchStatusID *uint        `gorm:"column:batch_status_id;index" json:"batch_status_id,omitempty"`
	BatchStatus   *BatchStatus `gorm:"foreignKey:BatchStatusID;references:ID;constraint:OnDelete:SET NULL" json:"batch_status,omitempty"`
	// Recom holds the expert's recommendations for the batch.
	Recom   string `gorm:"column:recom;type:text" json:"recom"`
	Version int    `gorm:"column:version;not null;default:1" json:"version"`
	ID      uint   `gorm:"column:production_batch_id;primaryKey" json:"id"`
}

// TableName specifies the table name for ProductionBatch model.
func (ProductionBatch) TableName() string {
	return "production_batch"
}

// Frame is a single inspected unit.
type Frame struct {
	ProdBatchID  *uint            `gorm:"column:prod_batch_id;index" json:"prod_batch_id,omitempty"`
	Batch        *ProductionBatch `gorm:"foreignKey:ProdBatchID;references:ID;constraint:OnDelete:SET NULL" json:"batch,omitempty"`
	FrameModelID *uint            `gorm:"column:frame_model_id" json:"frame_model_id,omitempty"`
	FrameModel   *FrameModel      `gorm:"foreignKey:FrameModelID;references:ID;constraint:OnDelete:SET NULL" json:"frame_model,omitempty"`
	SystemMarkID *uint            `gorm:"column:system_mark_id" json:"system_mark_id,omitempty"`
	SystemMark   *FinalMarkType   `gorm:"foreignKey:SystemMarkID;references:ID;constraint:OnDelete:SET NULL" json:"system_mark,omitempty"`
	ExpertMarkID *uint            `gorm:"column:expert_mark_id" json:"expert_mark_id,omitempty"`
	ExpertMark   *FinalMarkType   `gorm:"foreignKey:ExpertMarkID;references:ID;constraint:OnDelete:SET NULL" json:"expert_mark,omitempty"`
	FinalMarkID  *uint            `gorm:"column:final_mark_id" json:"final_mark_id,omitempty"`
	FinalMark    *FinalMarkType   `gorm:"foreignKey:FinalMarkID;references:ID;constraint:OnDelete:SET NULL" json:"final_mark,omitempty"`
	// VisualAnalysParams holds the expert visual-analysis document, or NULL.
	VisualAnalysParams datatypes.JSON `gorm:"column:visual_analys_params" json:"visual_analys_params,omitempty"`
	SerialNumber       string         `gorm:"column:serial_number;size:100;index" json:"serial_number"`
	Version            int            `gorm:"column:version;not null;default:1" json:"version"`
	ID                 uint           `gorm:"column:frame_id;primaryKey" json:"id"`
}

// TableName specifies the table name for Frame model.
func (Frame) TableName() string {
	return "frame"
}

// HasVisualAnalysis reports whether an analysis document is stored.
func (f *Frame) HasVisualAnalysis() bool {
	raw := bytes.TrimSpace(f.VisualAnalysParams)
	return len(raw) > 0 && !bytes.Equal(raw, []byte("null"))
}

// VisualJSON returns the stored document as text, "{}" when absent.
func (f *Frame) VisualJSON() string {
	if !f.HasVisualAnalysis() {
		return "{}"
	}
	return string(f.VisualAnalysParams)
}

// Sensor is a measurement channel evaluated for every processed frame.
type Sensor struct {
	SensorName string `gorm:"column:sensor_name;size:200;not null;uniqueIndex" json:"sensor_name"`
	ID         uint   `gorm:"column:sensor_id;primaryKey" json:"id"`
}

// TableName specifies the table name for Sensor model.
func (Sensor) TableName() string {
	return "sensor"
}

// NotificationType is a lookup of notification severities.
type NotificationType struct {
	TypeName string `gorm:"column:type_name;size:100;not null;uniqueIndex" json:"type_name"`
	ID       uint   `gorm:"column:notification_type_id;primaryKey" json:"id"`
}

// TableName specifies the table name for NotificationType model.
func (NotificationType) TableName() string {
	return "notification_type"
}

// NotificationRule raises a notification when a processed value exceeds
// either configured threshold.
type NotificationRule struct {
	Sensor             *Sensor           `gorm:"foreignKey:SensorID;references:ID;constraint:OnDelete:CASCADE" json:"sensor,omitempty"`
	NormalValue        *float64          `gorm:"column:normal_value" json:"normal_value,omitempty"`
	CriticalValue      *float64          `gorm:"column:critical_value" json:"critical_value,omitempty"`
	NotificationTypeID *uint             `gorm:"column:notification_type_id" json:"notification_type_id,omitempty"`
	NotificationType   *NotificationType `gorm:"foreignKey:NotificationTypeID;references:ID;constraint:OnDelete:SET NULL" json:"notification_type,omitempty"`
	SensorID           uint              `gorm:"column:sensor_id;not null;index" json:"sensor_id"`
	ID                 uint              `gorm:"column:notification_rule_id;primaryKey" json:"id"`
}

// TableName specifies the table name for NotificationRule model.
func (NotificationRule) TableName() string {
	return "notification_rule"
}

// ProcessedSensor is the value recorded for one sensor during one processing run.
type ProcessedSensor struct {
	ProcessTime    time.Time `gorm:"column:process_time;not null" json:"process_time"`
	Sensor         *Sensor   `gorm:"foreignKey:SensorID;references:ID;constraint:OnDelete:RESTRICT" json:"sensor,omitempty"`
	Frame          *Frame    `gorm:"foreignKey:FrameID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	ValueAfterProc float64   `gorm:"column:value_after_proc;not null" json:"value_after_proc"`
	SensorID       uint      `gorm:"column:sensor_id;not null" json:"sensor_id"`
	FrameID        uint      `gorm:"column:frame_id;not null;index" json:"frame_id"`
	ID             uint      `gorm:"column:prod_processed_sensor_id;primaryKey" json:"id"`
}

// TableName specifies the table name for ProcessedSensor model.
func (ProcessedSensor) TableName() string {
	return "prod_processed_sensor"
}

// Notification records one rule firing for one processed sensor value.
type Notification struct {
	NotificationTime   time.Time         `gorm:"column:notification_time;not null" json:"notification_time"`
	ProcessedSensor    *ProcessedSensor  `gorm:"foreignKey:SensorProdID;references:ID;constraint:OnDelete:CASCADE" json:"processed_sensor,omitempty"`
	NotificationRuleID *uint             `gorm:"column:notification_rule_id" json:"notification_rule_id,omitempty"`
	NotificationRule   *NotificationRule `gorm:"foreignKey:NotificationRuleID;references:ID;constraint:OnDelete:SET NULL" json:"notification_rule,omitempty"`
	Frame              *Frame            `gorm:"foreignKey:FrameID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	SensorProdID       uint              `gorm:"column:sensor_prod_id;not null;index" json:"sensor_prod_id"`
	FrameID            uint              `gorm:"column:frame_id;not null;index" json:"frame_id"`
	ID                 uint              `gorm:"column:notification_id;primaryKey" json:"id"`
}

// TableName specifies the table name for Notification model.
func (Notification) TableName() string {
	return "notification"
}

// InstrumentReading is a raw value published by a line instrument.
type InstrumentReading struct {
	Timestamp time.Time `gorm:"column:timestamp;not null;index:idx_reading_sensor_time,priority:2" json:"timestamp"`
	Sensor    *Sensor   `gorm:"foreignKey:SensorID;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Source    string    `gorm:"column:source;size:100" json:"source"`
	Value     float64   `gorm:"column:value;not null" json:"value"`
	SensorID  uint      `gorm:"column:sensor_id;not null;index:idx_reading_sensor_time,priority:1" json:"sensor_id"`
	ID        uint      `gorm:"column:instrument_reading_id;primaryKey" json:"id"`
}

// TableName specifies the table name for InstrumentReading model.
func (InstrumentReading) TableName() string {
	return "instrument_reading"
}
