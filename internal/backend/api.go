package backend

import (
	"context"
	"time"
)

// API is the full set of quality-control operations. Service implements it
// against the database; the qcrpc client implements it over gRPC.
type API interface {
	ListBatches(ctx context.Context) ([]ProductionBatch, error)
	GetBatch(ctx context.Context, id uint) (*ProductionBatch, error)
	CreateBatch(ctx context.Context, in BatchInput) (*ProductionBatch, error)
	UpdateBatch(ctx context.Context, in BatchInput) (*ProductionBatch, error)
	DeleteBatch(ctx context.Context, id uint) error

	ListFrames(ctx context.Context, filter FrameFilter) ([]Frame, error)
	GetFrame(ctx context.Context, id uint) (*Frame, error)
	CreateFrame(ctx context.Context, in FrameInput) (*Frame, error)
	UpdateFrame(ctx context.Context, in FrameInput) (*Frame, error)
	DeleteFrame(ctx context.Context, id uint) error

	ProcessFrameSensors(ctx context.Context, frameID uint) (*ProcessResult, error)
	CaptureVisualAnalysis(ctx context.Context, in VisualAnalysisInput) (*Frame, error)
	ListProcessedSensors(ctx context.Context, frameID uint) ([]ProcessedSensor, error)
	ListNotifications(ctx context.Context, frameID uint) ([]Notification, error)

	ListBatchStatuses(ctx context.Context) ([]BatchStatus, error)
	ListFrameModels(ctx context.Context) ([]FrameModel, error)
	CreateFrameModel(ctx context.Context, name string) (*FrameModel, error)
	ListMarkTypes(ctx context.Context) ([]FinalMarkType, error)
	ListNotificationTypes(ctx context.Context) ([]NotificationType, error)
	ListSensors(ctx context.Context) ([]Sensor, error)
	CreateSensor(ctx context.Context, name string) (*Sensor, error)
	DeleteSensor(ctx context.Context, id uint) error
	ListRules(ctx context.Context) ([]NotificationRule, error)
	CreateRule(ctx context.Context, in RuleInput) (*NotificationRule, error)
	DeleteRule(ctx context.Context, id uint) error

	RecordReading(ctx context.Context, in ReadingInput) (*InstrumentReading, error)
	Summary(ctx context.Context) (*Summary, error)
}

// BatchInput carries the editable fields of a production batch. Version must
// match the stored version on update.
type BatchInput struct {
	StartDate     *time.Time `json:"start_date,omitempty"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	BatchStatusID *uint      `json:"batch_status_id,omitempty"`
	Recom         string     `json:"recom"`
	ID            uint       `json:"id"`
	Version       int        `json:"version"`
}

// FrameInput carries the editable fields of a frame. VisualJSON is the raw
// analysis document; blank stores NULL.
type FrameInput struct {
	ProdBatchID  *uint  `json:"prod_batch_id,omitempty"`
	FrameModelID *uint  `json:"frame_model_id,omitempty"`
	SystemMarkID *uint  `json:"system_mark_id,omitempty"`
	ExpertMarkID *uint  `json:"expert_mark_id,omitempty"`
	FinalMarkID  *uint  `json:"final_mark_id,omitempty"`
	SerialNumber string `json:"serial_number"`
	VisualJSON   string `json:"visual_json"`
	ID           uint   `json:"id"`
	Version      int    `json:"version"`
}

// FrameFilter narrows ListFrames. A nil BatchID lists every frame.
type FrameFilter struct {
	BatchID *uint `json:"batch_id,omitempty"`
}

// RuleInput carries a new notification rule.
type RuleInput struct {
	NormalValue        *float64 `json:"normal_value,omitempty"`
	CriticalValue      *float64 `json:"critical_value,omitempty"`
	NotificationTypeID *uint    `json:"notification_type_id,omitempty"`
	SensorID           uint     `json:"sensor_id"`
}

// ReadingInput carries an instrument reading. A zero Timestamp means now.
type ReadingInput struct {
	Timestamp time.Time `json:"timestamp"`
	Source    string    `json:"source"`
	Value     float64   `json:"value"`
	SensorID  uint      `json:"sensor_id"`
}

// Summary backs the dashboard.
type Summary struct {
	RecentNotifications []Notification `json:"recent_notifications"`
	Batches             int64          `json:"batches"`
	Frames              int64          `json:"frames"`
	ProcessedFrames     int64          `json:"processed_frames"`
	AnalyzedFrames      int64          `json:"analyzed_frames"`
	Notifications       int64          `json:"notifications"`
	Sensors             int64          `json:"sensors"`
}
