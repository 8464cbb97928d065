package qcrpc

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/protobuf/types/known/structpb"

	"procodus.dev/qc-app/internal/backend"
)

// Client implements backend.API against a remote QualityControl service.
type Client struct {
	cc   grpc.ClientConnInterface
	conn *grpc.ClientConn
}

var _ backend.API = (*Client)(nil)

// NewClient wraps an existing connection. Closing the connection stays with
// the caller.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

// Dial connects to the backend at target using plaintext credentials. Extra
// options are appended after the defaults.
func Dial(target string, opts ...grpc.DialOption) (*Client, error) {
	if target == "" {
		return nil, errors.New("backend address cannot be empty")
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}, opts...)

	conn, err := grpc.NewClient(target, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create gRPC client: %w", err)
	}

	return &Client{cc: conn, conn: conn}, nil
}

// Close releases the connection opened by Dial.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, req any) (*Resp, error) {
	in, err := encode(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s request: %w", method, err)
	}

	out := new(structpb.Struct)
	if err := cc.Invoke(ctx, FullMethod(method), in, out); err != nil {
		return nil, fromStatus(err)
	}

	resp := new(Resp)
	if err := decode(out, resp); err != nil {
		return nil, fmt.Errorf("failed to decode %s response: %w", method, err)
	}
	return resp, nil
}

func list[T any](ctx context.Context, cc grpc.ClientConnInterface, method string, req any) ([]T, error) {
	resp, err := invoke[items[T]](ctx, cc, method, req)
	if err != nil {
		return nil, err
	}
	return resp.Items, nil
}

func call(ctx context.Context, cc grpc.ClientConnInterface, method string, req any) error {
	_, err := invoke[empty](ctx, cc, method, req)
	return err
}

func (c *Client) ListBatches(ctx context.Context) ([]backend.ProductionBatch, error) {
	return list[backend.ProductionBatch](ctx, c.cc, "ListBatches", empty{})
}

func (c *Client) GetBatch(ctx context.Context, id uint) (*backend.ProductionBatch, error) {
	return invoke[backend.ProductionBatch](ctx, c.cc, "GetBatch", idRequest{ID: id})
}

func (c *Client) CreateBatch(ctx context.Context, in backend.BatchInput) (*backend.ProductionBatch, error) {
	return invoke[backend.ProductionBatch](ctx, c.cc, "CreateBatch", in)
}

func (c *Client) UpdateBatch(ctx context.Context, in backend.BatchInput) (*backend.ProductionBatch, error) {
	return invoke[backend.ProductionBatch](ctx, c.cc, "UpdateBatch", in)
}

func (c *Client) DeleteBatch(ctx context.Context, id uint) error {
	return call(ctx, c.cc, "DeleteBatch", idRequest{ID: id})
}

func (c *Client) ListFrames(ctx context.Context, filter backend.FrameFilter) ([]backend.Frame, error) {
	return list[backend.Frame](ctx, c.cc, "ListFrames", filter)
}

func (c *Client) GetFrame(ctx context.Context, id uint) (*backend.Frame, error) {
	return invoke[backend.Frame](ctx, c.cc, "GetFrame", idRequest{ID: id})
}

func (c *Client) CreateFrame(ctx context.Context, in backend.FrameInput) (*backend.Frame, error) {
	return invoke[backend.Frame](ctx, c.cc, "CreateFrame", in)
}

func (c *Client) UpdateFrame(ctx context.Context, in backend.FrameInput) (*backend.Frame, error) {
	return invoke[backend.Frame](ctx, c.cc, "UpdateFrame", in)
}

func (c *Client) DeleteFrame(ctx context.Context, id uint) error {
	return call(ctx, c.cc, "DeleteFrame", idRequest{ID: id})
}

func (c *Client) ProcessFrameSensors(ctx context.Context, frameID uint) (*backend.ProcessResult, error) {
	return invoke[backend.ProcessResult](ctx, c.cc, "ProcessFrameSensors", idRequest{ID: frameID})
}

func (c *Client) CaptureVisualAnalysis(ctx context.Context, in backend.VisualAnalysisInput) (*backend.Frame, error) {
	return invoke[backend.Frame](ctx, c.cc, "CaptureVisualAnalysis", in)
}

func (c *Client) ListProcessedSensors(ctx context.Context, frameID uint) ([]backend.ProcessedSensor, error) {
	return list[backend.ProcessedSensor](ctx, c.cc, "ListProcessedSensors", idRequest{ID: frameID})
}

func (c *Client) ListNotifications(ctx context.Context, frameID uint) ([]backend.Notification, error) {
	return list[backend.Notification](ctx, c.cc, "ListNotifications", idRequest{ID: frameID})
}

func (c *Client) ListBatchStatuses(ctx context.Context) ([]backend.BatchStatus, error) {
	return list[backend.BatchStatus](ctx, c.cc, "ListBatchStatuses", empty{})
}

func (c *Client) ListFrameModels(ctx context.Context) ([]backend.FrameModel, error) {
	return list[backend.FrameModel](ctx, c.cc, "ListFrameModels", empty{})
}

func (c *Client) CreateFrameModel(ctx context.Context, name string) (*backend.FrameModel, error) {
	return invoke[backend.FrameModel](ctx, c.cc, "CreateFrameModel", nameRequest{Name: name})
}

func (c *Client) ListMarkTypes(ctx context.Context) ([]backend.FinalMarkType, error) {
	return list[backend.FinalMarkType](ctx, c.cc, "ListMarkTypes", empty{})
}

func (c *Client) ListNotificationTypes(ctx context.Context) ([]backend.NotificationType, error) {
	return list[backend.NotificationType](ctx, c.cc, "ListNotificationTypes", empty{})
}

func (c *Client) ListSensors(ctx context.Context) ([]backend.Sensor, error) {
	return list[backend.Sensor](ctx, c.cc, "ListSensors", empty{})
}

func (c *Client) CreateSensor(ctx context.Context, name string) (*backend.Sensor, error) {
	return invoke[backend.Sensor](ctx, c.cc, "CreateSensor", nameRequest{Name: name})
}

func (c *Client) DeleteSensor(ctx context.Context, id uint) error {
	return call(ctx, c.cc, "DeleteSensor", idRequest{ID: id})
}

func (c *Client) ListRules(ctx context.Context) ([]backend.NotificationRule, error) {
	return list[backend.NotificationRule](ctx, c.cc, "ListRules", empty{})
}

func (c *Client) CreateRule(ctx context.Context, in backend.RuleInput) (*backend.NotificationRule, error) {
	return invoke[backend.NotificationRule](ctx, c.cc, "CreateRule", in)
}

func (c *Client) DeleteRule(ctx context.Context, id uint) error {
	return call(ctx, c.cc, "DeleteRule", idRequest{ID: id})
}

func (c *Client) RecordReading(ctx context.Context, in backend.ReadingInput) (*backend.InstrumentReading, error) {
	return invoke[backend.InstrumentReading](ctx, c.cc, "RecordReading", in)
}

func (c *Client) Summary(ctx context.Context) (*backend.Summary, error) {
	return invoke[backend.Summary](ctx, c.cc, "Summary", empty{})
}
