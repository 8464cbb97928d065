package qcrpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"procodus.dev/qc-app/internal/backend"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "qc.v1.QualityControl"

// FullMethod returns the gRPC path of method.
func FullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// ServiceDesc describes the QualityControl service. Handlers expect the
// registered implementation to be a backend.API.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*backend.API)(nil),
	Methods: []grpc.MethodDesc{
		unary("ListBatches", func(ctx context.Context, api backend.API, _ *empty) (items[backend.ProductionBatch], error) {
			out, err := api.ListBatches(ctx)
			return items[backend.ProductionBatch]{Items: out}, err
		}),
		unary("GetBatch", func(ctx context.Context, api backend.API, req *idRequest) (*backend.ProductionBatch, error) {
			return api.GetBatch(ctx, req.ID)
		}),
		unary("CreateBatch", func(ctx context.Context, api backend.API, req *backend.BatchInput) (*backend.ProductionBatch, error) {
			return api.CreateBatch(ctx, *req)
		}),
		unary("UpdateBatch", func(ctx context.Context, api backend.API, req *backend.BatchInput) (*backend.ProductionBatch, error) {
			return api.UpdateBatch(ctx, *req)
		}),
		unary("DeleteBatch", func(ctx context.Context, api backend.API, req *idRequest) (empty, error) {
			return empty{}, api.DeleteBatch(ctx, req.ID)
		}),

		unary("ListFrames", func(ctx context.Context, api backend.API, req *backend.FrameFilter) (items[backend.Frame], error) {
			out, err := api.ListFrames(ctx, *req)
			return items[backend.Frame]{Items: out}, err
		}),
		unary("GetFrame", func(ctx context.Context, api backend.API, req *idRequest) (*backend.Frame, error) {
			return api.GetFrame(ctx, req.ID)
		}),
		unary("CreateFrame", func(ctx context.Context, api backend.API, req *backend.FrameInput) (*backend.Frame, error) {
			return api.CreateFrame(ctx, *req)
		}),
		unary("UpdateFrame", func(ctx context.Context, api backend.API, req *backend.FrameInput) (*backend.Frame, error) {
			return api.UpdateFrame(ctx, *req)
		}),
		unary("DeleteFrame", func(ctx context.Context, api backend.API, req *idRequest) (empty, error) {
			return empty{}, api.DeleteFrame(ctx, req.ID)
		}),

		unary("ProcessFrameSensors", func(ctx context.Context, api backend.API, req *idRequest) (*backend.ProcessResult, error) {
			return api.ProcessFrameSensors(ctx, req.ID)
		}),
		unary("CaptureVisualAnalysis", func(ctx context.Context, api backend.API, req *backend.VisualAnalysisInput) (*backend.Frame, error) {
			return api.CaptureVisualAnalysis(ctx, *req)
		}),
		unary("ListProcessedSensors", func(ctx context.Context, api backend.API, req *idRequest) (items[backend.ProcessedSensor], error) {
			out, err := api.ListProcessedSensors(ctx, req.ID)
			return items[backend.ProcessedSensor]{Items: out}, err
		}),
		unary("ListNotifications", func(ctx context.Context, api backend.API, req *idRequest) (items[backend.Notification], error) {
			out, err := api.ListNotifications(ctx, req.ID)
			return items[backend.Notification]{Items: out}, err
		}),

		unary("ListBatchStatuses", func(ctx context.Context, api backend.API, _ *empty) (items[backend.BatchStatus], error) {
			out, err := api.ListBatchStatuses(ctx)
			return items[backend.BatchStatus]{Items: out}, err
		}),
		unary("ListFrameModels", func(ctx context.Context, api backend.API, _ *empty) (items[backend.FrameModel], error) {
			out, err := api.ListFrameModels(ctx)
			return items[backend.FrameModel]{Items: out}, err
		}),
		unary("CreateFrameModel", func(ctx context.Context, api backend.API, req *nameRequest) (*backend.FrameModel, error) {
			return api.CreateFrameModel(ctx, req.Name)
		}),
		unary("ListMarkTypes", func(ctx context.Context, api backend.API, _ *empty) (items[backend.FinalMarkType], error) {
			out, err := api.ListMarkTypes(ctx)
			return items[backend.FinalMarkType]{Items: out}, err
		}),
		unary("ListNotificationTypes", func(ctx context.Context, api backend.API, _ *empty) (items[backend.NotificationType], error) {
			out, err := api.ListNotificationTypes(ctx)
			return items[backend.NotificationType]{Items: out}, err
		}),
		unary("ListSensors", func(ctx context.Context, api backend.API, _ *empty) (items[backend.Sensor], error) {
			out, err := api.ListSensors(ctx)
			return items[backend.Sensor]{Items: out}, err
		}),
		unary("CreateSensor", func(ctx context.Context, api backend.API, req *nameRequest) (*backend.Sensor, error) {
			return api.CreateSensor(ctx, req.Name)
		}),
		unary("DeleteSensor", func(ctx context.Context, api backend.API, req *idRequest) (empty, error) {
			return empty{}, api.DeleteSensor(ctx, req.ID)
		}),
		unary("ListRules", func(ctx context.Context, api backend.API, _ *empty) (items[backend.NotificationRule], error) {
			out, err := api.ListRules(ctx)
			return items[backend.NotificationRule]{Items: out}, err
		}),
		unary("CreateRule", func(ctx context.Context, api backend.API, req *backend.RuleInput) (*backend.NotificationRule, error) {
			return api.CreateRule(ctx, *req)
		}),
		unary("DeleteRule", func(ctx context.Context, api backend.API, req *idRequest) (empty, error) {
			return empty{}, api.DeleteRule(ctx, req.ID)
		}),

		unary("RecordReading", func(ctx context.Context, api backend.API, req *backend.ReadingInput) (*backend.InstrumentReading, error) {
			return api.RecordReading(ctx, *req)
		}),
		unary("Summary", func(ctx context.Context, api backend.API, _ *empty) (*backend.Summary, error) {
			return api.Summary(ctx)
		}),
	},
	Streams: []grpc.StreamDesc{},
}

// Register installs api on s. Its signature matches backend.RegisterFunc.
func Register(s grpc.ServiceRegistrar, api backend.API) {
	s.RegisterService(&ServiceDesc, api)
}

// unary builds a method whose request and response travel as Struct
// envelopes around Req and Resp.
func unary[Req, Resp any](name string, call func(context.Context, backend.API, *Req) (Resp, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}

			handler := func(ctx context.Context, req any) (any, error) {
				envelope, _ := req.(*structpb.Struct)
				var r Req
				if err := decode(envelope, &r); err != nil {
					return nil, status.Errorf(codes.InvalidArgument, "malformed %s request: %v", name, err)
				}

				resp, err := call(ctx, srv.(backend.API), &r)
				if err != nil {
					return nil, toStatus(err)
				}

				out, err := encode(resp)
				if err != nil {
					return nil, status.Errorf(codes.Internal, "failed to encode %s response: %v", name, err)
				}
				return out, nil
			}

			if interceptor == nil {
				return handler(ctx, in)
			}
			info := &grpc.UnaryServerInfo{
				Server:     srv,
				FullMethod: FullMethod(name),
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}
