package qcrpc

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/protoadapt"

	"procodus.dev/qc-app/internal/backend"
)

// Precondition violation types reported in FailedPrecondition details.
const (
	ViolationAlreadyProcessed = "ALREADY_PROCESSED"
	ViolationNoSensors        = "NO_SENSORS"
	ViolationNoReading        = "NO_READING"
)

// remoteError keeps the server's message while matching a local sentinel.
type remoteError struct {
	sentinel error
	msg      string
}

func (e *remoteError) Error() string {
	return e.msg
}

func (e *remoteError) Unwrap() error {
	return e.sentinel
}

// toStatus converts a backend error into a gRPC status error.
func toStatus(err error) error {
	if err == nil {
		return nil
	}

	if _, ok := status.FromError(err); ok {
		return err
	}

	var verr *backend.ValidationError
	switch {
	case errors.As(err, &verr):
		return withDetail(status.New(codes.InvalidArgument, verr.Error()), &errdetails.BadRequest{
			FieldViolations: []*errdetails.BadRequest_FieldViolation{
				{Field: verr.Field, Description: verr.Message},
			},
		})
	case errors.Is(err, backend.ErrValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, backend.ErrNotFound):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, backend.ErrConflict):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, backend.ErrPrecondition):
		st := status.New(codes.FailedPrecondition, err.Error())
		kind := violationType(err)
		if kind == "" {
			return st.Err()
		}
		return withDetail(st, &errdetails.PreconditionFailure{
			Violations: []*errdetails.PreconditionFailure_Violation{
				{Type: kind, Description: err.Error()},
			},
		})
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// withDetail attaches detail to st, falling back to the bare status.
func withDetail(st *status.Status, detail protoadapt.MessageV1) error {
	detailed, err := st.WithDetails(detail)
	if err != nil {
		return st.Err()
	}
	return detailed.Err()
}

func violationType(err error) string {
	switch {
	case errors.Is(err, backend.ErrAlreadyProcessed):
		return ViolationAlreadyProcessed
	case errors.Is(err, backend.ErrNoSensors):
		return ViolationNoSensors
	case errors.Is(err, backend.ErrNoReading):
		return ViolationNoReading
	default:
		return ""
	}
}

// fromStatus converts a gRPC status error back into an error that matches
// the backend sentinels with errors.Is.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}

	switch st.Code() {
	case codes.OK:
		return nil
	case codes.InvalidArgument:
		for _, d := range st.Details() {
			if br, ok := d.(*errdetails.BadRequest); ok && len(br.GetFieldViolations()) > 0 {
				v := br.GetFieldViolations()[0]
				return &backend.ValidationError{Field: v.GetField(), Message: v.GetDescription()}
			}
		}
		return &remoteError{sentinel: backend.ErrValidation, msg: st.Message()}
	case codes.NotFound:
		return &remoteError{sentinel: backend.ErrNotFound, msg: st.Message()}
	case codes.Aborted:
		return &remoteError{sentinel: backend.ErrConflict, msg: st.Message()}
	case codes.FailedPrecondition:
		sentinel := backend.ErrPrecondition
		for _, d := range st.Details() {
			pf, ok := d.(*errdetails.PreconditionFailure)
			if !ok || len(pf.GetViolations()) == 0 {
				continue
			}
			switch pf.GetViolations()[0].GetType() {
			case ViolationAlreadyProcessed:
				sentinel = backend.ErrAlreadyProcessed
			case ViolationNoSensors:
				sentinel = backend.ErrNoSensors
			case ViolationNoReading:
				sentinel = backend.ErrNoReading
			}
		}
		return &remoteError{sentinel: sentinel, msg: st.Message()}
	case codes.Canceled:
		return &remoteError{sentinel: context.Canceled, msg: st.Message()}
	case codes.DeadlineExceeded:
		return &remoteError{sentinel: context.DeadlineExceeded, msg: st.Message()}
	default:
		return err
	}
}
