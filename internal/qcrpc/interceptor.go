package qcrpc

import (
	"context"
	"log/slog"
	"path"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"procodus.dev/qc-app/pkg/metrics"
)

// UnaryServerInterceptor logs every call and records it in m when m is not nil.
func UnaryServerInterceptor(logger *slog.Logger, m *metrics.BackendMetrics) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		method := path.Base(info.FullMethod)

		if m != nil {
			m.RPCRequestsInFlight.WithLabelValues(method).Inc()
			defer m.RPCRequestsInFlight.WithLabelValues(method).Dec()
		}

		var timer *prometheus.Timer
		if m != nil {
			timer = prometheus.NewTimer(m.RPCRequestDuration.WithLabelValues(method))
			defer timer.ObserveDuration()
		}

		start := time.Now()
		resp, err := handler(ctx, req)
		code := status.Code(err)

		if m != nil {
			m.RPCRequestsTotal.WithLabelValues(method, code.String()).Inc()
		}

		attrs := []any{"method", method, "code", code.String(), "duration", time.Since(start)}
		switch code {
		case codes.OK:
			logger.Debug("rpc handled", attrs...)
		case codes.Internal, codes.Unknown, codes.DataLoss, codes.Unavailable:
			logger.Error("rpc failed", append(attrs, "error", err)...)
		default:
			logger.Info("rpc rejected", append(attrs, "error", err)...)
		}

		return resp, err
	}
}
