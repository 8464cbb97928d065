package qcrpc

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/test/bufconn"
	"gorm.io/gorm"

	"procodus.dev/qc-app/internal/backend"
	"procodus.dev/qc-app/pkg/metrics"
)

var testMetrics = sync.OnceValue(func() *metrics.BackendMetrics {
	return metrics.NewBackendMetrics(metrics.Namespace)
})

type harness struct {
	db      *gorm.DB
	service *backend.Service
	client  *Client
	values  map[string]float64
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

func ptr[T any](v T) *T {
	return &v
}

// newHarness serves a SQLite-backed Service over an in-memory listener and
// returns a client dialed to it.
func newHarness(t *testing.T) *harness {
	t.Helper()

	logger := discardLogger()
	db, err := backend.NewDB(&backend.DBConfig{
		Logger:     logger,
		Driver:     backend.DriverSQLite,
		SQLitePath: fmt.Sprintf("file:qc-%s?mode=memory&cache=shared", uuid.NewString()),
	})
	require.NoError(t, err)

	h := &harness{db: db, values: map[string]float64{}}
	h.service, err = backend.NewService(&backend.ServiceConfig{
		Logger: logger,
		DB:     db,
		Values: backend.ValueSourceFunc(func(_ context.Context, _ *gorm.DB, sensor backend.Sensor) (float64, error) {
			v, ok := h.values[sensor.SensorName]
			if !ok {
				return 0, fmt.Errorf("no test value for %s", sensor.SensorName)
			}
			return v, nil
		}),
		Now: func() time.Time { return time.Date(2026, 4, 14, 9, 30, 0, 0, time.UTC) },
	})
	require.NoError(t, err)

	lis := bufconn.Listen(1 << 20)
	server := grpc.NewServer(grpc.UnaryInterceptor(UnaryServerInterceptor(logger, testMetrics())))
	Register(server, h.service)
	go func() { _ = server.Serve(lis) }()

	h.client, err = Dial("passthrough:///bufnet", grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
		return lis.DialContext(ctx)
	}))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, h.client.Close())
		server.Stop()
		require.NoError(t, backend.CloseDB(db, logger))
	})
	return h
}

func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}
