// Package mock provides an in-memory mq.ClientInterface for tests.
package mock

import (
	"context"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/qc-app/pkg/mq"
)

// MockClient records calls and returns configured results.
type MockClient struct {
	mu sync.Mutex

	// PushFunc overrides PushError when set.
	PushFunc  func(ctx context.Context, data []byte) error
	PushError error
	pushed    [][]byte

	UnsafePushError error

	// ConsumeFunc overrides ConsumeChannel and ConsumeError when set.
	ConsumeFunc    func() (<-chan amqp.Delivery, error)
	ConsumeChannel <-chan amqp.Delivery
	ConsumeError   error
	consumeCalls   int

	notReady bool

	CloseError error
	closeCalls int
}

// NewMockClient creates a ready MockClient that accepts every push.
func NewMockClient() *MockClient {
	return &MockClient{
		ConsumeChannel: make(chan amqp.Delivery),
	}
}

// Push implements mq.ClientInterface.
func (m *MockClient) Push(ctx context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pushed = append(m.pushed, append([]byte(nil), data...))
	if m.PushFunc != nil {
		return m.PushFunc(ctx, data)
	}
	return m.PushError
}

// UnsafePush implements mq.ClientInterface.
func (m *MockClient) UnsafePush(_ context.Context, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.pushed = append(m.pushed, append([]byte(nil), data...))
	return m.UnsafePushError
}

// Consume implements mq.ClientInterface.
func (m *MockClient) Consume() (<-chan amqp.Delivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consumeCalls++
	if m.ConsumeFunc != nil {
		return m.ConsumeFunc()
	}
	return m.ConsumeChannel, m.ConsumeError
}

// Ready implements mq.ClientInterface.
func (m *MockClient) Ready() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.notReady
}

// SetReady controls what Ready reports. A new mock is ready.
func (m *MockClient) SetReady(ready bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.notReady = !ready
}

// Close implements mq.ClientInterface.
func (m *MockClient) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeCalls++
	return m.CloseError
}

// Pushed returns copies of every payload passed to Push or UnsafePush.
func (m *MockClient) Pushed() [][]byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]byte(nil), m.pushed...)
}

// ConsumeCalls returns how many times Consume was called.
func (m *MockClient) ConsumeCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consumeCalls
}

// CloseCalls returns how many times Close was called.
func (m *MockClient) CloseCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeCalls
}

var _ mq.ClientInterface = (*MockClient)(nil)
