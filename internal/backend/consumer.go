package backend

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"procodus.dev/qc-app/pkg/metrics"
	"procodus.dev/qc-app/pkg/mq"
)

const subscribeRetryInterval = 500 * time.Millisecond

// ReadingRecorder stores instrument readings.
type ReadingRecorder interface {
	RecordReading(ctx context.Context, in ReadingInput) (*InstrumentReading, error)
}

// ReadingConsumer stores instrument readings arriving on the readings queue.
type ReadingConsumer struct {
	logger   *slog.Logger
	client   mq.ClientInterface
	store    ReadingRecorder
	metrics  *metrics.BackendMetrics
	queue    string
	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	done     chan struct{}
	interval time.Duration
}

// ReadingConsumerConfig holds the configuration for the ReadingConsumer.
type ReadingConsumerConfig struct {
	Logger *slog.Logger
	Client mq.ClientInterface
	Store  ReadingRecorder
	// Queue labels metrics and logs.
	Queue string
	// Metrics is optional.
	Metrics *metrics.BackendMetrics
	// RetryInterval is the wait between subscribe attempts (defaults to 500ms).
	RetryInterval time.Duration
}

// NewReadingConsumer creates a new ReadingConsumer instance.
func NewReadingConsumer(cfg *ReadingConsumerConfig) (*ReadingConsumer, error) {
	if cfg == nil {
		return nil, errors.New("consumer config cannot be nil")
	}

	if cfg.Logger == nil {
		return nil, errors.New("logger cannot be nil")
	}

	if cfg.Client == nil {
		return nil, errors.New("mq client cannot be nil")
	}

	if cfg.Store == nil {
		return nil, errors.New("reading store cannot be nil")
	}

	interval := cfg.RetryInterval
	if interval <= 0 {
		interval = subscribeRetryInterval
	}

	return &ReadingConsumer{
		logger:   cfg.Logger.With("component", "consumer", "queue", cfg.Queue),
		client:   cfg.Client,
		store:    cfg.Store,
		metrics:  cfg.Metrics,
		queue:    cfg.Queue,
		done:     make(chan struct{}),
		interval: interval,
	}, nil
}

// Start begins consuming in the background. The consumer subscribes once the
// client is connected and resubscribes after the delivery channel closes.
func (c *ReadingConsumer) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.started {
		return errors.New("consumer already started")
	}
	c.started = true

	ctx, c.cancel = context.WithCancel(ctx)
	go c.run(ctx)

	c.logger.Info("consumer started")
	return nil
}

func (c *ReadingConsumer) run(ctx context.Context) {
	defer close(c.done)

	for {
		deliveries, ok := c.subscribe(ctx)
		if !ok {
			return
		}
		c.logger.Info("subscribed, waiting for readings")

		if !c.drain(ctx, deliveries) {
			return
		}
		c.logger.Warn("deliveries channel closed, resubscribing")
	}
}

// subscribe polls until Consume succeeds or ctx ends.
func (c *ReadingConsumer) subscribe(ctx context.Context) (<-chan amqp.Delivery, bool) {
	for {
		if c.client.Ready() {
			deliveries, err := c.client.Consume()
			if err == nil {
				return deliveries, true
			}
			c.logger.Warn("failed to start consuming", "error", err)
			c.countError("subscribe")
		}

		select {
		case <-ctx.Done():
			return nil, false
		case <-time.After(c.interval):
		}
	}
}

// drain handles deliveries until the channel closes (true) or ctx ends (false).
func (c *ReadingConsumer) drain(ctx context.Context, deliveries <-chan amqp.Delivery) bool {
	for {
		select {
		case <-ctx.Done():
			return false
		case delivery, ok := <-deliveries:
			if !ok {
				return true
			}
			c.handleDelivery(ctx, delivery)
		}
	}
}

func (c *ReadingConsumer) handleDelivery(ctx context.Context, delivery amqp.Delivery) {
	in, err := UnmarshalReading(delivery.Body)
	if err != nil {
		c.logger.Error("dropping malformed reading", "error", err)
		c.count("malformed")
		c.ack(delivery)
		return
	}

	reading, err := c.store.RecordReading(ctx, *in)
	switch {
	case errors.Is(err, ErrValidation):
		// Readings for unknown sensors can never succeed.
		c.logger.Warn("dropping rejected reading", "sensor_id", in.SensorID, "error", err)
		c.count("rejected")
		c.ack(delivery)
	case err != nil:
		c.logger.Error("failed to store reading", "sensor_id", in.SensorID, "error", err)
		c.count("error")
		if nackErr := delivery.Nack(false, true); nackErr != nil {
			c.logger.Error("failed to nack message", "error", nackErr)
			c.countError("nack")
		}
	default:
		c.logger.Debug("reading stored", "reading_id", reading.ID, "sensor_id", reading.SensorID, "value", reading.Value)
		c.count("stored")
		c.ack(delivery)
	}
}

func (c *ReadingConsumer) ack(delivery amqp.Delivery) {
	if err := delivery.Ack(false); err != nil {
		c.logger.Error("failed to ack message", "error", err)
		c.countError("ack")
	}
}

func (c *ReadingConsumer) count(status string) {
	if c.metrics != nil {
		c.metrics.ConsumerMessagesTotal.WithLabelValues(c.queue, status).Inc()
	}
}

func (c *ReadingConsumer) countError(kind string) {
	if c.metrics != nil {
		c.metrics.ConsumerErrors.WithLabelValues(c.queue, kind).Inc()
	}
}

// Stop ends consumption, closes the queue client and waits for the consume
// loop to exit.
func (c *ReadingConsumer) Stop() error {
	c.mu.Lock()
	started := c.started
	cancel := c.cancel
	c.mu.Unlock()

	if cancel != nil {
		cancel()
	}

	err := c.client.Close()
	if started {
		<-c.done
	}

	if err != nil && !errors.Is(err, mq.ErrAlreadyClosed) {
		return err
	}
	c.logger.Info("consumer stopped")
	return nil
}
