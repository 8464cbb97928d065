// Package instrument simulates the measuring instruments on the production
// line, publishing sensor readings to the readings queue.
package instrument

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"procodus.dev/qc-app/internal/backend"
	"procodus.dev/qc-app/pkg/generator"
	"procodus.dev/qc-app/pkg/metrics"
	"procodus.dev/qc-app/pkg/mq"
)

// Producer is one simulated instrument. Each tick it publishes a reading for
// every sensor it is wired to.
type Producer struct {
	client     mq.ClientInterface
	instrument *generator.Instrument
	sensorIDs  []uint
	signals    map[uint]*generator.SensorSignal
	metrics    *metrics.InstrumentMetrics // Optional metrics
	now        func() time.Time
}

// ProducerConfig holds the configuration for a Producer.
type ProducerConfig struct {
	Client mq.ClientInterface
	// SensorIDs lists the sensors this instrument measures.
	SensorIDs []uint
	// Signal shapes the generated values. A non-zero Seed is offset per
	// sensor so sensors do not move in lockstep.
	Signal generator.SignalConfig
	// Metrics is optional.
	Metrics *metrics.InstrumentMetrics
	// Now defaults to time.Now.
	Now func() time.Time
}

// NewProducer creates a producer with fake instrument metadata.
func NewProducer(cfg *ProducerConfig) (*Producer, error) {
	if cfg == nil {
		return nil, errors.New("producer config cannot be nil")
	}
	if cfg.Client == nil {
		return nil, errors.New("queue client cannot be nil")
	}
	if len(cfg.SensorIDs) == 0 {
		return nil, errors.New("at least one sensor ID is required")
	}

	instrument := generator.NewInstrument()
	if instrument == nil {
		return nil, errors.New("failed to generate instrument metadata")
	}

	signals := make(map[uint]*generator.SensorSignal, len(cfg.SensorIDs))
	for _, id := range cfg.SensorIDs {
		if id == 0 {
			return nil, errors.New("sensor IDs must be positive")
		}
		signalCfg := cfg.Signal
		if signalCfg.Seed != 0 {
			signalCfg.Seed += uint64(id)
		}
		signals[id] = generator.NewSensorSignal(signalCfg)
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	return &Producer{
		client:     cfg.Client,
		instrument: instrument,
		sensorIDs:  append([]uint(nil), cfg.SensorIDs...),
		signals:    signals,
		metrics:    cfg.Metrics,
		now:        now,
	}, nil
}

// Source is the instrument serial stamped on every reading.
func (p *Producer) Source() string {
	return p.instrument.Serial
}

// PublishReadings generates and publishes one reading per sensor. It keeps
// going after a failed publish and returns the joined errors.
func (p *Producer) PublishReadings(ctx context.Context) error {
	at := p.now().UTC()

	var errs []error
	for _, id := range p.sensorIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.publish(ctx, id, at); err != nil {
			errs = append(errs, fmt.Errorf("sensor %d: %w", id, err))
		}
	}
	return errors.Join(errs...)
}

func (p *Producer) publish(ctx context.Context, sensorID uint, at time.Time) error {
	sample := p.signals[sensorID].Next(at)
	if sample.Anomaly && p.metrics != nil {
		p.metrics.AnomaliesInjected.Inc()
	}

	message, err := backend.MarshalReading(backend.ReadingInput{
		SensorID:  sensorID,
		Value:     sample.Value,
		Timestamp: at,
		Source:    p.instrument.Serial,
	})
	if err != nil {
		p.countFailure("marshal_error")
		return err
	}

	if err := p.client.Push(ctx, message); err != nil {
		p.countFailure("push_error")
		return err
	}

	if p.metrics != nil {
		p.metrics.ReadingsPublished.WithLabelValues(strconv.FormatUint(uint64(sensorID), 10)).Inc()
	}
	return nil
}

func (p *Producer) countFailure(reason string) {
	if p.metrics != nil {
		p.metrics.PublishFailures.WithLabelValues(reason).Inc()
	}
}

// trackActive counts the producer as active until the returned func runs.
func (p *Producer) trackActive() func() {
	if p.metrics == nil {
		return func() {}
	}
	p.metrics.ActiveProducers.Inc()
	return p.metrics.ActiveProducers.Dec
}
