package backend

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"gorm.io/gorm"
)

// Placeholder measurement range used when no instrument feed is configured.
const (
	DefaultRandomMin = 3000.0
	DefaultRandomMax = 5000.0
)

// ValueSource yields the processed value for a sensor. tx is the transaction
// of the processing run.
type ValueSource interface {
	Measure(ctx context.Context, tx *gorm.DB, sensor Sensor) (float64, error)
}

// ValueSourceFunc adapts a function to ValueSource.
type ValueSourceFunc func(ctx context.Context, tx *gorm.DB, sensor Sensor) (float64, error)

// Measure implements ValueSource.
func (f ValueSourceFunc) Measure(ctx context.Context, tx *gorm.DB, sensor Sensor) (float64, error) {
	return f(ctx, tx, sensor)
}

// RandomValueSource draws uniform values from [min, max).
type RandomValueSource struct {
	mu    sync.Mutex
	faker *gofakeit.Faker
	min   float64
	max   float64
}

// NewRandomValueSource creates a source over [min, max). A zero seed picks a
// random one.
func NewRandomValueSource(min, max float64, seed uint64) *RandomValueSource {
	if max < min {
		min, max = max, min
	}
	return &RandomValueSource{
		faker: gofakeit.New(seed),
		min:   min,
		max:   max,
	}
}

// Measure implements ValueSource.
func (r *RandomValueSource) Measure(_ context.Context, _ *gorm.DB, _ Sensor) (float64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.faker.Float64Range(r.min, r.max), nil
}

// InstrumentValueSource uses the latest instrument reading of each sensor.
type InstrumentValueSource struct {
	// MaxAge rejects readings older than this when positive.
	MaxAge time.Duration
	// Now overrides the clock in tests.
	Now func() time.Time
}

// Measure implements ValueSource.
func (s *InstrumentValueSource) Measure(ctx context.Context, tx *gorm.DB, sensor Sensor) (float64, error) {
	var reading InstrumentReading
	err := tx.WithContext(ctx).
		Where("sensor_id = ?", sensor.ID).
		Order("timestamp DESC").
		Order("instrument_reading_id DESC").
		First(&reading).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, fmt.Errorf("%w: sensor %q", ErrNoReading, sensor.SensorName)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to load reading for sensor %d: %w", sensor.ID, err)
	}

	if s.MaxAge > 0 {
		now := time.Now
		if s.Now != nil {
			now = s.Now
		}
		if now().Sub(reading.Timestamp) > s.MaxAge {
			return 0, fmt.Errorf("%w: sensor %q reading is older than %s", ErrNoReading, sensor.SensorName, s.MaxAge)
		}
	}

	return reading.Value, nil
}
