// Package generator produces synthetic instrument metadata and sensor signals
// for the instrument simulator and demo data seeding.
package generator

import (
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// Instrument describes a simulated measuring device on the production line.
type Instrument struct {
	Serial   string `fake:"INS-####"`
	Vendor   string `fake:"{company}"`
	Firmware string `fake:"{appversion}"`
	// Installed is set to the creation time.
	Installed time.Time `fake:"skip"`
}

// NewInstrument returns an instrument with fake metadata, or nil if faking fails.
func NewInstrument() *Instrument {
	var ins Instrument
	if err := gofakeit.Struct(&ins); err != nil {
		return nil
	}
	ins.Installed = time.Now().UTC()
	return &ins
}

// SignalConfig shapes the values produced by a SensorSignal.
type SignalConfig struct {
	// Baseline is the value the signal oscillates around.
	Baseline float64
	// Noise is the peak-to-peak amplitude of uniform per-sample noise.
	Noise float64
	// CycleAmplitude is the amplitude of the shift cycle.
	CycleAmplitude float64
	// CyclePeriod is the length of one shift cycle (defaults to 8h).
	CyclePeriod time.Duration
	// AnomalyChance is the probability in [0,1] that a sample carries a spike.
	AnomalyChance float64
	// AnomalyMagnitude is the maximum upward size of a spike.
	AnomalyMagnitude float64
	// Seed makes the sequence reproducible when non-zero.
	Seed uint64
}

// DefaultSignalConfig returns a signal centered in the placeholder
// processing range with occasional threshold-breaking spikes.
func DefaultSignalConfig() SignalConfig {
	return SignalConfig{
		Baseline:         4000,
		Noise:            200,
		CycleAmplitude:   150,
		CyclePeriod:      8 * time.Hour,
		AnomalyChance:    0.05,
		AnomalyMagnitude: 900,
	}
}

// Sample is one generated value.
type Sample struct {
	Value   float64
	Anomaly bool
}

// SensorSignal generates a noisy periodic signal with occasional spikes. It is
// not safe for concurrent use; give each producer its own signal.
type SensorSignal struct {
	cfg   SignalConfig
	faker *gofakeit.Faker
}

// NewSensorSignal creates a signal from cfg.
func NewSensorSignal(cfg SignalConfig) *SensorSignal {
	if cfg.CyclePeriod <= 0 {
		cfg.CyclePeriod = 8 * time.Hour
	}
	// A zero seed makes gofakeit pick a random one.
	return &SensorSignal{
		cfg:   cfg,
		faker: gofakeit.New(cfg.Seed),
	}
}

// Next returns the sample for time t, rounded to two decimals and never negative.
func (s *SensorSignal) Next(t time.Time) Sample {
	phase := float64(t.UnixNano()%int64(s.cfg.CyclePeriod)) / float64(s.cfg.CyclePeriod)
	cycle := s.cfg.CycleAmplitude * math.Sin(2*math.Pi*phase)
	noise := (s.faker.Float64Range(0, 1) - 0.5) * s.cfg.Noise

	var sample Sample
	if s.cfg.AnomalyChance > 0 && s.faker.Float64Range(0, 1) < s.cfg.AnomalyChance {
		sample.Anomaly = true
		// Spikes land in the upper half of the magnitude so they stand out.
		noise += s.cfg.AnomalyMagnitude * (0.5 + s.faker.Float64Range(0, 1)/2)
	}

	sample.Value = math.Max(0, math.Round((s.cfg.Baseline+cycle+noise)*100)/100)
	return sample
}
