package backend

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brianvoe/gofakeit/v7"
)

// DemoSensors and DemoFrameModels are created by SeedDemoData when missing.
var (
	DemoSensors     = []string{"pressure", "torque", "temperature", "vibration"}
	DemoFrameModels = []string{"FM-100", "FM-200", "FM-300"}
)

var demoRecommendations = []string{
	"Tighten weld inspection on the second shift.",
	"Recalibrate the torque station before the next run.",
	"Increase coating thickness sampling.",
	"No action required.",
	"Check fixture alignment on station 4.",
}

// SeedOptions controls SeedDemoData.
type SeedOptions struct {
	Batches        int
	FramesPerBatch int
	// AnalyzedShare is the fraction of frames given an expert analysis.
	AnalyzedShare float64
	// Seed makes the data reproducible when non-zero.
	Seed uint64
	Now  time.Time
}

// SeedReport counts what SeedDemoData created.
type SeedReport struct {
	Sensors  int `json:"sensors"`
	Rules    int `json:"rules"`
	Models   int `json:"models"`
	Batches  int `json:"batches"`
	Frames   int `json:"frames"`
	Analyses int `json:"analyses"`
}

// SeedDemoData fills api with fake batches and frames. Catalog entries that
// already exist are reused, so it can run against a live database.
func SeedDemoData(ctx context.Context, api API, opts SeedOptions) (*SeedReport, error) {
	if api == nil {
		return nil, errors.New("api cannot be nil")
	}
	if opts.Batches < 0 || opts.FramesPerBatch < 0 {
		return nil, errors.New("batch and frame counts cannot be negative")
	}
	if opts.Now.IsZero() {
		opts.Now = time.Now().UTC()
	}

	faker := gofakeit.New(opts.Seed)
	report := &SeedReport{}

	sensors, err := seedSensors(ctx, api, report)
	if err != nil {
		return report, err
	}
	if err := seedRules(ctx, api, faker, sensors, report); err != nil {
		return report, err
	}
	models, err := seedFrameModels(ctx, api, report)
	if err != nil {
		return report, err
	}

	statuses, err := api.ListBatchStatuses(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list batch statuses: %w", err)
	}

	verdicts := []string{MarkCodePass, MarkCodePass, MarkCodeRework, MarkCodeReject}
	for b := range opts.Batches {
		start := opts.Now.Add(-time.Duration(opts.Batches-b) * 24 * time.Hour)
		end := start.Add(time.Duration(faker.IntRange(4, 12)) * time.Hour)
		in := BatchInput{
			StartDate: &start,
			EndDate:   &end,
			Recom:     faker.RandomString(demoRecommendations),
		}
		if len(statuses) > 0 {
			in.BatchStatusID = &statuses[faker.IntRange(0, len(statuses)-1)].ID
		}
		batch, err := api.CreateBatch(ctx, in)
		if err != nil {
			return report, fmt.Errorf("failed to create batch: %w", err)
		}
		report.Batches++

		for range opts.FramesPerBatch {
			frame, err := api.CreateFrame(ctx, FrameInput{
				ProdBatchID:  &batch.ID,
				FrameModelID: &models[faker.IntRange(0, len(models)-1)].ID,
				SerialNumber: faker.Numerify("SN-######"),
			})
			if err != nil {
				return report, fmt.Errorf("failed to create frame: %w", err)
			}
			report.Frames++

			if faker.Float64Range(0, 1) >= opts.AnalyzedShare {
				continue
			}
			if _, err := api.CaptureVisualAnalysis(ctx, VisualAnalysisInput{
				FrameID:    frame.ID,
				ExpertName: faker.Name(),
				Verdict:    faker.RandomString(verdicts),
				Checks:     demoChecks(faker),
			}); err != nil {
				return report, fmt.Errorf("failed to capture analysis for frame %d: %w", frame.ID, err)
			}
			report.Analyses++
		}
	}

	return report, nil
}

func seedSensors(ctx context.Context, api API, report *SeedReport) ([]Sensor, error) {
	existing, err := api.ListSensors(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list sensors: %w", err)
	}
	have := make(map[string]bool, len(existing))
	for _, s := range existing {
		have[s.SensorName] = true
	}

	var created []Sensor
	for _, name := range DemoSensors {
		if have[name] {
			continue
		}
		sensor, err := api.CreateSensor(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to create sensor %q: %w", name, err)
		}
		created = append(created, *sensor)
		report.Sensors++
	}
	return created, nil
}

// seedRules gives every new sensor a warning and a critical rule.
func seedRules(ctx context.Context, api API, faker *gofakeit.Faker, sensors []Sensor, report *SeedReport) error {
	if len(sensors) == 0 {
		return nil
	}
	types, err := api.ListNotificationTypes(ctx)
	if err != nil {
		return fmt.Errorf("failed to list notification types: %w", err)
	}
	typeID := func(name string) *uint {
		for i := range types {
			if types[i].TypeName == name {
				return &types[i].ID
			}
		}
		return nil
	}

	for _, sensor := range sensors {
		normal := float64(faker.IntRange(38, 46) * 100)
		critical := normal + 500
		rules := []RuleInput{
			{SensorID: sensor.ID, NormalValue: &normal, NotificationTypeID: typeID("Warning")},
			{SensorID: sensor.ID, CriticalValue: &critical, NotificationTypeID: typeID("Critical")},
		}
		for _, in := range rules {
			if _, err := api.CreateRule(ctx, in); err != nil {
				return fmt.Errorf("failed to create rule for %q: %w", sensor.SensorName, err)
			}
			report.Rules++
		}
	}
	return nil
}

func seedFrameModels(ctx context.Context, api API, report *SeedReport) ([]FrameModel, error) {
	models, err := api.ListFrameModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list frame models: %w", err)
	}
	have := make(map[string]bool, len(models))
	for _, m := range models {
		have[m.FrameName] = true
	}

	for _, name := range DemoFrameModels {
		if have[name] {
			continue
		}
		model, err := api.CreateFrameModel(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("failed to create frame model %q: %w", name, err)
		}
		models = append(models, *model)
		report.Models++
	}
	return models, nil
}

func demoChecks(faker *gofakeit.Faker) []VisualCheck {
	params := []string{"surface", "welds", "coating", "geometry"}
	checks := make([]VisualCheck, 0, len(params))
	for _, p := range params {
		c := VisualCheck{Param: p, Status: "pass"}
		if faker.Float64Range(0, 1) < 0.2 {
			c.Status = "fail"
			c.Comment = faker.RandomString([]string{"scratch", "porosity", "uneven layer", "misaligned"})
		}
		checks = append(checks, c)
	}
	return checks
}
