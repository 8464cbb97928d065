package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// VisualCheck is the expert's assessment of one visual parameter.
type VisualCheck struct {
	Param   string `json:"param"`
	Status  string `json:"status"`
	Comment string `json:"comment"`
}

// Expert identifies who performed an analysis and when.
type Expert struct {
	Date time.Time `json:"date"`
	Name string    `json:"name"`
}

// VisualAnalysis is the document stored in frame.visual_analys_params.
type VisualAnalysis struct {
	Expert       Expert        `json:"expert"`
	ExpertResult string        `json:"expert_result"`
	VisualChecks []VisualCheck `json:"visual_checks"`
}

// VisualAnalysisInput is a submitted expert analysis. Checks keep the order
// in which they were presented.
type VisualAnalysisInput struct {
	ExpertName string        `json:"expert_name"`
	Verdict    string        `json:"verdict"`
	Checks     []VisualCheck `json:"checks"`
	FrameID    uint          `json:"frame_id"`
}

// MapVerdict maps an expert verdict onto a mark code. Only the exact strings
// "PASS", "REWORK" and "REJECT" map; anything else yields no mark.
func MapVerdict(verdict string) (string, bool) {
	switch verdict {
	case MarkCodePass, MarkCodeRework, MarkCodeReject:
		return verdict, true
	default:
		return "", false
	}
}

// ParseVisualAnalysis decodes a stored analysis document.
func ParseVisualAnalysis(raw []byte) (*VisualAnalysis, error) {
	var doc VisualAnalysis
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode visual analysis: %w", err)
	}
	return &doc, nil
}

// normalizeVisualJSON validates a raw document entered on the frame form.
// Blank input stores NULL.
func normalizeVisualJSON(raw string) (datatypes.JSON, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	if !json.Valid([]byte(raw)) {
		return nil, invalid("visual_analys_params", "not valid JSON")
	}
	return datatypes.JSON(raw), nil
}

func validateChecks(checks []VisualCheck) error {
	seen := make(map[string]struct{}, len(checks))
	for _, c := range checks {
		if strings.TrimSpace(c.Param) == "" {
			return invalid("visual_checks", "parameter name is required")
		}
		if _, dup := seen[c.Param]; dup {
			return invalid("visual_checks", fmt.Sprintf("parameter %q appears twice", c.Param))
		}
		seen[c.Param] = struct{}{}
	}
	return nil
}

// CaptureVisualAnalysis stores an expert analysis on a frame, replacing any
// previous one, and sets the frame's expert mark from the verdict.
func (s *Service) CaptureVisualAnalysis(ctx context.Context, in VisualAnalysisInput) (*Frame, error) {
	name := strings.TrimSpace(in.ExpertName)
	if name == "" {
		return nil, invalid("expert_name", "expert name is required")
	}
	if err := validateChecks(in.Checks); err != nil {
		return nil, err
	}

	checks := in.Checks
	if checks == nil {
		checks = []VisualCheck{}
	}
	doc := VisualAnalysis{
		Expert:       Expert{Name: name, Date: s.clock()},
		VisualChecks: checks,
		ExpertResult: in.Verdict,
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode visual analysis: %w", err)
	}

	code, hasMark := MapVerdict(in.Verdict)

	var frame Frame
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&frame, in.FrameID).Error; err != nil {
			return notFound(err)
		}

		var markID *uint
		if hasMark {
			var mark FinalMarkType
			if err := tx.Where("code = ?", code).First(&mark).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("mark %q is not seeded", code)
				}
				return fmt.Errorf("failed to resolve mark %q: %w", code, err)
			}
			markID = &mark.ID
		}

		return updateVersioned(tx, &Frame{}, "frame_id", frame.ID, frame.Version, map[string]any{
			"visual_analys_params": datatypes.JSON(raw),
			"expert_mark_id":       markID,
		})
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to capture visual analysis: %w", err)
	}

	if s.metrics != nil {
		label := code
		if !hasMark {
			label = "none"
		}
		s.metrics.VisualCapturesTotal.WithLabelValues(label).Inc()
	}
	s.logger.Info("visual analysis captured",
		"frame_id", in.FrameID,
		"expert", name,
		"checks", len(checks),
		"mark", code,
	)

	return s.GetFrame(ctx, in.FrameID)
}
