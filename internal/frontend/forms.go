package frontend

import (
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"time"

	"procodus.dev/qc-app/internal/backend"
)

// Accepted layouts for date inputs.
const (
	dateTimeLayout = "2006-01-02T15:04"
	dateLayout     = "2006-01-02"
)

// Visual check statuses offered on the capture form.
const (
	CheckPass = "pass"
	CheckFail = "fail"
)

// DefaultVisualParams are the parameters offered on the capture form when
// none are configured.
var DefaultVisualParams = []string{"surface", "welds", "coating", "geometry", "fasteners"}

// Prefixes of the per-parameter fields on the capture form.
const (
	statusPrefix  = "status_"
	commentPrefix = "comment_"
)

// ParseVisualChecks rebuilds the ordered check list from the submitted
// status_<param> and comment_<param> fields. Params listed in "params" come
// first in that order; any other params follow sorted by name.
func ParseVisualChecks(form url.Values) []backend.VisualCheck {
	found := map[string]struct{}{}
	for key := range form {
		for _, prefix := range []string{statusPrefix, commentPrefix} {
			if param, ok := strings.CutPrefix(key, prefix); ok && strings.TrimSpace(param) != "" {
				found[param] = struct{}{}
			}
		}
	}

	order := make([]string, 0, len(found))
	for _, param := range form["params"] {
		if _, ok := found[param]; ok && !slices.Contains(order, param) {
			order = append(order, param)
		}
	}

	var rest []string
	for param := range found {
		if !slices.Contains(order, param) {
			rest = append(rest, param)
		}
	}
	slices.Sort(rest)
	order = append(order, rest...)

	checks := make([]backend.VisualCheck, 0, len(order))
	for _, param := range order {
		checks = append(checks, backend.VisualCheck{
			Param:   param,
			Status:  strings.TrimSpace(form.Get(statusPrefix + param)),
			Comment: strings.TrimSpace(form.Get(commentPrefix + param)),
		})
	}
	return checks
}

// pathID reads the {id} path segment.
func pathID(r *http.Request) (uint, bool) {
	id, err := strconv.ParseUint(r.PathValue("id"), 10, 0)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func optionalUint(field, raw string) (*uint, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseUint(raw, 10, 0)
	if err != nil || v == 0 {
		return nil, &backend.ValidationError{Field: field, Message: "select a valid option"}
	}
	id := uint(v)
	return &id, nil
}

func optionalFloat(field, raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(strings.ReplaceAll(raw, ",", "."), 64)
	if err != nil {
		return nil, &backend.ValidationError{Field: field, Message: "must be a number"}
	}
	return &v, nil
}

func optionalTime(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	for _, layout := range []string{dateTimeLayout, dateLayout, time.RFC3339} {
		if t, err := time.ParseInLocation(layout, raw, time.UTC); err == nil {
			return &t, nil
		}
	}
	return nil, &backend.ValidationError{Field: field, Message: "must be a date"}
}

func formVersion(raw string) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}
	return v
}

// batchForm is the state of the batch create/edit form.
type batchForm struct {
	Statuses  []backend.BatchStatus
	Error     *backend.ValidationError
	StartDate string
	EndDate   string
	StatusID  string
	Recom     string
	Message   string
	ID        uint
	Version   int
}

func batchFormFrom(b *backend.ProductionBatch) batchForm {
	f := batchForm{ID: b.ID, Version: b.Version, Recom: b.Recom}
	if b.StartDate != nil {
		f.StartDate = b.StartDate.UTC().Format(dateTimeLayout)
	}
	if b.EndDate != nil {
		f.EndDate = b.EndDate.UTC().Format(dateTimeLayout)
	}
	if b.BatchStatusID != nil {
		f.StatusID = strconv.FormatUint(uint64(*b.BatchStatusID), 10)
	}
	return f
}

func parseBatchForm(r *http.Request) (batchForm, backend.BatchInput, error) {
	f := batchForm{
		StartDate: r.PostFormValue("start_date"),
		EndDate:   r.PostFormValue("end_date"),
		StatusID:  r.PostFormValue("batch_status_id"),
		Recom:     r.PostFormValue("recom"),
		Version:   formVersion(r.PostFormValue("version")),
	}
	in := backend.BatchInput{Recom: f.Recom, Version: f.Version}

	var err error
	if in.StartDate, err = optionalTime("start_date", f.StartDate); err != nil {
		return f, in, err
	}
	if in.EndDate, err = optionalTime("end_date", f.EndDate); err != nil {
		return f, in, err
	}
	if in.BatchStatusID, err = optionalUint("batch_status_id", f.StatusID); err != nil {
		return f, in, err
	}
	return f, in, nil
}

// frameForm is the state of the frame create/edit form.
type frameForm struct {
	Batches      []backend.ProductionBatch
	Models       []backend.FrameModel
	Marks        []backend.FinalMarkType
	Error        *backend.ValidationError
	SerialNumber string
	BatchID      string
	ModelID      string
	SystemMarkID string
	ExpertMarkID string
	FinalMarkID  string
	VisualJSON   string
	Message      string
	ID           uint
	Version      int
}

func idString(id *uint) string {
	if id == nil {
		return ""
	}
	return strconv.FormatUint(uint64(*id), 10)
}

func frameFormFrom(f *backend.Frame) frameForm {
	visual := ""
	if f.HasVisualAnalysis() {
		visual = f.VisualJSON()
	}
	return frameForm{
		ID:           f.ID,
		Version:      f.Version,
		SerialNumber: f.SerialNumber,
		BatchID:      idString(f.ProdBatchID),
		ModelID:      idString(f.FrameModelID),
		SystemMarkID: idString(f.SystemMarkID),
		ExpertMarkID: idString(f.ExpertMarkID),
		FinalMarkID:  idString(f.FinalMarkID),
		VisualJSON:   visual,
	}
}

func parseFrameForm(r *http.Request) (frameForm, backend.FrameInput, error) {
	f := frameForm{
		SerialNumber: r.PostFormValue("serial_number"),
		BatchID:      r.PostFormValue("prod_batch_id"),
		ModelID:      r.PostFormValue("frame_model_id"),
		SystemMarkID: r.PostFormValue("system_mark_id"),
		ExpertMarkID: r.PostFormValue("expert_mark_id"),
		FinalMarkID:  r.PostFormValue("final_mark_id"),
		VisualJSON:   r.PostFormValue("visual_json"),
		Version:      formVersion(r.PostFormValue("version")),
	}
	in := backend.FrameInput{
		SerialNumber: f.SerialNumber,
		VisualJSON:   f.VisualJSON,
		Version:      f.Version,
	}

	refs := []struct {
		dst   **uint
		field string
		raw   string
	}{
		{&in.ProdBatchID, "prod_batch_id", f.BatchID},
		{&in.FrameModelID, "frame_model_id", f.ModelID},
		{&in.SystemMarkID, "system_mark_id", f.SystemMarkID},
		{&in.ExpertMarkID, "expert_mark_id", f.ExpertMarkID},
		{&in.FinalMarkID, "final_mark_id", f.FinalMarkID},
	}
	for _, ref := range refs {
		id, err := optionalUint(ref.field, ref.raw)
		if err != nil {
			return f, in, err
		}
		*ref.dst = id
	}
	return f, in, nil
}

// visualForm is the state of the visual-analysis capture form.
type visualForm struct {
	Frame      *backend.Frame
	Error      *backend.ValidationError
	Checks     []backend.VisualCheck
	ExpertName string
	Verdict    string
}

// visualFormFor prefills the capture form from a stored analysis, falling
// back to the configured params.
func visualFormFor(frame *backend.Frame, params []string) visualForm {
	f := visualForm{Frame: frame}
	if frame.HasVisualAnalysis() {
		if doc, err := backend.ParseVisualAnalysis(frame.VisualAnalysParams); err == nil && len(doc.VisualChecks) > 0 {
			f.ExpertName = doc.Expert.Name
			f.Verdict = doc.ExpertResult
			f.Checks = doc.VisualChecks
			return f
		}
	}
	for _, p := range params {
		f.Checks = append(f.Checks, backend.VisualCheck{Param: p, Status: CheckPass})
	}
	return f
}

// catalogForm carries a single-field catalog form state.
type catalogForm struct {
	Error *backend.ValidationError
	Name  string
}

// ruleForm is the state of the rule create form.
type ruleForm struct {
	Error    *backend.ValidationError
	SensorID string
	Normal   string
	Critical string
	TypeID   string
}

func parseRuleForm(r *http.Request) (ruleForm, backend.RuleInput, error) {
	f := ruleForm{
		SensorID: r.PostFormValue("sensor_id"),
		Normal:   r.PostFormValue("normal_value"),
		Critical: r.PostFormValue("critical_value"),
		TypeID:   r.PostFormValue("notification_type_id"),
	}
	var in backend.RuleInput

	sensorID, err := optionalUint("sensor_id", f.SensorID)
	if err != nil {
		return f, in, err
	}
	if sensorID == nil {
		return f, in, &backend.ValidationError{Field: "sensor_id", Message: "select a sensor"}
	}
	in.SensorID = *sensorID

	if in.NormalValue, err = optionalFloat("normal_value", f.Normal); err != nil {
		return f, in, err
	}
	if in.CriticalValue, err = optionalFloat("critical_value", f.Critical); err != nil {
		return f, in, err
	}
	if in.NotificationTypeID, err = optionalUint("notification_type_id", f.TypeID); err != nil {
		return f, in, err
	}
	return f, in, nil
}
