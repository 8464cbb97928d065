package frontend

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/a-h/templ"

	"procodus.dev/qc-app/internal/backend"
)

const displayTime = "2006-01-02 15:04"

// html writes markup, escaping every string argument.
type html struct {
	w   io.Writer
	err error
}

func (h *html) raw(s string) {
	if h.err == nil {
		_, h.err = io.WriteString(h.w, s)
	}
}

func (h *html) text(s string) {
	h.raw(templ.EscapeString(s))
}

// f formats markup; string arguments are escaped, others are not.
func (h *html) f(format string, args ...any) {
	for i, a := range args {
		if s, ok := a.(string); ok {
			args[i] = templ.EscapeString(s)
		}
	}
	h.raw(fmt.Sprintf(format, args...))
}

func (h *html) render(ctx context.Context, c templ.Component) {
	if h.err == nil {
		h.err = c.Render(ctx, h.w)
	}
}

// view adapts a markup function to a templ component.
func view(fn func(ctx context.Context, h *html)) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		h := &html{w: w}
		fn(ctx, h)
		return h.err
	})
}

const styles = `body{font-family:system-ui,sans-serif;margin:0;color:#1d232b}
nav{background:#1d3557;padding:.6rem 1.5rem}nav a{color:#fff;margin-right:1.2rem;text-decoration:none}
main{padding:1rem 1.5rem;max-width:72rem}table{border-collapse:collapse;width:100%;margin:1rem 0}
th,td{border-bottom:1px solid #d0d7de;padding:.35rem .5rem;text-align:left}
.flash{padding:.6rem 1rem;border-radius:4px;margin:1rem 0}.flash-info{background:#e7f1ff}.flash-alert{background:#ffe3e3}
.error{color:#b42318}form.inline{display:inline}label{display:block;margin-top:.6rem}
.actions a,.actions button{margin-right:.6rem}`

func layout(title string, msg flash, body templ.Component) templ.Component {
	return view(func(ctx context.Context, h *html) {
		h.f(`<!DOCTYPE html><html lang="en"><head><meta charset="utf-8"><title>%s | QC</title><style>`, title)
		h.raw(styles)
		h.raw(`</style></head><body><nav><a href="/">Dashboard</a><a href="/batches">Batches</a><a href="/frames">Frames</a>`)
		h.raw(`<a href="/sensors">Sensors</a><a href="/rules">Rules</a><a href="/models">Models</a></nav><main>`)
		if msg.Message != "" {
			h.f(`<div class="flash flash-%s" role="status">%s</div>`, msg.Level, msg.Message)
		}
		h.f(`<h1>%s</h1>`, title)
		h.render(ctx, body)
		h.raw(`</main></body></html>`)
	})
}

func fmtTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.UTC().Format(displayTime)
}

func fmtFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v, 'f', 2, 64)
}

func inputFloat(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func markName(m *backend.FinalMarkType) string {
	if m == nil {
		return "-"
	}
	return m.FinalMarkName
}

func statusName(s *backend.BatchStatus) string {
	if s == nil {
		return "-"
	}
	return s.StatusName
}

func formError(h *html, err *backend.ValidationError, message string) {
	if err != nil {
		h.f(`<p class="error" role="alert" data-field="%s">%s</p>`, err.Field, err.Error())
	}
	if message != "" {
		h.f(`<p class="error" role="alert">%s</p>`, message)
	}
}

type option struct {
	Value string
	Label string
}

func selectField(h *html, name, label, selected string, opts []option) {
	h.f(`<label>%s <select name="%s"><option value="">-</option>`, label, name)
	for _, o := range opts {
		sel := ""
		if o.Value == selected {
			sel = " selected"
		}
		h.f(`<option value="%s"%s>%s</option>`, o.Value, sel, o.Label)
	}
	h.raw(`</select></label>`)
}

func uintOption(id uint, label string) option {
	return option{Value: strconv.FormatUint(uint64(id), 10), Label: label}
}

func deleteButton(h *html, action, label string) {
	h.f(`<form class="inline" method="post" action="%s"><button type="submit">%s</button></form>`, action, label)
}

func dashboardView(sum *backend.Summary) templ.Component {
	return view(func(_ context.Context, h *html) {
		h.raw(`<table><tbody>`)
		for _, row := range []struct {
			label string
			value int64
		}{
			{"Batches", sum.Batches},
			{"Frames", sum.Frames},
			{"Frames with processed sensors", sum.ProcessedFrames},
			{"Frames with visual analysis", sum.AnalyzedFrames},
			{"Notifications", sum.Notifications},
			{"Sensors", sum.Sensors},
		} {
			h.f(`<tr><th>%s</th><td>%d</td></tr>`, row.label, row.value)
		}
		h.raw(`</tbody></table><h2>Recent notifications</h2>`)
		notificationTable(h, sum.RecentNotifications, true)
	})
}

func notificationTable(h *html, rows []backend.Notification, withFrame bool) {
	if len(rows) == 0 {
		h.raw(`<p>No notifications.</p>`)
		return
	}
	h.raw(`<table><thead><tr><th>Time</th>`)
	if withFrame {
		h.raw(`<th>Frame</th>`)
	}
	h.raw(`<th>Sensor</th><th>Value</th><th>Normal</th><th>Critical</th></tr></thead><tbody>`)
	for _, n := range rows {
		h.f(`<tr><td>%s</td>`, fmtTime(&n.NotificationTime))
		if withFrame {
			h.f(`<td><a href="/frames/%d">#%d</a></td>`, n.FrameID, n.FrameID)
		}
		sensor, value := "-", "-"
		if p := n.ProcessedSensor; p != nil {
			value = fmtFloat(&p.ValueAfterProc)
			if p.Sensor != nil {
				sensor = p.Sensor.SensorName
			}
		}
		normal, critical := "-", "-"
		if rule := n.NotificationRule; rule != nil {
			normal, critical = fmtFloat(rule.NormalValue), fmtFloat(rule.CriticalValue)
		}
		h.f(`<td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`, sensor, value, normal, critical)
	}
	h.raw(`</tbody></table>`)
}

func batchListView(batches []backend.ProductionBatch) templ.Component {
	return view(func(_ context.Context, h *html) {
		h.raw(`<p class="actions"><a href="/batches/new">New batch</a></p>`)
		if len(batches) == 0 {
			h.raw(`<p>No batches yet.</p>`)
			return
		}
		h.raw(`<table><thead><tr><th>ID</th><th>Status</th><th>Start</th><th>End</th><th>Recommendations</th></tr></thead><tbody>`)
		for _, b := range batches {
			h.f(`<tr><td><a href="/batches/%d">#%d</a></td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
				b.ID, b.ID, statusName(b.BatchStatus), fmtTime(b.StartDate), fmtTime(b.EndDate), b.Recom)
		}
		h.raw(`</tbody></table>`)
	})
}

func batchDetailView(batch *backend.ProductionBatch, frames []backend.Frame) templ.Component {
	return view(func(_ context.Context, h *html) {
		h.f(`<dl><dt>Status</dt><dd>%s</dd><dt>Start</dt><dd>%s</dd><dt>End</dt><dd>%s</dd><dt>Recommendations</dt><dd>%s</dd></dl>`,
			statusName(batch.BatchStatus), fmtTime(batch.StartDate), fmtTime(batch.EndDate), batch.Recom)
		h.f(`<p class="actions"><a href="/batches/%d/edit">Edit</a><a href="/frames/new?batch=%d">Add frame</a>`, batch.ID, batch.ID)
		deleteButton(h, fmt.Sprintf("/batches/%d/delete", batch.ID), "Delete batch")
		h.raw(`</p><h2>Frames</h2>`)
		frameTable(h, frames)
	})
}

func batchFormView(f batchForm) templ.Component {
	return view(func(_ context.Context, h *html) {
		action := "/batches"
		if f.ID != 0 {
			action = fmt.Sprintf("/batches/%d", f.ID)
		}
		formError(h, f.Error, f.Message)
		h.f(`<form method="post" action="%s"><input type="hidden" name="version" value="%d">`, action, f.Version)
		h.f(`<label>Start <input type="datetime-local" name="start_date" value="%s"></label>`, f.StartDate)
		h.f(`<label>End <input type="datetime-local" name="end_date" value="%s"></label>`, f.EndDate)
		opts := make([]option, 0, len(f.Statuses))
		for _, st := range f.Statuses {
			opts = append(opts, uintOption(st.ID, st.StatusName))
		}
		selectField(h, "batch_status_id", "Status", f.StatusID, opts)
		h.f(`<label>Recommendations <textarea name="recom" rows="4">%s</textarea></label>`, f.Recom)
		h.raw(`<p><button type="submit">Save</button></p></form>`)
	})
}

func frameTable(h *html, frames []backend.Frame) {
	if len(frames) == 0 {
		h.raw(`<p>No frames.</p>`)
		return
	}
	h.raw(`<table><thead><tr><th>ID</th><th>Serial</th><th>Batch</th><th>Model</th><th>System</th><th>Expert</th><th>Final</th></tr></thead><tbody>`)
	for _, fr := range frames {
		batch := "-"
		if fr.ProdBatchID != nil {
			batch = fmt.Sprintf("#%d", *fr.ProdBatchID)
		}
		model := "-"
		if fr.FrameModel != nil {
			model = fr.FrameModel.FrameName
		}
		h.f(`<tr><td><a href="/frames/%d">#%d</a></td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td></tr>`,
			fr.ID, fr.ID, fr.SerialNumber, batch, model,
			markName(fr.SystemMark), markName(fr.ExpertMark), markName(fr.FinalMark))
	}
	h.raw(`</tbody></table>`)
}

func frameListView(frames []backend.Frame, batches []backend.ProductionBatch, selected string) templ.Component {
	return view(func(_ context.Context, h *html) {
		h.raw(`<p class="actions"><a href="/frames/new">New frame</a></p><form method="get" action="/frames">`)
		opts := make([]option, 0, len(batches))
		for _, b := range batches {
			opts = append(opts, uintOption(b.ID, fmt.Sprintf("Batch #%d", b.ID)))
		}
		selectField(h, "batch", "Batch", selected, opts)
		h.raw(`<button type="submit">Filter</button></form>`)
		frameTable(h, frames)
	})
}

// frameDetail is everything shown on the frame page.
type frameDetail struct {
	Frame         *backend.Frame
	Visual        *backend.VisualAnalysis
	Processed     []backend.ProcessedSensor
	Notifications []backend.Notification
}

func frameDetailView(d frameDetail) templ.Component {
	return view(func(_ context.Context, h *html) {
		fr := d.Frame
		batch := "-"
		if fr.ProdBatchID != nil {
			batch = fmt.Sprintf(`#%d`, *fr.ProdBatchID)
		}
		model := "-"
		if fr.FrameModel != nil {
			model = fr.FrameModel.FrameName
		}
		h.f(`<dl><dt>Serial number</dt><dd>%s</dd><dt>Batch</dt><dd>%s</dd><dt>Model</dt><dd>%s</dd>`, fr.SerialNumber, batch, model)
		h.f(`<dt>System mark</dt><dd>%s</dd><dt>Expert mark</dt><dd>%s</dd><dt>Final mark</dt><dd>%s</dd></dl>`,
			markName(fr.SystemMark), markName(fr.ExpertMark), markName(fr.FinalMark))

		h.raw(`<p class="actions">`)
		h.f(`<form class="inline" method="post" action="/frames/%d/process"><button type="submit">Process sensors</button></form>`, fr.ID)
		h.f(`<a href="/frames/%d/visual">Visual analysis</a><a href="/frames/%d/edit">Edit</a>`, fr.ID, fr.ID)
		deleteButton(h, fmt.Sprintf("/frames/%d/delete", fr.ID), "Delete frame")
		h.raw(`</p>`)

		h.raw(`<h2>Processed sensors</h2>`)
		if len(d.Processed) == 0 {
			h.raw(`<p>Sensors have not been processed.</p>`)
		} else {
			h.raw(`<table><thead><tr><th>Sensor</th><th>Value</th><th>Processed at</th></tr></thead><tbody>`)
			for _, p := range d.Processed {
				name := fmt.Sprintf("#%d", p.SensorID)
				if p.Sensor != nil {
					name = p.Sensor.SensorName
				}
				h.f(`<tr><td>%s</td><td>%s</td><td>%s</td></tr>`, name, fmtFloat(&p.ValueAfterProc), fmtTime(&p.ProcessTime))
			}
			h.raw(`</tbody></table>`)
		}

		h.raw(`<h2>Notifications</h2>`)
		notificationTable(h, d.Notifications, false)

		h.raw(`<h2>Visual analysis</h2>`)
		if d.Visual == nil {
			h.raw(`<p>No visual analysis recorded.</p>`)
			return
		}
		h.f(`<p>By %s on %s, verdict <strong>%s</strong></p>`,
			d.Visual.Expert.Name, fmtTime(&d.Visual.Expert.Date), d.Visual.ExpertResult)
		h.raw(`<table><thead><tr><th>Parameter</th><th>Status</th><th>Comment</th></tr></thead><tbody>`)
		for _, c := range d.Visual.VisualChecks {
			h.f(`<tr><td>%s</td><td>%s</td><td>%s</td></tr>`, c.Param, c.Status, c.Comment)
		}
		h.raw(`</tbody></table>`)
	})
}

func frameFormView(f frameForm) templ.Component {
	return view(func(_ context.Context, h *html) {
		action := "/frames"
		if f.ID != 0 {
			action = fmt.Sprintf("/frames/%d", f.ID)
		}
		formError(h, f.Error, f.Message)
		h.f(`<form method="post" action="%s"><input type="hidden" name="version" value="%d">`, action, f.Version)
		h.f(`<label>Serial number <input name="serial_number" value="%s"></label>`, f.SerialNumber)

		batches := make([]option, 0, len(f.Batches))
		for _, b := range f.Batches {
			batches = append(batches, uintOption(b.ID, fmt.Sprintf("Batch #%d", b.ID)))
		}
		selectField(h, "prod_batch_id", "Batch", f.BatchID, batches)

		models := make([]option, 0, len(f.Models))
		for _, m := range f.Models {
			models = append(models, uintOption(m.ID, m.FrameName))
		}
		selectField(h, "frame_model_id", "Model", f.ModelID, models)

		marks := make([]option, 0, len(f.Marks))
		for _, m := range f.Marks {
			marks = append(marks, uintOption(m.ID, m.FinalMarkName))
		}
		selectField(h, "system_mark_id", "System mark", f.SystemMarkID, marks)
		selectField(h, "expert_mark_id", "Expert mark", f.ExpertMarkID, marks)
		selectField(h, "final_mark_id", "Final mark", f.FinalMarkID, marks)

		h.f(`<label>Visual analysis JSON <textarea name="visual_json" rows="8">%s</textarea></label>`, f.VisualJSON)
		h.raw(`<p><button type="submit">Save</button></p></form>`)
	})
}

func visualFormView(f visualForm) templ.Component {
	return view(func(_ context.Context, h *html) {
		formError(h, f.Error, "")
		h.f(`<p>Frame <a href="/frames/%d">%s</a></p>`, f.Frame.ID, f.Frame.SerialNumber)
		h.f(`<form method="post" action="/frames/%d/visual">`, f.Frame.ID)
		h.f(`<label>Expert <input name="expert_name" value="%s"></label>`, f.ExpertName)
		h.f(`<label>Verdict <input name="verdict" list="verdicts" value="%s"></label>`, f.Verdict)
		h.f(`<datalist id="verdicts"><option value="%s"><option value="%s"><option value="%s"></datalist>`,
			backend.MarkCodePass, backend.MarkCodeRework, backend.MarkCodeReject)
		h.raw(`<table><thead><tr><th>Parameter</th><th>Status</th><th>Comment</th></tr></thead><tbody>`)
		for _, c := range f.Checks {
			h.f(`<tr><td>%s<input type="hidden" name="params" value="%s"></td><td><select name="%s">`, c.Param, c.Param, statusPrefix+c.Param)
			for _, st := range []string{CheckPass, CheckFail} {
				sel := ""
				if st == c.Status {
					sel = " selected"
				}
				h.f(`<option value="%s"%s>%s</option>`, st, sel, st)
			}
			h.f(`</select></td><td><input name="%s" value="%s"></td></tr>`, commentPrefix+c.Param, c.Comment)
		}
		h.raw(`</tbody></table><p><button type="submit">Save analysis</button></p></form>`)
	})
}

func sensorsView(sensors []backend.Sensor, f catalogForm) templ.Component {
	return view(func(_ context.Context, h *html) {
		formError(h, f.Error, "")
		h.f(`<form method="post" action="/sensors"><label>Name <input name="sensor_name" value="%s"></label><button type="submit">Add sensor</button></form>`, f.Name)
		if len(sensors) == 0 {
			h.raw(`<p>No sensors configured.</p>`)
			return
		}
		h.raw(`<table><thead><tr><th>ID</th><th>Name</th><th></th></tr></thead><tbody>`)
		for _, s := range sensors {
			h.f(`<tr><td>%d</td><td>%s</td><td>`, s.ID, s.SensorName)
			deleteButton(h, fmt.Sprintf("/sensors/%d/delete", s.ID), "Delete")
			h.raw(`</td></tr>`)
		}
		h.raw(`</tbody></table>`)
	})
}

func rulesView(rules []backend.NotificationRule, sensors []backend.Sensor, types []backend.NotificationType, f ruleForm) templ.Component {
	return view(func(_ context.Context, h *html) {
		formError(h, f.Error, "")
		h.raw(`<form method="post" action="/rules">`)
		sensorOpts := make([]option, 0, len(sensors))
		for _, s := range sensors {
			sensorOpts = append(sensorOpts, uintOption(s.ID, s.SensorName))
		}
		selectField(h, "sensor_id", "Sensor", f.SensorID, sensorOpts)
		h.f(`<label>Normal value <input name="normal_value" inputmode="decimal" value="%s"></label>`, f.Normal)
		h.f(`<label>Critical value <input name="critical_value" inputmode="decimal" value="%s"></label>`, f.Critical)
		typeOpts := make([]option, 0, len(types))
		for _, t := range types {
			typeOpts = append(typeOpts, uintOption(t.ID, t.TypeName))
		}
		selectField(h, "notification_type_id", "Type", f.TypeID, typeOpts)
		h.raw(`<p><button type="submit">Add rule</button></p></form>`)

		if len(rules) == 0 {
			h.raw(`<p>No rules configured.</p>`)
			return
		}
		h.raw(`<table><thead><tr><th>ID</th><th>Sensor</th><th>Normal</th><th>Critical</th><th>Type</th><th></th></tr></thead><tbody>`)
		for _, rule := range rules {
			sensor := fmt.Sprintf("#%d", rule.SensorID)
			if rule.Sensor != nil {
				sensor = rule.Sensor.SensorName
			}
			kind := "-"
			if rule.NotificationType != nil {
				kind = rule.NotificationType.TypeName
			}
			h.f(`<tr><td>%d</td><td>%s</td><td>%s</td><td>%s</td><td>%s</td><td>`,
				rule.ID, sensor, fmtFloat(rule.NormalValue), fmtFloat(rule.CriticalValue), kind)
			deleteButton(h, fmt.Sprintf("/rules/%d/delete", rule.ID), "Delete")
			h.raw(`</td></tr>`)
		}
		h.raw(`</tbody></table>`)
	})
}

func modelsView(models []backend.FrameModel, f catalogForm) templ.Component {
	return view(func(_ context.Context, h *html) {
		formError(h, f.Error, "")
		h.f(`<form method="post" action="/models"><label>Name <input name="frame_name" value="%s"></label><button type="submit">Add model</button></form>`, f.Name)
		if len(models) == 0 {
			h.raw(`<p>No frame models.</p>`)
			return
		}
		h.raw(`<table><thead><tr><th>ID</th><th>Name</th></tr></thead><tbody>`)
		for _, m := range models {
			h.f(`<tr><td>%d</td><td>%s</td></tr>`, m.ID, m.FrameName)
		}
		h.raw(`</tbody></table>`)
	})
}

func notFoundView(what string) templ.Component {
	return view(func(_ context.Context, h *html) {
		h.f(`<p>%s could not be found.</p><p><a href="/">Back to the dashboard</a></p>`, what)
	})
}
