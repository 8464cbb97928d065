package frontend

import (
	"bytes"
	"context"
	"net/http"
	"net/url"

	"github.com/a-h/templ"
	"github.com/prometheus/client_golang/prometheus"

	"procodus.dev/qc-app/pkg/metrics"
)

// Flash levels carried in the "level" query parameter.
const (
	levelInfo  = "info"
	levelAlert = "alert"
)

// flash is a one-shot message shown at the top of a page.
type flash struct {
	Level   string
	Message string
}

func flashFrom(r *http.Request) flash {
	q := r.URL.Query()
	level := q.Get("level")
	if level != levelAlert {
		level = levelInfo
	}
	return flash{Level: level, Message: q.Get("msg")}
}

// redirect sends the browser to target with a flash message.
func redirect(w http.ResponseWriter, r *http.Request, target, level, msg string) {
	if msg != "" {
		q := url.Values{}
		q.Set("msg", msg)
		q.Set("level", level)
		target += "?" + q.Encode()
	}
	http.Redirect(w, r, target, http.StatusSeeOther)
}

// render lays out body as a page named name and writes it with status. The
// page is buffered so a failed render still yields a clean error response.
func (s *Server) render(w http.ResponseWriter, r *http.Request, status int, name, title string, body templ.Component) {
	page := layout(title, flashFrom(r), body)

	var buf bytes.Buffer
	//nolint:contextcheck // Context is passed to Templ's Render method
	err := trackTemplateRender(r.Context(), s.metrics, name, func() error {
		return page.Render(r.Context(), &buf)
	})
	if err != nil {
		s.logger.Error("failed to render page", "page", name, "request_id", RequestID(r.Context()), "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	if _, err := buf.WriteTo(w); err != nil {
		s.logger.Debug("failed to write page", "page", name, "error", err)
	}
}

// trackTemplateRender wraps template rendering with metrics tracking.
func trackTemplateRender(_ context.Context, m *metrics.FrontendMetrics, templateName string, renderFunc func() error) error {
	if m == nil {
		return renderFunc()
	}

	timer := prometheus.NewTimer(m.TemplateRenderTime.WithLabelValues(templateName))
	defer timer.ObserveDuration()

	if err := renderFunc(); err != nil {
		m.TemplateRenderErrors.WithLabelValues(templateName, "render_error").Inc()
		return err
	}
	return nil
}
