package frontend

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"procodus.dev/qc-app/internal/backend"
)

// handleHealth serves health check endpoint.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write([]byte(`{"status":"ok"}`)); err != nil {
		s.logger.Error("failed to write health response", "error", err)
	}
}

func (s *Server) handleNotFound(w http.ResponseWriter, r *http.Request) {
	s.render(w, r, http.StatusNotFound, "not_found", "Not found", notFoundView("The page"))
}

// fail answers a backend error: missing records get the not-found page,
// everything else is logged and reported as a server error.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, what string, err error) {
	if errors.Is(err, backend.ErrNotFound) {
		s.render(w, r, http.StatusNotFound, "not_found", "Not found", notFoundView(what))
		return
	}
	s.logger.Error("backend request failed",
		"request_id", RequestID(r.Context()),
		"path", r.URL.Path,
		"error", err,
	)
	http.Error(w, "Internal Server Error", http.StatusInternalServerError)
}

// rejected reports whether err is a form rejection, counting it when so.
func (s *Server) rejected(form string, err error) (*backend.ValidationError, bool) {
	var verr *backend.ValidationError
	if !errors.As(err, &verr) {
		return nil, false
	}
	if s.metrics != nil {
		s.metrics.FormRejections.WithLabelValues(form, verr.Field).Inc()
	}
	return verr, true
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	sum, err := s.api.Summary(ctx)
	if err != nil {
		s.fail(w, r, "The dashboard", err)
		return
	}
	s.render(w, r, http.StatusOK, "dashboard", "Quality control", dashboardView(sum))
}

func (s *Server) handleBatches(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	batches, err := s.api.ListBatches(ctx)
	if err != nil {
		s.fail(w, r, "Batches", err)
		return
	}
	s.render(w, r, http.StatusOK, "batches", "Production batches", batchListView(batches))
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	batch, err := s.api.GetBatch(ctx, id)
	if err != nil {
		s.fail(w, r, fmt.Sprintf("Batch #%d", id), err)
		return
	}
	frames, err := s.api.ListFrames(ctx, backend.FrameFilter{BatchID: &batch.ID})
	if err != nil {
		s.fail(w, r, "Frames", err)
		return
	}
	s.render(w, r, http.StatusOK, "batch", fmt.Sprintf("Batch #%d", batch.ID), batchDetailView(batch, frames))
}

func (s *Server) renderBatchForm(w http.ResponseWriter, r *http.Request, status int, f batchForm) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	statuses, err := s.api.ListBatchStatuses(ctx)
	if err != nil {
		s.fail(w, r, "Batch statuses", err)
		return
	}
	f.Statuses = statuses

	title := "New batch"
	if f.ID != 0 {
		title = fmt.Sprintf("Edit batch #%d", f.ID)
	}
	s.render(w, r, status, "batch_form", title, batchFormView(f))
}

func (s *Server) handleBatchNew(w http.ResponseWriter, r *http.Request) {
	s.renderBatchForm(w, r, http.StatusOK, batchForm{})
}

func (s *Server) handleBatchEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	batch, err := s.api.GetBatch(ctx, id)
	if err != nil {
		s.fail(w, r, fmt.Sprintf("Batch #%d", id), err)
		return
	}
	s.renderBatchForm(w, r, http.StatusOK, batchFormFrom(batch))
}

func (s *Server) handleBatchCreate(w http.ResponseWriter, r *http.Request) {
	f, in, err := parseBatchForm(r)
	if err == nil {
		ctx, cancel := s.requestContext(r)
		defer cancel()

		var batch *backend.ProductionBatch
		if batch, err = s.api.CreateBatch(ctx, in); err == nil {
			redirect(w, r, fmt.Sprintf("/batches/%d", batch.ID), levelInfo, "Batch created.")
			return
		}
	}
	s.batchFormFailed(w, r, f, err)
}

func (s *Server) handleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}

	f, in, err := parseBatchForm(r)
	f.ID, in.ID = id, id
	if err == nil {
		ctx, cancel := s.requestContext(r)
		defer cancel()

		if _, err = s.api.UpdateBatch(ctx, in); err == nil {
			redirect(w, r, fmt.Sprintf("/batches/%d", id), levelInfo, "Batch saved.")
			return
		}
	}
	s.batchFormFailed(w, r, f, err)
}

func (s *Server) batchFormFailed(w http.ResponseWriter, r *http.Request, f batchForm, err error) {
	if verr, ok := s.rejected("batch", err); ok {
		f.Error = verr
		s.renderBatchForm(w, r, http.StatusUnprocessableEntity, f)
		return
	}
	if errors.Is(err, backend.ErrConflict) {
		f.Message = "The batch was changed by someone else. Reload it and apply your changes again."
		s.renderBatchForm(w, r, http.StatusConflict, f)
		return
	}
	s.fail(w, r, fmt.Sprintf("Batch #%d", f.ID), err)
}

func (s *Server) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.api.DeleteBatch(ctx, id); err != nil {
		s.fail(w, r, fmt.Sprintf("Batch #%d", id), err)
		return
	}
	redirect(w, r, "/batches", levelInfo, fmt.Sprintf("Batch #%d deleted.", id))
}

func (s *Server) handleFrames(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	selected := strings.TrimSpace(r.URL.Query().Get("batch"))
	batchID, err := optionalUint("batch", selected)
	if err != nil {
		selected, batchID = "", nil
	}

	frames, err := s.api.ListFrames(ctx, backend.FrameFilter{BatchID: batchID})
	if err != nil {
		s.fail(w, r, "Frames", err)
		return
	}
	batches, err := s.api.ListBatches(ctx)
	if err != nil {
		s.fail(w, r, "Batches", err)
		return
	}
	s.render(w, r, http.StatusOK, "frames", "Frames", frameListView(frames, batches, selected))
}

func (s *Server) handleFrame(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	frame, err := s.api.GetFrame(ctx, id)
	if err != nil {
		s.fail(w, r, fmt.Sprintf("Frame #%d", id), err)
		return
	}

	d := frameDetail{Frame: frame}
	if d.Processed, err = s.api.ListProcessedSensors(ctx, id); err != nil {
		s.fail(w, r, "Processed sensors", err)
		return
	}
	if d.Notifications, err = s.api.ListNotifications(ctx, id); err != nil {
		s.fail(w, r, "Notifications", err)
		return
	}
	if frame.HasVisualAnalysis() {
		if d.Visual, err = backend.ParseVisualAnalysis(frame.VisualAnalysParams); err != nil {
			s.logger.Warn("stored visual analysis is unreadable", "frame_id", id, "error", err)
		}
	}

	title := fmt.Sprintf("Frame #%d", frame.ID)
	if frame.SerialNumber != "" {
		title = fmt.Sprintf("Frame %s", frame.SerialNumber)
	}
	s.render(w, r, http.StatusOK, "frame", title, frameDetailView(d))
}

func (s *Server) renderFrameForm(w http.ResponseWriter, r *http.Request, status int, f frameForm) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	var err error
	if f.Batches, err = s.api.ListBatches(ctx); err != nil {
		s.fail(w, r, "Batches", err)
		return
	}
	if f.Models, err = s.api.ListFrameModels(ctx); err != nil {
		s.fail(w, r, "Frame models", err)
		return
	}
	if f.Marks, err = s.api.ListMarkTypes(ctx); err != nil {
		s.fail(w, r, "Marks", err)
		return
	}

	title := "New frame"
	if f.ID != 0 {
		title = fmt.Sprintf("Edit frame #%d", f.ID)
	}
	s.render(w, r, status, "frame_form", title, frameFormView(f))
}

func (s *Server) handleFrameNew(w http.ResponseWriter, r *http.Request) {
	s.renderFrameForm(w, r, http.StatusOK, frameForm{BatchID: r.URL.Query().Get("batch")})
}

func (s *Server) handleFrameEdit(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	frame, err := s.api.GetFrame(ctx, id)
	if err != nil {
		s.fail(w, r, fmt.Sprintf("Frame #%d", id), err)
		return
	}
	s.renderFrameForm(w, r, http.StatusOK, frameFormFrom(frame))
}

func (s *Server) handleFrameCreate(w http.ResponseWriter, r *http.Request) {
	f, in, err := parseFrameForm(r)
	if err == nil {
		ctx, cancel := s.requestContext(r)
		defer cancel()

		var frame *backend.Frame
		if frame, err = s.api.CreateFrame(ctx, in); err == nil {
			redirect(w, r, fmt.Sprintf("/frames/%d", frame.ID), levelInfo, "Frame created.")
			return
		}
	}
	s.frameFormFailed(w, r, f, err)
}

func (s *Server) handleFrameUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}

	f, in, err := parseFrameForm(r)
	f.ID, in.ID = id, id
	if err == nil {
		ctx, cancel := s.requestContext(r)
		defer cancel()

		if _, err = s.api.UpdateFrame(ctx, in); err == nil {
			redirect(w, r, fmt.Sprintf("/frames/%d", id), levelInfo, "Frame saved.")
			return
		}
	}
	s.frameFormFailed(w, r, f, err)
}

func (s *Server) frameFormFailed(w http.ResponseWriter, r *http.Request, f frameForm, err error) {
	if verr, ok := s.rejected("frame", err); ok {
		f.Error = verr
		s.renderFrameForm(w, r, http.StatusUnprocessableEntity, f)
		return
	}
	if errors.Is(err, backend.ErrConflict) {
		f.Message = "The frame was changed by someone else. Reload it and apply your changes again."
		s.renderFrameForm(w, r, http.StatusConflict, f)
		return
	}
	s.fail(w, r, fmt.Sprintf("Frame #%d", f.ID), err)
}

func (s *Server) handleFrameDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.api.DeleteFrame(ctx, id); err != nil {
		s.fail(w, r, fmt.Sprintf("Frame #%d", id), err)
		return
	}
	redirect(w, r, "/frames", levelInfo, fmt.Sprintf("Frame #%d deleted.", id))
}

// handleFrameProcess runs sensor processing. Preconditions come back as
// informational messages on the frame page.
func (s *Server) handleFrameProcess(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	target := fmt.Sprintf("/frames/%d", id)
	result, err := s.api.ProcessFrameSensors(ctx, id)
	switch {
	case err == nil:
		level := levelInfo
		if result.NotificationsCreated > 0 {
			level = levelAlert
		}
		redirect(w, r, target, level, result.Message())
	case errors.Is(err, backend.ErrAlreadyProcessed):
		redirect(w, r, target, levelInfo, "Sensors for this frame were already processed.")
	case errors.Is(err, backend.ErrNoSensors):
		redirect(w, r, target, levelInfo, "No sensors are configured.")
	case errors.Is(err, backend.ErrPrecondition):
		redirect(w, r, target, levelInfo, err.Error())
	default:
		s.fail(w, r, fmt.Sprintf("Frame #%d", id), err)
	}
}

func (s *Server) handleVisualForm(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	frame, err := s.api.GetFrame(ctx, id)
	if err != nil {
		s.fail(w, r, fmt.Sprintf("Frame #%d", id), err)
		return
	}
	s.render(w, r, http.StatusOK, "visual_form", "Visual analysis", visualFormView(visualFormFor(frame, s.visualParams)))
}

func (s *Server) handleVisualCapture(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	in := backend.VisualAnalysisInput{
		FrameID:    id,
		ExpertName: r.PostFormValue("expert_name"),
		Verdict:    strings.TrimSpace(r.PostFormValue("verdict")),
		Checks:     ParseVisualChecks(r.PostForm),
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	frame, err := s.api.CaptureVisualAnalysis(ctx, in)
	if err == nil {
		msg := "Visual analysis saved."
		if frame.ExpertMark != nil {
			msg = fmt.Sprintf("Visual analysis saved, expert mark set to %s.", frame.ExpertMark.FinalMarkName)
		}
		redirect(w, r, fmt.Sprintf("/frames/%d", id), levelInfo, msg)
		return
	}

	verr, rejected := s.rejected("visual", err)
	if !rejected {
		s.fail(w, r, fmt.Sprintf("Frame #%d", id), err)
		return
	}

	current, err := s.api.GetFrame(ctx, id)
	if err != nil {
		s.fail(w, r, fmt.Sprintf("Frame #%d", id), err)
		return
	}
	f := visualForm{
		Frame:      current,
		Error:      verr,
		ExpertName: in.ExpertName,
		Verdict:    in.Verdict,
		Checks:     in.Checks,
	}
	s.render(w, r, http.StatusUnprocessableEntity, "visual_form", "Visual analysis", visualFormView(f))
}
