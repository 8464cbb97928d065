package frontend

import (
	"errors"
	"fmt"
	"net/http"

	"procodus.dev/qc-app/internal/backend"
)

func (s *Server) renderSensors(w http.ResponseWriter, r *http.Request, status int, f catalogForm) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	sensors, err := s.api.ListSensors(ctx)
	if err != nil {
		s.fail(w, r, "Sensors", err)
		return
	}
	s.render(w, r, status, "sensors", "Sensors", sensorsView(sensors, f))
}

func (s *Server) handleSensors(w http.ResponseWriter, r *http.Request) {
	s.renderSensors(w, r, http.StatusOK, catalogForm{})
}

func (s *Server) handleSensorCreate(w http.ResponseWriter, r *http.Request) {
	f := catalogForm{Name: r.PostFormValue("sensor_name")}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	sensor, err := s.api.CreateSensor(ctx, f.Name)
	if err == nil {
		redirect(w, r, "/sensors", levelInfo, fmt.Sprintf("Sensor %s added.", sensor.SensorName))
		return
	}
	if verr, ok := s.rejected("sensor", err); ok {
		f.Error = verr
		s.renderSensors(w, r, http.StatusUnprocessableEntity, f)
		return
	}
	s.fail(w, r, "Sensors", err)
}

func (s *Server) handleSensorDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	err := s.api.DeleteSensor(ctx, id)
	var verr *backend.ValidationError
	switch {
	case err == nil:
		redirect(w, r, "/sensors", levelInfo, fmt.Sprintf("Sensor #%d deleted.", id))
	case errors.As(err, &verr):
		redirect(w, r, "/sensors", levelAlert, fmt.Sprintf("Sensor #%d was not deleted: %s.", id, verr.Message))
	default:
		s.fail(w, r, fmt.Sprintf("Sensor #%d", id), err)
	}
}

func (s *Server) renderRules(w http.ResponseWriter, r *http.Request, status int, f ruleForm) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	rules, err := s.api.ListRules(ctx)
	if err != nil {
		s.fail(w, r, "Rules", err)
		return
	}
	sensors, err := s.api.ListSensors(ctx)
	if err != nil {
		s.fail(w, r, "Sensors", err)
		return
	}
	types, err := s.api.ListNotificationTypes(ctx)
	if err != nil {
		s.fail(w, r, "Notification types", err)
		return
	}
	s.render(w, r, status, "rules", "Notification rules", rulesView(rules, sensors, types, f))
}

func (s *Server) handleRules(w http.ResponseWriter, r *http.Request) {
	s.renderRules(w, r, http.StatusOK, ruleForm{})
}

func (s *Server) handleRuleCreate(w http.ResponseWriter, r *http.Request) {
	f, in, err := parseRuleForm(r)
	if err == nil {
		ctx, cancel := s.requestContext(r)
		defer cancel()

		if _, err = s.api.CreateRule(ctx, in); err == nil {
			redirect(w, r, "/rules", levelInfo, "Rule added.")
			return
		}
	}
	if verr, ok := s.rejected("rule", err); ok {
		f.Error = verr
		s.renderRules(w, r, http.StatusUnprocessableEntity, f)
		return
	}
	s.fail(w, r, "Rules", err)
}

func (s *Server) handleRuleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		s.handleNotFound(w, r)
		return
	}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	if err := s.api.DeleteRule(ctx, id); err != nil {
		s.fail(w, r, fmt.Sprintf("Rule #%d", id), err)
		return
	}
	redirect(w, r, "/rules", levelInfo, fmt.Sprintf("Rule #%d deleted.", id))
}

func (s *Server) renderModels(w http.ResponseWriter, r *http.Request, status int, f catalogForm) {
	ctx, cancel := s.requestContext(r)
	defer cancel()

	models, err := s.api.ListFrameModels(ctx)
	if err != nil {
		s.fail(w, r, "Frame models", err)
		return
	}
	s.render(w, r, status, "models", "Frame models", modelsView(models, f))
}

func (s *Server) handleModels(w http.ResponseWriter, r *http.Request) {
	s.renderModels(w, r, http.StatusOK, catalogForm{})
}

func (s *Server) handleModelCreate(w http.ResponseWriter, r *http.Request) {
	f := catalogForm{Name: r.PostFormValue("frame_name")}

	ctx, cancel := s.requestContext(r)
	defer cancel()

	model, err := s.api.CreateFrameModel(ctx, f.Name)
	if err == nil {
		redirect(w, r, "/models", levelInfo, fmt.Sprintf("Model %s added.", model.FrameName))
		return
	}
	if verr, ok := s.rejected("model", err); ok {
		f.Error = verr
		s.renderModels(w, r, http.StatusUnprocessableEntity, f)
		return
	}
	s.fail(w, r, "Frame models", err)
}
