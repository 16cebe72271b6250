package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/applyflow/applyflow/internal/app/list"
	"github.com/applyflow/applyflow/internal/app/mark"
	"github.com/applyflow/applyflow/internal/app/restart"
	"github.com/applyflow/applyflow/internal/app/resume"
	"github.com/applyflow/applyflow/internal/app/status"
	"github.com/applyflow/applyflow/internal/app/submit"
	"github.com/applyflow/applyflow/internal/engine"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/printer"
)

type submitRequest struct {
	UserID      string `json:"user_id"`
	JobURL      string `json:"job_url"`
	CompanyName string `json:"company_name"`
	Position    string `json:"position"`
	Start       bool   `json:"start"`
}

type resumeRequest struct {
	Answers   map[string]string `json:"answers"`
	Questions map[string]string `json:"questions"`
}

type markRequest struct {
	Status string `json:"status"`
}

type runResponse struct {
	Application   printer.ApplicationOutput `json:"application"`
	ExecutedSteps []string                  `json:"executed_steps"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (h handler) health(w http.ResponseWriter, r *http.Request) {
	h.json(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h handler) listCompanies(w http.ResponseWriter, r *http.Request) {
	cfgs := h.cfg.Companies.List()
	items := make([]printer.CompanyOutput, 0, len(cfgs))
	for _, c := range cfgs {
		items = append(items, printer.NewCompanyOutput(c))
	}
	h.json(w, http.StatusOK, items)
}

func (h handler) submitApplication(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := decode(r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	resp, err := h.cfg.Submit.Run(r.Context(), submit.Request{
		UserID:      req.UserID,
		JobURL:      req.JobURL,
		CompanyName: req.CompanyName,
		Position:    req.Position,
		Start:       req.Start,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}

	h.json(w, http.StatusCreated, newRunResponse(resp.Application, resp.Run))
}

func (h handler) listApplications(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := list.Request{UserID: q.Get("user_id")}
	if s := q.Get("status"); s != "" {
		st := model.ApplicationStatus(s)
		req.StatusFilter = &st
	}
	if s := q.Get("run_state"); s != "" {
		rs := model.RunState(s)
		req.RunStateFilter = &rs
	}

	apps, err := h.cfg.List.Run(r.Context(), req)
	if err != nil {
		h.error(w, r, err)
		return
	}

	items := make([]printer.ApplicationOutput, 0, len(apps))
	for _, a := range apps {
		items = append(items, printer.NewApplicationOutput(a))
	}
	h.json(w, http.StatusOK, items)
}

func (h handler) getApplication(w http.ResponseWriter, r *http.Request) {
	st, err := h.cfg.Status.Run(r.Context(), status.Request{
		ApplicationID: chi.URLParam(r, "id"),
		History:       r.URL.Query().Get("history") == "true",
	})
	if err != nil {
		h.error(w, r, err)
		return
	}

	h.json(w, http.StatusOK, printer.NewStatusOutput(*st))
}

func (h handler) listSteps(w http.ResponseWriter, r *http.Request) {
	st, err := h.cfg.Status.Run(r.Context(), status.Request{ApplicationID: chi.URLParam(r, "id"), History: true})
	if err != nil {
		h.error(w, r, err)
		return
	}

	items := make([]printer.StepOutput, 0, len(st.History))
	for _, e := range st.History {
		items = append(items, printer.NewStepOutput(e))
	}
	h.json(w, http.StatusOK, items)
}

func (h handler) resumeApplication(w http.ResponseWriter, r *http.Request) {
	var req resumeRequest
	if err := decode(r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	res, err := h.cfg.Resume.Run(r.Context(), resume.Request{
		ApplicationID: chi.URLParam(r, "id"),
		Answers:       req.Answers,
		Questions:     req.Questions,
	})
	if err != nil {
		h.error(w, r, err)
		return
	}

	h.json(w, http.StatusOK, newRunResponse(res.Application, res))
}

func (h handler) restartApplication(w http.ResponseWriter, r *http.Request) {
	app, err := h.cfg.Restart.Run(r.Context(), restart.Request{ApplicationID: chi.URLParam(r, "id")})
	if err != nil {
		h.error(w, r, err)
		return
	}

	h.json(w, http.StatusOK, printer.NewApplicationOutput(*app))
}

func (h handler) markApplication(w http.ResponseWriter, r *http.Request) {
	var req markRequest
	if err := decode(r, &req); err != nil {
		h.error(w, r, err)
		return
	}

	app, err := h.cfg.Mark.Run(r.Context(), mark.Request{
		ApplicationID: chi.URLParam(r, "id"),
		Status:        model.ApplicationStatus(req.Status),
	})
	if err != nil {
		h.error(w, r, err)
		return
	}

	h.json(w, http.StatusOK, printer.NewApplicationOutput(*app))
}

func newRunResponse(app model.Application, res *engine.Result) runResponse {
	resp := runResponse{
		Application:   printer.NewApplicationOutput(app),
		ExecutedSteps: []string{},
	}
	if res != nil && res.ExecutedSteps != nil {
		resp.ExecutedSteps = res.ExecutedSteps
	}
	return resp
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w: %w", err, model.ErrNotValid)
	}
	return nil
}

func (h handler) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Errorf("could not encode response: %s", err)
	}
}

func (h handler) error(w http.ResponseWriter, r *http.Request, err error) {
	code := errorCode(err)
	if code >= http.StatusInternalServerError {
		h.logger.Errorf("%s %s failed: %s", r.Method, r.URL.Path, err)
	}
	h.json(w, code, errorResponse{Error: err.Error()})
}

func errorCode(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNotValid):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrConfiguration):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrLeaseHeld), errors.Is(err, model.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
