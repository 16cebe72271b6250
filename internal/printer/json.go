package printer

import (
	"encoding/json"
	"io"
	"time"

	"github.com/applyflow/applyflow/internal/app/status"
	"github.com/applyflow/applyflow/internal/model"
)

// JSONPrinter prints application information in JSON format.
type JSONPrinter struct {
	writer io.Writer
}

var _ Printer = (*JSONPrinter)(nil)

// NewJSONPrinter creates a new JSON printer.
func NewJSONPrinter(w io.Writer) *JSONPrinter {
	return &JSONPrinter{writer: w}
}

// ApplicationOutput is the JSON representation of an application.
type ApplicationOutput struct {
	ID              string    `json:"id"`
	UserID          string    `json:"user_id"`
	JobURL          string    `json:"job_url"`
	CompanyName     string    `json:"company_name"`
	Position        string    `json:"position,omitempty"`
	CompanyConfigID string    `json:"company_config_id"`
	TemplateID      string    `json:"template_id"`
	TemplateVersion int       `json:"template_version"`
	Generation      int       `json:"generation"`
	Status          string    `json:"status"`
	RunState        string    `json:"run_state"`
	Progress        float64   `json:"progress"`
	BlockedReason   string    `json:"blocked_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// StepOutput is the JSON representation of a step log entry.
type StepOutput struct {
	ID             string    `json:"id"`
	Generation     int       `json:"generation"`
	StepID         string    `json:"step_id"`
	Attempt        int       `json:"attempt"`
	Status         string    `json:"status"`
	Timestamp      time.Time `json:"timestamp"`
	Details        string    `json:"details,omitempty"`
	RequiresAction bool      `json:"requires_action"`
}

// StepStateOutput is the JSON representation of the current state of a template step.
type StepStateOutput struct {
	StepID      string      `json:"step_id"`
	Description string      `json:"description,omitempty"`
	Latest      *StepOutput `json:"latest,omitempty"`
}

// StatusOutput is the JSON representation of the detailed application status.
type StatusOutput struct {
	Application ApplicationOutput `json:"application"`
	Steps       []StepStateOutput `json:"steps"`
	History     []StepOutput      `json:"history,omitempty"`
}

// CompanyOutput is the JSON representation of a company config summary.
type CompanyOutput struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	DomainPattern   string   `json:"domain_pattern"`
	TemplateID      string   `json:"template_id"`
	TemplateVersion int      `json:"template_version"`
	Steps           []string `json:"steps"`
}

// NewApplicationOutput maps an application to its JSON representation.
func NewApplicationOutput(a model.Application) ApplicationOutput {
	return ApplicationOutput{
		ID:              a.ID,
		UserID:          a.UserID,
		JobURL:          a.JobURL,
		CompanyName:     a.CompanyName,
		Position:        a.Position,
		CompanyConfigID: a.CompanyConfigID,
		TemplateID:      a.Template.ID,
		TemplateVersion: a.Template.Version,
		Generation:      a.Generation,
		Status:          string(a.Status),
		RunState:        string(a.RunState),
		Progress:        a.Progress,
		BlockedReason:   a.BlockedReason,
		CreatedAt:       a.CreatedAt.UTC(),
		UpdatedAt:       a.UpdatedAt.UTC(),
	}
}

// NewStepOutput maps a step log entry to its JSON representation.
func NewStepOutput(s model.ApplicationStep) StepOutput {
	return StepOutput{
		ID:             s.ID,
		Generation:     s.Generation,
		StepID:         s.StepID,
		Attempt:        s.Attempt,
		Status:         string(s.Status),
		Timestamp:      s.Timestamp.UTC(),
		Details:        s.Details,
		RequiresAction: s.RequiresAction,
	}
}

// NewStatusOutput maps an application status to its JSON representation.
func NewStatusOutput(st status.Status) StatusOutput {
	out := StatusOutput{
		Application: NewApplicationOutput(st.Application),
		Steps:       make([]StepStateOutput, 0, len(st.Steps)),
	}
	for _, s := range st.Steps {
		so := StepStateOutput{StepID: s.Step.ID, Description: s.Step.Description}
		if s.Latest != nil {
			l := NewStepOutput(*s.Latest)
			so.Latest = &l
		}
		out.Steps = append(out.Steps, so)
	}
	for _, e := range st.History {
		out.History = append(out.History, NewStepOutput(e))
	}
	return out
}

// NewCompanyOutput maps a company config to its JSON summary.
func NewCompanyOutput(c model.CompanyConfig) CompanyOutput {
	out := CompanyOutput{
		ID:              c.ID,
		Name:            c.Name,
		DomainPattern:   c.DomainPattern,
		TemplateID:      c.Template.ID,
		TemplateVersion: c.Template.Version,
		Steps:           make([]string, 0, len(c.Template.Steps)),
	}
	for _, s := range c.Template.Steps {
		out.Steps = append(out.Steps, s.ID)
	}
	return out
}

// PrintList prints applications in JSON format.
func (j *JSONPrinter) PrintList(apps []model.Application) error {
	items := make([]ApplicationOutput, len(apps))
	for i, a := range apps {
		items[i] = NewApplicationOutput(a)
	}
	return j.encode(items)
}

// PrintStatus prints the detailed application status in JSON format.
func (j *JSONPrinter) PrintStatus(st status.Status) error {
	return j.encode(NewStatusOutput(st))
}

// PrintSteps prints step log entries in JSON format.
func (j *JSONPrinter) PrintSteps(entries []model.ApplicationStep) error {
	items := make([]StepOutput, len(entries))
	for i, e := range entries {
		items[i] = NewStepOutput(e)
	}
	return j.encode(items)
}

// PrintCompanies prints company configs in JSON format.
func (j *JSONPrinter) PrintCompanies(cfgs []model.CompanyConfig) error {
	items := make([]CompanyOutput, len(cfgs))
	for i, c := range cfgs {
		items[i] = NewCompanyOutput(c)
	}
	return j.encode(items)
}

func (j *JSONPrinter) encode(v any) error {
	enc := json.NewEncoder(j.writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
