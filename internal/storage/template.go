package storage

import (
	"encoding/json"
	"fmt"

	"github.com/applyflow/applyflow/internal/model"
)

// templateJSON is the persisted representation of an application template snapshot.
type templateJSON struct {
	ID              string               `json:"id"`
	CompanyConfigID string               `json:"company_config_id"`
	Version         int                  `json:"version"`
	Steps           []stepJSON           `json:"steps"`
	Fields          map[string]fieldJSON `json:"fields,omitempty"`
}

type fieldJSON struct {
	Kind     string   `json:"kind"`
	Label    string   `json:"label,omitempty"`
	Required bool     `json:"required,omitempty"`
	Options  []string `json:"options,omitempty"`
}

type stepJSON struct {
	ID                   string        `json:"id"`
	Description          string        `json:"description,omitempty"`
	RequiresManualAnswer bool          `json:"requires_manual_answer,omitempty"`
	Bindings             []bindingJSON `json:"bindings,omitempty"`
}

type bindingJSON struct {
	FieldID string `json:"field_id"`
	Source  string `json:"source"`
}

// EncodeTemplate serializes a template snapshot so backends can store it in a single column.
func EncodeTemplate(t model.ApplicationTemplate) ([]byte, error) {
	tj := templateJSON{
		ID:              t.ID,
		CompanyConfigID: t.CompanyConfigID,
		Version:         t.Version,
		Steps:           make([]stepJSON, 0, len(t.Steps)),
	}
	for _, s := range t.Steps {
		sj := stepJSON{ID: s.ID, Description: s.Description, RequiresManualAnswer: s.RequiresManualAnswer}
		for _, b := range s.Bindings {
			sj.Bindings = append(sj.Bindings, bindingJSON{FieldID: b.FieldID, Source: b.Source})
		}
		tj.Steps = append(tj.Steps, sj)
	}
	if len(t.Fields) > 0 {
		tj.Fields = make(map[string]fieldJSON, len(t.Fields))
		for id, f := range t.Fields {
			tj.Fields[id] = fieldJSON{Kind: string(f.Kind), Label: f.Label, Required: f.Required, Options: f.Options}
		}
	}

	data, err := json.Marshal(tj)
	if err != nil {
		return nil, fmt.Errorf("could not marshal template: %w", err)
	}
	return data, nil
}

// DecodeTemplate deserializes a template snapshot stored with EncodeTemplate.
func DecodeTemplate(data []byte) (model.ApplicationTemplate, error) {
	var tj templateJSON
	if err := json.Unmarshal(data, &tj); err != nil {
		return model.ApplicationTemplate{}, fmt.Errorf("could not unmarshal template: %w", err)
	}

	t := model.ApplicationTemplate{
		ID:              tj.ID,
		CompanyConfigID: tj.CompanyConfigID,
		Version:         tj.Version,
	}
	for _, sj := range tj.Steps {
		s := model.StepDefinition{ID: sj.ID, Description: sj.Description, RequiresManualAnswer: sj.RequiresManualAnswer}
		for _, b := range sj.Bindings {
			s.Bindings = append(s.Bindings, model.FieldBinding{FieldID: b.FieldID, Source: b.Source})
		}
		t.Steps = append(t.Steps, s)
	}
	if len(tj.Fields) > 0 {
		t.Fields = make(map[string]model.FormField, len(tj.Fields))
		for id, f := range tj.Fields {
			t.Fields[id] = model.FormField{ID: id, Kind: model.FieldKind(f.Kind), Label: f.Label, Required: f.Required, Options: f.Options}
		}
	}

	return t, nil
}
