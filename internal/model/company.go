package model

import (
	"fmt"
	"strings"
)

// FieldKind is the semantic type of a portal form field.
type FieldKind string

const (
	FieldKindText           FieldKind = "text"
	FieldKindDate           FieldKind = "date"
	FieldKindFile           FieldKind = "file"
	FieldKindSelect         FieldKind = "select"
	FieldKindCustomQuestion FieldKind = "custom_question"
)

// Valid returns true if the kind is one of the known field kinds.
func (k FieldKind) Valid() bool {
	switch k {
	case FieldKindText, FieldKindDate, FieldKindFile, FieldKindSelect, FieldKindCustomQuestion:
		return true
	}
	return false
}

// FormField describes a single field of a company portal form.
type FormField struct {
	ID       string
	Kind     FieldKind
	Label    string
	Required bool
	// Options are the accepted values for select fields.
	Options []string
}

// CompanyConfig is the published form layout of a company portal.
// It is immutable once loaded.
type CompanyConfig struct {
	ID            string
	Name          string
	DomainPattern string
	Fields        map[string]FormField
	Template      ApplicationTemplate
}

// ApplicationTemplate is the ordered list of steps required to apply on a portal.
type ApplicationTemplate struct {
	ID              string
	CompanyConfigID string
	Version         int
	Steps           []StepDefinition
	// Fields is the snapshot of the company form fields bound by the steps, it is
	// set when the template is frozen for an application.
	Fields map[string]FormField
}

// StepDefinition is a single step of an application template.
type StepDefinition struct {
	ID          string
	Description string
	Bindings    []FieldBinding
	// RequiresManualAnswer marks steps whose fields can't be mapped from the
	// profile and need an answer supplied by the user.
	RequiresManualAnswer bool
}

// FieldBinding binds a company form field to a profile data source.
type FieldBinding struct {
	FieldID string
	// Source is the profile key used to fill the field (e.g. `personal.email`,
	// `resume` or `answer:<question-key>`).
	Source string
}

// Snapshot returns a copy of the company template carrying the form fields its steps bind.
func (c CompanyConfig) Snapshot() ApplicationTemplate {
	t := c.Template.Clone()
	t.Fields = map[string]FormField{}
	for _, s := range t.Steps {
		for _, b := range s.Bindings {
			if f, ok := c.Fields[b.FieldID]; ok {
				t.Fields[b.FieldID] = f.Clone()
			}
		}
	}
	return t
}

// Clone returns a deep copy of the template.
func (t ApplicationTemplate) Clone() ApplicationTemplate {
	c := t
	if t.Steps != nil {
		c.Steps = make([]StepDefinition, len(t.Steps))
		for i, s := range t.Steps {
			c.Steps[i] = s
			if s.Bindings != nil {
				c.Steps[i].Bindings = append([]FieldBinding(nil), s.Bindings...)
			}
		}
	}
	if t.Fields != nil {
		c.Fields = make(map[string]FormField, len(t.Fields))
		for id, f := range t.Fields {
			c.Fields[id] = f.Clone()
		}
	}
	return c
}

// Clone returns a deep copy of the field.
func (f FormField) Clone() FormField {
	if f.Options != nil {
		f.Options = append([]string(nil), f.Options...)
	}
	return f
}

// StepIndex returns the position of a step in the template, or -1 if missing.
func (t ApplicationTemplate) StepIndex(stepID string) int {
	for i, s := range t.Steps {
		if s.ID == stepID {
			return i
		}
	}
	return -1
}

// Validate validates the company configuration and its template.
func (c CompanyConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required: %w", ErrNotValid)
	}
	if strings.TrimSpace(c.DomainPattern) == "" {
		return fmt.Errorf("company %s: domain pattern is required: %w", c.ID, ErrNotValid)
	}

	for id, f := range c.Fields {
		if id != f.ID {
			return fmt.Errorf("company %s: field key %q doesn't match field id %q: %w", c.ID, id, f.ID, ErrNotValid)
		}
		if !f.Kind.Valid() {
			return fmt.Errorf("company %s: field %s has unknown kind %q: %w", c.ID, id, f.Kind, ErrNotValid)
		}
		if f.Kind == FieldKindSelect && len(f.Options) == 0 {
			return fmt.Errorf("company %s: select field %s requires options: %w", c.ID, id, ErrNotValid)
		}
	}

	if c.Template.CompanyConfigID != c.ID {
		return fmt.Errorf("company %s: template belongs to company %q: %w", c.ID, c.Template.CompanyConfigID, ErrNotValid)
	}
	if len(c.Template.Steps) == 0 {
		return fmt.Errorf("company %s: template requires at least one step: %w", c.ID, ErrNotValid)
	}

	seen := map[string]struct{}{}
	for i, s := range c.Template.Steps {
		if s.ID == "" {
			return fmt.Errorf("company %s: step[%d] id is required: %w", c.ID, i, ErrNotValid)
		}
		if _, ok := seen[s.ID]; ok {
			return fmt.Errorf("company %s: duplicate step id %s: %w", c.ID, s.ID, ErrNotValid)
		}
		seen[s.ID] = struct{}{}

		for _, b := range s.Bindings {
			if _, ok := c.Fields[b.FieldID]; !ok {
				return fmt.Errorf("company %s: step %s binds unknown field %q: %w", c.ID, s.ID, b.FieldID, ErrNotValid)
			}
		}
	}

	return nil
}
