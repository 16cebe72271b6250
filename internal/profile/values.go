package profile

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/applyflow/applyflow/internal/model"
)

// DateLayout is the layout of the date values in profiles and answers.
const DateLayout = "2006-01-02"

// MissingValuesError is returned when a step can't be filled with the profile data.
type MissingValuesError struct {
	StepID string
	Fields []string
}

func (e *MissingValuesError) Error() string {
	return fmt.Sprintf("step %s: missing values for fields: %s", e.StepID, strings.Join(e.Fields, ", "))
}

// ResolveValues maps the bindings of a step to typed field values using the profile.
// Required fields (and every field of manual answer steps) without a valid value
// return a MissingValuesError with all of them.
func ResolveValues(tmpl model.ApplicationTemplate, step model.StepDefinition, p model.Profile) ([]model.FieldValue, error) {
	values := make([]model.FieldValue, 0, len(step.Bindings))
	var missing []string

	for _, b := range step.Bindings {
		field, ok := tmpl.Fields[b.FieldID]
		if !ok {
			field = model.FormField{ID: b.FieldID, Kind: model.FieldKindText}
		}
		mandatory := field.Required || step.RequiresManualAnswer

		raw, found, err := Value(p, b.Source)
		if err != nil {
			return nil, fmt.Errorf("field %s: %w", b.FieldID, err)
		}
		if !found {
			if mandatory {
				missing = append(missing, b.FieldID)
			}
			continue
		}

		v, ok := typedValue(field, raw)
		if !ok {
			missing = append(missing, b.FieldID)
			continue
		}
		values = append(values, v)
	}

	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, &MissingValuesError{StepID: step.ID, Fields: missing}
	}

	return values, nil
}

func typedValue(field model.FormField, raw string) (model.FieldValue, bool) {
	v := model.FieldValue{FieldID: field.ID, Kind: field.Kind}

	switch field.Kind {
	case model.FieldKindDate:
		d, err := time.Parse(DateLayout, raw)
		if err != nil {
			return model.FieldValue{}, false
		}
		v.Date = d
	case model.FieldKindFile:
		v.File = raw
	case model.FieldKindSelect:
		for _, o := range field.Options {
			if strings.EqualFold(o, raw) {
				v.Choice = o
				return v, true
			}
		}
		return model.FieldValue{}, false
	case model.FieldKindCustomQuestion:
		v.Answer = raw
	default:
		v.Text = raw
	}

	return v, true
}
