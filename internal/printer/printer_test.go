package printer_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applyflow/applyflow/internal/app/status"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/printer"
)

func statusFixture() status.Status {
	createdAt := time.Date(2026, 1, 30, 10, 0, 0, 0, time.UTC)
	return status.Status{
		Application: model.Application{
			ID:              "01HRW9YZTEST000000000000",
			UserID:          "user-1",
			JobURL:          "https://jobs.acme.com/1",
			CompanyName:     "Acme",
			CompanyConfigID: "acme",
			Template:        model.ApplicationTemplate{ID: "acme-v1", Version: 1},
			Status:          model.ApplicationStatusPending,
			RunState:        model.RunStateBlocked,
			Progress:        0.5,
			BlockedReason:   "step questions: user input required",
			CreatedAt:       createdAt,
			UpdatedAt:       createdAt,
		},
		Steps: []status.StepState{
			{Step: model.StepDefinition{ID: "personal"}, Latest: &model.ApplicationStep{ID: "e1", StepID: "personal", Attempt: 1, Status: model.StepStatusCompleted}},
			{Step: model.StepDefinition{ID: "questions"}, Latest: &model.ApplicationStep{ID: "e2", StepID: "questions", Attempt: 1, Status: model.StepStatusError, RequiresAction: true}},
		},
	}
}

func TestTablePrinterPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintStatus(statusFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "Company:    Acme (acme)")
	assert.Contains(t, out, "Progress:   50%")
	assert.Contains(t, out, "Blocked:    step questions: user input required")
	assert.Regexp(t, `questions\s+error\s+1\s+yes`, out)
}

func TestJSONPrinterPrintStatus(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewJSONPrinter(&buf)

	err := p.PrintStatus(statusFixture())
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, `"run_state": "blocked"`)
	assert.Contains(t, out, `"progress": 0.5`)
	assert.Contains(t, out, `"requires_action": true`)
	assert.NotContains(t, out, `"history"`)
}

func TestTablePrinterPrintList(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintList([]model.Application{statusFixture().Application})
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Regexp(t, `^ID\s+COMPANY\s+POSITION\s+STATUS\s+RUN\s+PROGRESS\s+AGE$`, lines[0])
	assert.Regexp(t, `^01HRW9YZTEST000000000000\s+Acme\s+-\s+pending\s+blocked\s+50%`, lines[1])
}

func TestTablePrinterPrintCompanies(t *testing.T) {
	var buf bytes.Buffer
	p := printer.NewTablePrinter(&buf)

	err := p.PrintCompanies([]model.CompanyConfig{{
		ID:            "acme",
		Name:          "Acme",
		DomainPattern: "acme.com",
		Template: model.ApplicationTemplate{
			ID: "acme-v1", Version: 1,
			Steps: []model.StepDefinition{{ID: "personal"}, {ID: "submit"}},
		},
	}})
	require.NoError(t, err)
	assert.Regexp(t, `acme\s+Acme\s+acme.com\s+acme-v1 v1\s+personal,submit`, buf.String())
}
