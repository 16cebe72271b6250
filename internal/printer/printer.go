package printer

import (
	"github.com/applyflow/applyflow/internal/app/status"
	"github.com/applyflow/applyflow/internal/model"
)

// Printer knows how to print application information in different formats.
type Printer interface {
	PrintList(apps []model.Application) error
	PrintStatus(st status.Status) error
	PrintSteps(entries []model.ApplicationStep) error
	PrintCompanies(cfgs []model.CompanyConfig) error
}
