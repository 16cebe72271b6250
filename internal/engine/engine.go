package engine

import (
	"context"

	"github.com/applyflow/applyflow/internal/model"
)

// Result is the outcome of an engine run.
type Result struct {
	Application model.Application
	// ExecutedSteps are the step ids completed by this run, in order.
	ExecutedSteps []string
}

//go:generate mockery --case underscore --output enginemock --outpkg enginemock --name Engine --structname MockEngine --filename mocks.go

// Engine drives the application steps against the job portal.
type Engine interface {
	// Run starts or resumes an application, it never executes again a step that
	// already completed in the current generation of the application.
	Run(ctx context.Context, applicationID string) (*Result, error)
}
