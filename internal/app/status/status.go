package status

import (
	"context"
	"fmt"

	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/storage"
)

// ServiceConfig is the configuration for the status service.
type ServiceConfig struct {
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}

	return nil
}

// Service retrieves detailed application status.
type Service struct {
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new status service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the status request parameters.
type Request struct {
	ApplicationID string
	// History includes the full step log (every attempt of every generation).
	History bool
}

// StepState is the current state of a template step.
type StepState struct {
	Step model.StepDefinition
	// Latest is the authoritative log entry of the step in the current generation,
	// nil when the step was never attempted.
	Latest *model.ApplicationStep
}

// Status is the detailed state of an application.
type Status struct {
	Application model.Application
	// Steps are in template order.
	Steps   []StepState
	History []model.ApplicationStep
}

// Run retrieves the status of an application.
func (s *Service) Run(ctx context.Context, req Request) (*Status, error) {
	s.logger.Debugf("getting status for application: %s", req.ApplicationID)

	app, err := s.repo.GetApplication(ctx, req.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("could not get application: %w", err)
	}

	entries, err := s.repo.ListSteps(ctx, app.ID)
	if err != nil {
		return nil, fmt.Errorf("could not list step log: %w", err)
	}

	latest := model.LatestByStep(entries, app.Generation)
	st := &Status{Application: *app}
	for _, step := range app.Template.Steps {
		ss := StepState{Step: step}
		if e, ok := latest[step.ID]; ok {
			ss.Latest = &e
		}
		st.Steps = append(st.Steps, ss)
	}
	if req.History {
		st.History = entries
	}

	return st, nil
}
