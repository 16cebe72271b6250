package mark

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/notify"
	"github.com/applyflow/applyflow/internal/storage"
)

// ServiceConfig is the configuration for the mark service.
type ServiceConfig struct {
	Repository storage.Repository
	Notifier   notify.Notifier
	Clock      clockwork.Clock
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Notifier == nil {
		c.Notifier = notify.Noop
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Mark"})
	return nil
}

// Service handles the status changes made by users once an application was submitted.
type Service struct {
	repo     storage.Repository
	notifier notify.Notifier
	clock    clockwork.Clock
	logger   log.Logger
}

// NewService creates a new mark service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:     cfg.Repository,
		notifier: cfg.Notifier,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}, nil
}

// Request represents the mark request parameters.
type Request struct {
	ApplicationID string
	Status        model.ApplicationStatus
}

// Run moves the application to the requested status.
func (s *Service) Run(ctx context.Context, req Request) (*model.Application, error) {
	app, err := s.repo.GetApplication(ctx, req.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("could not get application: %w", err)
	}

	if app.Status == req.Status {
		return app, nil
	}
	if !app.Status.CanUserTransition(req.Status) {
		return nil, fmt.Errorf("application %s can't move from %s to %s: %w", app.ID, app.Status, req.Status, model.ErrNotValid)
	}

	from := app.Status
	app.Status = req.Status
	app.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.UpdateApplication(ctx, *app); err != nil {
		return nil, fmt.Errorf("could not update application: %w", err)
	}
	s.notifier.ApplicationChanged(ctx, *app)

	s.logger.Infof("Application %s marked as %s (was %s)", app.ID, app.Status, from)

	return app, nil
}
