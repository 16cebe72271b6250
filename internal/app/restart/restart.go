package restart

import (
	"context"
	"errors"
	"fmt"

	"github.com/jonboulle/clockwork"

	"github.com/applyflow/applyflow/internal/lease"
	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/resolver"
	"github.com/applyflow/applyflow/internal/storage"
)

// ServiceConfig is the configuration for the restart service.
type ServiceConfig struct {
	Resolver   resolver.Resolver
	Repository storage.Repository
	// Leaser must be the same leaser used by the engine so restarts can't race a run.
	Leaser lease.Leaser
	Clock  clockwork.Clock
	Logger log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Resolver == nil {
		return fmt.Errorf("resolver is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Leaser == nil {
		return fmt.Errorf("leaser is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Restart"})
	return nil
}

// Service restarts applications from scratch.
type Service struct {
	resolver resolver.Resolver
	repo     storage.Repository
	leaser   lease.Leaser
	clock    clockwork.Clock
	logger   log.Logger
}

// NewService creates a new restart service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		resolver: cfg.Resolver,
		repo:     cfg.Repository,
		leaser:   cfg.Leaser,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}, nil
}

// Request represents the restart request parameters.
type Request struct {
	ApplicationID string
}

// Run resets an application to not started with a freshly resolved template and a new
// generation. The session is deleted and the step log history is kept, entries of older
// generations are ignored by the engine.
func (s *Service) Run(ctx context.Context, req Request) (*model.Application, error) {
	ls, err := s.leaser.Acquire(ctx, req.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("could not acquire application lease: %w", err)
	}
	defer func() {
		if err := ls.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Errorf("could not release lease of application %s: %s", req.ApplicationID, err)
		}
	}()

	app, err := s.repo.GetApplication(ctx, req.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("could not get application: %w", err)
	}
	if app.Status != model.ApplicationStatusPending {
		return nil, fmt.Errorf("application %s is already %s: %w", app.ID, app.Status, model.ErrNotValid)
	}

	cfg, tmpl, err := s.resolver.Resolve(app.JobURL)
	if err != nil {
		return nil, fmt.Errorf("could not resolve company config: %w", err)
	}

	if err := s.repo.DeleteSession(ctx, app.ID); err != nil && !errors.Is(err, model.ErrNotFound) {
		return nil, fmt.Errorf("could not delete session: %w", err)
	}

	app.CompanyConfigID = cfg.ID
	app.Template = *tmpl
	app.Generation++
	app.RunState = model.RunStateNotStarted
	app.Progress = 0
	app.BlockedReason = ""
	app.UpdatedAt = s.clock.Now().UTC()
	if err := s.repo.UpdateApplication(ctx, *app); err != nil {
		return nil, fmt.Errorf("could not update application: %w", err)
	}

	s.logger.Infof("Restarted application %s at generation %d with template %s v%d", app.ID, app.Generation, tmpl.ID, tmpl.Version)

	return app, nil
}
