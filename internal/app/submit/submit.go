package submit

import (
	"context"
	"crypto/rand"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"

	"github.com/applyflow/applyflow/internal/engine"
	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/resolver"
	"github.com/applyflow/applyflow/internal/storage"
)

// ServiceConfig is the configuration for the submit service.
type ServiceConfig struct {
	Resolver   resolver.Resolver
	Repository storage.Repository
	Engine     engine.Engine
	Clock      clockwork.Clock
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Resolver == nil {
		return fmt.Errorf("resolver is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Submit"})
	return nil
}

// Service handles the creation of new job applications.
type Service struct {
	resolver resolver.Resolver
	repo     storage.Repository
	engine   engine.Engine
	clock    clockwork.Clock
	logger   log.Logger
}

// NewService creates a new submit service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		resolver: cfg.Resolver,
		repo:     cfg.Repository,
		engine:   cfg.Engine,
		clock:    cfg.Clock,
		logger:   cfg.Logger,
	}, nil
}

// Request represents the submit request parameters.
type Request struct {
	UserID string
	JobURL string
	// CompanyName is optional, the company config name is used when missing.
	CompanyName string
	Position    string
	// Start runs the application right after creating it.
	Start bool
}

// Response is the result of a submission.
type Response struct {
	Application model.Application
	// Run is the engine result when the application was started.
	Run *engine.Result
}

// Run creates a pending application with the template resolved from the job URL
// and optionally starts it.
func (s *Service) Run(ctx context.Context, req Request) (*Response, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user id is required: %w", model.ErrNotValid)
	}

	cfg, tmpl, err := s.resolver.Resolve(req.JobURL)
	if err != nil {
		return nil, fmt.Errorf("could not resolve company config: %w", err)
	}

	now := s.clock.Now().UTC()
	app := model.Application{
		ID:              ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		UserID:          req.UserID,
		JobURL:          req.JobURL,
		CompanyName:     req.CompanyName,
		Position:        req.Position,
		CompanyConfigID: cfg.ID,
		Template:        *tmpl,
		Status:          model.ApplicationStatusPending,
		RunState:        model.RunStateNotStarted,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if app.CompanyName == "" {
		app.CompanyName = cfg.Name
	}
	if err := app.Validate(); err != nil {
		return nil, fmt.Errorf("invalid application: %w", err)
	}

	if err := s.repo.CreateApplication(ctx, app); err != nil {
		return nil, fmt.Errorf("could not save application: %w", err)
	}
	s.logger.Infof("Created application %s for %s (company %s, template %s v%d)", app.ID, app.JobURL, cfg.ID, tmpl.ID, tmpl.Version)

	resp := &Response{Application: app}
	if !req.Start {
		return resp, nil
	}

	res, err := s.engine.Run(ctx, app.ID)
	if err != nil {
		return resp, fmt.Errorf("application %s created but could not run: %w", app.ID, err)
	}
	resp.Application = res.Application
	resp.Run = res

	return resp, nil
}
