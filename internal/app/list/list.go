package list

import (
	"context"
	"fmt"

	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/storage"
)

// ServiceConfig is the configuration for the list service.
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

// Service lists the applications of a user with optional filtering.
type Service struct {
	repo   storage.Repository
	logger log.Logger
}

// NewService creates a new list service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		repo:   cfg.Repository,
		logger: cfg.Logger,
	}, nil
}

// Request represents the list request parameters.
type Request struct {
	UserID string
	// StatusFilter is an optional filter to only show applications with this status.
	StatusFilter *model.ApplicationStatus
	// RunStateFilter is an optional filter to only show applications with this run state.
	RunStateFilter *model.RunState
}

// Run lists the applications of a user, newest first.
func (s *Service) Run(ctx context.Context, req Request) ([]model.Application, error) {
	if req.UserID == "" {
		return nil, fmt.Errorf("user id is required: %w", model.ErrNotValid)
	}

	apps, err := s.repo.ListApplications(ctx, req.UserID)
	if err != nil {
		return nil, fmt.Errorf("could not list applications: %w", err)
	}

	filtered := make([]model.Application, 0, len(apps))
	for _, a := range apps {
		if req.StatusFilter != nil && a.Status != *req.StatusFilter {
			continue
		}
		if req.RunStateFilter != nil && a.RunState != *req.RunStateFilter {
			continue
		}
		filtered = append(filtered, a)
	}

	s.logger.Debugf("found %d applications", len(filtered))
	return filtered, nil
}
