package resume

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/applyflow/applyflow/internal/engine"
	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/storage"
)

// ServiceConfig is the configuration for the resume service.
type ServiceConfig struct {
	Engine     engine.Engine
	Repository storage.Repository
	Clock      clockwork.Clock
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if c.Engine == nil {
		return fmt.Errorf("engine is required")
	}
	if c.Repository == nil {
		return fmt.Errorf("repository is required")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Resume"})
	return nil
}

// Service resumes blocked or interrupted applications.
type Service struct {
	engine engine.Engine
	repo   storage.Repository
	clock  clockwork.Clock
	logger log.Logger
}

// NewService creates a new resume service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		engine: cfg.Engine,
		repo:   cfg.Repository,
		clock:  cfg.Clock,
		logger: cfg.Logger,
	}, nil
}

// Request represents the resume request parameters.
type Request struct {
	ApplicationID string
	// Answers are user supplied answers by question key, they are stored in the
	// question bank of the application user before resuming.
	Answers map[string]string
	// Questions optionally has the question text of the answers by question key.
	Questions map[string]string
}

// Run stores the answers and runs the application engine again. The engine
// continues from the first step without a completed entry.
func (s *Service) Run(ctx context.Context, req Request) (*engine.Result, error) {
	app, err := s.repo.GetApplication(ctx, req.ApplicationID)
	if err != nil {
		return nil, fmt.Errorf("could not get application: %w", err)
	}

	keys := make([]string, 0, len(req.Answers))
	for k := range req.Answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	now := s.clock.Now().UTC()
	for _, k := range keys {
		if strings.TrimSpace(k) == "" {
			return nil, fmt.Errorf("answer key is required: %w", model.ErrNotValid)
		}
		qa := model.QuestionAnswer{
			UserID:    app.UserID,
			Key:       k,
			Question:  req.Questions[k],
			Answer:    req.Answers[k],
			UpdatedAt: now,
		}
		if err := s.repo.SaveAnswer(ctx, qa); err != nil {
			return nil, fmt.Errorf("could not save answer %s: %w", k, err)
		}
	}
	if len(keys) > 0 {
		s.logger.Infof("Stored %d answers for user %s", len(keys), app.UserID)
	}

	res, err := s.engine.Run(ctx, app.ID)
	if err != nil {
		return res, fmt.Errorf("could not resume application %s: %w", app.ID, err)
	}

	return res, nil
}
