package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/storage"
)

// RepositoryConfig is the configuration for the memory repository.
type RepositoryConfig struct {
	Logger log.Logger
}

func (c *RepositoryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "storage.Memory"})
	return nil
}

// Repository is an in-memory implementation of storage.Repository.
type Repository struct {
	applications map[string]model.Application
	sessions     map[string]model.SessionData
	steps        map[string][]model.ApplicationStep
	answers      map[string]map[string]model.QuestionAnswer
	leases       map[string]memoryLease
	mu           sync.RWMutex
	logger       log.Logger
}

var (
	_ storage.Repository      = (*Repository)(nil)
	_ storage.LeaseRepository = (*Repository)(nil)
)

// NewRepository creates a new memory repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Repository{
		applications: make(map[string]model.Application),
		sessions:     make(map[string]model.SessionData),
		steps:        make(map[string][]model.ApplicationStep),
		answers:      make(map[string]map[string]model.QuestionAnswer),
		leases:       make(map[string]memoryLease),
		logger:       cfg.Logger,
	}, nil
}

// CreateApplication creates a new application in the repository.
func (r *Repository) CreateApplication(ctx context.Context, a model.Application) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid application: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.applications[a.ID]; ok {
		return fmt.Errorf("application with id %s: %w", a.ID, model.ErrAlreadyExists)
	}

	r.applications[a.ID] = cloneApplication(a)
	r.logger.Debugf("Created application in repository: %s", a.ID)

	return nil
}

// GetApplication retrieves an application by ID.
func (r *Repository) GetApplication(ctx context.Context, id string) (*model.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	a, ok := r.applications[id]
	if !ok {
		return nil, fmt.Errorf("application %s: %w", id, model.ErrNotFound)
	}

	appCopy := cloneApplication(a)
	return &appCopy, nil
}

// ListApplications returns the applications of a user, newest first.
func (r *Repository) ListApplications(ctx context.Context, userID string) ([]model.Application, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	apps := []model.Application{}
	for _, a := range r.applications {
		if a.UserID == userID {
			apps = append(apps, cloneApplication(a))
		}
	}
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].CreatedAt.Equal(apps[j].CreatedAt) {
			return apps[i].ID > apps[j].ID
		}
		return apps[i].CreatedAt.After(apps[j].CreatedAt)
	})

	return apps, nil
}

// UpdateApplication updates an existing application.
func (r *Repository) UpdateApplication(ctx context.Context, a model.Application) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.applications[a.ID]; !ok {
		return fmt.Errorf("application %s: %w", a.ID, model.ErrNotFound)
	}

	r.applications[a.ID] = cloneApplication(a)
	r.logger.Debugf("Updated application in repository: %s", a.ID)

	return nil
}

// LoadSession retrieves the session data of an application.
func (r *Repository) LoadSession(ctx context.Context, applicationID string) (*model.SessionData, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.sessions[applicationID]
	if !ok {
		return nil, fmt.Errorf("session of application %s: %w", applicationID, model.ErrNotFound)
	}

	sCopy := s
	sCopy.Blob = append([]byte(nil), s.Blob...)
	return &sCopy, nil
}

// SaveSession overwrites the session data of an application.
func (r *Repository) SaveSession(ctx context.Context, s model.SessionData) error {
	if s.ApplicationID == "" {
		return fmt.Errorf("application id is required: %w", model.ErrNotValid)
	}
	if s.UpdatedAt.IsZero() {
		s.UpdatedAt = time.Now().UTC()
	}
	s.Blob = append([]byte(nil), s.Blob...)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.sessions[s.ApplicationID] = s
	r.logger.Debugf("Saved session of application %s at cursor %q", s.ApplicationID, s.Cursor)

	return nil
}

// DeleteSession deletes the session data of an application, missing sessions are ignored.
func (r *Repository) DeleteSession(ctx context.Context, applicationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, applicationID)
	return nil
}

// RecordStep appends a step log entry.
func (r *Repository) RecordStep(ctx context.Context, s model.ApplicationStep) error {
	if s.ID == "" || s.ApplicationID == "" || s.StepID == "" {
		return fmt.Errorf("id, application id and step id are required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.steps[s.ApplicationID] {
		if existing.ID == s.ID {
			return fmt.Errorf("step log entry %s: %w", s.ID, model.ErrAlreadyExists)
		}
	}
	r.steps[s.ApplicationID] = append(r.steps[s.ApplicationID], s)

	return nil
}

// ListSteps returns the step log of an application in recording order.
func (r *Repository) ListSteps(ctx context.Context, applicationID string) ([]model.ApplicationStep, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	steps := make([]model.ApplicationStep, len(r.steps[applicationID]))
	copy(steps, r.steps[applicationID])
	return steps, nil
}

// SaveAnswer creates or replaces a question bank answer.
func (r *Repository) SaveAnswer(ctx context.Context, a model.QuestionAnswer) error {
	if a.UserID == "" || a.Key == "" {
		return fmt.Errorf("user id and key are required: %w", model.ErrNotValid)
	}
	if a.UpdatedAt.IsZero() {
		a.UpdatedAt = time.Now().UTC()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.answers[a.UserID]; !ok {
		r.answers[a.UserID] = map[string]model.QuestionAnswer{}
	}
	r.answers[a.UserID][a.Key] = a

	return nil
}

// ListAnswers returns the question bank of a user ordered by key.
func (r *Repository) ListAnswers(ctx context.Context, userID string) ([]model.QuestionAnswer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	answers := make([]model.QuestionAnswer, 0, len(r.answers[userID]))
	for _, a := range r.answers[userID] {
		answers = append(answers, a)
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].Key < answers[j].Key })

	return answers, nil
}

// cloneApplication copies the application so callers never share the stored template.
func cloneApplication(a model.Application) model.Application {
	a.Template = a.Template.Clone()
	return a
}

type memoryLease struct {
	owner     string
	expiresAt time.Time
}

// AcquireLease takes the key when free or expired.
func (r *Repository) AcquireLease(ctx context.Context, key, owner string, now time.Time, ttl time.Duration) (bool, error) {
	if key == "" || owner == "" {
		return false, fmt.Errorf("lease key and owner are required: %w", model.ErrNotValid)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.leases[key]; ok && l.expiresAt.After(now) {
		return false, nil
	}
	r.leases[key] = memoryLease{owner: owner, expiresAt: now.Add(ttl)}

	return true, nil
}

// RenewLease extends a lease still held by the owner.
func (r *Repository) RenewLease(ctx context.Context, key, owner string, now time.Time, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	l, ok := r.leases[key]
	if !ok || l.owner != owner {
		return false, nil
	}
	l.expiresAt = now.Add(ttl)
	r.leases[key] = l

	return true, nil
}

// ReleaseLease deletes the lease if the owner still holds it.
func (r *Repository) ReleaseLease(ctx context.Context, key, owner string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if l, ok := r.leases[key]; ok && l.owner == owner {
		delete(r.leases, key)
	}
	return nil
}
