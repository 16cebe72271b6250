package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/storage"
)

// Provider returns the profile data of a user.
type Provider interface {
	GetProfile(ctx context.Context, userID string) (*model.Profile, error)
}

// AnswerMergerConfig is the configuration for the answer merger.
type AnswerMergerConfig struct {
	Provider Provider
	Answers  storage.AnswerRepository
	Logger   log.Logger
}

func (c *AnswerMergerConfig) defaults() error {
	if c.Provider == nil {
		return fmt.Errorf("provider is required")
	}
	if c.Answers == nil {
		return fmt.Errorf("answer repository is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "profile.AnswerMerger"})
	return nil
}

// AnswerMerger is a profile provider that adds the question bank answers of the user to
// the profile, question bank answers override the ones of the profile.
type AnswerMerger struct {
	provider Provider
	answers  storage.AnswerRepository
	logger   log.Logger
}

var _ Provider = (*AnswerMerger)(nil)

// NewAnswerMerger creates a new answer merger.
func NewAnswerMerger(cfg AnswerMergerConfig) (*AnswerMerger, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &AnswerMerger{
		provider: cfg.Provider,
		answers:  cfg.Answers,
		logger:   cfg.Logger,
	}, nil
}

// GetProfile returns the user profile with the question bank answers merged. Users without
// profile get an empty one, so the question bank alone can fill the answers.
func (a *AnswerMerger) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	p, err := a.provider.GetProfile(ctx, userID)
	if err != nil {
		if !errors.Is(err, model.ErrNotFound) {
			return nil, fmt.Errorf("could not get profile: %w", err)
		}
		a.logger.Warningf("User %s has no profile", userID)
		p = &model.Profile{UserID: userID}
	}

	answers, err := a.answers.ListAnswers(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("could not list answers: %w", err)
	}

	merged := *p
	merged.Answers = make(map[string]string, len(p.Answers)+len(answers))
	for k, v := range p.Answers {
		merged.Answers[k] = v
	}
	for _, ans := range answers {
		merged.Answers[ans.Key] = ans.Answer
	}

	return &merged, nil
}

// Value returns the profile value of a binding source and if it is present.
//
// Sources:
//   - `personal.<first_name|last_name|full_name|email|phone|location|linkedin|website>`
//   - `resume`, `cover_letter`, `skills`
//   - `work.<company|title>` of the current (or latest) position.
//   - `education.<institution|degree|field>` of the latest education entry.
//   - `answer:<question-key>`
func Value(p model.Profile, source string) (string, bool, error) {
	if key, ok := strings.CutPrefix(source, "answer:"); ok {
		if key == "" {
			return "", false, fmt.Errorf("answer source without key: %w", model.ErrConfiguration)
		}
		v := strings.TrimSpace(p.Answers[key])
		return v, v != "", nil
	}

	var v string
	switch source {
	case "personal.first_name":
		v = p.FirstName
	case "personal.last_name":
		v = p.LastName
	case "personal.full_name":
		v = strings.TrimSpace(p.FirstName + " " + p.LastName)
	case "personal.email":
		v = p.Email
	case "personal.phone":
		v = p.Phone
	case "personal.location":
		v = p.Location
	case "personal.linkedin":
		v = p.LinkedInURL
	case "personal.website":
		v = p.WebsiteURL
	case "resume":
		v = p.ResumePath
	case "cover_letter":
		v = p.CoverLetterPath
	case "skills":
		v = strings.Join(p.Skills, ", ")
	case "work.company", "work.title":
		if w, ok := currentWork(p.WorkHistory); ok {
			v = w.Company
			if source == "work.title" {
				v = w.Title
			}
		}
	case "education.institution", "education.degree", "education.field":
		if n := len(p.Education); n > 0 {
			e := p.Education[n-1]
			switch source {
			case "education.institution":
				v = e.Institution
			case "education.degree":
				v = e.Degree
			default:
				v = e.Field
			}
		}
	default:
		return "", false, fmt.Errorf("unknown profile source %q: %w", source, model.ErrConfiguration)
	}

	v = strings.TrimSpace(v)
	return v, v != "", nil
}

func currentWork(history []model.WorkExperience) (model.WorkExperience, bool) {
	for _, w := range history {
		if w.Current {
			return w, true
		}
	}
	if len(history) == 0 {
		return model.WorkExperience{}, false
	}
	return history[len(history)-1], true
}
