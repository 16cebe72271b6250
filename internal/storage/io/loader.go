package io

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/applyflow/applyflow/internal/model"
)

// CompanyConfigYAMLRepository loads company portal configurations from YAML files.
type CompanyConfigYAMLRepository struct {
	fs fs.FS
}

// NewCompanyConfigYAMLRepository creates a new YAML company config repository.
func NewCompanyConfigYAMLRepository(filesystem fs.FS) *CompanyConfigYAMLRepository {
	return &CompanyConfigYAMLRepository{fs: filesystem}
}

// GetConfig loads a company configuration from a YAML file and returns a validated domain model.
func (r *CompanyConfigYAMLRepository) GetConfig(ctx context.Context, path string) (model.CompanyConfig, error) {
	data, err := fs.ReadFile(r.fs, path)
	if err != nil {
		return model.CompanyConfig{}, fmt.Errorf("reading company config file: %w", err)
	}

	if ctx.Err() != nil {
		return model.CompanyConfig{}, ctx.Err()
	}

	var cfg CompanyConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return model.CompanyConfig{}, fmt.Errorf("parsing YAML: %w", err)
	}

	m := cfg.toModel()
	if err := m.Validate(); err != nil {
		return model.CompanyConfig{}, fmt.Errorf("invalid configuration %s: %w", path, err)
	}

	return m, nil
}

// ListConfigs loads every `*.yaml`/`*.yml` company configuration of a directory, sorted by file name.
func (r *CompanyConfigYAMLRepository) ListConfigs(ctx context.Context, dir string) ([]model.CompanyConfig, error) {
	entries, err := fs.ReadDir(r.fs, dir)
	if err != nil {
		return nil, fmt.Errorf("reading company config dir: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name() < entries[j].Name() })

	cfgs := []model.CompanyConfig{}
	for _, e := range entries {
		if e.IsDir() || !isYAML(e.Name()) {
			continue
		}

		cfg, err := r.GetConfig(ctx, path.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		cfgs = append(cfgs, cfg)
	}

	return cfgs, nil
}

// CompanyConfig represents the YAML structure of a company portal configuration.
type CompanyConfig struct {
	ID            string                     `yaml:"id"`
	Name          string                     `yaml:"name"`
	DomainPattern string                     `yaml:"domain_pattern"`
	Fields        map[string]FormFieldConfig `yaml:"fields"`
	Template      TemplateConfig             `yaml:"template"`
}

// FormFieldConfig represents the YAML structure of a form field.
type FormFieldConfig struct {
	Kind     string   `yaml:"kind"`
	Label    string   `yaml:"label"`
	Required bool     `yaml:"required"`
	Options  []string `yaml:"options"`
}

// TemplateConfig represents the YAML structure of an application template.
type TemplateConfig struct {
	ID      string       `yaml:"id"`
	Version int          `yaml:"version"`
	Steps   []StepConfig `yaml:"steps"`
}

// StepConfig represents the YAML structure of a template step.
type StepConfig struct {
	ID                   string          `yaml:"id"`
	Description          string          `yaml:"description"`
	RequiresManualAnswer bool            `yaml:"requires_manual_answer"`
	Bindings             []BindingConfig `yaml:"bindings"`
}

// BindingConfig represents the YAML structure of a field binding.
type BindingConfig struct {
	Field  string `yaml:"field"`
	Source string `yaml:"source"`
}

func (c CompanyConfig) toModel() model.CompanyConfig {
	cfg := model.CompanyConfig{
		ID:            c.ID,
		Name:          c.Name,
		DomainPattern: c.DomainPattern,
		Fields:        make(map[string]model.FormField, len(c.Fields)),
		Template: model.ApplicationTemplate{
			ID:              c.Template.ID,
			CompanyConfigID: c.ID,
			Version:         c.Template.Version,
		},
	}
	if cfg.Name == "" {
		cfg.Name = c.ID
	}
	if cfg.Template.ID == "" {
		cfg.Template.ID = c.ID
	}

	for id, f := range c.Fields {
		cfg.Fields[id] = model.FormField{
			ID:       id,
			Kind:     model.FieldKind(f.Kind),
			Label:    f.Label,
			Required: f.Required,
			Options:  f.Options,
		}
	}

	for _, s := range c.Template.Steps {
		step := model.StepDefinition{
			ID:                   s.ID,
			Description:          s.Description,
			RequiresManualAnswer: s.RequiresManualAnswer,
		}
		for _, b := range s.Bindings {
			step.Bindings = append(step.Bindings, model.FieldBinding{FieldID: b.Field, Source: b.Source})
		}
		cfg.Template.Steps = append(cfg.Template.Steps, step)
	}

	return cfg
}

// ProfileYAMLRepository loads user profiles from `<user-id>.yaml` files.
type ProfileYAMLRepository struct {
	fs fs.FS
}

// NewProfileYAMLRepository creates a new YAML profile repository.
func NewProfileYAMLRepository(filesystem fs.FS) *ProfileYAMLRepository {
	return &ProfileYAMLRepository{fs: filesystem}
}

// GetProfile loads the profile of a user.
func (r *ProfileYAMLRepository) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	if userID == "" || strings.ContainsAny(userID, `/\`) || strings.HasPrefix(userID, ".") {
		return nil, fmt.Errorf("invalid user id %q: %w", userID, model.ErrNotValid)
	}

	data, err := fs.ReadFile(r.fs, userID+".yaml")
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("profile of user %s: %w", userID, model.ErrNotFound)
		}
		return nil, fmt.Errorf("reading profile file: %w", err)
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parsing YAML: %w", err)
	}

	return p.toModel(userID), nil
}

// Profile represents the YAML structure of a user profile.
type Profile struct {
	Personal struct {
		FirstName   string `yaml:"first_name"`
		LastName    string `yaml:"last_name"`
		Email       string `yaml:"email"`
		Phone       string `yaml:"phone"`
		Location    string `yaml:"location"`
		LinkedInURL string `yaml:"linkedin_url"`
		WebsiteURL  string `yaml:"website_url"`
	} `yaml:"personal"`
	Resume      string `yaml:"resume"`
	CoverLetter string `yaml:"cover_letter"`
	WorkHistory []struct {
		Company     string `yaml:"company"`
		Title       string `yaml:"title"`
		Location    string `yaml:"location"`
		StartDate   string `yaml:"start_date"`
		EndDate     string `yaml:"end_date"`
		Current     bool   `yaml:"current"`
		Description string `yaml:"description"`
	} `yaml:"work_history"`
	Education []struct {
		Institution string `yaml:"institution"`
		Degree      string `yaml:"degree"`
		Field       string `yaml:"field"`
		StartDate   string `yaml:"start_date"`
		EndDate     string `yaml:"end_date"`
	} `yaml:"education"`
	Skills  []string          `yaml:"skills"`
	Answers map[string]string `yaml:"answers"`
}

func (p Profile) toModel(userID string) *model.Profile {
	m := &model.Profile{
		UserID:          userID,
		FirstName:       p.Personal.FirstName,
		LastName:        p.Personal.LastName,
		Email:           p.Personal.Email,
		Phone:           p.Personal.Phone,
		Location:        p.Personal.Location,
		LinkedInURL:     p.Personal.LinkedInURL,
		WebsiteURL:      p.Personal.WebsiteURL,
		ResumePath:      p.Resume,
		CoverLetterPath: p.CoverLetter,
		Skills:          p.Skills,
		Answers:         map[string]string{},
	}
	for k, v := range p.Answers {
		m.Answers[k] = v
	}
	for _, w := range p.WorkHistory {
		m.WorkHistory = append(m.WorkHistory, model.WorkExperience{
			Company:     w.Company,
			Title:       w.Title,
			Location:    w.Location,
			StartDate:   w.StartDate,
			EndDate:     w.EndDate,
			Current:     w.Current,
			Description: w.Description,
		})
	}
	for _, e := range p.Education {
		m.Education = append(m.Education, model.Education{
			Institution: e.Institution,
			Degree:      e.Degree,
			Field:       e.Field,
			StartDate:   e.StartDate,
			EndDate:     e.EndDate,
		})
	}

	return m
}

func isYAML(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	return ext == ".yaml" || ext == ".yml"
}
