// Package resolver maps job posting URLs to the company configuration and
// application template that know how to apply on that portal.
//
// The registry is built once and only read afterwards, so it is safe to use
// from multiple goroutines without synchronization.
package resolver

import (
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
)

// Resolver resolves the company config and template snapshot of a job posting URL.
type Resolver interface {
	Resolve(jobURL string) (*model.CompanyConfig, *model.ApplicationTemplate, error)
}

// RegistryConfig is the configuration for the company config registry.
type RegistryConfig struct {
	Configs []model.CompanyConfig
	// FallbackID is an optional company config id used when no domain matches
	// (e.g. a generic manual template).
	FallbackID string
	Logger     log.Logger
}

func (c *RegistryConfig) defaults() error {
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "resolver.Registry"})
	return nil
}

type entry struct {
	pattern string
	config  model.CompanyConfig
}

// Registry resolves company configs by domain pattern.
type Registry struct {
	entries  []entry
	byID     map[string]model.CompanyConfig
	fallback *model.CompanyConfig
	logger   log.Logger
}

var _ Resolver = (*Registry)(nil)

// NewRegistry validates and registers company configs. Duplicate ids or
// duplicate domain patterns (case-insensitive) are configuration errors.
func NewRegistry(cfg RegistryConfig) (*Registry, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	r := &Registry{
		byID:   map[string]model.CompanyConfig{},
		logger: cfg.Logger,
	}

	patterns := map[string]string{}
	for _, c := range cfg.Configs {
		if err := c.Validate(); err != nil {
			return nil, fmt.Errorf("invalid company config: %w: %w", err, model.ErrConfiguration)
		}
		if _, ok := r.byID[c.ID]; ok {
			return nil, fmt.Errorf("duplicated company config id %q: %w", c.ID, model.ErrConfiguration)
		}

		pattern := strings.ToLower(strings.TrimSpace(c.DomainPattern))
		if other, ok := patterns[pattern]; ok {
			return nil, fmt.Errorf("company configs %q and %q share domain pattern %q: %w", other, c.ID, pattern, model.ErrAmbiguousConfig)
		}
		patterns[pattern] = c.ID

		r.byID[c.ID] = c
		r.entries = append(r.entries, entry{pattern: pattern, config: c})
	}

	// Longest patterns first so the first match is the most specific one.
	sort.SliceStable(r.entries, func(i, j int) bool {
		return len(r.entries[i].pattern) > len(r.entries[j].pattern)
	})

	if cfg.FallbackID != "" {
		fb, ok := r.byID[cfg.FallbackID]
		if !ok {
			return nil, fmt.Errorf("fallback company config %q is not registered: %w", cfg.FallbackID, model.ErrConfiguration)
		}
		r.fallback = &fb
	}

	r.logger.Debugf("Registered %d company configs", len(r.entries))

	return r, nil
}

// Resolve returns the company config and a frozen template snapshot for a job posting URL.
func (r *Registry) Resolve(jobURL string) (*model.CompanyConfig, *model.ApplicationTemplate, error) {
	host, err := Host(jobURL)
	if err != nil {
		return nil, nil, err
	}

	var match *entry
	for i := range r.entries {
		e := &r.entries[i]
		if match != nil && len(e.pattern) < len(match.pattern) {
			break
		}
		if !strings.Contains(host, e.pattern) {
			continue
		}
		if match != nil {
			return nil, nil, fmt.Errorf("host %q matches %q and %q: %w", host, match.config.ID, e.config.ID, model.ErrAmbiguousConfig)
		}
		match = e
	}

	if match == nil {
		if r.fallback == nil {
			return nil, nil, fmt.Errorf("host %q: %w", host, model.ErrNoConfigFound)
		}
		r.logger.Debugf("No company config for %q, using fallback %s", host, r.fallback.ID)
		cfg := *r.fallback
		tmpl := cfg.Snapshot()
		return &cfg, &tmpl, nil
	}

	cfg := match.config
	tmpl := cfg.Snapshot()
	return &cfg, &tmpl, nil
}

// Get returns a registered company config by id.
func (r *Registry) Get(id string) (*model.CompanyConfig, error) {
	c, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("company config %s: %w", id, model.ErrNotFound)
	}
	return &c, nil
}

// List returns the registered company configs ordered by id.
func (r *Registry) List() []model.CompanyConfig {
	cfgs := make([]model.CompanyConfig, 0, len(r.byID))
	for _, c := range r.byID {
		cfgs = append(cfgs, c)
	}
	sort.Slice(cfgs, func(i, j int) bool { return cfgs[i].ID < cfgs[j].ID })
	return cfgs
}

// Host extracts the lowercase host (without port) of an absolute http(s) URL.
func Host(jobURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(jobURL))
	if err != nil {
		return "", fmt.Errorf("invalid job url: %w: %w", err, model.ErrNotValid)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("job url must be http or https: %w", model.ErrNotValid)
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		return "", fmt.Errorf("job url has no host: %w", model.ErrNotValid)
	}
	return host, nil
}
