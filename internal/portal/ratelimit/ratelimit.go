package ratelimit

import (
	"context"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/portal"
)

// DriverConfig is the configuration for the rate limited portal driver.
type DriverConfig struct {
	Driver portal.Driver
	// RequestsPerSecond is the sustained step execution rate allowed per portal domain.
	RequestsPerSecond float64
	Burst             int
	Logger            log.Logger
}

func (c *DriverConfig) defaults() error {
	if c.Driver == nil {
		return fmt.Errorf("driver is required")
	}
	if c.RequestsPerSecond <= 0 {
		c.RequestsPerSecond = 1
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "portal.RateLimit"})
	return nil
}

// Driver wraps a portal driver limiting the step executions per portal domain.
type Driver struct {
	cfg    DriverConfig
	logger log.Logger

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

var _ portal.Driver = (*Driver)(nil)

// NewDriver creates a new rate limited portal driver.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Driver{
		cfg:      cfg,
		logger:   cfg.Logger,
		limiters: map[string]*rate.Limiter{},
	}, nil
}

// ExecuteStep waits for the portal domain rate before executing the step.
func (d *Driver) ExecuteStep(ctx context.Context, req portal.StepRequest) (*portal.StepResult, error) {
	domain := portal.Domain(req.JobURL)

	if err := d.limiter(domain).Wait(ctx); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		// The wait would exceed the deadline of the step.
		return nil, &portal.TransientError{Reason: fmt.Sprintf("portal %s rate limited", domain), Err: err}
	}

	return d.cfg.Driver.ExecuteStep(ctx, req)
}

func (d *Driver) limiter(domain string) *rate.Limiter {
	d.mu.Lock()
	defer d.mu.Unlock()

	l, ok := d.limiters[domain]
	if !ok {
		l = rate.NewLimiter(rate.Limit(d.cfg.RequestsPerSecond), d.cfg.Burst)
		d.limiters[domain] = l
	}
	return l
}
