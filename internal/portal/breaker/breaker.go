package breaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker"

	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/portal"
)

// DriverConfig is the configuration for the circuit breaker portal driver.
type DriverConfig struct {
	Driver portal.Driver
	// MaxConsecutiveFailures opens the circuit of a portal domain.
	MaxConsecutiveFailures uint32
	// OpenTimeout is the time an open circuit waits before letting a probe request pass.
	OpenTimeout time.Duration
	// Interval is the cyclic period the closed circuit clears its counts.
	Interval time.Duration
	// OnStateChange is called with the domain and the new state of a circuit (optional).
	OnStateChange func(domain string, state gobreaker.State)
	Logger        log.Logger
}

func (c *DriverConfig) defaults() error {
	if c.Driver == nil {
		return fmt.Errorf("driver is required")
	}
	if c.MaxConsecutiveFailures == 0 {
		c.MaxConsecutiveFailures = 5
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 30 * time.Second
	}
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.OnStateChange == nil {
		c.OnStateChange = func(string, gobreaker.State) {}
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "portal.Breaker"})
	return nil
}

// Driver wraps a portal driver with a circuit breaker per portal domain, a failing
// portal stops receiving calls for a while instead of burning the retries of every application.
type Driver struct {
	cfg    DriverConfig
	logger log.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

var _ portal.Driver = (*Driver)(nil)

// NewDriver creates a new circuit breaker portal driver.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Driver{
		cfg:      cfg,
		logger:   cfg.Logger,
		breakers: map[string]*gobreaker.CircuitBreaker{},
	}, nil
}

// ExecuteStep executes the step through the circuit of the job portal domain.
// An open circuit is returned as a transient error.
func (d *Driver) ExecuteStep(ctx context.Context, req portal.StepRequest) (*portal.StepResult, error) {
	domain := portal.Domain(req.JobURL)
	cb := d.breaker(domain)

	res, err := cb.Execute(func() (interface{}, error) {
		return d.cfg.Driver.ExecuteStep(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, &portal.TransientError{Reason: fmt.Sprintf("portal %s unavailable", domain), Err: err}
		}
		return nil, err
	}

	return res.(*portal.StepResult), nil
}

// State returns the circuit state of a portal domain.
func (d *Driver) State(domain string) gobreaker.State {
	return d.breaker(domain).State()
}

func (d *Driver) breaker(domain string) *gobreaker.CircuitBreaker {
	d.mu.Lock()
	defer d.mu.Unlock()

	cb, ok := d.breakers[domain]
	if ok {
		return cb
	}

	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        domain,
		MaxRequests: 1,
		Interval:    d.cfg.Interval,
		Timeout:     d.cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= d.cfg.MaxConsecutiveFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			d.logger.Warningf("Portal %s circuit changed from %s to %s", name, from, to)
			d.cfg.OnStateChange(name, to)
		},
		IsSuccessful: isPortalHealthy,
	})
	d.breakers[domain] = cb

	return cb
}

// isPortalHealthy tells if an execution error doesn't say anything bad about the portal health.
func isPortalHealthy(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return true
	}

	switch portal.Classify(err) {
	case portal.ClassFatal, portal.ClassNeedsUserInput:
		return true
	}
	return false
}
