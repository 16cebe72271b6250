package fake

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/portal"
)

// Outcome is a scripted result of a step execution.
type Outcome struct {
	Err     error
	Latency time.Duration
	Session []byte
	Details string
}

// DriverConfig is the configuration for the fake portal driver.
type DriverConfig struct {
	// Script has the outcomes of the consecutive executions of a step, by step id.
	// The last outcome repeats, steps without script succeed.
	Script map[string][]Outcome
	// Latency is the latency of the steps without a scripted one.
	Latency time.Duration
	Clock   clockwork.Clock
	Logger  log.Logger
}

func (c *DriverConfig) defaults() error {
	if c.Script == nil {
		c.Script = map[string][]Outcome{}
	}
	if c.Latency < 0 {
		return fmt.Errorf("latency can't be negative")
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "portal.Fake"})
	return nil
}

// Driver is a scripted portal driver, it doesn't talk to any real portal.
type Driver struct {
	cfg    DriverConfig
	logger log.Logger

	mu     sync.Mutex
	calls  []portal.StepRequest
	counts map[string]int
}

var _ portal.Driver = (*Driver)(nil)

// NewDriver creates a new fake portal driver.
func NewDriver(cfg DriverConfig) (*Driver, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Driver{
		cfg:    cfg,
		logger: cfg.Logger,
		counts: map[string]int{},
	}, nil
}

// ExecuteStep executes the next scripted outcome of the step.
func (d *Driver) ExecuteStep(ctx context.Context, req portal.StepRequest) (*portal.StepResult, error) {
	key := req.ApplicationID + "/" + req.Step.ID

	d.mu.Lock()
	d.calls = append(d.calls, req)
	n := d.counts[key]
	d.counts[key] = n + 1
	d.mu.Unlock()

	out := Outcome{
		Latency: d.cfg.Latency,
		Session: []byte(req.Step.ID),
		Details: fmt.Sprintf("step %s submitted", req.Step.ID),
	}
	if script := d.cfg.Script[req.Step.ID]; len(script) > 0 {
		if n >= len(script) {
			n = len(script) - 1
		}
		out = script[n]
	}

	if out.Latency > 0 {
		timer := d.cfg.Clock.NewTimer(out.Latency)
		defer timer.Stop()

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.Chan():
		}
	}

	if out.Err != nil {
		d.logger.Debugf("Step %s of application %s failed: %s", req.Step.ID, req.ApplicationID, out.Err)
		return nil, out.Err
	}

	d.logger.Debugf("Step %s of application %s executed", req.Step.ID, req.ApplicationID)
	return &portal.StepResult{Session: out.Session, Details: out.Details}, nil
}

// Calls returns the received step requests in order.
func (d *Driver) Calls() []portal.StepRequest {
	d.mu.Lock()
	defer d.mu.Unlock()

	calls := make([]portal.StepRequest, len(d.calls))
	copy(calls, d.calls)
	return calls
}

// CalledSteps returns the step ids of the received requests in order.
func (d *Driver) CalledSteps() []string {
	calls := d.Calls()
	ids := make([]string, 0, len(calls))
	for _, c := range calls {
		ids = append(ids, c.Step.ID)
	}
	return ids
}
