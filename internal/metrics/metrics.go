package metrics

import (
	"context"
	"time"
)

// Recorder records the engine metrics.
type Recorder interface {
	// ObserveStepAttempt records a step execution attempt with its outcome
	// (completed, transient, needs_user_input, fatal, unknown, timeout or cancelled).
	ObserveStepAttempt(ctx context.Context, companyID, stepID, outcome string, duration time.Duration)
	// IncRunResult records the final run state of an engine run.
	IncRunResult(ctx context.Context, companyID, runState string)
	// IncLeaseContention records a run rejected because another executor owns the application.
	IncLeaseContention(ctx context.Context)
	// SetPortalCircuitState records the circuit breaker state of a portal domain
	// (0 closed, 1 half open, 2 open).
	SetPortalCircuitState(ctx context.Context, domain string, state int)
}

// Noop is a Recorder that doesn't record anything.
const Noop = noop(0)

type noop int

var _ Recorder = Noop

func (noop) ObserveStepAttempt(context.Context, string, string, string, time.Duration) {}
func (noop) IncRunResult(context.Context, string, string)                              {}
func (noop) IncLeaseContention(context.Context)                                        {}
func (noop) SetPortalCircuitState(context.Context, string, int)                        {}
