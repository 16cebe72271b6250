package engine

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"

	"github.com/applyflow/applyflow/internal/lease"
	leasememory "github.com/applyflow/applyflow/internal/lease/memory"
	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/metrics"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/notify"
	"github.com/applyflow/applyflow/internal/portal"
	"github.com/applyflow/applyflow/internal/profile"
	"github.com/applyflow/applyflow/internal/storage"
)

var (
	errRunTimeout  = errors.New("run timed out")
	errStepTimeout = errors.New("step timed out")
	errLeaseLost   = errors.New("application lease lost")
)

// StepEngineConfig is the configuration for the step engine.
type StepEngineConfig struct {
	Applications storage.ApplicationRepository
	Sessions     storage.SessionStore
	Log          storage.StepLog
	History      storage.StepLogReader
	Profiles     profile.Provider
	Driver       portal.Driver
	// Leaser grants the single executor per application, defaults to an in-process leaser.
	Leaser   lease.Leaser
	Notifier notify.Notifier
	Metrics  metrics.Recorder
	Clock    clockwork.Clock
	// MaxAttempts is the number of executions of a step with transient errors before blocking.
	MaxAttempts int
	// InitialBackoff is the wait after the first failed attempt, it doubles on every
	// attempt up to MaxBackoff.
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// StepTimeout bounds a single driver call.
	StepTimeout time.Duration
	// RunTimeout bounds a whole run, 0 disables it.
	RunTimeout time.Duration
	Logger     log.Logger
}

func (c *StepEngineConfig) defaults() error {
	if c.Applications == nil {
		return fmt.Errorf("application repository is required")
	}
	if c.Sessions == nil {
		return fmt.Errorf("session store is required")
	}
	if c.Log == nil {
		return fmt.Errorf("step log is required")
	}
	if c.History == nil {
		return fmt.Errorf("step log reader is required")
	}
	if c.Profiles == nil {
		return fmt.Errorf("profile provider is required")
	}
	if c.Driver == nil {
		return fmt.Errorf("portal driver is required")
	}
	if c.Leaser == nil {
		c.Leaser = leasememory.NewLeaser()
	}
	if c.Notifier == nil {
		c.Notifier = notify.Noop
	}
	if c.Metrics == nil {
		c.Metrics = metrics.Noop
	}
	if c.Clock == nil {
		c.Clock = clockwork.NewRealClock()
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = time.Second
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = 30 * time.Second
	}
	if c.MaxBackoff < c.InitialBackoff {
		return fmt.Errorf("max backoff can't be lower than initial backoff")
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = 2 * time.Minute
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("run timeout can't be negative")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "engine.StepEngine"})
	return nil
}

// StepEngine is the resumable state machine that executes the template steps of an application.
type StepEngine struct {
	cfg    StepEngineConfig
	logger log.Logger
}

var _ Engine = (*StepEngine)(nil)

// NewStepEngine creates a new step engine.
func NewStepEngine(cfg StepEngineConfig) (*StepEngine, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &StepEngine{
		cfg:    cfg,
		logger: cfg.Logger,
	}, nil
}

// Run starts or resumes an application under its lease. Blocked, failed and completed
// outcomes are returned in the result, errors are reserved to runs that could not
// reach a stable state (storage errors, lease held or lost, caller cancellation).
func (e *StepEngine) Run(ctx context.Context, applicationID string) (*Result, error) {
	ls, err := e.cfg.Leaser.Acquire(ctx, applicationID)
	if err != nil {
		if errors.Is(err, model.ErrLeaseHeld) {
			e.cfg.Metrics.IncLeaseContention(ctx)
		}
		return nil, fmt.Errorf("could not acquire application lease: %w", err)
	}
	defer func() {
		if err := ls.Release(context.WithoutCancel(ctx)); err != nil {
			e.logger.Errorf("could not release lease of application %s: %s", applicationID, err)
		}
	}()

	leaseCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-ls.Lost():
			cancel(errLeaseLost)
		case <-leaseCtx.Done():
		}
	}()

	runCtx := leaseCtx
	if e.cfg.RunTimeout > 0 {
		var cancelTimeout context.CancelFunc
		runCtx, cancelTimeout = context.WithTimeoutCause(leaseCtx, e.cfg.RunTimeout, errRunTimeout)
		defer cancelTimeout()
	}

	app, err := e.cfg.Applications.GetApplication(runCtx, applicationID)
	if err != nil {
		return nil, fmt.Errorf("could not get application: %w", err)
	}

	r := &run{
		engine: e,
		app:    *app,
		logger: e.logger.WithValues(log.Kv{"app-id": app.ID, "company": app.CompanyConfigID}),
	}
	return r.execute(ctx, runCtx)
}

// run is the state of a single engine run of an application.
type run struct {
	engine   *StepEngine
	app      model.Application
	logger   log.Logger
	session  model.SessionData
	profile  *model.Profile
	executed []string
}

func (r *run) execute(ctx, runCtx context.Context) (*Result, error) {
	if r.app.RunState.Terminal() {
		r.logger.Debugf("Application is %s, nothing to run", r.app.RunState)
		return r.result(), nil
	}

	completed, err := r.reconcile(runCtx)
	if err != nil {
		return nil, err
	}

	r.app.RunState = model.RunStateRunning
	r.app.BlockedReason = ""
	r.setProgress(len(completed))
	if err := r.saveApplication(runCtx); err != nil {
		return nil, err
	}
	r.logger.Infof("Running application from %d/%d completed steps", len(completed), len(r.app.Template.Steps))

	for _, step := range r.app.Template.Steps {
		if _, ok := completed[step.ID]; ok {
			continue
		}

		out := r.executeStep(runCtx, step)
		switch out.kind {
		case outcomeCompleted:
			completed[step.ID] = struct{}{}
			r.executed = append(r.executed, step.ID)
			r.setProgress(len(completed))
			if err := r.saveApplication(runCtx); err != nil {
				return nil, err
			}
			continue
		case outcomeInterrupted:
			return r.interrupted(ctx, runCtx)
		case outcomeStorageError:
			r.logger.Errorf("Step %s could not be persisted: %s", step.ID, out.err)
			r.finish(ctx, model.RunStateBlocked, fmt.Sprintf("step %s: %s", step.ID, out.err))
			return r.result(), out.err
		case outcomeFailed:
			r.finish(ctx, model.RunStateFailed, out.reason)
			return r.result(), nil
		default:
			r.finish(ctx, model.RunStateBlocked, out.reason)
			return r.result(), nil
		}
	}

	r.app.Status = model.ApplicationStatusApplied
	r.finish(ctx, model.RunStateCompleted, "")
	r.logger.Infof("Application completed")

	return r.result(), nil
}

// reconcile loads the session and returns the steps whose latest entry of the
// current generation is completed.
func (r *run) reconcile(ctx context.Context) (map[string]struct{}, error) {
	e := r.engine

	entries, err := e.cfg.History.ListSteps(ctx, r.app.ID)
	if err != nil {
		return nil, fmt.Errorf("could not list step log: %w", err)
	}
	latest := model.LatestByStep(entries, r.app.Generation)
	if _, err := model.CompletedSteps(r.app.Template, latest); err != nil {
		return nil, fmt.Errorf("application %s step log: %w", r.app.ID, err)
	}

	completed := map[string]struct{}{}
	for id, entry := range latest {
		if entry.Status == model.StepStatusCompleted {
			completed[id] = struct{}{}
		}
	}

	session, err := e.cfg.Sessions.LoadSession(ctx, r.app.ID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		r.session = model.SessionData{ApplicationID: r.app.ID}
	case err != nil:
		return nil, fmt.Errorf("could not load session: %w", err)
	default:
		r.session = *session
		if _, ok := completed[session.Cursor]; session.Cursor != "" && !ok {
			if err := r.recoverCursor(ctx, latest, completed); err != nil {
				return nil, err
			}
		}
	}

	return completed, nil
}

// recoverCursor records the completion of the session cursor step when the run that
// completed it stopped before logging it.
func (r *run) recoverCursor(ctx context.Context, latest map[string]model.ApplicationStep, completed map[string]struct{}) error {
	cursor := r.session.Cursor
	entry, ok := latest[cursor]
	if !ok || r.app.Template.StepIndex(cursor) < 0 {
		r.logger.Warningf("Session cursor %q has no log entry, resuming from the step log", cursor)
		return nil
	}

	r.logger.Warningf("Step %s completion missing in the log, recovering it from the session", cursor)
	if err := r.record(ctx, cursor, entry.Attempt, model.StepStatusCompleted, "recovered from session", false); err != nil {
		return err
	}
	completed[cursor] = struct{}{}

	return nil
}

type outcomeKind int

const (
	outcomeCompleted outcomeKind = iota
	outcomeBlocked
	outcomeFailed
	// outcomeInterrupted is a step stopped because the run context is done.
	outcomeInterrupted
	outcomeStorageError
)

type stepOutcome struct {
	kind   outcomeKind
	reason string
	err    error
}

func (r *run) executeStep(ctx context.Context, step model.StepDefinition) stepOutcome {
	e := r.engine
	logger := r.logger.WithValues(log.Kv{"step": step.ID})

	for attempt := 1; ; attempt++ {
		if err := r.record(ctx, step.ID, attempt, model.StepStatusPending, "", false); err != nil {
			return r.persistOutcome(ctx, err)
		}

		start := e.cfg.Clock.Now()
		res, err := r.attempt(ctx, step, attempt)
		duration := e.cfg.Clock.Since(start)

		if err == nil {
			e.cfg.Metrics.ObserveStepAttempt(ctx, r.app.CompanyConfigID, step.ID, "completed", duration)
			if err := r.complete(ctx, step, attempt, res); err != nil {
				return r.persistOutcome(ctx, err)
			}
			logger.Infof("Step completed at attempt %d", attempt)
			return stepOutcome{kind: outcomeCompleted}
		}

		if ctx.Err() != nil {
			e.cfg.Metrics.ObserveStepAttempt(ctx, r.app.CompanyConfigID, step.ID, "cancelled", duration)
			r.recordDetached(ctx, step.ID, attempt, model.StepStatusError, "interrupted: "+context.Cause(ctx).Error(), false)
			return stepOutcome{kind: outcomeInterrupted}
		}

		class := portal.Classify(err)
		outcome := class.String()
		if errors.Is(err, errStepTimeout) {
			outcome = "timeout"
		}
		e.cfg.Metrics.ObserveStepAttempt(ctx, r.app.CompanyConfigID, step.ID, outcome, duration)

		switch class {
		case portal.ClassNeedsUserInput:
			logger.Infof("Step needs user input: %s", err)
			if err := r.record(ctx, step.ID, attempt, model.StepStatusError, err.Error(), true); err != nil {
				return r.persistOutcome(ctx, err)
			}
			return stepOutcome{kind: outcomeBlocked, reason: fmt.Sprintf("step %s: %s", step.ID, err)}

		case portal.ClassFatal:
			logger.Warningf("Step failed: %s", err)
			if err := r.record(ctx, step.ID, attempt, model.StepStatusError, err.Error(), false); err != nil {
				return r.persistOutcome(ctx, err)
			}
			return stepOutcome{kind: outcomeFailed, reason: fmt.Sprintf("step %s: %s", step.ID, err)}

		case portal.ClassTransient:
			if attempt >= e.cfg.MaxAttempts {
				logger.Warningf("Step retries exhausted after %d attempts: %s", attempt, err)
				if err := r.record(ctx, step.ID, attempt, model.StepStatusError, err.Error(), true); err != nil {
					return r.persistOutcome(ctx, err)
				}
				return stepOutcome{kind: outcomeBlocked, reason: fmt.Sprintf("step %s: retries exhausted after %d attempts: %s", step.ID, attempt, err)}
			}

			if err := r.record(ctx, step.ID, attempt, model.StepStatusError, err.Error(), false); err != nil {
				return r.persistOutcome(ctx, err)
			}
			backoff := e.backoff(attempt)
			logger.Debugf("Step attempt %d failed, retrying in %s: %s", attempt, backoff, err)
			if err := e.wait(ctx, backoff); err != nil {
				return stepOutcome{kind: outcomeInterrupted}
			}

		default:
			logger.Warningf("Step failed with unclassified error: %s", err)
			if err := r.record(ctx, step.ID, attempt, model.StepStatusError, err.Error(), true); err != nil {
				return r.persistOutcome(ctx, err)
			}
			return stepOutcome{kind: outcomeBlocked, reason: fmt.Sprintf("step %s: %s", step.ID, err)}
		}
	}
}

// attempt resolves the step values and executes the step on the portal under the step timeout.
func (r *run) attempt(ctx context.Context, step model.StepDefinition, attempt int) (*portal.StepResult, error) {
	e := r.engine

	if r.profile == nil {
		p, err := e.cfg.Profiles.GetProfile(ctx, r.app.UserID)
		if err != nil {
			if errors.Is(err, model.ErrNotFound) {
				return nil, &portal.NeedsUserInputError{Reason: "user profile is missing"}
			}
			return nil, &portal.TransientError{Reason: "could not load user profile", Err: err}
		}
		r.profile = p
	}

	values, err := profile.ResolveValues(r.app.Template, step, *r.profile)
	if err != nil {
		var missing *profile.MissingValuesError
		if errors.As(err, &missing) {
			return nil, &portal.NeedsUserInputError{Reason: "missing profile values", Fields: missing.Fields}
		}
		return nil, err
	}

	stepCtx, cancel := context.WithTimeoutCause(ctx, e.cfg.StepTimeout, errStepTimeout)
	defer cancel()

	res, err := e.cfg.Driver.ExecuteStep(stepCtx, portal.StepRequest{
		ApplicationID:   r.app.ID,
		UserID:          r.app.UserID,
		JobURL:          r.app.JobURL,
		CompanyConfigID: r.app.CompanyConfigID,
		Step:            step,
		Attempt:         attempt,
		Values:          values,
		Session:         r.session.Blob,
	})
	if err != nil {
		if ctx.Err() == nil && errors.Is(context.Cause(stepCtx), errStepTimeout) {
			return nil, &portal.TransientError{Reason: "step timed out", Err: errStepTimeout}
		}
		return nil, err
	}
	if res == nil {
		res = &portal.StepResult{}
	}

	return res, nil
}

// complete saves the session and then logs the completion. A crash in between leaves the
// session cursor ahead of the log, reconcile records the missing completion on resume.
func (r *run) complete(ctx context.Context, step model.StepDefinition, attempt int, res *portal.StepResult) error {
	e := r.engine

	if res.Session != nil {
		r.session.Blob = res.Session
	}
	r.session.ApplicationID = r.app.ID
	r.session.Cursor = step.ID
	r.session.UpdatedAt = e.cfg.Clock.Now().UTC()
	if err := e.cfg.Sessions.SaveSession(ctx, r.session); err != nil {
		return fmt.Errorf("could not save session: %w", err)
	}

	return r.record(ctx, step.ID, attempt, model.StepStatusCompleted, res.Details, false)
}

func (r *run) persistOutcome(ctx context.Context, err error) stepOutcome {
	if ctx.Err() != nil {
		return stepOutcome{kind: outcomeInterrupted}
	}
	return stepOutcome{kind: outcomeStorageError, err: err}
}

func (r *run) record(ctx context.Context, stepID string, attempt int, status model.StepStatus, details string, requiresAction bool) error {
	e := r.engine
	now := e.cfg.Clock.Now().UTC()

	entry := model.ApplicationStep{
		ID:             ulid.MustNew(ulid.Timestamp(now), rand.Reader).String(),
		ApplicationID:  r.app.ID,
		Generation:     r.app.Generation,
		StepID:         stepID,
		Attempt:        attempt,
		Status:         status,
		Timestamp:      now,
		Details:        details,
		RequiresAction: requiresAction,
	}
	if err := e.cfg.Log.RecordStep(ctx, entry); err != nil {
		return fmt.Errorf("could not record step %s: %w", stepID, err)
	}
	e.cfg.Notifier.StepRecorded(ctx, entry)

	return nil
}

// recordDetached records an entry after the run context is done.
func (r *run) recordDetached(ctx context.Context, stepID string, attempt int, status model.StepStatus, details string, requiresAction bool) {
	if errors.Is(context.Cause(ctx), errLeaseLost) {
		return
	}

	if err := r.record(context.WithoutCancel(ctx), stepID, attempt, status, details, requiresAction); err != nil {
		r.logger.Errorf("could not record interrupted step: %s", err)
	}
}

// interrupted stops the run when its context is done. Lost leases leave the application
// to the new owner, the rest of the causes block it.
func (r *run) interrupted(ctx, runCtx context.Context) (*Result, error) {
	cause := context.Cause(runCtx)

	switch {
	case errors.Is(cause, errLeaseLost):
		r.logger.Warningf("Application lease lost, stopping run")
		return r.result(), fmt.Errorf("application %s: %w: %w", r.app.ID, errLeaseLost, model.ErrLeaseHeld)
	case errors.Is(cause, errRunTimeout):
		r.logger.Warningf("Run timed out")
		r.finish(ctx, model.RunStateBlocked, "run timed out")
		return r.result(), nil
	}

	r.logger.Infof("Run cancelled")
	r.finish(ctx, model.RunStateBlocked, "run cancelled")
	return r.result(), fmt.Errorf("run cancelled: %w", cause)
}

// finish persists the final state of the run, it uses a context detached from the
// run cancellation so cancelled runs still leave a stable state.
func (r *run) finish(ctx context.Context, state model.RunState, reason string) {
	e := r.engine

	r.app.RunState = state
	r.app.BlockedReason = reason
	if state == model.RunStateCompleted {
		r.app.Progress = 1
	}

	ctx = context.WithoutCancel(ctx)
	if err := r.saveApplication(ctx); err != nil {
		r.logger.Errorf("could not persist %s state: %s", state, err)
	}
	e.cfg.Metrics.IncRunResult(ctx, r.app.CompanyConfigID, string(state))

	if state == model.RunStateBlocked {
		r.logger.Infof("Application blocked: %s", reason)
	}
}

// setProgress never moves the progress backwards within a run.
func (r *run) setProgress(completed int) {
	if p := r.app.ProgressFor(completed); p > r.app.Progress {
		r.app.Progress = p
	}
}

func (r *run) saveApplication(ctx context.Context) error {
	e := r.engine

	r.app.UpdatedAt = e.cfg.Clock.Now().UTC()
	if err := e.cfg.Applications.UpdateApplication(ctx, r.app); err != nil {
		return fmt.Errorf("could not update application: %w", err)
	}
	e.cfg.Notifier.ApplicationChanged(ctx, r.app)

	return nil
}

func (r *run) result() *Result {
	return &Result{
		Application:   r.app,
		ExecutedSteps: r.executed,
	}
}

// backoff returns the wait after a failed attempt: initial * 2^(attempt-1), capped.
func (e *StepEngine) backoff(attempt int) time.Duration {
	d := e.cfg.InitialBackoff
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= e.cfg.MaxBackoff {
			return e.cfg.MaxBackoff
		}
	}
	return d
}

func (e *StepEngine) wait(ctx context.Context, d time.Duration) error {
	t := e.cfg.Clock.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.Chan():
		return nil
	}
}
