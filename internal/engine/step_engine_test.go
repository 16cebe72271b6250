package engine_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applyflow/applyflow/internal/engine"
	"github.com/applyflow/applyflow/internal/lease"
	leasememory "github.com/applyflow/applyflow/internal/lease/memory"
	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/portal"
	"github.com/applyflow/applyflow/internal/portal/fake"
	"github.com/applyflow/applyflow/internal/storage/memory"
)

type driverFunc func(ctx context.Context, req portal.StepRequest) (*portal.StepResult, error)

func (d driverFunc) ExecuteStep(ctx context.Context, req portal.StepRequest) (*portal.StepResult, error) {
	return d(ctx, req)
}

type staticProfiles struct{ profile model.Profile }

func (s staticProfiles) GetProfile(ctx context.Context, userID string) (*model.Profile, error) {
	p := s.profile
	return &p, nil
}

type progressRecorder struct {
	mu       sync.Mutex
	progress []float64
	entries  int
}

func (p *progressRecorder) StepRecorded(ctx context.Context, s model.ApplicationStep) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries++
}

func (p *progressRecorder) ApplicationChanged(ctx context.Context, a model.Application) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.progress = append(p.progress, a.Progress)
}

func fullProfile() model.Profile {
	return model.Profile{
		UserID:  "user-1",
		Email:   "ada@example.com",
		Answers: map[string]string{"sponsorship": "no"},
	}
}

func applicationFixture() model.Application {
	return model.Application{
		ID:              "app-1",
		UserID:          "user-1",
		JobURL:          "https://jobs.acme.com/posting/1",
		CompanyConfigID: "acme",
		Template: model.ApplicationTemplate{
			ID:              "acme-v1",
			CompanyConfigID: "acme",
			Version:         1,
			Steps: []model.StepDefinition{
				{ID: "account", Bindings: []model.FieldBinding{{FieldID: "email", Source: "personal.email"}}},
				{ID: "questions", RequiresManualAnswer: true, Bindings: []model.FieldBinding{{FieldID: "sponsorship", Source: "answer:sponsorship"}}},
				{ID: "submit"},
			},
			Fields: map[string]model.FormField{
				"email":       {ID: "email", Kind: model.FieldKindText, Required: true},
				"sponsorship": {ID: "sponsorship", Kind: model.FieldKindSelect, Options: []string{"yes", "no"}},
			},
		},
		Status:    model.ApplicationStatusPending,
		RunState:  model.RunStateNotStarted,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
}

type testEnv struct {
	repo     *memory.Repository
	clock    clockwork.Clock
	notifier *progressRecorder
}

func newTestEnv(t *testing.T, app model.Application) testEnv {
	t.Helper()
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	require.NoError(t, repo.CreateApplication(context.Background(), app))

	return testEnv{
		repo:     repo,
		clock:    clockwork.NewFakeClock(),
		notifier: &progressRecorder{},
	}
}

func (e testEnv) newEngine(t *testing.T, driver portal.Driver, p model.Profile, mod func(cfg *engine.StepEngineConfig)) *engine.StepEngine {
	t.Helper()
	cfg := engine.StepEngineConfig{
		Applications:   e.repo,
		Sessions:       e.repo,
		Log:            e.repo,
		History:        e.repo,
		Profiles:       staticProfiles{profile: p},
		Driver:         driver,
		Notifier:       e.notifier,
		Clock:          e.clock,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		StepTimeout:    time.Minute,
		Logger:         log.Noop,
	}
	if mod != nil {
		mod(&cfg)
	}
	eng, err := engine.NewStepEngine(cfg)
	require.NoError(t, err)
	return eng
}

func (e testEnv) newFakeDriver(t *testing.T, script map[string][]fake.Outcome) *fake.Driver {
	t.Helper()
	d, err := fake.NewDriver(fake.DriverConfig{Script: script, Clock: e.clock})
	require.NoError(t, err)
	return d
}

// run executes the engine advancing the fake clock every time the run waits on it.
func (e testEnv) run(t *testing.T, ctx context.Context, eng *engine.StepEngine, appID string) (*engine.Result, error) {
	t.Helper()
	type out struct {
		res *engine.Result
		err error
	}
	done := make(chan out, 1)
	go func() {
		res, err := eng.Run(ctx, appID)
		done <- out{res: res, err: err}
	}()

	fc := e.clock.(*clockwork.FakeClock)
	for {
		select {
		case o := <-done:
			return o.res, o.err
		case <-time.After(10 * time.Second):
			t.Fatal("engine run didn't finish")
		default:
		}

		waitCtx, cancel := context.WithTimeout(context.Background(), 5*time.Millisecond)
		if err := fc.BlockUntilContext(waitCtx, 1); err == nil {
			fc.Advance(time.Minute)
		}
		cancel()
	}
}

func (e testEnv) steps(t *testing.T) []model.ApplicationStep {
	t.Helper()
	entries, err := e.repo.ListSteps(context.Background(), "app-1")
	require.NoError(t, err)
	return entries
}

type entryView struct {
	StepID         string
	Attempt        int
	Status         model.StepStatus
	RequiresAction bool
}

func view(entries []model.ApplicationStep) []entryView {
	v := make([]entryView, 0, len(entries))
	for _, e := range entries {
		v = append(v, entryView{StepID: e.StepID, Attempt: e.Attempt, Status: e.Status, RequiresAction: e.RequiresAction})
	}
	return v
}

func TestNewStepEngine(t *testing.T) {
	repo, err := memory.NewRepository(memory.RepositoryConfig{})
	require.NoError(t, err)
	driver := driverFunc(func(context.Context, portal.StepRequest) (*portal.StepResult, error) { return nil, nil })

	tests := map[string]struct {
		cfg    engine.StepEngineConfig
		errMsg string
	}{
		"Valid config with defaults": {
			cfg: engine.StepEngineConfig{Applications: repo, Sessions: repo, Log: repo, History: repo, Profiles: staticProfiles{}, Driver: driver},
		},
		"Missing driver returns error": {
			cfg:    engine.StepEngineConfig{Applications: repo, Sessions: repo, Log: repo, History: repo, Profiles: staticProfiles{}},
			errMsg: "portal driver is required",
		},
		"Missing session store returns error": {
			cfg:    engine.StepEngineConfig{Applications: repo, Log: repo, History: repo, Profiles: staticProfiles{}, Driver: driver},
			errMsg: "session store is required",
		},
		"Max backoff lower than initial returns error": {
			cfg: engine.StepEngineConfig{
				Applications: repo, Sessions: repo, Log: repo, History: repo, Profiles: staticProfiles{}, Driver: driver,
				InitialBackoff: time.Minute, MaxBackoff: time.Second,
			},
			errMsg: "max backoff",
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			eng, err := engine.NewStepEngine(test.cfg)
			if test.errMsg != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), test.errMsg)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, eng)
		})
	}
}

func TestStepEngineRunOutcomes(t *testing.T) {
	tests := map[string]struct {
		script       map[string][]fake.Outcome
		profile      model.Profile
		expState     model.RunState
		expStatus    model.ApplicationStatus
		expProgress  float64
		expCursor    string
		expCalls     []string
		expEntries   []entryView
		expReasonMsg string
	}{
		"All steps succeeding should complete the application logging one completion per step in order": {
			profile:     fullProfile(),
			expState:    model.RunStateCompleted,
			expStatus:   model.ApplicationStatusApplied,
			expProgress: 1,
			expCursor:   "submit",
			expCalls:    []string{"account", "questions", "submit"},
			expEntries: []entryView{
				{StepID: "account", Attempt: 1, Status: model.StepStatusPending},
				{StepID: "account", Attempt: 1, Status: model.StepStatusCompleted},
				{StepID: "questions", Attempt: 1, Status: model.StepStatusPending},
				{StepID: "questions", Attempt: 1, Status: model.StepStatusCompleted},
				{StepID: "submit", Attempt: 1, Status: model.StepStatusPending},
				{StepID: "submit", Attempt: 1, Status: model.StepStatusCompleted},
			},
		},
		"A step needing user input should block and never attempt the next steps": {
			profile: fullProfile(),
			script: map[string][]fake.Outcome{
				"questions": {{Err: &portal.NeedsUserInputError{Reason: "custom question", Fields: []string{"why_us"}}}},
			},
			expState:     model.RunStateBlocked,
			expStatus:    model.ApplicationStatusPending,
			expProgress:  1.0 / 3.0,
			expCursor:    "account",
			expCalls:     []string{"account", "questions"},
			expReasonMsg: "user input required",
			expEntries: []entryView{
				{StepID: "account", Attempt: 1, Status: model.StepStatusPending},
				{StepID: "account", Attempt: 1, Status: model.StepStatusCompleted},
				{StepID: "questions", Attempt: 1, Status: model.StepStatusPending},
				{StepID: "questions", Attempt: 1, Status: model.StepStatusError, RequiresAction: true},
			},
		},
		"Missing profile values should block before calling the portal": {
			profile:      model.Profile{UserID: "user-1", Email: "ada@example.com"},
			expState:     model.RunStateBlocked,
			expStatus:    model.ApplicationStatusPending,
			expProgress:  1.0 / 3.0,
			expCursor:    "account",
			expCalls:     []string{"account"},
			expReasonMsg: "sponsorship",
			expEntries: []entryView{
				{StepID: "account", Attempt: 1, Status: model.StepStatusPending},
				{StepID: "account", Attempt: 1, Status: model.StepStatusCompleted},
				{StepID: "questions", Attempt: 1, Status: model.StepStatusPending},
				{StepID: "questions", Attempt: 1, Status: model.StepStatusError, RequiresAction: true},
			},
		},
		"Transient errors should be retried until the step succeeds": {
			profile: fullProfile(),
			script: map[string][]fake.Outcome{
				"account": {
					{Err: &portal.TransientError{Reason: "502"}},
					{Err: &portal.TransientError{Reason: "502"}},
					{},
				},
			},
			expState:    model.RunStateCompleted,
			expStatus:   model.ApplicationStatusApplied,
			expProgress: 1,
			expCursor:   "submit",
			expCalls:    []string{"account", "account", "account", "questions", "submit"},
			expEntries: []entryView{
				{StepID: "account", Attempt: 1, Status: model.StepStatusPending},
				{StepID: "account", Attempt: 1, Status: model.StepStatusError},
				{StepID: "account", Attempt: 2, Status: model.StepStatusPending},
				{StepID: "account", Attempt: 2, Status: model.StepStatusError},
				{StepID: "account", Attempt: 3, Status: model.StepStatusPending},
				{StepID: "account", Attempt: 3, Status: model.StepStatusCompleted},
				{StepID: "questions", Attempt: 1, Status: model.StepStatusPending},
				{StepID: "questions", Attempt: 1, Status: model.StepStatusCompleted},
				{StepID: "submit", Attempt: 1, Status: model.StepStatusPending},
				{StepID: "submit", Attempt: 1, Status: model.StepStatusCompleted},
			},
		},
		"Exhausted retries should block with a final error requiring action": {
			profile: fullProfile(),
			script: map[string][]fake.Outcome{
				"submit": {{Err: &portal.TransientError{Reason: "503"}}},
			},
			expState:     model.RunStateBlocked,
			expStatus:    model.ApplicationStatusPending,
			expProgress:  2.0 / 3.0,
			expCursor:    "questions",
			expCalls:     []string{"account", "questions", "submit", "submit", "submit"},
			expReasonMsg: "retries exhausted after 3 attempts",
			expEntries: []entryView{
				{StepID: "account", Attempt: 1, Status: model.StepStatusPending},
				{StepID: "account", Attempt: 1, Status: model.StepStatusCompleted},
				{StepID: "questions", Attempt: 1, Status: model.StepStatusPending},
				{StepID: "questions", Attempt: 1, Status: model.StepStatusCompleted},
				{StepID: "submit", Attempt: 1, Status: model.StepStatusPending},
				{StepID: "submit", Attempt: 1, Status: model.StepStatusError},
				{StepID: "submit", Attempt: 2, Status: model.StepStatusPending},
				{StepID: "submit", Attempt: 2, Status: model.StepStatusError},
				{StepID: "submit", Attempt: 3, Status: model.StepStatusPending},
				{StepID: "submit", Attempt: 3, Status: model.StepStatusError, RequiresAction: true},
			},
		},
		"Fatal errors should fail the application": {
			profile: fullProfile(),
			script: map[string][]fake.Outcome{
				"account": {{Err: &portal.FatalError{Reason: "posting closed"}}},
			},
			expState:     model.RunStateFailed,
			expStatus:    model.ApplicationStatusPending,
			expProgress:  0,
			expCalls:     []string{"account"},
			expReasonMsg: "posting closed",
			expEntries: []entryView{
				{StepID: "account", Attempt: 1, Status: model.StepStatusPending},
				{StepID: "account", Attempt: 1, Status: model.StepStatusError},
			},
		},
		"Unclassified errors should block without retrying": {
			profile: fullProfile(),
			script: map[string][]fake.Outcome{
				"account": {{Err: errors.New("driver exploded")}},
			},
			expState:     model.RunStateBlocked,
			expStatus:    model.ApplicationStatusPending,
			expProgress:  0,
			expCalls:     []string{"account"},
			expReasonMsg: "driver exploded",
			expEntries: []entryView{
				{StepID: "account", Attempt: 1, Status: model.StepStatusPending},
				{StepID: "account", Attempt: 1, Status: model.StepStatusError, RequiresAction: true},
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			env := newTestEnv(t, applicationFixture())
			driver := env.newFakeDriver(t, test.script)
			eng := env.newEngine(t, driver, test.profile, nil)

			res, err := env.run(t, context.Background(), eng, "app-1")
			require.NoError(t, err)

			assert.Equal(t, test.expState, res.Application.RunState)
			assert.Equal(t, test.expStatus, res.Application.Status)
			assert.InDelta(t, test.expProgress, res.Application.Progress, 0.0001)
			assert.Contains(t, res.Application.BlockedReason, test.expReasonMsg)
			assert.Equal(t, test.expCalls, driver.CalledSteps())
			assert.Equal(t, test.expEntries, view(env.steps(t)))

			stored, err := env.repo.GetApplication(context.Background(), "app-1")
			require.NoError(t, err)
			assert.Equal(t, res.Application.RunState, stored.RunState)
			assert.Equal(t, res.Application.Progress, stored.Progress)

			session, err := env.repo.LoadSession(context.Background(), "app-1")
			if test.expCursor == "" {
				assert.ErrorIs(t, err, model.ErrNotFound)
			} else {
				require.NoError(t, err)
				assert.Equal(t, test.expCursor, session.Cursor)
			}

			// Progress never goes backwards.
			for i := 1; i < len(env.notifier.progress); i++ {
				assert.GreaterOrEqual(t, env.notifier.progress[i], env.notifier.progress[i-1])
			}
		})
	}
}

func TestStepEngineValuesAndSessionReachTheDriver(t *testing.T) {
	env := newTestEnv(t, applicationFixture())

	var reqs []portal.StepRequest
	driver := driverFunc(func(ctx context.Context, req portal.StepRequest) (*portal.StepResult, error) {
		reqs = append(reqs, req)
		if req.Step.ID == "account" {
			return &portal.StepResult{Session: []byte("cookie=1")}, nil
		}
		return &portal.StepResult{}, nil
	})
	eng := env.newEngine(t, driver, fullProfile(), nil)

	_, err := env.run(t, context.Background(), eng, "app-1")
	require.NoError(t, err)
	require.Len(t, reqs, 3)

	assert.Equal(t, []model.FieldValue{{FieldID: "email", Kind: model.FieldKindText, Text: "ada@example.com"}}, reqs[0].Values)
	assert.Nil(t, reqs[0].Session)
	assert.Equal(t, []model.FieldValue{{FieldID: "sponsorship", Kind: model.FieldKindSelect, Choice: "no"}}, reqs[1].Values)
	assert.Equal(t, []byte("cookie=1"), reqs[1].Session)
	// Steps without new driver state keep the previous one.
	assert.Equal(t, []byte("cookie=1"), reqs[2].Session)

	session, err := env.repo.LoadSession(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, []byte("cookie=1"), session.Blob)
}

func TestStepEngineResumeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, applicationFixture())

	// First run blocks on the questions step.
	blocking := env.newFakeDriver(t, map[string][]fake.Outcome{
		"questions": {{Err: &portal.NeedsUserInputError{Reason: "answer required"}}},
	})
	res, err := env.run(t, ctx, env.newEngine(t, blocking, fullProfile(), nil), "app-1")
	require.NoError(t, err)
	require.Equal(t, model.RunStateBlocked, res.Application.RunState)

	// Resume continues at the first incomplete step.
	driver := env.newFakeDriver(t, nil)
	eng := env.newEngine(t, driver, fullProfile(), nil)
	res, err = env.run(t, ctx, eng, "app-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStateCompleted, res.Application.RunState)
	assert.Equal(t, []string{"questions", "submit"}, res.ExecutedSteps)
	assert.Equal(t, []string{"questions", "submit"}, driver.CalledSteps())
	assert.Empty(t, res.Application.BlockedReason)

	// Resuming a completed application does nothing.
	res, err = env.run(t, ctx, eng, "app-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStateCompleted, res.Application.RunState)
	assert.Empty(t, res.ExecutedSteps)
	assert.Equal(t, []string{"questions", "submit"}, driver.CalledSteps())

	// Every step has exactly one completed entry.
	completed := map[string]int{}
	for _, e := range env.steps(t) {
		if e.Status == model.StepStatusCompleted {
			completed[e.StepID]++
		}
	}
	assert.Equal(t, map[string]int{"account": 1, "questions": 1, "submit": 1}, completed)
}

func TestStepEngineResumeReconcilesFromStepLog(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, applicationFixture())

	// A crash after logging the completion but before saving the session.
	require.NoError(t, env.repo.RecordStep(ctx, model.ApplicationStep{ID: "e1", ApplicationID: "app-1", StepID: "account", Attempt: 1, Status: model.StepStatusCompleted}))

	driver := env.newFakeDriver(t, nil)
	res, err := env.run(t, ctx, env.newEngine(t, driver, fullProfile(), nil), "app-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStateCompleted, res.Application.RunState)
	assert.Equal(t, []string{"questions", "submit"}, driver.CalledSteps())
}

func TestStepEngineResumeRecoversCompletionFromSession(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, applicationFixture())

	// A crash after saving the session but before logging the completion.
	require.NoError(t, env.repo.RecordStep(ctx, model.ApplicationStep{ID: "e1", ApplicationID: "app-1", StepID: "account", Attempt: 2, Status: model.StepStatusPending}))
	require.NoError(t, env.repo.SaveSession(ctx, model.SessionData{ApplicationID: "app-1", Cursor: "account", Blob: []byte("cookie=1")}))

	var mu sync.Mutex
	var reqs []portal.StepRequest
	driver := driverFunc(func(ctx context.Context, req portal.StepRequest) (*portal.StepResult, error) {
		mu.Lock()
		defer mu.Unlock()
		reqs = append(reqs, req)
		return &portal.StepResult{}, nil
	})
	res, err := env.run(t, ctx, env.newEngine(t, driver, fullProfile(), nil), "app-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStateCompleted, res.Application.RunState)
	assert.Equal(t, []string{"questions", "submit"}, res.ExecutedSteps)

	// The saved portal session is kept for the next steps.
	require.Len(t, reqs, 2)
	assert.Equal(t, []byte("cookie=1"), reqs[0].Session)

	entries := env.steps(t)
	assert.Equal(t, entryView{StepID: "account", Attempt: 2, Status: model.StepStatusCompleted}, view(entries)[1])
	assert.Equal(t, "recovered from session", entries[1].Details)
}

func TestStepEngineCompletionSavesTheSessionBeforeLogging(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, applicationFixture())

	var cursors []string
	driver := driverFunc(func(ctx context.Context, req portal.StepRequest) (*portal.StepResult, error) {
		return &portal.StepResult{Session: []byte(req.Step.ID)}, nil
	})
	withCheck := func(cfg *engine.StepEngineConfig) {
		cfg.Log = stepLogFunc(func(ctx context.Context, e model.ApplicationStep) error {
			if e.Status == model.StepStatusCompleted {
				s, err := env.repo.LoadSession(ctx, "app-1")
				if !assert.NoError(t, err) {
					return err
				}
				assert.Equal(t, []byte(e.StepID), s.Blob)
				cursors = append(cursors, s.Cursor)
			}
			return env.repo.RecordStep(ctx, e)
		})
	}

	res, err := env.run(t, ctx, env.newEngine(t, driver, fullProfile(), withCheck), "app-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStateCompleted, res.Application.RunState)
	assert.Equal(t, []string{"account", "questions", "submit"}, cursors)
}

type stepLogFunc func(ctx context.Context, e model.ApplicationStep) error

func (f stepLogFunc) RecordStep(ctx context.Context, e model.ApplicationStep) error { return f(ctx, e) }

func TestStepEngineGenerationScopesTheStepLog(t *testing.T) {
	ctx := context.Background()
	app := applicationFixture()
	app.Generation = 1
	env := newTestEnv(t, app)

	// Completed entries of a previous generation (before a restart) are ignored.
	require.NoError(t, env.repo.RecordStep(ctx, model.ApplicationStep{ID: "e1", ApplicationID: "app-1", Generation: 0, StepID: "account", Attempt: 1, Status: model.StepStatusCompleted}))

	driver := env.newFakeDriver(t, nil)
	res, err := env.run(t, ctx, env.newEngine(t, driver, fullProfile(), nil), "app-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStateCompleted, res.Application.RunState)
	assert.Equal(t, []string{"account", "questions", "submit"}, driver.CalledSteps())
	for _, e := range env.steps(t)[1:] {
		assert.Equal(t, 1, e.Generation)
	}
}

func TestStepEngineUnknownStepInLogIsIntegrityError(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, applicationFixture())
	require.NoError(t, env.repo.RecordStep(ctx, model.ApplicationStep{ID: "e1", ApplicationID: "app-1", StepID: "ghost", Attempt: 1, Status: model.StepStatusCompleted}))

	driver := env.newFakeDriver(t, nil)
	_, err := env.run(t, ctx, env.newEngine(t, driver, fullProfile(), nil), "app-1")
	assert.ErrorIs(t, err, model.ErrUnknownStep)
	assert.Empty(t, driver.CalledSteps())
}

func TestStepEngineFailedApplicationIsNotRunAgain(t *testing.T) {
	ctx := context.Background()
	app := applicationFixture()
	app.RunState = model.RunStateFailed
	env := newTestEnv(t, app)

	driver := env.newFakeDriver(t, nil)
	res, err := env.run(t, ctx, env.newEngine(t, driver, fullProfile(), nil), "app-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStateFailed, res.Application.RunState)
	assert.Empty(t, driver.CalledSteps())
}

func TestStepEngineMissingApplication(t *testing.T) {
	env := newTestEnv(t, applicationFixture())
	_, err := env.run(t, context.Background(), env.newEngine(t, env.newFakeDriver(t, nil), fullProfile(), nil), "missing")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestStepEngineConcurrentRunsHaveSingleExecutor(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, applicationFixture())

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	driver := driverFunc(func(ctx context.Context, req portal.StepRequest) (*portal.StepResult, error) {
		once.Do(func() { close(started) })
		<-release
		return &portal.StepResult{}, nil
	})
	eng := env.newEngine(t, driver, fullProfile(), nil)

	resC := make(chan *engine.Result, 1)
	go func() {
		res, err := eng.Run(ctx, "app-1")
		assert.NoError(t, err)
		resC <- res
	}()
	<-started

	var wg sync.WaitGroup
	var held int
	var mu sync.Mutex
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := eng.Run(ctx, "app-1")
			if errors.Is(err, model.ErrLeaseHeld) {
				mu.Lock()
				held++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 5, held)

	close(release)
	res := <-resC
	assert.Equal(t, model.RunStateCompleted, res.Application.RunState)

	// The lease is released at the end of the run.
	res, err := eng.Run(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStateCompleted, res.Application.RunState)
}

func TestStepEngineCallerCancellationBlocks(t *testing.T) {
	env := newTestEnv(t, applicationFixture())

	ctx, cancel := context.WithCancel(context.Background())
	driver := driverFunc(func(dctx context.Context, req portal.StepRequest) (*portal.StepResult, error) {
		if req.Step.ID == "questions" {
			cancel()
			<-dctx.Done()
			return nil, dctx.Err()
		}
		return &portal.StepResult{}, nil
	})
	leaser := leasememory.NewLeaser()
	withLeaser := func(cfg *engine.StepEngineConfig) { cfg.Leaser = leaser }
	eng := env.newEngine(t, driver, fullProfile(), withLeaser)

	res, err := eng.Run(ctx, "app-1")
	assert.ErrorIs(t, err, context.Canceled)
	require.NotNil(t, res)
	assert.Equal(t, model.RunStateBlocked, res.Application.RunState)
	assert.Equal(t, "run cancelled", res.Application.BlockedReason)

	stored, err := env.repo.GetApplication(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStateBlocked, stored.RunState)
	assert.InDelta(t, 1.0/3.0, stored.Progress, 0.0001)

	entries := env.steps(t)
	last := entries[len(entries)-1]
	assert.Equal(t, "questions", last.StepID)
	assert.Equal(t, model.StepStatusError, last.Status)

	// The lease was released.
	res, err = env.newEngine(t, env.newFakeDriver(t, nil), fullProfile(), withLeaser).Run(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStateCompleted, res.Application.RunState)
}

func TestStepEngineTimeouts(t *testing.T) {
	blockUntilDone := driverFunc(func(ctx context.Context, req portal.StepRequest) (*portal.StepResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})

	t.Run("Step timeouts are transient and exhaust the retries", func(t *testing.T) {
		env := newTestEnv(t, applicationFixture())
		eng := env.newEngine(t, blockUntilDone, fullProfile(), func(cfg *engine.StepEngineConfig) {
			cfg.MaxAttempts = 2
			cfg.StepTimeout = 20 * time.Millisecond
		})

		res, err := env.run(t, context.Background(), eng, "app-1")
		require.NoError(t, err)
		assert.Equal(t, model.RunStateBlocked, res.Application.RunState)
		assert.Contains(t, res.Application.BlockedReason, "step timed out")
		assert.Equal(t, []entryView{
			{StepID: "account", Attempt: 1, Status: model.StepStatusPending},
			{StepID: "account", Attempt: 1, Status: model.StepStatusError},
			{StepID: "account", Attempt: 2, Status: model.StepStatusPending},
			{StepID: "account", Attempt: 2, Status: model.StepStatusError, RequiresAction: true},
		}, view(env.steps(t)))
	})

	t.Run("Run timeouts block the application", func(t *testing.T) {
		env := newTestEnv(t, applicationFixture())
		eng := env.newEngine(t, blockUntilDone, fullProfile(), func(cfg *engine.StepEngineConfig) {
			cfg.RunTimeout = 20 * time.Millisecond
		})

		res, err := eng.Run(context.Background(), "app-1")
		require.NoError(t, err)
		assert.Equal(t, model.RunStateBlocked, res.Application.RunState)
		assert.Equal(t, "run timed out", res.Application.BlockedReason)
	})
}

func TestStepEngineBackoffWaitsOnTheClock(t *testing.T) {
	env := newTestEnv(t, applicationFixture())
	fc := env.clock.(*clockwork.FakeClock)

	var mu sync.Mutex
	var calls []time.Time
	driver := driverFunc(func(ctx context.Context, req portal.StepRequest) (*portal.StepResult, error) {
		mu.Lock()
		defer mu.Unlock()
		if req.Step.ID != "account" {
			return &portal.StepResult{}, nil
		}
		calls = append(calls, fc.Now())
		if len(calls) < 3 {
			return nil, &portal.TransientError{Reason: "502"}
		}
		return &portal.StepResult{}, nil
	})
	eng := env.newEngine(t, driver, fullProfile(), nil)

	errC := make(chan error, 1)
	go func() {
		_, err := eng.Run(context.Background(), "app-1")
		errC <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(time.Second)
	require.NoError(t, fc.BlockUntilContext(ctx, 1))
	fc.Advance(2 * time.Second)
	require.NoError(t, <-errC)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, calls, 3)
	assert.Equal(t, time.Second, calls[1].Sub(calls[0]))
	assert.Equal(t, 2*time.Second, calls[2].Sub(calls[1]))
}

type lostLeaser struct {
	lost     chan struct{}
	released chan struct{}
}

func (l *lostLeaser) Acquire(ctx context.Context, key string) (lease.Lease, error) {
	return l, nil
}

func (l *lostLeaser) Key() string           { return "app-1" }
func (l *lostLeaser) Lost() <-chan struct{} { return l.lost }
func (l *lostLeaser) Release(ctx context.Context) error {
	close(l.released)
	return nil
}

func TestStepEngineLostLeaseStopsWithoutWriting(t *testing.T) {
	env := newTestEnv(t, applicationFixture())
	leaser := &lostLeaser{lost: make(chan struct{}), released: make(chan struct{})}

	driver := driverFunc(func(ctx context.Context, req portal.StepRequest) (*portal.StepResult, error) {
		if req.Step.ID == "questions" {
			close(leaser.lost)
			<-ctx.Done()
			return nil, ctx.Err()
		}
		return &portal.StepResult{}, nil
	})
	eng := env.newEngine(t, driver, fullProfile(), func(cfg *engine.StepEngineConfig) {
		cfg.Leaser = leaser
	})

	_, err := eng.Run(context.Background(), "app-1")
	assert.ErrorIs(t, err, model.ErrLeaseHeld)
	<-leaser.released

	// The new owner continues from the last persisted state.
	stored, err := env.repo.GetApplication(context.Background(), "app-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStateRunning, stored.RunState)
	assert.Empty(t, stored.BlockedReason)

	entries := env.steps(t)
	last := entries[len(entries)-1]
	assert.Equal(t, "questions", last.StepID)
	assert.Equal(t, model.StepStatusPending, last.Status)
}
