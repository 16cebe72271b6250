package engine_test

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applyflow/applyflow/internal/engine"
	leasestore "github.com/applyflow/applyflow/internal/lease/store"
	"github.com/applyflow/applyflow/internal/log"
	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/portal"
	"github.com/applyflow/applyflow/internal/storage/sqlite"
)

// newSharedDBEngine creates an engine with its own repository and leaser over the db file,
// like a separate process would.
func newSharedDBEngine(t *testing.T, dbPath string, driver portal.Driver) *engine.StepEngine {
	t.Helper()
	ctx := context.Background()

	repo, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: dbPath, Logger: log.Noop})
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })

	leaser, err := leasestore.NewLeaser(leasestore.LeaserConfig{Repository: repo, Logger: log.Noop})
	require.NoError(t, err)

	eng, err := engine.NewStepEngine(engine.StepEngineConfig{
		Applications:   repo,
		Sessions:       repo,
		Log:            repo,
		History:        repo,
		Profiles:       staticProfiles{profile: fullProfile()},
		Driver:         driver,
		Leaser:         leaser,
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		StepTimeout:    time.Minute,
		Logger:         log.Noop,
	})
	require.NoError(t, err)
	return eng
}

func TestStepEngineEnginesSharingADatabaseHaveSingleExecutor(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "applyflow.db")

	seed, err := sqlite.NewRepository(ctx, sqlite.RepositoryConfig{DBPath: dbPath, Logger: log.Noop})
	require.NoError(t, err)
	require.NoError(t, seed.CreateApplication(ctx, applicationFixture()))
	require.NoError(t, seed.Close())

	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	var mu sync.Mutex
	calls := map[string]int{}
	driver := driverFunc(func(ctx context.Context, req portal.StepRequest) (*portal.StepResult, error) {
		mu.Lock()
		calls[req.Step.ID]++
		mu.Unlock()
		if req.Step.ID == "account" {
			once.Do(func() { close(started) })
			<-release
		}
		return &portal.StepResult{}, nil
	})

	engA := newSharedDBEngine(t, dbPath, driver)
	engB := newSharedDBEngine(t, dbPath, driver)

	resC := make(chan *engine.Result, 1)
	go func() {
		res, err := engA.Run(ctx, "app-1")
		assert.NoError(t, err)
		resC <- res
	}()
	<-started

	_, err = engB.Run(ctx, "app-1")
	assert.ErrorIs(t, err, model.ErrLeaseHeld)

	close(release)
	res := <-resC
	require.NotNil(t, res)
	assert.Equal(t, model.RunStateCompleted, res.Application.RunState)

	// Once released the other engine can take the application, which has nothing left to do.
	res, err = engB.Run(ctx, "app-1")
	require.NoError(t, err)
	assert.Equal(t, model.RunStateCompleted, res.Application.RunState)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, map[string]int{"account": 1, "questions": 1, "submit": 1}, calls)
}
