package fake_test

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/portal"
	"github.com/applyflow/applyflow/internal/portal/fake"
)

func request(stepID string) portal.StepRequest {
	return portal.StepRequest{ApplicationID: "app-1", Step: model.StepDefinition{ID: stepID}}
}

func TestDriverScript(t *testing.T) {
	ctx := context.Background()
	d, err := fake.NewDriver(fake.DriverConfig{
		Script: map[string][]fake.Outcome{
			"questions": {
				{Err: &portal.TransientError{Reason: "timeout"}},
				{Session: []byte("s2"), Details: "ok"},
			},
			"closed": {{Err: &portal.FatalError{Reason: "posting closed"}}},
		},
	})
	require.NoError(t, err)

	res, err := d.ExecuteStep(ctx, request("account"))
	require.NoError(t, err)
	assert.Equal(t, []byte("account"), res.Session)

	_, err = d.ExecuteStep(ctx, request("questions"))
	assert.Equal(t, portal.ClassTransient, portal.Classify(err))

	res, err = d.ExecuteStep(ctx, request("questions"))
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Details)

	// Last outcome repeats.
	_, err = d.ExecuteStep(ctx, request("questions"))
	require.NoError(t, err)

	_, err = d.ExecuteStep(ctx, request("closed"))
	assert.Equal(t, portal.ClassFatal, portal.Classify(err))

	assert.Equal(t, []string{"account", "questions", "questions", "questions", "closed"}, d.CalledSteps())
}

func TestDriverLatencyIsCancellable(t *testing.T) {
	clock := clockwork.NewFakeClock()
	d, err := fake.NewDriver(fake.DriverConfig{Latency: time.Minute, Clock: clock})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errC := make(chan error, 1)
	go func() {
		_, err := d.ExecuteStep(ctx, request("account"))
		errC <- err
	}()

	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	cancel()
	assert.ErrorIs(t, <-errC, context.Canceled)

	go func() {
		_, err := d.ExecuteStep(context.Background(), request("account"))
		errC <- err
	}()
	require.NoError(t, clock.BlockUntilContext(context.Background(), 1))
	clock.Advance(time.Minute)
	assert.NoError(t, <-errC)
}
