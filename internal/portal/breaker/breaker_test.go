package breaker_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sony/gobreaker"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/applyflow/applyflow/internal/model"
	"github.com/applyflow/applyflow/internal/portal"
	"github.com/applyflow/applyflow/internal/portal/breaker"
	"github.com/applyflow/applyflow/internal/portal/portalmock"
)

func request(jobURL string) portal.StepRequest {
	return portal.StepRequest{ApplicationID: "app-1", JobURL: jobURL, Step: model.StepDefinition{ID: "account"}}
}

func TestDriverOpensCircuitPerDomain(t *testing.T) {
	ctx := context.Background()
	m := portalmock.NewMockDriver(t)

	acme := mock.MatchedBy(func(r portal.StepRequest) bool { return r.JobURL == "https://jobs.acme.com/1" })
	other := mock.MatchedBy(func(r portal.StepRequest) bool { return r.JobURL == "https://other.io/1" })
	m.On("ExecuteStep", mock.Anything, acme).Times(2).Return(nil, &portal.TransientError{Reason: "502"})
	m.On("ExecuteStep", mock.Anything, other).Once().Return(&portal.StepResult{Details: "ok"}, nil)

	var states []gobreaker.State
	d, err := breaker.NewDriver(breaker.DriverConfig{
		Driver:                 m,
		MaxConsecutiveFailures: 2,
		OpenTimeout:            time.Hour,
		OnStateChange:          func(domain string, s gobreaker.State) { states = append(states, s) },
	})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		_, err := d.ExecuteStep(ctx, request("https://jobs.acme.com/1"))
		assert.Equal(t, portal.ClassTransient, portal.Classify(err))
	}
	assert.Equal(t, gobreaker.StateOpen, d.State("jobs.acme.com"))
	assert.Equal(t, []gobreaker.State{gobreaker.StateOpen}, states)

	// Open circuit doesn't call the portal and is retryable.
	_, err = d.ExecuteStep(ctx, request("https://jobs.acme.com/1"))
	assert.Equal(t, portal.ClassTransient, portal.Classify(err))
	assert.True(t, errors.Is(err, gobreaker.ErrOpenState))

	// Other domains are not affected.
	res, err := d.ExecuteStep(ctx, request("https://other.io/1"))
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Details)
}

func TestDriverIgnoresNonHealthErrors(t *testing.T) {
	ctx := context.Background()
	m := portalmock.NewMockDriver(t)
	m.On("ExecuteStep", mock.Anything, mock.Anything).Once().Return(nil, &portal.FatalError{Reason: "closed"})
	m.On("ExecuteStep", mock.Anything, mock.Anything).Once().Return(nil, &portal.NeedsUserInputError{})
	m.On("ExecuteStep", mock.Anything, mock.Anything).Once().Return(nil, context.Canceled)

	d, err := breaker.NewDriver(breaker.DriverConfig{Driver: m, MaxConsecutiveFailures: 1})
	require.NoError(t, err)

	_, err = d.ExecuteStep(ctx, request("https://jobs.acme.com/1"))
	assert.Equal(t, portal.ClassFatal, portal.Classify(err))
	_, err = d.ExecuteStep(ctx, request("https://jobs.acme.com/1"))
	assert.Equal(t, portal.ClassNeedsUserInput, portal.Classify(err))
	_, err = d.ExecuteStep(ctx, request("https://jobs.acme.com/1"))
	assert.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, gobreaker.StateClosed, d.State("jobs.acme.com"))
}

func TestNewDriverRequiresDriver(t *testing.T) {
	_, err := breaker.NewDriver(breaker.DriverConfig{})
	assert.Error(t, err)
}
