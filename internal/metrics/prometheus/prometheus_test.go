package prometheus_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/applyflow/applyflow/internal/metrics/prometheus"
)

func TestRecorder(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	rec, err := prometheus.NewRecorder(reg)
	require.NoError(t, err)

	rec.ObserveStepAttempt(ctx, "acme", "account", "completed", time.Second)
	rec.ObserveStepAttempt(ctx, "acme", "account", "transient", 2*time.Second)
	rec.IncRunResult(ctx, "acme", "completed")
	rec.IncLeaseContention(ctx)
	rec.SetPortalCircuitState(ctx, "jobs.acme.com", 2)

	expected := `
# HELP applyflow_engine_step_attempts_total Total step execution attempts by company, step and outcome.
# TYPE applyflow_engine_step_attempts_total counter
applyflow_engine_step_attempts_total{company="acme",outcome="completed",step="account"} 1
applyflow_engine_step_attempts_total{company="acme",outcome="transient",step="account"} 1
# HELP applyflow_engine_run_results_total Total engine runs by company and resulting run state.
# TYPE applyflow_engine_run_results_total counter
applyflow_engine_run_results_total{company="acme",run_state="completed"} 1
# HELP applyflow_engine_lease_contentions_total Total runs rejected because the application was already running.
# TYPE applyflow_engine_lease_contentions_total counter
applyflow_engine_lease_contentions_total 1
# HELP applyflow_portal_circuit_state Portal circuit breaker state (0=closed, 1=half-open, 2=open).
# TYPE applyflow_portal_circuit_state gauge
applyflow_portal_circuit_state{domain="jobs.acme.com"} 2
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"applyflow_engine_step_attempts_total",
		"applyflow_engine_run_results_total",
		"applyflow_engine_lease_contentions_total",
		"applyflow_portal_circuit_state",
	)
	assert.NoError(t, err)

	// Registering twice on the same registry must fail.
	_, err = prometheus.NewRecorder(reg)
	assert.Error(t, err)
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := prometheus.NewRecorder(reg)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	prometheus.Handler(reg).ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}
