package prometheus

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/applyflow/applyflow/internal/metrics"
)

const namespace = "applyflow"

// NewRegistry creates a Prometheus registry with Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

// Handler returns an http.Handler that serves the metrics of a registry.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}

// Recorder is the Prometheus metrics recorder.
type Recorder struct {
	stepAttempts     *prometheus.CounterVec
	stepDuration     *prometheus.HistogramVec
	runResults       *prometheus.CounterVec
	leaseContentions prometheus.Counter
	circuitState     *prometheus.GaugeVec
}

var _ metrics.Recorder = (*Recorder)(nil)

// NewRecorder creates a new Prometheus recorder and registers its metrics.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		stepAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "step_attempts_total",
			Help:      "Total step execution attempts by company, step and outcome.",
		}, []string{"company", "step", "outcome"}),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "step_attempt_duration_seconds",
			Help:      "Duration of step execution attempts by company.",
			Buckets:   []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"company"}),
		runResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "run_results_total",
			Help:      "Total engine runs by company and resulting run state.",
		}, []string{"company", "run_state"}),
		leaseContentions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "engine",
			Name:      "lease_contentions_total",
			Help:      "Total runs rejected because the application was already running.",
		}),
		circuitState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "portal",
			Name:      "circuit_state",
			Help:      "Portal circuit breaker state (0=closed, 1=half-open, 2=open).",
		}, []string{"domain"}),
	}

	for _, c := range []prometheus.Collector{r.stepAttempts, r.stepDuration, r.runResults, r.leaseContentions, r.circuitState} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Recorder) ObserveStepAttempt(_ context.Context, companyID, stepID, outcome string, duration time.Duration) {
	r.stepAttempts.WithLabelValues(companyID, stepID, outcome).Inc()
	r.stepDuration.WithLabelValues(companyID).Observe(duration.Seconds())
}

func (r *Recorder) IncRunResult(_ context.Context, companyID, runState string) {
	r.runResults.WithLabelValues(companyID, runState).Inc()
}

func (r *Recorder) IncLeaseContention(_ context.Context) {
	r.leaseContentions.Inc()
}

func (r *Recorder) SetPortalCircuitState(_ context.Context, domain string, state int) {
	r.circuitState.WithLabelValues(domain).Set(float64(state))
}
