// Package metrics exposes run counters in a private Prometheus registry and pushes
// them to a Pushgateway at the end of a run.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"

	awsclient "github.com/younsl/autoprotect/pkg/aws"
)

const namespace = "autoprotect"

// Recorder holds the metrics of one run
type Recorder struct {
	registry *prometheus.Registry

	// decisions counts terminal verdicts.
	// Labels: region, verdict, reason
	decisions *prometheus.CounterVec

	// remediations counts executor outcomes.
	// Labels: region, outcome, cause
	remediations *prometheus.CounterVec

	// discoveryErrors counts regions that could not be fully enumerated.
	// Labels: region
	discoveryErrors *prometheus.CounterVec

	// apiCalls is the per-operation call count snapshot taken at the end of the run.
	// Labels: region, operation, result (success, failure, throttled)
	apiCalls *prometheus.GaugeVec

	runDuration   prometheus.Gauge
	lastRunFinish prometheus.Gauge
}

// NewRecorder registers the run metrics in a fresh registry
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		decisions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "decisions_total",
			Help:      "Risk engine decisions by verdict and skip reason",
		}, []string{"region", "verdict", "reason"}),
		remediations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "remediations_total",
			Help:      "Remediation outcomes for eligible functions",
		}, []string{"region", "outcome", "cause"}),
		discoveryErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "discovery_errors_total",
			Help:      "Regions whose function listing failed",
		}, []string{"region"}),
		apiCalls: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "api_calls",
			Help:      "AWS API calls made during the run",
		}, []string{"region", "operation", "result"}),
		runDuration: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of the last run",
		}),
		lastRunFinish: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the last run finished",
		}),
	}
}

// Registry returns the private registry
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Decision counts a verdict
func (r *Recorder) Decision(region, verdict, reason string) {
	r.decisions.WithLabelValues(region, verdict, reason).Inc()
}

// Remediation counts an executor outcome
func (r *Recorder) Remediation(region, outcome, cause string) {
	r.remediations.WithLabelValues(region, outcome, cause).Inc()
}

// DiscoveryError counts a failed region listing
func (r *Recorder) DiscoveryError(region string) {
	r.discoveryErrors.WithLabelValues(region).Inc()
}

// ObserveRun records the run duration and completion time
func (r *Recorder) ObserveRun(elapsed time.Duration, finished time.Time) {
	r.runDuration.Set(elapsed.Seconds())
	r.lastRunFinish.Set(float64(finished.Unix()))
}

// ObserveCalls copies the API call counters into gauges
func (r *Recorder) ObserveCalls(stats []awsclient.CallStat) {
	for _, s := range stats {
		r.apiCalls.WithLabelValues(s.Region, s.Operation, "success").Set(float64(s.Success))
		r.apiCalls.WithLabelValues(s.Region, s.Operation, "failure").Set(float64(s.Failure))
		r.apiCalls.WithLabelValues(s.Region, s.Operation, "throttled").Set(float64(s.Throttled))
	}
}

// Push replaces the job's metrics on the Pushgateway
func (r *Recorder) Push(ctx context.Context, url, job string) error {
	err := push.New(url, job).
		Gatherer(r.registry).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics to %s: %w", url, err)
	}
	return nil
}
