package observability

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/activerank/activerank/pkg/types"
)

const metricsNamespace = "activerank"

// Metrics holds the Prometheus collectors for ranking runs.
//
// All operations are thread-safe via Prometheus's internal locking.
type Metrics struct {
	// RunsTotal counts finished runs.
	// Labels: strategy, outcome (correct, incorrect, failed)
	RunsTotal *prometheus.CounterVec

	// FailuresTotal counts failed runs by error code.
	// Labels: strategy, code
	FailuresTotal *prometheus.CounterVec

	// QueriesTotal counts worker queries, including those of failed runs.
	// Labels: strategy
	QueriesTotal *prometheus.CounterVec

	// SampleComplexity is the distribution of queries per successful run.
	// Labels: strategy
	SampleComplexity *prometheus.HistogramVec

	// FinalActiveWorkers is the distribution of the active set size at the
	// end of successful runs.
	// Labels: strategy
	FinalActiveWorkers *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg. A nil reg
// leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "runs_total",
				Help:      "Total number of ranking runs by strategy and outcome",
			},
			[]string{"strategy", "outcome"},
		),
		FailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "failures_total",
				Help:      "Total number of failed ranking runs by strategy and error code",
			},
			[]string{"strategy", "code"},
		),
		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Name:      "worker_queries_total",
				Help:      "Total number of worker queries by strategy",
			},
			[]string{"strategy"},
		),
		SampleComplexity: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "sample_complexity",
				Help:      "Worker queries per successful ranking run",
				Buckets:   prometheus.ExponentialBuckets(10, 2, 16),
			},
			[]string{"strategy"},
		),
		FinalActiveWorkers: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Name:      "final_active_workers",
				Help:      "Active worker set size at the end of successful runs",
				Buckets:   []float64{1, 2, 4, 8, 16, 32, 64, 128},
			},
			[]string{"strategy"},
		),
	}

	if reg != nil {
		for _, c := range []prometheus.Collector{
			m.RunsTotal, m.FailuresTotal, m.QueriesTotal, m.SampleComplexity, m.FinalActiveWorkers,
		} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// ObserveRun records a successful run.
func (m *Metrics) ObserveRun(strategy types.StrategyName, complexity int64, finalActive int, correct bool) {
	s := string(strategy)
	outcome := "incorrect"
	if correct {
		outcome = "correct"
	}
	m.RunsTotal.WithLabelValues(s, outcome).Inc()
	m.QueriesTotal.WithLabelValues(s).Add(float64(complexity))
	m.SampleComplexity.WithLabelValues(s).Observe(float64(complexity))
	m.FinalActiveWorkers.WithLabelValues(s).Observe(float64(finalActive))
}

// ObserveFailure records a run that ended with the given error code.
func (m *Metrics) ObserveFailure(strategy types.StrategyName, code string, queries int64) {
	s := string(strategy)
	m.RunsTotal.WithLabelValues(s, "failed").Inc()
	m.FailuresTotal.WithLabelValues(s, code).Inc()
	if queries > 0 {
		m.QueriesTotal.WithLabelValues(s).Add(float64(queries))
	}
}
