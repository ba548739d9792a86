package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics collects Prometheus metrics for the evaluation pipeline:
//   - question evaluations by model and outcome
//   - retry volume against the external gateway
//   - model-call and judge-call latency
//   - judge verdict parse failures
//   - drift checks and alert deliveries
type Metrics struct {
	// EvaluationCounter counts question evaluations.
	// Labels: model, outcome (completed|failed)
	EvaluationCounter *prometheus.CounterVec

	// RetryCounter counts model-call retries.
	// Labels: model
	RetryCounter *prometheus.CounterVec

	// ModelCallDuration measures model-call latency in seconds.
	// Labels: model
	// Buckets: 0.5s .. 120s
	ModelCallDuration *prometheus.HistogramVec

	// JudgeParseFailures counts judge responses that missed the JSON
	// verdict contract.
	JudgeParseFailures prometheus.Counter

	// DriftCheckCounter counts drift checks.
	// Labels: model, result (drifted|healthy|no_data)
	DriftCheckCounter *prometheus.CounterVec

	// AlertCounter counts alert deliveries.
	// Labels: channel, status (sent|failed)
	AlertCounter *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics on the given registerer.
// Pass prometheus.DefaultRegisterer in production; tests use a fresh
// registry to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EvaluationCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evalwatch_evaluations_total",
				Help: "Question evaluations by model and outcome.",
			},
			[]string{"model", "outcome"},
		),
		RetryCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evalwatch_model_call_retries_total",
				Help: "Model-call retries by model.",
			},
			[]string{"model"},
		),
		ModelCallDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "evalwatch_model_call_duration_seconds",
				Help:    "Model-call latency in seconds.",
				Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
			},
			[]string{"model"},
		),
		JudgeParseFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "evalwatch_judge_parse_failures_total",
				Help: "Judge responses that were not valid JSON verdicts.",
			},
		),
		DriftCheckCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evalwatch_drift_checks_total",
				Help: "Drift checks by model and result.",
			},
			[]string{"model", "result"},
		),
		AlertCounter: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evalwatch_alerts_total",
				Help: "Alert deliveries by channel and status.",
			},
			[]string{"channel", "status"},
		),
	}
	reg.MustRegister(
		m.EvaluationCounter,
		m.RetryCounter,
		m.ModelCallDuration,
		m.JudgeParseFailures,
		m.DriftCheckCounter,
		m.AlertCounter,
	)
	return m
}
