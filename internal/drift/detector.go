// Package drift detects model performance regressions across stored
// evaluation runs and fans alerts out to notification channels.
package drift

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/evalwatch/internal/observability"
)

// Record is one historical run's headline metric: accuracy for text runs,
// average recall for RAG runs.
type Record struct {
	RunID     string
	Timestamp time.Time
	Metric    float64
}

// History serves recent run records for a model, newest first. A limit of 0
// means all history. The store package provides implementations for text and
// RAG runs.
type History interface {
	Runs(ctx context.Context, model string, limit int) ([]Record, error)
}

// Verdict is the outcome of one drift check. Drop is the gap between the
// best historical metric and the latest one; drift means the gap strictly
// exceeds the threshold.
type Verdict struct {
	Model       string    `json:"model"`
	MetricName  string    `json:"metric"`
	HasDrifted  bool      `json:"has_drifted"`
	NoData      bool      `json:"no_data"`
	Best        float64   `json:"best"`
	Latest      float64   `json:"latest"`
	Drop        float64   `json:"drop"`
	Threshold   float64   `json:"threshold"`
	BestRunID   string    `json:"best_run_id,omitempty"`
	LatestRunID string    `json:"latest_run_id,omitempty"`
	Runs        int       `json:"runs"`
	CheckedAt   time.Time `json:"checked_at"`
}

// Summary renders the verdict as a one-line alert message.
func (v Verdict) Summary() string {
	if v.NoData {
		return fmt.Sprintf("%s: no evaluation runs recorded, drift unknown", v.Model)
	}
	if v.HasDrifted {
		return fmt.Sprintf("%s: %s dropped %.3f from best %.3f to %.3f (threshold %.3f)",
			v.Model, v.MetricName, v.Drop, v.Best, v.Latest, v.Threshold)
	}
	return fmt.Sprintf("%s: %s healthy at %.3f (best %.3f)", v.Model, v.MetricName, v.Latest, v.Best)
}

// Detector checks one metric stream for drift.
type Detector struct {
	history    History
	metricName string
	threshold  float64
	window     int
	logger     *observability.Logger
	metrics    *observability.Metrics
	tracer     *observability.Tracer
	now        func() time.Time
}

// DetectorConfig configures a drift detector.
type DetectorConfig struct {
	// MetricName labels the metric under watch ("accuracy" or "avg_recall").
	MetricName string
	// Threshold is the maximum tolerated drop from the historical best.
	Threshold float64
	// Window caps how many recent runs each check inspects. 0, the
	// default, inspects all history so the true best run is never aged
	// out of the comparison.
	Window int
	// Tracer emits a span per check; nil disables spans.
	Tracer *observability.Tracer
}

// NewDetector creates a detector over the given run history.
func NewDetector(history History, logger *observability.Logger, metrics *observability.Metrics, cfg DetectorConfig) *Detector {
	d := &Detector{
		history:    history,
		metricName: cfg.MetricName,
		threshold:  cfg.Threshold,
		window:     cfg.Window,
		logger:     logger,
		metrics:    metrics,
		tracer:     cfg.Tracer,
		now:        time.Now,
	}
	if d.metricName == "" {
		d.metricName = "accuracy"
	}
	if d.window < 0 {
		d.window = 0
	}
	return d
}

// Check compares the latest run's metric against the best run on record.
// A drop equal to the threshold is still healthy; only a strictly larger
// drop counts as drift.
func (d *Detector) Check(ctx context.Context, model string) (Verdict, error) {
	ctx, span := d.tracer.Start(ctx, "drift.check",
		attribute.String("drift.model", model),
		attribute.String("drift.metric", d.metricName),
	)
	defer span.End()

	verdict := Verdict{
		Model:      model,
		MetricName: d.metricName,
		Threshold:  d.threshold,
		CheckedAt:  d.now(),
	}

	records, err := d.history.Runs(ctx, model, d.window)
	if err != nil {
		return verdict, fmt.Errorf("load run history for %s: %w", model, err)
	}
	if len(records) == 0 {
		verdict.NoData = true
		d.observe(model, "no_data")
		return verdict, nil
	}

	latest := records[0]
	best := records[0]
	for _, rec := range records {
		if rec.Timestamp.After(latest.Timestamp) {
			latest = rec
		}
		if rec.Metric > best.Metric {
			best = rec
		}
	}

	verdict.Runs = len(records)
	verdict.Best = best.Metric
	verdict.Latest = latest.Metric
	verdict.BestRunID = best.RunID
	verdict.LatestRunID = latest.RunID
	verdict.Drop = best.Metric - latest.Metric
	verdict.HasDrifted = verdict.Drop > d.threshold
	span.SetAttributes(
		attribute.Bool("drift.detected", verdict.HasDrifted),
		attribute.Float64("drift.drop", verdict.Drop),
	)

	if verdict.HasDrifted {
		d.observe(model, "drifted")
		d.logger.Warn(ctx, "drift detected",
			"model", model,
			"metric", d.metricName,
			"best", verdict.Best,
			"latest", verdict.Latest,
			"drop", verdict.Drop,
			"threshold", d.threshold)
	} else {
		d.observe(model, "healthy")
		d.logger.Debug(ctx, "drift check healthy",
			"model", model, "metric", d.metricName, "latest", verdict.Latest)
	}
	return verdict, nil
}

func (d *Detector) observe(model, result string) {
	if d.metrics == nil {
		return
	}
	d.metrics.DriftCheckCounter.WithLabelValues(model, result).Inc()
}
