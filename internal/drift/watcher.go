package drift

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"

	"github.com/haasonsaas/evalwatch/internal/observability"
)

// Watcher runs drift checks on a cron schedule and notifies on drift.
type Watcher struct {
	detector *Detector
	notifier *Notifier
	models   []string
	logger   *observability.Logger
	cron     *cron.Cron
}

// NewWatcher creates a watcher over the given models. notifier may be nil
// when alerting is not configured.
func NewWatcher(detector *Detector, notifier *Notifier, models []string, logger *observability.Logger) *Watcher {
	return &Watcher{
		detector: detector,
		notifier: notifier,
		models:   models,
		logger:   logger,
		cron:     cron.New(),
	}
}

// CheckAll runs one drift check per model and fires alerts for every model
// that drifted. A failed check for one model does not stop the rest.
func (w *Watcher) CheckAll(ctx context.Context) []Verdict {
	verdicts := make([]Verdict, 0, len(w.models))
	for _, model := range w.models {
		verdict, err := w.detector.Check(ctx, model)
		if err != nil {
			w.logger.Error(ctx, "drift check failed", "model", model, "error", err)
			continue
		}
		verdicts = append(verdicts, verdict)
		if verdict.HasDrifted && w.notifier != nil {
			w.notifier.Notify(ctx, verdict)
		}
	}
	return verdicts
}

// Start schedules CheckAll on the given cron expression (standard five-field
// syntax) and begins running.
func (w *Watcher) Start(schedule string) error {
	_, err := w.cron.AddFunc(schedule, func() {
		w.CheckAll(context.Background())
	})
	if err != nil {
		return fmt.Errorf("invalid drift schedule %q: %w", schedule, err)
	}
	w.cron.Start()
	w.logger.Info(context.Background(), "drift watcher started",
		"schedule", schedule, "models", len(w.models))
	return nil
}

// Stop halts the schedule and returns a context that closes once any
// in-flight check completes.
func (w *Watcher) Stop() context.Context {
	return w.cron.Stop()
}
