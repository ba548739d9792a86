package eval

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/evalwatch/internal/dataset"
	"github.com/haasonsaas/evalwatch/internal/observability"
)

const (
	// DefaultModelWorkers bounds concurrently evaluated models.
	DefaultModelWorkers = 3
	// DefaultQuestionWorkers bounds concurrent questions per model, keeping
	// total in-flight external calls at modelWorkers * questionWorkers.
	DefaultQuestionWorkers = 5
)

// QuestionRunner evaluates one (model, question) pair. *Evaluator
// satisfies it; tests substitute fakes.
type QuestionRunner interface {
	EvaluateQuestion(ctx context.Context, model string, q dataset.Question) Result
}

// RunSaver persists one completed model run. Persistence failures are
// logged by the harness and never abort the run.
type RunSaver interface {
	SaveRun(ctx context.Context, run *ModelRun) (string, error)
}

// Harness fans the question evaluator out across questions and models with
// two bounded worker pools. It never fails a run for per-question or
// per-model errors; every model yields a summary.
type Harness struct {
	runner          QuestionRunner
	saver           RunSaver
	logger          *observability.Logger
	metrics         *observability.Metrics
	modelWorkers    int
	questionWorkers int
}

// HarnessConfig configures fan-out bounds.
type HarnessConfig struct {
	ModelWorkers    int
	QuestionWorkers int
}

// NewHarness creates a harness. saver may be nil when persistence is not
// wanted (dry runs).
func NewHarness(runner QuestionRunner, saver RunSaver, logger *observability.Logger, metrics *observability.Metrics, cfg HarnessConfig) *Harness {
	h := &Harness{
		runner:          runner,
		saver:           saver,
		logger:          logger,
		metrics:         metrics,
		modelWorkers:    cfg.ModelWorkers,
		questionWorkers: cfg.QuestionWorkers,
	}
	if h.modelWorkers <= 0 {
		h.modelWorkers = DefaultModelWorkers
	}
	if h.questionWorkers <= 0 {
		h.questionWorkers = DefaultQuestionWorkers
	}
	return h
}

// Run evaluates every model against every question and returns one summary
// per model, in completion order. Each summary is handed to the saver as
// soon as it is ready.
func (h *Harness) Run(ctx context.Context, models []string, questions []dataset.Question) []*ModelRun {
	sem := make(chan struct{}, h.modelWorkers)
	var wg sync.WaitGroup
	var mu sync.Mutex
	runs := make([]*ModelRun, 0, len(models))

	for _, model := range models {
		wg.Add(1)
		go func(model string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			run := h.runModel(ctx, model, questions)
			h.persist(ctx, run)

			mu.Lock()
			runs = append(runs, run)
			mu.Unlock()
		}(model)
	}
	wg.Wait()
	return runs
}

// runModel evaluates all questions for one model with a bounded inner pool.
// A panic anywhere in the model's evaluation is isolated into a zero-result
// summary so the remaining models keep going.
func (h *Harness) runModel(ctx context.Context, model string, questions []dataset.Question) (run *ModelRun) {
	start := time.Now()
	run = &ModelRun{Model: model}
	defer func() {
		if r := recover(); r != nil {
			run.Results = nil
			run.Err = fmt.Sprintf("evaluation aborted: %v", r)
			run.EvaluationTime = time.Since(start)
			h.logger.Error(ctx, "model evaluation failed", "model", model, "error", run.Err)
		}
	}()

	h.logger.Info(ctx, "evaluating model", "model", model, "questions", len(questions))

	sem := make(chan struct{}, h.questionWorkers)
	results := make(chan Result, len(questions))
	var wg sync.WaitGroup
	var panicMu sync.Mutex
	var panicked any
	for _, q := range questions {
		wg.Add(1)
		go func(q dataset.Question) {
			defer wg.Done()
			// A worker panic must surface in this model's goroutine, where
			// the deferred recover above folds it into the run summary.
			defer func() {
				if r := recover(); r != nil {
					panicMu.Lock()
					if panicked == nil {
						panicked = r
					}
					panicMu.Unlock()
				}
			}()
			sem <- struct{}{}
			defer func() { <-sem }()
			results <- h.runner.EvaluateQuestion(ctx, model, q)
		}(q)
	}
	wg.Wait()
	close(results)
	if panicked != nil {
		panic(panicked)
	}

	// Completion order; downstream aggregation uses only sums and means.
	for res := range results {
		run.Results = append(run.Results, res)
		h.observe(model, res)
	}
	run.EvaluationTime = time.Since(start)

	h.logger.Info(ctx, "model evaluation complete",
		"model", model,
		"accuracy", run.Accuracy(),
		"elapsed", run.EvaluationTime)
	return run
}

func (h *Harness) persist(ctx context.Context, run *ModelRun) {
	if h.saver == nil {
		return
	}
	runID, err := h.saver.SaveRun(ctx, run)
	if err != nil {
		// The in-memory result stands; the caller can re-persist out of band.
		h.logger.Warn(ctx, "saving run failed", "model", run.Model, "error", err)
		return
	}
	h.logger.Info(ctx, "run saved", "model", run.Model, "run_id", runID)
}

func (h *Harness) observe(model string, res Result) {
	if h.metrics == nil {
		return
	}
	outcome := "completed"
	if res.Failed {
		outcome = "failed"
	}
	h.metrics.EvaluationCounter.WithLabelValues(model, outcome).Inc()
	if res.RetryCount > 0 {
		h.metrics.RetryCounter.WithLabelValues(model).Add(float64(res.RetryCount))
	}
	if res.Latency != nil {
		h.metrics.ModelCallDuration.WithLabelValues(model).Observe(res.Latency.Seconds())
	}
}
