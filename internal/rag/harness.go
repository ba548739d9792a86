package rag

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/evalwatch/internal/dataset"
	"github.com/haasonsaas/evalwatch/internal/eval"
	"github.com/haasonsaas/evalwatch/internal/observability"
)

// QuestionRunner evaluates one (model, RAG question) pair. *Evaluator
// satisfies it.
type QuestionRunner interface {
	EvaluateQuestion(ctx context.Context, model string, q dataset.RAGQuestion) Result
}

// RunSaver persists one completed RAG model run. Persistence failures are
// logged and never abort the run.
type RunSaver interface {
	SaveRAGRun(ctx context.Context, run *ModelRun) (string, error)
}

// Harness fans RAG evaluation out across questions and models with the same
// two bounded pools as the text harness.
type Harness struct {
	runner          QuestionRunner
	saver           RunSaver
	logger          *observability.Logger
	metrics         *observability.Metrics
	modelWorkers    int
	questionWorkers int
}

// NewHarness creates a RAG harness. saver may be nil for dry runs.
func NewHarness(runner QuestionRunner, saver RunSaver, logger *observability.Logger, metrics *observability.Metrics, cfg eval.HarnessConfig) *Harness {
	h := &Harness{
		runner:          runner,
		saver:           saver,
		logger:          logger,
		metrics:         metrics,
		modelWorkers:    cfg.ModelWorkers,
		questionWorkers: cfg.QuestionWorkers,
	}
	if h.modelWorkers <= 0 {
		h.modelWorkers = eval.DefaultModelWorkers
	}
	if h.questionWorkers <= 0 {
		h.questionWorkers = eval.DefaultQuestionWorkers
	}
	return h
}

// Run evaluates every model against every RAG question, returning one
// summary per model in completion order.
func (h *Harness) Run(ctx context.Context, models []string, questions []dataset.RAGQuestion) []*ModelRun {
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

func (h *Harness) runModel(ctx context.Context, model string, questions []dataset.RAGQuestion) (run *ModelRun) {
	start := time.Now()
	run = &ModelRun{Model: model}
	defer func() {
		if r := recover(); r != nil {
			run.Results = nil
			run.Err = fmt.Sprintf("evaluation aborted: %v", r)
			run.EvaluationTime = time.Since(start)
			h.logger.Error(ctx, "rag evaluation failed", "model", model, "error", run.Err)
		}
	}()

	h.logger.Info(ctx, "evaluating model over rag dataset", "model", model, "questions", len(questions))

	sem := make(chan struct{}, h.questionWorkers)
	results := make(chan Result, len(questions))
	var wg sync.WaitGroup
	var panicMu sync.Mutex
	var panicked any
	for _, q := range questions {
		wg.Add(1)
		go func(q dataset.RAGQuestion) {
			defer wg.Done()
			// Surface worker panics in this model's goroutine so the
			// deferred recover above folds them into the run summary.
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

	for res := range results {
		run.Results = append(run.Results, res)
		h.observe(model, res)
	}
	run.EvaluationTime = time.Since(start)

	h.logger.Info(ctx, "rag evaluation complete",
		"model", model,
		"avg_recall", run.AvgRecall(),
		"avg_answer_score", run.AvgAnswerScore(),
		"elapsed", run.EvaluationTime)
	return run
}

func (h *Harness) persist(ctx context.Context, run *ModelRun) {
	if h.saver == nil {
		return
	}
	runID, err := h.saver.SaveRAGRun(ctx, run)
	if err != nil {
		h.logger.Warn(ctx, "saving rag run failed", "model", run.Model, "error", err)
		return
	}
	h.logger.Info(ctx, "rag run saved", "model", run.Model, "run_id", runID)
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
	if res.GenerationTime > 0 {
		h.metrics.ModelCallDuration.WithLabelValues(model).Observe(res.GenerationTime.Seconds())
	}
}
