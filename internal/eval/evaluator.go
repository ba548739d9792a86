package eval

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/evalwatch/internal/dataset"
	"github.com/haasonsaas/evalwatch/internal/judge"
	"github.com/haasonsaas/evalwatch/internal/llm"
	"github.com/haasonsaas/evalwatch/internal/observability"
	"github.com/haasonsaas/evalwatch/internal/retry"
)

const (
	defaultCallTimeout = 120 * time.Second
	defaultMaxTokens   = 300
	systemPrompt       = "You are a helpful assistant."
)

// Scorer produces a verdict for a candidate answer against the expected
// answer. *judge.Judge satisfies it.
type Scorer interface {
	Score(ctx context.Context, expected, candidate string) judge.Verdict
}

// Evaluator evaluates a single question against a single model. It never
// returns an error from EvaluateQuestion: every failure mode is folded into
// the Result with a zero score and diagnostic reasoning.
type Evaluator struct {
	completer   llm.Completer
	scorer      Scorer
	policy      retry.Policy
	logger      *observability.Logger
	tracer      *observability.Tracer
	callTimeout time.Duration
	maxTokens   int
	dataDir     string
}

// EvaluatorConfig configures the question evaluator.
type EvaluatorConfig struct {
	// Policy is the retry policy for transient model-call failures.
	Policy retry.Policy
	// CallTimeout bounds each individual model-call attempt.
	CallTimeout time.Duration
	// MaxTokens limits the model response length.
	MaxTokens int
	// DataDir is the base directory image paths resolve against.
	DataDir string
	// Tracer emits a span per evaluated question; nil disables spans.
	Tracer *observability.Tracer
}

// NewEvaluator creates a question evaluator.
func NewEvaluator(completer llm.Completer, scorer Scorer, logger *observability.Logger, cfg EvaluatorConfig) *Evaluator {
	e := &Evaluator{
		completer:   completer,
		scorer:      scorer,
		policy:      cfg.Policy,
		logger:      logger,
		tracer:      cfg.Tracer,
		callTimeout: cfg.CallTimeout,
		maxTokens:   cfg.MaxTokens,
		dataDir:     cfg.DataDir,
	}
	if e.policy.MaxRetries == 0 && len(e.policy.Backoff) == 0 {
		e.policy = retry.Default()
	}
	if e.policy.Retryable == nil {
		e.policy.Retryable = llm.IsTransient
	}
	if e.callTimeout <= 0 {
		e.callTimeout = defaultCallTimeout
	}
	if e.maxTokens <= 0 {
		e.maxTokens = defaultMaxTokens
	}
	return e
}

// EvaluateQuestion runs one model call plus one judge call and assembles the
// result. Transient transport failures are retried on the fixed backoff
// schedule; a non-success HTTP status or any other error aborts immediately.
func (e *Evaluator) EvaluateQuestion(ctx context.Context, model string, q dataset.Question) Result {
	ctx, span := e.tracer.Start(ctx, "eval.question",
		attribute.String("eval.model", model),
		attribute.String("eval.question_id", q.ID),
	)
	defer span.End()

	result := Result{
		QuestionID:     q.ID,
		Category:       q.Category,
		Input:          q.Input,
		ExpectedOutput: q.ExpectedOutput,
	}

	messages, err := e.buildMessages(q)
	if err != nil {
		// Asset failure: fail the question without spending a model call.
		result.Reasoning = fmt.Sprintf("image could not be prepared: %v", err)
		result.Failed = true
		return result
	}

	var content string
	var latency time.Duration
	outcome := e.policy.Do(ctx, func(attempt int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()

		start := time.Now()
		resp, err := e.completer.Complete(attemptCtx, &llm.Request{
			Model:     model,
			Messages:  messages,
			MaxTokens: e.maxTokens,
		})
		latency = time.Since(start)
		if err != nil {
			if llm.IsTransient(err) {
				e.logger.Warn(ctx, "model call failed, will retry if budget remains",
					"model", model, "question", q.ID, "attempt", attempt, "error", err)
			}
			return err
		}
		content = resp.Content
		return nil
	})
	result.RetryCount = outcome.Retries

	if outcome.Err != nil {
		result.Failed = true
		var status *llm.StatusError
		if errors.As(outcome.Err, &status) {
			// An HTTP response arrived; record its status and keep the latency.
			empty := ""
			result.ModelResponse = &empty
			result.Reasoning = status.Error()
			result.Latency = &latency
			return result
		}
		result.Reasoning = fmt.Sprintf("failed after %d retries: %v", outcome.Retries, outcome.Err)
		return result
	}

	verdict := e.scorer.Score(ctx, q.ExpectedOutput, content)
	reasoning := verdict.Reasoning
	if outcome.Retries > 0 {
		reasoning = fmt.Sprintf("[succeeded after %d retries] %s", outcome.Retries, reasoning)
	}
	result.ModelResponse = &content
	result.Score = judge.Clamp(verdict.Score)
	result.Reasoning = reasoning
	result.Latency = &latency
	return result
}

func (e *Evaluator) buildMessages(q dataset.Question) ([]llm.Message, error) {
	if q.ImagePath == "" {
		return []llm.Message{
			llm.TextMessage(llm.RoleSystem, systemPrompt),
			llm.TextMessage(llm.RoleUser, q.Input),
		}, nil
	}
	dataURL, err := encodeImage(filepath.Join(e.dataDir, q.ImagePath))
	if err != nil {
		return nil, err
	}
	return []llm.Message{
		llm.TextMessage(llm.RoleSystem, systemPrompt),
		{
			Role: llm.RoleUser,
			Parts: []llm.ContentPart{
				{Type: llm.PartText, Text: q.Input},
				{Type: llm.PartImageURL, ImageURL: dataURL},
			},
		},
	}, nil
}
