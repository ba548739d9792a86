package rag

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/haasonsaas/evalwatch/internal/dataset"
	"github.com/haasonsaas/evalwatch/internal/judge"
	"github.com/haasonsaas/evalwatch/internal/llm"
	"github.com/haasonsaas/evalwatch/internal/observability"
	"github.com/haasonsaas/evalwatch/internal/retriever"
	"github.com/haasonsaas/evalwatch/internal/retry"
)

const (
	defaultTopK        = 5
	defaultCallTimeout = 120 * time.Second
	defaultMaxTokens   = 300
)

const answerSystemPrompt = "You are a helpful assistant. Answer using ONLY the provided context. " +
	"If the context does not contain the answer, say so."

const answerTemplate = `Context:
%s

Question: %s`

// Searcher serves ranked retrieval with ground-truth scoring.
// *retriever.Retriever satisfies it.
type Searcher interface {
	EvaluateRetrieval(ctx context.Context, query string, relevantIDs []int, topK int) (retriever.Metrics, []retriever.Retrieved, error)
}

// AnswerJudge scores generated answers for correctness and grounding.
// *judge.Judge satisfies it.
type AnswerJudge interface {
	Score(ctx context.Context, expected, candidate string) judge.Verdict
	Grounding(ctx context.Context, question, context_, answer string) judge.Verdict
}

// Evaluator runs the three-phase RAG pipeline per question: retrieve and
// score the ranking, generate an answer over the retrieved context, then
// judge the answer for correctness and grounding.
type Evaluator struct {
	searcher    Searcher
	completer   llm.Completer
	judge       AnswerJudge
	policy      retry.Policy
	logger      *observability.Logger
	tracer      *observability.Tracer
	topK        int
	callTimeout time.Duration
	maxTokens   int
}

// EvaluatorConfig configures the RAG evaluator.
type EvaluatorConfig struct {
	// TopK is how many documents each query retrieves.
	TopK int
	// Policy is the retry policy for transient generation failures.
	Policy retry.Policy
	// CallTimeout bounds each generation attempt.
	CallTimeout time.Duration
	// MaxTokens limits the generated answer length.
	MaxTokens int
	// Tracer emits spans per question and retrieval; nil disables spans.
	Tracer *observability.Tracer
}

// NewEvaluator creates a RAG evaluator.
func NewEvaluator(searcher Searcher, completer llm.Completer, answerJudge AnswerJudge, logger *observability.Logger, cfg EvaluatorConfig) *Evaluator {
	e := &Evaluator{
		searcher:    searcher,
		completer:   completer,
		judge:       answerJudge,
		policy:      cfg.Policy,
		logger:      logger,
		tracer:      cfg.Tracer,
		topK:        cfg.TopK,
		callTimeout: cfg.CallTimeout,
		maxTokens:   cfg.MaxTokens,
	}
	if e.policy.MaxRetries == 0 && len(e.policy.Backoff) == 0 {
		e.policy = retry.Default()
	}
	if e.policy.Retryable == nil {
		e.policy.Retryable = llm.IsTransient
	}
	if e.topK <= 0 {
		e.topK = defaultTopK
	}
	if e.callTimeout <= 0 {
		e.callTimeout = defaultCallTimeout
	}
	if e.maxTokens <= 0 {
		e.maxTokens = defaultMaxTokens
	}
	return e
}

// EvaluateQuestion runs one question through retrieval, generation, and
// judging. It never returns an error; each phase failure zeroes the scores
// that depend on it and records why.
func (e *Evaluator) EvaluateQuestion(ctx context.Context, model string, q dataset.RAGQuestion) Result {
	ctx, span := e.tracer.Start(ctx, "rag.question",
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

	retrievalStart := time.Now()
	retrieveCtx, retrieveSpan := e.tracer.Start(ctx, "rag.retrieve",
		attribute.Int("rag.top_k", e.topK))
	metrics, retrieved, err := e.searcher.EvaluateRetrieval(retrieveCtx, q.Input, q.RelevantChunkIDs, e.topK)
	retrieveSpan.End()
	result.RetrievalTime = time.Since(retrievalStart)
	if err != nil {
		result.AnswerReasoning = fmt.Sprintf("retrieval failed: %v", err)
		result.Failed = true
		e.logger.Warn(ctx, "retrieval failed", "model", model, "question", q.ID, "error", err)
		return result
	}
	result.Retrieval = metrics

	contextBlock := retriever.FormatContext(retrieved)
	answer, genTime, retries, genErr := e.generate(ctx, model, q.Input, contextBlock)
	result.GenerationTime = genTime
	result.RetryCount = retries
	if genErr != nil {
		result.Failed = true
		var status *llm.StatusError
		if errors.As(genErr, &status) {
			empty := ""
			result.Answer = &empty
			result.AnswerReasoning = status.Error()
			return result
		}
		result.AnswerReasoning = fmt.Sprintf("failed after %d retries: %v", retries, genErr)
		return result
	}
	result.Answer = &answer

	judgeStart := time.Now()
	answerVerdict := e.judge.Score(ctx, q.ExpectedOutput, answer)
	groundingVerdict := e.judge.Grounding(ctx, q.Input, contextBlock, answer)
	result.JudgeTime = time.Since(judgeStart)

	result.AnswerScore = judge.Clamp(answerVerdict.Score)
	result.AnswerReasoning = answerVerdict.Reasoning
	if retries > 0 {
		result.AnswerReasoning = fmt.Sprintf("[succeeded after %d retries] %s", retries, result.AnswerReasoning)
	}
	result.GroundingScore = judge.Clamp(groundingVerdict.Score)
	result.GroundingReasoning = groundingVerdict.Reasoning
	return result
}

// generate produces an answer from the retrieved context at temperature
// zero, retrying transient failures on the fixed schedule.
func (e *Evaluator) generate(ctx context.Context, model, question, contextBlock string) (answer string, elapsed time.Duration, retries int, err error) {
	prompt := fmt.Sprintf(answerTemplate, contextBlock, question)
	start := time.Now()
	outcome := e.policy.Do(ctx, func(attempt int) error {
		attemptCtx, cancel := context.WithTimeout(ctx, e.callTimeout)
		defer cancel()

		resp, err := e.completer.Complete(attemptCtx, &llm.Request{
			Model: model,
			Messages: []llm.Message{
				llm.TextMessage(llm.RoleSystem, answerSystemPrompt),
				llm.TextMessage(llm.RoleUser, prompt),
			},
			MaxTokens:   e.maxTokens,
			Temperature: llm.Temp(0),
		})
		if err != nil {
			if llm.IsTransient(err) {
				e.logger.Warn(ctx, "generation failed, will retry if budget remains",
					"model", model, "attempt", attempt, "error", err)
			}
			return err
		}
		answer = resp.Content
		return nil
	})
	return answer, time.Since(start), outcome.Retries, outcome.Err
}
