// Package rag implements end-to-end RAG evaluation: retrieval quality
// scoring plus judged answer generation over the retrieved context.
package rag

import (
	"time"

	"github.com/haasonsaas/evalwatch/internal/retriever"
)

// Result is the outcome of evaluating one (model, RAG question) pair. As in
// plain text evaluation, failures degrade into the result instead of
// aborting the run.
type Result struct {
	QuestionID     string  `json:"question_id"`
	Category       string  `json:"category"`
	Input          string  `json:"input"`
	ExpectedOutput string  `json:"expected_output"`
	Answer         *string `json:"answer"`

	// Retrieval holds the ranking-quality metrics for this question.
	Retrieval retriever.Metrics `json:"retrieval"`

	// AnswerScore judges the generated answer against the expected answer.
	AnswerScore     float64 `json:"answer_score"`
	AnswerReasoning string  `json:"answer_reasoning"`

	// GroundingScore judges whether the answer sticks to the retrieved
	// context.
	GroundingScore     float64 `json:"grounding_score"`
	GroundingReasoning string  `json:"grounding_reasoning"`

	// Per-phase wall-clock timings.
	RetrievalTime  time.Duration `json:"retrieval_time"`
	GenerationTime time.Duration `json:"generation_time"`
	JudgeTime      time.Duration `json:"judge_time"`

	RetryCount int `json:"retry_count"`
	// Failed marks questions where the pipeline broke before a judged
	// answer existed: retrieval failure, non-success HTTP status, or
	// retry exhaustion.
	Failed bool `json:"failed,omitempty"`
}

// ModelRun is the RAG summary for one model across the whole dataset.
type ModelRun struct {
	Model          string        `json:"model"`
	EvaluationTime time.Duration `json:"evaluation_time"`
	Results        []Result      `json:"results"`
	Err            string        `json:"error,omitempty"`
}

// AvgRecall is the mean recall@K across results, the primary drift signal
// for RAG runs.
func (r *ModelRun) AvgRecall() float64 {
	return r.mean(func(res Result) float64 { return res.Retrieval.RecallAtK })
}

// AvgPrecision is the mean precision@K across results.
func (r *ModelRun) AvgPrecision() float64 {
	return r.mean(func(res Result) float64 { return res.Retrieval.PrecisionAtK })
}

// AvgMRR is the mean reciprocal rank across results.
func (r *ModelRun) AvgMRR() float64 {
	return r.mean(func(res Result) float64 { return res.Retrieval.MRR })
}

// AvgAnswerScore is the mean judged answer score across results.
func (r *ModelRun) AvgAnswerScore() float64 {
	return r.mean(func(res Result) float64 { return res.AnswerScore })
}

// AvgGroundingScore is the mean judged grounding score across results.
func (r *ModelRun) AvgGroundingScore() float64 {
	return r.mean(func(res Result) float64 { return res.GroundingScore })
}

func (r *ModelRun) mean(f func(Result) float64) float64 {
	if len(r.Results) == 0 {
		return 0
	}
	var sum float64
	for _, res := range r.Results {
		sum += f(res)
	}
	return sum / float64(len(r.Results))
}
