// Package eval implements the question evaluator and the parallel
// evaluation harness for text (non-RAG) model evaluation.
package eval

import "time"

// Result is the outcome of evaluating one (model, question) pair. It is
// immutable after creation; failures are captured here rather than raised.
type Result struct {
	QuestionID     string         `json:"question_id"`
	Category       string         `json:"category"`
	Input          string         `json:"input"`
	ExpectedOutput string         `json:"expected_output"`
	ModelResponse  *string        `json:"model_response"`
	Score          float64        `json:"score"`
	Reasoning      string         `json:"reasoning"`
	Latency        *time.Duration `json:"latency"`
	RetryCount     int            `json:"retry_count"`
	// Failed marks questions where no model answer was obtained: asset
	// failure, non-success HTTP status, or retry exhaustion. A judged
	// zero-score answer is not a failure.
	Failed bool `json:"failed,omitempty"`
}

// ModelRun is the summary for one model across the whole dataset. Err is
// set when the model's evaluation failed at the pool level; in that case
// Results is empty.
type ModelRun struct {
	Model          string        `json:"model"`
	EvaluationTime time.Duration `json:"evaluation_time"`
	Results        []Result      `json:"results"`
	Err            string        `json:"error,omitempty"`
}

// Accuracy is the mean score across results, 0 for an empty run.
func (r *ModelRun) Accuracy() float64 {
	if len(r.Results) == 0 {
		return 0
	}
	var sum float64
	for _, res := range r.Results {
		sum += res.Score
	}
	return sum / float64(len(r.Results))
}

// AvgLatency is the mean latency across results that have one.
func (r *ModelRun) AvgLatency() time.Duration {
	var sum time.Duration
	var n int
	for _, res := range r.Results {
		if res.Latency != nil {
			sum += *res.Latency
			n++
		}
	}
	if n == 0 {
		return 0
	}
	return sum / time.Duration(n)
}
