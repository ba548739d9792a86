// Package judge scores candidate answers against reference answers using an
// LLM call with a strict JSON verdict contract.
package judge

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/evalwatch/internal/llm"
)

const (
	defaultModel     = "gpt-4o-mini"
	defaultMaxTokens = 300
	defaultTimeout   = 25 * time.Second
)

const systemPrompt = "You are a strict evaluator."

const scoreTemplate = `You are an objective evaluator.
Rate the correctness of the following answer compared to the expected answer.
Allow for paraphrasing and different wording.

Return ONLY JSON:
{"score": 0.0 to 1.0, "reasoning": "..."}

Expected answer: %s
Model answer: %s`

const groundingTemplate = `Evaluate whether the answer is grounded in the provided context.
Check if the answer's key claims can be verified from the context and flag
anything hallucinated.

Return ONLY JSON:
{"score": 0.0 to 1.0, "reasoning": "..."}

Question: %s

Context:
%s

Answer: %s`

// Verdict is the outcome of one judge call. Parsed distinguishes a real
// model verdict from the fallback taken when the response was not the
// demanded JSON shape; in the fallback case Raw carries the offending
// payload and Score is zero.
type Verdict struct {
	Score     float64
	Reasoning string
	Parsed    bool
	Raw       string
}

// Judge scores answers via a single LLM call per question. Judge calls are
// never retried: one missed verdict must not stall the pipeline.
type Judge struct {
	completer      llm.Completer
	model          string
	maxTokens      int
	timeout        time.Duration
	onParseFailure func()
}

// Config configures the judge model and call limits.
type Config struct {
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// OnParseFailure fires whenever a judge response misses the JSON
	// verdict contract; callers hook it to a metrics counter.
	OnParseFailure func()
}

// New creates a judge backed by the given completer.
func New(completer llm.Completer, cfg Config) *Judge {
	j := &Judge{
		completer:      completer,
		model:          cfg.Model,
		maxTokens:      cfg.MaxTokens,
		timeout:        cfg.Timeout,
		onParseFailure: cfg.OnParseFailure,
	}
	if j.model == "" {
		j.model = defaultModel
	}
	if j.maxTokens <= 0 {
		j.maxTokens = defaultMaxTokens
	}
	if j.timeout <= 0 {
		j.timeout = defaultTimeout
	}
	return j
}

// Score rates a candidate answer against the expected answer. It never
// returns an error: transport and parse failures degrade to a zero-score
// verdict with diagnostic reasoning.
func (j *Judge) Score(ctx context.Context, expected, candidate string) Verdict {
	prompt := fmt.Sprintf(scoreTemplate, expected, candidate)
	return j.call(ctx, prompt)
}

// Grounding rates whether an answer's claims are supported by the retrieved
// context. Same degradation contract as Score.
func (j *Judge) Grounding(ctx context.Context, question, context_, answer string) Verdict {
	prompt := fmt.Sprintf(groundingTemplate, question, context_, answer)
	return j.call(ctx, prompt)
}

func (j *Judge) call(ctx context.Context, prompt string) Verdict {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	resp, err := j.completer.Complete(ctx, &llm.Request{
		Model: j.model,
		Messages: []llm.Message{
			llm.TextMessage(llm.RoleSystem, systemPrompt),
			llm.TextMessage(llm.RoleUser, prompt),
		},
		MaxTokens:   j.maxTokens,
		Temperature: llm.Temp(0),
		JSONOnly:    true,
	})
	if err != nil {
		return Verdict{Reasoning: fmt.Sprintf("judge call failed: %v", err)}
	}
	verdict := Parse(resp.Content)
	if !verdict.Parsed && j.onParseFailure != nil {
		j.onParseFailure()
	}
	return verdict
}

// rawVerdict is the JSON shape demanded from the judge model.
type rawVerdict struct {
	Score     *float64 `json:"score"`
	Reasoning *string  `json:"reasoning"`
}

// Parse decodes a judge response into a Verdict. Malformed JSON or missing
// keys produce the Unparseable fallback carrying the raw payload.
func Parse(content string) Verdict {
	trimmed := strings.TrimSpace(content)
	var raw rawVerdict
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil || raw.Score == nil || raw.Reasoning == nil {
		return Verdict{
			Reasoning: fmt.Sprintf("invalid JSON from judge: %s", trimmed),
			Raw:       trimmed,
		}
	}
	return Verdict{
		Score:     Clamp(*raw.Score),
		Reasoning: *raw.Reasoning,
		Parsed:    true,
	}
}

// Clamp bounds a score or ratio metric to [0, 1].
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}
