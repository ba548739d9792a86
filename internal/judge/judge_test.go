package judge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/haasonsaas/evalwatch/internal/llm"
)

type stubCompleter struct {
	content string
	err     error
	calls   int
	lastReq *llm.Request
}

func (s *stubCompleter) Name() string { return "stub" }

func (s *stubCompleter) Complete(_ context.Context, req *llm.Request) (*llm.Response, error) {
	s.calls++
	s.lastReq = req
	if s.err != nil {
		return nil, s.err
	}
	return &llm.Response{Content: s.content}, nil
}

func TestParse(t *testing.T) {
	tests := []struct {
		name       string
		input      string
		wantScore  float64
		wantParsed bool
	}{
		{name: "valid", input: `{"score": 0.7, "reasoning": "mostly right"}`, wantScore: 0.7, wantParsed: true},
		{name: "clamped_high", input: `{"score": 1.4, "reasoning": "x"}`, wantScore: 1.0, wantParsed: true},
		{name: "clamped_low", input: `{"score": -0.2, "reasoning": "x"}`, wantScore: 0.0, wantParsed: true},
		{name: "malformed", input: `the answer is great, 9/10`, wantScore: 0, wantParsed: false},
		{name: "missing_score", input: `{"reasoning": "no score key"}`, wantScore: 0, wantParsed: false},
		{name: "missing_reasoning", input: `{"score": 0.5}`, wantScore: 0, wantParsed: false},
		{name: "empty", input: ``, wantScore: 0, wantParsed: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Parse(tt.input)
			if v.Parsed != tt.wantParsed {
				t.Fatalf("Parsed = %v, want %v", v.Parsed, tt.wantParsed)
			}
			if v.Score != tt.wantScore {
				t.Fatalf("Score = %v, want %v", v.Score, tt.wantScore)
			}
		})
	}
}

func TestParseKeepsRawPayload(t *testing.T) {
	payload := `Sure! The score would be 0.8 because...`
	v := Parse(payload)
	if v.Parsed {
		t.Fatal("expected unparseable verdict")
	}
	if !strings.Contains(v.Reasoning, payload) {
		t.Fatalf("reasoning %q does not contain raw payload", v.Reasoning)
	}
	if v.Raw != payload {
		t.Fatalf("Raw = %q, want %q", v.Raw, payload)
	}
}

func TestScoreTransportFailureDegrades(t *testing.T) {
	stub := &stubCompleter{err: errors.New("connection refused")}
	j := New(stub, Config{})
	v := j.Score(context.Background(), "Paris", "London")
	if v.Score != 0 || v.Parsed {
		t.Fatalf("verdict = %+v, want zero unparsed", v)
	}
	if !strings.Contains(v.Reasoning, "connection refused") {
		t.Fatalf("reasoning %q missing cause", v.Reasoning)
	}
	if stub.calls != 1 {
		t.Fatalf("judge retried: %d calls", stub.calls)
	}
}

func TestScoreUsesConfiguredModel(t *testing.T) {
	stub := &stubCompleter{content: `{"score": 1.0, "reasoning": "exact"}`}
	j := New(stub, Config{Model: "judge-model"})
	v := j.Score(context.Background(), "42", "42")
	if !v.Parsed || v.Score != 1.0 {
		t.Fatalf("verdict = %+v", v)
	}
	if stub.lastReq.Model != "judge-model" {
		t.Fatalf("model = %q", stub.lastReq.Model)
	}
	if !stub.lastReq.JSONOnly {
		t.Fatal("expected JSON-only request")
	}
	if stub.lastReq.Temperature == nil || *stub.lastReq.Temperature != 0 {
		t.Fatalf("temperature = %v, want explicit 0", stub.lastReq.Temperature)
	}
}

func TestGroundingPromptCarriesContext(t *testing.T) {
	stub := &stubCompleter{content: `{"score": 0.9, "reasoning": "supported"}`}
	j := New(stub, Config{})
	v := j.Grounding(context.Background(), "Q?", "ctx-block", "answer")
	if !v.Parsed || v.Score != 0.9 {
		t.Fatalf("verdict = %+v", v)
	}
	user := stub.lastReq.Messages[1].Content
	if !strings.Contains(user, "ctx-block") {
		t.Fatalf("prompt missing context: %q", user)
	}
}

func TestParseFailureHook(t *testing.T) {
	stub := &stubCompleter{content: `not json at all`}
	var failures int
	j := New(stub, Config{OnParseFailure: func() { failures++ }})

	j.Score(context.Background(), "a", "b")
	if failures != 1 {
		t.Fatalf("failures = %d, want 1", failures)
	}

	stub.content = `{"score": 0.5, "reasoning": "ok"}`
	j.Score(context.Background(), "a", "b")
	if failures != 1 {
		t.Fatalf("failures = %d after valid verdict, want 1", failures)
	}
}

func TestClamp(t *testing.T) {
	if Clamp(0.5) != 0.5 || Clamp(-1) != 0 || Clamp(2) != 1 {
		t.Fatal("clamp bounds wrong")
	}
}
