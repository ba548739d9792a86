package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

// captureServer records the JSON body of the last request and replies with a
// fixed payload.
func captureServer(t *testing.T, reply string) (*httptest.Server, *map[string]any) {
	t.Helper()
	body := map[string]any{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read request body: %v", err)
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &body
}

const chatCompletionReply = `{
	"id": "chatcmpl-1",
	"object": "chat.completion",
	"created": 1,
	"model": "gpt-4o",
	"choices": [{"index": 0, "message": {"role": "assistant", "content": "ok"}, "finish_reason": "stop"}]
}`

func TestOpenAIClientSendsExplicitZeroTemperature(t *testing.T) {
	srv, body := captureServer(t, chatCompletionReply)
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Complete(context.Background(), &Request{
		Model:       "gpt-4o",
		Messages:    []Message{TextMessage(RoleUser, "hi")},
		Temperature: Temp(0),
	})
	if err != nil {
		t.Fatal(err)
	}

	raw, ok := (*body)["temperature"]
	if !ok {
		t.Fatalf("temperature missing from wire request: %v", *body)
	}
	temp, ok := raw.(float64)
	if !ok || temp < 0 || temp > 1e-30 {
		t.Fatalf("wire temperature = %v, want effectively zero", raw)
	}
}

func TestOpenAIClientOmitsUnsetTemperature(t *testing.T) {
	srv, body := captureServer(t, chatCompletionReply)
	client, err := NewOpenAIClient(OpenAIConfig{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Complete(context.Background(), &Request{
		Model:    "gpt-4o",
		Messages: []Message{TextMessage(RoleUser, "hi")},
	})
	if err != nil {
		t.Fatal(err)
	}

	if _, ok := (*body)["temperature"]; ok {
		t.Fatalf("unset temperature leaked onto the wire: %v", (*body)["temperature"])
	}
}

const anthropicMessageReply = `{
	"id": "msg_1",
	"type": "message",
	"role": "assistant",
	"model": "claude-sonnet-4",
	"content": [{"type": "text", "text": "ok"}],
	"stop_reason": "end_turn",
	"stop_sequence": null,
	"usage": {"input_tokens": 1, "output_tokens": 1}
}`

func TestAnthropicClientSendsExplicitZeroTemperature(t *testing.T) {
	srv, body := captureServer(t, anthropicMessageReply)
	client, err := NewAnthropicClient(AnthropicConfig{APIKey: "test", BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}

	_, err = client.Complete(context.Background(), &Request{
		Model:       "claude-sonnet-4",
		Messages:    []Message{TextMessage(RoleUser, "hi")},
		MaxTokens:   64,
		Temperature: Temp(0),
	})
	if err != nil {
		t.Fatal(err)
	}

	raw, ok := (*body)["temperature"]
	if !ok {
		t.Fatalf("temperature missing from wire request: %v", *body)
	}
	if temp, ok := raw.(float64); !ok || temp != 0 {
		t.Fatalf("wire temperature = %v, want 0", raw)
	}
}
