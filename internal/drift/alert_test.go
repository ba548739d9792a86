package drift

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/smtp"
	"strings"
	"testing"

	"github.com/haasonsaas/evalwatch/internal/observability"
)

type recordingChannel struct {
	name string
	err  error
	sent int
}

func (r *recordingChannel) Name() string { return r.name }

func (r *recordingChannel) Send(context.Context, Verdict) error {
	r.sent++
	return r.err
}

var driftedVerdict = Verdict{
	Model:      "gpt-4o",
	MetricName: "accuracy",
	HasDrifted: true,
	Best:       0.90,
	Latest:     0.60,
	Drop:       0.30,
	Threshold:  0.10,
	Runs:       5,
}

func TestNotifyPerChannelOutcomes(t *testing.T) {
	ok := &recordingChannel{name: "webhook"}
	bad := &recordingChannel{name: "discord", err: errors.New("404")}
	also := &recordingChannel{name: "email"}
	n := NewNotifier([]Channel{ok, bad, also}, observability.NopLogger(), nil)

	outcomes := n.Notify(context.Background(), driftedVerdict)
	want := map[string]bool{"webhook": true, "discord": false, "email": true}
	for ch, sent := range want {
		if outcomes[ch] != sent {
			t.Fatalf("outcomes[%s] = %v, want %v", ch, outcomes[ch], sent)
		}
	}
	// A failed channel must not short-circuit later channels.
	if also.sent != 1 {
		t.Fatal("email channel skipped after discord failure")
	}
}

func TestWebhookChannelPosts(t *testing.T) {
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("content type = %q", r.Header.Get("Content-Type"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("body is not JSON: %v", err)
		}
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, srv.Client())
	if err := ch.Send(context.Background(), driftedVerdict); err != nil {
		t.Fatal(err)
	}
	if payload["model"] != "gpt-4o" || payload["has_drifted"] != true {
		t.Fatalf("payload = %v", payload)
	}
	if msg, _ := payload["message"].(string); !strings.Contains(msg, "dropped") {
		t.Fatalf("message = %q", payload["message"])
	}
}

func TestWebhookChannelBadStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ch := NewWebhookChannel(srv.URL, srv.Client())
	err := ch.Send(context.Background(), driftedVerdict)
	if err == nil || !strings.Contains(err.Error(), "502") {
		t.Fatalf("err = %v", err)
	}
}

func TestDiscordChannelEmbeds(t *testing.T) {
	var payload struct {
		Embeds []struct {
			Title string `json:"title"`
			Color int    `json:"color"`
		} `json:"embeds"`
	}
	srv := httptest.NewServer(http.HandlerFunc(func(_ http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &payload); err != nil {
			t.Errorf("body is not JSON: %v", err)
		}
	}))
	defer srv.Close()

	ch := NewDiscordChannel(srv.URL, srv.Client())
	if err := ch.Send(context.Background(), driftedVerdict); err != nil {
		t.Fatal(err)
	}
	if len(payload.Embeds) != 1 {
		t.Fatalf("embeds = %d", len(payload.Embeds))
	}
	if payload.Embeds[0].Color != discordRed {
		t.Fatalf("color = %#x, want red for drift", payload.Embeds[0].Color)
	}
	if !strings.Contains(payload.Embeds[0].Title, "drift") {
		t.Fatalf("title = %q", payload.Embeds[0].Title)
	}
}

func TestEmailChannelBuildsMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg []byte
	ch := NewEmailChannel(EmailConfig{
		Host: "mail.example.com",
		Port: 587,
		From: "alerts@example.com",
		To:   []string{"oncall@example.com"},
	})
	ch.send = func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, msg
		return nil
	}

	if err := ch.Send(context.Background(), driftedVerdict); err != nil {
		t.Fatal(err)
	}
	if gotAddr != "mail.example.com:587" {
		t.Fatalf("addr = %q", gotAddr)
	}
	if gotFrom != "alerts@example.com" || len(gotTo) != 1 {
		t.Fatalf("from/to = %q/%v", gotFrom, gotTo)
	}
	body := string(gotMsg)
	if !strings.Contains(body, "Subject: Model drift detected: gpt-4o") {
		t.Fatalf("missing subject:\n%s", body)
	}
	if !strings.Contains(body, "dropped 0.300") {
		t.Fatalf("missing summary:\n%s", body)
	}
}

func TestEmailChannelCancelledContext(t *testing.T) {
	ch := NewEmailChannel(EmailConfig{Host: "mail.example.com", Port: 25})
	ch.send = func(string, smtp.Auth, string, []string, []byte) error {
		t.Fatal("send called with cancelled context")
		return nil
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := ch.Send(ctx, driftedVerdict); err == nil {
		t.Fatal("expected context error")
	}
}
