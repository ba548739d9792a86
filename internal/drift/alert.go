package drift

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/haasonsaas/evalwatch/internal/observability"
)

// Channel delivers one drift verdict to one destination.
type Channel interface {
	Name() string
	Send(ctx context.Context, v Verdict) error
}

// Notifier fans a verdict out to every configured channel. One channel
// failing never blocks the others; each channel reports its own outcome.
type Notifier struct {
	channels []Channel
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewNotifier creates a notifier over the given channels.
func NewNotifier(channels []Channel, logger *observability.Logger, metrics *observability.Metrics) *Notifier {
	return &Notifier{channels: channels, logger: logger, metrics: metrics}
}

// Notify sends the verdict to every channel sequentially and returns the
// per-channel delivery outcome keyed by channel name.
func (n *Notifier) Notify(ctx context.Context, v Verdict) map[string]bool {
	outcomes := make(map[string]bool, len(n.channels))
	for _, ch := range n.channels {
		err := ch.Send(ctx, v)
		outcomes[ch.Name()] = err == nil
		if err != nil {
			n.logger.Warn(ctx, "alert delivery failed", "channel", ch.Name(), "model", v.Model, "error", err)
			n.observe(ch.Name(), "failed")
			continue
		}
		n.logger.Info(ctx, "alert delivered", "channel", ch.Name(), "model", v.Model)
		n.observe(ch.Name(), "sent")
	}
	return outcomes
}

func (n *Notifier) observe(channel, status string) {
	if n.metrics == nil {
		return
	}
	n.metrics.AlertCounter.WithLabelValues(channel, status).Inc()
}

func defaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 10 * time.Second}
}

// WebhookChannel POSTs the verdict as JSON to a generic webhook endpoint.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel creates a generic webhook channel. client may be nil.
func NewWebhookChannel(url string, client *http.Client) *WebhookChannel {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &WebhookChannel{url: url, client: client}
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, v Verdict) error {
	payload := struct {
		Verdict
		Message string `json:"message"`
	}{Verdict: v, Message: v.Summary()}
	return postJSON(ctx, w.client, w.url, payload)
}

// DiscordChannel posts the verdict to a Discord webhook as an embed.
type DiscordChannel struct {
	webhookURL string
	client     *http.Client
}

// NewDiscordChannel creates a Discord webhook channel. client may be nil.
func NewDiscordChannel(webhookURL string, client *http.Client) *DiscordChannel {
	if client == nil {
		client = defaultHTTPClient()
	}
	return &DiscordChannel{webhookURL: webhookURL, client: client}
}

func (d *DiscordChannel) Name() string { return "discord" }

// Discord embed colors.
const (
	discordRed   = 0xe74c3c
	discordGreen = 0x2ecc71
)

func (d *DiscordChannel) Send(ctx context.Context, v Verdict) error {
	color := discordGreen
	title := fmt.Sprintf("Drift check: %s", v.Model)
	if v.HasDrifted {
		color = discordRed
		title = fmt.Sprintf("Model drift detected: %s", v.Model)
	}
	payload := map[string]any{
		"embeds": []map[string]any{{
			"title":       title,
			"description": v.Summary(),
			"color":       color,
			"fields": []map[string]any{
				{"name": "Metric", "value": v.MetricName, "inline": true},
				{"name": "Best", "value": fmt.Sprintf("%.3f", v.Best), "inline": true},
				{"name": "Latest", "value": fmt.Sprintf("%.3f", v.Latest), "inline": true},
			},
		}},
	}
	return postJSON(ctx, d.client, d.webhookURL, payload)
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode alert payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build alert request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("alert endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}
