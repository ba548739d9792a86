package drift

import (
	"context"
	"fmt"

	"github.com/slack-go/slack"
)

// SlackChannel posts the verdict to a Slack incoming webhook.
type SlackChannel struct {
	webhookURL string
}

// NewSlackChannel creates a Slack webhook channel.
func NewSlackChannel(webhookURL string) *SlackChannel {
	return &SlackChannel{webhookURL: webhookURL}
}

func (s *SlackChannel) Name() string { return "slack" }

func (s *SlackChannel) Send(ctx context.Context, v Verdict) error {
	color := "good"
	if v.HasDrifted {
		color = "danger"
	}
	msg := &slack.WebhookMessage{
		Text: v.Summary(),
		Attachments: []slack.Attachment{{
			Color: color,
			Fields: []slack.AttachmentField{
				{Title: "Model", Value: v.Model, Short: true},
				{Title: "Metric", Value: v.MetricName, Short: true},
				{Title: "Best", Value: fmt.Sprintf("%.3f", v.Best), Short: true},
				{Title: "Latest", Value: fmt.Sprintf("%.3f", v.Latest), Short: true},
			},
		}},
	}
	if err := slack.PostWebhookContext(ctx, s.webhookURL, msg); err != nil {
		return fmt.Errorf("post slack alert: %w", err)
	}
	return nil
}
