package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// AnthropicClient implements Completer against the Anthropic Messages API
// directly, for deployments that evaluate Claude models without going
// through an OpenAI-compatible gateway.
type AnthropicClient struct {
	client anthropic.Client
}

// AnthropicConfig configures the Anthropic client.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

// NewAnthropicClient creates a direct Anthropic client.
func NewAnthropicClient(cfg AnthropicConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	options := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		options = append(options, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicClient{client: anthropic.NewClient(options...)}, nil
}

// Name returns the provider identifier.
func (c *AnthropicClient) Name() string { return "anthropic" }

// Complete executes a single non-streaming message call.
func (c *AnthropicClient) Complete(ctx context.Context, req *Request) (*Response, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: int64(maxTokens),
	}
	if req.Temperature != nil {
		params.Temperature = anthropic.Float(float64(*req.Temperature))
	}

	var turns []anthropic.MessageParam
	for _, msg := range req.Messages {
		// Anthropic takes the system prompt out of band.
		if msg.Role == RoleSystem {
			params.System = append(params.System, anthropic.TextBlockParam{Text: msg.Content})
			continue
		}
		var blocks []anthropic.ContentBlockParamUnion
		if len(msg.Parts) > 0 {
			for _, part := range msg.Parts {
				switch part.Type {
				case PartImageURL:
					mediaType, data, err := splitDataURL(part.ImageURL)
					if err != nil {
						return nil, err
					}
					blocks = append(blocks, anthropic.NewImageBlockBase64(mediaType, data))
				default:
					blocks = append(blocks, anthropic.NewTextBlock(part.Text))
				}
			}
		} else {
			blocks = append(blocks, anthropic.NewTextBlock(msg.Content))
		}
		turns = append(turns, anthropic.NewUserMessage(blocks...))
	}
	params.Messages = turns

	msg, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return nil, mapAnthropicError(err)
	}

	var sb strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}
	return &Response{Content: sb.String()}, nil
}

// splitDataURL extracts the media type and base64 payload from a
// "data:<media>;base64,<data>" URL.
func splitDataURL(url string) (mediaType, data string, err error) {
	rest, ok := strings.CutPrefix(url, "data:")
	if !ok {
		return "", "", fmt.Errorf("image part is not a data URL")
	}
	mediaType, data, ok = strings.Cut(rest, ";base64,")
	if !ok {
		return "", "", fmt.Errorf("image data URL is not base64 encoded")
	}
	return mediaType, data, nil
}

func mapAnthropicError(err error) error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return &StatusError{Code: apiErr.StatusCode, Body: apiErr.Error()}
	}
	return classifyTransport(err)
}
