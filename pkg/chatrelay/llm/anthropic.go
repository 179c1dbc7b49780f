// Anthropic backend using the official anthropic-sdk-go.

package llm

import (
	"context"
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/history"
)

// AnthropicAdapter implements Adapter for the Messages API.
type AnthropicAdapter struct {
	client      anthropic.Client
	model       string
	maxTokens   int64
	temperature float64
}

// NewAnthropic creates an Anthropic adapter.
func NewAnthropic(p Params) *AnthropicAdapter {
	opts := []option.RequestOption{option.WithAPIKey(p.APIKey)}
	if p.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(p.BaseURL))
	}

	model := p.Model
	if model == "" {
		model = DefaultModel(ProviderAnthropic)
	}

	return &AnthropicAdapter{
		client:      anthropic.NewClient(opts...),
		model:       model,
		maxTokens:   int64(p.MaxTokens),
		temperature: float64(p.Temperature),
	}
}

// Name returns the provider name.
func (a *AnthropicAdapter) Name() string { return ProviderAnthropic }

// Model returns the current model.
func (a *AnthropicAdapter) Model() string { return a.model }

// Complete sends the turns with the system prompt as a separate block.
func (a *AnthropicAdapter) Complete(ctx context.Context, req Request) (string, error) {
	params := anthropic.MessageNewParams{
		Model:       anthropic.Model(a.model),
		MaxTokens:   a.maxTokens,
		Messages:    convertToAnthropicMessages(req.Turns),
		Temperature: anthropic.Float(a.temperature),
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	message, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("messages request failed: %w", err)
	}

	content := ""
	for _, block := range message.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			content += variant.Text
		}
	}
	if content == "" {
		return "", ErrEmptyReply
	}
	return content, nil
}

func convertToAnthropicMessages(turns []history.Turn) []anthropic.MessageParam {
	messages := make([]anthropic.MessageParam, 0, len(turns))
	for _, t := range turns {
		switch t.Role {
		case history.RoleUser:
			messages = append(messages, anthropic.NewUserMessage(anthropic.NewTextBlock(t.Content)))
		case history.RoleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(t.Content)))
		}
	}
	return messages
}

var _ Adapter = (*AnthropicAdapter)(nil)
