// OpenAI-compatible backend using go-openai. Groq is served through its
// OpenAI-compatible endpoint with the same client.

package llm

import (
	"context"
	"fmt"
	"math"

	openai "github.com/sashabaranov/go-openai"
)

const groqBaseURL = "https://api.groq.com/openai/v1"

// OpenAIAdapter implements Adapter for the Chat Completions API.
type OpenAIAdapter struct {
	client      *openai.Client
	name        string
	model       string
	maxTokens   int
	temperature float32
}

// NewOpenAI creates an adapter for api.openai.com, or for p.BaseURL when set.
func NewOpenAI(p Params) *OpenAIAdapter {
	return newOpenAICompatible(ProviderOpenAI, p, "")
}

// NewGroq creates an adapter for Groq's OpenAI-compatible endpoint.
func NewGroq(p Params) *OpenAIAdapter {
	return newOpenAICompatible(ProviderGroq, p, groqBaseURL)
}

func newOpenAICompatible(name string, p Params, defaultBaseURL string) *OpenAIAdapter {
	config := openai.DefaultConfig(p.APIKey)
	switch {
	case p.BaseURL != "":
		config.BaseURL = p.BaseURL
	case defaultBaseURL != "":
		config.BaseURL = defaultBaseURL
	}

	model := p.Model
	if model == "" {
		model = DefaultModel(name)
	}

	return &OpenAIAdapter{
		client:      openai.NewClientWithConfig(config),
		name:        name,
		model:       model,
		maxTokens:   p.MaxTokens,
		temperature: requestTemperature(p.Temperature),
	}
}

// Name returns the provider name.
func (a *OpenAIAdapter) Name() string { return a.name }

// Model returns the current model.
func (a *OpenAIAdapter) Model() string { return a.model }

// Complete sends the system prompt followed by the turns.
func (a *OpenAIAdapter) Complete(ctx context.Context, req Request) (string, error) {
	resp, err := a.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       a.model,
		Messages:    convertToOpenAIMessages(req),
		MaxTokens:   a.maxTokens,
		Temperature: a.temperature,
	})
	if err != nil {
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		return "", ErrEmptyReply
	}
	return resp.Choices[0].Message.Content, nil
}

// requestTemperature maps 0 to the smallest positive float32. The request
// field is omitempty, so a literal 0 would be dropped and the server default
// used instead.
func requestTemperature(t float32) float32 {
	if t == 0 {
		return math.SmallestNonzeroFloat32
	}
	return t
}

func convertToOpenAIMessages(req Request) []openai.ChatCompletionMessage {
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Turns)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, t := range req.Turns {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    string(t.Role),
			Content: t.Content,
		})
	}
	return messages
}

var _ Adapter = (*OpenAIAdapter)(nil)
