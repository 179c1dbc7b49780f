// Google Gemini backend using the google.golang.org/genai SDK.
// The system prompt travels as the system instruction and assistant turns
// use the "model" role.

package llm

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/history"
)

// GeminiAdapter implements Adapter for the Gemini API.
type GeminiAdapter struct {
	client      *genai.Client
	model       string
	maxTokens   int32
	temperature float32
}

// NewGemini creates a Gemini adapter.
func NewGemini(ctx context.Context, p Params) (*GeminiAdapter, error) {
	cc := &genai.ClientConfig{
		APIKey:  p.APIKey,
		Backend: genai.BackendGeminiAPI,
	}
	if p.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: p.BaseURL}
	}

	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	model := p.Model
	if model == "" {
		model = DefaultModel(ProviderGemini)
	}

	return &GeminiAdapter{
		client:      client,
		model:       model,
		maxTokens:   int32(p.MaxTokens),
		temperature: p.Temperature,
	}, nil
}

// Name returns the provider name.
func (a *GeminiAdapter) Name() string { return ProviderGemini }

// Model returns the current model.
func (a *GeminiAdapter) Model() string { return a.model }

// Complete sends the turns as contents with the system instruction set.
func (a *GeminiAdapter) Complete(ctx context.Context, req Request) (string, error) {
	config := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(a.temperature),
		MaxOutputTokens: a.maxTokens,
	}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	response, err := a.client.Models.GenerateContent(ctx, a.model, convertToGeminiContents(req), config)
	if err != nil {
		return "", fmt.Errorf("generate content failed: %w", err)
	}

	text := response.Text()
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func convertToGeminiContents(req Request) []*genai.Content {
	contents := make([]*genai.Content, 0, len(req.Turns))
	for _, t := range req.Turns {
		if t.Role == history.RoleUser {
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleUser))
		} else {
			contents = append(contents, genai.NewContentFromText(t.Content, genai.RoleModel))
		}
	}
	return contents
}

var _ Adapter = (*GeminiAdapter)(nil)
