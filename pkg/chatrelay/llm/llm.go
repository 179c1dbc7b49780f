// Package llm is the boundary to hosted completion APIs.
//
// An Adapter turns a system prompt plus an ordered list of turns into one
// plain-text reply. Backends hide the SDK, the request format and the role
// mapping of their provider; none of them retries.
package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/history"
)

// Supported providers.
const (
	ProviderGroq      = "groq"
	ProviderOpenAI    = "openai"
	ProviderGemini    = "gemini"
	ProviderAnthropic = "anthropic"
)

// Errors.
var (
	ErrEmptyReply      = errors.New("llm: empty reply")
	ErrUnknownProvider = errors.New("llm: unknown provider")
	ErrMissingAPIKey   = errors.New("llm: api key is required")
)

// Adapter produces a reply for a prompt and a conversation.
type Adapter interface {
	// Name returns the provider name (for logging).
	Name() string

	// Model returns the model identifier requests are sent to.
	Model() string

	// Complete returns the model's reply to req. The last turn of
	// req.Turns is the message being answered.
	Complete(ctx context.Context, req Request) (string, error)
}

// Request is one completion call.
type Request struct {
	System string
	Turns  []history.Turn
}

// Params configures a backend. Temperature and MaxTokens are fixed per
// deployment.
type Params struct {
	Provider    string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float32
	MaxTokens   int
}

type providerInfo struct {
	defaultModel string
	apiKeyEnv    string
}

var providers = map[string]providerInfo{
	ProviderGroq:      {"llama-3.3-70b-versatile", "GROQ_API_KEY"},
	ProviderOpenAI:    {"gpt-4o-mini", "OPENAI_API_KEY"},
	ProviderGemini:    {"gemini-flash-latest", "GEMINI_API_KEY"},
	ProviderAnthropic: {"claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
}

var providerAliases = map[string]string{
	"google": ProviderGemini,
	"claude": ProviderAnthropic,
	"gpt":    ProviderOpenAI,
}

// NormalizeProvider lowercases p and resolves aliases.
func NormalizeProvider(p string) string {
	p = strings.ToLower(strings.TrimSpace(p))
	if canonical, ok := providerAliases[p]; ok {
		return canonical
	}
	return p
}

// KnownProvider reports whether p names a supported backend.
func KnownProvider(p string) bool {
	_, ok := providers[NormalizeProvider(p)]
	return ok
}

// DefaultModel returns the model used when a profile sets none.
func DefaultModel(provider string) string {
	return providers[NormalizeProvider(provider)].defaultModel
}

// APIKeyEnv returns the environment variable holding the provider's key.
func APIKeyEnv(provider string) string {
	return providers[NormalizeProvider(provider)].apiKeyEnv
}

// New builds the adapter for p.Provider.
func New(ctx context.Context, p Params) (Adapter, error) {
	p.Provider = NormalizeProvider(p.Provider)
	if !KnownProvider(p.Provider) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, p.Provider)
	}
	if p.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", p.Provider, ErrMissingAPIKey)
	}
	if p.Model == "" {
		p.Model = DefaultModel(p.Provider)
	}

	switch p.Provider {
	case ProviderGroq:
		return NewGroq(p), nil
	case ProviderOpenAI:
		return NewOpenAI(p), nil
	case ProviderGemini:
		return NewGemini(ctx, p)
	case ProviderAnthropic:
		return NewAnthropic(p), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, p.Provider)
}
