// Package config defines the chatrelay configuration: global logging,
// history and session settings plus one profile per bot.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/llm"
)

// History backends.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// DefaultFallbackMessage is sent when a completion fails.
const DefaultFallbackMessage = "Sorry, I'm not feeling quite right at the moment... please try again later."

// Config is the root configuration.
type Config struct {
	Logging LoggingConfig `yaml:"logging"`
	History HistoryConfig `yaml:"history"`
	Session SessionConfig `yaml:"session"`
	Bots    []BotConfig   `yaml:"bots"`
}

// LoggingConfig configures slog.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `yaml:"level"`

	// Format is json or text.
	Format string `yaml:"format"`
}

// HistoryConfig selects where conversations are persisted.
type HistoryConfig struct {
	// Backend is "file" (one JSON file per user) or "sqlite".
	Backend string `yaml:"backend"`

	// Dir is the base directory. Each bot gets <dir>/<bot>/ for files or
	// <dir>/<bot>.db for SQLite.
	Dir string `yaml:"dir"`
}

// SessionConfig bounds the in-memory session cache.
type SessionConfig struct {
	MaxSessions int           `yaml:"max_sessions"`
	TTL         time.Duration `yaml:"ttl"`
}

// BotConfig is one bot profile.
type BotConfig struct {
	// Name identifies the profile. It names the history location and the
	// DISCORD_TOKEN_<NAME> / CHANNEL_ID_<NAME> environment fallbacks.
	Name string `yaml:"name"`

	// Discord credentials and trigger.
	DiscordToken string `yaml:"discord_token"`
	ChannelID    string `yaml:"channel_id"`
	IgnoreBots   bool   `yaml:"ignore_bots"`

	// Completion backend.
	Provider       string        `yaml:"provider"`
	Model          string        `yaml:"model"`
	APIKey         string        `yaml:"api_key"`
	BaseURL        string        `yaml:"base_url"`
	Temperature    float32       `yaml:"temperature"`
	MaxTokens      int           `yaml:"max_tokens"`
	RequestTimeout time.Duration `yaml:"request_timeout"`

	// Conversation.
	MaxHistory  int    `yaml:"max_history"`
	PromptFile  string `yaml:"prompt_file"`
	SpeakerTags bool   `yaml:"speaker_tags"`
	Typing      bool   `yaml:"typing"`

	// Failure replies.
	FallbackMessage string `yaml:"fallback_message"`
	ErrorDetail     bool   `yaml:"error_detail"`

	// ReplyToMessage answers with a Discord reply to the triggering
	// message rather than a plain channel message.
	ReplyToMessage bool `yaml:"reply_to_message"`
}

// DefaultConfig returns the global defaults with no bots.
func DefaultConfig() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info", Format: "json"},
		History: HistoryConfig{Backend: BackendFile, Dir: "./data/history"},
		Session: SessionConfig{MaxSessions: 1000, TTL: 24 * time.Hour},
	}
}

// DefaultBot returns a profile with every default applied.
func DefaultBot() BotConfig {
	return BotConfig{
		Provider:        llm.ProviderGroq,
		Temperature:     0.7,
		MaxTokens:       300,
		RequestTimeout:  60 * time.Second,
		MaxHistory:      10,
		SpeakerTags:     true,
		Typing:          true,
		FallbackMessage: DefaultFallbackMessage,
	}
}

// UnmarshalYAML starts each profile from DefaultBot so absent keys keep
// their defaults while explicit zero values are respected.
func (b *BotConfig) UnmarshalYAML(value *yaml.Node) error {
	type plain BotConfig
	p := plain(DefaultBot())
	if err := value.Decode(&p); err != nil {
		return err
	}
	*b = BotConfig(p)
	return nil
}

// EnvName returns the profile name as an environment variable suffix.
func (b BotConfig) EnvName() string {
	return envName(b.Name)
}

// LLMParams returns the completion backend parameters of the profile.
func (b BotConfig) LLMParams() llm.Params {
	return llm.Params{
		Provider:    b.Provider,
		Model:       b.Model,
		APIKey:      b.APIKey,
		BaseURL:     b.BaseURL,
		Temperature: b.Temperature,
		MaxTokens:   b.MaxTokens,
	}
}

// HistoryPath returns where the profile's conversations live: a directory
// for the file backend, a database file for SQLite.
func (c *Config) HistoryPath(bot BotConfig) string {
	if c.History.Backend == BackendSQLite {
		return filepath.Join(c.History.Dir, bot.Name+".db")
	}
	return filepath.Join(c.History.Dir, bot.Name)
}

// Bot returns the profile called name.
func (c *Config) Bot(name string) (BotConfig, error) {
	for _, b := range c.Bots {
		if b.Name == name {
			return b, nil
		}
	}
	return BotConfig{}, fmt.Errorf("unknown bot %q (configured: %s)", name, strings.Join(c.BotNames(), ", "))
}

// BotNames lists the configured profile names.
func (c *Config) BotNames() []string {
	names := make([]string, 0, len(c.Bots))
	for _, b := range c.Bots {
		names = append(names, b.Name)
	}
	return names
}

// Select returns the named profiles, or all of them when names is empty.
func (c *Config) Select(names []string) ([]BotConfig, error) {
	if len(names) == 0 {
		return c.Bots, nil
	}
	out := make([]BotConfig, 0, len(names))
	for _, n := range names {
		b, err := c.Bot(n)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

// Validate checks the global settings and every profile.
func (c *Config) Validate() error {
	var errs []error

	switch c.History.Backend {
	case BackendFile, BackendSQLite:
	default:
		errs = append(errs, fmt.Errorf("history.backend: unknown backend %q", c.History.Backend))
	}
	if c.History.Dir == "" {
		errs = append(errs, errors.New("history.dir is required"))
	}
	if c.Session.MaxSessions < 0 {
		errs = append(errs, errors.New("session.max_sessions must not be negative"))
	}
	if len(c.Bots) == 0 {
		errs = append(errs, errors.New("no bots configured"))
	}

	seen := make(map[string]bool)
	for _, b := range c.Bots {
		if seen[b.Name] {
			errs = append(errs, fmt.Errorf("bot %q: duplicate name", b.Name))
		}
		seen[b.Name] = true
		if err := b.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Validate checks one profile. Discord credentials are checked by
// ValidateServe since local chat runs without them.
func (b BotConfig) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("bot %q: "+format, append([]any{b.Name}, args...)...))
	}

	if b.Name == "" {
		add("name is required")
	} else if strings.ContainsAny(b.Name, `/\:`) || strings.Contains(b.Name, "..") {
		add("name must not contain path separators")
	}
	if !llm.KnownProvider(b.Provider) {
		add("unknown provider %q", b.Provider)
	} else if b.APIKey == "" {
		add("api key is required (set api_key or %s)", llm.APIKeyEnv(b.Provider))
	}
	if b.Temperature < 0 || b.Temperature > 1 {
		add("temperature %.2f outside [0, 1]", b.Temperature)
	}
	if b.MaxTokens <= 0 {
		add("max_tokens must be positive")
	}
	if b.MaxHistory <= 0 {
		add("max_history must be positive")
	}
	if b.RequestTimeout <= 0 {
		add("request_timeout must be positive")
	}
	return errors.Join(errs...)
}

// ValidateServe additionally requires the Discord credentials needed to
// connect the profile to the gateway.
func (b BotConfig) ValidateServe() error {
	err := b.Validate()
	if b.DiscordToken == "" {
		err = errors.Join(err, fmt.Errorf("bot %q: discord token is required (set discord_token or DISCORD_TOKEN_%s)", b.Name, b.EnvName()))
	}
	return err
}

func envName(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToUpper(name) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}
