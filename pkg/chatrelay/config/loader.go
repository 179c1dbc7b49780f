package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/llm"
)

// envVarPattern matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
//
// Capture groups:
//   - Group 1: variable name
//   - Group 2: modifier ("-" for default, "?" for required)
//   - Group 3: default value or error message
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::(-|\?)([^}]*))?\}`)

// Load reads the configuration.
//
// The .env and .env.local files are loaded first without overriding the
// real environment. When path is empty the standard locations are tried;
// when none exists a single profile is built from the environment.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	if path == "" {
		path = FindConfigFile()
	}
	if path == "" {
		return FromEnv()
	}
	return LoadFile(path)
}

// LoadFile reads and parses a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	expanded, err := expandEnvVarsWithValidation(string(data))
	if err != nil {
		return nil, fmt.Errorf("expanding environment variables: %w", err)
	}

	cfg, err := Parse([]byte(expanded))
	if err != nil {
		return nil, err
	}

	resolveRelativePaths(cfg, filepath.Dir(path))
	return cfg, nil
}

// Parse decodes YAML over DefaultConfig and resolves every profile.
func Parse(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}
	for i := range cfg.Bots {
		resolveBot(&cfg.Bots[i], len(cfg.Bots) == 1)
	}
	return cfg, nil
}

// FromEnv builds a single-profile configuration from environment variables:
// CHATRELAY_BOT, CHATRELAY_PROVIDER, CHATRELAY_MODEL, DISCORD_TOKEN,
// the provider's API key variable and CHANNEL_ID.
func FromEnv() (*Config, error) {
	cfg := DefaultConfig()
	if dir := os.Getenv("CHATRELAY_HISTORY_DIR"); dir != "" {
		cfg.History.Dir = dir
	}
	if level := os.Getenv("CHATRELAY_LOG_LEVEL"); level != "" {
		cfg.Logging.Level = level
	}

	bot := DefaultBot()
	if p := os.Getenv("CHATRELAY_PROVIDER"); p != "" {
		bot.Provider = p
	}
	bot.Name = os.Getenv("CHATRELAY_BOT")
	if bot.Name == "" {
		bot.Name = llm.NormalizeProvider(bot.Provider)
	}
	bot.Model = os.Getenv("CHATRELAY_MODEL")

	resolveBot(&bot, true)
	cfg.Bots = []BotConfig{bot}
	return cfg, nil
}

// FindConfigFile searches for config files in standard locations.
func FindConfigFile() string {
	candidates := []string{
		"chatrelay.yaml",
		"chatrelay.yml",
		"config.yaml",
		"configs/chatrelay.yaml",
	}
	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// resolveBot fills provider defaults and empty credentials. Profile-scoped
// variables (DISCORD_TOKEN_<NAME>, CHANNEL_ID_<NAME>) are always consulted;
// the unscoped DISCORD_TOKEN and CHANNEL_ID only for a lone profile.
func resolveBot(b *BotConfig, only bool) {
	b.Provider = llm.NormalizeProvider(b.Provider)
	if b.Model == "" {
		b.Model = llm.DefaultModel(b.Provider)
	}

	if isEnvReference(b.DiscordToken) {
		b.DiscordToken = ""
	}
	if isEnvReference(b.APIKey) {
		b.APIKey = ""
	}
	if isEnvReference(b.ChannelID) {
		b.ChannelID = ""
	}

	suffix := b.EnvName()
	if b.DiscordToken == "" {
		b.DiscordToken = LookupSecret("DISCORD_TOKEN_" + suffix)
	}
	if b.DiscordToken == "" && only {
		b.DiscordToken = LookupSecret("DISCORD_TOKEN")
	}
	if b.APIKey == "" {
		if name := llm.APIKeyEnv(b.Provider); name != "" {
			b.APIKey = LookupSecret(name)
		}
	}
	if b.ChannelID == "" {
		b.ChannelID = os.Getenv("CHANNEL_ID_" + suffix)
	}
	if b.ChannelID == "" && only {
		b.ChannelID = os.Getenv("CHANNEL_ID")
	}
	if b.PromptFile == "" && b.Name != "" {
		b.PromptFile = filepath.Join("characters", b.Name+".txt")
	}
}

// isEnvReference reports whether v is an ${VAR} placeholder left in place
// because VAR was unset.
func isEnvReference(v string) bool {
	return strings.HasPrefix(v, "${") && strings.HasSuffix(v, "}")
}

func resolveRelativePaths(cfg *Config, configDir string) {
	cfg.History.Dir = resolvePathFromConfig(cfg.History.Dir, configDir)
	for i := range cfg.Bots {
		cfg.Bots[i].PromptFile = resolvePathFromConfig(cfg.Bots[i].PromptFile, configDir)
	}
}

// resolvePathFromConfig resolves relative paths against the config file's
// directory. Expands ~ to the home directory.
func resolvePathFromConfig(path, configDir string) string {
	if path == "" {
		return path
	}
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(configDir, path)
}

// loadEnvFiles loads .env files from the working directory.
// godotenv.Load does not overwrite existing env vars.
func loadEnvFiles() {
	for _, f := range []string{".env", ".env.local"} {
		_ = godotenv.Load(f)
	}
}

// expandEnvVars replaces ${VAR}, ${VAR:-default} and ${VAR:?message}
// references with environment values. Unset plain references are kept
// verbatim; an unset required reference becomes an "ERROR:" marker picked
// up by expandEnvVarsWithValidation.
func expandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		sub := envVarPattern.FindStringSubmatch(match)
		varName, modifier, value := sub[1], sub[2], sub[3]

		if val, ok := os.LookupEnv(varName); ok {
			return val
		}
		switch modifier {
		case "?":
			if value == "" {
				value = "required environment variable not set"
			}
			return "ERROR:" + varName + ":" + value
		case "-":
			return value
		}
		return match
	})
}

// expandEnvVarsWithValidation is like expandEnvVars but fails when a
// ${VAR:?message} reference is unset.
func expandEnvVarsWithValidation(input string) (string, error) {
	result := expandEnvVars(input)
	idx := strings.Index(result, "ERROR:")
	if idx < 0 {
		return result, nil
	}

	rest := result[idx+len("ERROR:"):]
	if nl := strings.IndexByte(rest, '\n'); nl >= 0 {
		rest = rest[:nl]
	}
	varName, msg, ok := strings.Cut(rest, ":")
	if !ok {
		return "", fmt.Errorf("config error: malformed error marker")
	}
	return "", fmt.Errorf("config error: %s - %s", varName, strings.TrimSpace(msg))
}

// Save writes cfg as YAML to path with owner-only permissions. An existing
// file is backed up to path+".bak" first.
func Save(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if existing, err := os.ReadFile(path); err == nil {
		_ = os.WriteFile(path+".bak", existing, 0o600)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}
