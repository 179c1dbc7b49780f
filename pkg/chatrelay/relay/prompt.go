package relay

import (
	"log/slog"
	"os"
	"strings"
)

// DefaultPrompt is used when a profile's character file is missing or empty.
const DefaultPrompt = "You are a helpful AI assistant."

// LoadPrompt reads the character prompt at path. It is read once at
// startup; a missing or empty file yields DefaultPrompt.
func LoadPrompt(path string, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return DefaultPrompt
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("character prompt not readable, using default", "path", path, "error", err)
		return DefaultPrompt
	}
	prompt := strings.TrimSpace(string(data))
	if prompt == "" {
		logger.Warn("character prompt is empty, using default", "path", path)
		return DefaultPrompt
	}
	return prompt
}
