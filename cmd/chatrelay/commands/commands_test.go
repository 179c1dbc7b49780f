package commands

import (
	"bytes"
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jholhewres/chatrelay/pkg/chatrelay/history"
)

// writeConfig writes a two-profile config whose history lives in dir.
func writeConfig(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "chatrelay.yaml")
	content := `
history:
  backend: file
  dir: history
bots:
  - name: groq
    api_key: test-key
  - name: gemini2
    provider: gemini
    api_key: test-key
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd("test")
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestHistoryCommands(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeConfig(t, dir)

	store := history.NewFileStore(filepath.Join(dir, "history", "groq"), nil)
	turns := []history.Turn{history.UserTurn("Hello"), history.AssistantTurn("Hi there")}
	if err := store.Save(context.Background(), "42", turns); err != nil {
		t.Fatal(err)
	}

	out, err := execute(t, "--config", cfgPath, "history", "list", "--bot", "groq")
	if err != nil {
		t.Fatalf("history list: %v", err)
	}
	if strings.TrimSpace(out) != "42" {
		t.Errorf("list output = %q", out)
	}

	out, err = execute(t, "--config", cfgPath, "history", "show", "--bot", "groq", "42")
	if err != nil {
		t.Fatalf("history show: %v", err)
	}
	if !strings.Contains(out, "user:") || !strings.Contains(out, "Hi there") {
		t.Errorf("show output = %q", out)
	}

	if _, err := execute(t, "--config", cfgPath, "history", "clear", "--bot", "groq", "42"); err != nil {
		t.Fatalf("history clear: %v", err)
	}
	if got := store.Load(context.Background(), "42"); len(got) != 0 {
		t.Errorf("history still present: %v", got)
	}
}

func TestHistory_RequiresBotWithSeveralProfiles(t *testing.T) {
	cfgPath := writeConfig(t, t.TempDir())
	_, err := execute(t, "--config", cfgPath, "history", "list")
	if err == nil || !strings.Contains(err.Error(), "--bot") {
		t.Errorf("err = %v, want --bot hint", err)
	}
}

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
	}
	for in, want := range tests {
		if got := parseLevel(in); got != want {
			t.Errorf("parseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
