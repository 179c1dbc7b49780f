// file.go implements the default history store: one JSON file per user.
package history

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

const fileExt = ".json"

// FileStore keeps each user's history in <dir>/<userID>.json as an indented
// JSON array of {"role", "content"} objects.
type FileStore struct {
	dir    string
	logger *slog.Logger
	locks  keyedMutex
	stats  counters
}

// NewFileStore returns a store rooted at dir. The directory is created on
// the first Save, not here.
func NewFileStore(dir string, logger *slog.Logger) *FileStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileStore{
		dir:    dir,
		logger: logger.With("component", "history", "backend", "file"),
	}
}

// Dir returns the base directory.
func (s *FileStore) Dir() string { return s.dir }

// Path returns the record path for userID.
func (s *FileStore) Path(userID string) string {
	return filepath.Join(s.dir, sanitizeUserID(userID)+fileExt)
}

// Load reads the record for userID. Missing and unreadable records both
// yield nil.
func (s *FileStore) Load(_ context.Context, userID string) []Turn {
	if userID == "" {
		return nil
	}
	unlock := s.locks.lock(userID)
	defer unlock()

	path := s.Path(userID)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.stats.missing.Add(1)
			s.logger.Debug("no history record", "user", userID)
			return nil
		}
		s.stats.unreadable.Add(1)
		s.logger.Warn("unreadable history record, starting empty", "user", userID, "path", path, "err", err)
		return nil
	}

	var turns []Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		s.stats.unreadable.Add(1)
		s.logger.Warn("corrupt history record, starting empty", "user", userID, "path", path, "err", err)
		return nil
	}
	if err := Validate(turns); err != nil {
		s.stats.unreadable.Add(1)
		s.logger.Warn("corrupt history record, starting empty", "user", userID, "path", path, "err", err)
		return nil
	}

	s.stats.loaded.Add(1)
	return turns
}

// Save writes the full history for userID, replacing any previous record.
// The write goes to a temp file that is renamed over the record.
func (s *FileStore) Save(_ context.Context, userID string, turns []Turn) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	unlock := s.locks.lock(userID)
	defer unlock()

	if err := s.write(userID, turns); err != nil {
		s.stats.saveErrors.Add(1)
		s.logger.Error("failed to save history", "user", userID, "err", err)
		return err
	}
	s.stats.saved.Add(1)
	return nil
}

func (s *FileStore) write(userID string, turns []Turn) error {
	if turns == nil {
		turns = []Turn{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(turns); err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}

	if err := os.MkdirAll(s.dir, 0o700); err != nil {
		return fmt.Errorf("create history dir %q: %w", s.dir, err)
	}

	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write history: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmpName, s.Path(userID)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename history file: %w", err)
	}
	return nil
}

// Delete removes the record for userID.
func (s *FileStore) Delete(_ context.Context, userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	unlock := s.locks.lock(userID)
	defer unlock()

	if err := os.Remove(s.Path(userID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}

// List returns the sanitized identities with a record, sorted.
func (s *FileStore) List(_ context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read history dir: %w", err)
	}

	var ids []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, fileExt) {
			continue
		}
		ids = append(ids, strings.TrimSuffix(name, fileExt))
	}
	sort.Strings(ids)
	return ids, nil
}

// Stats returns the store counters.
func (s *FileStore) Stats() Stats { return s.stats.snapshot() }

// Close is a no-op; every write is flushed before Save returns.
func (s *FileStore) Close() error { return nil }

var _ Store = (*FileStore)(nil)
