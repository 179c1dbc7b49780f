// sqlite.go implements a history store backed by the history_turns table.
// It keeps the same permissive Load contract as FileStore.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// SQLiteStore stores turns as rows keyed by (user_id, seq).
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	stats  counters
}

// NewSQLiteStore wraps an open, migrated database. The store owns db and
// closes it on Close.
func NewSQLiteStore(db *sql.DB, logger *slog.Logger) *SQLiteStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &SQLiteStore{
		db:     db,
		logger: logger.With("component", "history", "backend", "sqlite"),
	}
}

// Load returns the user's turns ordered by seq. Query failures and rows
// with an unknown role yield nil.
func (s *SQLiteStore) Load(ctx context.Context, userID string) []Turn {
	if userID == "" {
		return nil
	}
	turns, err := s.query(ctx, userID)
	if err != nil {
		s.stats.unreadable.Add(1)
		s.logger.Warn("unreadable history record, starting empty", "user", userID, "err", err)
		return nil
	}
	if len(turns) == 0 {
		s.stats.missing.Add(1)
		s.logger.Debug("no history record", "user", userID)
		return nil
	}
	if err := Validate(turns); err != nil {
		s.stats.unreadable.Add(1)
		s.logger.Warn("corrupt history record, starting empty", "user", userID, "err", err)
		return nil
	}
	s.stats.loaded.Add(1)
	return turns
}

func (s *SQLiteStore) query(ctx context.Context, userID string) ([]Turn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT role, content FROM history_turns
		WHERE user_id = ?
		ORDER BY seq ASC`, userID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	defer rows.Close()

	var turns []Turn
	for rows.Next() {
		var (
			role string
			t    Turn
		)
		if err := rows.Scan(&role, &t.Content); err != nil {
			return nil, fmt.Errorf("scan history turn: %w", err)
		}
		t.Role = Role(role)
		turns = append(turns, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history turns: %w", err)
	}
	return turns, nil
}

// Save replaces the user's rows in a single transaction.
func (s *SQLiteStore) Save(ctx context.Context, userID string, turns []Turn) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	if err := s.replace(ctx, userID, turns); err != nil {
		s.stats.saveErrors.Add(1)
		s.logger.Error("failed to save history", "user", userID, "err", err)
		return err
	}
	s.stats.saved.Add(1)
	return nil
}

func (s *SQLiteStore) replace(ctx context.Context, userID string, turns []Turn) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM history_turns WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("clear history: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		"INSERT INTO history_turns (user_id, seq, role, content) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range turns {
		if _, err := stmt.ExecContext(ctx, userID, i, string(t.Role), t.Content); err != nil {
			return fmt.Errorf("insert turn %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit history: %w", err)
	}
	return nil
}

// Delete removes all rows for userID.
func (s *SQLiteStore) Delete(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrEmptyUserID
	}
	if _, err := s.db.ExecContext(ctx, "DELETE FROM history_turns WHERE user_id = ?", userID); err != nil {
		return fmt.Errorf("delete history: %w", err)
	}
	return nil
}

// List returns every user id with at least one row, sorted.
func (s *SQLiteStore) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT DISTINCT user_id FROM history_turns ORDER BY user_id")
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan user id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Stats returns the store counters.
func (s *SQLiteStore) Stats() Stats { return s.stats.snapshot() }

// Close closes the underlying database.
func (s *SQLiteStore) Close() error { return s.db.Close() }

var _ Store = (*SQLiteStore)(nil)
