package store

import (
	"context"
	"database/sql"
	"fmt"
)

// migration is one idempotent, versioned upgrade step. Steps run in order
// inside their own transactions, exactly once per database file.
type migration struct {
	version int
	apply   func(ctx context.Context, tx *sql.Tx) error
}

var migrations = []migration{
	{version: 1, apply: createBaseSchema},
	{version: 2, apply: repairOversizedMessages},
}

func (s *Store) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			applied_at TEXT NOT NULL
		)`); err != nil {
		return err
	}

	var current int
	if err := s.db.QueryRowContext(ctx,
		"SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&current); err != nil {
		return err
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}

		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return err
		}

		if err := m.apply(ctx, tx); err != nil {
			tx.Rollback()
			return fmt.Errorf("migration %d failed: %w", m.version, err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO schema_migrations (version, applied_at) VALUES (?, datetime('now'))",
			m.version); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}

		s.log.Info("applied store migration", "version", m.version)
	}
	return nil
}

func createBaseSchema(ctx context.Context, tx *sql.Tx) error {
	_, err := tx.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS database_descriptions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL UNIQUE,
			description TEXT NOT NULL DEFAULT ''
		);

		CREATE TABLE IF NOT EXISTS chats (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			database_id INTEGER REFERENCES database_descriptions(id) ON DELETE CASCADE,
			database_name TEXT NOT NULL,
			title TEXT NOT NULL DEFAULT 'New chat',
			created_at TEXT NOT NULL,
			starred INTEGER NOT NULL DEFAULT 0
		);

		CREATE TABLE IF NOT EXISTS chat_messages (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			chat_id INTEGER NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at TEXT NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_chats_database_name ON chats(database_name);
		CREATE INDEX IF NOT EXISTS idx_chats_database_id ON chats(database_id);
		CREATE INDEX IF NOT EXISTS idx_chat_messages_chat_id ON chat_messages(chat_id);
	`)
	return err
}

// repairOversizedMessages rewrites rows whose content predates the
// write-time cap.
func repairOversizedMessages(ctx context.Context, tx *sql.Tx) error {
	rows, err := tx.QueryContext(ctx,
		"SELECT id, content FROM chat_messages WHERE length(content) > ?",
		MaxMessageContentLength)
	if err != nil {
		return err
	}

	type oversized struct {
		id      int64
		content string
	}
	var found []oversized
	for rows.Next() {
		var o oversized
		if err := rows.Scan(&o.id, &o.content); err != nil {
			rows.Close()
			return err
		}
		found = append(found, o)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, o := range found {
		if _, err := tx.ExecContext(ctx,
			"UPDATE chat_messages SET content = ? WHERE id = ?",
			CapContent(o.content), o.id); err != nil {
			return err
		}
	}
	return nil
}
