package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Transcript roles. ToolCall entries are a human-readable projection for
// display only; they are never replayed to the model backend.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleToolCall  = "tool_call"
	RoleSystem    = "system"
)

const (
	// MaxMessageContentLength caps one message's content at write time.
	MaxMessageContentLength = 200_000

	// TruncationMarker is appended to capped content.
	TruncationMarker = "\n\n[... message truncated due to size ...]"

	defaultChatTitle = "New chat"

	timeFormat = "2006-01-02T15:04:05Z"
)

// Store is the persistent chat transcript store over a local sqlite file.
// It is safe for concurrent use from independent sessions; every write is
// transactional.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

type Chat struct {
	ID           int64  `json:"id"`
	DatabaseName string `json:"database_name"`
	Title        string `json:"title"`
	CreatedAt    string `json:"created_at"`
	Starred      bool   `json:"starred"`
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Open creates or opens the sqlite database under dataDir and applies
// pending migrations.
func Open(dataDir string, log *slog.Logger) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	path := filepath.Join(dataDir, "app.db")
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}

	s := &Store{db: db, log: log.With("component", "store")}
	if err := s.migrate(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate store: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// ---------------------------------------------------------------------------
// Database descriptions
// ---------------------------------------------------------------------------

// GetDescription returns the stored description for a database, or the
// empty string when none is set.
func (s *Store) GetDescription(ctx context.Context, name string) (string, error) {
	var description string
	err := s.db.QueryRowContext(ctx,
		"SELECT description FROM database_descriptions WHERE name = ?", name,
	).Scan(&description)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return description, err
}

// SetDescription inserts or replaces the description for a database.
func (s *Store) SetDescription(ctx context.Context, name, description string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO database_descriptions (name, description) VALUES (?, ?)
		 ON CONFLICT(name) DO UPDATE SET description = excluded.description`,
		name, description)
	return err
}

func (s *Store) getOrCreateDatabaseID(ctx context.Context, tx *sql.Tx, name string) (int64, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		"SELECT id FROM database_descriptions WHERE name = ?", name).Scan(&id)
	if err == nil {
		return id, nil
	}
	if err != sql.ErrNoRows {
		return 0, err
	}

	res, err := tx.ExecContext(ctx,
		"INSERT INTO database_descriptions (name, description) VALUES (?, '')", name)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// ---------------------------------------------------------------------------
// Chats
// ---------------------------------------------------------------------------

// CreateChat creates a new chat bound to the given database. The binding
// is immutable after creation.
func (s *Store) CreateChat(ctx context.Context, databaseName, title string) (Chat, error) {
	if title == "" {
		title = defaultChatTitle
	}
	createdAt := time.Now().UTC().Format(timeFormat)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Chat{}, err
	}
	defer tx.Rollback()

	databaseID, err := s.getOrCreateDatabaseID(ctx, tx, databaseName)
	if err != nil {
		return Chat{}, err
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO chats (database_id, database_name, title, created_at, starred)
		 VALUES (?, ?, ?, ?, 0)`,
		databaseID, databaseName, title, createdAt)
	if err != nil {
		return Chat{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Chat{}, err
	}

	if err := tx.Commit(); err != nil {
		return Chat{}, err
	}

	return Chat{
		ID:           id,
		DatabaseName: databaseName,
		Title:        title,
		CreatedAt:    createdAt,
		Starred:      false,
	}, nil
}

// ListChats returns the chats for a database, starred first, then newest
// first.
func (s *Store) ListChats(ctx context.Context, databaseName string) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, title, created_at, starred FROM chats
		 WHERE database_name = ?
		 ORDER BY starred DESC, created_at DESC, id DESC`,
		databaseName)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := []Chat{}
	for rows.Next() {
		chat := Chat{DatabaseName: databaseName}
		var starred int
		if err := rows.Scan(&chat.ID, &chat.Title, &chat.CreatedAt, &starred); err != nil {
			return nil, err
		}
		chat.Starred = starred != 0
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// ChatDatabase returns the database a chat belongs to.
func (s *Store) ChatDatabase(ctx context.Context, chatID int64) (string, error) {
	var name string
	err := s.db.QueryRowContext(ctx,
		"SELECT database_name FROM chats WHERE id = ?", chatID).Scan(&name)
	if err == sql.ErrNoRows {
		return "", fmt.Errorf("chat %d not found", chatID)
	}
	return name, err
}

// RenameTitle updates a chat's title.
func (s *Store) RenameTitle(ctx context.Context, chatID int64, title string) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE chats SET title = ? WHERE id = ?", title, chatID)
	return err
}

// SetStarred sets or clears the starred flag.
func (s *Store) SetStarred(ctx context.Context, chatID int64, starred bool) error {
	val := 0
	if starred {
		val = 1
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE chats SET starred = ? WHERE id = ?", val, chatID)
	return err
}

// DeleteChat removes a chat and all of its messages in one transaction.
func (s *Store) DeleteChat(ctx context.Context, chatID int64) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chat_messages WHERE chat_id = ?", chatID); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM chats WHERE id = ?", chatID); err != nil {
		return err
	}
	return tx.Commit()
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

// AppendMessages appends messages to a chat transcript. Content longer
// than MaxMessageContentLength is truncated with a marker at write time.
func (s *Store) AppendMessages(ctx context.Context, chatID int64, messages []ChatMessage) error {
	if len(messages) == 0 {
		return nil
	}
	createdAt := time.Now().UTC().Format(timeFormat)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	for _, msg := range messages {
		content := CapContent(msg.Content)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO chat_messages (chat_id, role, content, created_at)
			 VALUES (?, ?, ?, ?)`,
			chatID, msg.Role, content, createdAt); err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetMessages loads the full ordered transcript of a chat.
func (s *Store) GetMessages(ctx context.Context, chatID int64) ([]ChatMessage, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT role, content FROM chat_messages WHERE chat_id = ? ORDER BY id ASC",
		chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := []ChatMessage{}
	for rows.Next() {
		var msg ChatMessage
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// CapContent truncates content to the store's write-time cap. Applying it
// to already-capped content changes nothing beyond the marker.
func CapContent(content string) string {
	if len(content) <= MaxMessageContentLength {
		return content
	}
	return content[:MaxMessageContentLength] + TruncationMarker
}
