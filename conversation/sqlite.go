package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/spetersoncode/threadline"
)

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens or creates the database at dsn and applies the schema.
func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// For in-memory SQLite, multiple connections create separate databases.
	if dsn == ":memory:" || strings.Contains(dsn, "mode=memory") {
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS conversations (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			message_id TEXT NOT NULL UNIQUE,
			conversation_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			created_at DATETIME NOT NULL,
			FOREIGN KEY (conversation_id) REFERENCES conversations(id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, seq)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\n%s", err, m)
		}
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Create starts an empty conversation.
func (s *SQLiteStore) Create(ctx context.Context) (threadline.Conversation, error) {
	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx, `INSERT INTO conversations (created_at) VALUES (?)`, now)
	if err != nil {
		return threadline.Conversation{}, s.wrap(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return threadline.Conversation{}, err
	}
	return threadline.Conversation{ID: strconv.FormatInt(id, 10), CreatedAt: now}, nil
}

// Get returns a conversation without its messages.
func (s *SQLiteStore) Get(ctx context.Context, id string) (threadline.Conversation, error) {
	key, err := parseID(id)
	if err != nil {
		return threadline.Conversation{}, err
	}
	var c threadline.Conversation
	var rowID int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id, created_at FROM conversations WHERE id = ?`, key).
		Scan(&rowID, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return threadline.Conversation{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return threadline.Conversation{}, s.wrap(err)
	}
	c.ID = strconv.FormatInt(rowID, 10)
	return c, nil
}

// List returns all conversations, newest first.
func (s *SQLiteStore) List(ctx context.Context) ([]threadline.Conversation, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, created_at FROM conversations ORDER BY id DESC`)
	if err != nil {
		return nil, s.wrap(err)
	}
	defer rows.Close()

	var result []threadline.Conversation
	for rows.Next() {
		var c threadline.Conversation
		var rowID int64
		if err := rows.Scan(&rowID, &c.CreatedAt); err != nil {
			return nil, err
		}
		c.ID = strconv.FormatInt(rowID, 10)
		result = append(result, c)
	}
	return result, rows.Err()
}

// Messages returns the messages of a conversation in insertion order.
func (s *SQLiteStore) Messages(ctx context.Context, id string) ([]threadline.Message, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}
	key, _ := parseID(id)

	rows, err := s.db.QueryContext(ctx,
		`SELECT message_id, role, content, created_at FROM messages
		 WHERE conversation_id = ? ORDER BY seq`, key)
	if err != nil {
		return nil, s.wrap(err)
	}
	defer rows.Close()

	result := []threadline.Message{}
	for rows.Next() {
		msg := threadline.Message{ConversationID: id}
		var role string
		if err := rows.Scan(&msg.ID, &role, &msg.Content, &msg.Timestamp); err != nil {
			return nil, err
		}
		msg.Role = threadline.Role(role)
		result = append(result, msg)
	}
	return result, rows.Err()
}

// Append stores a message at the end of its conversation.
func (s *SQLiteStore) Append(ctx context.Context, msg threadline.Message) (threadline.Message, error) {
	if _, err := s.Get(ctx, msg.ConversationID); err != nil {
		return threadline.Message{}, err
	}
	key, _ := parseID(msg.ConversationID)

	msg = fill(msg)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (message_id, conversation_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)`,
		msg.ID, key, string(msg.Role), msg.Content, msg.Timestamp.UTC())
	if err != nil {
		return threadline.Message{}, s.wrap(err)
	}
	return msg, nil
}

func (s *SQLiteStore) wrap(err error) error {
	if err != nil && strings.Contains(err.Error(), "database is closed") {
		return fmt.Errorf("%w: %v", ErrStoreClosed, err)
	}
	return err
}

// parseID converts a conversation ID to its integer key. IDs that are not
// integers cannot exist in this store.
func parseID(id string) (int64, error) {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return n, nil
}
