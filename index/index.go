// Package index is the message store: a SQLite database mapping message ids
// to mail files and holding the tag set for each message. Queries use a small
// notmuch-flavoured term language, and each message handle supports a
// freeze/thaw window that batches tag edits into one transaction.
package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "modernc.org/sqlite"
)

var (
	ErrFrozen    = errors.New("message is already frozen")
	ErrNotFrozen = errors.New("message is not frozen")
)

const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY,
	message_id TEXT NOT NULL UNIQUE,
	filename TEXT NOT NULL,
	sender TEXT NOT NULL DEFAULT '',
	subject TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS tags (
	message_id INTEGER NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
	tag TEXT NOT NULL,
	UNIQUE (message_id, tag)
);
CREATE INDEX IF NOT EXISTS tags_by_tag ON tags(tag);
`

// Store is a message index backed by SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the index database at path. Use ":memory:"
// for a throwaway store.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("index path is empty")
	}

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open index: %w", err)
	}

	// WAL allows concurrent readers while a writer is active, busy_timeout
	// reduces SQLITE_BUSY errors under contention.
	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Entry describes a message to record in the index.
type Entry struct {
	MessageID string
	Filename  string
	Sender    string
	Subject   string
	Tags      []string
}

// Add records a message file in the index and applies the initial tags, in
// one transaction: the index holds the message with all its tags or not at
// all. Re-adding a known message id is an error.
func (s *Store) Add(ctx context.Context, e Entry) error {
	if e.MessageID == "" {
		return fmt.Errorf("message id is empty")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("add message %s: %w", e.MessageID, err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx,
		"INSERT INTO messages (message_id, filename, sender, subject) VALUES (?, ?, ?, ?)",
		e.MessageID, e.Filename, e.Sender, e.Subject)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", e.MessageID, err)
	}
	rowID, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("insert message %s: %w", e.MessageID, err)
	}

	for _, tag := range e.Tags {
		if _, err := tx.ExecContext(ctx,
			"INSERT OR IGNORE INTO tags (message_id, tag) VALUES (?, ?)", rowID, tag); err != nil {
			return fmt.Errorf("tag message %s: %w", e.MessageID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("add message %s: %w", e.MessageID, err)
	}
	return nil
}

// Has reports whether a message id is already indexed.
func (s *Store) Has(ctx context.Context, messageID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE message_id = ?", messageID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("lookup %s: %w", messageID, err)
	}
	return n > 0, nil
}

// Search returns the messages matching the query, ordered by insertion. A
// query matching nothing yields an empty slice; the caller decides what that
// means for the run.
func (s *Store) Search(ctx context.Context, query string) ([]*Message, error) {
	where, args, err := compileQuery(query)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT id, message_id, filename FROM messages WHERE "+where+" ORDER BY id", args...)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	defer rows.Close()

	var msgs []*Message
	for rows.Next() {
		m := &Message{store: s}
		if err := rows.Scan(&m.rowID, &m.messageID, &m.filename); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}

	return msgs, nil
}

// Count returns the number of messages matching the query.
func (s *Store) Count(ctx context.Context, query string) (int, error) {
	where, args, err := compileQuery(query)
	if err != nil {
		return 0, err
	}

	var n int
	err = s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM messages WHERE "+where, args...).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count %q: %w", query, err)
	}
	return n, nil
}

// compileQuery translates the term language into a WHERE clause. Terms are
// separated by whitespace, an optional "and" between them is accepted, and
// all terms must match. Supported prefixes: tag:, id:, from:, subject:,
// path:. A bare "*" or path:"**" matches everything.
func compileQuery(query string) (string, []any, error) {
	terms := strings.Fields(query)

	var conds []string
	var args []any
	for _, term := range terms {
		if strings.EqualFold(term, "and") {
			continue
		}

		prefix, value, ok := strings.Cut(term, ":")
		value = strings.Trim(value, `"`)
		if !ok {
			if term == "*" {
				conds = append(conds, "1=1")
				continue
			}
			return "", nil, fmt.Errorf("query term %q: missing prefix", term)
		}

		switch prefix {
		case "tag":
			conds = append(conds, "id IN (SELECT message_id FROM tags WHERE tag = ?)")
			args = append(args, value)
		case "id":
			conds = append(conds, "message_id = ?")
			args = append(args, value)
		case "from":
			conds = append(conds, "sender LIKE '%' || ? || '%'")
			args = append(args, value)
		case "subject":
			conds = append(conds, "subject LIKE '%' || ? || '%'")
			args = append(args, value)
		case "path":
			if value == "**" {
				conds = append(conds, "1=1")
				continue
			}
			conds = append(conds, "filename GLOB ?")
			args = append(args, value)
		default:
			return "", nil, fmt.Errorf("query term %q: unknown prefix %q", term, prefix)
		}
	}

	if len(conds) == 0 {
		conds = append(conds, "1=1")
	}
	return strings.Join(conds, " AND "), args, nil
}

// Message is a handle on one indexed message. Tag mutations issued between
// Freeze and Thaw are batched into a single transaction, so the index
// observes either all of a message's edits or none.
type Message struct {
	store     *Store
	rowID     int64
	messageID string
	filename  string

	tx *sql.Tx
}

func (m *Message) MessageID() string { return m.messageID }
func (m *Message) Filename() string  { return m.filename }

// Tags returns the message's current tag set, unordered.
func (m *Message) Tags() ([]string, error) {
	rows, err := m.querier().Query("SELECT tag FROM tags WHERE message_id = ?", m.rowID)
	if err != nil {
		return nil, fmt.Errorf("tags of %s: %w", m.messageID, err)
	}
	defer rows.Close()

	var tags []string
	for rows.Next() {
		var tag string
		if err := rows.Scan(&tag); err != nil {
			return nil, fmt.Errorf("scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// AddTag adds a tag; adding a present tag is a no-op.
func (m *Message) AddTag(tag string) error {
	_, err := m.querier().Exec(
		"INSERT OR IGNORE INTO tags (message_id, tag) VALUES (?, ?)", m.rowID, tag)
	if err != nil {
		return fmt.Errorf("add tag %q to %s: %w", tag, m.messageID, err)
	}
	return nil
}

// RemoveTag removes a tag; removing an absent tag is a no-op.
func (m *Message) RemoveTag(tag string) error {
	_, err := m.querier().Exec(
		"DELETE FROM tags WHERE message_id = ? AND tag = ?", m.rowID, tag)
	if err != nil {
		return fmt.Errorf("remove tag %q from %s: %w", tag, m.messageID, err)
	}
	return nil
}

// Freeze opens the batching window.
func (m *Message) Freeze() error {
	if m.tx != nil {
		return ErrFrozen
	}
	tx, err := m.store.db.Begin()
	if err != nil {
		return fmt.Errorf("freeze %s: %w", m.messageID, err)
	}
	m.tx = tx
	return nil
}

// Thaw commits the batching window.
func (m *Message) Thaw() error {
	if m.tx == nil {
		return ErrNotFrozen
	}
	tx := m.tx
	m.tx = nil
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("thaw %s: %w", m.messageID, err)
	}
	return nil
}

// Discard rolls back a frozen window. Safe to call on a thawed message.
func (m *Message) Discard() error {
	if m.tx == nil {
		return nil
	}
	tx := m.tx
	m.tx = nil
	return tx.Rollback()
}

type querier interface {
	Exec(query string, args ...any) (sql.Result, error)
	Query(query string, args ...any) (*sql.Rows, error)
}

func (m *Message) querier() querier {
	if m.tx != nil {
		return m.tx
	}
	return m.store.db
}
