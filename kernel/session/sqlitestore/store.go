// Package sqlitestore persists conversation histories and Telegram access
// records in a single SQLite database file.
package sqlitestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/perchlabs/wrenbot/kernel/chat"
	"github.com/perchlabs/wrenbot/kernel/session"
)

const (
	driverName = "sqlite"
	dsnOptions = "?_pragma=busy_timeout(3000)&_pragma=journal_mode(WAL)"
)

// Store is a SQLite-backed session.Store. It also records the Telegram
// pairing state (pending and allowed senders) since both live in the same
// database file.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Pending is one unapproved Telegram sender waiting for review.
type Pending struct {
	SenderID  int64
	Username  string
	FirstName string
	LastName  string
	FirstSeen time.Time
}

func New(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlitestore: path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("sqlitestore: create dir: %w", err)
	}
	db, err := sql.Open(driverName, path+dsnOptions)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: open db: %w", err)
	}
	s := &Store{db: db, now: time.Now}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	const q = `
CREATE TABLE IF NOT EXISTS chat_history (
	key        TEXT PRIMARY KEY,
	history    TEXT NOT NULL,
	updated_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS pending_connections (
	sender_id  INTEGER PRIMARY KEY,
	username   TEXT NOT NULL DEFAULT '',
	first_name TEXT NOT NULL DEFAULT '',
	last_name  TEXT NOT NULL DEFAULT '',
	first_seen INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS allowed_senders (
	sender_id INTEGER PRIMARY KEY,
	added_at  INTEGER NOT NULL
);`
	if _, err := s.db.ExecContext(ctx, q); err != nil {
		return fmt.Errorf("sqlitestore: migrate: %w", err)
	}
	return nil
}

// LoadHistory returns the stored window for key, or nil when the key is
// unknown or the entry sat idle past the TTL. Expired rows are deleted on
// the way out.
func (s *Store) LoadHistory(ctx context.Context, key string) ([]chat.Message, error) {
	if key == "" {
		return nil, fmt.Errorf("sqlitestore: key is required")
	}
	const q = `SELECT history, updated_at FROM chat_history WHERE key = ?`
	var raw string
	var updatedAt int64
	err := s.db.QueryRowContext(ctx, q, key).Scan(&raw, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: load history: %w", err)
	}
	if s.now().Sub(time.UnixMilli(updatedAt)) > session.TTL {
		const del = `DELETE FROM chat_history WHERE key = ?`
		if _, err := s.db.ExecContext(ctx, del, key); err != nil {
			return nil, fmt.Errorf("sqlitestore: expire history: %w", err)
		}
		return nil, nil
	}
	var maps []map[string]any
	if err := json.Unmarshal([]byte(raw), &maps); err != nil {
		return nil, fmt.Errorf("sqlitestore: decode history: %w", err)
	}
	history, _ := chat.HistoryFromMaps(maps)
	return history, nil
}

func (s *Store) SaveHistory(ctx context.Context, key string, history []chat.Message) error {
	if key == "" {
		return fmt.Errorf("sqlitestore: key is required")
	}
	raw, err := json.Marshal(chat.HistoryToMaps(session.Trim(history)))
	if err != nil {
		return fmt.Errorf("sqlitestore: encode history: %w", err)
	}
	const q = `
INSERT INTO chat_history (key, history, updated_at) VALUES (?, ?, ?)
ON CONFLICT(key) DO UPDATE SET
	history = excluded.history,
	updated_at = excluded.updated_at`
	if _, err := s.db.ExecContext(ctx, q, key, string(raw), s.now().UnixMilli()); err != nil {
		return fmt.Errorf("sqlitestore: save history: %w", err)
	}
	return nil
}

// RecordPending remembers an unapproved sender. Re-recording the same sender
// refreshes the name fields and keeps the original first_seen timestamp.
func (s *Store) RecordPending(ctx context.Context, p Pending) error {
	const q = `
INSERT INTO pending_connections (sender_id, username, first_name, last_name, first_seen)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT(sender_id) DO UPDATE SET
	username = excluded.username,
	first_name = excluded.first_name,
	last_name = excluded.last_name`
	_, err := s.db.ExecContext(ctx, q, p.SenderID, p.Username, p.FirstName, p.LastName, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("sqlitestore: record pending: %w", err)
	}
	return nil
}

func (s *Store) PendingConnections(ctx context.Context) ([]Pending, error) {
	const q = `
SELECT sender_id, username, first_name, last_name, first_seen
FROM pending_connections ORDER BY first_seen, sender_id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list pending: %w", err)
	}
	defer rows.Close()
	var out []Pending
	for rows.Next() {
		var p Pending
		var firstSeen int64
		if err := rows.Scan(&p.SenderID, &p.Username, &p.FirstName, &p.LastName, &firstSeen); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan pending: %w", err)
		}
		p.FirstSeen = time.UnixMilli(firstSeen)
		out = append(out, p)
	}
	return out, rows.Err()
}

// ApprovePending promotes a pending sender onto the allow-list.
func (s *Store) ApprovePending(ctx context.Context, senderID int64) error {
	if err := s.AddAllowedSender(ctx, senderID); err != nil {
		return err
	}
	return s.IgnorePending(ctx, senderID)
}

// IgnorePending drops a pending sender without approving it.
func (s *Store) IgnorePending(ctx context.Context, senderID int64) error {
	const q = `DELETE FROM pending_connections WHERE sender_id = ?`
	if _, err := s.db.ExecContext(ctx, q, senderID); err != nil {
		return fmt.Errorf("sqlitestore: ignore pending: %w", err)
	}
	return nil
}

func (s *Store) AddAllowedSender(ctx context.Context, senderID int64) error {
	const q = `
INSERT INTO allowed_senders (sender_id, added_at) VALUES (?, ?)
ON CONFLICT(sender_id) DO NOTHING`
	if _, err := s.db.ExecContext(ctx, q, senderID, s.now().UnixMilli()); err != nil {
		return fmt.Errorf("sqlitestore: add allowed sender: %w", err)
	}
	return nil
}

func (s *Store) AllowedSenders(ctx context.Context) ([]int64, error) {
	const q = `SELECT sender_id FROM allowed_senders ORDER BY sender_id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlitestore: list allowed senders: %w", err)
	}
	defer rows.Close()
	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("sqlitestore: scan allowed sender: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
