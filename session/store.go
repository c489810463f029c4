package session

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/chattertools/chattergo/chat"
)

// Store is an optional SQLite archive of dispatched messages. The polling
// loop never reads it back; it exists for offline queries like the CLI's
// recent-message view.
type Store struct {
	db *sql.DB
}

// NewStore opens (creating if needed) the archive database at dbPath.
func NewStore(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			sender TEXT NOT NULL,
			channel TEXT,
			recipient TEXT,
			recipients TEXT,
			body TEXT NOT NULL,
			t INTEGER NOT NULL
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create table: %w", err)
	}

	_, err = db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_messages_t ON messages(t)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Record appends a dispatched batch to the archive. Re-recording an id is a
// no-op, so replaying an overlap boundary is harmless.
func (s *Store) Record(batch []chat.Message) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin archive tx: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO messages (id, kind, sender, channel, recipient, recipients, body, t)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range batch {
		m := &batch[i]
		if _, err := stmt.Exec(m.ID, m.Kind.String(), m.Sender, m.Channel, m.Recipient, joinRecipients(m.Recipients), m.Body, m.Time); err != nil {
			return fmt.Errorf("failed to insert message %s: %w", m.ID, err)
		}
	}
	return tx.Commit()
}

// Recent returns the newest archived messages, oldest first.
func (s *Store) Recent(limit int) ([]chat.Message, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.Query(`
		SELECT id, kind, sender, channel, recipient, recipients, body, t
		FROM messages
		ORDER BY t DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	var out []chat.Message
	for rows.Next() {
		var m chat.Message
		var kind, recipients string
		if err := rows.Scan(&m.ID, &kind, &m.Sender, &m.Channel, &m.Recipient, &recipients, &m.Body, &m.Time); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		m.Kind = parseKind(kind)
		m.Recipients = splitRecipients(recipients)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	// Reverse to chronological order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func joinRecipients(set map[string]struct{}) string {
	if len(set) == 0 {
		return ""
	}
	users := make([]string, 0, len(set))
	for u := range set {
		users = append(users, u)
	}
	sort.Strings(users)
	return strings.Join(users, ",")
}

func splitRecipients(joined string) map[string]struct{} {
	if joined == "" {
		return nil
	}
	set := make(map[string]struct{})
	for _, u := range strings.Split(joined, ",") {
		set[u] = struct{}{}
	}
	return set
}

func parseKind(name string) chat.Kind {
	switch name {
	case "join":
		return chat.KindJoin
	case "leave":
		return chat.KindLeave
	case "tell":
		return chat.KindTell
	default:
		return chat.KindSend
	}
}
