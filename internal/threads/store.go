// Package threads persists conversation threads and their messages in SQLite.
package threads

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

// Supported database/sql driver names.
const (
	DriverModernc = "sqlite"  // modernc.org/sqlite, pure Go
	DriverMattn   = "sqlite3" // github.com/mattn/go-sqlite3, cgo
)

// Store is the thread and message repository.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at dbPath with the given
// driver. An empty driver selects the pure-Go one.
func Open(driver, dbPath string) (*Store, error) {
	dsn, err := dataSource(driver, dbPath)
	if err != nil {
		return nil, err
	}
	if driver == "" {
		driver = DriverModernc
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open thread db: %w", err)
	}
	// Single writer avoids SQLITE_BUSY between pooled connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(Schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

func dataSource(driver, dbPath string) (string, error) {
	switch driver {
	case "", DriverModernc:
		return "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", nil
	case DriverMattn:
		return dbPath + "?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on", nil
	}
	return "", fmt.Errorf("unsupported sqlite driver %q", driver)
}

// Close releases the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// CreateThread inserts a thread. Creating an existing id is a no-op that
// returns the stored thread.
func (s *Store) CreateThread(ctx context.Context, id, title string) (*Thread, error) {
	if id == "" {
		return nil, fmt.Errorf("thread id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO threads (id, title, created_at) VALUES (?, ?, ?) ON CONFLICT(id) DO NOTHING`,
		id, title, s.now().UnixMilli())
	if err != nil {
		return nil, fmt.Errorf("insert thread: %w", err)
	}
	return s.GetThread(ctx, id)
}

// GetThread returns the thread or nil when it does not exist.
func (s *Store) GetThread(ctx context.Context, id string) (*Thread, error) {
	var (
		t  Thread
		ms int64
	)
	err := s.db.QueryRowContext(ctx, `SELECT id, title, created_at FROM threads WHERE id = ?`, id).
		Scan(&t.ID, &t.Title, &ms)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get thread: %w", err)
	}
	t.CreatedAt = time.UnixMilli(ms).UTC()
	return &t, nil
}

// ListThreads returns every thread, newest first.
func (s *Store) ListThreads(ctx context.Context) ([]Thread, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, created_at FROM threads ORDER BY created_at DESC, rowid DESC`)
	if err != nil {
		return nil, fmt.Errorf("list threads: %w", err)
	}
	defer rows.Close()

	var out []Thread
	for rows.Next() {
		var (
			t  Thread
			ms int64
		)
		if err := rows.Scan(&t.ID, &t.Title, &ms); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}
		t.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, t)
	}
	return out, rows.Err()
}

// DeleteThread removes the thread and its messages. It reports whether the
// thread existed.
func (s *Store) DeleteThread(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin delete: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE thread_id = ?`, id); err != nil {
		return false, fmt.Errorf("delete messages: %w", err)
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("delete thread: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit delete: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ErrMessageIDConflict is returned when a message id is already stored under
// a different thread.
var ErrMessageIDConflict = errors.New("message id belongs to another thread")

// AppendMessage stores m. Re-appending an id already stored in the same
// thread is ignored and reported as not inserted; an id owned by another
// thread returns ErrMessageIDConflict. CreatedAt defaults to now.
func (s *Store) AppendMessage(ctx context.Context, m Message) (bool, error) {
	if m.ID == "" || m.ThreadID == "" {
		return false, fmt.Errorf("message id and thread id are required")
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = s.now()
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (id, thread_id, role, content, created_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO NOTHING`,
		m.ID, m.ThreadID, m.Role, m.Content, m.CreatedAt.UnixMilli())
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return true, nil
	}
	var owner string
	err = s.db.QueryRowContext(ctx, `SELECT thread_id FROM messages WHERE id = ?`, m.ID).Scan(&owner)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("check message owner: %w", err)
	}
	if owner != "" && owner != m.ThreadID {
		return false, fmt.Errorf("%w: %s is in thread %s", ErrMessageIDConflict, m.ID, owner)
	}
	return false, nil
}

// ListMessages returns a thread's messages, oldest first.
func (s *Store) ListMessages(ctx context.Context, threadID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, thread_id, role, content, created_at FROM messages
		 WHERE thread_id = ? ORDER BY created_at ASC, rowid ASC`, threadID)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	var out []Message
	for rows.Next() {
		var (
			m  Message
			ms int64
		)
		if err := rows.Scan(&m.ID, &m.ThreadID, &m.Role, &m.Content, &ms); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt = time.UnixMilli(ms).UTC()
		out = append(out, m)
	}
	return out, rows.Err()
}
