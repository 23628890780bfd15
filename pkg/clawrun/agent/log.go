// Package agent – log.go is the conversation log: an append-only message
// list persisted to sqlite under the conversation directory, guarded by an
// advisory directory lock. The lock is re-entrant within the process;
// cross-process contention fails fast with a clear error.
package agent

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

var dirLocks struct {
	mu    sync.Mutex
	locks map[string]*dirLock
}

type dirLock struct {
	file  *os.File
	count int
}

func acquireDirLock(dir string) error {
	dirLocks.mu.Lock()
	defer dirLocks.mu.Unlock()
	if dirLocks.locks == nil {
		dirLocks.locks = make(map[string]*dirLock)
	}
	if l, ok := dirLocks.locks[dir]; ok {
		l.count++
		return nil
	}
	f, err := os.OpenFile(filepath.Join(dir, ".lock"), os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("open lock file: %w", err)
	}
	if err := flockExclusive(f); err != nil {
		f.Close()
		return fmt.Errorf("conversation directory %s is locked by another process", dir)
	}
	dirLocks.locks[dir] = &dirLock{file: f, count: 1}
	return nil
}

func releaseDirLock(dir string) {
	dirLocks.mu.Lock()
	defer dirLocks.mu.Unlock()
	l, ok := dirLocks.locks[dir]
	if !ok {
		return
	}
	l.count--
	if l.count > 0 {
		return
	}
	funlock(l.file)
	l.file.Close()
	delete(dirLocks.locks, dir)
}

// LogManager exclusively owns one conversation's message list and directory
// lock. Messages are immutable once appended.
type LogManager struct {
	mu       sync.Mutex
	dir      string
	db       *sql.DB
	messages []Message
	logger   *slog.Logger
	closed   bool
}

// OpenLog acquires the conversation directory and loads prior messages.
func OpenLog(dir string, logger *slog.Logger) (*LogManager, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation dir: %w", err)
	}
	if err := acquireDirLock(dir); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite3", filepath.Join(dir, "conversation.db")+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		releaseDirLock(dir)
		return nil, fmt.Errorf("open conversation db: %w", err)
	}
	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS messages (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			role      TEXT NOT NULL,
			content   TEXT NOT NULL,
			timestamp TEXT NOT NULL,
			call_id   TEXT NOT NULL DEFAULT '',
			hide      INTEGER NOT NULL DEFAULT 0,
			quiet     INTEGER NOT NULL DEFAULT 0
		)`); err != nil {
		db.Close()
		releaseDirLock(dir)
		return nil, fmt.Errorf("create messages table: %w", err)
	}

	lm := &LogManager{
		dir:    dir,
		db:     db,
		logger: logger.With("component", "log", "dir", dir),
	}
	if err := lm.load(); err != nil {
		db.Close()
		releaseDirLock(dir)
		return nil, err
	}
	return lm, nil
}

func (lm *LogManager) load() error {
	rows, err := lm.db.Query(`SELECT role, content, timestamp, call_id, hide, quiet FROM messages ORDER BY id`)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var m Message
		var ts string
		var hide, quiet int
		if err := rows.Scan(&m.Role, &m.Content, &ts, &m.CallID, &hide, &quiet); err != nil {
			return fmt.Errorf("scan message: %w", err)
		}
		m.Timestamp, _ = time.Parse(time.RFC3339Nano, ts)
		m.Hide = hide != 0
		m.Quiet = quiet != 0
		lm.messages = append(lm.messages, m)
	}
	return rows.Err()
}

// Dir returns the conversation directory.
func (lm *LogManager) Dir() string { return lm.dir }

// Append persists a message and adds it to the in-memory list. Persistence
// failures at runtime are logged and the in-memory append proceeds.
func (lm *LogManager) Append(m Message) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if lm.closed {
		return
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}
	if _, err := lm.db.Exec(
		`INSERT INTO messages (role, content, timestamp, call_id, hide, quiet) VALUES (?, ?, ?, ?, ?, ?)`,
		string(m.Role), m.Content, m.Timestamp.Format(time.RFC3339Nano),
		m.CallID, boolInt(m.Hide), boolInt(m.Quiet),
	); err != nil {
		lm.logger.Warn("message persistence failed", "error", err)
	}
	lm.messages = append(lm.messages, m)
}

// Messages returns a copy of the message list.
func (lm *LogManager) Messages() []Message {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	out := make([]Message, len(lm.messages))
	copy(out, lm.messages)
	return out
}

// Len returns the message count.
func (lm *LogManager) Len() int {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return len(lm.messages)
}

// Last returns the most recent message, if any.
func (lm *LogManager) Last() (Message, bool) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if len(lm.messages) == 0 {
		return Message{}, false
	}
	return lm.messages[len(lm.messages)-1], true
}

// Close flushes, releases the directory lock and closes the database.
func (lm *LogManager) Close() error {
	lm.mu.Lock()
	if lm.closed {
		lm.mu.Unlock()
		return nil
	}
	lm.closed = true
	lm.mu.Unlock()

	err := lm.db.Close()
	releaseDirLock(lm.dir)
	return err
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
