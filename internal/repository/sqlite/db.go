package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS workspace_files (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	path TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	file_type TEXT NOT NULL DEFAULT '',
	size INTEGER NOT NULL DEFAULT 0,
	is_directory INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	updated_at INTEGER NOT NULL,
	UNIQUE (workspace_id, path)
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL DEFAULT '',
	chat_session_id TEXT NOT NULL,
	role TEXT NOT NULL,
	content TEXT NOT NULL DEFAULT '',
	metadata TEXT,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_chat_messages_workspace_session ON chat_messages(workspace_id, chat_session_id, created_at);

CREATE TABLE IF NOT EXISTS checkpoints (
	id TEXT PRIMARY KEY,
	workspace_id TEXT NOT NULL,
	message_id TEXT NOT NULL,
	files BLOB NOT NULL,
	file_count INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_checkpoints_workspace ON checkpoints(workspace_id, created_at);

CREATE TABLE IF NOT EXISTS interrupted_streams (
	id TEXT PRIMARY KEY,
	project_id TEXT NOT NULL,
	chat_session_id TEXT NOT NULL,
	status TEXT NOT NULL,
	last_updated_at INTEGER NOT NULL,
	data TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_streams_project ON interrupted_streams(project_id);
CREATE INDEX IF NOT EXISTS idx_streams_session ON interrupted_streams(chat_session_id);
CREATE INDEX IF NOT EXISTS idx_streams_status ON interrupted_streams(status);
CREATE INDEX IF NOT EXISTS idx_streams_last_updated ON interrupted_streams(last_updated_at);

CREATE TABLE IF NOT EXISTS kv_store (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	updated_at INTEGER NOT NULL
);
`

// DB wraps the local SQLite database
type DB struct {
	db    *sql.DB
	path  string
	mu    sync.Mutex
	ready bool
}

// Open opens (or creates) the SQLite database at path. The schema is
// created by Init.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite only supports one writer
	db.SetMaxIdleConns(1)

	return &DB{db: db, path: path}, nil
}

// Init creates the schema. It is safe to call more than once.
func (d *DB) Init(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ready {
		return nil
	}

	if err := d.db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if _, err := d.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	d.ready = true
	return nil
}

// Ping verifies database connectivity
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database
func (d *DB) Close() error {
	return d.db.Close()
}

func toUnix(t time.Time) int64 {
	return t.UnixNano()
}

func fromUnix(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func derefString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func derefInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}

func derefBool(p *bool) any {
	if p == nil {
		return nil
	}
	return boolToInt(*p)
}
