package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"media-share/internal/logging"
	"media-share/internal/metrics"
)

const defaultTimeout = 5 * time.Second

// Sentinel errors returned by the query layer. Handlers map these to
// HTTP status codes; everything else is a 500.
var (
	ErrNotFound            = errors.New("database: not found")
	ErrUsernameTaken       = errors.New("database: username already taken")
	ErrInvalidCredentials  = errors.New("database: invalid credentials")
	ErrInvalidSession      = errors.New("database: invalid or expired session")
	ErrNoDefaultCollection = errors.New("database: user has no default collection")
)

// Database wraps the sqlite connection and serializes access to it.
// sqlite allows a single writer; the mutex keeps our own transactions
// from tripping over each other before the busy handler kicks in.
type Database struct {
	db *sql.DB
	mu sync.RWMutex
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);

CREATE TABLE IF NOT EXISTS sessions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	token_hash TEXT NOT NULL UNIQUE,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
	expires_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_sessions_expires ON sessions(expires_at);

CREATE TABLE IF NOT EXISTS media (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	hash TEXT NOT NULL,
	media_type TEXT NOT NULL,
	width INTEGER,
	height INTEGER,
	duration REAL,
	size INTEGER NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
	created_by INTEGER NOT NULL REFERENCES users(id)
);
CREATE INDEX IF NOT EXISTS idx_media_hash ON media(hash);
CREATE INDEX IF NOT EXISTS idx_media_created_by ON media(created_by);

CREATE TABLE IF NOT EXISTS collections (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT 'NORMAL',
	owner_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_collections_default
	ON collections(owner_id) WHERE type = 'DEFAULT';

CREATE TABLE IF NOT EXISTS collection_media (
	collection_id INTEGER NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
	media_id INTEGER NOT NULL REFERENCES media(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_collection_media_media ON collection_media(media_id);
CREATE INDEX IF NOT EXISTS idx_collection_media_collection ON collection_media(collection_id);

CREATE TABLE IF NOT EXISTS collection_shares (
	collection_id INTEGER NOT NULL REFERENCES collections(id) ON DELETE CASCADE,
	user_id INTEGER NOT NULL REFERENCES users(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_collection_shares_user ON collection_shares(user_id);

CREATE TABLE IF NOT EXISTS tags (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	namespace TEXT NOT NULL DEFAULT '',
	tag_name TEXT NOT NULL,
	type TEXT NOT NULL DEFAULT 'USER',
	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
	UNIQUE(namespace, tag_name)
);

CREATE TABLE IF NOT EXISTS tag_media (
	tag_id INTEGER NOT NULL REFERENCES tags(id) ON DELETE CASCADE,
	media_id INTEGER NOT NULL REFERENCES media(id) ON DELETE CASCADE,
	UNIQUE(tag_id, media_id)
);
CREATE INDEX IF NOT EXISTS idx_tag_media_media ON tag_media(media_id);

CREATE TABLE IF NOT EXISTS derive_jobs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	media_id INTEGER NOT NULL REFERENCES media(id) ON DELETE CASCADE,
	status TEXT NOT NULL DEFAULT 'pending',
	attempts INTEGER NOT NULL DEFAULT 0,
	last_error TEXT NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
	updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_derive_jobs_status ON derive_jobs(status);
CREATE INDEX IF NOT EXISTS idx_derive_jobs_media ON derive_jobs(media_id);
`

// New opens (creating if necessary) the sqlite database at dbPath and
// applies the schema.
func New(ctx context.Context, dbPath string) (*Database, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// One writer at a time keeps sqlite happy under load.
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("applying schema: %w", err)
	}

	logging.Info("Database ready at %s", dbPath)
	return &Database{db: db}, nil
}

// Close closes the underlying connection.
func (d *Database) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.db.Close()
}

// observeQuery records metrics for a single query. Call the returned
// function with the query's error when it completes.
func observeQuery(operation string) func(error) {
	start := time.Now()
	return func(err error) {
		status := "success"
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			status = "error"
		}
		metrics.DBQueryTotal.WithLabelValues(operation, status).Inc()
		metrics.DBQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func (d *Database) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, defaultTimeout)
}

// UpdateConnectionMetrics publishes current pool stats.
func (d *Database) UpdateConnectionMetrics() {
	metrics.DBConnectionsOpen.Set(float64(d.db.Stats().OpenConnections))
}
