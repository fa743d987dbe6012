package scrobbler

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jfmyers9/scrobbler/pkg/audioscrobbler"
)

// History is a durable log of scrobbles accepted by each service, backed by SQLite
type History struct {
	db *sql.DB
}

// Entry is one accepted scrobble
type Entry struct {
	ID          int64
	Service     string
	Artist      string
	Title       string
	Album       string
	Length      time.Duration
	Timestamp   time.Time
	Loved       bool
	SubmittedAt time.Time
}

// NewHistory opens (and creates if needed) the history database at dbPath
func NewHistory(dbPath string) (*History, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection keeps :memory: databases consistent
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA journal_mode = WAL",
		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	schema := `
		CREATE TABLE IF NOT EXISTS scrobbles (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			service TEXT NOT NULL,
			artist TEXT NOT NULL,
			title TEXT NOT NULL,
			album TEXT,
			length INTEGER NOT NULL,
			timestamp INTEGER NOT NULL,
			loved BOOLEAN DEFAULT 0,
			submitted_at INTEGER NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_service_timestamp ON scrobbles(service, timestamp);
		CREATE INDEX IF NOT EXISTS idx_timestamp ON scrobbles(timestamp);
	`

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	return &History{db: db}, nil
}

// Close closes the database connection
func (h *History) Close() error {
	if h.db != nil {
		return h.db.Close()
	}
	return nil
}

// AddBatch records tracks accepted by service in one transaction
func (h *History) AddBatch(ctx context.Context, service string, tracks []audioscrobbler.Track) error {
	if len(tracks) == 0 {
		return nil
	}

	tx, err := h.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO scrobbles (service, artist, title, album, length, timestamp, loved, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	now := time.Now().Unix()
	for _, t := range tracks {
		if _, err := stmt.ExecContext(ctx, service, t.Artist, t.Title, t.Album, t.Length, t.Timestamp, t.Loved(), now); err != nil {
			return fmt.Errorf("failed to record scrobble %s - %s: %w", t.Artist, t.Title, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Recent returns the newest entries first. An empty service matches all
// services; a non-positive limit returns everything.
func (h *History) Recent(ctx context.Context, service string, limit int) ([]Entry, error) {
	query := `
		SELECT id, service, artist, title, COALESCE(album, ''), length, timestamp, loved, submitted_at
		FROM scrobbles
		WHERE (? = '' OR service = ?)
		ORDER BY timestamp DESC, id DESC
	`
	args := []any{service, service}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := h.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var lengthSecs, timestampUnix, submittedUnix int64

		err := rows.Scan(
			&e.ID,
			&e.Service,
			&e.Artist,
			&e.Title,
			&e.Album,
			&lengthSecs,
			&timestampUnix,
			&e.Loved,
			&submittedUnix,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan history entry: %w", err)
		}

		e.Length = time.Duration(lengthSecs) * time.Second
		e.Timestamp = time.Unix(timestampUnix, 0)
		e.SubmittedAt = time.Unix(submittedUnix, 0)

		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating history: %w", err)
	}

	return entries, nil
}

// Count returns the number of recorded scrobbles for service, or all
// services when service is empty
func (h *History) Count(ctx context.Context, service string) (int, error) {
	var count int
	err := h.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM scrobbles WHERE (? = '' OR service = ?)",
		service, service,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count scrobbles: %w", err)
	}

	return count, nil
}

// Cleanup removes entries for tracks played longer ago than maxAge
func (h *History) Cleanup(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := time.Now().Add(-maxAge).Unix()

	result, err := h.db.ExecContext(ctx, "DELETE FROM scrobbles WHERE timestamp < ?", cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup old scrobbles: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return deleted, nil
}
