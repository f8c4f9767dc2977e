package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jwulff/speakify/internal/history"
	_ "modernc.org/sqlite"
)

// Store provides access to the speakify SQLite database. It implements
// history.Store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

var _ history.Store = (*Store)(nil)

// DefaultDBPath returns the default database path.
func DefaultDBPath() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "speakify", "speakify.sqlite")
}

// Open opens the database with WAL and applies the schema. ":memory:" opens
// a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := ":memory:"
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create database dir: %w", err)
		}
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)", path)
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// each connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create inserts a transcript owned by ownerID.
func (s *Store) Create(ctx context.Context, ownerID string, rec history.NewRecord) (history.Record, error) {
	created := s.now()
	row := s.db.QueryRowContext(ctx, `
		INSERT INTO transcripts (owner_id, text, filename, duration, language, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING id
	`, ownerID, rec.Text, rec.Filename, rec.DurationSeconds, rec.Language, unixFromTime(created))

	var id int64
	if err := row.Scan(&id); err != nil {
		return history.Record{}, fmt.Errorf("%w: insert transcript: %v", history.ErrPersistence, err)
	}

	return history.Record{
		ID:              id,
		OwnerID:         ownerID,
		Text:            rec.Text,
		Filename:        rec.Filename,
		DurationSeconds: rec.DurationSeconds,
		Language:        rec.Language,
		CreatedAt:       timeFromUnix(unixFromTime(created)),
	}, nil
}

// List returns ownerID's transcripts, most recent first.
func (s *Store) List(ctx context.Context, ownerID string) ([]history.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, text, filename, duration, language, created_at
		FROM transcripts
		WHERE owner_id = ?
		ORDER BY created_at DESC, id DESC
	`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("%w: query transcripts: %v", history.ErrPersistence, err)
	}
	defer rows.Close()

	records := []history.Record{}
	for rows.Next() {
		var r history.Record
		var createdAt float64
		if err := rows.Scan(&r.ID, &r.OwnerID, &r.Text, &r.Filename,
			&r.DurationSeconds, &r.Language, &createdAt); err != nil {
			return nil, fmt.Errorf("%w: scan transcript: %v", history.ErrPersistence, err)
		}
		r.CreatedAt = timeFromUnix(createdAt)
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate transcripts: %v", history.ErrPersistence, err)
	}
	return records, nil
}

// Delete removes transcript id if ownerID owns it.
func (s *Store) Delete(ctx context.Context, ownerID string, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM transcripts WHERE id = ? AND owner_id = ?`, id, ownerID)
	if err != nil {
		return fmt.Errorf("%w: delete transcript: %v", history.ErrPersistence, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%w: delete transcript: %v", history.ErrPersistence, err)
	}
	if n == 0 {
		return history.ErrNotFoundOrForbidden
	}
	return nil
}

// CachedTranscript returns the cached transcript for an audio digest.
func (s *Store) CachedTranscript(ctx context.Context, digest string) (string, bool, error) {
	var text string
	err := s.db.QueryRowContext(ctx,
		`SELECT transcript FROM audio_cache WHERE hash = ?`, digest).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query audio cache: %w", err)
	}
	return text, true, nil
}

// CacheTranscript stores text under digest, replacing any previous entry.
func (s *Store) CacheTranscript(ctx context.Context, digest, text string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audio_cache (hash, transcript, created_at) VALUES (?, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET transcript = excluded.transcript, created_at = excluded.created_at
	`, digest, text, unixFromTime(s.now()))
	if err != nil {
		return fmt.Errorf("write audio cache: %w", err)
	}
	return nil
}

// PruneCache drops cache entries older than maxAge and returns how many
// were removed.
func (s *Store) PruneCache(ctx context.Context, maxAge time.Duration) (int64, error) {
	cutoff := unixFromTime(s.now().Add(-maxAge))
	res, err := s.db.ExecContext(ctx, `DELETE FROM audio_cache WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audio cache: %w", err)
	}
	return res.RowsAffected()
}

// CacheEntries returns all cache entries, newest first.
func (s *Store) CacheEntries(ctx context.Context) ([]CacheEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT hash, transcript, created_at FROM audio_cache ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query audio cache: %w", err)
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		var e CacheEntry
		var createdAt float64
		if err := rows.Scan(&e.Hash, &e.Transcript, &createdAt); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		e.CreatedAt = timeFromUnix(createdAt)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
