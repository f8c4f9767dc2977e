// Package db provides SQLite persistence for transcripts and the
// transcription cache.
package db

import "time"

const schema = `
CREATE TABLE IF NOT EXISTS transcripts (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	owner_id TEXT NOT NULL,
	text TEXT NOT NULL,
	filename TEXT NOT NULL DEFAULT '',
	duration INTEGER NOT NULL DEFAULT 0,
	language TEXT NOT NULL DEFAULT '',
	created_at REAL NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_transcripts_owner_created
	ON transcripts(owner_id, created_at DESC, id DESC);

CREATE TABLE IF NOT EXISTS audio_cache (
	hash TEXT PRIMARY KEY,
	transcript TEXT NOT NULL,
	created_at REAL NOT NULL
);
`

// CacheEntry is a cached transcription keyed by the audio digest.
type CacheEntry struct {
	Hash       string
	Transcript string
	CreatedAt  time.Time
}
