// Package history keeps the owner-scoped list of saved transcripts in sync
// with the persistence service.
package history

import (
	"context"
	"errors"
	"sort"
	"time"
)

var (
	// ErrPersistence indicates the backing store failed.
	ErrPersistence = errors.New("persistence error")

	// ErrNotFoundOrForbidden indicates the record does not exist or belongs to another owner.
	ErrNotFoundOrForbidden = errors.New("transcript not found or not owned by caller")

	// ErrLoad wraps failures of List.Load.
	ErrLoad = errors.New("load history")
)

// Record is a persisted transcript.
type Record struct {
	ID              int64     `json:"id"`
	OwnerID         string    `json:"user_id"`
	Text            string    `json:"text"`
	Filename        string    `json:"filename,omitempty"`
	DurationSeconds int       `json:"duration"`
	Language        string    `json:"language,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// NewRecord is the payload for Store.Create.
type NewRecord struct {
	Text            string `json:"text"`
	Filename        string `json:"filename"`
	DurationSeconds int    `json:"duration"`
	Language        string `json:"language"`
}

// Store is the persistence service. Ownership is enforced by the store:
// List only returns ownerID's records and Delete only removes them.
type Store interface {
	Create(ctx context.Context, ownerID string, rec NewRecord) (Record, error)
	List(ctx context.Context, ownerID string) ([]Record, error)
	Delete(ctx context.Context, ownerID string, id int64) error
}

// newerFirst orders by CreatedAt descending, then ID descending.
func newerFirst(a, b Record) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.After(b.CreatedAt)
	}
	return a.ID > b.ID
}

// SortNewestFirst sorts records in place, most recent first.
func SortNewestFirst(records []Record) {
	sort.SliceStable(records, func(i, j int) bool {
		return newerFirst(records[i], records[j])
	})
}
