package history

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/jwulff/speakify/internal/identity"
)

// List is the in-memory history, most recent first. Each mutation is
// applied atomically once its store call completes; store calls themselves
// run without holding the lock.
type List struct {
	store  Store
	logger *slog.Logger

	mu      sync.Mutex
	records []Record

	// mutations that completed while a Load was in flight; merged into the
	// loaded snapshot so they are not lost
	loading int
	created []Record
	removed map[int64]struct{}
}

// NewList returns an empty List backed by store.
func NewList(store Store, logger *slog.Logger) *List {
	if logger == nil {
		logger = slog.Default()
	}
	return &List{store: store, logger: logger}
}

// Records returns a copy of the current list.
func (l *List) Records() []Record {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Record, len(l.records))
	copy(out, l.records)
	return out
}

// Len returns the number of records held.
func (l *List) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.records)
}

// Load replaces the list with the owner's records from the store. On
// failure the list is left unchanged.
func (l *List) Load(ctx context.Context, ownerID string) error {
	if ownerID == "" {
		return fmt.Errorf("%w: %w", ErrLoad, identity.ErrNoSession)
	}

	l.mu.Lock()
	l.loading++
	l.mu.Unlock()

	records, err := l.store.List(ctx, ownerID)

	l.mu.Lock()
	defer l.mu.Unlock()
	created, removed := l.created, l.removed
	l.loading--
	if l.loading == 0 {
		l.created, l.removed = nil, nil
	}

	if err != nil {
		l.logger.Warn("load history failed", "owner_id", ownerID, "error", err)
		return fmt.Errorf("%w: %w", ErrLoad, err)
	}

	loaded := make([]Record, 0, len(records)+len(created))
	seen := make(map[int64]struct{}, len(records))
	for _, r := range records {
		if _, gone := removed[r.ID]; gone {
			continue
		}
		seen[r.ID] = struct{}{}
		loaded = append(loaded, r)
	}
	for _, r := range created {
		_, dup := seen[r.ID]
		_, gone := removed[r.ID]
		if !dup && !gone && r.OwnerID == ownerID {
			loaded = append(loaded, r)
		}
	}
	SortNewestFirst(loaded)
	l.records = loaded

	l.logger.Debug("history loaded", "owner_id", ownerID, "count", len(loaded))
	return nil
}

// RecordNew persists a transcript and inserts it without reloading. A new
// record is normally the most recent, so it lands at the head.
func (l *List) RecordNew(ctx context.Context, ownerID string, rec NewRecord) (Record, error) {
	if ownerID == "" {
		return Record{}, identity.ErrNoSession
	}

	created, err := l.store.Create(ctx, ownerID, rec)
	if err != nil {
		l.logger.Warn("save transcript failed", "owner_id", ownerID, "error", err)
		return Record{}, fmt.Errorf("save transcript: %w", err)
	}

	l.mu.Lock()
	i := sort.Search(len(l.records), func(i int) bool {
		return !newerFirst(l.records[i], created)
	})
	l.records = append(l.records, Record{})
	copy(l.records[i+1:], l.records[i:])
	l.records[i] = created
	if l.loading > 0 {
		l.created = append(l.created, created)
	}
	l.mu.Unlock()

	l.logger.Info("transcript saved", "owner_id", ownerID, "record_id", created.ID)
	return created, nil
}

// Remove deletes a record through the store and drops it from the list.
// On failure the list is left unchanged.
func (l *List) Remove(ctx context.Context, ownerID string, id int64) error {
	if ownerID == "" {
		return identity.ErrNoSession
	}

	if err := l.store.Delete(ctx, ownerID, id); err != nil {
		l.logger.Warn("delete transcript failed", "owner_id", ownerID, "record_id", id, "error", err)
		return fmt.Errorf("delete transcript %d: %w", id, err)
	}

	l.mu.Lock()
	for i, r := range l.records {
		if r.ID == id {
			l.records = append(l.records[:i], l.records[i+1:]...)
			break
		}
	}
	if l.loading > 0 {
		if l.removed == nil {
			l.removed = make(map[int64]struct{})
		}
		l.removed[id] = struct{}{}
	}
	l.mu.Unlock()

	l.logger.Info("transcript deleted", "owner_id", ownerID, "record_id", id)
	return nil
}
