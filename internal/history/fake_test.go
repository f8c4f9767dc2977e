package history

import (
	"context"
	"errors"
	"sync"
	"time"
)

// memStore is an in-memory Store with owner checks and an injectable failure.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	now     time.Time
	records []Record
	fail    error
	creates int
}

func newMemStore() *memStore {
	return &memStore{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func (s *memStore) Create(ctx context.Context, ownerID string, rec NewRecord) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	if s.fail != nil {
		return Record{}, s.fail
	}
	s.nextID++
	s.now = s.now.Add(time.Second)
	r := Record{
		ID:              s.nextID,
		OwnerID:         ownerID,
		Text:            rec.Text,
		Filename:        rec.Filename,
		DurationSeconds: rec.DurationSeconds,
		Language:        rec.Language,
		CreatedAt:       s.now,
	}
	s.records = append(s.records, r)
	return r, nil
}

func (s *memStore) List(ctx context.Context, ownerID string) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return nil, s.fail
	}
	out := []Record{}
	for _, r := range s.records {
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	SortNewestFirst(out)
	return out, nil
}

func (s *memStore) Delete(ctx context.Context, ownerID string, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	for i, r := range s.records {
		if r.ID == id && r.OwnerID == ownerID {
			s.records = append(s.records[:i], s.records[i+1:]...)
			return nil
		}
	}
	return ErrNotFoundOrForbidden
}

var errBackendDown = errors.New("backend down")
