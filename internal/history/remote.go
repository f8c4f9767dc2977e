package history

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// RemoteStore is a Store backed by the /transcripts HTTP endpoints.
type RemoteStore struct {
	baseURL string
	token   string
	hc      *http.Client
}

// NewRemoteStore returns a RemoteStore. token is sent as a bearer token;
// hc may be nil.
func NewRemoteStore(baseURL, token string, hc *http.Client) *RemoteStore {
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	return &RemoteStore{baseURL: strings.TrimRight(baseURL, "/"), token: token, hc: hc}
}

func (s *RemoteStore) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	return s.hc.Do(req)
}

func statusError(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if json.Unmarshal(raw, &payload) == nil && payload.Error != "" {
		return fmt.Errorf("http %d: %s", resp.StatusCode, payload.Error)
	}
	return fmt.Errorf("http %d", resp.StatusCode)
}

// Create implements Store.
func (s *RemoteStore) Create(ctx context.Context, ownerID string, rec NewRecord) (Record, error) {
	resp, err := s.do(ctx, http.MethodPost, "/transcripts", rec)
	if err != nil {
		return Record{}, fmt.Errorf("%w: create transcript: %v", ErrPersistence, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Record{}, fmt.Errorf("%w: create transcript: %v", ErrPersistence, statusError(resp))
	}

	var created Record
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return Record{}, fmt.Errorf("%w: decode created transcript: %v", ErrPersistence, err)
	}
	if created.OwnerID == "" {
		created.OwnerID = ownerID
	}
	return created, nil
}

// List implements Store.
func (s *RemoteStore) List(ctx context.Context, ownerID string) ([]Record, error) {
	resp, err := s.do(ctx, http.MethodGet, "/transcripts?owner="+url.QueryEscape(ownerID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: list transcripts: %v", ErrPersistence, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: list transcripts: %v", ErrPersistence, statusError(resp))
	}

	var records []Record
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("%w: decode transcripts: %v", ErrPersistence, err)
	}

	// records of other owners are never surfaced
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if r.OwnerID == "" {
			r.OwnerID = ownerID
		}
		if r.OwnerID == ownerID {
			out = append(out, r)
		}
	}
	SortNewestFirst(out)
	return out, nil
}

// Delete implements Store.
func (s *RemoteStore) Delete(ctx context.Context, ownerID string, id int64) error {
	resp, err := s.do(ctx, http.MethodDelete, "/transcripts/"+strconv.FormatInt(id, 10), nil)
	if err != nil {
		return fmt.Errorf("%w: delete transcript: %v", ErrPersistence, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusForbidden:
		return ErrNotFoundOrForbidden
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return fmt.Errorf("%w: delete transcript: %v", ErrPersistence, statusError(resp))
	}
	return nil
}
