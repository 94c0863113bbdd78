package scrapequeue

import (
	"context"
	"fmt"
	"sync"
)

// InMemoryStore implements the Store interface using in-memory storage.
// It uses a single mutex for thread-safety and is suitable for testing and
// for embedders that do not need state to survive restarts.
type InMemoryStore struct {
	mu        sync.RWMutex
	queue     []*JobRecord
	completed []*CompletedEntry
	jobID     string
	jobURL    string
	closed    bool
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{}
}

// Close closes the store and prevents further operations.
func (s *InMemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *InMemoryStore) ensureOpenLocked() error {
	if s.closed {
		return fmt.Errorf("store is closed")
	}
	return nil
}

// AppendRecord appends a record to the tail of the queue.
func (s *InMemoryStore) AppendRecord(ctx context.Context, record *JobRecord) error {
	if _, err := normalizeContext(ctx); err != nil {
		return err
	}
	if record == nil {
		return fmt.Errorf("record is nil")
	}
	if record.ID == "" {
		return fmt.Errorf("record ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(); err != nil {
		return err
	}
	copied := *record
	s.queue = append(s.queue, &copied)
	return nil
}

// ListRecords returns a snapshot of the queue in FIFO order.
func (s *InMemoryStore) ListRecords(ctx context.Context) ([]*JobRecord, error) {
	if _, err := normalizeContext(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpenLocked(); err != nil {
		return nil, err
	}
	records := make([]*JobRecord, len(s.queue))
	for i, rec := range s.queue {
		copied := *rec
		records[i] = &copied
	}
	return records, nil
}

// RemoveRecord removes one record by ID.
func (s *InMemoryStore) RemoveRecord(ctx context.Context, id string) (bool, error) {
	if _, err := normalizeContext(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(); err != nil {
		return false, err
	}
	for i, rec := range s.queue {
		if rec.ID == id {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// PopFront removes and returns the queue head, or nil when empty.
func (s *InMemoryStore) PopFront(ctx context.Context) (*JobRecord, error) {
	if _, err := normalizeContext(ctx); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(); err != nil {
		return nil, err
	}
	if len(s.queue) == 0 {
		return nil, nil
	}
	head := s.queue[0]
	s.queue = s.queue[1:]
	copied := *head
	return &copied, nil
}

// SetActiveJob persists the active-job pointer.
func (s *InMemoryStore) SetActiveJob(ctx context.Context, jobID, url string) error {
	if _, err := normalizeContext(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(); err != nil {
		return err
	}
	s.jobID = jobID
	s.jobURL = url
	return nil
}

// ActiveJobRef reads the active-job pointer.
func (s *InMemoryStore) ActiveJobRef(ctx context.Context) (string, string, error) {
	if _, err := normalizeContext(ctx); err != nil {
		return "", "", err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpenLocked(); err != nil {
		return "", "", err
	}
	return s.jobID, s.jobURL, nil
}

// ClearActiveJob clears the active-job pointer.
func (s *InMemoryStore) ClearActiveJob(ctx context.Context) error {
	return s.SetActiveJob(ctx, "", "")
}

// PrependCompleted adds a completed entry to the head of the pending view.
func (s *InMemoryStore) PrependCompleted(ctx context.Context, entry *CompletedEntry) error {
	if _, err := normalizeContext(ctx); err != nil {
		return err
	}
	if entry == nil {
		return fmt.Errorf("entry is nil")
	}
	if entry.JobID == "" {
		return fmt.Errorf("entry job ID is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(); err != nil {
		return err
	}
	copied := *entry
	s.completed = append([]*CompletedEntry{&copied}, s.completed...)
	return nil
}

// ListCompleted returns the pending view, most recent first.
func (s *InMemoryStore) ListCompleted(ctx context.Context) ([]*CompletedEntry, error) {
	if _, err := normalizeContext(ctx); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if err := s.ensureOpenLocked(); err != nil {
		return nil, err
	}
	entries := make([]*CompletedEntry, len(s.completed))
	for i, entry := range s.completed {
		copied := *entry
		entries[i] = &copied
	}
	return entries, nil
}

// RemoveCompleted removes one pending-view entry by job ID.
func (s *InMemoryStore) RemoveCompleted(ctx context.Context, jobID string) (bool, error) {
	if _, err := normalizeContext(ctx); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.ensureOpenLocked(); err != nil {
		return false, err
	}
	for i, entry := range s.completed {
		if entry.JobID == jobID {
			s.completed = append(s.completed[:i], s.completed[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}
