package scrapequeue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store represents the interface for durable coordinator state: the FIFO
// request queue, the active-job pointer, and the pending-view list of
// completed entries. Implementations must be thread-safe within one process.
//
// Across processes sharing the same store, consistency is last-writer-wins:
// there is no cross-process locking, and two coordinators could race to start
// the same queued record. This is an accepted design boundary of the
// coordinator, not something implementations should try to fix.
type Store interface {
	// AppendRecord appends a record to the tail of the queue
	AppendRecord(ctx context.Context, record *JobRecord) error

	// ListRecords returns a snapshot of the queue in FIFO order
	ListRecords(ctx context.Context) ([]*JobRecord, error)

	// RemoveRecord removes one record by ID; returns false when absent
	RemoveRecord(ctx context.Context, id string) (bool, error)

	// PopFront removes and returns the queue head, or nil when empty
	PopFront(ctx context.Context) (*JobRecord, error)

	// SetActiveJob persists the "last started job" pointer (job ID and URL)
	SetActiveJob(ctx context.Context, jobID, url string) error

	// ActiveJobRef reads the active-job pointer; empty strings when unset
	ActiveJobRef(ctx context.Context) (jobID, url string, err error)

	// ClearActiveJob clears the active-job pointer
	ClearActiveJob(ctx context.Context) error

	// PrependCompleted adds a completed entry to the head of the pending view
	PrependCompleted(ctx context.Context, entry *CompletedEntry) error

	// ListCompleted returns the pending view, most recent first
	ListCompleted(ctx context.Context) ([]*CompletedEntry, error)

	// RemoveCompleted removes one pending-view entry by job ID; returns
	// false when absent. Called by the embedding UI when it promotes an
	// entry into its own long-term history.
	RemoveCompleted(ctx context.Context, jobID string) (bool, error)

	// Close closes the store
	Close() error
}

// newJobRecord constructs a JobRecord for a URL with a fresh client-side id
// and best-effort product metadata.
func newJobRecord(rawURL string) *JobRecord {
	return &JobRecord{
		ID:          uuid.NewString(),
		URL:         rawURL,
		ProductName: productNameFromURL(rawURL),
		ProductLink: rawURL,
		AddedAt:     time.Now(),
	}
}

// queuePositions pairs records with their 1-based positions. Position is
// always index+1, recomputed from the current order on every read.
func queuePositions(records []*JobRecord) []QueuedRecord {
	queued := make([]QueuedRecord, len(records))
	for i, rec := range records {
		queued[i] = QueuedRecord{Record: rec, Position: i + 1}
	}
	return queued
}
