// Package scrapequeue coordinates long-running scrape jobs against a
// single-slot remote worker. It guarantees that at most one job runs at a
// time, queues additional requests in a durable store (BadgerDB or SQLite),
// polls the worker for progress and terminal state, and automatically starts
// the next queued request once the slot frees up.
//
// The library supports:
//   - Multiple store implementations (BadgerDB, SQLite, in-memory)
//   - Durable FIFO request queue that survives process restarts
//   - Reattachment to a previously started job after a restart
//   - Fixed-interval status polling with a transport-failure threshold
//   - Automatic queue advancement with admission-lock rechecks and backoff
//   - Passive event notifications for embedding UIs
//
// Example usage:
//
//	store, _ := scrapequeue.NewBadgerStore("./coordinator-data", logger)
//	client := scrapequeue.NewHTTPWorkerClient("http://worker:8000", nil)
//	coord := scrapequeue.NewCoordinator(store, client, scrapequeue.LoadConfig(), logger)
//	defer coord.Close()
//
//	coord.Start(ctx)
//	position, _ := coord.Enqueue(ctx, "https://example.com/product/42")
package scrapequeue

import (
	"net/url"
	"strings"
	"time"
)

// JobState represents a normalized worker-reported job lifecycle state.
type JobState string

const (
	// StatePending indicates the job is known to the worker but not started.
	StatePending JobState = "PENDING"
	// StateQueued indicates the job is waiting inside the worker.
	StateQueued JobState = "QUEUED"
	// StateStarted indicates the job started but reported no progress yet.
	StateStarted JobState = "STARTED"
	// StateProgress indicates the job is running and reporting progress.
	StateProgress JobState = "PROGRESS"
	// StateSuccess indicates the job finished successfully (terminal).
	StateSuccess JobState = "SUCCESS"
	// StateFailure indicates the job failed (terminal).
	StateFailure JobState = "FAILURE"
	// StateRevoked indicates the job was cancelled (terminal).
	StateRevoked JobState = "REVOKED"
	// StateEmpty indicates the worker returned no state at all; the job is
	// treated as no longer existing.
	StateEmpty JobState = ""
	// StateUnrecognized indicates a non-empty state string outside the known
	// set. The poller keeps polling through these so that new intermediate
	// labels introduced by the worker do not abandon a live job.
	StateUnrecognized JobState = "UNRECOGNIZED"
)

// normalizeState maps a raw worker state string onto the closed JobState set.
// Matching is case-insensitive; unknown non-empty values map to
// StateUnrecognized rather than an error.
func normalizeState(raw string) JobState {
	switch JobState(strings.ToUpper(strings.TrimSpace(raw))) {
	case StatePending:
		return StatePending
	case StateQueued:
		return StateQueued
	case StateStarted:
		return StateStarted
	case StateProgress:
		return StateProgress
	case StateSuccess:
		return StateSuccess
	case StateFailure:
		return StateFailure
	case StateRevoked:
		return StateRevoked
	case StateEmpty:
		return StateEmpty
	default:
		return StateUnrecognized
	}
}

// terminal reports whether the state ends the polling loop.
func (s JobState) terminal() bool {
	return s == StateSuccess || s == StateFailure || s == StateRevoked
}

// JobRecord represents a queued, not yet started scrape request.
type JobRecord struct {
	ID          string    // Client-generated unique identifier
	URL         string    // Target resource to scrape
	ProductName string    // Display metadata, derived from URL host when unknown
	ProductLink string    // Display metadata
	AddedAt     time.Time // Creation timestamp; queue order is authoritative, not this
}

// ActiveJob represents the single currently-running scrape job. At most one
// instance exists client-wide; it is owned by the Coordinator.
type ActiveJob struct {
	ID           string    // Worker-assigned job identifier
	URL          string    // Target resource being scraped
	ProductName  string    // Display metadata
	ProductLink  string    // Display metadata
	Progress     int       // Latest reported progress, clamped to [0,100]
	StateText    string    // Last raw state string reported by the worker
	StartedAt    time.Time // When the coordinator started or reattached the job
	PollFailures int       // Consecutive transport failures, reset on any successful poll
}

// ProductInfo is optional display metadata reported by the worker.
type ProductInfo struct {
	Name string `json:"name"`
	Link string `json:"link"`
}

// CompletedEntry is the terminal snapshot of a successful job. Entries sit in
// the durable pending-view list, most recent first, until the embedding UI
// promotes them into its own long-term history.
type CompletedEntry struct {
	JobID       string    // Worker-assigned job identifier
	URL         string    // Scraped resource
	ProductName string    // Display metadata
	ProductLink string    // Display metadata
	Result      []byte    // Raw result payload from the worker
	FinishedAt  time.Time // When SUCCESS was observed
}

// QueuedRecord pairs a JobRecord with its 1-based queue position.
type QueuedRecord struct {
	Record   *JobRecord
	Position int
}

// CoordinatorState is a point-in-time snapshot of the coordinator.
type CoordinatorState struct {
	Active  *ActiveJob // nil when no job is running
	Queue   []QueuedRecord
	Pending []*CompletedEntry // completed entries awaiting promotion, most recent first
}

// productNameFromURL derives a best-effort display name from the URL host.
// Invalid or host-less URLs yield the raw input unchanged.
func productNameFromURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return rawURL
	}
	return strings.TrimPrefix(u.Host, "www.")
}

// validScrapeURL reports whether the string looks like an HTTP(S) URL.
func validScrapeURL(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
