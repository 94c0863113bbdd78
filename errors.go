package scrapequeue

import (
	"errors"
	"strings"
)

// Sentinel errors for the two classified worker failures. Callers match them
// with errors.Is; transport implementations wrap them with request context.
var (
	// ErrConflict is returned by StartJob when the worker's single job slot
	// is already occupied. Recoverable: the coordinator queues the request
	// instead of surfacing a hard failure.
	ErrConflict = errors.New("scrapequeue: job slot already occupied")

	// ErrNotFound is returned by CancelJob when the job no longer exists on
	// the worker. The coordinator treats it as a no-op success because the
	// desired end state is already satisfied.
	ErrNotFound = errors.New("scrapequeue: job not found")
)

// looksCancelled infers cancellation from a worker error message. The worker
// reports cancelled jobs either as REVOKED or as FAILURE with an error text
// mentioning cancellation; there is no dedicated field for the distinction, so
// substring matching is the only signal available.
func looksCancelled(errText string) bool {
	lower := strings.ToLower(errText)
	return strings.Contains(lower, "cancel") || strings.Contains(lower, "revoke")
}
