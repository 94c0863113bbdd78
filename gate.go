package scrapequeue

import (
	"context"
	"log/slog"
)

// AdmissionGate asks the worker whether the single job slot is occupied.
// Pure read, no side effects; consulted before every start attempt.
type AdmissionGate struct {
	client WorkerClient
	logger *slog.Logger
}

// NewAdmissionGate creates an admission gate backed by the worker client.
func NewAdmissionGate(client WorkerClient, logger *slog.Logger) *AdmissionGate {
	return &AdmissionGate{client: client, logger: logger}
}

// Locked reports whether the worker's job slot is occupied. A failed query
// is treated as locked: double-starting the worker's single slot is worse
// than delaying a start by one recheck.
func (g *AdmissionGate) Locked(ctx context.Context) bool {
	locked, err := g.client.LockState(ctx)
	if err != nil {
		g.logger.Warn("Locked: lock query failed, assuming locked", "error", err)
		return true
	}
	g.logger.Debug("Locked", "locked", locked)
	return locked
}
