package scrapequeue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// pollHandler receives the coordinator-visible transitions reduced from raw
// worker status reports. Exactly one terminal callback is invoked per poller
// lifetime (unless the poller is stopped externally first).
type pollHandler interface {
	// jobProgressed: the job is still live; state text and possibly
	// progress were updated
	jobProgressed(jobID string, status *JobStatus, state JobState)

	// jobPollFailed: one transport failure below the threshold; failures
	// is the current consecutive count (non-terminal)
	jobPollFailed(jobID string, failures int)

	// jobSucceeded: SUCCESS observed (terminal)
	jobSucceeded(jobID string, status *JobStatus)

	// jobEnded: FAILURE or REVOKED observed (terminal); cancelled
	// distinguishes operator cancellation from a genuine failure
	jobEnded(jobID string, errText string, cancelled bool)

	// jobVanished: the worker no longer knows the job (terminal)
	jobVanished(jobID string)

	// jobUnreachable: the consecutive transport-failure threshold was
	// crossed (terminal)
	jobUnreachable(jobID string)
}

// StatusPoller repeatedly asks the worker for one job's status and reduces
// the responses into pollHandler transitions. The first poll fires
// immediately on start so a reattach after restart reflects current state
// without waiting a full interval; subsequent polls run on a fixed interval.
// Polls never overlap: a new poll is only issued after the previous one
// resolved. The poller stops itself deterministically on any terminal
// transition.
type StatusPoller struct {
	client    WorkerClient
	jobID     string
	interval  time.Duration
	threshold int
	handler   pollHandler
	logger    *slog.Logger

	failures int // consecutive transport failures, reset on any successful poll
	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// newStatusPoller creates a poller for one job. Call Start to begin polling.
func newStatusPoller(client WorkerClient, jobID string, cfg *Config, handler pollHandler, logger *slog.Logger) *StatusPoller {
	return &StatusPoller{
		client:    client,
		jobID:     jobID,
		interval:  cfg.PollInterval,
		threshold: cfg.PollFailureThreshold,
		handler:   handler,
		logger:    logger,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins polling in a background goroutine.
func (p *StatusPoller) Start(ctx context.Context) {
	go p.run(ctx)
}

// Stop stops the poller and waits for the polling goroutine to exit.
// Safe to call concurrently and after the poller already stopped itself on a
// terminal state.
func (p *StatusPoller) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	<-p.doneCh
}

// run drives the polling loop until a terminal transition or Stop.
func (p *StatusPoller) run(ctx context.Context) {
	defer close(p.doneCh)

	p.logger.Debug("poller: starting", "jobID", p.jobID, "interval", p.interval)

	// Immediate first poll on (re)attach.
	if p.pollOnce(ctx) {
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.stopCh:
			p.logger.Debug("poller: stopped externally", "jobID", p.jobID)
			return
		case <-ctx.Done():
			p.logger.Debug("poller: context cancelled", "jobID", p.jobID, "error", ctx.Err())
			return
		case <-ticker.C:
			if p.pollOnce(ctx) {
				return
			}
		}
	}
}

// pollOnce performs one status request and dispatches the resulting
// transition. It returns true when the poller should stop.
func (p *StatusPoller) pollOnce(ctx context.Context) bool {
	status, err := p.client.GetStatus(ctx, p.jobID)
	if err != nil {
		if ctx.Err() != nil {
			return true
		}
		p.failures++
		p.logger.Warn("poller: status request failed", "jobID", p.jobID, "failures", p.failures, "threshold", p.threshold, "error", err)
		if p.failures >= p.threshold {
			p.handler.jobUnreachable(p.jobID)
			return true
		}
		p.handler.jobPollFailed(p.jobID, p.failures)
		return false
	}
	p.failures = 0

	state := normalizeState(status.State)
	p.logger.Debug("poller: status", "jobID", p.jobID, "state", state, "raw", status.State, "progress", status.Progress)

	switch state {
	case StateEmpty:
		// The worker forgot the job entirely.
		p.handler.jobVanished(p.jobID)
		return true
	case StateSuccess:
		p.handler.jobSucceeded(p.jobID, status)
		return true
	case StateFailure:
		p.handler.jobEnded(p.jobID, status.Error, looksCancelled(status.Error))
		return true
	case StateRevoked:
		p.handler.jobEnded(p.jobID, status.Error, true)
		return true
	case StateUnrecognized:
		// Forward-compatible: a new intermediate label from the worker is
		// not a reason to abandon a live job.
		p.logger.Warn("poller: unrecognized state, continuing", "jobID", p.jobID, "raw", status.State)
		p.handler.jobProgressed(p.jobID, status, state)
		return false
	default:
		p.handler.jobProgressed(p.jobID, status, state)
		return false
	}
}
