package scrapequeue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Coordinator owns the single active job slot and wires the store, the
// admission gate, the status poller, and the queue advancer together. All
// state transitions are serialized by one mutex, the Go counterpart of the
// source environment's single-threaded scheduling: a check-and-set on the
// slot or the advance timer is never split across a blocking call.
type Coordinator struct {
	store  Store
	client WorkerClient
	gate   *AdmissionGate
	config *Config
	logger *slog.Logger

	mu           sync.Mutex
	active       *ActiveJob
	starting     bool // a start-job call is in flight; treated as an occupied slot
	poller       *StatusPoller
	advanceTimer *time.Timer // single outstanding deferred advancement, nil when none
	advancing    bool        // a deferred advancement attempt is currently executing
	subscribers  []func(Event)
	closed       bool

	baseCtx context.Context // governs pollers and advancement attempts
	cancel  context.CancelFunc
}

// NewCoordinator creates a coordinator. Call Start to resume persisted state
// and begin operating; call Close to release it.
func NewCoordinator(store Store, client WorkerClient, config *Config, logger *slog.Logger) *Coordinator {
	baseCtx, cancel := context.WithCancel(context.Background())
	return &Coordinator{
		store:   store,
		client:  client,
		gate:    NewAdmissionGate(client, logger),
		config:  config,
		logger:  logger,
		baseCtx: baseCtx,
		cancel:  cancel,
	}
}

// Start resumes coordinator state from the durable store. When an active-job
// pointer survives from a previous run, the poller reattaches to it so the
// embedder sees current state after a restart. Otherwise a quick advancement
// is scheduled in case queued records are waiting.
func (c *Coordinator) Start(ctx context.Context) error {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return err
	}

	jobID, jobURL, err := c.store.ActiveJobRef(ctx)
	if err != nil {
		return fmt.Errorf("failed to read active job pointer: %w", err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("coordinator is closed")
	}

	if jobID != "" {
		c.logger.Debug("Start: reattaching to active job", "jobID", jobID, "url", jobURL)
		c.active = &ActiveJob{
			ID:          jobID,
			URL:         jobURL,
			ProductName: productNameFromURL(jobURL),
			ProductLink: jobURL,
			StateText:   string(StatePending),
			StartedAt:   time.Now(),
		}
		c.startPollerLocked(jobID)
		c.mu.Unlock()
		c.emit(JobStarted{JobID: jobID, URL: jobURL})
		return nil
	}

	c.logger.Debug("Start: no active job, scheduling advancement", "delay", c.config.ResumeDelay)
	c.scheduleAdvanceLocked(c.config.ResumeDelay)
	c.mu.Unlock()
	return nil
}

// Enqueue requests a scrape of the URL. When the slot is free and the
// worker's admission lock is open the job starts immediately and position 0
// is returned; otherwise the request is appended to the durable queue and its
// 1-based position is returned. A ConflictError from the worker is not a
// failure: the request is queued instead.
func (c *Coordinator) Enqueue(ctx context.Context, rawURL string) (int, error) {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return 0, err
	}
	if !validScrapeURL(rawURL) {
		return 0, fmt.Errorf("not an HTTP(S) URL: %q", rawURL)
	}
	c.logger.Debug("Enqueue", "url", rawURL)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return 0, fmt.Errorf("coordinator is closed")
	}
	if c.active != nil || c.starting {
		c.mu.Unlock()
		return c.appendToQueue(ctx, rawURL)
	}
	// Claim the slot for the duration of the start attempt so a concurrent
	// Enqueue or advancement cannot double-start the worker.
	c.starting = true
	c.mu.Unlock()

	if c.gate.Locked(ctx) {
		c.clearStarting()
		return c.appendToQueue(ctx, rawURL)
	}

	jobID, err := c.client.StartJob(ctx, rawURL)
	if err != nil {
		c.clearStarting()
		if errors.Is(err, ErrConflict) {
			c.logger.Debug("Enqueue: slot conflict, queueing instead", "url", rawURL)
			return c.appendToQueue(ctx, rawURL)
		}
		c.logger.Warn("Enqueue: start failed, queueing instead", "url", rawURL, "error", err)
		c.emit(Notice{Level: NoticeWarning, Message: "Could not start the scrape right away; it was added to the queue."})
		return c.appendToQueue(ctx, rawURL)
	}

	c.promoteStarted(ctx, jobID, rawURL, productNameFromURL(rawURL), rawURL)
	return 0, nil
}

// appendToQueue constructs a JobRecord for the URL, appends it durably, and
// returns its 1-based position.
func (c *Coordinator) appendToQueue(ctx context.Context, rawURL string) (int, error) {
	record := newJobRecord(rawURL)
	if err := c.store.AppendRecord(ctx, record); err != nil {
		return 0, fmt.Errorf("failed to queue request: %w", err)
	}

	records, err := c.store.ListRecords(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to read queue: %w", err)
	}
	position := len(records)
	for i, rec := range records {
		if rec.ID == record.ID {
			position = i + 1
			break
		}
	}
	c.logger.Debug("appendToQueue: queued", "id", record.ID, "url", rawURL, "position", position)
	// When no local job occupies the slot (the admission lock is held
	// elsewhere, or the start attempt failed) the record would otherwise sit
	// until a restart. Arming the advancer is a no-op while a slot is
	// occupied or an attempt is already pending.
	c.rearm(c.config.ResumeDelay)
	c.emit(
		QueueChanged{Length: len(records)},
		Notice{Level: NoticeInfo, Message: fmt.Sprintf("A scrape is already running; your request is #%d in the queue.", position)},
	)
	return position, nil
}

// promoteStarted installs a freshly started job as the active job, persists
// the pointer, and begins polling.
func (c *Coordinator) promoteStarted(ctx context.Context, jobID, jobURL, productName, productLink string) {
	c.mu.Lock()
	c.starting = false
	c.active = &ActiveJob{
		ID:          jobID,
		URL:         jobURL,
		ProductName: productName,
		ProductLink: productLink,
		StateText:   string(StatePending),
		StartedAt:   time.Now(),
	}
	c.startPollerLocked(jobID)
	c.mu.Unlock()

	if err := c.store.SetActiveJob(ctx, jobID, jobURL); err != nil {
		c.logger.Warn("promoteStarted: failed to persist active job pointer", "jobID", jobID, "error", err)
	}
	c.logger.Debug("promoteStarted", "jobID", jobID, "url", jobURL)
	c.emit(JobStarted{JobID: jobID, URL: jobURL})
}

func (c *Coordinator) clearStarting() {
	c.mu.Lock()
	c.starting = false
	c.mu.Unlock()
}

// startPollerLocked creates and starts a poller for the job. Caller holds mu.
func (c *Coordinator) startPollerLocked(jobID string) {
	c.poller = newStatusPoller(c.client, jobID, c.config, c, c.logger)
	c.poller.Start(c.baseCtx)
}

// Cancel requests cancellation of the active job. Fire-and-forget: the
// active slot is not cleared here; the coordinator waits for a later poll to
// observe REVOKED (or FAILURE) and transitions normally, so the embedder
// never shows "cancelled" before the worker confirms. A job unknown to the
// worker is a no-op success.
func (c *Coordinator) Cancel(ctx context.Context, jobID string) error {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return err
	}
	c.logger.Debug("Cancel", "jobID", jobID)

	if err := c.client.CancelJob(ctx, jobID); err != nil {
		if errors.Is(err, ErrNotFound) {
			c.logger.Debug("Cancel: job already gone", "jobID", jobID)
			return nil
		}
		c.emit(Notice{Level: NoticeWarning, Message: "Could not reach the worker to cancel the job."})
		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}

	c.emit(Notice{Level: NoticeInfo, Message: "Cancellation requested; the job will stop shortly."})
	return nil
}

// RemoveFromQueue removes a queued record. Removing an id that is no longer
// queued is a no-op success: the desired end state is already satisfied.
func (c *Coordinator) RemoveFromQueue(ctx context.Context, id string) error {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return err
	}
	c.logger.Debug("RemoveFromQueue", "id", id)

	removed, err := c.store.RemoveRecord(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to remove queued record: %w", err)
	}
	if !removed {
		return nil
	}

	records, err := c.store.ListRecords(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue: %w", err)
	}
	c.emit(QueueChanged{Length: len(records)})
	return nil
}

// PromoteCompleted removes an entry from the durable pending view, for
// embedders that move completed results into their own long-term history.
// An unknown job id is a no-op success.
func (c *Coordinator) PromoteCompleted(ctx context.Context, jobID string) (*CompletedEntry, error) {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return nil, err
	}

	entries, err := c.store.ListCompleted(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending view: %w", err)
	}
	var found *CompletedEntry
	for _, entry := range entries {
		if entry.JobID == jobID {
			found = entry
			break
		}
	}
	if found == nil {
		return nil, nil
	}
	if _, err := c.store.RemoveCompleted(ctx, jobID); err != nil {
		return nil, fmt.Errorf("failed to remove pending entry: %w", err)
	}
	return found, nil
}

// Snapshot returns a point-in-time view of the active job, the queue with
// 1-based positions, and the pending view.
func (c *Coordinator) Snapshot(ctx context.Context) (*CoordinatorState, error) {
	var err error
	if ctx, err = normalizeContext(ctx); err != nil {
		return nil, err
	}

	records, err := c.store.ListRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read queue: %w", err)
	}
	pending, err := c.store.ListCompleted(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read pending view: %w", err)
	}

	c.mu.Lock()
	var active *ActiveJob
	if c.active != nil {
		copied := *c.active
		active = &copied
	}
	c.mu.Unlock()

	return &CoordinatorState{
		Active:  active,
		Queue:   queuePositions(records),
		Pending: pending,
	}, nil
}

// Subscribe registers a callback for coordinator events. Callbacks run
// synchronously on coordinator goroutines and must return quickly.
func (c *Coordinator) Subscribe(fn func(Event)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subscribers = append(c.subscribers, fn)
}

// emit delivers events to subscribers. Never called with mu held.
func (c *Coordinator) emit(events ...Event) {
	c.mu.Lock()
	subs := make([]func(Event), len(c.subscribers))
	copy(subs, c.subscribers)
	c.mu.Unlock()

	for _, event := range events {
		for _, fn := range subs {
			fn(event)
		}
	}
}

// Close stops the poller and any pending advancement timer, then closes the
// store. No timers survive Close.
func (c *Coordinator) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	if c.advanceTimer != nil {
		c.advanceTimer.Stop()
		c.advanceTimer = nil
	}
	poller := c.poller
	c.poller = nil
	c.mu.Unlock()

	c.cancel()
	if poller != nil {
		poller.Stop()
	}
	return c.store.Close()
}

// pollHandler implementation. These run on the poller goroutine; each takes
// the mutex, applies the transition, then emits events outside the lock.

func (c *Coordinator) jobProgressed(jobID string, status *JobStatus, state JobState) {
	var events []Event

	c.mu.Lock()
	if c.active == nil || c.active.ID != jobID {
		c.mu.Unlock()
		return
	}
	c.active.StateText = status.State
	c.active.PollFailures = 0
	if status.Product != nil {
		if status.Product.Name != "" {
			c.active.ProductName = status.Product.Name
		}
		if status.Product.Link != "" {
			c.active.ProductLink = status.Product.Link
		}
	}
	if state == StateProgress {
		progress := clampProgress(status.Progress)
		if progress != c.active.Progress {
			c.active.Progress = progress
			stage := StageForProgress(progress)
			c.logger.Debug("jobProgressed", "jobID", jobID, "progress", progress, "stage", stage.Label)
			events = append(events, JobProgress{JobID: jobID, Progress: progress, Stage: stage})
		}
	}
	c.mu.Unlock()

	c.emit(events...)
}

func (c *Coordinator) jobPollFailed(jobID string, failures int) {
	c.mu.Lock()
	if c.active != nil && c.active.ID == jobID {
		c.active.PollFailures = failures
	}
	c.mu.Unlock()
}

func (c *Coordinator) jobSucceeded(jobID string, status *JobStatus) {
	c.mu.Lock()
	if c.active == nil || c.active.ID != jobID {
		c.mu.Unlock()
		return
	}
	active := *c.active
	c.mu.Unlock()

	entry := &CompletedEntry{
		JobID:       jobID,
		URL:         active.URL,
		ProductName: active.ProductName,
		ProductLink: active.ProductLink,
		Result:      status.Result,
		FinishedAt:  time.Now(),
	}
	if status.Product != nil {
		if status.Product.Name != "" {
			entry.ProductName = status.Product.Name
		}
		if status.Product.Link != "" {
			entry.ProductLink = status.Product.Link
		}
	}
	if err := c.store.PrependCompleted(c.baseCtx, entry); err != nil {
		c.logger.Warn("jobSucceeded: failed to persist completed entry", "jobID", jobID, "error", err)
	}

	c.clearSlot(jobID, c.config.AdvanceDelay)
	c.emit(
		JobCompleted{JobID: jobID, URL: active.URL},
		Notice{Level: NoticeSuccess, Message: fmt.Sprintf("Scrape of %s finished.", active.ProductName)},
	)
}

func (c *Coordinator) jobEnded(jobID string, errText string, cancelled bool) {
	c.mu.Lock()
	if c.active == nil || c.active.ID != jobID {
		c.mu.Unlock()
		return
	}
	active := *c.active
	c.mu.Unlock()

	c.clearSlot(jobID, c.config.AdvanceDelay)
	if cancelled {
		c.emit(
			JobCancelled{JobID: jobID, URL: active.URL},
			Notice{Level: NoticeInfo, Message: fmt.Sprintf("Scrape of %s was cancelled.", active.ProductName)},
		)
		return
	}
	msg := fmt.Sprintf("Scrape of %s failed.", active.ProductName)
	if errText != "" {
		msg = fmt.Sprintf("Scrape of %s failed: %s", active.ProductName, errText)
	}
	c.emit(
		JobFailed{JobID: jobID, URL: active.URL, Error: errText},
		Notice{Level: NoticeWarning, Message: msg},
	)
}

func (c *Coordinator) jobVanished(jobID string) {
	c.mu.Lock()
	if c.active == nil || c.active.ID != jobID {
		c.mu.Unlock()
		return
	}
	active := *c.active
	c.mu.Unlock()

	c.clearSlot(jobID, c.config.ResumeDelay)
	c.emit(
		JobAbandoned{JobID: jobID, URL: active.URL},
		Notice{Level: NoticeInfo, Message: "The running job no longer exists on the worker."},
	)
}

func (c *Coordinator) jobUnreachable(jobID string) {
	c.mu.Lock()
	if c.active == nil || c.active.ID != jobID {
		c.mu.Unlock()
		return
	}
	active := *c.active
	c.mu.Unlock()

	c.clearSlot(jobID, c.config.AbandonDelay)
	c.emit(
		JobAbandoned{JobID: jobID, URL: active.URL},
		Notice{Level: NoticeWarning, Message: "Lost contact with the worker; the job was abandoned."},
	)
}

// clearSlot clears the active slot and its durable pointer, drops the
// (already exiting) poller, and schedules the next advancement.
func (c *Coordinator) clearSlot(jobID string, advanceDelay time.Duration) {
	if err := c.store.ClearActiveJob(c.baseCtx); err != nil {
		c.logger.Warn("clearSlot: failed to clear active job pointer", "jobID", jobID, "error", err)
	}

	c.mu.Lock()
	c.active = nil
	c.poller = nil
	c.scheduleAdvanceLocked(advanceDelay)
	c.mu.Unlock()
	c.logger.Debug("clearSlot: slot freed", "jobID", jobID, "advanceDelay", advanceDelay)
}
