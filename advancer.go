package scrapequeue

import "time"

// Queue advancement: after the active slot frees, one deferred attempt is
// scheduled. The timer is an explicit Coordinator field checked and set under
// the mutex, never split across a blocking call, so duplicate advancement
// calls collapse into a single outstanding timer.

// scheduleAdvanceLocked arms the advancement timer unless one is already
// outstanding or the slot is occupied. Caller holds mu.
func (c *Coordinator) scheduleAdvanceLocked(delay time.Duration) {
	if c.closed {
		return
	}
	if c.advanceTimer != nil {
		c.logger.Debug("scheduleAdvance: attempt already pending, skipping")
		return
	}
	if c.active != nil || c.starting {
		c.logger.Debug("scheduleAdvance: slot occupied, skipping")
		return
	}
	c.logger.Debug("scheduleAdvance: armed", "delay", delay)
	c.advanceTimer = time.AfterFunc(delay, c.advance)
}

// advance is the deferred advancement attempt. It waits for the admission
// lock to open, re-reads the queue head (the queue may have changed while
// waiting), starts it, and promotes it to the active slot. A start failure
// keeps the record queued and rearms the timer with a longer backoff.
func (c *Coordinator) advance() {
	ctx := c.baseCtx

	c.mu.Lock()
	c.advanceTimer = nil
	if c.closed || c.active != nil || c.starting || c.advancing {
		c.mu.Unlock()
		return
	}
	c.advancing = true
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.advancing = false
		c.mu.Unlock()
	}()

	records, err := c.store.ListRecords(ctx)
	if err != nil {
		c.logger.Warn("advance: failed to read queue", "error", err)
		return
	}
	if len(records) == 0 {
		c.logger.Debug("advance: queue empty, nothing to do")
		return
	}

	if !c.awaitUnlocked() {
		c.logger.Warn("advance: admission lock still held, backing off", "attempts", c.config.GateAttempts)
		c.rearm(c.config.StartRetryDelay)
		return
	}

	// Re-read the head: it may have been removed or replaced while waiting.
	records, err = c.store.ListRecords(ctx)
	if err != nil {
		c.logger.Warn("advance: failed to re-read queue", "error", err)
		c.rearm(c.config.StartRetryDelay)
		return
	}
	if len(records) == 0 {
		c.logger.Debug("advance: queue drained while waiting")
		return
	}
	head := records[0]

	jobID, err := c.client.StartJob(ctx, head.URL)
	if err != nil {
		// The record stays queued; a transient start failure must never
		// lose a request.
		c.logger.Warn("advance: start failed", "url", head.URL, "error", err)
		c.emit(Notice{Level: NoticeWarning, Message: "Could not start the next queued scrape; will retry."})
		c.rearm(c.config.StartRetryDelay)
		return
	}

	if _, err := c.store.RemoveRecord(ctx, head.ID); err != nil {
		c.logger.Warn("advance: failed to dequeue started record", "id", head.ID, "error", err)
	}
	remaining, err := c.store.ListRecords(ctx)
	if err == nil {
		c.emit(QueueChanged{Length: len(remaining)})
	}

	c.promoteStarted(ctx, jobID, head.URL, head.ProductName, head.ProductLink)
}

// awaitUnlocked polls the admission gate until it opens, up to GateAttempts
// checks with GatePause between them. Returns false when the lock never
// opened or the coordinator shut down.
func (c *Coordinator) awaitUnlocked() bool {
	for attempt := 0; attempt < c.config.GateAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-c.baseCtx.Done():
				return false
			case <-time.After(c.config.GatePause):
			}
		}
		if !c.gate.Locked(c.baseCtx) {
			return true
		}
		c.logger.Debug("advance: admission locked, waiting", "attempt", attempt+1, "of", c.config.GateAttempts)
	}
	return false
}

// rearm schedules another advancement attempt.
func (c *Coordinator) rearm(delay time.Duration) {
	c.mu.Lock()
	c.scheduleAdvanceLocked(delay)
	c.mu.Unlock()
}
