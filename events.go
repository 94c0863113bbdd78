package scrapequeue

// Event is the interface for coordinator state-change notifications.
// Events are delivered synchronously, in order, to subscribers registered
// with Coordinator.Subscribe. Handlers must not call back into the
// coordinator from the handler goroutine.
type Event interface {
	event()
}

// JobStarted is emitted when a job begins running (or is reattached after a
// restart).
type JobStarted struct {
	JobID string
	URL   string
}

// JobProgress is emitted when a poll reports new progress.
type JobProgress struct {
	JobID    string
	Progress int
	Stage    Stage
}

// JobCompleted is emitted when SUCCESS is observed. The CompletedEntry has
// already been appended to the durable pending view.
type JobCompleted struct {
	JobID string
	URL   string
}

// JobFailed is emitted when FAILURE is observed with no cancellation signal.
type JobFailed struct {
	JobID string
	URL   string
	Error string
}

// JobCancelled is emitted when REVOKED is observed, or FAILURE whose error
// text indicates cancellation.
type JobCancelled struct {
	JobID string
	URL   string
}

// JobAbandoned is emitted when polling gives up: either the worker no longer
// knows the job, or the transport-failure threshold was crossed.
type JobAbandoned struct {
	JobID string
	URL   string
}

// QueueChanged is emitted after any queue mutation (enqueue, remove, pop).
type QueueChanged struct {
	Length int
}

// NoticeLevel classifies a Notice for display.
type NoticeLevel string

const (
	NoticeInfo    NoticeLevel = "info"
	NoticeSuccess NoticeLevel = "success"
	NoticeWarning NoticeLevel = "warning"
)

// Notice is a passive user-visible message. Failures are always surfaced
// this way, never as exceptions to the caller and never silently dropped.
type Notice struct {
	Level   NoticeLevel
	Message string
}

func (JobStarted) event()   {}
func (JobProgress) event()  {}
func (JobCompleted) event() {}
func (JobFailed) event()    {}
func (JobCancelled) event() {}
func (JobAbandoned) event() {}
func (QueueChanged) event() {}
func (Notice) event()       {}
