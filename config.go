package scrapequeue

import (
	"os"
	"strconv"
	"time"
)

// Config represents coordinator timing and threshold configuration.
type Config struct {
	// Interval between status polls (default: 3s).
	// The first poll after attach fires immediately regardless of this.
	PollInterval time.Duration

	// Consecutive transport failures before a job is abandoned (default: 3).
	PollFailureThreshold int

	// Delay before advancing the queue after a normal completion,
	// failure, or cancellation (default: 8s).
	AdvanceDelay time.Duration

	// Delay before advancing the queue at startup when no active job
	// exists (default: 500ms).
	ResumeDelay time.Duration

	// Delay before advancing the queue after a job was abandoned because
	// the failure threshold was crossed or the worker forgot it
	// (default: 3s).
	AbandonDelay time.Duration

	// Delay before retrying after start-job failed during advancement
	// (default: 10s). The queued record is kept.
	StartRetryDelay time.Duration

	// Maximum admission-lock checks per advancement attempt (default: 20).
	GateAttempts int

	// Pause between admission-lock checks (default: 1500ms).
	GatePause time.Duration
}

// LoadConfig loads coordinator configuration from environment variables.
// It reads the following environment variables:
//   - SCRAPEQUEUE_POLL_INTERVAL: status poll interval (default: 3s)
//   - SCRAPEQUEUE_POLL_FAILURE_THRESHOLD: abandonment threshold (default: 3)
//   - SCRAPEQUEUE_ADVANCE_DELAY: post-completion cooldown (default: 8s)
//   - SCRAPEQUEUE_RESUME_DELAY: startup advancement delay (default: 500ms)
//   - SCRAPEQUEUE_ABANDON_DELAY: post-abandonment cooldown (default: 3s)
//   - SCRAPEQUEUE_START_RETRY_DELAY: start-failure backoff (default: 10s)
//   - SCRAPEQUEUE_GATE_ATTEMPTS: admission-lock checks per attempt (default: 20)
//   - SCRAPEQUEUE_GATE_PAUSE: pause between lock checks (default: 1500ms)
//
// Duration values use Go duration strings (e.g., "3s", "1500ms").
// Returns a Config with default values for variables that are not set.
func LoadConfig() *Config {
	return &Config{
		PollInterval:         getEnvDuration("SCRAPEQUEUE_POLL_INTERVAL", 3*time.Second),
		PollFailureThreshold: getEnvInt("SCRAPEQUEUE_POLL_FAILURE_THRESHOLD", 3),
		AdvanceDelay:         getEnvDuration("SCRAPEQUEUE_ADVANCE_DELAY", 8*time.Second),
		ResumeDelay:          getEnvDuration("SCRAPEQUEUE_RESUME_DELAY", 500*time.Millisecond),
		AbandonDelay:         getEnvDuration("SCRAPEQUEUE_ABANDON_DELAY", 3*time.Second),
		StartRetryDelay:      getEnvDuration("SCRAPEQUEUE_START_RETRY_DELAY", 10*time.Second),
		GateAttempts:         getEnvInt("SCRAPEQUEUE_GATE_ATTEMPTS", 20),
		GatePause:            getEnvDuration("SCRAPEQUEUE_GATE_PAUSE", 1500*time.Millisecond),
	}
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
