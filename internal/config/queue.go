package config

import "time"

// QueueConfig configures the task store, worker loop, and producer facade.
type QueueConfig struct {
	DatabasePath string `yaml:"database_path"`

	// PollInterval is how long the worker sleeps when no task is pending.
	PollInterval string `yaml:"poll_interval"`

	// ClaimBackoff is how long the worker waits after a claim failure
	// before retrying.
	ClaimBackoff string `yaml:"claim_backoff"`

	// EnqueueRetries bounds producer-side retries on storage errors.
	EnqueueRetries int    `yaml:"enqueue_retries"`
	EnqueueBackoff string `yaml:"enqueue_backoff"`

	// AwaitInterval is the producer's result polling interval.
	AwaitInterval string `yaml:"await_interval"`
}

func parseDurationOr(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

// PollIntervalDuration returns the worker poll interval, defaulting to 500ms.
func (c QueueConfig) PollIntervalDuration() time.Duration {
	return parseDurationOr(c.PollInterval, 500*time.Millisecond)
}

// ClaimBackoffDuration returns the claim retry backoff, defaulting to 1s.
func (c QueueConfig) ClaimBackoffDuration() time.Duration {
	return parseDurationOr(c.ClaimBackoff, time.Second)
}

// EnqueueBackoffDuration returns the base enqueue backoff, defaulting to 250ms.
func (c QueueConfig) EnqueueBackoffDuration() time.Duration {
	return parseDurationOr(c.EnqueueBackoff, 250*time.Millisecond)
}

// AwaitIntervalDuration returns the result poll interval, defaulting to 500ms.
func (c QueueConfig) AwaitIntervalDuration() time.Duration {
	return parseDurationOr(c.AwaitInterval, 500*time.Millisecond)
}
