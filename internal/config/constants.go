package config

import "time"

// Default timeout and interval constants for the scheduler and store.
const (
	DefaultMaxConcurrency = 3
	DefaultRetryCount     = 3
	DefaultRetryDelay     = 2 * time.Second
	DefaultTimeoutPerTask = 5 * time.Minute

	DefaultMaxRetryDelay = 5 * time.Minute
	RetryBackoffFactor   = 2.0

	DefaultPauseTickInterval   = 100 * time.Millisecond
	DefaultIdleTickInterval    = 50 * time.Millisecond
	DefaultFrameReadDeadline   = 30 * time.Second
	DefaultShutdownTimeout     = 30 * time.Second
	DefaultHealthCheckInterval = 30 * time.Second
	DefaultMetricsInterval     = 1 * time.Minute

	MinPriority = 1
	MaxPriority = 10
)
