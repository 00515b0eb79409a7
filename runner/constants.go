package runner

import "time"

// Process execution constants
const (
	// DefaultTimeout bounds a single CLI invocation when the caller gives no timeout
	DefaultTimeout = 5 * time.Minute

	// DefaultMaxCaptureBytes is the per-stream in-memory capture cap
	DefaultMaxCaptureBytes = 5 * 1024 * 1024

	// DefaultWaitDelay is how long Wait keeps the output pipes open after the
	// process is gone, in case a grandchild still holds them.
	DefaultWaitDelay = 2 * time.Second

	// MaxReasonableConcurrency caps the concurrency limit to avoid resource exhaustion
	MaxReasonableConcurrency = 32
)
