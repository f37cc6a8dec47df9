package graph

import (
	"math/rand"
	"time"
)

// NodePolicy configures the execution behavior for a specific node:
// timeout, retry, and idempotency. Retries are the agent layer's
// contract (spec §4.1 "Failure semantics": "the engine does not retry a
// failed node"), but the engine still needs a RetryPolicy on the node to
// know whether an agent failure should be retried before it is treated
// as a node failure that aborts the execution — so the teacher's
// node-level RetryPolicy is kept and driven from an agent's own
// config-declared retry contract (http_caller's retries/retry_delay, for
// example) rather than dropped.
type NodePolicy struct {
	// Timeout is the maximum execution time allowed for this node. Zero
	// means Options.DefaultNodeTimeout is used.
	Timeout time.Duration

	// RetryPolicy specifies automatic retry behavior for transient
	// failures. nil means no retries.
	RetryPolicy *RetryPolicy
}

// PolicyProvider is implemented by nodes that want non-default timeout
// or retry behavior. Nodes that don't implement it get Options' defaults.
type PolicyProvider interface {
	Policy() NodePolicy
}

// RetryPolicy defines automatic retry configuration for transient node
// failures, with exponential backoff and jitter to avoid thundering herd.
type RetryPolicy struct {
	// MaxAttempts is the maximum number of execution attempts (including
	// the initial attempt). Must be >= 1; 1 means no retries.
	MaxAttempts int

	// BaseDelay is the base delay for exponential backoff between
	// retries: actual delay is min(BaseDelay*2^attempt, MaxDelay) + jitter.
	BaseDelay time.Duration

	// MaxDelay caps the exponential growth of the backoff delay.
	MaxDelay time.Duration

	// Retryable decides if a given error should trigger a retry. nil
	// means no errors are retryable.
	Retryable func(error) bool
}

// computeBackoff calculates the delay before retrying a failed node,
// using exponential backoff with jitter. The cancellation token is still
// checked between retry attempts by the caller (engine.go) so
// cancellation is never postponed by the backoff sleep (spec §9).
func computeBackoff(attempt int, base, maxDelay time.Duration, rng *rand.Rand) time.Duration {
	exponentialDelay := base * (1 << attempt)
	if exponentialDelay > maxDelay && maxDelay > 0 {
		exponentialDelay = maxDelay
	}

	var jitter time.Duration
	if base > 0 {
		if rng != nil {
			jitter = time.Duration(rng.Int63n(int64(base)))
		} else {
			jitter = time.Duration(rand.Int63n(int64(base))) // #nosec G404 -- jitter timing, not security
		}
	}

	return exponentialDelay + jitter
}

// Validate checks that the RetryPolicy configuration is internally
// consistent.
func (rp *RetryPolicy) Validate() error {
	if rp.MaxAttempts < 1 {
		return ErrInvalidRetryPolicy
	}
	if rp.MaxDelay > 0 && rp.BaseDelay > 0 && rp.MaxDelay < rp.BaseDelay {
		return ErrInvalidRetryPolicy
	}
	return nil
}
