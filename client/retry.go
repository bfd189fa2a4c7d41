package client

import (
	"github.com/spetersoncode/threadline/internal/retry"
)

// RetryConfig holds retry configuration parameters for opening streams.
type RetryConfig = retry.Config

// DefaultRetryConfig returns the default retry configuration.
//   - 3 max attempts
//   - 500ms initial delay
//   - 10 second max delay
//   - 2x exponential multiplier
//   - 10% jitter
func DefaultRetryConfig() RetryConfig {
	return retry.DefaultConfig()
}

// DisabledRetryConfig returns a configuration that disables retries (single attempt).
func DisabledRetryConfig() RetryConfig {
	return retry.Disabled()
}

// IsTransientError determines if an error is transient and should be retried.
// It checks for rate limits, server errors, network timeouts, and connection issues.
func IsTransientError(err error) bool {
	return retry.IsTransient(err)
}
