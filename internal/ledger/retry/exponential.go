package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrRetryable marks an error as worth retrying regardless of its message.
// The Stellar transport wraps NOT_FOUND and TRY_AGAIN_LATER answers with it.
var ErrRetryable = errors.New("retryable")

// ExponentialBackoffStrategy retries transient RPC failures, doubling the
// delay between attempts up to maxDelay
type ExponentialBackoffStrategy struct {
	maxRetries   int
	initialDelay time.Duration
	maxDelay     time.Duration
}

// NewExponentialBackoffStrategy allows maxRetries retries after the first attempt
func NewExponentialBackoffStrategy(maxRetries int, initialDelay, maxDelay time.Duration) *ExponentialBackoffStrategy {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &ExponentialBackoffStrategy{
		maxRetries:   maxRetries,
		initialDelay: initialDelay,
		maxDelay:     maxDelay,
	}
}

// Execute runs operation until it succeeds, fails permanently or runs out of attempts
func (s *ExponentialBackoffStrategy) Execute(ctx context.Context, operation Operation) error {
	attempts := s.maxRetries + 1
	delay := s.initialDelay

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := operation()
		if err == nil {
			if attempt > 1 {
				slog.Info("RPC: Call succeeded after retry", "attempt", attempt, "max_attempts", attempts)
			}
			return nil
		}
		lastErr = err

		if !isRecoverableError(err) {
			slog.Debug("RPC: Permanent failure, not retrying", "attempt", attempt, "error", err)
			return err
		}
		if attempt == attempts {
			break
		}

		slog.Warn("RPC: Transient failure, backing off",
			"attempt", attempt,
			"max_attempts", attempts,
			"retry_in", delay,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("context cancelled during retry: %w", ctx.Err())
		case <-time.After(delay):
		}
		delay = min(delay*2, s.maxDelay)
	}

	return fmt.Errorf("operation failed after %d attempts: %w", attempts, lastErr)
}

// Name returns the strategy name
func (s *ExponentialBackoffStrategy) Name() string {
	return "ExponentialBackoff"
}

// transportPatterns match dial and socket failures surfaced by net/http
var transportPatterns = []string{
	"connection reset",
	"connection refused",
	"broken pipe",
	"i/o timeout",
	"timeout",
	"temporary failure",
	"network is unreachable",
	"no such host",
	"dial tcp",
	"eof",
}

// rpcPatterns match an RPC node or its proxy shedding load
var rpcPatterns = []string{
	"429",
	"too many requests",
	"rate limit",
	"502",
	"bad gateway",
	"503",
	"service unavailable",
	"504",
	"gateway timeout",
	"try_again_later",
}

// isRecoverableError reports whether err is transient for a Stellar RPC call
func isRecoverableError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRetryable) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, patterns := range [][]string{transportPatterns, rpcPatterns} {
		for _, pattern := range patterns {
			if strings.Contains(msg, pattern) {
				return true
			}
		}
	}
	return false
}
